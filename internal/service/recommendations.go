package service

import (
	"fmt"

	"github.com/irb-determination-server/internal/domain"
)

// lowConfidenceThreshold is the confidence below which a determination is
// flagged as provisional.
const lowConfidenceThreshold = 0.5

// buildFlags derives secondary concerns that do not change the tier.
func buildFlags(result *domain.DeterminationResult, s *domain.AnswerSnapshot) []domain.Flag {
	flags := make([]domain.Flag, 0)
	humanSubjects := result.Type.OversightLevel() >= domain.ReviewExempt.OversightLevel()

	if humanSubjects && s.Text(domain.RiskLevel) == domain.RiskMinimal &&
		(s.Answer(domain.PhysicalRisks).IsYes() || s.Answer(domain.PsychologicalRisks).IsYes()) {
		flags = append(flags, domain.Flag{
			Severity: domain.SeverityWarning,
			Message:  "Risk level is declared minimal but physical or psychological risks are reported; confirm the risk assessment",
		})
	}

	if enrollment, ok := s.Number(domain.TargetEnrollment); humanSubjects && ok && enrollment > largeEnrollment {
		flags = append(flags, domain.Flag{
			Severity: domain.SeverityInfo,
			Message:  fmt.Sprintf("Target enrollment of %s participants is large; the IRB may ask for a recruitment and data management plan", formatNumber(enrollment)),
		})
	}

	if humanSubjects && s.Answer(domain.FederallyFunded).IsYes() && s.Answer(domain.IsMultiSite).IsYes() {
		flags = append(flags, domain.Flag{
			Severity: domain.SeverityInfo,
			Message:  "Federally funded multi-site research must use a single IRB of record (45 CFR 46.114)",
		})
	}

	if result.Confidence < lowConfidenceThreshold {
		flags = append(flags, domain.Flag{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("Low confidence (%.0f%%): many questions are still unanswered, so this determination may change", result.Confidence*100),
		})
	}

	return flags
}

// buildRecommendations creates the advisory next steps for a result: one
// set for the tier, then one per winning trigger.
func buildRecommendations(result *domain.DeterminationResult, winners []firedRule, missing []weightedField, s *domain.AnswerSnapshot) []domain.Recommendation {
	recs := make([]domain.Recommendation, 0)
	info := result.Type.Info()

	switch result.Type {
	case domain.ReviewInsufficientInfo:
		for _, m := range missing {
			recs = append(recs, domain.Recommendation{
				Type:     domain.RecommendMissingInfo,
				Priority: domain.PriorityHigh,
				Title:    fmt.Sprintf("Answer: %s", m.label),
				Body:     fmt.Sprintf("Return to the %s step and answer this question so the review type can be determined.", m.ref.Section.Title()),
			})
		}

	case domain.ReviewNotResearch:
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendReviewPath,
			Priority: domain.PriorityLow,
			Title:    "Confirm with your IRB office",
			Body:     "Activities that are not research do not need IRB review. Keep a record of this determination and confirm with your IRB office if you plan to publish.",
		})

	case domain.ReviewNotHumanSubjects:
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendReviewPath,
			Priority: domain.PriorityMedium,
			Title:    "Request a Not Human Subjects Research determination",
			Body:     "Most institutions require the IRB to confirm this determination. Submit a short description of the data source and how identifiers are handled.",
		})

	case domain.ReviewExempt:
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendReviewPath,
			Priority: domain.PriorityHigh,
			Title:    "Submit for an exempt determination",
			Body:     fmt.Sprintf("Exempt research still requires an IRB determination before you begin. Typical timeline: %s.", info.TypicalTimeline),
		})
		if result.CategoryLabel != "" {
			recs = append(recs, domain.Recommendation{
				Type:     domain.RecommendExemption,
				Priority: domain.PriorityMedium,
				Title:    "Cite the exemption category",
				Body:     fmt.Sprintf("Reference %s in your submission and explain how the study meets each of its conditions.", result.CategoryLabel),
			})
		}

	case domain.ReviewExpedited:
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendReviewPath,
			Priority: domain.PriorityHigh,
			Title:    "Prepare an expedited review submission",
			Body:     fmt.Sprintf("A designated IRB reviewer will evaluate the protocol, consent documents and instruments. Typical timeline: %s.", info.TypicalTimeline),
		})

	case domain.ReviewFullBoard:
		recs = append(recs,
			domain.Recommendation{
				Type:     domain.RecommendReviewPath,
				Priority: domain.PriorityHigh,
				Title:    "Plan for convened board review",
				Body:     "Full board protocols are reviewed at a scheduled IRB meeting. Check your institution's submission deadlines.",
			},
			domain.Recommendation{
				Type:     domain.RecommendTimeline,
				Priority: domain.PriorityMedium,
				Title:    "Allow time for review",
				Body:     fmt.Sprintf("Typical timeline: %s, plus time for revisions requested by the board.", info.TypicalTimeline),
			},
		)
	}

	for _, w := range winners {
		if rec, ok := triggerRecommendation(w.rule.Code); ok {
			recs = append(recs, rec)
		}
	}

	if result.Type.OversightLevel() >= domain.ReviewExempt.OversightLevel() &&
		s.Answer(domain.CollectsIdentifiers).IsYes() && s.Text(domain.DataSecurityPlan) == "" {
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendDocumentation,
			Priority: domain.PriorityMedium,
			Title:    "Describe your data security plan",
			Body:     "Identifiers are collected. Explain how data are stored, who has access and when identifiers are removed.",
		})
	}

	return recs
}

// triggerRecommendation returns the follow-up for a winning rule, if any.
func triggerRecommendation(code string) (domain.Recommendation, bool) {
	rec, ok := triggerRecommendations[code]
	return rec, ok
}

var triggerRecommendations = map[string]domain.Recommendation{
	"FB-PRISONERS": {
		Type:     domain.RecommendProtection,
		Priority: domain.PriorityHigh,
		Title:    "Address Subpart C requirements",
		Body:     "Explain why prisoners are needed, how participation will not affect parole decisions, and confirm a prisoner representative will review the protocol.",
	},
	"FB-MINORS": {
		Type:     domain.RecommendProtection,
		Priority: domain.PriorityHigh,
		Title:    "Prepare parental permission and child assent",
		Body:     "Provide parental permission forms and age-appropriate assent materials, and justify the risk category under Subpart D.",
	},
	"FB-PREGNANT": {
		Type:     domain.RecommendProtection,
		Priority: domain.PriorityHigh,
		Title:    "Address Subpart B requirements",
		Body:     "Describe risks to the pregnant woman and fetus and any preclinical data supporting the study.",
	},
	"FB-COGNITIVE": {
		Type:     domain.RecommendProtection,
		Priority: domain.PriorityHigh,
		Title:    "Describe capacity assessment and surrogate consent",
		Body:     "Explain how decision-making capacity is assessed and when a legally authorized representative will provide consent.",
	},
	"FB-RISK": {
		Type:     domain.RecommendDocumentation,
		Priority: domain.PriorityHigh,
		Title:    "Document risk mitigation and monitoring",
		Body:     "Describe each risk, how it is minimized, and the data and safety monitoring plan.",
	},
	"FB-DECEPTION": {
		Type:     domain.RecommendDocumentation,
		Priority: domain.PriorityHigh,
		Title:    "Justify deception without debriefing",
		Body:     "Explain why debriefing is not possible, or add a debriefing plan, which may allow expedited review.",
	},
	"FB-DRUGS-DEVICES": {
		Type:     domain.RecommendDocumentation,
		Priority: domain.PriorityHigh,
		Title:    "Provide IND/IDE information",
		Body:     "Include the IND or IDE number, or the basis for an exemption from FDA requirements.",
	},
	"FB-BLOOD-DRAW": {
		Type:     domain.RecommendProtection,
		Priority: domain.PriorityHigh,
		Title:    "Review blood draw volume and frequency",
		Body:     "Expedited review allows at most 550 mL in 8 weeks, no more than twice per week. Reduce the volume or justify it to the board.",
	},
	"EXP-BIOSPECIMENS": {
		Type:     domain.RecommendDocumentation,
		Priority: domain.PriorityMedium,
		Title:    "Describe specimen collection and storage",
		Body:     "State the specimen types, volumes, frequency, storage location and whether specimens will be banked for future use.",
	},
	"EXP-RECORDING": {
		Type:     domain.RecommendDocumentation,
		Priority: domain.PriorityMedium,
		Title:    "Disclose recordings in the consent process",
		Body:     "Tell participants what is recorded, how recordings are stored and when they are destroyed.",
	},
	"EXP-DECEPTION": {
		Type:     domain.RecommendDocumentation,
		Priority: domain.PriorityMedium,
		Title:    "Attach the debriefing script",
		Body:     "Include the debriefing script and explain how participants can withdraw their data after debriefing.",
	},
	"EXP-SENSITIVE": {
		Type:     domain.RecommendProtection,
		Priority: domain.PriorityMedium,
		Title:    "Consider a Certificate of Confidentiality",
		Body:     "Identifiable data on sensitive topics may warrant a Certificate of Confidentiality and stronger data protections.",
	},
	"EXP-WAIVER": {
		Type:     domain.RecommendDocumentation,
		Priority: domain.PriorityMedium,
		Title:    "Justify the consent waiver",
		Body:     "Address each waiver criterion in 45 CFR 46.116(f), including why the research is impracticable without it.",
	},
}

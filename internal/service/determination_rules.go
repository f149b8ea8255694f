package service

import (
	"fmt"
	"strconv"

	"github.com/irb-determination-server/internal/domain"
)

// DeterminationRule is one declarative entry of the rule catalog. Evaluate
// reports whether the rule fires for the snapshot and, if so, the
// justification shown to the researcher.
type DeterminationRule struct {
	Code          string
	Name          string
	Tier          domain.ReviewType
	Category      string
	CategoryLabel string
	Evaluate      func(s *domain.AnswerSnapshot) (bool, string)
}

// Info returns the rule's catalog entry.
func (r *DeterminationRule) Info() domain.RuleInfo {
	return domain.RuleInfo{
		Code:          r.Code,
		Name:          r.Name,
		Tier:          r.Tier,
		Category:      r.Category,
		CategoryLabel: r.CategoryLabel,
	}
}

// isGate reports whether the rule is a prescreening gate.
func (r *DeterminationRule) isGate() bool {
	return r.Tier == domain.ReviewNotResearch || r.Tier == domain.ReviewNotHumanSubjects
}

// Expedited review limits for blood collection (45 CFR 46.110, category 2).
const (
	maxAdultBloodDrawML  = 550
	maxMinorBloodDrawML  = 50
	maxBloodDrawsPerWeek = 2
	largeEnrollment      = 1000
)

// Methods that keep a study inside exempt category 2.
var exemptCategory2Methods = map[string]bool{
	domain.MethodSurvey:          true,
	domain.MethodInterview:       true,
	domain.MethodFocusGroup:      true,
	domain.MethodObservation:     true,
	domain.MethodEducationalTest: true,
}

// Methods that require contact with participants.
var interactiveMethods = map[string]bool{
	domain.MethodInterview:          true,
	domain.MethodFocusGroup:         true,
	domain.MethodBiospecimen:        true,
	domain.MethodPhysicalMeasures:   true,
	domain.MethodIntervention:       true,
	domain.MethodBenignIntervention: true,
}

// initializeRules declares the catalog in evaluation order. Reasons are
// reported in this order, so gates come first, then triggers from the
// highest tier down.
func (e *DeterminationEngine) initializeRules() {
	// Prescreening gates
	e.addRule("NR-SYSTEMATIC", "Not a systematic investigation", domain.ReviewNotResearch, "", "", evaluateNotSystematic)
	e.addRule("NR-GENERALIZABLE", "Not designed to produce generalizable knowledge", domain.ReviewNotResearch, "", "", evaluateNotGeneralizable)
	e.addRule("NHS-NOT-LIVING", "Does not involve living individuals", domain.ReviewNotHumanSubjects, "", "", evaluateNotLiving)
	e.addRule("NHS-NO-INTERACTION", "No interaction and no identifiable private information", domain.ReviewNotHumanSubjects, "", "", evaluateNoInteractionOrIdentifiers)

	// Full board triggers
	e.addRule("FB-PRISONERS", "Prisoners included", domain.ReviewFullBoard, "", "", evaluatePrisoners)
	e.addRule("FB-MINORS", "Minors included", domain.ReviewFullBoard, "", "", evaluateMinors)
	e.addRule("FB-PREGNANT", "Pregnant women included", domain.ReviewFullBoard, "", "", evaluatePregnantWomen)
	e.addRule("FB-COGNITIVE", "Cognitively impaired adults included", domain.ReviewFullBoard, "", "", evaluateCognitivelyImpaired)
	e.addRule("FB-RISK", "Greater than minimal risk", domain.ReviewFullBoard, "", "", evaluateGreaterThanMinimalRisk)
	e.addRule("FB-DECEPTION", "Deception without debriefing", domain.ReviewFullBoard, "", "", evaluateUndebriefedDeception)
	e.addRule("FB-DRUGS-DEVICES", "Investigational drugs or devices", domain.ReviewFullBoard, "", "", evaluateDrugsOrDevices)
	e.addRule("FB-BLOOD-DRAW", "Blood draw exceeds expedited limits", domain.ReviewFullBoard, "", "", evaluateExcessiveBloodDraw)

	// Expedited categories
	e.addRule("EXP-BIOSPECIMENS", "Biospecimen collection", domain.ReviewExpedited, "2", "Expedited Categories 2-3: Blood samples and noninvasive biospecimens", evaluateBiospecimens)
	e.addRule("EXP-PHYSICAL", "Noninvasive physical measures", domain.ReviewExpedited, "4", "Expedited Category 4: Noninvasive procedures routinely employed in clinical practice", evaluatePhysicalMeasures)
	e.addRule("EXP-RECORDING", "Voice, video or image recordings", domain.ReviewExpedited, "6", "Expedited Category 6: Data from voice, video, digital, or image recordings", evaluateRecording)
	e.addRule("EXP-DECEPTION", "Deception with debriefing", domain.ReviewExpedited, "7", "Expedited Category 7: Research on individual or group behavior", evaluateDebriefedDeception)
	e.addRule("EXP-SENSITIVE", "Identifiable sensitive data", domain.ReviewExpedited, "7", "Expedited Category 7: Research on individual or group behavior", evaluateIdentifiableSensitive)
	e.addRule("EXP-INTERVENTION", "Non-benign intervention", domain.ReviewExpedited, "", "", evaluateIntervention)
	e.addRule("EXP-WAIVER", "Waiver or alteration of consent", domain.ReviewExpedited, "", "", evaluateConsentWaiver)
	e.addRule("EXP-MINIMAL", "Minimal risk outside the exemption categories", domain.ReviewExpedited, "7", "Expedited Category 7: Research on individual or group behavior", evaluateMinimalRiskNotExempt)

	// Exemption categories
	e.addRule("EX-2", "Educational tests, surveys, interviews or observation", domain.ReviewExempt, "2", "Exempt Category 2: Educational tests, surveys, interviews, or observation of public behavior", evaluateExemptCategory2)
	e.addRule("EX-3", "Benign behavioral intervention with adults", domain.ReviewExempt, "3", "Exempt Category 3: Benign behavioral interventions with adult subjects", evaluateExemptCategory3)
	e.addRule("EX-4", "Secondary research use of existing data", domain.ReviewExempt, "4", "Exempt Category 4: Secondary research uses of identifiable information or biospecimens", evaluateExemptCategory4)
}

// addRule is a helper to append a rule to the ordered catalog
func (e *DeterminationEngine) addRule(code, name string, tier domain.ReviewType, category, categoryLabel string, evaluate func(s *domain.AnswerSnapshot) (bool, string)) {
	e.index[code] = len(e.rules)
	e.rules = append(e.rules, &DeterminationRule{
		Code:          code,
		Name:          name,
		Tier:          tier,
		Category:      category,
		CategoryLabel: categoryLabel,
		Evaluate:      evaluate,
	})
}

// Gates

func evaluateNotSystematic(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.SystematicInvestigation).IsNo() {
		return true, "The activity is not a systematic investigation"
	}
	return false, ""
}

func evaluateNotGeneralizable(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.GeneralizableKnowledge).IsNo() {
		return true, "The activity is not designed to contribute to generalizable knowledge"
	}
	return false, ""
}

func evaluateNotLiving(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.InvolvesLivingIndividuals).IsNo() {
		return true, "The research does not involve living individuals"
	}
	return false, ""
}

func evaluateNoInteractionOrIdentifiers(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.InteractionOrIntervention).IsNo() && s.Answer(domain.IdentifiablePrivateInfo).IsNo() {
		return true, "No interaction or intervention with individuals and no identifiable private information is obtained"
	}
	return false, ""
}

// humanSubjectsEvidence lists later answers that show contact with
// participants or identifiable data, in questionnaire order.
func humanSubjectsEvidence(s *domain.AnswerSnapshot) []string {
	var evidence []string
	for _, m := range s.List(domain.Methods) {
		if interactiveMethods[m] {
			evidence = append(evidence, "method "+m)
		}
	}
	if s.Answer(domain.CollectsBiospecimens).IsYes() {
		evidence = append(evidence, "biospecimens are collected")
	}
	if s.Answer(domain.InvolvesRecording).IsYes() {
		evidence = append(evidence, "participants are recorded")
	}
	if s.Answer(domain.CollectsIdentifiers).IsYes() {
		evidence = append(evidence, "identifiers are collected")
	}
	return evidence
}

// Full board

func evaluatePrisoners(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.IncludesPrisoners).IsYes() {
		return true, "Research involving prisoners requires full board review (45 CFR 46 Subpart C)"
	}
	return false, ""
}

func evaluateMinors(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.IncludesMinors).IsYes() {
		return true, "Research involving minors requires full board review (45 CFR 46 Subpart D)"
	}
	return false, ""
}

func evaluatePregnantWomen(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.IncludesPregnantWomen).IsYes() {
		return true, "Research involving pregnant women requires full board review (45 CFR 46 Subpart B)"
	}
	return false, ""
}

func evaluateCognitivelyImpaired(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.IncludesCognitivelyImpaired).IsYes() {
		return true, "Research involving adults with impaired decision-making capacity requires full board review"
	}
	return false, ""
}

func evaluateGreaterThanMinimalRisk(s *domain.AnswerSnapshot) (bool, string) {
	if s.Text(domain.RiskLevel) == domain.RiskGreaterThanMinimal {
		return true, "The study presents greater than minimal risk to participants"
	}
	return false, ""
}

func evaluateUndebriefedDeception(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.InvolvesDeception).IsYes() && s.Answer(domain.DeceptionDebriefing).IsNo() {
		return true, "Deception is used and participants will not be debriefed"
	}
	return false, ""
}

func evaluateDrugsOrDevices(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.InvolvesDrugsOrDevices).IsYes() {
		return true, "The study involves investigational drugs or medical devices"
	}
	return false, ""
}

func evaluateExcessiveBloodDraw(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.CollectsBiospecimens).IsNo() {
		return false, ""
	}
	if volume, ok := s.Number(domain.BloodDrawVolume); ok {
		if s.Answer(domain.IncludesMinors).IsYes() && volume > maxMinorBloodDrawML {
			return true, fmt.Sprintf("Blood draw of %s mL exceeds the %d mL expedited limit for minors", formatNumber(volume), maxMinorBloodDrawML)
		}
		if volume > maxAdultBloodDrawML {
			return true, fmt.Sprintf("Blood draw of %s mL exceeds the %d mL expedited limit", formatNumber(volume), maxAdultBloodDrawML)
		}
	}
	if draws, ok := s.Number(domain.BloodDrawsPerWeek); ok && draws > maxBloodDrawsPerWeek {
		return true, fmt.Sprintf("%s blood draws per week exceeds the expedited limit of %d", formatNumber(draws), maxBloodDrawsPerWeek)
	}
	return false, ""
}

// Expedited

func evaluateBiospecimens(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.CollectsBiospecimens).IsYes() || s.HasItem(domain.Methods, domain.MethodBiospecimen) {
		return true, "Biospecimens are collected within expedited limits"
	}
	return false, ""
}

func evaluatePhysicalMeasures(s *domain.AnswerSnapshot) (bool, string) {
	if s.HasItem(domain.Methods, domain.MethodPhysicalMeasures) {
		return true, "Data are collected through noninvasive physical measures"
	}
	return false, ""
}

func evaluateRecording(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.InvolvesRecording).IsYes() {
		return true, "Participants are recorded (audio, video or images)"
	}
	return false, ""
}

// Deception with debriefing not yet confirmed is held at expedited until the
// researcher answers the debriefing question.
func evaluateDebriefedDeception(s *domain.AnswerSnapshot) (bool, string) {
	if !s.Answer(domain.InvolvesDeception).IsYes() || s.Answer(domain.DeceptionDebriefing).IsNo() {
		return false, ""
	}
	if s.Answer(domain.DeceptionDebriefing).IsYes() {
		return true, "Deception is used with a debriefing procedure"
	}
	return true, "Deception is used and debriefing has not been confirmed"
}

func evaluateIdentifiableSensitive(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.CollectsIdentifiers).IsYes() && s.Answer(domain.SensitiveTopics).IsYes() {
		return true, "Identifiable data are collected on sensitive topics"
	}
	return false, ""
}

func evaluateIntervention(s *domain.AnswerSnapshot) (bool, string) {
	if s.HasItem(domain.Methods, domain.MethodIntervention) {
		return true, "The study includes an intervention that is not limited to benign behavioral tasks"
	}
	return false, ""
}

func evaluateConsentWaiver(s *domain.AnswerSnapshot) (bool, string) {
	if s.Answer(domain.WaiverRequested).IsYes() {
		return true, "A waiver or alteration of informed consent is requested"
	}
	return false, ""
}

func evaluateMinimalRiskNotExempt(s *domain.AnswerSnapshot) (bool, string) {
	if s.Text(domain.RiskLevel) != domain.RiskMinimal {
		return false, ""
	}
	if qualifiesCategory2(s) || qualifiesCategory3(s) || qualifiesCategory4(s) {
		return false, ""
	}
	return true, "Minimal risk research that does not fit an exemption category"
}

// Exempt

func evaluateExemptCategory2(s *domain.AnswerSnapshot) (bool, string) {
	if s.Text(domain.RiskLevel) == domain.RiskMinimal && qualifiesCategory2(s) {
		return true, "Minimal risk surveys, interviews, tests or observation without identifiable sensitive data"
	}
	return false, ""
}

func evaluateExemptCategory3(s *domain.AnswerSnapshot) (bool, string) {
	if s.Text(domain.RiskLevel) == domain.RiskMinimal && qualifiesCategory3(s) {
		return true, "Minimal risk benign behavioral intervention with adult participants"
	}
	return false, ""
}

func evaluateExemptCategory4(s *domain.AnswerSnapshot) (bool, string) {
	if s.Text(domain.RiskLevel) == domain.RiskMinimal && qualifiesCategory4(s) {
		return true, "Secondary research use of existing data"
	}
	return false, ""
}

func qualifiesCategory2(s *domain.AnswerSnapshot) bool {
	methods := s.List(domain.Methods)
	if len(methods) == 0 {
		return false
	}
	for _, m := range methods {
		if !exemptCategory2Methods[m] {
			return false
		}
	}
	return !(s.Answer(domain.CollectsIdentifiers).IsYes() && s.Answer(domain.SensitiveTopics).IsYes())
}

func qualifiesCategory3(s *domain.AnswerSnapshot) bool {
	if !s.HasItem(domain.Methods, domain.MethodBenignIntervention) || !s.Answer(domain.IncludesMinors).IsNo() {
		return false
	}
	for _, m := range s.List(domain.Methods) {
		if m != domain.MethodBenignIntervention && !exemptCategory2Methods[m] {
			return false
		}
	}
	return true
}

func qualifiesCategory4(s *domain.AnswerSnapshot) bool {
	methods := s.List(domain.Methods)
	if len(methods) == 0 {
		return false
	}
	for _, m := range methods {
		if m != domain.MethodExistingData {
			return false
		}
	}
	return true
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

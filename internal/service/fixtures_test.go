package service

import (
	"time"

	"github.com/irb-determination-server/internal/domain"
)

// referenceTime is the clock used by tests that depend on temporal rules.
var referenceTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// surveySnapshot is a complete, internally consistent minimal risk survey
// of adults. It classifies as EXEMPT category 2 with no consistency issues.
func surveySnapshot() *domain.AnswerSnapshot {
	return domain.NewSnapshot().
		Set(domain.SystematicInvestigation, true).
		Set(domain.GeneralizableKnowledge, true).
		Set(domain.InvolvesLivingIndividuals, true).
		Set(domain.InteractionOrIntervention, true).
		Set(domain.IdentifiablePrivateInfo, false).
		Set(domain.FederallyFunded, false).
		Set(domain.PIName, "Dr. Grace Hopper").
		Set(domain.IsStudent, false).
		Set(domain.TrainingCompleted, true).
		Set(domain.TrainingExpiry, "2028-06-30").
		Set(domain.StudyTitle, "Commuting habits of university staff").
		Set(domain.StudyPurpose, "Describe how staff travel to campus").
		Set(domain.StartDate, "2027-01-15").
		Set(domain.EndDate, "2027-12-31").
		Set(domain.IsMultiSite, false).
		Set(domain.TargetEnrollment, "200").
		Set(domain.MinAge, "18").
		Set(domain.MaxAge, "65").
		Set(domain.IncludesMinors, false).
		Set(domain.IncludesPrisoners, false).
		Set(domain.IncludesPregnantWomen, false).
		Set(domain.IncludesCognitivelyImpaired, false).
		Set(domain.RecruitmentMethods, []string{"email"}).
		Set(domain.ProvidesCompensation, false).
		Set(domain.Methods, []string{domain.MethodSurvey}).
		Set(domain.InvolvesDeception, false).
		Set(domain.DeceptionDebriefing, false).
		Set(domain.CollectsBiospecimens, false).
		Set(domain.InvolvesRecording, false).
		Set(domain.InvolvesDrugsOrDevices, false).
		Set(domain.RiskLevel, domain.RiskMinimal).
		Set(domain.PhysicalRisks, false).
		Set(domain.PsychologicalRisks, false).
		Set(domain.SensitiveTopics, false).
		Set(domain.AnonymousData, true).
		Set(domain.CollectsIdentifiers, false).
		Set(domain.SharesData, false).
		Set(domain.ConsentType, "online information sheet").
		Set(domain.WaiverRequested, false).
		Set(domain.ConsentProcess, "Participants read an information sheet before starting the survey.")
}

func traceCodes(result *domain.DeterminationResult) []string {
	codes := make([]string, 0, len(result.Trace))
	for _, f := range result.Trace {
		codes = append(codes, f.Code)
	}
	return codes
}

func issueRuleIDs(issues []domain.ConsistencyIssue) []string {
	ids := make([]string, 0, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.RuleID)
	}
	return ids
}

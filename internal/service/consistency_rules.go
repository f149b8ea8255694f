package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/irb-determination-server/internal/domain"
)

// RuleClass groups consistency rules by the kind of check they perform.
type RuleClass string

const (
	ClassRange         RuleClass = "range"
	ClassContradiction RuleClass = "contradiction"
	ClassThreshold     RuleClass = "threshold"
	ClassRequiresText  RuleClass = "requires_text"
	ClassExclusivity   RuleClass = "exclusivity"
	ClassTemporal      RuleClass = "temporal"
	ClassRole          RuleClass = "role"
	ClassDisclosure    RuleClass = "disclosure"
	ClassQuality       RuleClass = "quality"
)

const (
	adultAge                 = 18
	minCompensationDetailLen = 20
	minRiskMitigationLen     = 30
)

// finding is what a rule reports; the checker adds the rule's location.
type finding struct {
	severity domain.Severity
	title    string
	message  string
}

func errorf(title, format string, args ...any) *finding {
	return &finding{severity: domain.SeverityError, title: title, message: fmt.Sprintf(format, args...)}
}

func warnf(title, format string, args ...any) *finding {
	return &finding{severity: domain.SeverityWarning, title: title, message: fmt.Sprintf(format, args...)}
}

// ConsistencyRule is an independent check that yields zero or one issue.
type ConsistencyRule struct {
	ID      string
	Class   RuleClass
	Section domain.Section
	Field   string
	Check   func(s *domain.AnswerSnapshot, now time.Time) *finding
}

// ConsistencyRuleInfo describes a consistency rule for listings.
type ConsistencyRuleInfo struct {
	ID      string         `json:"id"`
	Class   RuleClass      `json:"class"`
	Section domain.Section `json:"section"`
	Field   string         `json:"field"`
}

func consistencyRule(id string, class RuleClass, ref domain.FieldRef, check func(s *domain.AnswerSnapshot, now time.Time) *finding) *ConsistencyRule {
	return &ConsistencyRule{ID: id, Class: class, Section: ref.Section, Field: ref.Name, Check: check}
}

// consistencyRules returns the rules in declaration order, which is also
// the order issues are reported in.
func consistencyRules() []*ConsistencyRule {
	return []*ConsistencyRule{
		consistencyRule("age-range", ClassRange, domain.MinAge, checkAgeRange),
		consistencyRule("minors-age", ClassContradiction, domain.IncludesMinors, checkMinorsAgeAgreement),
		consistencyRule("blood-draw-adult-limit", ClassThreshold, domain.BloodDrawVolume, checkAdultBloodDraw),
		consistencyRule("blood-draw-minor-limit", ClassThreshold, domain.BloodDrawVolume, checkMinorBloodDraw),
		consistencyRule("blood-draw-volume-missing", ClassThreshold, domain.BloodDrawVolume, checkBloodDrawVolumeMissing),
		consistencyRule("blood-draw-frequency", ClassThreshold, domain.BloodDrawsPerWeek, checkBloodDrawFrequency),
		consistencyRule("deception-debriefing", ClassContradiction, domain.DeceptionDebriefing, checkDeceptionDebriefing),
		consistencyRule("debriefing-plan", ClassRequiresText, domain.DebriefingPlan, checkDebriefingPlan),
		consistencyRule("recording-disclosure", ClassRequiresText, domain.ConsentProcess, checkRecordingDisclosure),
		consistencyRule("waiver-justification", ClassRequiresText, domain.WaiverJustification, checkWaiverJustification),
		consistencyRule("data-security-plan", ClassRequiresText, domain.DataSecurityPlan, checkDataSecurityPlan),
		consistencyRule("anonymous-identifiers", ClassExclusivity, domain.AnonymousData, checkAnonymousIdentifiers),
		consistencyRule("anonymous-recordings", ClassExclusivity, domain.AnonymousData, checkAnonymousRecordings),
		consistencyRule("training-expiry", ClassTemporal, domain.TrainingExpiry, checkTrainingExpiry),
		consistencyRule("end-before-start", ClassTemporal, domain.EndDate, checkEndBeforeStart),
		consistencyRule("start-in-past", ClassTemporal, domain.StartDate, checkStartInPast),
		consistencyRule("student-advisor", ClassRole, domain.HasFacultyAdvisor, checkStudentAdvisor),
		consistencyRule("advisor-name", ClassRole, domain.AdvisorName, checkAdvisorName),
		consistencyRule("parental-permission", ClassRole, domain.ParentalPermission, checkParentalPermission),
		consistencyRule("subpart-c-prisoners", ClassDisclosure, domain.IncludesPrisoners, checkPrisonerDisclosure),
		consistencyRule("subpart-b-pregnant-women", ClassDisclosure, domain.IncludesPregnantWomen, checkPregnancyDisclosure),
		consistencyRule("subpart-d-minors", ClassDisclosure, domain.IncludesMinors, checkMinorDisclosure),
		consistencyRule("compensation-details", ClassQuality, domain.CompensationDetails, checkCompensationDetails),
		consistencyRule("risk-mitigation", ClassQuality, domain.RiskMitigation, checkRiskMitigation),
	}
}

// Range

func checkAgeRange(s *domain.AnswerSnapshot, _ time.Time) *finding {
	minAge, okMin := s.Number(domain.MinAge)
	maxAge, okMax := s.Number(domain.MaxAge)
	if !okMin || !okMax || minAge <= maxAge {
		return nil
	}
	return errorf("Age Range Conflict",
		"Minimum age (%s) is greater than maximum age (%s).", formatNumber(minAge), formatNumber(maxAge))
}

// Contradictions

func checkMinorsAgeAgreement(s *domain.AnswerSnapshot, _ time.Time) *finding {
	minors := s.Answer(domain.IncludesMinors)
	if maxAge, ok := s.Number(domain.MaxAge); ok && maxAge < adultAge && minors.IsNo() {
		return errorf("Minors Inconsistency",
			"Maximum age is %s, so every participant is a minor, but the study is marked as not including minors.", formatNumber(maxAge))
	}
	minAge, ok := s.Number(domain.MinAge)
	if !ok {
		return nil
	}
	switch {
	case minAge < adultAge && minors.IsNo():
		return errorf("Minors Inconsistency",
			"Minimum age is %s, which includes minors, but the study is marked as not including minors.", formatNumber(minAge))
	case minAge == adultAge && minors.IsYes():
		return warnf("Minors Inconsistency",
			"Minimum age is 18 but the study is marked as including minors. Confirm whether anyone under 18 will enroll.")
	case minAge > adultAge && minors.IsYes():
		return errorf("Minors Inconsistency",
			"Minimum age is %s, so no minors can enroll, but the study is marked as including minors.", formatNumber(minAge))
	}
	return nil
}

func checkDeceptionDebriefing(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.InvolvesDeception).IsYes() {
		return nil
	}
	switch s.Answer(domain.DeceptionDebriefing) {
	case domain.No:
		return errorf("Deception Without Debriefing",
			"The study uses deception but participants will not be debriefed. Debriefing is required unless the IRB approves an alteration of consent.")
	case domain.Unanswered:
		return warnf("Debriefing Not Specified",
			"The study uses deception. Indicate whether participants will be debriefed.")
	}
	return nil
}

// Thresholds

func checkAdultBloodDraw(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.CollectsBiospecimens).IsYes() {
		return nil
	}
	volume, ok := s.Number(domain.BloodDrawVolume)
	if !ok || volume <= maxAdultBloodDrawML {
		return nil
	}
	return errorf("Blood Draw Exceeds Limit",
		"Blood draw volume of %s mL exceeds the %d mL limit for expedited review.", formatNumber(volume), maxAdultBloodDrawML)
}

func checkMinorBloodDraw(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.CollectsBiospecimens).IsYes() || !s.Answer(domain.IncludesMinors).IsYes() {
		return nil
	}
	volume, ok := s.Number(domain.BloodDrawVolume)
	if !ok || volume <= maxMinorBloodDrawML {
		return nil
	}
	return errorf("Blood Draw Exceeds Pediatric Limit",
		"Blood draw volume of %s mL exceeds the %d mL limit for minors.", formatNumber(volume), maxMinorBloodDrawML)
}

func checkBloodDrawVolumeMissing(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.CollectsBiospecimens).IsYes() || s.IsAnswered(domain.BloodDrawVolume) {
		return nil
	}
	return warnf("Blood Draw Volume Missing",
		"Biospecimens are collected but no valid blood draw volume is given. Enter the volume in mL, or 0 if no blood is drawn.")
}

func checkBloodDrawFrequency(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.CollectsBiospecimens).IsYes() {
		return nil
	}
	draws, ok := s.Number(domain.BloodDrawsPerWeek)
	if !ok || draws <= maxBloodDrawsPerWeek {
		return nil
	}
	return errorf("Blood Draw Frequency Exceeds Limit",
		"%s blood draws per week exceeds the limit of %d for expedited review.", formatNumber(draws), maxBloodDrawsPerWeek)
}

// Conditional text

func checkDebriefingPlan(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.InvolvesDeception).IsYes() || !s.Answer(domain.DeceptionDebriefing).IsYes() {
		return nil
	}
	if s.Text(domain.DebriefingPlan) != "" {
		return nil
	}
	return errorf("Debriefing Plan Required",
		"Describe how and when participants will be debriefed about the deception.")
}

func checkRecordingDisclosure(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.InvolvesRecording).IsYes() {
		return nil
	}
	if strings.Contains(strings.ToLower(s.Text(domain.ConsentProcess)), "record") {
		return nil
	}
	return warnf("Recording Not Disclosed",
		"Participants will be recorded, but the consent process does not mention recording.")
}

func checkWaiverJustification(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.WaiverRequested).IsYes() || s.Text(domain.WaiverJustification) != "" {
		return nil
	}
	return errorf("Waiver Justification Required",
		"A consent waiver is requested but no justification is provided.")
}

func checkDataSecurityPlan(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.CollectsIdentifiers).IsYes() || s.Text(domain.DataSecurityPlan) != "" {
		return nil
	}
	return warnf("Data Security Plan Missing",
		"Identifiers are collected. Describe how identifiable data will be protected.")
}

// Mutual exclusivity

func checkAnonymousIdentifiers(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.AnonymousData).IsYes() || !s.Answer(domain.CollectsIdentifiers).IsYes() {
		return nil
	}
	return errorf("Anonymity Conflict",
		"Data are marked as anonymous, but identifiers are collected. Anonymous data cannot contain identifiers.")
}

func checkAnonymousRecordings(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.AnonymousData).IsYes() || !s.Answer(domain.InvolvesRecording).IsYes() {
		return nil
	}
	return warnf("Anonymity and Recordings",
		"Data are marked as anonymous, but participants are recorded. Voices and images can identify participants.")
}

// Temporal

func checkTrainingExpiry(s *domain.AnswerSnapshot, _ time.Time) *finding {
	expiry, okExpiry := s.Date(domain.TrainingExpiry)
	start, okStart := s.Date(domain.StartDate)
	if !okExpiry || !okStart || !expiry.Before(start) {
		return nil
	}
	return errorf("Training Expires Before Study Start",
		"Human subjects training expires on %s, before the study starts on %s. Renew training before submitting.",
		expiry.Format(domain.DateLayout), start.Format(domain.DateLayout))
}

func checkEndBeforeStart(s *domain.AnswerSnapshot, _ time.Time) *finding {
	start, okStart := s.Date(domain.StartDate)
	end, okEnd := s.Date(domain.EndDate)
	if !okStart || !okEnd || !end.Before(start) {
		return nil
	}
	return errorf("Invalid Study Dates",
		"The end date (%s) is before the start date (%s).", end.Format(domain.DateLayout), start.Format(domain.DateLayout))
}

func checkStartInPast(s *domain.AnswerSnapshot, now time.Time) *finding {
	start, ok := s.Date(domain.StartDate)
	if !ok {
		return nil
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !start.Before(today) {
		return nil
	}
	return warnf("Start Date In The Past",
		"The start date (%s) has passed. Research cannot begin before IRB approval.", start.Format(domain.DateLayout))
}

// Role dependency

func checkStudentAdvisor(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.IsStudent).IsYes() || !s.Answer(domain.HasFacultyAdvisor).IsNo() {
		return nil
	}
	return errorf("Faculty Advisor Required",
		"Student researchers must have a faculty advisor.")
}

func checkAdvisorName(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.HasFacultyAdvisor).IsYes() || s.Text(domain.AdvisorName) != "" {
		return nil
	}
	return warnf("Advisor Name Missing",
		"Enter the name of your faculty advisor.")
}

func checkParentalPermission(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.IncludesMinors).IsYes() || !s.Answer(domain.ParentalPermission).IsNo() {
		return nil
	}
	return errorf("Parental Permission Required",
		"Minors are included but parental permission will not be obtained. A waiver of parental permission must be justified to the IRB.")
}

// Population disclosures

func checkPrisonerDisclosure(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.IncludesPrisoners).IsYes() {
		return nil
	}
	return warnf("Subpart C Applies",
		"Research with prisoners must meet the additional protections of 45 CFR 46 Subpart C.")
}

func checkPregnancyDisclosure(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.IncludesPregnantWomen).IsYes() {
		return nil
	}
	return warnf("Subpart B Applies",
		"Research with pregnant women must meet the additional protections of 45 CFR 46 Subpart B.")
}

func checkMinorDisclosure(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if !s.Answer(domain.IncludesMinors).IsYes() {
		return nil
	}
	return warnf("Subpart D Applies",
		"Research with children must meet the additional protections of 45 CFR 46 Subpart D.")
}

// Quality

func checkCompensationDetails(s *domain.AnswerSnapshot, _ time.Time) *finding {
	details := s.Text(domain.CompensationDetails)
	switch {
	case details == "" && s.Answer(domain.ProvidesCompensation).IsYes():
		return warnf("Compensation Details Missing",
			"Compensation is provided. Describe the amount, form and payment schedule.")
	case details != "" && utf8.RuneCountInString(details) < minCompensationDetailLen:
		return warnf("Compensation Details Too Brief",
			"Compensation details should state the amount, form and schedule of payment.")
	}
	return nil
}

func checkRiskMitigation(s *domain.AnswerSnapshot, _ time.Time) *finding {
	if s.Text(domain.RiskLevel) != domain.RiskGreaterThanMinimal {
		return nil
	}
	mitigation := s.Text(domain.RiskMitigation)
	switch {
	case mitigation == "":
		return warnf("Risk Mitigation Missing",
			"The study is greater than minimal risk. Describe how each risk will be minimized.")
	case utf8.RuneCountInString(mitigation) < minRiskMitigationLen:
		return warnf("Risk Mitigation Too Brief",
			"The risk mitigation description is brief for a greater than minimal risk study. Describe each risk and how it is minimized.")
	}
	return nil
}

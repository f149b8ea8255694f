package domain

// Section is a top-level questionnaire section. Section names double as the
// wizard's step keys, so consistency issues can route the user back.
type Section string

const (
	SectionPrescreening Section = "prescreening"
	SectionResearcher   Section = "researcher"
	SectionStudy        Section = "study"
	SectionSubjects     Section = "subjects"
	SectionProcedures   Section = "procedures"
	SectionRisks        Section = "risks"
	SectionData         Section = "data"
	SectionConsent      Section = "consent"
)

// Sections lists every section in wizard order.
var Sections = []Section{
	SectionPrescreening,
	SectionResearcher,
	SectionStudy,
	SectionSubjects,
	SectionProcedures,
	SectionRisks,
	SectionData,
	SectionConsent,
}

// IsValid reports whether s is one of the wizard sections.
func (s Section) IsValid() bool {
	for _, known := range Sections {
		if s == known {
			return true
		}
	}
	return false
}

// Title returns the step heading shown to the researcher.
func (s Section) Title() string {
	switch s {
	case SectionPrescreening:
		return "Prescreening"
	case SectionResearcher:
		return "Researcher Information"
	case SectionStudy:
		return "Study Details"
	case SectionSubjects:
		return "Subjects & Recruitment"
	case SectionProcedures:
		return "Procedures"
	case SectionRisks:
		return "Risks & Benefits"
	case SectionData:
		return "Data Management"
	case SectionConsent:
		return "Informed Consent"
	default:
		return string(s)
	}
}

// FieldRef addresses one field of the snapshot.
type FieldRef struct {
	Section Section   `json:"section"`
	Name    string    `json:"field"`
	Kind    FieldKind `json:"kind"`
}

// String returns "section.field".
func (f FieldRef) String() string {
	return string(f.Section) + "." + f.Name
}

func field(section Section, name string, kind FieldKind) FieldRef {
	return FieldRef{Section: section, Name: name, Kind: kind}
}

// Prescreening
var (
	SystematicInvestigation   = field(SectionPrescreening, "systematicInvestigation", KindAnswer)
	GeneralizableKnowledge    = field(SectionPrescreening, "generalizableKnowledge", KindAnswer)
	InvolvesLivingIndividuals = field(SectionPrescreening, "involvesLivingIndividuals", KindAnswer)
	InteractionOrIntervention = field(SectionPrescreening, "interactionOrIntervention", KindAnswer)
	IdentifiablePrivateInfo   = field(SectionPrescreening, "identifiablePrivateInfo", KindAnswer)
	FederallyFunded           = field(SectionPrescreening, "federallyFunded", KindAnswer)
)

// Researcher
var (
	PIName            = field(SectionResearcher, "piName", KindText)
	IsStudent         = field(SectionResearcher, "isStudent", KindAnswer)
	HasFacultyAdvisor = field(SectionResearcher, "hasFacultyAdvisor", KindAnswer)
	AdvisorName       = field(SectionResearcher, "advisorName", KindText)
	TrainingCompleted = field(SectionResearcher, "trainingCompleted", KindAnswer)
	TrainingExpiry    = field(SectionResearcher, "trainingExpiry", KindDate)
)

// Study
var (
	StudyTitle   = field(SectionStudy, "title", KindText)
	StudyPurpose = field(SectionStudy, "purpose", KindText)
	StartDate    = field(SectionStudy, "startDate", KindDate)
	EndDate      = field(SectionStudy, "endDate", KindDate)
	IsMultiSite  = field(SectionStudy, "isMultiSite", KindAnswer)
)

// Subjects
var (
	TargetEnrollment            = field(SectionSubjects, "targetEnrollment", KindNumber)
	MinAge                      = field(SectionSubjects, "minAge", KindNumber)
	MaxAge                      = field(SectionSubjects, "maxAge", KindNumber)
	IncludesMinors              = field(SectionSubjects, "includesMinors", KindAnswer)
	IncludesPrisoners           = field(SectionSubjects, "includesPrisoners", KindAnswer)
	IncludesPregnantWomen       = field(SectionSubjects, "includesPregnantWomen", KindAnswer)
	IncludesCognitivelyImpaired = field(SectionSubjects, "includesCognitivelyImpaired", KindAnswer)
	RecruitmentMethods          = field(SectionSubjects, "recruitmentMethods", KindList)
	ProvidesCompensation        = field(SectionSubjects, "providesCompensation", KindAnswer)
	CompensationDetails         = field(SectionSubjects, "compensationDetails", KindText)
)

// Procedures
var (
	Methods                = field(SectionProcedures, "methods", KindList)
	InvolvesDeception      = field(SectionProcedures, "involvesDeception", KindAnswer)
	DeceptionDebriefing    = field(SectionProcedures, "deceptionDebriefing", KindAnswer)
	DebriefingPlan         = field(SectionProcedures, "debriefingPlan", KindText)
	CollectsBiospecimens   = field(SectionProcedures, "collectsBiospecimens", KindAnswer)
	BloodDrawVolume        = field(SectionProcedures, "bloodDrawVolume", KindNumber)
	BloodDrawsPerWeek      = field(SectionProcedures, "bloodDrawsPerWeek", KindNumber)
	InvolvesRecording      = field(SectionProcedures, "involvesRecording", KindAnswer)
	InvolvesDrugsOrDevices = field(SectionProcedures, "involvesDrugsOrDevices", KindAnswer)
)

// Risks
var (
	RiskLevel          = field(SectionRisks, "riskLevel", KindText)
	PhysicalRisks      = field(SectionRisks, "physicalRisks", KindAnswer)
	PsychologicalRisks = field(SectionRisks, "psychologicalRisks", KindAnswer)
	SensitiveTopics    = field(SectionRisks, "sensitiveTopics", KindAnswer)
	RiskMitigation     = field(SectionRisks, "riskMitigation", KindText)
)

// Data
var (
	AnonymousData       = field(SectionData, "anonymousData", KindAnswer)
	CollectsIdentifiers = field(SectionData, "collectsIdentifiers", KindAnswer)
	IdentifierTypes     = field(SectionData, "identifierTypes", KindList)
	DataSecurityPlan    = field(SectionData, "dataSecurityPlan", KindText)
	SharesData          = field(SectionData, "sharesData", KindAnswer)
)

// Consent
var (
	ConsentType         = field(SectionConsent, "consentType", KindText)
	WaiverRequested     = field(SectionConsent, "waiverRequested", KindAnswer)
	WaiverJustification = field(SectionConsent, "waiverJustification", KindText)
	ConsentProcess      = field(SectionConsent, "consentProcess", KindText)
	ParentalPermission  = field(SectionConsent, "parentalPermission", KindAnswer)
	ChildAssent         = field(SectionConsent, "childAssent", KindAnswer)
)

// Catalog is the full field list. NewSnapshot shapes every snapshot from it.
var Catalog = []FieldRef{
	SystematicInvestigation, GeneralizableKnowledge, InvolvesLivingIndividuals,
	InteractionOrIntervention, IdentifiablePrivateInfo, FederallyFunded,

	PIName, IsStudent, HasFacultyAdvisor, AdvisorName, TrainingCompleted, TrainingExpiry,

	StudyTitle, StudyPurpose, StartDate, EndDate, IsMultiSite,

	TargetEnrollment, MinAge, MaxAge, IncludesMinors, IncludesPrisoners,
	IncludesPregnantWomen, IncludesCognitivelyImpaired, RecruitmentMethods,
	ProvidesCompensation, CompensationDetails,

	Methods, InvolvesDeception, DeceptionDebriefing, DebriefingPlan,
	CollectsBiospecimens, BloodDrawVolume, BloodDrawsPerWeek, InvolvesRecording,
	InvolvesDrugsOrDevices,

	RiskLevel, PhysicalRisks, PsychologicalRisks, SensitiveTopics, RiskMitigation,

	AnonymousData, CollectsIdentifiers, IdentifierTypes, DataSecurityPlan, SharesData,

	ConsentType, WaiverRequested, WaiverJustification, ConsentProcess,
	ParentalPermission, ChildAssent,
}

// LookupField finds a catalog field by section and name.
func LookupField(section Section, name string) (FieldRef, bool) {
	for _, f := range Catalog {
		if f.Section == section && f.Name == name {
			return f, true
		}
	}
	return FieldRef{}, false
}

// Risk level answers.
const (
	RiskMinimal            = "minimal"
	RiskGreaterThanMinimal = "greater_than_minimal"
)

// Procedure method tokens used by the multi-select on the procedures step.
const (
	MethodSurvey             = "survey"
	MethodInterview          = "interview"
	MethodFocusGroup         = "focus_group"
	MethodObservation        = "observation"
	MethodEducationalTest    = "educational_test"
	MethodExistingData       = "existing_data"
	MethodBenignIntervention = "benign_intervention"
	MethodIntervention       = "intervention"
	MethodPhysicalMeasures   = "physical_measures"
	MethodBiospecimen        = "biospecimen"
)

package domain

// ReviewType is the regulatory review tier a submission requires.
type ReviewType string

const (
	ReviewNotResearch      ReviewType = "NOT_RESEARCH"
	ReviewNotHumanSubjects ReviewType = "NOT_HUMAN_SUBJECTS"
	ReviewExempt           ReviewType = "EXEMPT"
	ReviewExpedited        ReviewType = "EXPEDITED"
	ReviewFullBoard        ReviewType = "FULL_BOARD"
	ReviewInsufficientInfo ReviewType = "INSUFFICIENT_INFO"
)

// ReviewTypeInfo is the presentation metadata for a review tier.
type ReviewTypeInfo struct {
	Type            ReviewType `json:"type"`
	Label           string     `json:"label"`
	Description     string     `json:"description"`
	Color           string     `json:"color"`
	OversightLevel  int        `json:"oversightLevel"`
	TypicalTimeline string     `json:"typicalTimeline"`
}

// UnknownReviewTypeInfo is returned for values outside the enum.
var UnknownReviewTypeInfo = ReviewTypeInfo{
	Label:           "Unknown",
	Description:     "The review type could not be determined.",
	Color:           "gray",
	OversightLevel:  -1,
	TypicalTimeline: "Unknown",
}

var reviewTypeInfo = map[ReviewType]ReviewTypeInfo{
	ReviewNotResearch: {
		Type:            ReviewNotResearch,
		Label:           "Not Research",
		Description:     "The activity does not meet the regulatory definition of research and does not require IRB review.",
		Color:           "gray",
		OversightLevel:  0,
		TypicalTimeline: "No review required",
	},
	ReviewNotHumanSubjects: {
		Type:            ReviewNotHumanSubjects,
		Label:           "Not Human Subjects Research",
		Description:     "The research does not involve human subjects as defined by 45 CFR 46.102.",
		Color:           "slate",
		OversightLevel:  0,
		TypicalTimeline: "1-3 business days for confirmation",
	},
	ReviewExempt: {
		Type:            ReviewExempt,
		Label:           "Exempt Review",
		Description:     "Minimal risk research that falls into one of the exemption categories under 45 CFR 46.104.",
		Color:           "green",
		OversightLevel:  1,
		TypicalTimeline: "1-2 weeks",
	},
	ReviewExpedited: {
		Type:            ReviewExpedited,
		Label:           "Expedited Review",
		Description:     "Minimal risk research reviewed by a single designated IRB member under 45 CFR 46.110.",
		Color:           "amber",
		OversightLevel:  2,
		TypicalTimeline: "2-4 weeks",
	},
	ReviewFullBoard: {
		Type:            ReviewFullBoard,
		Label:           "Full Board Review",
		Description:     "Greater than minimal risk research or research with vulnerable populations, reviewed at a convened IRB meeting.",
		Color:           "red",
		OversightLevel:  3,
		TypicalTimeline: "4-8 weeks",
	},
	ReviewInsufficientInfo: {
		Type:            ReviewInsufficientInfo,
		Label:           "More Information Needed",
		Description:     "Required questions are unanswered, so the review type cannot be determined yet.",
		Color:           "blue",
		OversightLevel:  -1,
		TypicalTimeline: "Complete the questionnaire to see an estimate",
	},
}

// Info returns the metadata for the review type, or UnknownReviewTypeInfo.
func (r ReviewType) Info() ReviewTypeInfo {
	if info, ok := reviewTypeInfo[r]; ok {
		return info
	}
	unknown := UnknownReviewTypeInfo
	unknown.Type = r
	return unknown
}

// OversightLevel orders tiers by how much review they require.
// INSUFFICIENT_INFO and unknown values rank below every tier.
func (r ReviewType) OversightLevel() int {
	return r.Info().OversightLevel
}

// IsValid reports whether r is a member of the enum.
func (r ReviewType) IsValid() bool {
	_, ok := reviewTypeInfo[r]
	return ok
}

// ReviewTypes lists the enum in ascending oversight order.
func ReviewTypes() []ReviewType {
	return []ReviewType{
		ReviewNotResearch,
		ReviewNotHumanSubjects,
		ReviewExempt,
		ReviewExpedited,
		ReviewFullBoard,
		ReviewInsufficientInfo,
	}
}

// Priority ranks recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// RecommendationType groups recommendations for display.
type RecommendationType string

const (
	RecommendReviewPath    RecommendationType = "review_path"
	RecommendMissingInfo   RecommendationType = "missing_info"
	RecommendExemption     RecommendationType = "exemption"
	RecommendDocumentation RecommendationType = "documentation"
	RecommendProtection    RecommendationType = "protection"
	RecommendTimeline      RecommendationType = "timeline"
)

// Recommendation is an advisory next step for the researcher.
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Priority Priority           `json:"priority"`
	Title    string             `json:"title"`
	Body     string             `json:"body"`
}

// Flag is a secondary concern raised alongside a determination.
type Flag struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// RuleFiring records one rule that fired during classification.
type RuleFiring struct {
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	Tier     ReviewType `json:"tier"`
	Category string     `json:"category,omitempty"`
	Reason   string     `json:"reason"`
}

// DeterminationResult is the classifier's verdict for one snapshot.
type DeterminationResult struct {
	Type            ReviewType       `json:"type"`
	Category        string           `json:"category,omitempty"`
	CategoryLabel   string           `json:"categoryLabel,omitempty"`
	Reasons         []string         `json:"reasons"`
	Confidence      float64          `json:"confidence"`
	Recommendations []Recommendation `json:"recommendations"`
	Flags           []Flag           `json:"flags"`
	Trace           []RuleFiring     `json:"trace"`
}

// Info is shorthand for r.Type.Info().
func (r *DeterminationResult) Info() ReviewTypeInfo {
	return r.Type.Info()
}

// RuleInfo describes one determination rule in the catalog.
type RuleInfo struct {
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Tier          ReviewType `json:"tier"`
	Category      string     `json:"category,omitempty"`
	CategoryLabel string     `json:"categoryLabel,omitempty"`
}

// RuleEvaluation is the outcome of evaluating a single rule in isolation.
type RuleEvaluation struct {
	RuleInfo
	Fired  bool   `json:"fired"`
	Reason string `json:"reason,omitempty"`
}

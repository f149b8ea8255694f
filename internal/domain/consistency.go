package domain

// Severity grades a consistency issue or determination flag.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ConsistencyIssue is one contradiction or gap found in a snapshot. Section
// is always a wizard step key so the UI can route the user back.
type ConsistencyIssue struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Section  Section  `json:"section"`
	Field    string   `json:"field"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// IssueSummary counts issues by severity.
type IssueSummary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// Total returns the number of issues counted.
func (s IssueSummary) Total() int {
	return s.Errors + s.Warnings + s.Infos
}

// Summarize counts issues by severity.
func Summarize(issues []ConsistencyIssue) IssueSummary {
	var s IssueSummary
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		case SeverityInfo:
			s.Infos++
		}
	}
	return s
}

// FilterBySeverity returns the issues with the given severity, in order.
func FilterBySeverity(issues []ConsistencyIssue, severity Severity) []ConsistencyIssue {
	out := make([]ConsistencyIssue, 0, len(issues))
	for _, issue := range issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}

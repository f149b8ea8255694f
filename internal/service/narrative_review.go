package service

import (
	"github.com/irb-determination-server/internal/domain"
)

// narrativeFields is the subset of the snapshot an external narrative
// reviewer receives. Researcher identity fields are never included.
var narrativeFields = []domain.FieldRef{
	domain.StudyTitle,
	domain.StudyPurpose,
	domain.TargetEnrollment,
	domain.MinAge,
	domain.MaxAge,
	domain.RecruitmentMethods,
	domain.CompensationDetails,
	domain.Methods,
	domain.DebriefingPlan,
	domain.RiskLevel,
	domain.RiskMitigation,
	domain.IdentifierTypes,
	domain.DataSecurityPlan,
	domain.ConsentType,
	domain.ConsentProcess,
	domain.WaiverJustification,
}

// NarrativeReviewRequest is the payload handed to an external narrative
// reviewer. Building it performs no I/O.
type NarrativeReviewRequest struct {
	Sections   map[domain.Section]map[string]any `json:"sections"`
	RulesBased *RulesBasedContext                `json:"rulesBased,omitempty"`
}

// RulesBasedContext summarizes the engine's determination for the reviewer.
type RulesBasedContext struct {
	Type          domain.ReviewType `json:"type"`
	Label         string            `json:"label"`
	Category      string            `json:"category,omitempty"`
	CategoryLabel string            `json:"categoryLabel,omitempty"`
	Reasons       []string          `json:"reasons"`
	Confidence    float64           `json:"confidence"`
}

// BuildNarrativeReviewRequest filters the snapshot down to its narrative
// fields and attaches the determination as context when one is given.
// Unanswered fields are left out.
func BuildNarrativeReviewRequest(snapshot *domain.AnswerSnapshot, result *domain.DeterminationResult) *NarrativeReviewRequest {
	req := &NarrativeReviewRequest{
		Sections: make(map[domain.Section]map[string]any),
	}

	for _, ref := range narrativeFields {
		if !snapshot.IsAnswered(ref) {
			continue
		}
		section, ok := req.Sections[ref.Section]
		if !ok {
			section = make(map[string]any)
			req.Sections[ref.Section] = section
		}
		switch ref.Kind {
		case domain.KindList:
			section[ref.Name] = snapshot.List(ref)
		case domain.KindNumber:
			n, _ := snapshot.Number(ref)
			section[ref.Name] = n
		default:
			section[ref.Name] = snapshot.Text(ref)
		}
	}

	if result != nil {
		req.RulesBased = &RulesBasedContext{
			Type:          result.Type,
			Label:         result.Type.Info().Label,
			Category:      result.Category,
			CategoryLabel: result.CategoryLabel,
			Reasons:       append([]string{}, result.Reasons...),
			Confidence:    result.Confidence,
		}
	}

	return req
}

package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/domain"
	"github.com/irb-determination-server/internal/service"
)

// AnswersParams carries a protocol's answers, keyed section -> field
type AnswersParams struct {
	Answers map[string]any `json:"answers" jsonschema:"protocol answers keyed by section then field"`
}

// AssessSubmissionParams defines parameters for the assess_submission tool
type AssessSubmissionParams struct {
	SubmissionID string         `json:"submission_id,omitempty" jsonschema:"identifier of the submission being assessed"`
	Answers      map[string]any `json:"answers" jsonschema:"protocol answers keyed by section then field"`
}

// ApplyRuleParams defines parameters for the apply_rule tool
type ApplyRuleParams struct {
	Rule    string         `json:"rule" jsonschema:"determination rule code, for example FB-PRISONERS"`
	Answers map[string]any `json:"answers" jsonschema:"protocol answers keyed by section then field"`
}

// ListReviewTypesParams defines parameters for the list_review_types tool
type ListReviewTypesParams struct {
	IncludeRules bool `json:"include_rules,omitempty" jsonschema:"also list the determination and consistency rule catalogs"`
}

// NarrativeReviewParams defines parameters for the build_narrative_review tool
type NarrativeReviewParams struct {
	Answers           map[string]any `json:"answers" jsonschema:"protocol answers keyed by section then field"`
	SkipDetermination bool           `json:"skip_determination,omitempty" jsonschema:"omit the rules-based determination from the payload"`
}

// DetermineReviewTypeResult defines the result of determine_review_type
type DetermineReviewTypeResult struct {
	*domain.DeterminationResult
	ReviewType domain.ReviewTypeInfo `json:"reviewType"`
}

// ConsistencyResult defines the result of check_consistency
type ConsistencyResult struct {
	Issues  []domain.ConsistencyIssue `json:"issues"`
	Summary domain.IssueSummary       `json:"summary"`
}

// ReviewTypesResult defines the result of list_review_types
type ReviewTypesResult struct {
	ReviewTypes        []domain.ReviewTypeInfo       `json:"reviewTypes"`
	DeterminationRules []domain.RuleInfo             `json:"determinationRules,omitempty"`
	ConsistencyRules   []service.ConsistencyRuleInfo `json:"consistencyRules,omitempty"`
}

func (s *Server) handleDetermineReviewType(ctx context.Context, req *mcp.CallToolRequest, params AnswersParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "determine_review_type").Info("Tool invoked")

	result := s.assessments.Classify(ctx, domain.SnapshotFromMap(params.Answers))
	info := result.Info()

	summary := fmt.Sprintf("Review type: %s (confidence %.2f)", info.Label, result.Confidence)
	if result.CategoryLabel != "" {
		summary += ". " + result.CategoryLabel
	}
	return jsonResult(summary, DetermineReviewTypeResult{DeterminationResult: result, ReviewType: info})
}

func (s *Server) handleCheckConsistency(ctx context.Context, req *mcp.CallToolRequest, params AnswersParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "check_consistency").Info("Tool invoked")

	issues := s.assessments.Check(ctx, domain.SnapshotFromMap(params.Answers))
	summary := domain.Summarize(issues)
	if issues == nil {
		issues = []domain.ConsistencyIssue{}
	}

	text := fmt.Sprintf("%d errors, %d warnings, %d notes", summary.Errors, summary.Warnings, summary.Infos)
	return jsonResult(text, ConsistencyResult{Issues: issues, Summary: summary})
}

func (s *Server) handleAssessSubmission(ctx context.Context, req *mcp.CallToolRequest, params AssessSubmissionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":          "assess_submission",
		"submission_id": params.SubmissionID,
	}).Info("Tool invoked")

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	assessment, err := s.assessments.AssessSubmission(ctx, domain.SnapshotFromMap(params.Answers), service.AssessParams{
		SubmissionID: params.SubmissionID,
	})
	if err != nil {
		return createErrorResult("Assessment failed", err), nil, nil
	}

	text := fmt.Sprintf("Review type: %s (confidence %.2f); %d errors, %d warnings",
		assessment.ReviewType.Label, assessment.Determination.Confidence,
		assessment.Summary.Errors, assessment.Summary.Warnings)
	return jsonResult(text, assessment)
}

func (s *Server) handleApplyRule(ctx context.Context, req *mcp.CallToolRequest, params ApplyRuleParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":      "apply_rule",
		"rule_code": params.Rule,
	}).Info("Tool invoked")

	code := strings.ToUpper(strings.TrimSpace(params.Rule))
	if code == "" {
		return createErrorResult("Missing required parameter", fmt.Errorf("rule is required")), nil, nil
	}

	eval, err := s.assessments.EvaluateRule(ctx, code, domain.SnapshotFromMap(params.Answers))
	if errors.Is(err, domain.ErrUnknownRule) {
		return createErrorResult("Unknown rule", fmt.Errorf("%s is not a determination rule", code)), nil, nil
	}
	if err != nil {
		return createErrorResult("Rule evaluation failed", err), nil, nil
	}

	text := fmt.Sprintf("%s (%s) did not fire", eval.Code, eval.Name)
	if eval.Fired {
		text = fmt.Sprintf("%s (%s) fired: %s", eval.Code, eval.Name, eval.Reason)
	}
	return jsonResult(text, eval)
}

func (s *Server) handleListReviewTypes(ctx context.Context, req *mcp.CallToolRequest, params ListReviewTypesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_review_types").Debug("Tool invoked")

	types := domain.ReviewTypes()
	result := ReviewTypesResult{ReviewTypes: make([]domain.ReviewTypeInfo, 0, len(types))}
	for _, rt := range types {
		result.ReviewTypes = append(result.ReviewTypes, rt.Info())
	}
	if params.IncludeRules {
		result.DeterminationRules = s.assessments.Rules()
		result.ConsistencyRules = s.assessments.ConsistencyRules()
	}

	return jsonResult(fmt.Sprintf("%d review types", len(result.ReviewTypes)), result)
}

func (s *Server) handleBuildNarrativeReview(ctx context.Context, req *mcp.CallToolRequest, params NarrativeReviewParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "build_narrative_review").Info("Tool invoked")

	snapshot := domain.SnapshotFromMap(params.Answers)
	var result *domain.DeterminationResult
	if !params.SkipDetermination {
		result = s.assessments.Classify(ctx, snapshot)
	}

	payload := service.BuildNarrativeReviewRequest(snapshot, result)
	return jsonResult(fmt.Sprintf("Narrative review payload with %d sections", len(payload.Sections)), payload)
}

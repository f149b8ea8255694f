package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/irb-determination-server/internal/domain"
)

const (
	reviewTypesURI        = "irb://review-types"
	determinationRulesURI = "irb://rules/determination"
	consistencyRulesURI   = "irb://rules/consistency"

	reviewPromptName = "review_protocol"
)

// registerCatalog exposes the static rule and review type catalogs as
// resources, plus the reviewer prompt.
func (s *Server) registerCatalog() {
	resources := []struct {
		uri, name, description string
		load                   func() any
	}{
		{reviewTypesURI, "review-types", "Review types with labels, oversight levels and typical timelines.", func() any {
			infos := make([]domain.ReviewTypeInfo, 0, len(domain.ReviewTypes()))
			for _, t := range domain.ReviewTypes() {
				infos = append(infos, t.Info())
			}
			return infos
		}},
		{determinationRulesURI, "determination-rules", "Determination rules in evaluation order, with the tier each one selects.", func() any {
			return s.assessments.Rules()
		}},
		{consistencyRulesURI, "consistency-rules", "Consistency rules with the wizard section and field each one targets.", func() any {
			return s.assessments.ConsistencyRules()
		}},
	}

	for _, r := range resources {
		s.mcpServer.AddResource(&mcp.Resource{
			URI:         r.uri,
			Name:        r.name,
			Description: r.description,
			MIMEType:    "application/json",
		}, s.jsonResource(r.uri, r.load))
	}

	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        reviewPromptName,
		Description: "Guide a reviewer through assessing a protocol's IRB review type and answer consistency.",
		Arguments: []*mcp.PromptArgument{
			{Name: "submission_id", Description: "identifier of the submission under review", Required: true},
			{Name: "review_depth", Description: "quick or thorough, default thorough"},
		},
	}, s.handleReviewPrompt)

	s.logger.WithField("resource_count", len(resources)).Debug("Registered catalog resources")
}

func (s *Server) jsonResource(uri string, load func() any) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		data, err := json.MarshalIndent(load(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: "application/json", Text: string(data)},
			},
		}, nil
	}
}

func (s *Server) handleReviewPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var args map[string]string
	if req != nil && req.Params != nil {
		args = req.Params.Arguments
	}

	submissionID := strings.TrimSpace(args["submission_id"])
	if submissionID == "" {
		return nil, domain.NewValidationError("submission_id", "submission_id is required", nil)
	}
	depth := strings.ToLower(strings.TrimSpace(args["review_depth"]))
	if depth == "" {
		depth = "thorough"
	}
	if depth != "quick" && depth != "thorough" {
		return nil, domain.NewValidationError("review_depth", "review_depth must be quick or thorough", depth)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("IRB review of submission %s", submissionID),
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: buildReviewPrompt(submissionID, depth)}},
		},
	}, nil
}

func buildReviewPrompt(submissionID, depth string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# IRB Review: submission %s\n\n", submissionID)
	b.WriteString("You are assisting an IRB reviewer. The rules-based engine gives the baseline determination; ")
	b.WriteString("your job is to confirm it against the protocol's answers and surface anything the reviewer must resolve.\n\n")

	b.WriteString("## Steps\n\n")
	fmt.Fprintf(&b, "1. Call `assess_submission` with submission_id %q and the protocol answers.\n", submissionID)
	b.WriteString("2. Report the review type, category and confidence. Quote the reasons the engine gave.\n")
	b.WriteString("3. List every consistency issue with severity error first, then warnings.\n")
	if depth == "thorough" {
		b.WriteString("4. For each rule in the trace, call `apply_rule` if the answers behind it look borderline.\n")
		b.WriteString("5. Call `build_narrative_review` and compare the free-text answers with the structured ones. ")
		b.WriteString("Flag any narrative that suggests higher risk or a vulnerable population the answers do not declare.\n")
		b.WriteString("6. If `query_feedback` is available, check whether a reviewer already assessed this submission.\n")
	}

	b.WriteString("\n## Guidelines\n\n")
	b.WriteString("- Never recommend a lower oversight level than the engine determined.\n")
	b.WriteString("- Treat INSUFFICIENT_INFO as a request for the missing answers, not as a determination.\n")
	fmt.Fprintf(&b, "- The review type catalog is available as the resource %s.\n", reviewTypesURI)

	return b.String()
}

// Package mcp exposes the determination engine and reviewer feedback as MCP
// tools over the official go-sdk.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/feedback"
	"github.com/irb-determination-server/internal/service"
)

// Server represents the IRB determination MCP server
type Server struct {
	mcpServer   *mcp.Server
	assessments *service.AssessmentService
	feedback    feedback.Store
	exportDir   string
	timeout     time.Duration
	logger      *logrus.Logger
}

// ServerInfo contains MCP server metadata
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerOption configures optional collaborators
type ServerOption func(*Server)

// WithFeedback registers the feedback tools backed by store. Exports are
// written below exportDir.
func WithFeedback(store feedback.Store, exportDir string) ServerOption {
	return func(s *Server) {
		s.feedback = store
		s.exportDir = exportDir
	}
}

// WithRequestTimeout bounds each tool call that touches a backing store.
func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// NewServer creates a new MCP server instance and registers its tools
func NewServer(info ServerInfo, assessments *service.AssessmentService, logger *logrus.Logger, opts ...ServerOption) *Server {
	s := &Server{
		assessments: assessments,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    info.Name,
		Version: info.Version,
	}, nil)

	s.registerDeterminationTools()
	s.registerCatalog()
	if s.feedback != nil {
		s.registerFeedbackTools()
	}

	return s
}

// Run serves MCP over transport until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Start serves MCP over stdin/stdout
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting IRB determination MCP server on stdio")
	return s.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerDeterminationTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "determine_review_type",
		Description: "Determine the IRB review type (not research, not human subjects, exempt, expedited, full board) for a protocol's answers.",
	}, s.handleDetermineReviewType)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "check_consistency",
		Description: "Check protocol answers for contradictions, missing details and policy threshold violations.",
	}, s.handleCheckConsistency)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "assess_submission",
		Description: "Run determination and consistency checking together for a submission.",
	}, s.handleAssessSubmission)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "apply_rule",
		Description: "Evaluate a single determination rule, such as FB-PRISONERS or EX-2, against protocol answers.",
	}, s.handleApplyRule)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_review_types",
		Description: "List the review types with their labels, oversight levels and typical timelines.",
	}, s.handleListReviewTypes)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "build_narrative_review",
		Description: "Build the narrative review payload: the free-text answers plus the rules-based determination.",
	}, s.handleBuildNarrativeReview)

	s.logger.WithField("tool_count", 6).Debug("Registered determination tools")
}

func (s *Server) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// createErrorResult creates a standardized error result for tool calls
func createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

// jsonResult pairs a one-line summary with the indented JSON of out, for
// clients that only read text content.
func jsonResult(summary string, out any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return createErrorResult("Failed to encode result", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}, out, nil
}

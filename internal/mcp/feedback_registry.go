package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/domain"
	"github.com/irb-determination-server/internal/feedback"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// SubmitFeedbackParams defines parameters for the submit_feedback tool
type SubmitFeedbackParams struct {
	SubmissionID        string   `json:"submission_id" jsonschema:"identifier of the submission the feedback is about"`
	SnapshotHash        string   `json:"snapshot_hash,omitempty" jsonschema:"snapshot hash reported by assess_submission"`
	SuggestedReviewType string   `json:"suggested_review_type" jsonschema:"review type the engine suggested, for example EXEMPT"`
	ReviewerReviewType  string   `json:"reviewer_review_type" jsonschema:"review type the reviewer assigned"`
	Reasons             []string `json:"reasons,omitempty" jsonschema:"short reasons for the reviewer's decision"`
	Notes               string   `json:"notes,omitempty" jsonschema:"free-text notes"`
}

// SubmitFeedbackResult defines the result of submit_feedback
type SubmitFeedbackResult struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	Feedback *feedback.Feedback `json:"feedback,omitempty"`
}

// QueryFeedbackParams defines parameters for the query_feedback tool
type QueryFeedbackParams struct {
	SubmissionID string `json:"submission_id" jsonschema:"identifier of the submission"`
}

// QueryFeedbackResult defines the result of query_feedback
type QueryFeedbackResult struct {
	Found    bool               `json:"found"`
	Feedback *feedback.Feedback `json:"feedback,omitempty"`
	Message  string             `json:"message"`
}

// ListFeedbackParams defines parameters for the list_feedback tool
type ListFeedbackParams struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum entries to return, default 20"`
	Offset int `json:"offset,omitempty" jsonschema:"entries to skip"`
}

// ListFeedbackResult defines the result of list_feedback
type ListFeedbackResult struct {
	Feedback []*feedback.Feedback `json:"feedback"`
	Total    int64                `json:"total"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
}

// ExportFeedbackParams defines parameters for the export_feedback tool
type ExportFeedbackParams struct{}

// ExportFeedbackResult defines the result of export_feedback
type ExportFeedbackResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
	Message  string `json:"message"`
}

// ImportFeedbackParams defines parameters for the import_feedback tool
type ImportFeedbackParams struct {
	FilePath string `json:"file_path" jsonschema:"path of a JSON file written by export_feedback"`
}

// ImportFeedbackResult defines the result of import_feedback
type ImportFeedbackResult struct {
	Success  bool   `json:"success"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Message  string `json:"message"`
}

// registerFeedbackTools registers feedback-related MCP tools.
func (s *Server) registerFeedbackTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record whether a reviewer agreed with the suggested review type. Feedback for the same submission replaces the previous entry.",
	}, s.handleSubmitFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "query_feedback",
		Description: "Look up the saved reviewer feedback for a submission.",
	}, s.handleQueryFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_feedback",
		Description: "List saved reviewer feedback, newest first.",
	}, s.handleListFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Export all saved feedback to a JSON file for backup.",
	}, s.handleExportFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "import_feedback",
		Description: "Import feedback from a JSON backup file. Submissions that already have feedback are skipped.",
	}, s.handleImportFeedback)

	s.logger.WithField("tool_count", 5).Debug("Registered feedback tools")
}

func (s *Server) handleSubmitFeedback(ctx context.Context, req *mcp.CallToolRequest, params SubmitFeedbackParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	suggested := domain.ReviewType(params.SuggestedReviewType)
	reviewer := domain.ReviewType(params.ReviewerReviewType)

	fb := &feedback.Feedback{
		SubmissionID:        params.SubmissionID,
		SnapshotHash:        params.SnapshotHash,
		SuggestedReviewType: suggested,
		ReviewerReviewType:  reviewer,
		ReviewerAgreed:      suggested == reviewer,
		Reasons:             params.Reasons,
		Notes:               params.Notes,
	}

	if err := s.feedback.Save(ctx, fb); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return createErrorResult("Invalid parameters", validationErr), nil, nil
		}
		s.logger.WithError(err).Error("Failed to save feedback")
		return createErrorResult("Failed to save feedback", err), nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"submission_id":   fb.SubmissionID,
		"reviewer_agreed": fb.ReviewerAgreed,
	}).Info("Feedback saved")

	msg := fmt.Sprintf("Feedback saved: reviewer agreed with %s", suggested)
	if !fb.ReviewerAgreed {
		msg = fmt.Sprintf("Feedback saved: review type corrected from %s to %s", suggested, reviewer)
	}
	return jsonResult(msg, SubmitFeedbackResult{Success: true, Message: msg, Feedback: fb})
}

func (s *Server) handleQueryFeedback(ctx context.Context, req *mcp.CallToolRequest, params QueryFeedbackParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if params.SubmissionID == "" {
		return createErrorResult("Missing required parameter", fmt.Errorf("submission_id is required")), nil, nil
	}

	fb, err := s.feedback.Get(ctx, params.SubmissionID)
	if errors.Is(err, domain.ErrNotFound) {
		result := QueryFeedbackResult{Message: "No previous feedback found for this submission"}
		return jsonResult(result.Message, result)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to query feedback")
		return createErrorResult("Failed to query feedback", err), nil, nil
	}

	result := QueryFeedbackResult{Found: true, Feedback: fb}
	if fb.ReviewerAgreed {
		result.Message = fmt.Sprintf("Found previous feedback: reviewer agreed with %s", fb.ReviewerReviewType)
	} else {
		result.Message = fmt.Sprintf("Found previous feedback: reviewer assigned %s (suggested %s)",
			fb.ReviewerReviewType, fb.SuggestedReviewType)
	}
	return jsonResult(result.Message, result)
}

func (s *Server) handleListFeedback(ctx context.Context, req *mcp.CallToolRequest, params ListFeedbackParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(params.Offset, 0)

	entries, err := s.feedback.List(ctx, limit, offset)
	if err != nil {
		return createErrorResult("Failed to list feedback", err), nil, nil
	}
	total, err := s.feedback.Count(ctx)
	if err != nil {
		return createErrorResult("Failed to count feedback", err), nil, nil
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	result := ListFeedbackResult{Feedback: entries, Total: total, Limit: limit, Offset: offset}
	return jsonResult(fmt.Sprintf("%d of %d feedback entries", len(entries), total), result)
}

func (s *Server) handleExportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return createErrorResult("Failed to create export directory", err), nil, nil
	}

	filename := fmt.Sprintf("feedback_export_%s.json", time.Now().Format("20060102_150405"))
	filePath := filepath.Join(s.exportDir, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return createErrorResult("Failed to create export file", err), nil, nil
	}
	defer file.Close()

	if err := s.feedback.ExportJSON(ctx, file); err != nil {
		s.logger.WithError(err).Error("Failed to export feedback")
		return createErrorResult("Failed to export feedback", err), nil, nil
	}

	count, err := s.feedback.Count(ctx)
	if err != nil {
		return createErrorResult("Failed to count feedback", err), nil, nil
	}

	result := ExportFeedbackResult{
		Success:  true,
		FilePath: filePath,
		Count:    count,
		Message:  fmt.Sprintf("Exported %d feedback entries to %s", count, filePath),
	}
	return jsonResult(result.Message, result)
}

func (s *Server) handleImportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ImportFeedbackParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if params.FilePath == "" {
		return createErrorResult("Missing required parameter", fmt.Errorf("file_path is required")), nil, nil
	}

	file, err := os.Open(params.FilePath)
	if err != nil {
		return createErrorResult("Failed to open import file", err), nil, nil
	}
	defer file.Close()

	imported, skipped, err := s.feedback.ImportJSON(ctx, file)
	if err != nil {
		s.logger.WithError(err).Error("Failed to import feedback")
		return createErrorResult("Failed to import feedback", err), nil, nil
	}

	result := ImportFeedbackResult{
		Success:  true,
		Imported: imported,
		Skipped:  skipped,
		Message:  fmt.Sprintf("Imported %d feedback entries (%d skipped as duplicates)", imported, skipped),
	}
	return jsonResult(result.Message, result)
}

// Package feedback stores reviewer feedback on suggested review types.
// A reviewer either agrees with the engine's tier or records the tier the
// IRB actually assigned.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/irb-determination-server/internal/domain"
)

// ExportVersion is written into every export document.
const ExportVersion = "1.0"

// Feedback represents a reviewer's verdict on a determination.
type Feedback struct {
	ID                  int64             `json:"id,omitempty"`
	SubmissionID        string            `json:"submission_id"`
	SnapshotHash        string            `json:"snapshot_hash,omitempty"`
	SuggestedReviewType domain.ReviewType `json:"suggested_review_type"` // engine's suggestion
	ReviewerReviewType  domain.ReviewType `json:"reviewer_review_type"`  // tier the reviewer settled on
	ReviewerAgreed      bool              `json:"reviewer_agreed"`
	Reasons             []string          `json:"reasons,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Validate checks the fields a store needs before saving.
func (f *Feedback) Validate() error {
	if strings.TrimSpace(f.SubmissionID) == "" {
		return domain.NewValidationError("submission_id", "submission id is required", f.SubmissionID)
	}
	if !f.SuggestedReviewType.IsValid() {
		return fmt.Errorf("%w: %w", domain.ErrInvalidReviewType,
			domain.NewValidationError("suggested_review_type", "unknown review type", f.SuggestedReviewType))
	}
	if !f.ReviewerReviewType.IsValid() {
		return fmt.Errorf("%w: %w", domain.ErrInvalidReviewType,
			domain.NewValidationError("reviewer_review_type", "unknown review type", f.ReviewerReviewType))
	}
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. Feedback for an existing submission id
	// replaces the previous entry.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves the feedback for a submission. It returns
	// domain.ErrNotFound when there is none.
	Get(ctx context.Context, submissionID string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON writes all feedback as a FeedbackExport document.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads a FeedbackExport document. Entries whose submission id
	// already exists are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

func encodeReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "[]"
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeReasons(raw string) []string {
	var reasons []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &reasons); err != nil {
		return nil
	}
	if len(reasons) == 0 {
		return nil
	}
	return reasons
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanFeedback scans a row into a Feedback struct.
func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var suggested, reviewer, reasons string

	err := s.Scan(
		&fb.ID, &fb.SubmissionID, &fb.SnapshotHash,
		&suggested, &reviewer, &fb.ReviewerAgreed,
		&reasons, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.SuggestedReviewType = domain.ReviewType(suggested)
	fb.ReviewerReviewType = domain.ReviewType(reviewer)
	fb.Reasons = decodeReasons(reasons)
	return fb, nil
}

func writeExport(writer io.Writer, all []*Feedback) error {
	if all == nil {
		all = []*Feedback{}
	}
	export := &FeedbackExport{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

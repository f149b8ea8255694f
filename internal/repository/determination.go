// Package repository persists determination audit records in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

const selectDetermination = `
	SELECT id::text, submission_id, snapshot_hash, review_type, category,
		   confidence, result, issue_count, error_count, request_id, created_at
	FROM determinations`

// DeterminationRepository implements domain.DeterminationRecorder on pgx.
type DeterminationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDeterminationRepository creates a new determination repository
func NewDeterminationRepository(db *pgxpool.Pool, logger *logrus.Logger) *DeterminationRepository {
	return &DeterminationRepository{
		db:  db,
		log: logger,
	}
}

// SaveDetermination inserts an audit record. A missing ID is generated.
func (r *DeterminationRepository) SaveDetermination(ctx context.Context, record *domain.DeterminationRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	} else if _, err := uuid.Parse(record.ID); err != nil {
		return domain.NewValidationError("id", "record id must be a UUID", record.ID)
	}
	if len(record.Result) == 0 {
		record.Result = []byte("{}")
	}

	query := `
		INSERT INTO determinations (
			id, submission_id, snapshot_hash, review_type, category,
			confidence, result, issue_count, error_count, request_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW())
		)
		RETURNING created_at`

	var createdAt interface{}
	if !record.CreatedAt.IsZero() {
		createdAt = record.CreatedAt
	}

	err := r.db.QueryRow(ctx, query,
		record.ID,
		record.SubmissionID,
		record.SnapshotHash,
		string(record.ReviewType),
		record.Category,
		record.Confidence,
		[]byte(record.Result),
		record.IssueCount,
		record.ErrorCount,
		record.RequestID,
		createdAt,
	).Scan(&record.CreatedAt)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"determination_id": record.ID,
			"review_type":      record.ReviewType,
			"error":            err,
		}).Error("Failed to save determination")
		return fmt.Errorf("saving determination: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"determination_id": record.ID,
		"snapshot_hash":    record.SnapshotHash,
		"review_type":      record.ReviewType,
		"confidence":       record.Confidence,
	}).Debug("Determination recorded")

	return nil
}

// GetDetermination retrieves a record by its ID
func (r *DeterminationRepository) GetDetermination(ctx context.Context, id string) (*domain.DeterminationRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("determination %s: %w", id, domain.ErrNotFound)
	}

	record, err := scanDetermination(r.db.QueryRow(ctx, selectDetermination+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("determination %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"determination_id": id,
			"error":            err,
		}).Error("Failed to get determination by ID")
		return nil, fmt.Errorf("getting determination by ID: %w", err)
	}
	return record, nil
}

// ListBySnapshotHash returns records for a snapshot, newest first.
func (r *DeterminationRepository) ListBySnapshotHash(ctx context.Context, hash string, limit int) ([]*domain.DeterminationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.Query(ctx,
		selectDetermination+" WHERE snapshot_hash = $1 ORDER BY created_at DESC LIMIT $2",
		hash, limit)
	if err != nil {
		return nil, fmt.Errorf("listing determinations: %w", err)
	}
	defer rows.Close()

	records := []*domain.DeterminationRecord{}
	for rows.Next() {
		record, err := scanDetermination(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning determination: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating determinations: %w", err)
	}
	return records, nil
}

// CountByReviewType returns how many determinations ended in each tier.
func (r *DeterminationRepository) CountByReviewType(ctx context.Context) (map[domain.ReviewType]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT review_type, COUNT(*) FROM determinations GROUP BY review_type")
	if err != nil {
		return nil, fmt.Errorf("counting determinations: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ReviewType]int64)
	for rows.Next() {
		var reviewType string
		var count int64
		if err := rows.Scan(&reviewType, &count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[domain.ReviewType(reviewType)] = count
	}
	return counts, rows.Err()
}

func scanDetermination(row pgx.Row) (*domain.DeterminationRecord, error) {
	var record domain.DeterminationRecord
	var reviewType string
	var result []byte

	err := row.Scan(
		&record.ID,
		&record.SubmissionID,
		&record.SnapshotHash,
		&reviewType,
		&record.Category,
		&record.Confidence,
		&result,
		&record.IssueCount,
		&record.ErrorCount,
		&record.RequestID,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.ReviewType = domain.ReviewType(reviewType)
	record.Result = result
	return &record, nil
}

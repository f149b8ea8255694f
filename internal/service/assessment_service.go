package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/domain"
)

// ErrNoAuditLog is returned by audit queries when no recorder is configured.
var ErrNoAuditLog = errors.New("determination audit log is not configured")

// AssessmentService wraps the pure engine and checker with logging,
// memoization and the determination audit log
type AssessmentService struct {
	logger   *logrus.Logger
	engine   *DeterminationEngine
	checker  *ConsistencyChecker
	cache    domain.ResultCache
	cacheTTL time.Duration
	recorder domain.DeterminationRecorder
	now      func() time.Time
}

// AssessmentOption configures optional collaborators
type AssessmentOption func(*AssessmentService)

// WithResultCache memoizes assessments by snapshot hash.
func WithResultCache(cache domain.ResultCache, ttl time.Duration) AssessmentOption {
	return func(s *AssessmentService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithRecorder writes an audit record for every assessment.
func WithRecorder(recorder domain.DeterminationRecorder) AssessmentOption {
	return func(s *AssessmentService) {
		s.recorder = recorder
	}
}

// WithClock overrides the time source used for temporal consistency rules.
func WithClock(now func() time.Time) AssessmentOption {
	return func(s *AssessmentService) {
		s.now = now
	}
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(logger *logrus.Logger, opts ...AssessmentOption) *AssessmentService {
	s := &AssessmentService{
		logger:  logger,
		engine:  NewDeterminationEngine(),
		checker: NewConsistencyChecker(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.checker = s.checker.WithClock(s.now)
	return s
}

// Assessment is the combined output of classification and consistency checking
type Assessment struct {
	Determination *domain.DeterminationResult `json:"determination"`
	ReviewType    domain.ReviewTypeInfo       `json:"reviewType"`
	Issues        []domain.ConsistencyIssue   `json:"issues"`
	Summary       domain.IssueSummary         `json:"summary"`
	SnapshotHash  string                      `json:"snapshotHash"`
	EvaluatedAt   time.Time                   `json:"evaluatedAt"`
	Cached        bool                        `json:"cached"`
	RecordID      string                      `json:"recordId,omitempty"`
}

// AssessParams identify the submission an assessment belongs to
type AssessParams struct {
	SubmissionID string
	RequestID    string
}

// Classify runs the determination engine
func (s *AssessmentService) Classify(ctx context.Context, snapshot *domain.AnswerSnapshot) *domain.DeterminationResult {
	startTime := time.Now()
	result := s.engine.Classify(snapshot)

	s.logger.WithFields(logrus.Fields{
		"review_type":     result.Type,
		"category":        result.Category,
		"confidence":      result.Confidence,
		"rules_fired":     len(result.Trace),
		"processing_time": time.Since(startTime),
	}).Debug("Determination completed")

	return result
}

// Check runs the consistency checker against the service clock
func (s *AssessmentService) Check(ctx context.Context, snapshot *domain.AnswerSnapshot) []domain.ConsistencyIssue {
	issues := s.checker.Check(snapshot)

	summary := domain.Summarize(issues)
	s.logger.WithFields(logrus.Fields{
		"errors":   summary.Errors,
		"warnings": summary.Warnings,
	}).Debug("Consistency check completed")

	return issues
}

// Assess classifies and checks a snapshot without a submission context
func (s *AssessmentService) Assess(ctx context.Context, snapshot *domain.AnswerSnapshot) (*Assessment, error) {
	return s.AssessSubmission(ctx, snapshot, AssessParams{})
}

// AssessSubmission classifies and checks a snapshot, consulting the cache
// first and writing an audit record when a recorder is configured. Cache and
// recorder failures are logged and never fail the assessment.
func (s *AssessmentService) AssessSubmission(ctx context.Context, snapshot *domain.AnswerSnapshot, params AssessParams) (*Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("assessment cancelled: %w", err)
	}
	if snapshot == nil {
		snapshot = domain.NewSnapshot()
	}

	startTime := time.Now()
	now := s.now().UTC()
	hash := snapshot.Hash()
	// Temporal rules depend on the date, so the key carries it.
	key := cacheKey(hash, now)

	assessment, ok := s.cachedAssessment(ctx, key)
	if !ok {
		determination := s.engine.Classify(snapshot)
		issues := s.checker.CheckAt(snapshot, now)
		assessment = &Assessment{
			Determination: determination,
			ReviewType:    determination.Type.Info(),
			Issues:        issues,
			Summary:       domain.Summarize(issues),
			SnapshotHash:  hash,
			EvaluatedAt:   now,
		}
		s.storeAssessment(ctx, key, assessment)
	}

	if s.recorder != nil {
		assessment.RecordID = s.record(ctx, assessment, params)
	}

	s.logger.WithFields(logrus.Fields{
		"review_type":     assessment.Determination.Type,
		"confidence":      assessment.Determination.Confidence,
		"issues":          len(assessment.Issues),
		"errors":          assessment.Summary.Errors,
		"snapshot_hash":   hash,
		"cached":          assessment.Cached,
		"submission_id":   params.SubmissionID,
		"request_id":      params.RequestID,
		"processing_time": time.Since(startTime),
	}).Info("Assessment completed")

	return assessment, nil
}

// EvaluateRule evaluates one determination rule in isolation
func (s *AssessmentService) EvaluateRule(ctx context.Context, code string, snapshot *domain.AnswerSnapshot) (*domain.RuleEvaluation, error) {
	s.logger.WithField("rule_code", code).Debug("Evaluating determination rule")

	eval, err := s.engine.EvaluateRule(code, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate rule %s: %w", code, err)
	}
	return eval, nil
}

// Rules lists the determination rule catalog
func (s *AssessmentService) Rules() []domain.RuleInfo {
	return s.engine.Rules()
}

// ConsistencyRules lists the consistency rule catalog
func (s *AssessmentService) ConsistencyRules() []ConsistencyRuleInfo {
	return s.checker.Rules()
}

// GetDetermination fetches an audit record by id
func (s *AssessmentService) GetDetermination(ctx context.Context, id string) (*domain.DeterminationRecord, error) {
	if s.recorder == nil {
		return nil, ErrNoAuditLog
	}
	return s.recorder.GetDetermination(ctx, id)
}

// DeterminationHistory lists audit records for a snapshot hash, newest first
func (s *AssessmentService) DeterminationHistory(ctx context.Context, hash string, limit int) ([]*domain.DeterminationRecord, error) {
	if s.recorder == nil {
		return nil, ErrNoAuditLog
	}
	return s.recorder.ListBySnapshotHash(ctx, hash, limit)
}

// DeterminationStats counts audit records per review type
func (s *AssessmentService) DeterminationStats(ctx context.Context) (map[domain.ReviewType]int64, error) {
	if s.recorder == nil {
		return nil, ErrNoAuditLog
	}
	return s.recorder.CountByReviewType(ctx)
}

func cacheKey(hash string, now time.Time) string {
	return fmt.Sprintf("assessment:%s:%s", hash, now.Format(domain.DateLayout))
}

func (s *AssessmentService) cachedAssessment(ctx context.Context, key string) (*Assessment, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("Result cache read failed, recomputing")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var assessment Assessment
	if err := json.Unmarshal(data, &assessment); err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("Discarding undecodable cache entry")
		return nil, false
	}
	assessment.Cached = true
	return &assessment, true
}

func (s *AssessmentService) storeAssessment(ctx context.Context, key string, assessment *Assessment) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(assessment)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode assessment for cache")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("Result cache write failed")
	}
}

func (s *AssessmentService) record(ctx context.Context, assessment *Assessment, params AssessParams) string {
	result, err := json.Marshal(assessment.Determination)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode determination for audit log")
		return ""
	}

	record := &domain.DeterminationRecord{
		ID:           uuid.New().String(),
		SubmissionID: params.SubmissionID,
		SnapshotHash: assessment.SnapshotHash,
		ReviewType:   assessment.Determination.Type,
		Category:     assessment.Determination.Category,
		Confidence:   assessment.Determination.Confidence,
		Result:       result,
		IssueCount:   len(assessment.Issues),
		ErrorCount:   assessment.Summary.Errors,
		RequestID:    params.RequestID,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.recorder.SaveDetermination(ctx, record); err != nil {
		s.logger.WithError(err).WithField("snapshot_hash", assessment.SnapshotHash).Warn("Failed to record determination")
		return ""
	}
	return record.ID
}

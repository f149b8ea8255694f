package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irb-determination-server/internal/cache"
	"github.com/irb-determination-server/internal/domain"
	"github.com/irb-determination-server/internal/feedback"
	"github.com/irb-determination-server/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var referenceTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type stubConfigManager struct {
	config *domain.Config
}

func newStubConfigManager() *stubConfigManager {
	return &stubConfigManager{config: &domain.Config{
		Server: domain.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RequestTimeout: 5 * time.Second,
			CORSOrigins:    []string{"*"},
		},
		Logging:   domain.LoggingConfig{Level: "error", Format: "json"},
		RateLimit: domain.RateLimitConfig{Enabled: false},
	}}
}

func (m *stubConfigManager) GetConfig() *domain.Config                 { return m.config }
func (m *stubConfigManager) GetDatabaseConfig() *domain.DatabaseConfig { return &m.config.Database }
func (m *stubConfigManager) GetServerConfig() *domain.ServerConfig     { return &m.config.Server }
func (m *stubConfigManager) Reload() error                             { return nil }
func (m *stubConfigManager) Validate() error                           { return nil }
func (m *stubConfigManager) GetDatabaseConnectionString() string       { return "" }
func (m *stubConfigManager) GetRedisConnectionString() string          { return "" }
func (m *stubConfigManager) IsProduction() bool                        { return false }
func (m *stubConfigManager) IsDevelopment() bool                       { return true }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	logger := testLogger()
	assessments := service.NewAssessmentService(logger,
		service.WithResultCache(cache.NewMemoryCache(100, time.Hour), time.Hour),
		service.WithClock(func() time.Time { return referenceTime }),
	)
	return NewServer(newStubConfigManager(), assessments, logger, opts...)
}

func newFeedbackStore(t *testing.T) feedback.Store {
	t.Helper()
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// surveySnapshot classifies as EXEMPT category 2 with no consistency issues
func surveySnapshot() *domain.AnswerSnapshot {
	return domain.NewSnapshot().
		Set(domain.SystematicInvestigation, true).
		Set(domain.GeneralizableKnowledge, true).
		Set(domain.InvolvesLivingIndividuals, true).
		Set(domain.InteractionOrIntervention, true).
		Set(domain.IdentifiablePrivateInfo, false).
		Set(domain.FederallyFunded, false).
		Set(domain.PIName, "Dr. Grace Hopper").
		Set(domain.IsStudent, false).
		Set(domain.TrainingCompleted, true).
		Set(domain.TrainingExpiry, "2028-06-30").
		Set(domain.StudyTitle, "Commuting habits of university staff").
		Set(domain.StudyPurpose, "Describe how staff travel to campus").
		Set(domain.StartDate, "2027-01-15").
		Set(domain.EndDate, "2027-12-31").
		Set(domain.IsMultiSite, false).
		Set(domain.TargetEnrollment, "200").
		Set(domain.MinAge, "18").
		Set(domain.MaxAge, "65").
		Set(domain.IncludesMinors, false).
		Set(domain.IncludesPrisoners, false).
		Set(domain.IncludesPregnantWomen, false).
		Set(domain.IncludesCognitivelyImpaired, false).
		Set(domain.RecruitmentMethods, []string{"email"}).
		Set(domain.ProvidesCompensation, false).
		Set(domain.Methods, []string{domain.MethodSurvey}).
		Set(domain.InvolvesDeception, false).
		Set(domain.DeceptionDebriefing, false).
		Set(domain.CollectsBiospecimens, false).
		Set(domain.InvolvesRecording, false).
		Set(domain.InvolvesDrugsOrDevices, false).
		Set(domain.RiskLevel, domain.RiskMinimal).
		Set(domain.PhysicalRisks, false).
		Set(domain.PsychologicalRisks, false).
		Set(domain.SensitiveTopics, false).
		Set(domain.AnonymousData, true).
		Set(domain.CollectsIdentifiers, false).
		Set(domain.SharesData, false).
		Set(domain.ConsentType, "online information sheet").
		Set(domain.WaiverRequested, false).
		Set(domain.ConsentProcess, "Participants read an information sheet before starting the survey.")
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(t, WithHealthCheck("cache", func(context.Context) error { return nil }))
		w := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, Version, body["version"])
		assert.Equal(t, map[string]any{"cache": "ok"}, body["checks"])
		assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	})

	t.Run("degraded", func(t *testing.T) {
		srv := newTestServer(t, WithHealthCheck("database", func(context.Context) error {
			return errors.New("connection refused")
		}))
		w := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "degraded", body["status"])
	})
}

func TestReviewTypesAndRules(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/review-types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	types := decode[struct {
		ReviewTypes []domain.ReviewTypeInfo `json:"reviewTypes"`
	}](t, w)
	assert.Len(t, types.ReviewTypes, len(domain.ReviewTypes()))

	w = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rules := decode[struct {
		DeterminationRules []domain.RuleInfo `json:"determinationRules"`
		ConsistencyRules   []map[string]any  `json:"consistencyRules"`
	}](t, w)
	assert.NotEmpty(t, rules.DeterminationRules)
	assert.NotEmpty(t, rules.ConsistencyRules)
}

func TestDetermination(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/determination", map[string]any{
		"answers": surveySnapshot(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[map[string]any](t, w)
	assert.Equal(t, "EXEMPT", body["type"])
	assert.Equal(t, "2", body["category"])
	reviewType, ok := body["reviewType"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Exempt Review", reviewType["label"])
}

func TestDetermination_SingleRule(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/determination", map[string]any{
		"rule":    "FB-PRISONERS",
		"answers": surveySnapshot().Set(domain.IncludesPrisoners, true),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	eval := decode[domain.RuleEvaluation](t, w)
	assert.True(t, eval.Fired)
	assert.Equal(t, domain.ReviewFullBoard, eval.Tier)

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/determination", map[string]any{
		"rule":    "NOPE",
		"answers": surveySnapshot(),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvaluationEndpoints_RejectBadBodies(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/v1/determination", "/api/v1/consistency", "/api/v1/assessment", "/api/v1/narrative-review"} {
		t.Run(path, func(t *testing.T) {
			w := doJSON(t, srv.Handler(), http.MethodPost, path, "{")
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, domain.ErrInvalidInput, decode[domain.APIError](t, w).Code)

			w = doJSON(t, srv.Handler(), http.MethodPost, path, map[string]any{"submissionId": "sub-1"})
			require.Equal(t, http.StatusBadRequest, w.Code)
			apiErr := decode[domain.APIError](t, w)
			assert.Equal(t, domain.ErrValidation, apiErr.Code)
			assert.Equal(t, "answers", apiErr.Details)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestConsistency(t *testing.T) {
	srv := newTestServer(t)

	snapshot := surveySnapshot().
		Set(domain.IncludesMinors, false).
		Set(domain.MinAge, "12")
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/consistency", map[string]any{"answers": snapshot})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[consistencyResponse](t, w)
	require.NotEmpty(t, body.Issues)
	assert.Equal(t, domain.Summarize(body.Issues), body.Summary)
}

func TestAssessment(t *testing.T) {
	srv := newTestServer(t)

	req := map[string]any{"submissionId": "sub-7", "answers": surveySnapshot()}
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/assessment", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	first := decode[service.Assessment](t, w)
	assert.Equal(t, domain.ReviewExempt, first.Determination.Type)
	assert.Equal(t, surveySnapshot().Hash(), first.SnapshotHash)
	assert.False(t, first.Cached)

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/assessment", req)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[service.Assessment](t, w)
	assert.True(t, second.Cached)
}

func TestNarrativeReview(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/narrative-review", map[string]any{"answers": surveySnapshot()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[service.NarrativeReviewRequest](t, w)
	require.NotNil(t, body.RulesBased)
	assert.Equal(t, domain.ReviewExempt, body.RulesBased.Type)
	assert.NotEmpty(t, body.Sections)

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/narrative-review", map[string]any{
		"answers":              surveySnapshot(),
		"includeDetermination": false,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[service.NarrativeReviewRequest](t, w)
	assert.Nil(t, body.RulesBased)
}

func TestGetDetermination_WithoutAuditLog(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/determinations/3f1c1f5e-8a51-4a8e-9d0b-8d6f6f9e2a10", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	apiErr := decode[domain.APIError](t, w)
	assert.Equal(t, domain.ErrUnavailable, apiErr.Code)
}

type sliceRecorder struct {
	records []*domain.DeterminationRecord
}

func (r *sliceRecorder) SaveDetermination(_ context.Context, record *domain.DeterminationRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *sliceRecorder) GetDetermination(_ context.Context, id string) (*domain.DeterminationRecord, error) {
	for _, record := range r.records {
		if record.ID == id {
			return record, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *sliceRecorder) ListBySnapshotHash(_ context.Context, hash string, limit int) ([]*domain.DeterminationRecord, error) {
	out := []*domain.DeterminationRecord{}
	for _, record := range r.records {
		if record.SnapshotHash == hash && len(out) < limit {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *sliceRecorder) CountByReviewType(_ context.Context) (map[domain.ReviewType]int64, error) {
	counts := make(map[domain.ReviewType]int64)
	for _, record := range r.records {
		counts[record.ReviewType]++
	}
	return counts, nil
}

func TestDeterminationAuditLog(t *testing.T) {
	logger := testLogger()
	assessments := service.NewAssessmentService(logger,
		service.WithRecorder(&sliceRecorder{}),
		service.WithClock(func() time.Time { return referenceTime }),
	)
	srv := NewServer(newStubConfigManager(), assessments, logger)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/assessment", map[string]any{
		"submissionId": "sub-9",
		"answers":      surveySnapshot(),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assessment := decode[service.Assessment](t, w)
	require.NotEmpty(t, assessment.RecordID)

	w = doJSON(t, h, http.MethodGet, "/api/v1/determinations/"+assessment.RecordID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	record := decode[domain.DeterminationRecord](t, w)
	assert.Equal(t, "sub-9", record.SubmissionID)

	w = doJSON(t, h, http.MethodGet, "/api/v1/determinations?snapshotHash="+assessment.SnapshotHash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Determinations []domain.DeterminationRecord `json:"determinations"`
	}](t, w)
	assert.Len(t, history.Determinations, 1)

	w = doJSON(t, h, http.MethodGet, "/api/v1/stats/determinations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[struct {
		ByReviewType map[domain.ReviewType]int64 `json:"byReviewType"`
		Total        int64                       `json:"total"`
	}](t, w)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByReviewType[domain.ReviewExempt])
}

func TestDeterminationAuditLog_Unconfigured(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/stats/determinations", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/determinations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decode[domain.APIError](t, w)
	assert.Equal(t, "snapshotHash", apiErr.Details)
}

func TestFeedback_Unconfigured(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/feedback", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	apiErr := decode[domain.APIError](t, w)
	assert.Equal(t, domain.ErrUnavailable, apiErr.Code)
}

func TestFeedback_RoundTrip(t *testing.T) {
	srv := newTestServer(t, WithFeedbackStore(newFeedbackStore(t)))
	h := srv.Handler()

	for _, id := range []string{"sub-1", "sub-2", "sub-3"} {
		w := doJSON(t, h, http.MethodPost, "/api/v1/feedback", map[string]any{
			"submission_id":         id,
			"suggested_review_type": "EXEMPT",
			"reviewer_review_type":  "EXPEDITED",
			"reviewer_agreed":       false,
			"reasons":               []string{"recordings collected"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := doJSON(t, h, http.MethodGet, "/api/v1/feedback/sub-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fb := decode[feedback.Feedback](t, w)
	assert.Equal(t, domain.ReviewExpedited, fb.ReviewerReviewType)
	assert.Equal(t, []string{"recordings collected"}, fb.Reasons)

	w = doJSON(t, h, http.MethodGet, "/api/v1/feedback?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[feedbackListResponse](t, w)
	assert.Len(t, list.Feedback, 2)
	assert.Equal(t, int64(3), list.Total)
	assert.Equal(t, 2, list.Limit)
	assert.Equal(t, 1, list.Offset)

	w = doJSON(t, h, http.MethodGet, "/api/v1/feedback?limit=10000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[feedbackListResponse](t, w)
	assert.Equal(t, maxFeedbackLimit, list.Limit)

	w = doJSON(t, h, http.MethodGet, "/api/v1/feedback?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/feedback/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedback_RejectsInvalid(t *testing.T) {
	srv := newTestServer(t, WithFeedbackStore(newFeedbackStore(t)))

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/feedback", map[string]any{
		"submission_id":         "sub-1",
		"suggested_review_type": "SOMETHING",
		"reviewer_review_type":  "EXEMPT",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decode[domain.APIError](t, w)
	assert.Equal(t, domain.ErrInvalidInput, apiErr.Code)
	assert.Equal(t, "suggested_review_type", apiErr.Details)

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/feedback", map[string]any{
		"submission_id":         " ",
		"suggested_review_type": "EXEMPT",
		"reviewer_review_type":  "EXEMPT",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrValidation, decode[domain.APIError](t, w).Code)
}

func TestRateLimitApplied(t *testing.T) {
	cfg := newStubConfigManager()
	cfg.config.RateLimit = domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.1, Burst: 1}
	srv := NewServer(cfg, service.NewAssessmentService(testLogger()), testLogger())

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/review-types", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/review-types", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// health stays outside the limiter
	w = doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/domain"
	"github.com/irb-determination-server/internal/feedback"
	"github.com/irb-determination-server/internal/middleware"
	"github.com/irb-determination-server/internal/service"
)

const (
	defaultFeedbackLimit = 50
	maxFeedbackLimit     = 500
	healthCheckTimeout   = 3 * time.Second
)

// snapshotRequest is the body accepted by every evaluation endpoint
type snapshotRequest struct {
	SubmissionID string                 `json:"submissionId"`
	Answers      *domain.AnswerSnapshot `json:"answers"`
}

type ruleRequest struct {
	snapshotRequest
	Rule string `json:"rule"`
}

type determinationResponse struct {
	*domain.DeterminationResult
	ReviewType domain.ReviewTypeInfo `json:"reviewType"`
}

type consistencyResponse struct {
	Issues  []domain.ConsistencyIssue `json:"issues"`
	Summary domain.IssueSummary       `json:"summary"`
}

type narrativeReviewRequest struct {
	snapshotRequest
	IncludeDetermination *bool `json:"includeDetermination"`
}

type feedbackListResponse struct {
	Feedback []*feedback.Feedback `json:"feedback"`
	Total    int64                `json:"total"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
}

// handleHealth reports liveness plus the state of every registered probe
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.WithError(err).WithField("check", name).Warn("Health check failed")
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"checks":    checks,
	})
}

func (s *Server) handleReviewTypes(c *gin.Context) {
	types := domain.ReviewTypes()
	infos := make([]domain.ReviewTypeInfo, 0, len(types))
	for _, rt := range types {
		infos = append(infos, rt.Info())
	}
	c.JSON(http.StatusOK, gin.H{"reviewTypes": infos})
}

func (s *Server) handleRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"determinationRules": s.assessments.Rules(),
		"consistencyRules":   s.assessments.ConsistencyRules(),
	})
}

// handleDetermination classifies a snapshot without consistency checking
func (s *Server) handleDetermination(c *gin.Context) {
	var req ruleRequest
	if !s.bindSnapshot(c, &req) {
		return
	}

	if req.Rule != "" {
		eval, err := s.assessments.EvaluateRule(c.Request.Context(), req.Rule, req.Answers)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, eval)
		return
	}

	result := s.assessments.Classify(c.Request.Context(), req.Answers)
	c.JSON(http.StatusOK, determinationResponse{
		DeterminationResult: result,
		ReviewType:          result.Info(),
	})
}

func (s *Server) handleConsistency(c *gin.Context) {
	var req snapshotRequest
	if !s.bindSnapshot(c, &req) {
		return
	}

	issues := s.assessments.Check(c.Request.Context(), req.Answers)
	c.JSON(http.StatusOK, consistencyResponse{
		Issues:  issues,
		Summary: domain.Summarize(issues),
	})
}

// handleAssessment runs the full pipeline, including cache and audit log
func (s *Server) handleAssessment(c *gin.Context) {
	var req snapshotRequest
	if !s.bindSnapshot(c, &req) {
		return
	}

	assessment, err := s.assessments.AssessSubmission(c.Request.Context(), req.Answers, service.AssessParams{
		SubmissionID: req.SubmissionID,
		RequestID:    middleware.GetCorrelationID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) handleNarrativeReview(c *gin.Context) {
	var req narrativeReviewRequest
	if !s.bindSnapshot(c, &req) {
		return
	}

	var result *domain.DeterminationResult
	if req.IncludeDetermination == nil || *req.IncludeDetermination {
		result = s.assessments.Classify(c.Request.Context(), req.Answers)
	}
	c.JSON(http.StatusOK, service.BuildNarrativeReviewRequest(req.Answers, result))
}

func (s *Server) handleGetDetermination(c *gin.Context) {
	record, err := s.assessments.GetDetermination(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleDeterminationHistory(c *gin.Context) {
	hash := c.Query("snapshotHash")
	if hash == "" {
		s.respondError(c, domain.NewValidationError("snapshotHash", "snapshotHash is required", nil))
		return
	}
	limit, err := queryInt(c, "limit", defaultFeedbackLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	records, err := s.assessments.DeterminationHistory(c.Request.Context(), hash, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"determinations": records, "snapshotHash": hash})
}

func (s *Server) handleDeterminationStats(c *gin.Context) {
	counts, err := s.assessments.DeterminationStats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"byReviewType": counts, "total": total})
}

func (s *Server) handleSaveFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}

	var fb feedback.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		s.respondMalformedBody(c, err)
		return
	}
	if err := s.feedback.Save(c.Request.Context(), &fb); err != nil {
		s.respondError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"submission_id":   fb.SubmissionID,
		"reviewer_agreed": fb.ReviewerAgreed,
		"correlation_id":  middleware.GetCorrelationID(c),
	}).Info("Feedback saved")

	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}

	limit, err := queryInt(c, "limit", defaultFeedbackLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit <= 0 {
		limit = defaultFeedbackLimit
	}
	if limit > maxFeedbackLimit {
		limit = maxFeedbackLimit
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	entries, err := s.feedback.List(ctx, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.feedback.Count(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	c.JSON(http.StatusOK, feedbackListResponse{
		Feedback: entries,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) handleGetFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}

	fb, err := s.feedback.Get(c.Request.Context(), c.Param("submission_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}

// bindSnapshot decodes the body and insists on an answers object.
func (s *Server) bindSnapshot(c *gin.Context, req interface{ snapshot() *domain.AnswerSnapshot }) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.respondMalformedBody(c, err)
		return false
	}
	if req.snapshot() == nil {
		s.respondError(c, domain.NewValidationError("answers", "answers object is required", nil))
		return false
	}
	return true
}

func (r *snapshotRequest) snapshot() *domain.AnswerSnapshot { return r.Answers }

func (s *Server) requireFeedback(c *gin.Context) bool {
	if s.feedback != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(
		domain.ErrUnavailable,
		"Feedback storage is not configured",
		"",
		middleware.GetCorrelationID(c),
	))
	return false
}

// respondMalformedBody rejects a body that is not valid JSON for the endpoint.
func (s *Server) respondMalformedBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "Malformed request body", err.Error(), middleware.GetCorrelationID(c)))
}

// respondError maps service errors onto status codes and an APIError body
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := middleware.GetCorrelationID(c)

	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		code := domain.ErrValidation
		if errors.Is(err, domain.ErrInvalidReviewType) {
			code = domain.ErrInvalidInput
		}
		c.JSON(http.StatusBadRequest, domain.NewAPIError(code, validationErr.Message, validationErr.Field, requestID))
	case errors.Is(err, domain.ErrUnknownRule):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrNotFoundCode, "Unknown determination rule", err.Error(), requestID))
	case errors.Is(err, service.ErrNoAuditLog):
		c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(domain.ErrUnavailable, "Determination audit log is not configured", "", requestID))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrNotFoundCode, "Resource not found", "", requestID))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, domain.NewAPIError(domain.ErrDetermination, "Request timeout", "", requestID))
	default:
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Request failed")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer", raw)
	}
	return n, nil
}

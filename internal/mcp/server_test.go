package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irb-determination-server/internal/config"
	"github.com/irb-determination-server/internal/domain"
	"github.com/irb-determination-server/internal/feedback"
	"github.com/irb-determination-server/internal/service"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestLiteServer(t *testing.T) *LiteServer {
	t.Helper()
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()

	server, err := NewLiteServer(cfg, WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

// surveyAnswers is a minimal risk adult survey in wire form.
func surveyAnswers() map[string]any {
	return map[string]any{
		"prescreening": map[string]any{
			"systematicInvestigation":   true,
			"generalizableKnowledge":    true,
			"involvesLivingIndividuals": true,
			"interactionOrIntervention": true,
			"identifiablePrivateInfo":   false,
		},
		"subjects": map[string]any{
			"includesMinors":              false,
			"includesPrisoners":           false,
			"includesPregnantWomen":       false,
			"includesCognitivelyImpaired": false,
			"minAge":                      "18",
			"maxAge":                      "65",
		},
		"procedures": map[string]any{
			"methods":                []any{"survey"},
			"involvesDeception":      false,
			"collectsBiospecimens":   false,
			"involvesRecording":      false,
			"involvesDrugsOrDevices": false,
		},
		"risks": map[string]any{
			"riskLevel":          "minimal",
			"physicalRisks":      false,
			"psychologicalRisks": false,
			"sensitiveTopics":    false,
		},
		"data": map[string]any{
			"anonymousData":       true,
			"collectsIdentifiers": false,
		},
		"consent": map[string]any{
			"waiverRequested": false,
		},
	}
}

func withSection(answers map[string]any, section, field string, value any) map[string]any {
	answers[section].(map[string]any)[field] = value
	return answers
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewLiteServer(t *testing.T) {
	server := newTestLiteServer(t)

	assert.NotNil(t, server.GetFeedbackStore())
	assert.NotNil(t, server.GetCache())
	assert.FileExists(t, server.config.FeedbackDBPath())
}

func TestNewLiteServer_RejectsNilLogger(t *testing.T) {
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()

	_, err := NewLiteServer(cfg, WithLogger(nil))
	assert.Error(t, err)
}

func TestDetermineReviewType(t *testing.T) {
	server := newTestLiteServer(t)
	ctx := context.Background()

	res, out, err := server.handleDetermineReviewType(ctx, nil, AnswersParams{Answers: surveyAnswers()})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	result, ok := out.(DetermineReviewTypeResult)
	require.True(t, ok)
	assert.Equal(t, domain.ReviewExempt, result.Type)
	assert.Equal(t, "Exempt Review", result.ReviewType.Label)
	assert.Contains(t, resultText(t, res), "Exempt Review")

	prisoners := withSection(surveyAnswers(), "subjects", "includesPrisoners", true)
	_, out, err = server.handleDetermineReviewType(ctx, nil, AnswersParams{Answers: prisoners})
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewFullBoard, out.(DetermineReviewTypeResult).Type)
}

func TestDetermineReviewType_EmptyAnswers(t *testing.T) {
	server := newTestLiteServer(t)

	_, out, err := server.handleDetermineReviewType(context.Background(), nil, AnswersParams{})
	require.NoError(t, err)
	result := out.(DetermineReviewTypeResult)
	assert.Equal(t, domain.ReviewInsufficientInfo, result.Type)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestCheckConsistency(t *testing.T) {
	server := newTestLiteServer(t)

	answers := withSection(surveyAnswers(), "subjects", "minAge", "20")
	answers = withSection(answers, "subjects", "maxAge", "15")

	res, out, err := server.handleCheckConsistency(context.Background(), nil, AnswersParams{Answers: answers})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	result := out.(ConsistencyResult)
	var ageErrors []domain.ConsistencyIssue
	for _, issue := range result.Issues {
		if issue.Field == "minAge" && issue.Severity == domain.SeverityError {
			ageErrors = append(ageErrors, issue)
		}
	}
	assert.Len(t, ageErrors, 1)
	assert.GreaterOrEqual(t, result.Summary.Errors, 1)
}

func TestAssessSubmission_UsesCache(t *testing.T) {
	server := newTestLiteServer(t)
	ctx := context.Background()
	params := AssessSubmissionParams{SubmissionID: "sub-1", Answers: surveyAnswers()}

	_, out, err := server.handleAssessSubmission(ctx, nil, params)
	require.NoError(t, err)
	first := out.(*service.Assessment)
	assert.False(t, first.Cached)

	_, out, err = server.handleAssessSubmission(ctx, nil, params)
	require.NoError(t, err)
	second := out.(*service.Assessment)
	assert.True(t, second.Cached)
	assert.Equal(t, first.SnapshotHash, second.SnapshotHash)
	assert.Equal(t, 1, server.GetCache().Len())
}

func TestApplyRule(t *testing.T) {
	server := newTestLiteServer(t)
	ctx := context.Background()

	answers := withSection(surveyAnswers(), "subjects", "includesPrisoners", true)
	res, out, err := server.handleApplyRule(ctx, nil, ApplyRuleParams{Rule: "fb-prisoners", Answers: answers})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	eval := out.(*domain.RuleEvaluation)
	assert.True(t, eval.Fired)
	assert.Contains(t, resultText(t, res), "fired")

	res, _, err = server.handleApplyRule(ctx, nil, ApplyRuleParams{Rule: "XYZ", Answers: answers})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Unknown rule")

	res, _, err = server.handleApplyRule(ctx, nil, ApplyRuleParams{Answers: answers})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListReviewTypes(t *testing.T) {
	server := newTestLiteServer(t)

	_, out, err := server.handleListReviewTypes(context.Background(), nil, ListReviewTypesParams{})
	require.NoError(t, err)
	result := out.(ReviewTypesResult)
	assert.Len(t, result.ReviewTypes, len(domain.ReviewTypes()))
	assert.Empty(t, result.DeterminationRules)

	_, out, err = server.handleListReviewTypes(context.Background(), nil, ListReviewTypesParams{IncludeRules: true})
	require.NoError(t, err)
	result = out.(ReviewTypesResult)
	assert.NotEmpty(t, result.DeterminationRules)
	assert.NotEmpty(t, result.ConsistencyRules)
}

func TestBuildNarrativeReview(t *testing.T) {
	server := newTestLiteServer(t)

	answers := surveyAnswers()
	answers["study"] = map[string]any{"title": "Commuting habits of university staff"}

	_, out, err := server.handleBuildNarrativeReview(context.Background(), nil, NarrativeReviewParams{Answers: answers})
	require.NoError(t, err)
	payload := out.(*service.NarrativeReviewRequest)
	require.NotNil(t, payload.RulesBased)
	assert.Equal(t, "Commuting habits of university staff", payload.Sections[domain.SectionStudy]["title"])

	_, out, err = server.handleBuildNarrativeReview(context.Background(), nil, NarrativeReviewParams{Answers: answers, SkipDetermination: true})
	require.NoError(t, err)
	assert.Nil(t, out.(*service.NarrativeReviewRequest).RulesBased)
}

func TestFeedbackTools(t *testing.T) {
	server := newTestLiteServer(t)
	ctx := context.Background()

	res, out, err := server.handleSubmitFeedback(ctx, nil, SubmitFeedbackParams{
		SubmissionID:        "sub-1",
		SuggestedReviewType: "EXEMPT",
		ReviewerReviewType:  "EXPEDITED",
		Reasons:             []string{"audio recordings"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	submitted := out.(SubmitFeedbackResult)
	assert.False(t, submitted.Feedback.ReviewerAgreed)
	assert.Contains(t, submitted.Message, "corrected from EXEMPT to EXPEDITED")

	_, out, err = server.handleSubmitFeedback(ctx, nil, SubmitFeedbackParams{
		SubmissionID:        "sub-2",
		SuggestedReviewType: "FULL_BOARD",
		ReviewerReviewType:  "FULL_BOARD",
	})
	require.NoError(t, err)
	assert.True(t, out.(SubmitFeedbackResult).Feedback.ReviewerAgreed)

	_, out, err = server.handleQueryFeedback(ctx, nil, QueryFeedbackParams{SubmissionID: "sub-1"})
	require.NoError(t, err)
	query := out.(QueryFeedbackResult)
	assert.True(t, query.Found)
	assert.Equal(t, domain.ReviewExpedited, query.Feedback.ReviewerReviewType)

	_, out, err = server.handleQueryFeedback(ctx, nil, QueryFeedbackParams{SubmissionID: "missing"})
	require.NoError(t, err)
	assert.False(t, out.(QueryFeedbackResult).Found)

	_, out, err = server.handleListFeedback(ctx, nil, ListFeedbackParams{Limit: 1000})
	require.NoError(t, err)
	list := out.(ListFeedbackResult)
	assert.Len(t, list.Feedback, 2)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, maxListLimit, list.Limit)
}

func TestSubmitFeedback_Invalid(t *testing.T) {
	server := newTestLiteServer(t)

	res, _, err := server.handleSubmitFeedback(context.Background(), nil, SubmitFeedbackParams{
		SubmissionID:        "sub-1",
		SuggestedReviewType: "MAYBE",
		ReviewerReviewType:  "EXEMPT",
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "suggested_review_type")
}

func TestExportImportFeedback(t *testing.T) {
	source := newTestLiteServer(t)
	ctx := context.Background()

	for _, id := range []string{"sub-1", "sub-2"} {
		require.NoError(t, source.GetFeedbackStore().Save(ctx, &feedback.Feedback{
			SubmissionID:        id,
			SuggestedReviewType: domain.ReviewExempt,
			ReviewerReviewType:  domain.ReviewExempt,
			ReviewerAgreed:      true,
			CreatedAt:           time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		}))
	}

	_, out, err := source.handleExportFeedback(ctx, nil, ExportFeedbackParams{})
	require.NoError(t, err)
	export := out.(ExportFeedbackResult)
	assert.Equal(t, int64(2), export.Count)
	require.FileExists(t, export.FilePath)
	assert.Equal(t, source.config.ExportDir(), filepath.Dir(export.FilePath))

	data, err := os.ReadFile(export.FilePath)
	require.NoError(t, err)
	var doc feedback.FeedbackExport
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, feedback.ExportVersion, doc.Version)

	target := newTestLiteServer(t)
	_, out, err = target.handleImportFeedback(ctx, nil, ImportFeedbackParams{FilePath: export.FilePath})
	require.NoError(t, err)
	imported := out.(ImportFeedbackResult)
	assert.Equal(t, 2, imported.Imported)
	assert.Equal(t, 0, imported.Skipped)

	_, out, err = target.handleImportFeedback(ctx, nil, ImportFeedbackParams{FilePath: export.FilePath})
	require.NoError(t, err)
	assert.Equal(t, 2, out.(ImportFeedbackResult).Skipped)

	res, _, err := target.handleImportFeedback(ctx, nil, ImportFeedbackParams{FilePath: filepath.Join(t.TempDir(), "nope.json")})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irb-determination-server/internal/domain"
)

func TestDeterminationEngine_Classify(t *testing.T) {
	engine := NewDeterminationEngine()

	tests := []struct {
		name             string
		snapshot         func() *domain.AnswerSnapshot
		expectedType     domain.ReviewType
		expectedCategory string
		expectedReasons  int
	}{
		{
			name:             "complete minimal risk survey is exempt category 2",
			snapshot:         surveySnapshot,
			expectedType:     domain.ReviewExempt,
			expectedCategory: "2",
			expectedReasons:  1,
		},
		{
			name: "secondary use of existing data is exempt category 4",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.Methods, []string{domain.MethodExistingData})
			},
			expectedType:     domain.ReviewExempt,
			expectedCategory: "4",
			expectedReasons:  1,
		},
		{
			name: "benign intervention with adults is exempt category 3",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.Methods, []string{domain.MethodBenignIntervention, domain.MethodSurvey})
			},
			expectedType:     domain.ReviewExempt,
			expectedCategory: "3",
			expectedReasons:  1,
		},
		{
			name: "recordings move a survey to expedited category 6",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.InvolvesRecording, true)
			},
			expectedType:     domain.ReviewExpedited,
			expectedCategory: "6",
			expectedReasons:  1,
		},
		{
			name: "identifiable sensitive data is expedited category 7",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().
					Set(domain.CollectsIdentifiers, true).
					Set(domain.AnonymousData, false).
					Set(domain.SensitiveTopics, true)
			},
			expectedType:     domain.ReviewExpedited,
			expectedCategory: "7",
			expectedReasons:  2,
		},
		{
			name: "debriefed deception is expedited",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().
					Set(domain.InvolvesDeception, true).
					Set(domain.DeceptionDebriefing, true).
					Set(domain.DebriefingPlan, "Debrief in person after the session")
			},
			expectedType:     domain.ReviewExpedited,
			expectedCategory: "7",
			expectedReasons:  1,
		},
		{
			name: "deception without debriefing requires the full board",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.InvolvesDeception, true).Set(domain.DeceptionDebriefing, false)
			},
			expectedType:    domain.ReviewFullBoard,
			expectedReasons: 1,
		},
		{
			name: "prisoners require the full board",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.IncludesPrisoners, true)
			},
			expectedType:    domain.ReviewFullBoard,
			expectedReasons: 1,
		},
		{
			name: "blood draw over 550 mL requires the full board",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().
					Set(domain.CollectsBiospecimens, true).
					Set(domain.BloodDrawVolume, "600")
			},
			expectedType:    domain.ReviewFullBoard,
			expectedReasons: 1,
		},
		{
			name: "several full board triggers are all reported",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().
					Set(domain.IncludesPregnantWomen, true).
					Set(domain.InvolvesDrugsOrDevices, true).
					Set(domain.RiskLevel, domain.RiskGreaterThanMinimal)
			},
			expectedType:    domain.ReviewFullBoard,
			expectedReasons: 3,
		},
		{
			name: "no systematic investigation is not research",
			snapshot: func() *domain.AnswerSnapshot {
				return domain.NewSnapshot().Set(domain.SystematicInvestigation, false)
			},
			expectedType:    domain.ReviewNotResearch,
			expectedReasons: 1,
		},
		{
			name: "no living individuals is not human subjects research",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.InvolvesLivingIndividuals, false)
			},
			expectedType:    domain.ReviewNotHumanSubjects,
			expectedReasons: 1,
		},
		{
			name: "no interaction and no identifiable information is not human subjects research",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.InteractionOrIntervention, false)
			},
			expectedType:    domain.ReviewNotHumanSubjects,
			expectedReasons: 1,
		},
		{
			name:            "empty snapshot has insufficient information",
			snapshot:        domain.NewSnapshot,
			expectedType:    domain.ReviewInsufficientInfo,
			expectedReasons: len(requiredFields),
		},
		{
			name: "unrecognized risk level counts as missing",
			snapshot: func() *domain.AnswerSnapshot {
				return surveySnapshot().Set(domain.RiskLevel, "moderate")
			},
			expectedType:    domain.ReviewInsufficientInfo,
			expectedReasons: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Classify(tt.snapshot())

			assert.Equal(t, tt.expectedType, result.Type)
			assert.Equal(t, tt.expectedCategory, result.Category)
			assert.Len(t, result.Reasons, tt.expectedReasons, result.Reasons)
			assert.GreaterOrEqual(t, result.Confidence, 0.0)
			assert.LessOrEqual(t, result.Confidence, 1.0)
			assert.NotEmpty(t, result.Recommendations)
		})
	}
}

func TestDeterminationEngine_CompleteSurvey(t *testing.T) {
	result := NewDeterminationEngine().Classify(surveySnapshot())

	assert.Equal(t, domain.ReviewExempt, result.Type)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Contains(t, result.CategoryLabel, "Exempt Category 2")
	assert.Empty(t, result.Flags)
	assert.Equal(t, []string{"EX-2"}, traceCodes(result))

	require.GreaterOrEqual(t, len(result.Recommendations), 2)
	assert.Equal(t, domain.RecommendReviewPath, result.Recommendations[0].Type)
	assert.Equal(t, domain.RecommendExemption, result.Recommendations[1].Type)
}

func TestDeterminationEngine_ReasonsOnlyFromWinningTier(t *testing.T) {
	snapshot := surveySnapshot().
		Set(domain.IncludesPrisoners, true).
		Set(domain.InvolvesRecording, true)

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Equal(t, domain.ReviewFullBoard, result.Type)
	assert.Equal(t, []string{"Research involving prisoners requires full board review (45 CFR 46 Subpart C)"}, result.Reasons)
	assert.Equal(t, []string{"FB-PRISONERS", "EXP-RECORDING", "EX-2"}, traceCodes(result))
	assert.Empty(t, result.Category, "category comes from winning rules only")
}

func TestDeterminationEngine_FullBoardIsDecisiveOnIncompleteSnapshot(t *testing.T) {
	snapshot := domain.NewSnapshot().Set(domain.IncludesPrisoners, true)

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Equal(t, domain.ReviewFullBoard, result.Type)
	assert.InDelta(t, 2.0/31.0, result.Confidence, 1e-9)
	assert.Contains(t, flagMessages(result), "Low confidence (6%): many questions are still unanswered, so this determination may change")
}

func TestDeterminationEngine_FullBoardOverridesGate(t *testing.T) {
	snapshot := surveySnapshot().
		Set(domain.GeneralizableKnowledge, false).
		Set(domain.IncludesMinors, true).
		Set(domain.MinAge, "12")

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Equal(t, domain.ReviewFullBoard, result.Type)
	require.NotEmpty(t, result.Flags)
	assert.Equal(t, domain.SeverityWarning, result.Flags[0].Severity)
	assert.Contains(t, result.Flags[0].Message, "Not Research")
	assert.Contains(t, traceCodes(result), "NR-GENERALIZABLE")
}

func TestDeterminationEngine_InteractionEvidenceOverridesGate(t *testing.T) {
	snapshot := surveySnapshot().
		Set(domain.InteractionOrIntervention, false).
		Set(domain.IdentifiablePrivateInfo, false).
		Set(domain.Methods, []string{domain.MethodInterview, domain.MethodBiospecimen}).
		Set(domain.InvolvesRecording, true).
		Set(domain.CollectsBiospecimens, true).
		Set(domain.CollectsIdentifiers, true).
		Set(domain.SensitiveTopics, true)

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Equal(t, domain.ReviewExpedited, result.Type)
	assert.Contains(t, traceCodes(result), "NHS-NO-INTERACTION")
	assert.Contains(t, traceCodes(result), "EXP-RECORDING")
	require.NotEmpty(t, result.Flags)
	assert.Equal(t, domain.SeverityWarning, result.Flags[0].Severity)
	assert.Contains(t, result.Flags[0].Message, "Not Human Subjects")
	assert.Contains(t, result.Flags[0].Message, "method interview")
	assert.Contains(t, result.Flags[0].Message, "identifiers are collected")
}

func TestDeterminationEngine_GateHoldsWithoutInteractionEvidence(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *domain.AnswerSnapshot
		expected domain.ReviewType
	}{
		{
			name: "anonymous survey without interaction",
			snapshot: surveySnapshot().
				Set(domain.InteractionOrIntervention, false),
			expected: domain.ReviewNotHumanSubjects,
		},
		{
			name: "not research ignores interaction evidence",
			snapshot: surveySnapshot().
				Set(domain.SystematicInvestigation, false).
				Set(domain.InvolvesRecording, true),
			expected: domain.ReviewNotResearch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewDeterminationEngine().Classify(tt.snapshot)

			assert.Equal(t, tt.expected, result.Type)
			assert.Empty(t, result.Flags)
		})
	}
}

func TestDeterminationEngine_MinimalRiskSurveyScenario(t *testing.T) {
	snapshot := domain.NewSnapshot().
		Set(domain.SystematicInvestigation, true).
		Set(domain.GeneralizableKnowledge, true).
		Set(domain.InvolvesLivingIndividuals, true).
		Set(domain.InteractionOrIntervention, true).
		Set(domain.IncludesMinors, false).
		Set(domain.IncludesPrisoners, false).
		Set(domain.IncludesPregnantWomen, false).
		Set(domain.IncludesCognitivelyImpaired, false).
		Set(domain.RiskLevel, domain.RiskMinimal).
		Set(domain.InvolvesDeception, false).
		Set(domain.CollectsBiospecimens, false)

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Contains(t, []domain.ReviewType{domain.ReviewExempt, domain.ReviewExpedited}, result.Type)
	assert.Greater(t, result.Confidence, 0.5)
	assert.InDelta(t, 24.0/31.0, result.Confidence, 1e-9)
	assert.Empty(t, domain.FilterBySeverity(newTestChecker().Check(snapshot), domain.SeverityError))
}

func TestDeterminationEngine_IdentifiableInfoRequiredWithoutInteraction(t *testing.T) {
	snapshot := surveySnapshot().
		Set(domain.InteractionOrIntervention, false).
		Set(domain.IdentifiablePrivateInfo, nil)

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Equal(t, domain.ReviewInsufficientInfo, result.Type)
	assert.Equal(t, []string{"Missing answer: Is identifiable private information obtained?"}, result.Reasons)
}

func TestDeterminationEngine_MinorBloodDrawLimit(t *testing.T) {
	snapshot := surveySnapshot().
		Set(domain.IncludesMinors, true).
		Set(domain.MinAge, "12").
		Set(domain.CollectsBiospecimens, true).
		Set(domain.BloodDrawVolume, "100")

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Equal(t, domain.ReviewFullBoard, result.Type)
	assert.Contains(t, traceCodes(result), "FB-BLOOD-DRAW")
	assert.Contains(t, result.Reasons, "Blood draw of 100 mL exceeds the 50 mL expedited limit for minors")

	adults := surveySnapshot().
		Set(domain.CollectsBiospecimens, true).
		Set(domain.BloodDrawVolume, "100")
	assert.NotContains(t, traceCodes(NewDeterminationEngine().Classify(adults)), "FB-BLOOD-DRAW")
}

func TestDeterminationEngine_InsufficientInfo(t *testing.T) {
	snapshot := surveySnapshot().Set(domain.IncludesPregnantWomen, nil)

	result := NewDeterminationEngine().Classify(snapshot)

	assert.Equal(t, domain.ReviewInsufficientInfo, result.Type)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, []string{"Missing answer: Are pregnant women included?"}, result.Reasons)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, domain.RecommendMissingInfo, result.Recommendations[0].Type)
	assert.Contains(t, result.Recommendations[0].Body, "Subjects & Recruitment")
}

func TestDeterminationEngine_Flags(t *testing.T) {
	engine := NewDeterminationEngine()

	tests := []struct {
		name     string
		snapshot *domain.AnswerSnapshot
		severity domain.Severity
		contains string
	}{
		{
			name:     "minimal risk with reported physical risks",
			snapshot: surveySnapshot().Set(domain.PhysicalRisks, true),
			severity: domain.SeverityWarning,
			contains: "declared minimal",
		},
		{
			name:     "large enrollment",
			snapshot: surveySnapshot().Set(domain.TargetEnrollment, "1500"),
			severity: domain.SeverityInfo,
			contains: "1500 participants",
		},
		{
			name:     "federally funded multi-site study",
			snapshot: surveySnapshot().Set(domain.FederallyFunded, true).Set(domain.IsMultiSite, true),
			severity: domain.SeverityInfo,
			contains: "single IRB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Classify(tt.snapshot)

			require.Len(t, result.Flags, 1)
			assert.Equal(t, tt.severity, result.Flags[0].Severity)
			assert.Contains(t, result.Flags[0].Message, tt.contains)
		})
	}
}

func TestDeterminationEngine_MonotonicEscalation(t *testing.T) {
	engine := NewDeterminationEngine()
	base := engine.Classify(surveySnapshot())

	triggers := map[string]func(*domain.AnswerSnapshot){
		"prisoners":  func(s *domain.AnswerSnapshot) { s.Set(domain.IncludesPrisoners, true) },
		"minors":     func(s *domain.AnswerSnapshot) { s.Set(domain.IncludesMinors, true) },
		"pregnant":   func(s *domain.AnswerSnapshot) { s.Set(domain.IncludesPregnantWomen, true) },
		"cognitive":  func(s *domain.AnswerSnapshot) { s.Set(domain.IncludesCognitivelyImpaired, true) },
		"risk":       func(s *domain.AnswerSnapshot) { s.Set(domain.RiskLevel, domain.RiskGreaterThanMinimal) },
		"drugs":      func(s *domain.AnswerSnapshot) { s.Set(domain.InvolvesDrugsOrDevices, true) },
		"recording":  func(s *domain.AnswerSnapshot) { s.Set(domain.InvolvesRecording, true) },
		"waiver":     func(s *domain.AnswerSnapshot) { s.Set(domain.WaiverRequested, true) },
		"biospecims": func(s *domain.AnswerSnapshot) { s.Set(domain.CollectsBiospecimens, true) },
	}

	for name, apply := range triggers {
		t.Run(name, func(t *testing.T) {
			snapshot := surveySnapshot()
			apply(snapshot)
			escalated := engine.Classify(snapshot)
			assert.GreaterOrEqual(t, escalated.Type.OversightLevel(), base.Type.OversightLevel())
			assert.Greater(t, escalated.Type.OversightLevel(), domain.ReviewExempt.OversightLevel())
		})
	}
}

func TestDeterminationEngine_ConfidenceMonotonicity(t *testing.T) {
	engine := NewDeterminationEngine()
	complete := surveySnapshot()

	snapshot := domain.NewSnapshot()
	previous := engine.Classify(snapshot).Confidence
	for _, ref := range domain.Catalog {
		snapshot.Set(ref, complete.ToMap()[string(ref.Section)][ref.Name])
		current := engine.Classify(snapshot).Confidence
		assert.GreaterOrEqual(t, current, previous, "answering %s lowered confidence", ref)
		previous = current
	}
	assert.Equal(t, 1.0, previous)
}

func TestDeterminationEngine_Idempotent(t *testing.T) {
	engine := NewDeterminationEngine()
	snapshot := surveySnapshot().Set(domain.InvolvesRecording, true)
	hash := snapshot.Hash()

	first := engine.Classify(snapshot)
	second := engine.Classify(snapshot)

	assert.Equal(t, first, second)
	assert.Equal(t, hash, snapshot.Hash(), "classification must not mutate the snapshot")
}

func TestDeterminationEngine_TotalOnNil(t *testing.T) {
	result := NewDeterminationEngine().Classify(nil)
	assert.Equal(t, domain.ReviewInsufficientInfo, result.Type)
}

func TestDeterminationEngine_ConcurrentUse(t *testing.T) {
	engine := NewDeterminationEngine()
	snapshot := surveySnapshot()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, domain.ReviewExempt, engine.Classify(snapshot).Type)
		}()
	}
	wg.Wait()
}

func TestDeterminationEngine_EvaluateRule(t *testing.T) {
	engine := NewDeterminationEngine()

	eval, err := engine.EvaluateRule("FB-MINORS", surveySnapshot().Set(domain.IncludesMinors, true))
	require.NoError(t, err)
	assert.True(t, eval.Fired)
	assert.Equal(t, domain.ReviewFullBoard, eval.Tier)
	assert.NotEmpty(t, eval.Reason)

	eval, err = engine.EvaluateRule("EX-2", surveySnapshot())
	require.NoError(t, err)
	assert.True(t, eval.Fired)
	assert.Equal(t, "2", eval.Category)

	eval, err = engine.EvaluateRule("EXP-RECORDING", surveySnapshot())
	require.NoError(t, err)
	assert.False(t, eval.Fired)
	assert.Empty(t, eval.Reason)

	_, err = engine.EvaluateRule("PVS1", surveySnapshot())
	assert.True(t, errors.Is(err, domain.ErrUnknownRule))
}

func TestDeterminationEngine_Rules(t *testing.T) {
	rules := NewDeterminationEngine().Rules()

	require.NotEmpty(t, rules)
	assert.Equal(t, "NR-SYSTEMATIC", rules[0].Code)

	seen := make(map[string]bool)
	for _, r := range rules {
		assert.False(t, seen[r.Code], "duplicate rule code %s", r.Code)
		seen[r.Code] = true
		assert.True(t, r.Tier.IsValid())
		assert.NotEqual(t, domain.ReviewInsufficientInfo, r.Tier)
	}
}

func TestConfidenceWeights(t *testing.T) {
	var total float64
	for _, f := range requiredFields {
		total += f.weight
	}
	for _, f := range supportingFields {
		total += f.weight
	}
	assert.Equal(t, 31.0, total)

	snapshot := domain.NewSnapshot().
		Set(domain.IncludesMinors, false).
		Set(domain.InvolvesRecording, false)
	assert.InDelta(t, 3.0/31.0, confidence(snapshot), 1e-9)

	snapshot.Set(domain.InteractionOrIntervention, true)
	assert.InDelta(t, 7.0/31.0, confidence(snapshot), 1e-9, "confirmed interaction settles identifiable information")
}

func flagMessages(result *domain.DeterminationResult) []string {
	out := make([]string, 0, len(result.Flags))
	for _, f := range result.Flags {
		out = append(out, f.Message)
	}
	return out
}

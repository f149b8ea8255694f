package service

import (
	"fmt"
	"strings"

	"github.com/irb-determination-server/internal/domain"
)

// DeterminationEngine classifies answer snapshots into review tiers.
// It holds no mutable state after construction and is safe for concurrent use.
type DeterminationEngine struct {
	rules []*DeterminationRule
	index map[string]int
}

// firedRule pairs a rule with the reason it produced for one snapshot.
type firedRule struct {
	rule   *DeterminationRule
	reason string
}

// weightedField is one entry of the fixed confidence field set.
type weightedField struct {
	ref    domain.FieldRef
	label  string
	weight float64
}

// requiredFields must be answered before a tier below FULL_BOARD is
// reported. Each counts double towards confidence. Identifiable private
// information only decides the human subjects gate, so it is not needed
// once interaction is confirmed.
var requiredFields = []weightedField{
	{domain.SystematicInvestigation, "Is the activity a systematic investigation?", 2},
	{domain.GeneralizableKnowledge, "Is it designed to contribute to generalizable knowledge?", 2},
	{domain.InvolvesLivingIndividuals, "Does it involve living individuals?", 2},
	{domain.InteractionOrIntervention, "Is there interaction or intervention with participants?", 2},
	{domain.IdentifiablePrivateInfo, "Is identifiable private information obtained?", 2},
	{domain.IncludesMinors, "Are minors included?", 2},
	{domain.IncludesPrisoners, "Are prisoners included?", 2},
	{domain.IncludesPregnantWomen, "Are pregnant women included?", 2},
	{domain.IncludesCognitivelyImpaired, "Are cognitively impaired adults included?", 2},
	{domain.RiskLevel, "What is the overall risk level?", 2},
	{domain.InvolvesDeception, "Does the study involve deception?", 2},
	{domain.CollectsBiospecimens, "Are biospecimens collected?", 2},
}

// supportingFields refine the determination without blocking it.
var supportingFields = []weightedField{
	{domain.DeceptionDebriefing, "Will deceived participants be debriefed?", 1},
	{domain.InvolvesDrugsOrDevices, "Are drugs or devices involved?", 1},
	{domain.InvolvesRecording, "Are participants recorded?", 1},
	{domain.CollectsIdentifiers, "Are identifiers collected?", 1},
	{domain.SensitiveTopics, "Are sensitive topics covered?", 1},
	{domain.WaiverRequested, "Is a consent waiver requested?", 1},
	{domain.Methods, "Which research methods are used?", 1},
}

// NewDeterminationEngine creates an engine with the full rule catalog
func NewDeterminationEngine() *DeterminationEngine {
	engine := &DeterminationEngine{
		index: make(map[string]int),
	}
	engine.initializeRules()
	return engine
}

// Rules lists the catalog in evaluation order.
func (e *DeterminationEngine) Rules() []domain.RuleInfo {
	out := make([]domain.RuleInfo, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule.Info())
	}
	return out
}

// EvaluateRule evaluates a single rule in isolation
func (e *DeterminationEngine) EvaluateRule(code string, snapshot *domain.AnswerSnapshot) (*domain.RuleEvaluation, error) {
	i, exists := e.index[code]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRule, code)
	}
	if snapshot == nil {
		snapshot = domain.NewSnapshot()
	}

	rule := e.rules[i]
	fired, reason := rule.Evaluate(snapshot)
	return &domain.RuleEvaluation{
		RuleInfo: rule.Info(),
		Fired:    fired,
		Reason:   reason,
	}, nil
}

// Classify infers the review tier for a snapshot. It is deterministic and
// total: every snapshot, including an empty one, yields exactly one tier.
func (e *DeterminationEngine) Classify(snapshot *domain.AnswerSnapshot) *domain.DeterminationResult {
	if snapshot == nil {
		snapshot = domain.NewSnapshot()
	}

	var gates, fullBoard, tiered []firedRule
	trace := make([]domain.RuleFiring, 0)

	for _, rule := range e.rules {
		fired, reason := rule.Evaluate(snapshot)
		if !fired {
			continue
		}
		f := firedRule{rule: rule, reason: reason}
		trace = append(trace, domain.RuleFiring{
			Code:     rule.Code,
			Name:     rule.Name,
			Tier:     rule.Tier,
			Category: rule.Category,
			Reason:   reason,
		})

		switch {
		case rule.isGate():
			gates = append(gates, f)
		case rule.Tier == domain.ReviewFullBoard:
			fullBoard = append(fullBoard, f)
			tiered = append(tiered, f)
		default:
			tiered = append(tiered, f)
		}
	}

	result := &domain.DeterminationResult{
		Reasons:         []string{},
		Recommendations: []domain.Recommendation{},
		Flags:           []domain.Flag{},
		Trace:           trace,
	}

	// Gates decide unless later answers contradict them.
	if len(gates) > 0 {
		gateTier := gates[0].rule.Tier
		contradictions := make([]string, 0, len(fullBoard))
		for _, f := range fullBoard {
			contradictions = append(contradictions, f.rule.Code)
		}
		if gateTier == domain.ReviewNotHumanSubjects {
			contradictions = append(contradictions, humanSubjectsEvidence(snapshot)...)
		}

		if len(contradictions) == 0 {
			for _, g := range gates {
				if g.rule.Tier == gateTier {
					result.Reasons = append(result.Reasons, g.reason)
				}
			}
			result.Type = gateTier
			result.Confidence = confidence(snapshot)
			result.Flags = buildFlags(result, snapshot)
			result.Recommendations = buildRecommendations(result, nil, nil, snapshot)
			return result
		}
		result.Flags = append(result.Flags, domain.Flag{
			Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("Prescreening answers indicate %s, but later answers contradict them (%s); the prescreening answers should be reviewed",
				gateTier.Info().Label, strings.Join(contradictions, ", ")),
		})
	}

	if len(fullBoard) == 0 {
		if missing := missingRequired(snapshot); len(missing) > 0 {
			result.Type = domain.ReviewInsufficientInfo
			result.Confidence = 0
			for _, m := range missing {
				result.Reasons = append(result.Reasons, "Missing answer: "+m.label)
			}
			result.Recommendations = buildRecommendations(result, nil, missing, snapshot)
			return result
		}
	}

	winners := winningRules(tiered)
	if len(winners) == 0 {
		result.Type = domain.ReviewInsufficientInfo
		result.Reasons = append(result.Reasons, "No determination rule applies to the answers provided")
		result.Recommendations = buildRecommendations(result, nil, nil, snapshot)
		return result
	}
	result.Type = winners[0].rule.Tier
	for _, w := range winners {
		result.Reasons = append(result.Reasons, w.reason)
		if result.Category == "" && w.rule.Category != "" {
			result.Category = w.rule.Category
			result.CategoryLabel = w.rule.CategoryLabel
		}
	}
	result.Confidence = confidence(snapshot)
	result.Flags = append(result.Flags, buildFlags(result, snapshot)...)
	result.Recommendations = buildRecommendations(result, winners, nil, snapshot)
	return result
}

// winningRules returns the fired rules at the highest oversight level, in
// evaluation order. Once the required fields are answered a minimal risk
// study fires either an exemption or EXP-MINIMAL, so tiered is not empty.
func winningRules(tiered []firedRule) []firedRule {
	top := -1
	for _, f := range tiered {
		if level := f.rule.Tier.OversightLevel(); level > top {
			top = level
		}
	}
	winners := make([]firedRule, 0, len(tiered))
	for _, f := range tiered {
		if f.rule.Tier.OversightLevel() == top {
			winners = append(winners, f)
		}
	}
	return winners
}

// missingRequired lists required fields without a usable answer, in
// questionnaire order.
func missingRequired(s *domain.AnswerSnapshot) []weightedField {
	var missing []weightedField
	for _, f := range requiredFields {
		if !fieldSatisfied(s, f.ref) {
			missing = append(missing, f)
		}
	}
	return missing
}

// confidence is the weighted share of the fixed field set that carries an
// explicit answer. It only grows as answers are added.
func confidence(s *domain.AnswerSnapshot) float64 {
	var answered, total float64
	for _, set := range [][]weightedField{requiredFields, supportingFields} {
		for _, f := range set {
			total += f.weight
			if fieldSatisfied(s, f.ref) {
				answered += f.weight
			}
		}
	}
	if total == 0 {
		return 0
	}
	return answered / total
}

// fieldSatisfied reports whether a confidence field is settled. Identifiable
// private information is settled by a confirmed interaction, which keeps
// confidence monotonic as answers are added.
func fieldSatisfied(s *domain.AnswerSnapshot, ref domain.FieldRef) bool {
	if ref == domain.IdentifiablePrivateInfo && s.Answer(domain.InteractionOrIntervention).IsYes() {
		return true
	}
	return fieldAnswered(s, ref)
}

// fieldAnswered treats an unrecognized risk level as unanswered.
func fieldAnswered(s *domain.AnswerSnapshot, ref domain.FieldRef) bool {
	if ref == domain.RiskLevel {
		level := s.Text(domain.RiskLevel)
		return level == domain.RiskMinimal || level == domain.RiskGreaterThanMinimal
	}
	return s.IsAnswered(ref)
}

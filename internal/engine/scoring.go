package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/crmsignal/internal/canon"
)

// Scoring modes accepted by NewScorer.
const (
	ScoringConstant    = "constant"
	ScoringValueScaled = "value_scaled"
)

// DefaultValueField is the field ValueScaledScorer reads when none is set.
const DefaultValueField = "opportunity.amount"

// Scorer computes the score of a matched (rule, context) pair.
type Scorer interface {
	Score(rule canon.Rule, ctx canon.Context) float64
}

// DefaultScorer scores every match of a rule as BaseScore + ScoreModifier.
type DefaultScorer struct{}

// Score returns rule.BaseScore + rule.ScoreModifier.
func (DefaultScorer) Score(rule canon.Rule, _ canon.Context) float64 {
	return rule.Score()
}

// ValueScaledScorer scales the modifier by deal size:
// BaseScore + ScoreModifier * min(1, value/Ceiling).
// Contexts with no numeric value, or a non-positive one, score BaseScore.
type ValueScaledScorer struct {
	Field   string
	Ceiling float64
}

// Score implements Scorer.
func (s ValueScaledScorer) Score(rule canon.Rule, ctx canon.Context) float64 {
	if s.Ceiling <= 0 {
		return rule.Score()
	}
	field := s.Field
	if field == "" {
		field = DefaultValueField
	}
	v, err := canon.Resolve(ctx.Fields(), field)
	if err != nil {
		return rule.BaseScore
	}
	n, ok := canon.AsNumber(v)
	if !ok || n <= 0 {
		return rule.BaseScore
	}
	return rule.BaseScore + rule.ScoreModifier*min(1, n/s.Ceiling)
}

// NewScorer returns the scorer for a configured mode. The empty mode is
// the constant sum.
func NewScorer(mode string, ceiling float64) (Scorer, error) {
	switch mode {
	case "", ScoringConstant:
		return DefaultScorer{}, nil
	case ScoringValueScaled:
		if ceiling <= 0 {
			return nil, fmt.Errorf("scoring mode %s needs a positive value ceiling, got %v", mode, ceiling)
		}
		return ValueScaledScorer{Ceiling: ceiling}, nil
	default:
		return nil, fmt.Errorf("unknown scoring mode %q", mode)
	}
}

// Score builds the signal for a matched pair with the constant-sum scorer.
func Score(rule canon.Rule, ctx canon.Context, now time.Time) canon.Signal {
	return BuildSignal(DefaultScorer{}, rule, ctx, now)
}

// BuildSignal turns a matched (rule, context) pair into a Signal. Priority
// and actions are copied from the rule as declared; the ID stays empty.
func BuildSignal(scorer Scorer, rule canon.Rule, ctx canon.Context, now time.Time) canon.Signal {
	if scorer == nil {
		scorer = DefaultScorer{}
	}
	return canon.Signal{
		Type:        canon.SignalType(rule.ID, ctx.Primary.Kind),
		Priority:    rule.Priority,
		Score:       scorer.Score(rule, ctx),
		EntityRef:   ctx.Ref(),
		Actions:     slices.Clone(rule.Actions),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Description: rule.Description,
		GeneratedAt: now.UTC(),
	}
}

package engine

import (
	"log/slog"

	"github.com/roach88/crmsignal/internal/canon"
)

// Matcher decides whether a rule holds for a context.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a matcher that logs evaluation failures to logger.
// A nil logger uses slog.Default().
func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger}
}

func (m *Matcher) log() *slog.Logger {
	if m == nil || m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Matches reports whether every condition of rule holds for ctx, using the
// default logger.
func Matches(rule canon.Rule, ctx canon.Context) bool {
	return NewMatcher(nil).Match(rule, ctx)
}

// Match reports whether every condition of rule holds for ctx.
// Evaluation errors are logged and count as a non-match.
func (m *Matcher) Match(rule canon.Rule, ctx canon.Context) bool {
	ok, err := MatchDetail(rule, ctx)
	if err != nil {
		attrs := []any{
			"rule_id", rule.ID,
			"entity_id", ctx.Primary.ID,
			"connection_id", ctx.Connection.ID,
			"error", err,
		}
		if ce, isCond := err.(*ConditionError); isCond {
			attrs = append(attrs, "field", ce.Condition.Field)
		}
		// Absent fields are routine (a lead has no document); mismatches are not.
		if IsFieldResolution(err) {
			m.log().Debug("condition not evaluable", attrs...)
		} else {
			m.log().Warn("condition evaluation failed", attrs...)
		}
		return false
	}
	return ok
}

// MatchDetail evaluates conditions in declaration order and stops at the
// first false or the first error. A failure is returned as *ConditionError.
// A rule without conditions never matches.
func MatchDetail(rule canon.Rule, ctx canon.Context) (bool, error) {
	if len(rule.Conditions) == 0 {
		return false, nil
	}
	fields := ctx.Fields()
	for i, cond := range rule.Conditions {
		ok, err := EvaluateFields(cond, fields)
		if err != nil {
			return false, &ConditionError{RuleID: rule.ID, Index: i, Condition: cond, Err: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ConditionOutcome is the result of one condition in an Explain trace.
type ConditionOutcome struct {
	Condition canon.Condition

	// Actual is the resolved field value, nil when absent.
	Actual canon.Value

	Matched bool
	Err     error
}

// Explain evaluates every condition of rule without short-circuiting, so a
// caller can see each reason a rule did or did not match.
func Explain(rule canon.Rule, ctx canon.Context) []ConditionOutcome {
	fields := ctx.Fields()
	out := make([]ConditionOutcome, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		actual, _ := canon.Resolve(fields, cond.Field)
		ok, err := EvaluateFields(cond, fields)
		out = append(out, ConditionOutcome{
			Condition: cond,
			Actual:    actual,
			Matched:   ok && err == nil,
			Err:       err,
		})
	}
	return out
}

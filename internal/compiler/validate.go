package compiler

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/roach88/crmsignal/internal/canon"
)

// ruleIDPattern matches ids usable as CUE labels and signal type prefixes.
var ruleIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Validate checks a compiled rule. Returns all errors found (does not
// fail-fast).
func Validate(rule *canon.Rule) []*ConfigurationError {
	var errs []*ConfigurationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, &ConfigurationError{
			RuleID:  rule.ID,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if !ruleIDPattern.MatchString(rule.ID) {
		add(ErrInvalidRuleID, "id", "rule id %q must start with a letter and contain only letters, digits, '_' or '-'", rule.ID)
	}
	if strings.TrimSpace(rule.Name) == "" {
		add(ErrRuleNameEmpty, "name", "name is required and must be non-empty")
	}
	if !canon.ValidPriorities[rule.Priority] {
		add(ErrInvalidPriority, "priority", "invalid priority %q, must be low, medium or high", rule.Priority)
	}
	for _, s := range []struct {
		field string
		score float64
	}{{"base_score", rule.BaseScore}, {"score_modifier", rule.ScoreModifier}} {
		if math.IsNaN(s.score) || math.IsInf(s.score, 0) {
			add(ErrInvalidScore, s.field, "%s must be a finite number, got %v", s.field, s.score)
		}
	}

	// An empty conjunction would fire for every context.
	if len(rule.Conditions) == 0 {
		add(ErrNoConditions, "conditions", "at least one condition is required")
	}
	for i, c := range rule.Conditions {
		prefix := fmt.Sprintf("conditions[%d]", i)
		if _, err := canon.SplitPath(c.Field); err != nil {
			add(ErrInvalidFieldPath, prefix+".field", "%v", err)
		}
		if !canon.ValidOperators[c.Operator] {
			add(ErrUnknownOperator, prefix+".operator", "unknown operator %q", c.Operator)
			continue
		}
		if msg := checkOperand(c.Operator, c.Value); msg != "" {
			add(ErrInvalidOperand, prefix+".value", "%s", msg)
		}
	}

	if len(rule.Actions) == 0 {
		add(ErrNoActions, "actions", "at least one action is required")
	}
	for i, a := range rule.Actions {
		if strings.TrimSpace(a.Type) == "" {
			add(ErrInvalidAction, fmt.Sprintf("actions[%d].type", i), "action type is required")
		}
		if a.Priority < 1 {
			add(ErrInvalidAction, fmt.Sprintf("actions[%d].priority", i), "action priority must be >= 1, got %d", a.Priority)
		}
	}

	for i, k := range rule.EntityKinds {
		if !canon.IsPrimaryKind(k) {
			add(ErrInvalidEntityKind, fmt.Sprintf("entity_kinds[%d]", i), "%q is not a primary kind (lead, opportunity)", k)
		}
	}
	return errs
}

// checkOperand returns a message when the operand can never satisfy op.
func checkOperand(op canon.Operator, v canon.Value) string {
	switch {
	case op.IsOrdering():
		if _, ok := canon.AsNumber(v); ok {
			return ""
		}
		if _, ok := canon.AsTime(v); ok {
			return ""
		}
		return fmt.Sprintf("%s needs a number or date operand, got %s", op, canon.TypeName(v))
	case op == canon.OpIn:
		if _, ok := v.(canon.Array); !ok {
			return fmt.Sprintf("in needs a list operand, got %s", canon.TypeName(v))
		}
	case op == canon.OpExists:
		if _, ok := v.(canon.Bool); !ok {
			return fmt.Sprintf("exists needs a boolean operand, got %s", canon.TypeName(v))
		}
	case op == canon.OpContains:
		switch v.(type) {
		case canon.String, canon.Number, canon.Bool:
		default:
			return fmt.Sprintf("contains needs a scalar operand, got %s", canon.TypeName(v))
		}
	}
	return ""
}

// ValidateSet validates every rule and the set as a whole.
func ValidateSet(rules []canon.Rule) []*ConfigurationError {
	var errs []*ConfigurationError
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		errs = append(errs, Validate(&rules[i])...)
		if seen[rules[i].ID] {
			errs = append(errs, &ConfigurationError{
				RuleID:  rules[i].ID,
				Field:   "id",
				Message: fmt.Sprintf("duplicate rule id %q", rules[i].ID),
				Code:    ErrDuplicateRuleID,
			})
		}
		seen[rules[i].ID] = true
	}
	return errs
}

// CheckSet is ValidateSet joined into one error for callers that take a
// rule set from somewhere other than CUE. It returns nil for a valid set;
// errors.As finds each *ConfigurationError.
func CheckSet(rules []canon.Rule) error {
	errs := ValidateSet(rules)
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

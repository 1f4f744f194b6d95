package canon

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Priority classifies a rule and every signal it produces.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriorities defines allowed priorities.
var ValidPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpIn                 Operator = "in"
	OpExists             Operator = "exists"
)

// ValidOperators defines the operator vocabulary the evaluator supports.
var ValidOperators = map[Operator]bool{
	OpEquals:             true,
	OpNotEquals:          true,
	OpGreaterThan:        true,
	OpLessThan:           true,
	OpGreaterThanOrEqual: true,
	OpLessThanOrEqual:    true,
	OpContains:           true,
	OpIn:                 true,
	OpExists:             true,
}

// IsOrdering reports whether op needs a totally ordered operand.
func (op Operator) IsOrdering() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual:
		return true
	}
	return false
}

// Condition is a single field/operator/value test.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// String renders the condition for logs, e.g. `opportunity.stage not_equals "Closed Won"`.
func (c Condition) String() string {
	v, err := MarshalCanonical(c.Value)
	if err != nil {
		v = []byte("?")
	}
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, v)
}

// UnmarshalJSON decodes the operand into a Value.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var aux struct {
		Field    string          `json:"field"`
		Operator Operator        `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Field = aux.Field
	c.Operator = aux.Operator
	c.Value = Null{}
	if len(aux.Value) > 0 {
		v, err := UnmarshalValue(aux.Value)
		if err != nil {
			return fmt.Errorf("condition %s value: %w", aux.Field, err)
		}
		c.Value = v
	}
	return nil
}

// Action is a recommended follow-up; lower Priority rank is preferred.
type Action struct {
	Type     string `json:"type"`
	Priority int    `json:"priority"`
}

// Rule is an immutable signal definition. All conditions must hold.
type Rule struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Conditions    []Condition `json:"conditions"`
	Priority      Priority    `json:"priority"`
	BaseScore     float64     `json:"baseScore"`
	ScoreModifier float64     `json:"scoreModifier"`
	Actions       []Action    `json:"actions"`

	// EntityKinds restricts the primary kinds the rule applies to.
	// Empty means inferred from the conditions (see AppliesTo).
	EntityKinds []Kind `json:"entityKinds,omitempty"`
}

// AppliesTo reports whether the rule should be evaluated for a primary
// entity of the given kind. With no explicit EntityKinds, a rule whose
// conditions reference a kind namespace ("opportunity.stage") applies only
// to those kinds; a rule that references none applies to every kind.
//
// Kind selection runs before evaluation, so conditions that hold on an
// absent field (equals null, exists false) never fire for a kind the rule
// does not name: "opportunity.owner equals null" is not evaluated for
// leads. Set EntityKinds to evaluate such a rule for other kinds.
func (r Rule) AppliesTo(kind Kind) bool {
	kinds := r.EntityKinds
	if len(kinds) == 0 {
		kinds = r.ReferencedKinds()
	}
	if len(kinds) == 0 {
		return true
	}
	return slices.Contains(kinds, kind)
}

// ReferencedKinds lists primary-capable kinds named as the first segment of
// a condition field, in first-seen order.
func (r Rule) ReferencedKinds() []Kind {
	var kinds []Kind
	for _, c := range r.Conditions {
		head, _, _ := strings.Cut(c.Field, ".")
		k := Kind(head)
		if !IsPrimaryKind(k) || slices.Contains(kinds, k) {
			continue
		}
		kinds = append(kinds, k)
	}
	return kinds
}

// PrimaryKinds are the kinds a context is built around.
var PrimaryKinds = []Kind{KindLead, KindOpportunity}

// IsPrimaryKind reports whether contexts are built for kind.
func IsPrimaryKind(k Kind) bool {
	return slices.Contains(PrimaryKinds, k)
}

// Score is the constant sum every match of the rule scores.
func (r Rule) Score() float64 {
	return r.BaseScore + r.ScoreModifier
}

// SortedActions returns a copy of the actions ordered by rank; ties keep
// declaration order.
func SortedActions(actions []Action) []Action {
	out := slices.Clone(actions)
	slices.SortStableFunc(out, func(a, b Action) int {
		return a.Priority - b.Priority
	})
	return out
}

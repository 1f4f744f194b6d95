// Package compiler turns CUE rule definitions into canon.Rule values and
// validates them.
//
// Rules are declared under the top-level "rule" struct, keyed by id:
//
//	rule: rule_1: {
//		name:           "Follow-up needed"
//		priority:       "high"
//		base_score:     80
//		score_modifier: 10
//		conditions: [
//			{field: "opportunity.stage", operator: "not_equals", value: "Closed Won"},
//			{field: "days_since_last_contact", operator: "greater_than", value: 30},
//		]
//		actions: [{type: "call", priority: 1}, {type: "email", priority: 2}]
//	}
//
// CompileRule decodes one rule; Validate and ValidateSet report every
// problem as a *ConfigurationError. LoadDir and CompileString do both.
package compiler

import (
	"fmt"
	"math"

	"cuelang.org/go/cue"

	"github.com/roach88/crmsignal/internal/canon"
)

// CompileRule decodes a CUE rule value. The rule id is the value's label.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: r1: {...}`)
//	rule, err := CompileRule(v.LookupPath(cue.ParsePath("rule.r1")))
//
// Decoding only checks shapes; call Validate for semantic checks.
func CompileRule(v cue.Value) (*canon.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("rule", err)
	}

	rule := &canon.Rule{}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		rule.ID = sels[len(sels)-1].Unquoted()
	}

	var err error
	if rule.Name, err = optionalString(v, "name"); err != nil {
		return nil, err
	}
	if rule.Description, err = optionalString(v, "description"); err != nil {
		return nil, err
	}
	priority, err := optionalString(v, "priority")
	if err != nil {
		return nil, err
	}
	rule.Priority = canon.Priority(priority)

	if rule.BaseScore, err = optionalNumber(v, "base_score"); err != nil {
		return nil, err
	}
	if rule.ScoreModifier, err = optionalNumber(v, "score_modifier"); err != nil {
		return nil, err
	}

	if rule.Conditions, err = parseConditions(v); err != nil {
		return nil, err
	}
	actions, err := parseActions(v)
	if err != nil {
		return nil, err
	}
	rule.Actions = canon.SortedActions(actions)

	if rule.EntityKinds, err = parseEntityKinds(v); err != nil {
		return nil, err
	}
	return rule, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(field, err)
	}
	return s, nil
}

func optionalNumber(v cue.Value, field string) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, formatCUEError(field, err)
	}
	return f, nil
}

func parseConditions(v cue.Value) ([]canon.Condition, error) {
	listVal := v.LookupPath(cue.ParsePath("conditions"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError("conditions", err)
	}

	var conds []canon.Condition
	for i := 0; iter.Next(); i++ {
		cv := iter.Value()
		prefix := fmt.Sprintf("conditions[%d]", i)

		field, err := optionalString(cv, "field")
		if err != nil {
			return nil, err
		}
		op, err := optionalString(cv, "operator")
		if err != nil {
			return nil, err
		}

		cond := canon.Condition{Field: field, Operator: canon.Operator(op), Value: canon.Null{}}
		if operand := cv.LookupPath(cue.ParsePath("value")); operand.Exists() {
			cond.Value, err = operandValue(operand, prefix+".value")
			if err != nil {
				return nil, err
			}
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// operandValue converts a concrete CUE value into a canonical value.
func operandValue(v cue.Value, field string) (canon.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return canon.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return canon.Bool(b), nil
	case cue.IntKind, cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &CompileError{Field: field, Message: "number out of range", Pos: v.Pos()}
		}
		return canon.Number(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return canon.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		arr := canon.Array{}
		for i := 0; iter.Next(); i++ {
			elem, err := operandValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		obj := canon.Object{}
		for iter.Next() {
			elem, err := operandValue(iter.Value(), field+"."+iter.Selector().Unquoted())
			if err != nil {
				return nil, err
			}
			obj[iter.Selector().Unquoted()] = elem
		}
		return obj, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseActions(v cue.Value) ([]canon.Action, error) {
	listVal := v.LookupPath(cue.ParsePath("actions"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError("actions", err)
	}

	var actions []canon.Action
	for i := 0; iter.Next(); i++ {
		av := iter.Value()
		typ, err := optionalString(av, "type")
		if err != nil {
			return nil, err
		}
		action := canon.Action{Type: typ}
		if pv := av.LookupPath(cue.ParsePath("priority")); pv.Exists() {
			rank, err := pv.Int64()
			if err != nil {
				return nil, formatCUEError(fmt.Sprintf("actions[%d].priority", i), err)
			}
			action.Priority = int(rank)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func parseEntityKinds(v cue.Value) ([]canon.Kind, error) {
	listVal := v.LookupPath(cue.ParsePath("entity_kinds"))
	if !listVal.Exists() {
		return nil, nil
	}
	var names []string
	if err := listVal.Decode(&names); err != nil {
		return nil, formatCUEError("entity_kinds", err)
	}
	kinds := make([]canon.Kind, len(names))
	for i, n := range names {
		kinds[i] = canon.Kind(n)
	}
	return kinds, nil
}

package engine

import (
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/crmsignal/internal/canon"
)

// Evaluate tests one condition against a context.
//
// Absent fields are a FieldResolutionError, with two exceptions. A path
// that stops at a scalar or null before its last segment is absent too.
//   - equals/not_equals against a null operand treat absence as null
//     ("equals null" is true, "not_equals null" is false)
//   - exists reports presence and never fails on absence
//
// Evaluate is pure; it only reads ctx.
func Evaluate(cond canon.Condition, ctx canon.Context) (bool, error) {
	return EvaluateFields(cond, ctx.Fields())
}

// EvaluateFields is Evaluate over an already materialized field mapping.
func EvaluateFields(cond canon.Condition, fields canon.Object) (bool, error) {
	if !canon.ValidOperators[cond.Operator] {
		return false, fmt.Errorf("%w %q on %s", ErrUnknownOperator, cond.Operator, cond.Field)
	}

	operand := cond.Value
	if operand == nil {
		operand = canon.Null{}
	}

	actual, err := canon.Resolve(fields, cond.Field)
	if err != nil {
		return evaluateAbsent(cond, operand, err)
	}

	switch cond.Operator {
	case canon.OpExists:
		return isPresent(actual) == wantPresent(operand), nil

	case canon.OpEquals:
		return canon.Equal(actual, operand), nil

	case canon.OpNotEquals:
		return !canon.Equal(actual, operand), nil

	case canon.OpGreaterThan, canon.OpLessThan, canon.OpGreaterThanOrEqual, canon.OpLessThanOrEqual:
		c, err := compareOrdered(cond, actual, operand)
		if err != nil {
			return false, err
		}
		switch cond.Operator {
		case canon.OpGreaterThan:
			return c > 0, nil
		case canon.OpLessThan:
			return c < 0, nil
		case canon.OpGreaterThanOrEqual:
			return c >= 0, nil
		default:
			return c <= 0, nil
		}

	case canon.OpContains:
		return evaluateContains(cond, actual, operand)

	case canon.OpIn:
		list, ok := operand.(canon.Array)
		if !ok {
			return false, &TypeMismatchError{
				Field:    cond.Field,
				Operator: cond.Operator,
				Actual:   canon.TypeName(actual),
				Expected: "array operand, got " + canon.TypeName(operand),
			}
		}
		for _, elem := range list {
			if canon.Equal(actual, elem) {
				return true, nil
			}
		}
		return false, nil
	}

	// Unreachable while ValidOperators and the switch agree.
	return false, fmt.Errorf("%w %q on %s", ErrUnknownOperator, cond.Operator, cond.Field)
}

func evaluateAbsent(cond canon.Condition, operand canon.Value, err error) (bool, error) {
	var pe *canon.PathError
	if !errors.As(err, &pe) {
		// Malformed path.
		return false, &FieldResolutionError{Field: cond.Field, Err: err}
	}
	_, nullOperand := operand.(canon.Null)
	switch {
	case cond.Operator == canon.OpExists:
		return !wantPresent(operand), nil
	case cond.Operator == canon.OpEquals && nullOperand:
		return true, nil
	case cond.Operator == canon.OpNotEquals && nullOperand:
		return false, nil
	}
	return false, &FieldResolutionError{Field: cond.Field, Segment: pe.Segment, Err: err}
}

// isPresent treats an explicit null as not present for exists.
func isPresent(v canon.Value) bool {
	_, isNull := v.(canon.Null)
	return v != nil && !isNull
}

// wantPresent reads the exists operand: false asks for absence, anything
// else (including no operand) asks for presence.
func wantPresent(operand canon.Value) bool {
	b, ok := operand.(canon.Bool)
	return !ok || bool(b)
}

// compareOrdered compares two values as numbers, else as instants.
func compareOrdered(cond canon.Condition, actual, operand canon.Value) (int, error) {
	if a, ok := canon.AsNumber(actual); ok {
		if b, ok := canon.AsNumber(operand); ok {
			return cmp.Compare(a, b), nil
		}
	}
	if a, ok := canon.AsTime(actual); ok {
		if b, ok := canon.AsTime(operand); ok {
			return a.Compare(b), nil
		}
	}
	return 0, &TypeMismatchError{
		Field:    cond.Field,
		Operator: cond.Operator,
		Actual:   canon.TypeName(actual),
		Expected: canon.TypeName(operand),
	}
}

func evaluateContains(cond canon.Condition, actual, operand canon.Value) (bool, error) {
	switch a := actual.(type) {
	case canon.String:
		needle, ok := operand.(canon.String)
		if !ok {
			break
		}
		return strings.Contains(strings.ToLower(string(a)), strings.ToLower(string(needle))), nil
	case canon.Array:
		for _, elem := range a {
			if canon.Equal(elem, operand) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, &TypeMismatchError{
		Field:    cond.Field,
		Operator: cond.Operator,
		Actual:   canon.TypeName(actual),
		Expected: canon.TypeName(operand),
	}
}

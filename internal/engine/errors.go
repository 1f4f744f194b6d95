package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/crmsignal/internal/canon"
)

// ErrUnknownOperator is returned when a condition uses an operator the
// evaluator does not implement. Compiled rules never reach the engine with
// one; hand-built rules can.
var ErrUnknownOperator = errors.New("unknown operator")

// ErrMissingUser is returned when Generate is called without a user.
var ErrMissingUser = errors.New("user id is required")

// FieldResolutionError reports a condition whose field path is absent from
// the context.
type FieldResolutionError struct {
	// Field is the full dot-path of the condition.
	Field string

	// Segment is where resolution stopped.
	Segment string

	// Err is the underlying resolver error (usually *canon.PathError).
	Err error
}

func (e *FieldResolutionError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("resolve %s: segment %q: %v", e.Field, e.Segment, e.Err)
	}
	return fmt.Sprintf("resolve %s: %v", e.Field, e.Err)
}

func (e *FieldResolutionError) Unwrap() error { return e.Err }

// TypeMismatchError reports operands that an operator cannot compare,
// e.g. greater_than between a string and a number.
type TypeMismatchError struct {
	Field    string
	Operator canon.Operator

	// Actual is the type of the resolved field value.
	Actual string

	// Expected describes the operand type the operator needed.
	Expected string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s %s: cannot compare %s with %s", e.Field, e.Operator, e.Actual, e.Expected)
}

// ConditionError ties an evaluation failure to the rule and condition that
// produced it. The matcher returns it from MatchDetail.
type ConditionError struct {
	RuleID    string
	Index     int
	Condition canon.Condition
	Err       error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("rule %s condition %d (%s): %v", e.RuleID, e.Index, e.Condition.Field, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// AdapterFetchError reports that entities could not be fetched for one
// connection. It is recorded in Result.Errors and does not abort a run.
type AdapterFetchError struct {
	ConnectionID string
	Provider     string
	Kind         canon.Kind
	Err          error
}

func (e *AdapterFetchError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("fetch %s from %s (connection %s): %v", e.Kind, e.Provider, e.ConnectionID, e.Err)
	}
	return fmt.Sprintf("fetch from %s (connection %s): %v", e.Provider, e.ConnectionID, e.Err)
}

func (e *AdapterFetchError) Unwrap() error { return e.Err }

// AggregationError is a whole-operation failure of Generate.
type AggregationError struct {
	// Op names the failing step, e.g. "list connections".
	Op string

	// ConnectionID is set when the failure is tied to one connection.
	ConnectionID string

	Err error
}

func (e *AggregationError) Error() string {
	if e.ConnectionID != "" {
		return fmt.Sprintf("aggregate: %s (connection %s): %v", e.Op, e.ConnectionID, e.Err)
	}
	return fmt.Sprintf("aggregate: %s: %v", e.Op, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// IsFieldResolution returns true if err is (or wraps) a FieldResolutionError.
func IsFieldResolution(err error) bool {
	var fe *FieldResolutionError
	return errors.As(err, &fe)
}

// IsTypeMismatch returns true if err is (or wraps) a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}

// IsAdapterFetch returns true if err is (or wraps) an AdapterFetchError.
func IsAdapterFetch(err error) bool {
	var ae *AdapterFetchError
	return errors.As(err, &ae)
}

// IsAggregation returns true if err is (or wraps) an AggregationError.
func IsAggregation(err error) bool {
	var ae *AggregationError
	return errors.As(err, &ae)
}

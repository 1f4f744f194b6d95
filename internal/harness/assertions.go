package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/crmsignal/internal/canon"
)

// AssertionError is returned when an assertion fails.
// It includes the generated signals to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Signals  []canon.Signal // Generated signals for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSignals:\n")
	if len(e.Signals) == 0 {
		fmt.Fprintf(&buf, "  (none)\n")
	}
	for i, s := range e.Signals {
		fmt.Fprintf(&buf, "  [%d] %s score=%v priority=%s\n", i+1, signalKey(s), s.Score, s.Priority)
	}
	return buf.String()
}

func assertSignalContains(result *Result, a Assertion) error {
	for _, s := range result.Signals {
		if matchFields(signalFields(s), a.Expect) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertSignalContains,
		Expected: fmt.Sprintf("a signal matching %v", a.Expect),
		Actual:   "not found",
		Signals:  result.Signals,
	}
}

func assertNoSignal(result *Result, a Assertion) error {
	for _, s := range result.Signals {
		if matchFields(signalFields(s), a.Expect) {
			return &AssertionError{
				Type:     AssertNoSignal,
				Expected: fmt.Sprintf("no signal matching %v", a.Expect),
				Actual:   "found " + signalKey(s),
				Signals:  result.Signals,
			}
		}
	}
	return nil
}

// assertSignalOrder checks the full ranked sequence, not a subsequence.
func assertSignalOrder(result *Result, a Assertion) error {
	actual := make([]string, len(result.Signals))
	for i, s := range result.Signals {
		actual[i] = signalKey(s)
	}
	if slices.Equal(actual, a.Keys) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSignalOrder,
		Expected: fmt.Sprintf("%v", a.Keys),
		Actual:   fmt.Sprintf("%v", actual),
		Signals:  result.Signals,
	}
}

func assertSignalCount(result *Result, a Assertion) error {
	if len(result.Signals) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertSignalCount,
		Expected: fmt.Sprintf("%d signals", a.Count),
		Actual:   fmt.Sprintf("%d signals", len(result.Signals)),
		Signals:  result.Signals,
	}
}

func assertConnectionFailed(result *Result, a Assertion) error {
	var failed []string
	for _, f := range result.Failures {
		if f.ConnectionID == a.Connection {
			return nil
		}
		failed = append(failed, f.ConnectionID)
	}
	return &AssertionError{
		Type:     AssertConnectionFailed,
		Expected: fmt.Sprintf("connection %s failed", a.Connection),
		Actual:   fmt.Sprintf("failed connections: %v", failed),
		Signals:  result.Signals,
	}
}

func assertStoredSignals(result *Result, a Assertion) error {
	if result.Stored == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertStoredSignals,
		Expected: fmt.Sprintf("%d stored signals", a.Count),
		Actual:   fmt.Sprintf("%d stored signals", result.Stored),
		Signals:  result.Signals,
	}
}

// matchFields reports whether actual holds every key of expected with an
// equal value.
func matchFields(actual, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares a signal field with a YAML-decoded value. Numbers
// compare numerically whatever their decoded type.
func valuesEqual(actual, expected any) bool {
	if a, ok := toFloat(actual); ok {
		e, ok := toFloat(expected)
		return ok && a == e
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSignalContains:
			err = assertSignalContains(result, a)
		case AssertNoSignal:
			err = assertNoSignal(result, a)
		case AssertSignalOrder:
			err = assertSignalOrder(result, a)
		case AssertSignalCount:
			err = assertSignalCount(result, a)
		case AssertConnectionFailed:
			err = assertConnectionFailed(result, a)
		case AssertStoredSignals:
			err = assertStoredSignals(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

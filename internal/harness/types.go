package harness

import (
	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/engine"
)

// Failure is a connection the run could not fetch.
type Failure struct {
	ConnectionID string `json:"connection_id"`
	Provider     string `json:"provider"`
	Error        string `json:"error"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Signals are the ranked, filtered signals, without persistence ids.
	Signals []canon.Signal `json:"signals"`

	Failures []Failure    `json:"failures,omitempty"`
	Stats    engine.Stats `json:"stats"`

	// Stored is the number of signals in the store after saving.
	Stored int `json:"stored"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Signals: []canon.Signal{},
		Errors:  []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// signalKey identifies a signal in order assertions.
func signalKey(s canon.Signal) string {
	return s.Type + "/" + s.EntityRef.ID
}

// signalFields flattens a signal for subset matching.
func signalFields(s canon.Signal) map[string]any {
	return map[string]any{
		"type":          s.Type,
		"priority":      string(s.Priority),
		"score":         s.Score,
		"rule_id":       s.RuleID,
		"entity_id":     s.EntityRef.ID,
		"entity_kind":   string(s.EntityRef.Kind),
		"connection_id": s.EntityRef.ConnectionID,
		"provider":      s.EntityRef.Provider,
	}
}

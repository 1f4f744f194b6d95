package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Configuration error codes (E200-E299)
const (
	// Loading errors (E200)
	ErrLoadFailed = "E200" // rules directory or CUE build failed

	// Rule errors (E201-E219)
	ErrInvalidRuleID     = "E201" // rule id empty or malformed
	ErrRuleNameEmpty     = "E202" // name is required
	ErrNoConditions      = "E203" // at least one condition required
	ErrUnknownOperator   = "E204" // operator outside the vocabulary
	ErrInvalidFieldPath  = "E205" // malformed dot-path
	ErrInvalidOperand    = "E206" // operand type unusable with operator
	ErrInvalidPriority   = "E207" // priority not low/medium/high
	ErrInvalidScore      = "E208" // non-finite score
	ErrNoActions         = "E209" // at least one action required
	ErrInvalidAction     = "E210" // action type empty or rank < 1
	ErrInvalidEntityKind = "E211" // entity_kinds names a non-primary kind
	ErrMalformedRule     = "E212" // rule value has the wrong CUE shape

	// Rule set errors (E220-E229)
	ErrDuplicateRuleID = "E220" // rule id declared twice
)

// ConfigurationError reports a malformed rule. Rules that fail validation
// are rejected at load time and never reach evaluation.
type ConfigurationError struct {
	RuleID  string    `json:"rule_id,omitempty"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
	Code    string    `json:"code"`
	Pos     token.Pos `json:"-"`
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var where string
	if e.Pos.IsValid() {
		where = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.RuleID != "" {
		return fmt.Sprintf("%s[%s] rule %s: %s: %s", where, e.Code, e.RuleID, e.Field, e.Message)
	}
	return fmt.Sprintf("%s[%s] %s: %s", where, e.Code, e.Field, e.Message)
}

// IsConfiguration reports whether err is or wraps a *ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// CompileError reports a rule whose CUE shape cannot be decoded, e.g. a
// string where a number is expected.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError converts the first CUE error into a CompileError carrying
// its position.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: field, Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Field: field, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

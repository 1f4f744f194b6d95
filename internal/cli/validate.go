package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Rules  int               `json:"rules,omitempty"`
	Files  int               `json:"files,omitempty"`
	Hash   string            `json:"hash,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one rejected rule field.
type ValidationIssue struct {
	RuleID  string `json:"rule_id,omitempty"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Validate a rules directory",
		Long: `Compile the CUE rules of a directory and check every rule: ids, names,
conditions, operators, operands, priorities, scores and actions.

All problems are reported, not only the first.

Exit codes:
  0 - All rules valid
  1 - One or more rules rejected
  2 - Command error (directory not found, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	info, err := os.Stat(rulesDir)
	if err != nil || !info.IsDir() {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("rules directory not found: %s", rulesDir))
	}
	files, err := compiler.FindCUEFiles(rulesDir)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("error scanning directory: %v", err))
	}
	if len(files) == 0 {
		return outputValidateError(formatter, ErrCodeNoFiles, fmt.Sprintf("no CUE files found in %s", rulesDir))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(files), rulesDir)

	set, errs := compiler.LoadDir(rulesDir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, toIssues(errs))
	}
	for _, r := range set.Rules {
		formatter.VerboseLog("Validated rule: %s (%d condition(s))", r.ID, len(r.Conditions))
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid: true,
		Rules: len(set.Rules),
		Files: set.FileCount,
		Hash:  set.Hash,
	})
}

// toIssues flattens load errors, keeping positions when they are known.
func toIssues(errs []error) []ValidationIssue {
	issues := make([]ValidationIssue, 0, len(errs))
	for _, err := range errs {
		var ce *compiler.ConfigurationError
		if !errors.As(err, &ce) {
			issues = append(issues, ValidationIssue{Field: "rules", Code: ErrCodeGeneric, Message: err.Error()})
			continue
		}
		issue := ValidationIssue{
			RuleID:  ce.RuleID,
			Field:   ce.Field,
			Code:    ce.Code,
			Message: ce.Message,
		}
		if ce.Pos.IsValid() {
			issue.File = ce.Pos.Filename()
			issue.Line = ce.Pos.Line()
		}
		issues = append(issues, issue)
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All rules valid (%d rule(s) in %d file(s))\n", result.Rules, result.Files)
	return nil
}

// outputValidateError outputs a single command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every rejected rule (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}
		if err := writeJSON(formatter.Writer, response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s line %d\n", issue.File, issue.Line)
		}
		where := issue.Field
		if issue.RuleID != "" {
			where = issue.RuleID + "." + issue.Field
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, where, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

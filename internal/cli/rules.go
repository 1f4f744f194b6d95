package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/compiler"
	"github.com/roach88/crmsignal/internal/store"
)

// RulesImportOptions holds flags for the rules import command.
type RulesImportOptions struct {
	*RootOptions
	EnvOptions

	User string
}

// RulesImportResult is the JSON payload of rules import.
type RulesImportResult struct {
	User  string `json:"user,omitempty"`
	Rules int    `json:"rules"`
	Files int    `json:"files"`
	Hash  string `json:"hash"`
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage stored rule sets",
		Long: `Stored rule sets take precedence over the rules directory: a user's own
set first, then the global set, then the directory.`,
		Args: cobra.NoArgs,
	}
	cmd.AddCommand(NewRulesImportCommand(rootOpts))
	return cmd
}

// NewRulesImportCommand creates the rules import command.
func NewRulesImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <rules-dir>",
		Short: "Validate a rules directory and store it",
		Long: `Compile and validate the CUE rules of a directory, then replace the
stored rule set of a user (--user) or the global set (no --user).
Nothing is stored when any rule is rejected.

Exit codes:
  0 - Rules stored
  1 - One or more rules rejected
  2 - Command error (directory not found, no CUE files, database)

Examples:
  crmsignal rules import rules/
  crmsignal rules import team-rules/ --user demo-user`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user id (default: the global set)")
	bindEnvFlags(cmd, &opts.EnvOptions, false)

	return cmd
}

func runRulesImport(opts *RulesImportOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

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

	set, errs := compiler.LoadDir(rulesDir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, toIssues(errs))
	}

	e, err := openEnv(opts.RootOptions, opts.EnvOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	hash, err := e.svc.ImportRules(cmd.Context(), opts.User, set.Rules)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to store rules", err)
	}

	result := RulesImportResult{User: opts.User, Rules: len(set.Rules), Files: set.FileCount, Hash: hash}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	owner := "all users"
	if opts.User != store.GlobalRules {
		owner = opts.User
	}
	fmt.Fprintf(formatter.Writer, "✓ Stored %d rule(s) from %d file(s) for %s\n", result.Rules, result.Files, owner)
	fmt.Fprintf(formatter.Writer, "  hash: %s\n", result.Hash)
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/engine"
	"github.com/roach88/crmsignal/internal/service"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	EnvOptions

	User     string
	Type     string
	Priority string
	Save     bool
}

// GenerateOutput is the JSON payload of the generate command.
type GenerateOutput struct {
	User    string              `json:"user"`
	Count   int                 `json:"count"`
	Signals []canon.Signal      `json:"signals"`
	Errors  []ConnectionFailure `json:"errors"`
	Stats   RunStats            `json:"stats"`
}

// ConnectionFailure is a connection skipped because it could not be fetched.
type ConnectionFailure struct {
	ConnectionID string `json:"connection_id"`
	Provider     string `json:"provider"`
	Error        string `json:"error"`
}

// RunStats mirrors engine.Stats for output.
type RunStats struct {
	Connections       int `json:"connections"`
	FailedConnections int `json:"failed_connections"`
	Contexts          int `json:"contexts"`
	RulesEvaluated    int `json:"rules_evaluated"`
	Matches           int `json:"matches"`
	Returned          int `json:"returned"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate ranked signals for a user",
		Long: `Evaluate the rule set against every connected CRM of a user and print
the resulting signals, highest score first.

Connections come from the database and the fixture file. A connection
whose records cannot be fetched is reported and skipped; the others still
produce signals.

Exit codes:
  0 - Signals generated (possibly none)
  1 - The user has no CRM connections
  2 - Command error (bad settings, rules, database)

Examples:
  crmsignal generate --user demo-user
  crmsignal generate --user demo-user --priority high --save
  crmsignal generate --user demo-user --now 2025-04-01T09:00:00Z --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "keep only signals of this type, e.g. rule_1:opportunity")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "keep only signals of this priority (low|medium|high)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "persist the signals and record the run")
	bindEnvFlags(cmd, &opts.EnvOptions, true)
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	priority, err := parsePriority(opts.Priority)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidFlag, "invalid --priority", err)
	}

	e, err := openEnv(opts.RootOptions, opts.EnvOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	gen, err := e.svc.Generate(cmd.Context(), service.GenerateRequest{
		UserID: opts.User,
		Filter: engine.Filter{Type: opts.Type, Priority: priority},
		Save:   opts.Save,
	})
	if errors.Is(err, service.ErrNoConnections) {
		return fail(formatter, ExitFailure, ErrCodeNoConnections,
			fmt.Sprintf("no CRM connections found for %s; connect a CRM first", opts.User), nil)
	}
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGenerate, "signal generation failed", err)
	}

	out := GenerateOutput{
		User:    opts.User,
		Count:   len(gen.Signals),
		Signals: gen.Signals,
		Errors:  connectionFailures(gen.Errors),
		Stats:   runStats(gen.Stats),
	}
	if out.Signals == nil {
		out.Signals = []canon.Signal{}
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out}
		if gen.Run != nil {
			resp.RunID = gen.Run.ID
		}
		return writeJSON(formatter.Writer, resp)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Generated %d signal(s) for %s (%d connection(s), %d failed)\n",
		out.Count, opts.User, out.Stats.Connections, out.Stats.FailedConnections)
	writeSignals(w, out.Signals)
	for _, f := range out.Errors {
		fmt.Fprintf(w, "! %s (%s): %s\n", f.ConnectionID, f.Provider, f.Error)
	}
	if gen.Run != nil {
		fmt.Fprintf(w, "Saved as run %s\n", gen.Run.ID)
	}
	formatter.VerboseLog("contexts=%d rules_evaluated=%d matches=%d",
		out.Stats.Contexts, out.Stats.RulesEvaluated, out.Stats.Matches)
	return nil
}

// writeSignals prints a ranked signal list, one entry per signal.
func writeSignals(w io.Writer, signals []canon.Signal) {
	if len(signals) == 0 {
		return
	}
	fmt.Fprintln(w)
	for i, s := range signals {
		fmt.Fprintf(w, "%3d. [%s] %g  %s  %s/%s  %s\n",
			i+1, s.Priority, s.Score, s.Type, s.EntityRef.Provider, s.EntityRef.ID, s.RuleName)
		if len(s.Actions) > 0 {
			types := make([]string, len(s.Actions))
			for j, a := range s.Actions {
				types[j] = a.Type
			}
			fmt.Fprintf(w, "     actions: %s\n", strings.Join(types, ", "))
		}
	}
	fmt.Fprintln(w)
}

func connectionFailures(errs []engine.ConnectionError) []ConnectionFailure {
	out := make([]ConnectionFailure, 0, len(errs))
	for _, e := range errs {
		out = append(out, ConnectionFailure{
			ConnectionID: e.ConnectionID,
			Provider:     e.Provider,
			Error:        e.Err.Error(),
		})
	}
	return out
}

func runStats(s engine.Stats) RunStats {
	return RunStats{
		Connections:       s.Connections,
		FailedConnections: s.FailedConnections,
		Contexts:          s.Contexts,
		RulesEvaluated:    s.RulesEvaluated,
		Matches:           s.Matches,
		Returned:          s.Returned,
	}
}

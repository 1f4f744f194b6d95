package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/store"
)

// SignalsOptions holds flags for the signals command.
type SignalsOptions struct {
	*RootOptions
	EnvOptions

	User     string
	Type     string
	Priority string
	Limit    int
}

// NewSignalsCommand creates the signals command.
func NewSignalsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignalsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List persisted signals for a user",
		Long: `List the signals stored by earlier "generate --save" runs, highest score
first.

Examples:
  crmsignal signals --user demo-user
  crmsignal signals --user demo-user --priority high --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignals(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "keep only signals of this type")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "keep only signals of this priority (low|medium|high)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of signals (0 = all)")
	bindEnvFlags(cmd, &opts.EnvOptions, false)
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runSignals(opts *SignalsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	priority, err := parsePriority(opts.Priority)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidFlag, "invalid --priority", err)
	}
	if opts.Limit < 0 {
		return fail(formatter, ExitCommandError, ErrCodeInvalidFlag, "--limit cannot be negative", nil)
	}

	e, err := openEnv(opts.RootOptions, opts.EnvOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	signals, err := e.svc.Signals(cmd.Context(), opts.User, store.SignalQuery{
		Type:     opts.Type,
		Priority: priority,
		Limit:    opts.Limit,
	})
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to list signals", err)
	}

	if opts.Format == "json" {
		return formatter.Success(signals)
	}

	w := formatter.Writer
	if len(signals) == 0 {
		fmt.Fprintf(w, "No stored signals for %s.\n", opts.User)
		return nil
	}
	fmt.Fprintf(w, "%d stored signal(s) for %s\n", len(signals), opts.User)
	writeSignals(w, signals)
	return nil
}

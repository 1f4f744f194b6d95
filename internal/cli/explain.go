package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/service"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	EnvOptions

	User string
}

// ExplainEntry is one context's evaluation of the rule.
type ExplainEntry struct {
	Entity     canon.EntityRef    `json:"entity"`
	Matched    bool               `json:"matched"`
	Conditions []ExplainCondition `json:"conditions"`
}

// ExplainCondition is one condition's outcome. Actual is the canonical
// JSON of the resolved value, absent when the field was missing.
type ExplainCondition struct {
	Condition string `json:"condition"`
	Actual    string `json:"actual,omitempty"`
	Matched   bool   `json:"matched"`
	Error     string `json:"error,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <rule-id>",
		Short: "Show why a rule did or did not match",
		Long: `Evaluate one rule against every applicable record of a user's
connections and report each condition with the value it saw.

Examples:
  crmsignal explain rule_1 --user demo-user
  crmsignal explain rule_3 --user demo-user --now 2025-04-01T09:00:00Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user id (required)")
	bindEnvFlags(cmd, &opts.EnvOptions, true)
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runExplain(opts *ExplainOptions, ruleID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(opts.RootOptions, opts.EnvOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	explanations, err := e.svc.Explain(cmd.Context(), opts.User, ruleID)
	switch {
	case errors.Is(err, service.ErrNoConnections):
		return fail(formatter, ExitFailure, ErrCodeNoConnections,
			fmt.Sprintf("no CRM connections found for %s", opts.User), nil)
	case errors.Is(err, service.ErrUnknownRule):
		return fail(formatter, ExitCommandError, ErrCodeUnknownRule, fmt.Sprintf("unknown rule %q", ruleID), nil)
	case err != nil:
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "explain failed", err)
	}

	entries := make([]ExplainEntry, 0, len(explanations))
	for _, x := range explanations {
		entry := ExplainEntry{Entity: x.Entity, Matched: x.Matched}
		for _, o := range x.Outcomes {
			c := ExplainCondition{Condition: o.Condition.String(), Matched: o.Matched}
			if o.Actual != nil {
				c.Actual = renderValue(o.Actual)
			}
			if o.Err != nil {
				c.Error = o.Err.Error()
			}
			entry.Conditions = append(entry.Conditions, c)
		}
		entries = append(entries, entry)
	}

	if opts.Format == "json" {
		return formatter.Success(entries)
	}

	w := formatter.Writer
	if len(entries) == 0 {
		fmt.Fprintf(w, "Rule %s applies to no records of %s.\n", ruleID, opts.User)
		return nil
	}
	for _, entry := range entries {
		verdict := "no match"
		if entry.Matched {
			verdict = "matched"
		}
		fmt.Fprintf(w, "%s on %s/%s (%s): %s\n",
			ruleID, entry.Entity.Provider, entry.Entity.ID, entry.Entity.Kind, verdict)
		for _, c := range entry.Conditions {
			if c.Actual == "" {
				c.Actual = "absent"
			}
			switch {
			case c.Error != "":
				fmt.Fprintf(w, "  ! %s: %s\n", c.Condition, c.Error)
			case c.Matched:
				fmt.Fprintf(w, "  ✓ %s (actual %s)\n", c.Condition, c.Actual)
			default:
				fmt.Fprintf(w, "  ✗ %s (actual %s)\n", c.Condition, c.Actual)
			}
		}
	}
	return nil
}

func renderValue(v canon.Value) string {
	b, err := canon.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

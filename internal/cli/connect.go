package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/service"
)

// ConnectOptions holds flags for the connect command.
type ConnectOptions struct {
	*RootOptions
	EnvOptions

	User        string
	Credentials map[string]string
	Settings    map[string]string
}

// ConnectOutput is the JSON payload of the connect command.
type ConnectOutput struct {
	ConnectionID string               `json:"connection_id"`
	Provider     string               `json:"provider"`
	User         adapter.User         `json:"user"`
	Organization adapter.Organization `json:"organization"`
	Scopes       []string             `json:"scopes,omitempty"`
}

// NewConnectCommand creates the connect command.
func NewConnectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConnectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "connect <provider>",
		Short: "Connect a CRM for a user",
		Long: `Validate credentials, authenticate through the provider's adapter and
store the new connection.

Providers: salesforce, hubspot, zoho, pipedrive.

Exit codes:
  0 - Connected
  1 - Credentials rejected
  2 - Command error (unknown provider, database)

Examples:
  crmsignal connect hubspot --user demo-user --cred apiKey=pat-123
  crmsignal connect salesforce --user demo-user \
    --cred clientId=id,clientSecret=secret,refreshToken=token`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user id (required)")
	cmd.Flags().StringToStringVar(&opts.Credentials, "cred", nil, "credential key=value pairs")
	cmd.Flags().StringToStringVar(&opts.Settings, "setting", nil, "connection setting key=value pairs")
	bindEnvFlags(cmd, &opts.EnvOptions, false)
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runConnect(opts *ConnectOptions, provider string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(opts.RootOptions, opts.EnvOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	conn, err := e.svc.Connect(cmd.Context(), service.ConnectRequest{
		UserID:      opts.User,
		Provider:    provider,
		Credentials: adapter.Credentials(opts.Credentials),
		Settings:    opts.Settings,
	})
	switch {
	case errors.Is(err, adapter.ErrUnsupportedProvider):
		return fail(formatter, ExitCommandError, ErrCodeConnect,
			fmt.Sprintf("unsupported provider %q (available: %v)", provider, e.svc.Registry().Providers()), nil)
	case errors.Is(err, adapter.ErrInvalidCredentials):
		return fail(formatter, ExitFailure, ErrCodeConnect, "credentials rejected", err)
	case err != nil:
		return fail(formatter, ExitCommandError, ErrCodeConnect, "connect failed", err)
	}

	out := ConnectOutput{
		ConnectionID: conn.Connection.ID,
		Provider:     conn.Connection.Provider,
		User:         conn.Result.User,
		Organization: conn.Result.Organization,
		Scopes:       conn.Result.Scopes,
	}
	if opts.Format == "json" {
		return formatter.Success(out)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Connected to %s as %s (%s)\n", out.Provider, out.User.Name, out.Organization.Name)
	fmt.Fprintf(w, "  connection: %s\n", out.ConnectionID)
	return nil
}

package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	EnvOptions

	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the signal API over HTTP",
		Long: `Start the HTTP API:

  GET  /healthz
  POST /v1/signals/generate?type=&priority=&save=
  GET  /v1/signals?type=&priority=&limit=
  POST /v1/crm/connect

Requests under /v1 identify the user with the X-User-ID header. The server
stops gracefully on SIGINT or SIGTERM.

Example:
  crmsignal serve --config crmsignal.yaml --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	bindEnvFlags(cmd, &opts.EnvOptions, true)

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(opts.RootOptions, opts.EnvOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	addr := e.cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(e.svc, e.logger)
	shutdown := time.Duration(e.cfg.Server.ShutdownSeconds) * time.Second
	if err := srv.Run(ctx, addr, shutdown); err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "server failed", err)
	}
	return nil
}

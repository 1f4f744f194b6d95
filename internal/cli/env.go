package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/compiler"
	"github.com/roach88/crmsignal/internal/config"
	"github.com/roach88/crmsignal/internal/engine"
	"github.com/roach88/crmsignal/internal/logging"
	"github.com/roach88/crmsignal/internal/service"
	"github.com/roach88/crmsignal/internal/store"
)

// EnvOptions are the per-command overrides of settings file values.
// Empty fields keep the configured value.
type EnvOptions struct {
	RulesDir string
	Fixtures string
	DB       string

	// Now fixes the evaluation clock (RFC 3339).
	Now string

	// storeOnly commands never evaluate rules or read fixtures.
	storeOnly bool
}

// bindEnvFlags registers the override flags shared by commands that open
// an environment.
func bindEnvFlags(cmd *cobra.Command, o *EnvOptions, withRecords bool) {
	cmd.Flags().StringVar(&o.DB, "db", "", "path to SQLite database (overrides store.path)")
	o.storeOnly = !withRecords
	if !withRecords {
		return
	}
	cmd.Flags().StringVar(&o.RulesDir, "rules", "", "rules directory (overrides rules_dir)")
	cmd.Flags().StringVar(&o.Fixtures, "fixtures", "", "vendor fixture file (overrides fixtures)")
	cmd.Flags().StringVar(&o.Now, "now", "", "evaluate as of this RFC 3339 instant (default: current time)")
}

// env is everything a command needs to run the service.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	svc    *service.Service
	rules  *compiler.RuleSet
}

// Close releases the database.
func (e *env) Close() error {
	return e.store.Close()
}

// openEnv loads settings, applies overrides, initializes logging to
// stderr and assembles the service. Failures are ExitErrors with exit
// code 2, already reported through f.
func openEnv(opts *RootOptions, o EnvOptions, f *OutputFormatter, logOut io.Writer) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeConfig, "failed to load settings", err)
	}
	if o.RulesDir != "" {
		cfg.RulesDir = o.RulesDir
	}
	if o.Fixtures != "" {
		cfg.Fixtures = o.Fixtures
	}
	if o.storeOnly {
		cfg.RulesDir, cfg.Fixtures = "", ""
	}
	if o.DB != "" {
		cfg.Store.Path = o.DB
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.Init(cfg.Log, logOut)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeConfig, "failed to configure logging", err)
	}

	var clock engine.Clock = engine.SystemClock{}
	if o.Now != "" {
		now, err := time.Parse(time.RFC3339, o.Now)
		if err != nil {
			return nil, fail(f, ExitCommandError, ErrCodeInvalidFlag, "invalid --now", err)
		}
		now = now.UTC()
		clock = engine.ClockFunc(func() time.Time { return now })
	}

	e := &env{cfg: cfg, logger: logger}

	var rules []canon.Rule
	if cfg.RulesDir != "" {
		set, errs := compiler.LoadDir(cfg.RulesDir, compiler.LoadModeCollectAll)
		if len(errs) > 0 {
			return nil, fail(f, ExitCommandError, ErrCodeRules, "failed to load rules from "+cfg.RulesDir, errors.Join(errs...))
		}
		e.rules = set
		rules = set.Rules
		logger.Debug("rules loaded", "dir", cfg.RulesDir, "rules", len(set.Rules), "hash", set.Hash)
	}

	var fixtures *adapter.FixtureSource
	if cfg.Fixtures != "" {
		fixtures, err = adapter.LoadFixtures(cfg.Fixtures)
		if err != nil {
			return nil, fail(f, ExitCommandError, ErrCodeNotFound, "failed to load fixtures", err)
		}
	}

	scorer, err := engine.NewScorer(cfg.Engine.Scoring.Mode, cfg.Engine.Scoring.ValueCeiling)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeConfig, "invalid scoring settings", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	e.store = st

	svc, err := service.New(service.Config{
		Store:    st,
		Fixtures: fixtures,
		Rules:    rules,
		Adapters: adapter.Options{
			RatePerSecond: cfg.Adapters.RatePerSecond,
			Burst:         cfg.Adapters.Burst,
		},
		Scorer:         scorer,
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		Lookback:       time.Duration(cfg.Engine.LookbackDays) * 24 * time.Hour,
		Clock:          clock,
		Logger:         logger,
	})
	if err != nil {
		st.Close()
		return nil, fail(f, ExitCommandError, ErrCodeGeneric, "failed to start service", err)
	}
	e.svc = svc
	return e, nil
}

// parsePriority validates a --priority flag value; empty is allowed.
func parsePriority(p string) (canon.Priority, error) {
	if p == "" {
		return "", nil
	}
	if !canon.ValidPriorities[canon.Priority(p)] {
		return "", fmt.Errorf("invalid priority %q, must be low, medium or high", p)
	}
	return canon.Priority(p), nil
}

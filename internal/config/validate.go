package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/roach88/crmsignal/internal/engine"
	"github.com/roach88/crmsignal/internal/logging"
)

// Validate reports every problem in c, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.New(c.Log, io.Discard); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if c.Engine.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.max_concurrency must be at least 1, got %d", c.Engine.MaxConcurrency))
	}
	if _, err := engine.NewScorer(c.Engine.Scoring.Mode, c.Engine.Scoring.ValueCeiling); err != nil {
		errs = append(errs, fmt.Errorf("engine.scoring: %w", err))
	}
	if c.Engine.LookbackDays < 0 {
		errs = append(errs, fmt.Errorf("engine.lookback_days cannot be negative, got %d", c.Engine.LookbackDays))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ShutdownSeconds < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_seconds cannot be negative, got %d", c.Server.ShutdownSeconds))
	}
	if c.Adapters.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("adapters.rate_per_second cannot be negative, got %v", c.Adapters.RatePerSecond))
	}
	if c.Adapters.RatePerSecond > 0 && c.Adapters.Burst < 1 {
		errs = append(errs, fmt.Errorf("adapters.burst must be at least 1 when rate limiting, got %d", c.Adapters.Burst))
	}
	return errors.Join(errs...)
}

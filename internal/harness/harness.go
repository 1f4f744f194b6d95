package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/compiler"
	"github.com/roach88/crmsignal/internal/engine"
	"github.com/roach88/crmsignal/internal/logging"
	"github.com/roach88/crmsignal/internal/service"
	"github.com/roach88/crmsignal/internal/store"
	"github.com/roach88/crmsignal/internal/testutil"
)

var defaultNow = testutil.DefaultNow

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the rule set (directory or inline CUE)
//  2. Load fixtures into a record source
//  3. Open a fresh in-memory store
//  4. Generate signals for the scenario user with a fixed clock
//  5. Persist the signals
//  6. Evaluate assertions
//
// An error is returned when the scenario cannot run at all; assertion
// failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	rules, err := loadRules(scenario)
	if err != nil {
		return nil, err
	}
	fixtures, err := loadFixtures(scenario)
	if err != nil {
		return nil, err
	}
	now, err := scenario.clock()
	if err != nil {
		return nil, err
	}
	scorer, err := engine.NewScorer(scenario.Scoring.Mode, scenario.Scoring.ValueCeiling)
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	svc, err := service.New(service.Config{
		Store:          st,
		Fixtures:       fixtures,
		Rules:          rules,
		Scorer:         scorer,
		MaxConcurrency: 1,
		Lookback:       time.Duration(scenario.LookbackDays) * 24 * time.Hour,
		Clock:          testutil.NewFixedClock(now),
		Logger:         logging.Discard(),
	})
	if err != nil {
		return nil, err
	}

	result := NewResult()
	gen, err := svc.Generate(ctx, service.GenerateRequest{
		UserID: scenario.User,
		Filter: engine.Filter{
			Type:     scenario.Filter.Type,
			Priority: canon.Priority(scenario.Filter.Priority),
		},
	})
	switch {
	case errors.Is(err, service.ErrNoConnections):
		// Nothing to evaluate; assertions see an empty run.
	case err != nil:
		return nil, fmt.Errorf("generate: %w", err)
	default:
		result.Signals = append(result.Signals, gen.Signals...)
		result.Stats = gen.Stats
		for _, e := range gen.Errors {
			result.Failures = append(result.Failures, Failure{
				ConnectionID: e.ConnectionID,
				Provider:     e.Provider,
				Error:        e.Err.Error(),
			})
		}
	}

	if _, err := st.SaveSignals(ctx, scenario.User, result.Signals); err != nil {
		return nil, fmt.Errorf("save signals: %w", err)
	}
	stored, err := st.ListSignals(ctx, scenario.User, store.SignalQuery{})
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	result.Stored = len(stored)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadRules(s *Scenario) ([]canon.Rule, error) {
	var (
		set  *compiler.RuleSet
		errs []error
	)
	if s.Rules != "" {
		set, errs = compiler.LoadDir(s.Rules, compiler.LoadModeCollectAll)
	} else {
		set, errs = compiler.CompileString(s.Name+".cue", s.RulesCUE, compiler.LoadModeCollectAll)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("rules: %w", errors.Join(errs...))
	}
	return set.Rules, nil
}

func loadFixtures(s *Scenario) (*adapter.FixtureSource, error) {
	src := adapter.NewFixtureSource()
	if s.Fixtures != "" {
		loaded, err := adapter.LoadFixtures(s.Fixtures)
		if err != nil {
			return nil, err
		}
		src = loaded
	}
	if s.Connections.Kind == 0 {
		return src, nil
	}

	data, err := yaml.Marshal(map[string]*yaml.Node{"connections": &s.Connections})
	if err != nil {
		return nil, fmt.Errorf("connections: %w", err)
	}
	inline, err := adapter.ParseFixtures(data)
	if err != nil {
		return nil, fmt.Errorf("connections: %w", err)
	}
	if err := src.Merge(inline); err != nil {
		return nil, fmt.Errorf("connections: %w", err)
	}
	return src, nil
}

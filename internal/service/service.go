// Package service wires adapters, context derivation, the rule engine and
// the SQLite store into the operations the CLI and HTTP surface expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/derive"
	"github.com/roach88/crmsignal/internal/engine"
	"github.com/roach88/crmsignal/internal/store"
)

// ErrNoConnections is returned by Generate for a user without connections.
var ErrNoConnections = errors.New("no CRM connections found")

// ErrUnknownRule is returned by Explain for a rule id not in the user's set.
var ErrUnknownRule = errors.New("unknown rule")

// Config assembles a Service.
type Config struct {
	// Store persists connections, rules, signals and runs. Required.
	Store *store.Store

	// Fixtures supplies vendor records and demo connections. Nil serves
	// no records.
	Fixtures *adapter.FixtureSource

	// Rules is the fallback rule set for users with no stored rules.
	Rules []canon.Rule

	Adapters adapter.Options
	Scorer   engine.Scorer

	MaxConcurrency int
	Lookback       time.Duration

	// IDs names saved runs. Nil uses engine.RunIDGenerator.
	IDs engine.IDGenerator

	Clock  engine.Clock
	Logger *slog.Logger
}

// Service runs signal generation for users.
type Service struct {
	store    *store.Store
	registry *adapter.Registry
	builder  *derive.Builder
	conns    engine.ConnectionRepository
	rules    engine.RuleRepository
	agg      *engine.Aggregator
	ruleHash string
	ids      engine.IDGenerator
	clock    engine.Clock
	logger   *slog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("service: store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = engine.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IDs == nil {
		cfg.IDs = engine.RunIDGenerator{}
	}
	fixtures := cfg.Fixtures
	if fixtures == nil {
		fixtures = adapter.NewFixtureSource()
	}

	hash := ""
	if len(cfg.Rules) > 0 {
		h, err := canon.RuleSetHash(cfg.Rules)
		if err != nil {
			return nil, fmt.Errorf("service: hash rules: %w", err)
		}
		hash = h
	}

	registry := adapter.DefaultRegistry(fixtures, cfg.Adapters)
	builder := derive.NewBuilder(registry, derive.Options{
		Clock:    cfg.Clock,
		Lookback: cfg.Lookback,
		Logger:   cfg.Logger,
	})
	conns := connectionChain{cfg.Store, fixtures}
	rules := ruleChain{cfg.Store, staticRules(cfg.Rules)}

	return &Service{
		store:    cfg.Store,
		registry: registry,
		builder:  builder,
		conns:    conns,
		rules:    rules,
		ruleHash: hash,
		ids:      cfg.IDs,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		agg: engine.NewAggregator(conns, rules, builder, engine.Options{
			MaxConcurrency: cfg.MaxConcurrency,
			Scorer:         cfg.Scorer,
			Clock:          cfg.Clock,
			Logger:         cfg.Logger,
		}),
	}, nil
}

// Registry returns the adapter registry.
func (s *Service) Registry() *adapter.Registry {
	return s.registry
}

// GenerateRequest selects whose signals to generate and how to keep them.
type GenerateRequest struct {
	UserID string
	Filter engine.Filter

	// Save persists the signals and records the run.
	Save bool
}

// Generation is the outcome of Generate.
type Generation struct {
	*engine.Result

	// Run is set when the request asked to save.
	Run *store.Run
}

// Generate runs the engine for one user. A user with no connections gets
// ErrNoConnections.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	res, err := s.agg.Generate(ctx, engine.Request{UserID: req.UserID, Filter: req.Filter})
	if err != nil {
		return nil, err
	}
	if res.Stats.Connections == 0 {
		return nil, ErrNoConnections
	}
	gen := &Generation{Result: res}
	if !req.Save {
		return gen, nil
	}

	saved, err := s.store.SaveSignals(ctx, req.UserID, res.Signals)
	if err != nil {
		return nil, err
	}
	res.Signals = saved

	hash := s.ruleHash
	if stored, err := s.store.Rules(ctx, req.UserID, canon.Connection{}); err == nil && len(stored) > 0 {
		if h, err := canon.RuleSetHash(stored); err == nil {
			hash = h
		}
	}
	run, err := s.store.RecordRun(ctx, store.Run{
		ID:                s.ids.Generate(),
		UserID:            req.UserID,
		RuleSetHash:       hash,
		GeneratedAt:       s.clock.Now(),
		Connections:       res.Stats.Connections,
		FailedConnections: res.Stats.FailedConnections,
		Signals:           len(saved),
	})
	if err != nil {
		return nil, err
	}
	gen.Run = &run
	return gen, nil
}

// ImportRules replaces userID's stored rule set and returns its hash. Use
// store.GlobalRules for the set shared by users without their own. Stored
// sets take precedence over the rules directory. Malformed rules are
// rejected with *compiler.ConfigurationErrors.
func (s *Service) ImportRules(ctx context.Context, userID string, rules []canon.Rule) (string, error) {
	if len(rules) == 0 {
		return "", errors.New("import rules: empty rule set")
	}
	if err := s.store.SaveRules(ctx, userID, rules); err != nil {
		return "", err
	}
	hash, err := canon.RuleSetHash(rules)
	if err != nil {
		return "", fmt.Errorf("import rules: %w", err)
	}
	s.logger.Info("rules imported", "user_id", userID, "rules", len(rules), "hash", hash)
	return hash, nil
}

// ConnectRequest asks to connect a CRM for a user.
type ConnectRequest struct {
	UserID      string
	Provider    string
	Credentials adapter.Credentials
	Settings    map[string]string
}

// Connection is the outcome of Connect.
type Connection struct {
	Connection canon.Connection
	Result     *adapter.ConnectResult
}

// Connect validates credentials, authenticates through the provider's
// adapter and persists the new connection.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (*Connection, error) {
	if req.UserID == "" {
		return nil, engine.ErrMissingUser
	}
	a, err := s.registry.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}
	if err := a.ValidateCredentials(req.Credentials); err != nil {
		return nil, err
	}
	res, err := a.Connect(ctx, req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", a.Provider(), err)
	}

	conn := canon.Connection{
		ID:        "conn_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		UserID:    req.UserID,
		Provider:  a.Provider(),
		Token:     res.Token,
		Settings:  req.Settings,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		return nil, err
	}
	s.logger.Info("crm connected", "user_id", req.UserID, "provider", conn.Provider, "connection_id", conn.ID)
	return &Connection{Connection: conn, Result: res}, nil
}

// Signals lists a user's persisted signals.
func (s *Service) Signals(ctx context.Context, userID string, q store.SignalQuery) ([]canon.Signal, error) {
	return s.store.ListSignals(ctx, userID, q)
}

// Explanation is one rule evaluated against one context, every condition
// reported.
type Explanation struct {
	Entity   canon.EntityRef
	Matched  bool
	Outcomes []engine.ConditionOutcome
}

// Explain evaluates the rule ruleID against every applicable context of
// the user's connections. Connections that cannot be fetched are skipped.
func (s *Service) Explain(ctx context.Context, userID, ruleID string) ([]Explanation, error) {
	conns, err := s.conns.Connections(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, ErrNoConnections
	}
	out := []Explanation{}
	found := false
	for _, conn := range conns {
		rules, err := s.rules.Rules(ctx, userID, conn)
		if err != nil {
			return nil, err
		}
		rule, ok := findRule(rules, ruleID)
		if !ok {
			continue
		}
		found = true

		contexts, err := s.builder.Contexts(ctx, conn)
		if err != nil {
			s.logger.Warn("explain: connection skipped", "connection_id", conn.ID, "error", err)
			continue
		}
		for _, c := range contexts {
			if !rule.AppliesTo(c.Primary.Kind) {
				continue
			}
			matched, _ := engine.MatchDetail(rule, c)
			out = append(out, Explanation{
				Entity:   c.Ref(),
				Matched:  matched,
				Outcomes: engine.Explain(rule, c),
			})
		}
	}
	if !found {
		return nil, fmt.Errorf("%w %q", ErrUnknownRule, ruleID)
	}
	return out, nil
}

func findRule(rules []canon.Rule, id string) (canon.Rule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return canon.Rule{}, false
}

package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/crmsignal/internal/canon"
)

// DefaultMaxConcurrency bounds concurrent connection evaluation when
// Options.MaxConcurrency is unset.
const DefaultMaxConcurrency = 4

// ConnectionRepository lists a user's CRM connections.
type ConnectionRepository interface {
	Connections(ctx context.Context, userID string) ([]canon.Connection, error)
}

// RuleRepository returns the ordered rule set that applies to a
// connection of a user.
type RuleRepository interface {
	Rules(ctx context.Context, userID string, conn canon.Connection) ([]canon.Rule, error)
}

// ContextSource fetches and materializes the entity contexts of a
// connection.
type ContextSource interface {
	Contexts(ctx context.Context, conn canon.Connection) ([]canon.Context, error)
}

// SignalSink persists generated signals and returns them with IDs assigned.
type SignalSink interface {
	SaveSignals(ctx context.Context, userID string, signals []canon.Signal) ([]canon.Signal, error)
}

// Filter holds optional exact-match post-filters. Empty fields match all.
type Filter struct {
	Type     string
	Priority canon.Priority
}

// Keep reports whether s passes the filter. Comparison is case-sensitive.
func (f Filter) Keep(s canon.Signal) bool {
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.Priority != "" && s.Priority != f.Priority {
		return false
	}
	return true
}

// Apply returns the signals that pass the filter, preserving order.
func (f Filter) Apply(signals []canon.Signal) []canon.Signal {
	out := make([]canon.Signal, 0, len(signals))
	for _, s := range signals {
		if f.Keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// Rank sorts signals by score, highest first. Equal scores keep their
// relative order.
func Rank(signals []canon.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Score > signals[j].Score
	})
}

// Request is one generation run.
type Request struct {
	UserID string
	Filter Filter
}

// ConnectionError records a connection that yielded no signals because its
// entities could not be fetched.
type ConnectionError struct {
	ConnectionID string
	Provider     string
	Err          error
}

func (e ConnectionError) Error() string {
	return e.Err.Error()
}

// Stats counts the work done by a run.
type Stats struct {
	Connections       int
	FailedConnections int
	Contexts          int
	RulesEvaluated    int
	Matches           int
	Returned          int
}

// Result is the output of Generate.
type Result struct {
	Signals []canon.Signal
	Errors  []ConnectionError
	Stats   Stats
}

// Options configures an Aggregator.
type Options struct {
	// MaxConcurrency bounds concurrently evaluated connections.
	MaxConcurrency int

	// Scorer defaults to DefaultScorer.
	Scorer Scorer

	// Clock defaults to SystemClock.
	Clock Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Aggregator runs every applicable rule over every context of every
// connection of a user and ranks the resulting signals.
type Aggregator struct {
	conns   ConnectionRepository
	rules   RuleRepository
	source  ContextSource
	scorer  Scorer
	clock   Clock
	logger  *slog.Logger
	matcher *Matcher
	limit   int
}

// NewAggregator creates an aggregator over the given inputs.
func NewAggregator(conns ConnectionRepository, rules RuleRepository, source ContextSource, opts Options) *Aggregator {
	a := &Aggregator{
		conns:  conns,
		rules:  rules,
		source: source,
		scorer: opts.Scorer,
		clock:  opts.Clock,
		logger: opts.Logger,
		limit:  opts.MaxConcurrency,
	}
	if a.scorer == nil {
		a.scorer = DefaultScorer{}
	}
	if a.clock == nil {
		a.clock = SystemClock{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.limit <= 0 {
		a.limit = DefaultMaxConcurrency
	}
	a.matcher = NewMatcher(a.logger)
	return a
}

type connectionResult struct {
	signals []canon.Signal
	err     *ConnectionError
	stats   Stats
}

// Generate produces the filtered, score-ranked signals for req.UserID.
//
// A connection whose entities cannot be fetched contributes no signals and
// is listed in Result.Errors. A malformed connection, a repository failure
// or cancellation fails the whole run with *AggregationError.
func (a *Aggregator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, &AggregationError{Op: "generate", Err: ErrMissingUser}
	}

	conns, err := a.conns.Connections(ctx, req.UserID)
	if err != nil {
		return nil, &AggregationError{Op: "list connections", Err: err}
	}
	for _, conn := range conns {
		if err := conn.Validate(); err != nil {
			return nil, &AggregationError{Op: "validate connection", ConnectionID: conn.ID, Err: err}
		}
	}

	now := a.clock.Now()
	slots := make([]connectionResult, len(conns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for i, conn := range conns {
		i, conn := i, conn
		g.Go(func() error {
			res, err := a.evaluateConnection(gctx, req.UserID, conn, now)
			if err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if IsAggregation(err) {
			return nil, err
		}
		return nil, &AggregationError{Op: "evaluate", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &AggregationError{Op: "generate", Err: err}
	}

	result := &Result{}
	var all []canon.Signal
	for _, slot := range slots {
		all = append(all, slot.signals...)
		if slot.err != nil {
			result.Errors = append(result.Errors, *slot.err)
			result.Stats.FailedConnections++
		}
		result.Stats.Contexts += slot.stats.Contexts
		result.Stats.RulesEvaluated += slot.stats.RulesEvaluated
		result.Stats.Matches += slot.stats.Matches
	}
	result.Stats.Connections = len(conns)

	result.Signals = req.Filter.Apply(all)
	Rank(result.Signals)
	result.Stats.Returned = len(result.Signals)

	a.logger.Info("signals generated",
		"user_id", req.UserID,
		"connections", result.Stats.Connections,
		"failed_connections", result.Stats.FailedConnections,
		"matches", result.Stats.Matches,
		"returned", result.Stats.Returned,
	)
	return result, nil
}

func (a *Aggregator) evaluateConnection(ctx context.Context, userID string, conn canon.Connection, now time.Time) (connectionResult, error) {
	var res connectionResult

	rules, err := a.rules.Rules(ctx, userID, conn)
	if err != nil {
		return res, &AggregationError{Op: "load rules", ConnectionID: conn.ID, Err: err}
	}

	contexts, err := a.source.Contexts(ctx, conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, &AggregationError{Op: "fetch", ConnectionID: conn.ID, Err: ctxErr}
		}
		if !IsAdapterFetch(err) {
			err = &AdapterFetchError{ConnectionID: conn.ID, Provider: conn.Provider, Err: err}
		}
		a.logger.Warn("connection skipped",
			"connection_id", conn.ID,
			"provider", conn.Provider,
			"error", err,
		)
		res.err = &ConnectionError{ConnectionID: conn.ID, Provider: conn.Provider, Err: err}
		return res, nil
	}

	res.stats.Contexts = len(contexts)
	for _, c := range contexts {
		for _, rule := range rules {
			if !rule.AppliesTo(c.Primary.Kind) {
				continue
			}
			res.stats.RulesEvaluated++
			if !a.matcher.Match(rule, c) {
				continue
			}
			res.stats.Matches++
			res.signals = append(res.signals, BuildSignal(a.scorer, rule, c, now))
		}
	}

	a.logger.Debug("connection evaluated",
		"connection_id", conn.ID,
		"provider", conn.Provider,
		"contexts", res.stats.Contexts,
		"matches", res.stats.Matches,
	)
	return res, nil
}

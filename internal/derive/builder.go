// Package derive turns normalized CRM entities into rule evaluation
// contexts.
//
// A Builder fetches the entity kinds a provider supports through the
// adapter registry, builds one context per lead and per opportunity, links
// the related contacts, engagements, tasks and documents to each primary,
// and computes the derived fields rules condition on:
//
//	days_since_last_contact
//	open_task_count
//	opportunity.days_in_stage, opportunity.amount, opportunity.days_to_close
//	document.view_count, document.days_since_shared
//
// Derived fields are computed once against an injected clock; a field
// whose inputs are missing is left out rather than defaulted.
package derive

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/engine"
)

// AdapterLookup resolves a provider name to its adapter.
// *adapter.Registry satisfies it.
type AdapterLookup interface {
	Lookup(provider string) (adapter.CrmAdapter, error)
}

// primaryKinds produce contexts; relatedKinds only feed derived fields.
var (
	primaryKinds = []canon.Kind{canon.KindLead, canon.KindOpportunity}
	relatedKinds = []canon.Kind{canon.KindContact, canon.KindEngagement, canon.KindTask, canon.KindDocument}
)

// Options configures a Builder.
type Options struct {
	// Clock anchors day counts. Defaults to engine.SystemClock.
	Clock engine.Clock

	// Lookback limits activity kinds (engagements, tasks, documents) to
	// records touched within the window. Zero fetches everything.
	Lookback time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Builder implements engine.ContextSource over an adapter registry.
type Builder struct {
	adapters AdapterLookup
	clock    engine.Clock
	lookback time.Duration
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(adapters AdapterLookup, opts Options) *Builder {
	if opts.Clock == nil {
		opts.Clock = engine.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Builder{
		adapters: adapters,
		clock:    opts.Clock,
		lookback: opts.Lookback,
		logger:   opts.Logger,
	}
}

// Contexts fetches conn's entities and returns one context per lead and
// per opportunity, leads first, each group in fetch order. Any failure is
// an *engine.AdapterFetchError.
func (b *Builder) Contexts(ctx context.Context, conn canon.Connection) ([]canon.Context, error) {
	a, err := b.adapters.Lookup(conn.Provider)
	if err != nil {
		return nil, &engine.AdapterFetchError{ConnectionID: conn.ID, Provider: conn.Provider, Err: err}
	}

	now := b.clock.Now()
	kinds := fetchKinds(a)
	fetched := make([][]canon.Entity, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		filter := adapter.Filter{}
		if b.lookback > 0 && isActivity(kind) {
			filter.Since = now.Add(-b.lookback)
		}
		g.Go(func() error {
			entities, err := a.FetchEntities(gctx, conn, kind, filter)
			if err != nil {
				return &engine.AdapterFetchError{ConnectionID: conn.ID, Provider: conn.Provider, Kind: kind, Err: err}
			}
			fetched[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byKind := make(map[canon.Kind][]canon.Entity, len(kinds))
	for i, kind := range kinds {
		byKind[kind] = fetched[i]
	}
	var pool []canon.Entity
	for _, kind := range relatedKinds {
		pool = append(pool, byKind[kind]...)
	}
	_, hasTasks := byKind[canon.KindTask]

	var contexts []canon.Context
	for _, kind := range primaryKinds {
		for _, primary := range byKind[kind] {
			related := relatedTo(primary, pool)
			derived := Fields(primary, related, now, hasTasks)
			contexts = append(contexts, canon.NewContext(primary, related, conn, derived))
		}
	}

	b.logger.Debug("contexts built",
		"connection_id", conn.ID,
		"provider", conn.Provider,
		"kinds", len(kinds),
		"contexts", len(contexts),
	)
	return contexts, nil
}

// fetchKinds lists the kinds to fetch: lead, opportunity and contact, plus
// the activity kinds the adapter supports. Kinds the adapter lacks among
// the first three are skipped too.
func fetchKinds(a adapter.CrmAdapter) []canon.Kind {
	supported := make(map[canon.Kind]bool)
	for _, k := range a.SupportedKinds() {
		supported[k] = true
	}
	var kinds []canon.Kind
	for _, k := range append(append([]canon.Kind{}, primaryKinds...), relatedKinds...) {
		if supported[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func isActivity(kind canon.Kind) bool {
	switch kind {
	case canon.KindEngagement, canon.KindTask, canon.KindDocument:
		return true
	}
	return false
}

package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator names generation runs.
type IDGenerator interface {
	Generate() string
}

// RunIDGenerator issues "run_" prefixed UUIDv7s, so run ids sort by
// creation time. Safe for concurrent use.
type RunIDGenerator struct{}

// Generate returns a new run id.
func (RunIDGenerator) Generate() string {
	return "run_" + uuid.Must(uuid.NewV7()).String()
}

// FixedIDs hands out predetermined ids in order, for deterministic runs.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next id. It panics once the ids are exhausted.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedIDs: all %d ids used", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/testutil"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSignal creates a signal for rule on an opportunity of conn.
func createTestSignal(conn canon.Connection, rule canon.Rule, entityID string) canon.Signal {
	return canon.Signal{
		Type:     canon.SignalType(rule.ID, canon.KindOpportunity),
		Priority: rule.Priority,
		Score:    rule.Score(),
		EntityRef: canon.EntityRef{
			Kind:         canon.KindOpportunity,
			ID:           entityID,
			ConnectionID: conn.ID,
			Provider:     conn.Provider,
		},
		Actions:     canon.SortedActions(rule.Actions),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Description: rule.Description,
		GeneratedAt: testutil.DefaultNow,
	}
}

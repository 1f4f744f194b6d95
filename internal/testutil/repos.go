package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/crmsignal/internal/canon"
)

// ConnectionRepo is an in-memory connection repository keyed by user.
type ConnectionRepo struct {
	mu    sync.Mutex
	conns map[string][]canon.Connection

	// Err, when set, is returned by every Connections call.
	Err error
}

// NewConnectionRepo creates a repository holding conns, grouped by UserID.
func NewConnectionRepo(conns ...canon.Connection) *ConnectionRepo {
	r := &ConnectionRepo{conns: map[string][]canon.Connection{}}
	for _, c := range conns {
		r.conns[c.UserID] = append(r.conns[c.UserID], c)
	}
	return r
}

// Connections returns the user's connections in insertion order.
func (r *ConnectionRepo) Connections(_ context.Context, userID string) ([]canon.Connection, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.conns[userID]), nil
}

// Add appends a connection.
func (r *ConnectionRepo) Add(c canon.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.UserID] = append(r.conns[c.UserID], c)
}

// RuleRepo is a rule repository that returns the same ordered rule set for
// every user and connection.
type RuleRepo struct {
	rules []canon.Rule

	// Err, when set, is returned by every Rules call.
	Err error
}

// NewRuleRepo creates a repository holding rules in order.
func NewRuleRepo(rules ...canon.Rule) *RuleRepo {
	return &RuleRepo{rules: rules}
}

// Rules returns the rule set.
func (r *RuleRepo) Rules(_ context.Context, _ string, _ canon.Connection) ([]canon.Rule, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return slices.Clone(r.rules), nil
}

// ContextSource serves prepared contexts per connection ID. Connections
// listed in Failures return that error instead.
type ContextSource struct {
	mu       sync.Mutex
	contexts map[string][]canon.Context
	Failures map[string]error
	calls    int
}

// NewContextSource creates an empty source.
func NewContextSource() *ContextSource {
	return &ContextSource{
		contexts: map[string][]canon.Context{},
		Failures: map[string]error{},
	}
}

// Add registers contexts for a connection.
func (s *ContextSource) Add(connID string, contexts ...canon.Context) *ContextSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[connID] = append(s.contexts[connID], contexts...)
	return s
}

// Fail makes every fetch for connID fail with err.
func (s *ContextSource) Fail(connID string, err error) *ContextSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures[connID] = err
	return s
}

// Contexts implements engine.ContextSource.
func (s *ContextSource) Contexts(ctx context.Context, conn canon.Connection) ([]canon.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.Failures[conn.ID]; ok {
		return nil, err
	}
	return slices.Clone(s.contexts[conn.ID]), nil
}

// Calls returns how many fetches were made.
func (s *ContextSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

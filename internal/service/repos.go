package service

import (
	"context"

	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/engine"
)

// connectionChain lists connections from several repositories in order.
// A connection id seen in an earlier repository shadows later ones.
type connectionChain []engine.ConnectionRepository

func (c connectionChain) Connections(ctx context.Context, userID string) ([]canon.Connection, error) {
	seen := map[string]bool{}
	out := []canon.Connection{}
	for _, repo := range c {
		conns, err := repo.Connections(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, conn := range conns {
			if seen[conn.ID] {
				continue
			}
			seen[conn.ID] = true
			out = append(out, conn)
		}
	}
	return out, nil
}

// ruleChain returns the first non-empty rule set.
type ruleChain []engine.RuleRepository

func (c ruleChain) Rules(ctx context.Context, userID string, conn canon.Connection) ([]canon.Rule, error) {
	for _, repo := range c {
		rules, err := repo.Rules(ctx, userID, conn)
		if err != nil {
			return nil, err
		}
		if len(rules) > 0 {
			return rules, nil
		}
	}
	return nil, nil
}

// staticRules serves one rule set to every user and connection.
type staticRules []canon.Rule

func (r staticRules) Rules(context.Context, string, canon.Connection) ([]canon.Rule, error) {
	return r, nil
}

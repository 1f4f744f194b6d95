package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/compiler"
)

// GlobalRules is the user id of the fallback rule set.
const GlobalRules = ""

// SaveRules replaces userID's rule set. Declaration order is kept.
// Use GlobalRules to replace the fallback set. A set with malformed rules
// is rejected with its *compiler.ConfigurationErrors and nothing is
// written.
func (s *Store) SaveRules(ctx context.Context, userID string, rules []canon.Rule) error {
	if err := compiler.CheckSet(rules); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save rules: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("save rules: clear: %w", err)
	}
	for i, r := range rules {
		data, err := canon.MarshalRule(r)
		if err != nil {
			return fmt.Errorf("save rules: rule %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rules (user_id, id, position, definition)
			VALUES (?, ?, ?, ?)
		`, userID, r.ID, i, string(data)); err != nil {
			return fmt.Errorf("save rules: rule %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save rules: commit: %w", err)
	}
	return nil
}

// Rules implements engine.RuleRepository. A user without rules of their
// own gets the global set. Every connection of a user shares one set.
// Stored sets are validated again on load; a malformed set fails with
// *compiler.ConfigurationErrors instead of reaching evaluation.
func (s *Store) Rules(ctx context.Context, userID string, _ canon.Connection) ([]canon.Rule, error) {
	rules, err := s.rulesFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 || userID == GlobalRules {
		return rules, nil
	}
	return s.rulesFor(ctx, GlobalRules)
}

func (s *Store) rulesFor(ctx context.Context, userID string) ([]canon.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition
		FROM rules
		WHERE user_id = ?
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []canon.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	if err := compiler.CheckSet(rules); err != nil {
		return nil, fmt.Errorf("stored rules for user %q: %w", userID, err)
	}
	return rules, nil
}

func scanRule(rows *sql.Rows) (canon.Rule, error) {
	var def string
	if err := rows.Scan(&def); err != nil {
		return canon.Rule{}, fmt.Errorf("scan rule: %w", err)
	}
	var r canon.Rule
	if err := json.Unmarshal([]byte(def), &r); err != nil {
		return canon.Rule{}, fmt.Errorf("unmarshal rule: %w", err)
	}
	// Canonical JSON always writes arrays; keep absent lists nil.
	if len(r.EntityKinds) == 0 {
		r.EntityKinds = nil
	}
	return r, nil
}

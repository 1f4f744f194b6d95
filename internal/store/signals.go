package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/crmsignal/internal/canon"
)

// SaveSignals implements engine.SignalSink. Each signal gets its
// content-addressed id; signals already stored are skipped. The returned
// slice is a copy of signals with ids set, in input order.
func (s *Store) SaveSignals(ctx context.Context, userID string, signals []canon.Signal) ([]canon.Signal, error) {
	out := make([]canon.Signal, len(signals))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save signals: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals
		(id, user_id, type, priority, score, rule_id, rule_name, description,
		 entity_kind, entity_id, connection_id, provider, actions, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("save signals: prepare: %w", err)
	}
	defer stmt.Close()

	for i, sig := range signals {
		id, err := canon.SignalID(userID, sig)
		if err != nil {
			return nil, fmt.Errorf("save signals: %w", err)
		}
		sig.ID = id
		actions, err := json.Marshal(sig.Actions)
		if err != nil {
			return nil, fmt.Errorf("save signals: %s: marshal actions: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx,
			sig.ID,
			userID,
			sig.Type,
			string(sig.Priority),
			sig.Score,
			sig.RuleID,
			sig.RuleName,
			sig.Description,
			string(sig.EntityRef.Kind),
			sig.EntityRef.ID,
			sig.EntityRef.ConnectionID,
			sig.EntityRef.Provider,
			string(actions),
			formatTime(sig.GeneratedAt),
		); err != nil {
			return nil, fmt.Errorf("save signals: %s: %w", id, err)
		}
		out[i] = sig
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save signals: commit: %w", err)
	}
	return out, nil
}

// SignalQuery selects persisted signals. Empty fields match everything.
type SignalQuery struct {
	Type     string
	Priority canon.Priority

	// Limit caps the result; zero means no limit.
	Limit int
}

// ListSignals returns userID's signals by score descending, ties in the
// order they were saved.
func (s *Store) ListSignals(ctx context.Context, userID string, q SignalQuery) ([]canon.Signal, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, q.Type)
	}
	if q.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(q.Priority))
	}
	query := `
		SELECT id, type, priority, score, rule_id, rule_name, description,
		       entity_kind, entity_id, connection_id, provider, actions, generated_at
		FROM signals
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY score DESC, seq ASC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	signals := []canon.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return signals, nil
}

func scanSignal(row scanner) (canon.Signal, error) {
	var (
		sig       canon.Signal
		priority  string
		kind      string
		actions   string
		generated string
	)
	if err := row.Scan(
		&sig.ID,
		&sig.Type,
		&priority,
		&sig.Score,
		&sig.RuleID,
		&sig.RuleName,
		&sig.Description,
		&kind,
		&sig.EntityRef.ID,
		&sig.EntityRef.ConnectionID,
		&sig.EntityRef.Provider,
		&actions,
		&generated,
	); err != nil {
		return sig, fmt.Errorf("scan signal: %w", err)
	}
	sig.Priority = canon.Priority(priority)
	sig.EntityRef.Kind = canon.Kind(kind)
	if err := json.Unmarshal([]byte(actions), &sig.Actions); err != nil {
		return sig, fmt.Errorf("signal %s: unmarshal actions: %w", sig.ID, err)
	}
	var err error
	if sig.GeneratedAt, err = parseTime(generated); err != nil {
		return sig, fmt.Errorf("signal %s: %w", sig.ID, err)
	}
	return sig, nil
}

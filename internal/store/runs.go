package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run summarizes one persisted generation run.
type Run struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	RuleSetHash       string    `json:"rule_set_hash"`
	GeneratedAt       time.Time `json:"generated_at"`
	Connections       int       `json:"connections"`
	FailedConnections int       `json:"failed_connections"`
	Signals           int       `json:"signals"`
}

// RecordRun stores a run. An empty ID is filled with a random UUID; the
// stored run is returned.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, user_id, rule_set_hash, generated_at, connections, failed_connections, signals)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.UserID,
		run.RuleSetHash,
		formatTime(run.GeneratedAt),
		run.Connections,
		run.FailedConnections,
		run.Signals,
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	run.GeneratedAt = run.GeneratedAt.UTC()
	return run, nil
}

// Runs lists userID's runs, oldest first.
func (s *Store) Runs(ctx context.Context, userID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, rule_set_hash, generated_at, connections, failed_connections, signals
		FROM runs
		WHERE user_id = ?
		ORDER BY rowid ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run       Run
			generated string
		)
		if err := rows.Scan(&run.ID, &run.UserID, &run.RuleSetHash, &generated,
			&run.Connections, &run.FailedConnections, &run.Signals); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.GeneratedAt, err = parseTime(generated); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/crmsignal/internal/canon"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SaveConnection inserts a connection, or updates provider, token and
// settings when the id exists. A zero CreatedAt is stamped with the
// current time; an existing row keeps its original creation time.
func (s *Store) SaveConnection(ctx context.Context, conn canon.Connection) error {
	if err := conn.Validate(); err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	if strings.TrimSpace(conn.UserID) == "" {
		return fmt.Errorf("save connection %s: user id is required", conn.ID)
	}
	settings, err := marshalSettings(conn.Settings)
	if err != nil {
		return fmt.Errorf("save connection %s: %w", conn.ID, err)
	}
	created := conn.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (id, user_id, provider, token, settings, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			token = excluded.token,
			settings = excluded.settings
	`,
		conn.ID,
		conn.UserID,
		strings.ToLower(conn.Provider),
		conn.Token,
		settings,
		formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("save connection %s: %w", conn.ID, err)
	}
	return nil
}

// Connections implements engine.ConnectionRepository. Connections are
// returned in the order they were first saved.
func (s *Store) Connections(ctx context.Context, userID string) ([]canon.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, token, settings, created_at
		FROM connections
		WHERE user_id = ?
		ORDER BY rowid ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	conns := []canon.Connection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return conns, nil
}

// Connection returns one connection by id.
func (s *Store) Connection(ctx context.Context, id string) (canon.Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, token, settings, created_at
		FROM connections
		WHERE id = ?
	`, id)
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return canon.Connection{}, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return conn, err
}

// DeleteConnection removes a connection. Signals it produced are kept.
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete connection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (canon.Connection, error) {
	var (
		conn     canon.Connection
		settings string
		created  string
	)
	if err := row.Scan(&conn.ID, &conn.UserID, &conn.Provider, &conn.Token, &settings, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conn, err
		}
		return conn, fmt.Errorf("scan connection: %w", err)
	}
	var err error
	if conn.Settings, err = unmarshalSettings(settings); err != nil {
		return conn, fmt.Errorf("connection %s: %w", conn.ID, err)
	}
	if conn.CreatedAt, err = parseTime(created); err != nil {
		return conn, fmt.Errorf("connection %s: %w", conn.ID, err)
	}
	return conn, nil
}

func marshalSettings(settings map[string]string) (string, error) {
	if len(settings) == 0 {
		return "{}", nil
	}
	// encoding/json sorts map keys, so equal settings store identically.
	data, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	return string(data), nil
}

func unmarshalSettings(data string) (map[string]string, error) {
	var settings map[string]string
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if len(settings) == 0 {
		return nil, nil
	}
	return settings, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

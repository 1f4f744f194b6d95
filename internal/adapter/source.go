package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crmsignal/internal/canon"
)

// RecordSource supplies raw vendor records for a connection.
type RecordSource interface {
	Records(ctx context.Context, conn canon.Connection, kind canon.Kind) ([]map[string]any, error)
}

// ErrConnectionUnavailable is returned for fixture connections marked to fail.
var ErrConnectionUnavailable = errors.New("connection unavailable")

// FixtureSource serves vendor-native records from a YAML document:
//
//	connections:
//	  - id: conn_sf
//	    user_id: user-1
//	    provider: salesforce
//	    fail: ""               # non-empty: every fetch fails with this message
//	    records:
//	      opportunity:
//	        - {Id: SF_OPP_001, StageName: Proposal, Amount: 95000}
//
// It also serves the listed connections, so it can back a
// ConnectionRepository for demos and scenarios.
type FixtureSource struct {
	order   []string
	entries map[string]fixtureConnection
}

type fixtureFile struct {
	Connections []fixtureConnection `yaml:"connections"`
}

type fixtureConnection struct {
	canon.Connection `yaml:",inline"`

	Fail    string                      `yaml:"fail,omitempty"`
	Records map[string][]map[string]any `yaml:"records,omitempty"`
}

// LoadFixtures reads a fixture file.
func LoadFixtures(path string) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	src, err := ParseFixtures(data)
	if err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return src, nil
}

// ParseFixtures decodes a fixture document. Connection ids must be unique
// and record kinds must be known.
func ParseFixtures(data []byte) (*FixtureSource, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	src := NewFixtureSource()
	for i, fc := range file.Connections {
		if err := fc.Connection.Validate(); err != nil {
			return nil, fmt.Errorf("connections[%d]: %w", i, err)
		}
		for kind := range fc.Records {
			if _, err := canon.ParseKind(kind); err != nil {
				return nil, fmt.Errorf("connection %s: %w", fc.ID, err)
			}
		}
		if err := src.add(fc); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// NewFixtureSource creates an empty source.
func NewFixtureSource() *FixtureSource {
	return &FixtureSource{entries: map[string]fixtureConnection{}}
}

// Add registers a connection and its records, keyed by kind.
func (s *FixtureSource) Add(conn canon.Connection, records map[canon.Kind][]map[string]any) error {
	fc := fixtureConnection{Connection: conn, Records: map[string][]map[string]any{}}
	for k, recs := range records {
		fc.Records[string(k)] = recs
	}
	return s.add(fc)
}

// SetFailure makes every fetch for connID fail with msg.
func (s *FixtureSource) SetFailure(connID, msg string) {
	fc, ok := s.entries[connID]
	if !ok {
		return
	}
	fc.Fail = msg
	s.entries[connID] = fc
}

func (s *FixtureSource) add(fc fixtureConnection) error {
	if _, dup := s.entries[fc.ID]; dup {
		return fmt.Errorf("duplicate connection id %q", fc.ID)
	}
	fc.Provider = strings.ToLower(fc.Provider)
	s.entries[fc.ID] = fc
	s.order = append(s.order, fc.ID)
	return nil
}

// Merge adds every connection of other, in its document order. A
// connection id already present is an error.
func (s *FixtureSource) Merge(other *FixtureSource) error {
	for _, id := range other.order {
		if err := s.add(other.entries[id]); err != nil {
			return err
		}
	}
	return nil
}

// All returns every fixture connection in document order.
func (s *FixtureSource) All() []canon.Connection {
	out := make([]canon.Connection, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].Connection)
	}
	return out
}

// Connections returns the user's fixture connections in document order.
func (s *FixtureSource) Connections(_ context.Context, userID string) ([]canon.Connection, error) {
	var out []canon.Connection
	for _, c := range s.All() {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// Records implements RecordSource. A connection with no records of kind
// yields an empty slice.
func (s *FixtureSource) Records(ctx context.Context, conn canon.Connection, kind canon.Kind) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fc, ok := s.entries[conn.ID]
	if !ok {
		return nil, nil
	}
	if fc.Fail != "" {
		return nil, fmt.Errorf("%w: %s", ErrConnectionUnavailable, fc.Fail)
	}
	return slices.Clone(fc.Records[string(kind)]), nil
}

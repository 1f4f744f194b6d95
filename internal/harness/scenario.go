package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end generation run and its expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the user whose signals are generated.
	User string `yaml:"user"`

	// Now fixes the clock. Empty means 2025-04-01T09:00:00Z.
	Now string `yaml:"now,omitempty"`

	// Rules is a directory of CUE rule files. Exactly one of Rules and
	// RulesCUE must be set.
	Rules    string `yaml:"rules,omitempty"`
	RulesCUE string `yaml:"rules_cue,omitempty"`

	// Fixtures is a vendor fixture file. Connections holds the same
	// entries inline; both may be used together.
	Fixtures    string    `yaml:"fixtures,omitempty"`
	Connections yaml.Node `yaml:"connections,omitempty"`

	Filter       FilterSpec  `yaml:"filter,omitempty"`
	Scoring      ScoringSpec `yaml:"scoring,omitempty"`
	LookbackDays int         `yaml:"lookback_days,omitempty"`

	// Assertions validate the generated signals.
	Assertions []Assertion `yaml:"assertions"`
}

// FilterSpec mirrors the generate request filters.
type FilterSpec struct {
	Type     string `yaml:"type,omitempty"`
	Priority string `yaml:"priority,omitempty"`
}

// ScoringSpec selects the scorer.
type ScoringSpec struct {
	Mode         string  `yaml:"mode,omitempty"`
	ValueCeiling float64 `yaml:"value_ceiling,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect is a subset of signal fields (signal_contains, no_signal).
	// Keys: type, priority, score, rule_id, entity_id, entity_kind,
	// connection_id, provider.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Keys is the exact "<type>/<entity id>" order (signal_order).
	Keys []string `yaml:"keys,omitempty"`

	// Count is the expected number (signal_count, stored_signals).
	Count int `yaml:"count,omitempty"`

	// Connection is the connection id expected to fail (connection_failed).
	Connection string `yaml:"connection,omitempty"`
}

// Assertion type constants.
const (
	AssertSignalContains   = "signal_contains"
	AssertNoSignal         = "no_signal"
	AssertSignalOrder      = "signal_order"
	AssertSignalCount      = "signal_count"
	AssertConnectionFailed = "connection_failed"
	AssertStoredSignals    = "stored_signals"
)

// LoadScenario reads and parses a scenario YAML file. Relative rules and
// fixtures paths are resolved against the scenario's directory. Unknown
// fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario, resolving relative paths against
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for _, p := range []*string{&scenario.Rules, &scenario.Fixtures} {
		if *p != "" && !filepath.IsAbs(*p) && baseDir != "" {
			*p = filepath.Join(baseDir, *p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) clock() (time.Time, error) {
	if s.Now == "" {
		return defaultNow, nil
	}
	t, err := time.Parse(time.RFC3339, s.Now)
	if err != nil {
		return time.Time{}, fmt.Errorf("now: %w", err)
	}
	return t.UTC(), nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.User == "" {
		return fmt.Errorf("user is required")
	}
	if _, err := s.clock(); err != nil {
		return err
	}

	switch {
	case s.Rules == "" && s.RulesCUE == "":
		return fmt.Errorf("one of rules or rules_cue is required")
	case s.Rules != "" && s.RulesCUE != "":
		return fmt.Errorf("rules and rules_cue are mutually exclusive")
	}
	if s.Rules != "" {
		if _, err := os.Stat(s.Rules); err != nil {
			return fmt.Errorf("rules directory not found: %s", s.Rules)
		}
	}
	if s.Fixtures != "" {
		if _, err := os.Stat(s.Fixtures); err != nil {
			return fmt.Errorf("fixtures file not found: %s", s.Fixtures)
		}
	}
	if s.Fixtures == "" && s.Connections.Kind == 0 {
		return fmt.Errorf("one of fixtures or connections is required")
	}
	if s.LookbackDays < 0 {
		return fmt.Errorf("lookback_days must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSignalContains, AssertNoSignal:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertSignalOrder:
		if a.Keys == nil {
			return fmt.Errorf("assertions[%d]: keys list is required for signal_order", index)
		}
	case AssertSignalCount, AssertStoredSignals:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertConnectionFailed:
		if a.Connection == "" {
			return fmt.Errorf("assertions[%d]: connection is required for connection_failed", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

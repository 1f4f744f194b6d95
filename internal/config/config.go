// Package config loads crmsignal settings from YAML.
//
// A settings file only needs the keys it changes; everything else keeps the
// value from Default:
//
//	log: {level: debug}
//	engine:
//	  max_concurrency: 8
//	  scoring: {mode: value_scaled, value_ceiling: 250000}
//	store: {path: /var/lib/crmsignal/signals.db}
//
// Relative paths are resolved against the directory of the settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crmsignal/internal/logging"
)

// Config is the full settings tree.
type Config struct {
	Log      logging.Settings `yaml:"log"`
	Engine   EngineSettings   `yaml:"engine"`
	Store    StoreSettings    `yaml:"store"`
	RulesDir string           `yaml:"rules_dir"`
	Fixtures string           `yaml:"fixtures"`
	Server   ServerSettings   `yaml:"server"`
	Adapters AdapterSettings  `yaml:"adapters"`
}

// EngineSettings tunes signal generation.
type EngineSettings struct {
	MaxConcurrency int             `yaml:"max_concurrency"`
	Scoring        ScoringSettings `yaml:"scoring"`

	// LookbackDays limits activity records used for derived fields; 0 keeps all.
	LookbackDays int `yaml:"lookback_days"`
}

// ScoringSettings selects the scorer.
type ScoringSettings struct {
	Mode         string  `yaml:"mode"` // constant, value_scaled
	ValueCeiling float64 `yaml:"value_ceiling"`
}

// StoreSettings locates the SQLite database.
type StoreSettings struct {
	Path string `yaml:"path"`
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	Addr string `yaml:"addr"`

	// ShutdownSeconds bounds graceful shutdown.
	ShutdownSeconds int `yaml:"shutdown_seconds"`
}

// AdapterSettings throttles vendor calls per adapter.
type AdapterSettings struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Log: logging.Settings{Level: "info", Format: "text"},
		Engine: EngineSettings{
			MaxConcurrency: 4,
			Scoring:        ScoringSettings{Mode: "constant", ValueCeiling: 100000},
		},
		Store:    StoreSettings{Path: "crmsignal.db"},
		RulesDir: "rules",
		Fixtures: "fixtures/records.yaml",
		Server:   ServerSettings{Addr: ":8080", ShutdownSeconds: 10},
		Adapters: AdapterSettings{RatePerSecond: 10, Burst: 5},
	}
}

// Load reads the settings file at path over Default and validates the
// result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving keys absent from data untouched.
// Unknown keys are rejected; an empty document is not an error.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Store.Path, &c.RulesDir, &c.Fixtures} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

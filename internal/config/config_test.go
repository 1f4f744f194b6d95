package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Engine.MaxConcurrency)
	assert.Equal(t, "constant", cfg.Engine.Scoring.Mode)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := createTempConfigFile(t, `
log: {level: debug, format: json}
engine:
  max_concurrency: 8
  lookback_days: 30
  scoring: {mode: value_scaled, value_ceiling: 250000}
store: {path: data/signals.db}
fixtures: /srv/fixtures.yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 30, cfg.Engine.LookbackDays)
	assert.Equal(t, "value_scaled", cfg.Engine.Scoring.Mode)
	assert.Equal(t, 250000.0, cfg.Engine.Scoring.ValueCeiling)
	assert.Equal(t, filepath.Join(dir, "data/signals.db"), cfg.Store.Path)
	assert.Equal(t, "/srv/fixtures.yaml", cfg.Fixtures, "absolute paths are kept")
	assert.Equal(t, filepath.Join(dir, "rules"), cfg.RulesDir, "defaults resolve too")

	// Untouched sections keep defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10.0, cfg.Adapters.RatePerSecond)
	assert.Equal(t, 5, cfg.Adapters.Burst)
}

func TestLoad_CommentOnlyFile(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, "# nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrency)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "engine: {workers: 3}\n", "field workers not found"},
		{"bad yaml", "log: [\n", "failed to parse config file"},
		{"bad value", "engine: {max_concurrency: 0}\n", "engine.max_concurrency must be at least 1"},
		{"bad mode", "engine: {scoring: {mode: random}}\n", `unknown scoring mode "random"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(createTempConfigFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Engine.MaxConcurrency = 0
	cfg.Engine.Scoring = ScoringSettings{Mode: "value_scaled"}
	cfg.Engine.LookbackDays = -1
	cfg.Store.Path = ""
	cfg.Server.Addr = ""
	cfg.Adapters.Burst = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`log: unknown log level "loud"`,
		"engine.max_concurrency",
		"needs a positive value ceiling",
		"engine.lookback_days",
		"store.path is required",
		"server.addr is required",
		"adapters.burst",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RateLimitDisabled(t *testing.T) {
	cfg := Default()
	cfg.Adapters = AdapterSettings{}
	assert.NoError(t, cfg.Validate(), "burst is only checked when limiting")
}

func TestLoad_SampleSettings(t *testing.T) {
	path := filepath.Join("..", "..", "crmsignal.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	root := filepath.Join("..", "..")
	assert.Equal(t, filepath.Join(root, "rules"), cfg.RulesDir)
	assert.Equal(t, filepath.Join(root, "fixtures", "records.yaml"), cfg.Fixtures)
	assert.Equal(t, filepath.Join(root, "crmsignal.db"), cfg.Store.Path)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

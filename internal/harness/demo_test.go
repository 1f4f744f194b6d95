package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../../testdata/scenarios"

// TestDemoScenarios runs every sample scenario against the shipped rules
// and fixtures, and compares it with its golden file when one exists.
func TestDemoScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(scenariosDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)

			golden, err := os.ReadFile(filepath.Join(scenariosDir, "golden", name+".golden"))
			if os.IsNotExist(err) {
				return
			}
			require.NoError(t, err)
			got, err := Snapshot(s.Name, result)
			require.NoError(t, err)
			assert.Equal(t, string(golden), string(got))
		})
	}
}

func TestDemoPipeline_Details(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenariosDir, "demo_pipeline.yaml"))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Stats.Connections)
	assert.Equal(t, 1, result.Stats.FailedConnections)
	assert.Equal(t, 5, result.Stats.Matches)

	byProvider := map[string]int{}
	for _, sig := range result.Signals {
		byProvider[sig.EntityRef.Provider]++
	}
	assert.Equal(t, map[string]int{"salesforce": 3, "hubspot": 1, "pipedrive": 1}, byProvider)
}

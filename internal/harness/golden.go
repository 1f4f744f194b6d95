package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/crmsignal/internal/canon"
)

// Snapshot renders a scenario result as canonical JSON: the ranked
// signals, the failed connections and the run counters. Error messages
// are left out so snapshots survive wording changes.
func Snapshot(name string, result *Result) ([]byte, error) {
	signals := make(canon.Array, len(result.Signals))
	for i, s := range result.Signals {
		signals[i] = s.Object()
	}
	failures := make(canon.Array, len(result.Failures))
	for i, f := range result.Failures {
		failures[i] = canon.Object{
			"connection_id": canon.String(f.ConnectionID),
			"provider":      canon.String(f.Provider),
		}
	}
	return canon.MarshalCanonical(canon.Object{
		"scenario_name": canon.String(name),
		"signals":       signals,
		"failures":      failures,
		"stats": canon.Object{
			"connections":        canon.Number(result.Stats.Connections),
			"failed_connections": canon.Number(result.Stats.FailedConnections),
			"matches":            canon.Number(result.Stats.Matches),
			"returned":           canon.Number(result.Stats.Returned),
		},
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

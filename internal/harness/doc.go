// Package harness runs end-to-end signal generation scenarios.
//
// A scenario wires vendor fixtures, a CUE rule set and optional filters
// through the adapters, context derivation, the aggregator and the SQLite
// store, then checks the ranked signals with assertions and, optionally, a
// golden snapshot.
//
// # Scenario Format
//
//	name: follow_up_needed
//	description: "Stale open opportunity gets a follow-up signal"
//	user: user-1
//	now: "2025-04-01T09:00:00Z"     # defaults to 2025-04-01T09:00:00Z
//	rules: ../../rules               # CUE directory, relative to the scenario
//	rules_cue: |                     # or inline CUE source
//	  rule: rule_1: {...}
//	fixtures: fixtures.yaml          # fixture file, relative to the scenario
//	connections:                     # or inline fixture connections
//	  - id: conn_sf
//	    user_id: user-1
//	    provider: salesforce
//	    records: {...}
//	filter: {type: "", priority: ""}
//	scoring: {mode: constant}
//	lookback_days: 0
//	assertions:
//	  - type: signal_order
//	    keys: ["rule_3:opportunity/SF_OPP_001", "rule_1:opportunity/SF_OPP_001"]
//	  - type: signal_contains
//	    expect: {type: "rule_1:opportunity", entity_id: SF_OPP_001, score: 90}
//
// # Assertion Types
//
//   - signal_contains: some signal matches every key of expect
//   - no_signal: no signal matches every key of expect
//   - signal_order: the signals, as "<type>/<entity id>", are exactly keys
//   - signal_count: exactly count signals were returned
//   - connection_failed: connection was reported as failed
//   - stored_signals: exactly count signals were persisted
//
// # Deterministic Testing
//
// Every scenario runs against a fixed clock and a fresh in-memory
// database, so repeated runs produce byte-identical snapshots.
package harness

// Package store provides SQLite-backed persistence for crmsignal.
//
// The store holds:
//   - Connections: a user's CRM links (engine.ConnectionRepository)
//   - Rules: ordered rule sets per user, with a global fallback set
//     (engine.RuleRepository)
//   - Signals: generated signals, content-addressed by canon.SignalID
//     (engine.SignalSink)
//   - Runs: one record per persisted generation run
//
// # Identity and Idempotency
//
// Signal ids are computed from the user and the signal's canonical JSON,
// so saving the output of the same run twice stores each signal once
// (INSERT ... ON CONFLICT DO NOTHING).
//
// # Deterministic Listings
//
// Connections and rules list in insertion and declaration order; signals
// list by score descending, then insertion order, matching the order
// Aggregator.Generate returns them in.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

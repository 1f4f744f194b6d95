// Package engine implements the CRMSignal signal generation engine.
//
// The engine evaluates rules against canonical entity contexts and turns
// matches into ranked signals. It is layered leaf-first:
//
//	evaluator.go   one condition against one context
//	matcher.go     one rule (all conditions) against one context
//	scoring.go     a matched (rule, context) pair into a Signal
//	aggregator.go  every rule against every context of every connection
//
// ERROR MODEL:
//
// Condition-level failures (FieldResolutionError, TypeMismatchError) never
// escape the matcher; they are logged and treated as a non-match.
// Connection-level failures (AdapterFetchError) are recorded in
// Result.Errors and the other connections proceed. Only a malformed
// connection descriptor, a repository failure or cancellation aborts
// Generate with an AggregationError.
//
// DETERMINISM:
//
// Connections may be evaluated concurrently, but every worker writes to its
// own slot, so the merged order is always connection order, then context
// order, then rule order. Ranking uses a stable sort, so equal scores keep
// that order. GeneratedAt comes from one Clock reading per run.
package engine

// Package lifecycle turns provider webhook events into canonical
// subscription transitions.
//
// Processor.Handle is idempotent under at-least-once delivery: duplicates
// and out-of-order events are detected against the subscription row itself
// (monotonic by event timestamp), not a processed-events log, so correctness
// is derivable from stored state alone. An optional Redis dedupe window
// short-circuits exact duplicates cheaply.
//
// Applier is the shared write path: the reconciliation engine applies its
// drift corrections through the exact same transition and entitlement-sync
// rules, so the two writers can safely race on the same row.
package lifecycle

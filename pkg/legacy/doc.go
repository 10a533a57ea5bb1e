// Package legacy migrates historical wallet orders from the prior system
// into canonical subscription rows.
//
// Historical item names ("Pro Annual", "6 Month Package") resolve through a
// versioned lookup table populated once at migration time, keeping
// heuristic string matching out of the runtime hot path. Imported rows are
// flagged is_legacy and carry full provenance metadata, and flow through
// the standard transition path so re-imports are idempotent.
package legacy

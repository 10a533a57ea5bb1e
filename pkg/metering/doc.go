// Package metering tracks monthly character consumption and enforces plan
// quotas for speech generation.
//
// Counters live in calendar-month periods keyed by (user, period start), so
// a new month starts at zero without any reset job. Increments are atomic
// at the store, and each increment learns the counter before and after its
// own contribution, which is what makes the 80% and 100% usage warnings
// edge-triggered: exactly one call observes each crossing, no matter how
// many run concurrently.
package metering

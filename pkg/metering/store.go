package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists usage counters. Increment must be atomic: two concurrent
// increments of n1 and n2 always land on a counter raised by exactly
// n1+n2, and each caller learns the counter value before and after its own
// increment so threshold crossings can be attributed to exactly one call.
type Store interface {
	// Get returns the usage period, or a zero-valued period if the user has
	// recorded nothing this month.
	Get(ctx context.Context, userID uuid.UUID, periodStart time.Time) (UsagePeriod, error)

	// Increment atomically adds n characters to the period counter,
	// creating the period row if needed, and returns the counter value
	// before and after this call's contribution.
	Increment(ctx context.Context, userID uuid.UUID, periodStart time.Time, n int64) (before, after int64, err error)
}

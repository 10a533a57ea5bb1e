package revenue

import "errors"

var (
	// ErrUnparseableInterval is returned when a billing interval cannot be
	// normalized to months.
	ErrUnparseableInterval = errors.New("revenue: unparseable billing interval")

	// ErrStoreFailure wraps subscription store errors during aggregation.
	ErrStoreFailure = errors.New("revenue: subscription store read failed")
)

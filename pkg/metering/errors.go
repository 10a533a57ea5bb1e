package metering

import "errors"

var (
	// ErrStoreFailure wraps usage store errors.
	ErrStoreFailure = errors.New("metering: usage store operation failed")

	// ErrInvalidAmount is returned for non-positive character counts.
	ErrInvalidAmount = errors.New("metering: amount must be positive")
)

package subscription

import "errors"

var (
	ErrNotFound        = errors.New("subscription not found")
	ErrInvalidProvider = errors.New("invalid subscription provider")
	ErrEmptyProviderID = errors.New("provider subscription ID is required")
	ErrMissingUserID   = errors.New("user ID is required for a new subscription")
	ErrStoreFailure    = errors.New("subscription store failure")
)

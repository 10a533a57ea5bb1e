package lifecycle

import "errors"

var (
	// ErrRoleSyncFailed means the subscription row was written but the
	// entitlement role could not be updated. The row is the source of truth;
	// the role is eventually consistent and catches up on the next delivery
	// or sweep.
	ErrRoleSyncFailed = errors.New("entitlement role sync failed")

	ErrUnattributable = errors.New("event cannot be attributed to a user")
)

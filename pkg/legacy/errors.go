package legacy

import "errors"

var (
	// ErrInvalidTable is returned for malformed lookup table definitions.
	ErrInvalidTable = errors.New("legacy: invalid plan lookup table")

	// ErrMissingOrderID is returned for orders without an identifier.
	ErrMissingOrderID = errors.New("legacy: order has no identifier")
)

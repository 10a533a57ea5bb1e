package payment

import "errors"

var (
	// ErrNotFoundAtProvider means the provider reports the subscription or
	// order no longer exists. Meaningful: treated as a cancellation signal,
	// never as a transient failure.
	ErrNotFoundAtProvider = errors.New("not found at payment provider")

	// ErrProviderUnavailable marks transient gateway failures (network,
	// timeout, 5xx). Retried on the next scheduled pass; never mutates
	// stored state.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrMappingAnomaly marks a provider status this system cannot
	// interpret. It never grants entitlement and is surfaced for operator
	// review instead of silently defaulting.
	ErrMappingAnomaly = errors.New("unmapped provider status")

	ErrUnsupportedProvider = errors.New("provider not handled by this gateway")
	ErrCircuitOpen         = errors.New("provider circuit breaker open")

	ErrInvalidEvent    = errors.New("invalid provider event payload")
	ErrMissingEventID  = errors.New("provider event ID is required")
	ErrMissingPayerRef = errors.New("provider payer reference is required")
)

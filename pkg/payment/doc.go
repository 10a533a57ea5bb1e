// Package payment defines the boundary with the payment providers: the
// Gateway port consumed for fetch-to-confirm and reconciliation, typed
// per-provider webhook event shapes, and the total status mapping from each
// provider's native vocabulary into the canonical status enum.
//
// The mapping is deliberately paranoid: anything unrecognized becomes
// StatusUnknown, which never grants entitlement and surfaces as a
// reconciliation anomaly. "Unmapped" always means "not entitled", never the
// reverse.
//
// PaddleGateway adapts the card processor through the official SDK.
// ResilientGateway adds bounded timeouts, retry with jittered backoff, and a
// circuit breaker per provider so one failing provider cannot stall the
// reconciliation sweep for the others.
package payment

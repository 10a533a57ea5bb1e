package subscription

import "time"

// Provider identifies the payment processor that owns a subscription.
// A provider never reuses a subscription ID, so (Provider, ProviderSubscriptionID)
// is the stable identity and idempotency anchor for all writers.
type Provider string

const (
	// ProviderCard is the current card processor.
	ProviderCard Provider = "card"
	// ProviderWallet is the current wallet-based processor.
	ProviderWallet Provider = "wallet"
	// ProviderLegacyWallet is the wallet processor inherited from the prior system.
	// Rows for it are created by the legacy importer, never by live webhooks.
	ProviderLegacyWallet Provider = "legacy_wallet"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderCard, ProviderWallet, ProviderLegacyWallet:
		return true
	}
	return false
}

// Status is the canonical subscription state, independent of any provider's
// native vocabulary.
type Status string

const (
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusPaused     Status = "paused"
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusLifetime   Status = "lifetime"

	// StatusUnknown is the sentinel for provider statuses this system cannot
	// interpret. It never grants entitlement and is surfaced as a
	// reconciliation anomaly rather than silently defaulting to active.
	StatusUnknown Status = "unknown"
)

// GrantsEntitlement reports whether the status alone grants paid access.
// past_due is handled separately because its entitlement depends on grace
// arithmetic, not on the status value.
func (s Status) GrantsEntitlement() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusLifetime:
		return true
	}
	return false
}

// Terminal reports whether the status ends the subscription lifecycle.
// Terminal rows are never swept for expiry.
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// Grace windows applied by the reconciliation sweep and the access checker.
// StandardGrace covers provider payment-retry latency after a period ends;
// PastDueGrace is the longer window granted once a provider has already
// reported the subscription past due.
const (
	StandardGrace = 3 * 24 * time.Hour
	PastDueGrace  = 7 * 24 * time.Hour
)

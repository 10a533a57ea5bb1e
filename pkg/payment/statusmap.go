package payment

import (
	"strings"

	"github.com/voxley/billingkit/pkg/subscription"
)

// MapStatus translates a provider's native status string into the canonical
// status. The mapping is total: anything unrecognized maps to StatusUnknown,
// which never grants entitlement. This is the primary defense against a
// malformed or evolving provider payload silently granting free access.
func MapStatus(provider subscription.Provider, native string) subscription.Status {
	switch provider {
	case subscription.ProviderCard:
		return mapCardStatus(native)
	case subscription.ProviderWallet:
		return mapWalletStatus(native)
	case subscription.ProviderLegacyWallet:
		return mapLegacyWalletStatus(native)
	}
	return subscription.StatusUnknown
}

// mapCardStatus handles the card processor's lowercase vocabulary.
func mapCardStatus(native string) subscription.Status {
	switch strings.ToLower(strings.TrimSpace(native)) {
	case "active":
		return subscription.StatusActive
	case "trialing":
		return subscription.StatusTrialing
	case "past_due", "unpaid":
		return subscription.StatusPastDue
	case "canceled", "cancelled":
		return subscription.StatusCanceled
	case "paused":
		return subscription.StatusPaused
	case "incomplete":
		return subscription.StatusIncomplete
	case "completed", "paid":
		// one-time order vocabulary: a settled order grants lifetime-class access
		return subscription.StatusLifetime
	}
	return subscription.StatusUnknown
}

// mapWalletStatus handles the wallet processor's uppercase vocabulary.
func mapWalletStatus(native string) subscription.Status {
	switch strings.ToUpper(strings.TrimSpace(native)) {
	case "ACTIVE":
		return subscription.StatusActive
	case "SUSPENDED":
		return subscription.StatusPaused
	case "CANCELLED", "CANCELED", "EXPIRED":
		return subscription.StatusCanceled
	case "APPROVAL_PENDING", "APPROVED":
		return subscription.StatusIncomplete
	case "COMPLETED":
		return subscription.StatusLifetime
	}
	return subscription.StatusUnknown
}

// mapLegacyWalletStatus handles the prior system's mixed-case vocabulary.
// The legacy gateway reported a handful of free-text states; everything else
// observed in historical data was noise and maps to unknown.
func mapLegacyWalletStatus(native string) subscription.Status {
	switch strings.ToLower(strings.TrimSpace(native)) {
	case "active":
		return subscription.StatusActive
	case "suspended", "on hold":
		return subscription.StatusPaused
	case "cancelled", "canceled", "expired", "refunded":
		return subscription.StatusCanceled
	case "completed", "lifetime":
		return subscription.StatusLifetime
	case "pending":
		return subscription.StatusIncomplete
	}
	return subscription.StatusUnknown
}

package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/subscription"
)

func TestMapStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider subscription.Provider
		native   string
		want     subscription.Status
	}{
		// card processor vocabulary
		{subscription.ProviderCard, "active", subscription.StatusActive},
		{subscription.ProviderCard, "trialing", subscription.StatusTrialing},
		{subscription.ProviderCard, "past_due", subscription.StatusPastDue},
		{subscription.ProviderCard, "unpaid", subscription.StatusPastDue},
		{subscription.ProviderCard, "canceled", subscription.StatusCanceled},
		{subscription.ProviderCard, "paused", subscription.StatusPaused},
		{subscription.ProviderCard, "incomplete", subscription.StatusIncomplete},
		{subscription.ProviderCard, "completed", subscription.StatusLifetime},
		{subscription.ProviderCard, "paid", subscription.StatusLifetime},

		// wallet processor vocabulary
		{subscription.ProviderWallet, "ACTIVE", subscription.StatusActive},
		{subscription.ProviderWallet, "SUSPENDED", subscription.StatusPaused},
		{subscription.ProviderWallet, "CANCELLED", subscription.StatusCanceled},
		{subscription.ProviderWallet, "EXPIRED", subscription.StatusCanceled},
		{subscription.ProviderWallet, "APPROVAL_PENDING", subscription.StatusIncomplete},
		{subscription.ProviderWallet, "APPROVED", subscription.StatusIncomplete},
		{subscription.ProviderWallet, "COMPLETED", subscription.StatusLifetime},

		// legacy wallet vocabulary
		{subscription.ProviderLegacyWallet, "active", subscription.StatusActive},
		{subscription.ProviderLegacyWallet, "suspended", subscription.StatusPaused},
		{subscription.ProviderLegacyWallet, "on hold", subscription.StatusPaused},
		{subscription.ProviderLegacyWallet, "cancelled", subscription.StatusCanceled},
		{subscription.ProviderLegacyWallet, "expired", subscription.StatusCanceled},
		{subscription.ProviderLegacyWallet, "refunded", subscription.StatusCanceled},
		{subscription.ProviderLegacyWallet, "completed", subscription.StatusLifetime},
		{subscription.ProviderLegacyWallet, "lifetime", subscription.StatusLifetime},
		{subscription.ProviderLegacyWallet, "pending", subscription.StatusIncomplete},

		// unknown inputs never map to an entitled status
		{subscription.ProviderCard, "definitely_new_status", subscription.StatusUnknown},
		{subscription.ProviderWallet, "", subscription.StatusUnknown},
		{subscription.ProviderLegacyWallet, "chargeback?", subscription.StatusUnknown},
		{subscription.Provider("bank"), "active", subscription.StatusUnknown},
	}

	for _, tt := range tests {
		got := payment.MapStatus(tt.provider, tt.native)
		assert.Equal(t, tt.want, got, "%s/%s", tt.provider, tt.native)
	}
}

func TestMapStatus_UnknownNeverEntitles(t *testing.T) {
	t.Parallel()

	assert.False(t, subscription.StatusUnknown.GrantsEntitlement())
	assert.False(t, subscription.StatusUnknown.Terminal())
}

package payment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/subscription"
)

func TestParseCardEvent(t *testing.T) {
	t.Parallel()

	t.Run("status change with full price data", func(t *testing.T) {
		t.Parallel()

		ev, err := payment.ParseCardEvent([]byte(`{
			"event_id": "evt_1",
			"event_type": "subscription.updated",
			"occurred_at": "2026-03-01T12:00:00Z",
			"data": {
				"id": "sub_1",
				"status": "active",
				"customer_id": "ctm_1",
				"current_period_start": "2026-03-01T00:00:00Z",
				"current_period_end": "2026-04-01T00:00:00Z",
				"items": [{"price": {"id": "pri_pro", "name": "Pro", "unit_amount": 2990, "currency": "USD", "interval": "month"}}]
			}
		}`))
		require.NoError(t, err)
		assert.Equal(t, subscription.ProviderCard, ev.Provider)
		assert.Equal(t, payment.KindStatusChange, ev.Kind)
		assert.Equal(t, "evt_1", ev.EventID)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
		assert.Equal(t, "ctm_1", ev.PayerRef)
		assert.Equal(t, "active", ev.NativeStatus)
		require.NotNil(t, ev.PriceAmount)
		assert.Equal(t, int64(2990), *ev.PriceAmount)
		require.NotNil(t, ev.BillingInterval)
		assert.Equal(t, "month", *ev.BillingInterval)
		require.NotNil(t, ev.PeriodEnd)
	})

	t.Run("missing status becomes a pointer event", func(t *testing.T) {
		t.Parallel()

		ev, err := payment.ParseCardEvent([]byte(`{
			"event_id": "evt_2",
			"event_type": "subscription.touched",
			"occurred_at": "2026-03-01T12:00:00Z",
			"data": {"id": "sub_1", "customer_id": "ctm_1"}
		}`))
		require.NoError(t, err)
		assert.Equal(t, payment.KindPointer, ev.Kind)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		t.Parallel()

		_, err := payment.ParseCardEvent([]byte(`{not json`))
		require.ErrorIs(t, err, payment.ErrInvalidEvent)

		_, err = payment.ParseCardEvent([]byte(`{"event_id": "", "occurred_at": "2026-03-01T12:00:00Z", "data": {"id": "sub_1"}}`))
		require.ErrorIs(t, err, payment.ErrMissingEventID)
	})
}

func TestParseWalletEvent(t *testing.T) {
	t.Parallel()

	t.Run("status change", func(t *testing.T) {
		t.Parallel()

		ev, err := payment.ParseWalletEvent([]byte(`{
			"id": "WH-1",
			"event_type": "BILLING.SUBSCRIPTION.SUSPENDED",
			"create_time": "2026-03-01T12:00:00Z",
			"resource": {
				"id": "I-1",
				"status": "SUSPENDED",
				"plan_id": "P-PRO",
				"subscriber": {"payer_id": "PAYER1"},
				"billing_info": {
					"next_billing_time": "2026-04-01T00:00:00Z",
					"last_payment": {"time": "2026-03-01T00:00:00Z"}
				},
				"plan": {
					"billing_cycles": [
						{"tenure_type": "TRIAL", "frequency": {"interval_unit": "DAY", "interval_count": 14}},
						{"tenure_type": "REGULAR", "frequency": {"interval_unit": "MONTH", "interval_count": 1}}
					]
				}
			}
		}`))
		require.NoError(t, err)
		assert.Equal(t, subscription.ProviderWallet, ev.Provider)
		assert.Equal(t, payment.KindStatusChange, ev.Kind)
		assert.Equal(t, "SUSPENDED", ev.NativeStatus)
		assert.Equal(t, "PAYER1", ev.PayerRef)
		require.NotNil(t, ev.PeriodEnd)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ev.PeriodStart)
		require.NotNil(t, ev.BillingInterval, "regular cycle supplies the interval")
		assert.Equal(t, "month", *ev.BillingInterval)
	})

	t.Run("multi-period regular cycle", func(t *testing.T) {
		t.Parallel()

		ev, err := payment.ParseWalletEvent([]byte(`{
			"id": "WH-4",
			"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
			"create_time": "2026-03-01T12:00:00Z",
			"resource": {
				"id": "I-2",
				"status": "ACTIVE",
				"subscriber": {"payer_id": "PAYER1"},
				"plan": {
					"billing_cycles": [
						{"tenure_type": "REGULAR", "frequency": {"interval_unit": "MONTH", "interval_count": 6}}
					]
				}
			}
		}`))
		require.NoError(t, err)
		require.NotNil(t, ev.BillingInterval)
		assert.Equal(t, "6 months", *ev.BillingInterval)
	})

	t.Run("bare notification becomes a pointer event", func(t *testing.T) {
		t.Parallel()

		ev, err := payment.ParseWalletEvent([]byte(`{
			"id": "WH-2",
			"event_type": "PAYMENT.SALE.COMPLETED",
			"create_time": "2026-03-01T12:00:00Z",
			"resource": {"id": "I-1", "subscriber": {"payer_id": "PAYER1"}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, payment.KindPointer, ev.Kind)
	})

	t.Run("legacy variant only changes attribution", func(t *testing.T) {
		t.Parallel()

		ev, err := payment.ParseLegacyWalletEvent([]byte(`{
			"id": "WH-3",
			"event_type": "subscr_cancel",
			"create_time": "2026-03-01T12:00:00Z",
			"resource": {"id": "S-9", "status": "cancelled", "subscriber": {"payer_id": "LP1"}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, subscription.ProviderLegacyWallet, ev.Provider)
		assert.Equal(t, subscription.StatusCanceled, payment.MapStatus(ev.Provider, ev.NativeStatus))
	})
}

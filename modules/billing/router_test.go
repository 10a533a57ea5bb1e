package billing_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxley/billingkit/modules/billing"
	"github.com/voxley/billingkit/pkg/directory"
	"github.com/voxley/billingkit/pkg/lifecycle"
	"github.com/voxley/billingkit/pkg/metering"
	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/plans"
	"github.com/voxley/billingkit/pkg/revenue"
	"github.com/voxley/billingkit/pkg/subscription"
)

const (
	cardSecret = "card-webhook-secret"
	cardHeader = "X-Card-Signature"
)

type nullGateway struct{}

func (nullGateway) GetSubscription(ctx context.Context, provider subscription.Provider, id string) (*payment.RemoteSubscription, error) {
	return nil, payment.ErrNotFoundAtProvider
}

func (nullGateway) GetOrder(ctx context.Context, provider subscription.Provider, id string) (*payment.RemoteOrder, error) {
	return nil, payment.ErrNotFoundAtProvider
}

func (nullGateway) CapturePayment(ctx context.Context, provider subscription.Provider, id string) (*payment.RemoteOrder, error) {
	return nil, payment.ErrNotFoundAtProvider
}

type moduleFixture struct {
	server *httptest.Server
	store  *subscription.MemoryStore
	dir    *directory.MemoryDirectory
	userID uuid.UUID
}

func newModuleFixture(t *testing.T) *moduleFixture {
	t.Helper()

	store := subscription.NewMemoryStore()
	dir := directory.NewMemoryDirectory()
	userID := uuid.New()
	dir.AddUser("ctm_1", userID)

	applier := lifecycle.NewApplier(store, dir)
	processor := lifecycle.NewProcessor(applier, store, nullGateway{}, dir.ResolveUser)
	checker := subscription.NewChecker(store)

	catalog, err := plans.NewCatalog(context.Background(), plans.NewInMemSource(
		plans.Plan{ID: "free", Name: "Free", CharactersPerMonth: 5000, Public: true},
		plans.Plan{ID: "pro", Name: "Pro", CharactersPerMonth: 500000, Public: true},
	))
	require.NoError(t, err)
	meter, err := metering.NewMeter(metering.NewMemoryStore(), checker, catalog, "free")
	require.NoError(t, err)

	router := billing.Router(billing.RouterOptions{
		Processor:    processor,
		Checker:      checker,
		Aggregator:   revenue.NewAggregator(store),
		Meter:        meter,
		CardVerifier: billing.NewHMACVerifier(cardSecret, cardHeader),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &moduleFixture{server: server, store: store, dir: dir, userID: userID}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func cardPayload(eventID, status string) []byte {
	return fmt.Appendf(nil, `{
		"event_id": %q,
		"event_type": "subscription.updated",
		"occurred_at": "2026-03-01T12:00:00Z",
		"data": {"id": "sub_1", "status": %q, "customer_id": "ctm_1"}
	}`, eventID, status)
}

func (f *moduleFixture) postWebhook(t *testing.T, body []byte, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/webhooks/card", bytes.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set(cardHeader, signature)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestWebhookEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("valid signature applies the event", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		body := cardPayload("evt_1", "active")

		resp := f.postWebhook(t, body, sign(cardSecret, body))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Outcome string `json:"outcome"`
		}
		decodeBody(t, resp, &out)
		assert.Equal(t, "applied", out.Outcome)

		sub, err := f.store.GetByProviderRef(context.Background(), subscription.ProviderCard, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("forged signature is rejected before processing", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		body := cardPayload("evt_1", "active")

		resp := f.postWebhook(t, body, sign("wrong-secret", body))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = f.postWebhook(t, body, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		_, err := f.store.GetByProviderRef(context.Background(), subscription.ProviderCard, "sub_1")
		require.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("duplicate delivery acks as ignored", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		body := cardPayload("evt_1", "active")
		sig := sign(cardSecret, body)

		resp := f.postWebhook(t, body, sig)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = f.postWebhook(t, body, sig)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out struct {
			Outcome string `json:"outcome"`
		}
		decodeBody(t, resp, &out)
		assert.Equal(t, "ignored", out.Outcome)
	})

	t.Run("unmapped status is acked so the provider stops redelivering", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		body := cardPayload("evt_1", "brand_new_status")

		resp := f.postWebhook(t, body, sign(cardSecret, body))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Outcome string `json:"outcome"`
			Detail  string `json:"detail"`
		}
		decodeBody(t, resp, &out)
		assert.Equal(t, "ignored", out.Outcome)
		assert.NotEmpty(t, out.Detail)
	})

	t.Run("malformed payload is a 400", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		body := []byte(`{not json at all`)

		resp := f.postWebhook(t, body, sign(cardSecret, body))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("transient failure asks for redelivery", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		// Unknown payer: resolution fails, provider should retry after the
		// account is provisioned.
		body := []byte(`{
			"event_id": "evt_1",
			"event_type": "subscription.updated",
			"occurred_at": "2026-03-01T12:00:00Z",
			"data": {"id": "sub_1", "status": "active", "customer_id": "ctm_missing"}
		}`)

		resp := f.postWebhook(t, body, sign(cardSecret, body))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("unconfigured providers are not mounted", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		resp, err := f.server.Client().Post(f.server.URL+"/webhooks/wallet", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAccessEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("reports active access with subscription details", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		periodEnd := time.Now().UTC().Add(20 * 24 * time.Hour)
		_, _, err := f.store.ApplyTransition(context.Background(), subscription.Transition{
			Provider:               subscription.ProviderCard,
			ProviderSubscriptionID: "sub_1",
			UserID:                 f.userID,
			Status:                 subscription.StatusActive,
			EventTime:              time.Now().UTC().Add(-time.Hour),
			PlanID:                 "pro",
			CurrentPeriodEnd:       &periodEnd,
		})
		require.NoError(t, err)

		resp, err := f.server.Client().Get(f.server.URL + "/access/" + f.userID.String())
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			HasAccess    bool `json:"has_access"`
			IsPastDue    bool `json:"is_past_due"`
			Subscription *struct {
				Provider string `json:"provider"`
				PlanID   string `json:"plan_id"`
			} `json:"subscription"`
		}
		decodeBody(t, resp, &out)
		assert.True(t, out.HasAccess)
		assert.False(t, out.IsPastDue)
		require.NotNil(t, out.Subscription)
		assert.Equal(t, "card", out.Subscription.Provider)
		assert.Equal(t, "pro", out.Subscription.PlanID)
	})

	t.Run("no subscription means no access", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		resp, err := f.server.Client().Get(f.server.URL + "/access/" + uuid.NewString())
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			HasAccess bool `json:"has_access"`
		}
		decodeBody(t, resp, &out)
		assert.False(t, out.HasAccess)
	})

	t.Run("rejects malformed user ids", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		resp, err := f.server.Client().Get(f.server.URL + "/access/not-a-uuid")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUsageEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("check and record round trip", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		base := f.server.URL + "/usage/" + f.userID.String()

		resp, err := f.server.Client().Post(base+"/record", "application/json", strings.NewReader(`{"characters": 4500}`))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, err = f.server.Client().Post(base+"/check", "application/json", strings.NewReader(`{"characters": 1000}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Allowed   bool   `json:"allowed"`
			PlanID    string `json:"plan_id"`
			Remaining int64  `json:"remaining"`
		}
		decodeBody(t, resp, &out)
		assert.False(t, out.Allowed, "only 500 of 5000 free characters remain")
		assert.Equal(t, "free", out.PlanID)
		assert.Equal(t, int64(500), out.Remaining)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		t.Parallel()

		f := newModuleFixture(t)
		base := f.server.URL + "/usage/" + f.userID.String()

		for _, body := range []string{`{"characters": 0}`, `{"characters": -5}`, `oops`} {
			resp, err := f.server.Client().Post(base+"/check", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		}
	})
}

func TestMRRStatsEndpoint(t *testing.T) {
	t.Parallel()

	f := newModuleFixture(t)
	price := int64(2990)
	interval := "month"
	_, _, err := f.store.ApplyTransition(context.Background(), subscription.Transition{
		Provider:               subscription.ProviderCard,
		ProviderSubscriptionID: "sub_1",
		UserID:                 f.userID,
		Status:                 subscription.StatusActive,
		EventTime:              time.Now().UTC().Add(-time.Hour),
		PlanID:                 "pro",
		PriceAmount:            &price,
		Currency:               "USD",
		BillingInterval:        &interval,
	})
	require.NoError(t, err)

	resp, err := f.server.Client().Get(f.server.URL + "/stats/mrr")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		MRRCents    int64  `json:"mrr_cents"`
		Currency    string `json:"currency"`
		Formatted   string `json:"formatted"`
		ActiveCount int    `json:"active_count"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, int64(2990), out.MRRCents)
	assert.Equal(t, "USD", out.Currency)
	assert.NotEmpty(t, out.Formatted)
	assert.Equal(t, 1, out.ActiveCount)
}

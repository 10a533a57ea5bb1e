package billing_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxley/billingkit/modules/billing"
)

func TestHMACVerifier(t *testing.T) {
	t.Parallel()

	v := billing.NewHMACVerifier("secret", "X-Signature")
	body := []byte(`{"event_id":"evt_1"}`)

	t.Run("accepts a correct digest", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-Signature", sign("secret", body))
		assert.NoError(t, v.Verify(r, body))
	})

	t.Run("rejects wrong secret, wrong body, and garbage", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-Signature", sign("other", body))
		require.ErrorIs(t, v.Verify(r, body), billing.ErrInvalidSignature)

		r.Header.Set("X-Signature", sign("secret", []byte("tampered")))
		require.ErrorIs(t, v.Verify(r, body), billing.ErrInvalidSignature)

		r.Header.Set("X-Signature", "zzzz-not-hex")
		require.ErrorIs(t, v.Verify(r, body), billing.ErrInvalidSignature)

		r.Header.Del("X-Signature")
		require.ErrorIs(t, v.Verify(r, body), billing.ErrInvalidSignature)
	})

	t.Run("panics without secret or header", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { billing.NewHMACVerifier("", "X-Signature") })
		assert.Panics(t, func() { billing.NewHMACVerifier("secret", "") })
	})
}

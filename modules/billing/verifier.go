package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// Verifier authenticates an inbound webhook delivery. Verification is a
// hard precondition: no payload reaches the event processor unverified.
type Verifier interface {
	Verify(r *http.Request, body []byte) error
}

// HMACVerifier checks an HMAC-SHA256 hex digest of the request body carried
// in a configurable header. Both current processors and the legacy gateway
// sign deliveries this way, differing only in header name and secret.
type HMACVerifier struct {
	secret []byte
	header string
}

// NewHMACVerifier creates a verifier for the given shared secret and
// signature header.
func NewHMACVerifier(secret, header string) *HMACVerifier {
	if secret == "" {
		panic("billing: webhook secret is required")
	}
	if header == "" {
		panic("billing: signature header is required")
	}
	return &HMACVerifier{secret: []byte(secret), header: header}
}

func (v *HMACVerifier) Verify(r *http.Request, body []byte) error {
	got, err := hex.DecodeString(r.Header.Get(v.header))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

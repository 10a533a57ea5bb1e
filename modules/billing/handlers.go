package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxley/billingkit/pkg/lifecycle"
	"github.com/voxley/billingkit/pkg/metering"
	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/revenue"
	"github.com/voxley/billingkit/pkg/subscription"
)

// maxWebhookBody caps webhook payload size; provider envelopes are small.
const maxWebhookBody = 1 << 20

type eventParser func(payload []byte) (payment.Event, error)

func parseCard(payload []byte) (payment.Event, error)   { return payment.ParseCardEvent(payload) }
func parseWallet(payload []byte) (payment.Event, error) { return payment.ParseWalletEvent(payload) }
func parseLegacyWallet(payload []byte) (payment.Event, error) {
	return payment.ParseLegacyWalletEvent(payload)
}

type handlers struct {
	processor  *lifecycle.Processor
	checker    *subscription.Checker
	aggregator *revenue.Aggregator
	meter      *metering.Meter
	log        *slog.Logger
}

// webhook builds the ingress handler for one provider. Status codes drive
// provider redelivery: 2xx acknowledges (including anomalies and stale
// duplicates, which redelivery cannot fix), 401 rejects forged payloads,
// and 5xx asks the provider to redeliver transient failures.
func (h *handlers) webhook(verifier Verifier, parse eventParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable payload")
			return
		}

		if err := verifier.Verify(r, body); err != nil {
			h.log.WarnContext(r.Context(), "webhook signature rejected", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		ev, err := parse(body)
		if err != nil {
			h.log.WarnContext(r.Context(), "webhook payload rejected", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		outcome, err := h.processor.Handle(r.Context(), ev)
		if err != nil {
			switch {
			case errors.Is(err, payment.ErrMappingAnomaly):
				// Acked: redelivering the same unmappable status cannot
				// succeed; reconciliation surfaces it for review.
				writeJSON(w, http.StatusOK, webhookResponse{Outcome: outcome.String(), Detail: "status not interpretable"})
			case errors.Is(err, payment.ErrInvalidEvent):
				writeError(w, http.StatusBadRequest, "invalid event")
			default:
				// Transient (provider fetch, store, role sync, attribution):
				// the provider should redeliver.
				h.log.ErrorContext(r.Context(), "webhook processing failed",
					"provider", ev.Provider, "event_id", ev.EventID, "error", err)
				writeError(w, http.StatusInternalServerError, "processing failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, webhookResponse{Outcome: outcome.String()})
	}
}

func (h *handlers) access(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	access, err := h.checker.Check(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "access check failed")
		return
	}

	resp := accessResponse{
		HasAccess: access.HasAccess,
		Reason:    access.Reason,
		IsPastDue: access.IsPastDue,
	}
	if access.Subscription != nil {
		resp.Subscription = &accessSubscription{
			Provider:         string(access.Subscription.Provider),
			Status:           string(access.Subscription.Status),
			PlanID:           access.Subscription.PlanID,
			PlanName:         access.Subscription.PlanName,
			CurrentPeriodEnd: access.Subscription.CurrentPeriodEnd,
			IsLegacy:         access.Subscription.IsLegacy,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) usageCheck(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Characters <= 0 {
		writeError(w, http.StatusBadRequest, "characters must be a positive integer")
		return
	}

	decision, err := h.meter.CanGenerateSpeech(r.Context(), userID, req.Characters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "quota check failed")
		return
	}
	writeJSON(w, http.StatusOK, usageDecisionResponse{
		Allowed:   decision.Allowed,
		Reason:    decision.Reason,
		PlanID:    decision.PlanID,
		Limit:     decision.Limit,
		Used:      decision.Used,
		Remaining: decision.Remaining,
	})
}

func (h *handlers) usageRecord(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Characters <= 0 {
		writeError(w, http.StatusBadRequest, "characters must be a positive integer")
		return
	}

	if err := h.meter.RecordUsage(r.Context(), userID, req.Characters); err != nil {
		writeError(w, http.StatusInternalServerError, "usage recording failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) mrrStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.aggregator.MRRStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats aggregation failed")
		return
	}

	resp := mrrResponse{
		MRRCents:         stats.MRRCents,
		Currency:         stats.Currency,
		Formatted:        stats.FormattedMRR,
		ActiveCount:      stats.ActiveCount,
		LifetimeCount:    stats.LifetimeCount,
		CanceledInWindow: stats.CanceledInWindow,
		ChurnRate:        stats.ChurnRate,
		GeneratedAt:      stats.GeneratedAt,
	}
	for _, p := range stats.ByPlan {
		resp.ByPlan = append(resp.ByPlan, mrrPlan{
			PlanID:      p.PlanID,
			PlanName:    p.PlanName,
			MRRCents:    p.MRRCents,
			ActiveCount: p.ActiveCount,
		})
	}
	for _, p := range stats.ByProvider {
		resp.ByProvider = append(resp.ByProvider, mrrProvider{
			Provider:    string(p.Provider),
			MRRCents:    p.MRRCents,
			ActiveCount: p.ActiveCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type webhookResponse struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

type accessSubscription struct {
	Provider         string     `json:"provider"`
	Status           string     `json:"status"`
	PlanID           string     `json:"plan_id,omitempty"`
	PlanName         string     `json:"plan_name,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	IsLegacy         bool       `json:"is_legacy,omitempty"`
}

type accessResponse struct {
	HasAccess    bool                `json:"has_access"`
	Reason       string              `json:"reason"`
	IsPastDue    bool                `json:"is_past_due"`
	Subscription *accessSubscription `json:"subscription,omitempty"`
}

type usageRequest struct {
	Characters int64 `json:"characters"`
}

type usageDecisionResponse struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
	PlanID    string `json:"plan_id"`
	Limit     int64  `json:"limit"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
}

type mrrPlan struct {
	PlanID      string `json:"plan_id"`
	PlanName    string `json:"plan_name"`
	MRRCents    int64  `json:"mrr_cents"`
	ActiveCount int    `json:"active_count"`
}

type mrrProvider struct {
	Provider    string `json:"provider"`
	MRRCents    int64  `json:"mrr_cents"`
	ActiveCount int    `json:"active_count"`
}

type mrrResponse struct {
	MRRCents         int64         `json:"mrr_cents"`
	Currency         string        `json:"currency"`
	Formatted        string        `json:"formatted"`
	ByPlan           []mrrPlan     `json:"by_plan"`
	ByProvider       []mrrProvider `json:"by_provider"`
	ActiveCount      int           `json:"active_count"`
	LifetimeCount    int           `json:"lifetime_count"`
	CanceledInWindow int           `json:"canceled_in_window"`
	ChurnRate        float64       `json:"churn_rate"`
	GeneratedAt      time.Time     `json:"generated_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

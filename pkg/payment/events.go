package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxley/billingkit/pkg/subscription"
)

// EventKind discriminates how much state a provider event carries.
type EventKind string

const (
	// KindStatusChange events carry the subscription's native status and are
	// applied directly after mapping.
	KindStatusChange EventKind = "status_change"
	// KindPointer events only say "something changed"; the processor must
	// fetch-to-confirm against the gateway before deciding a transition.
	KindPointer EventKind = "pointer"
)

// Event is the validated, typed form of an inbound provider webhook. Raw
// payloads are decoded into per-provider shapes at the boundary and
// normalized here; untyped JSON never reaches transition logic.
//
// Signature verification is a precondition enforced by the ingress layer
// before an Event is ever constructed.
type Event struct {
	Provider       subscription.Provider
	EventID        string
	Kind           EventKind
	Type           string // provider-native event type, for logging
	OccurredAt     time.Time
	SubscriptionID string
	PayerRef       string

	// Populated for KindStatusChange only.
	NativeStatus    string
	PlanID          string
	PlanName        string
	PriceAmount     *int64
	Currency        string
	BillingInterval *string
	PeriodStart     time.Time
	PeriodEnd       *time.Time
}

// Validate checks the invariants the processor depends on.
func (e Event) Validate() error {
	if !e.Provider.Valid() {
		return errors.Join(ErrInvalidEvent, subscription.ErrInvalidProvider)
	}
	if e.EventID == "" {
		return errors.Join(ErrInvalidEvent, ErrMissingEventID)
	}
	if e.SubscriptionID == "" {
		return errors.Join(ErrInvalidEvent, subscription.ErrEmptyProviderID)
	}
	if e.OccurredAt.IsZero() {
		return errors.Join(ErrInvalidEvent, errors.New("event timestamp is required"))
	}
	if e.Kind == KindStatusChange && e.NativeStatus == "" {
		return errors.Join(ErrInvalidEvent, errors.New("status change event without a status"))
	}
	return nil
}

// cardEvent is the card processor's webhook envelope.
type cardEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID                 string     `json:"id"`
		Status             string     `json:"status"`
		CustomerID         string     `json:"customer_id"`
		CurrentPeriodStart *time.Time `json:"current_period_start"`
		CurrentPeriodEnd   *time.Time `json:"current_period_end"`
		Items              []struct {
			Price struct {
				ID         string `json:"id"`
				Name       string `json:"name"`
				UnitAmount *int64 `json:"unit_amount"`
				Currency   string `json:"currency"`
				Interval   string `json:"interval"`
			} `json:"price"`
		} `json:"items"`
	} `json:"data"`
}

// ParseCardEvent decodes and validates a card processor webhook payload.
func ParseCardEvent(payload []byte) (Event, error) {
	var raw cardEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, errors.Join(ErrInvalidEvent, fmt.Errorf("card payload: %w", err))
	}

	ev := Event{
		Provider:       subscription.ProviderCard,
		EventID:        raw.EventID,
		Type:           raw.EventType,
		OccurredAt:     raw.OccurredAt.UTC(),
		SubscriptionID: raw.Data.ID,
		PayerRef:       raw.Data.CustomerID,
		NativeStatus:   raw.Data.Status,
	}

	if raw.Data.Status == "" {
		ev.Kind = KindPointer
	} else {
		ev.Kind = KindStatusChange
		if raw.Data.CurrentPeriodStart != nil {
			ev.PeriodStart = raw.Data.CurrentPeriodStart.UTC()
		}
		if raw.Data.CurrentPeriodEnd != nil {
			end := raw.Data.CurrentPeriodEnd.UTC()
			ev.PeriodEnd = &end
		}
		if len(raw.Data.Items) > 0 {
			price := raw.Data.Items[0].Price
			ev.PlanID = price.ID
			ev.PlanName = price.Name
			ev.PriceAmount = price.UnitAmount
			ev.Currency = price.Currency
			if price.Interval != "" {
				interval := price.Interval
				ev.BillingInterval = &interval
			}
		}
	}

	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// ParseLegacyWalletEvent decodes a legacy wallet processor payload. The
// legacy gateway uses the same envelope as the current wallet processor but
// its own status vocabulary; only the provider attribution differs here.
func ParseLegacyWalletEvent(payload []byte) (Event, error) {
	ev, err := ParseWalletEvent(payload)
	if err != nil {
		return Event{}, err
	}
	ev.Provider = subscription.ProviderLegacyWallet
	return ev, nil
}

// walletEvent is the wallet processor's webhook envelope.
type walletEvent struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	CreateTime time.Time `json:"create_time"`
	Resource   struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		PlanID     string `json:"plan_id"`
		Subscriber struct {
			PayerID string `json:"payer_id"`
		} `json:"subscriber"`
		BillingInfo struct {
			NextBillingTime *time.Time `json:"next_billing_time"`
			LastPayment     struct {
				Time   *time.Time `json:"time"`
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
			} `json:"last_payment"`
		} `json:"billing_info"`
		Plan struct {
			BillingCycles []struct {
				TenureType string `json:"tenure_type"`
				Frequency  struct {
					IntervalUnit  string `json:"interval_unit"`
					IntervalCount int    `json:"interval_count"`
				} `json:"frequency"`
			} `json:"billing_cycles"`
		} `json:"plan"`
	} `json:"resource"`
}

// walletInterval renders the subscription's regular billing cycle as the
// canonical interval string, e.g. "month" or "6 months". Trial cycles are
// skipped; an envelope without plan details yields "".
func walletInterval(raw *walletEvent) string {
	for _, cycle := range raw.Resource.Plan.BillingCycles {
		if cycle.TenureType != "" && !strings.EqualFold(cycle.TenureType, "REGULAR") {
			continue
		}
		unit := strings.ToLower(cycle.Frequency.IntervalUnit)
		if unit == "" {
			continue
		}
		if cycle.Frequency.IntervalCount > 1 {
			return fmt.Sprintf("%d %ss", cycle.Frequency.IntervalCount, unit)
		}
		return unit
	}
	return ""
}

// ParseWalletEvent decodes and validates a wallet processor webhook payload.
// Many wallet events carry no resource status at all ("something changed, go
// look"); those come out as KindPointer and force a confirmation fetch.
func ParseWalletEvent(payload []byte) (Event, error) {
	var raw walletEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, errors.Join(ErrInvalidEvent, fmt.Errorf("wallet payload: %w", err))
	}

	ev := Event{
		Provider:       subscription.ProviderWallet,
		EventID:        raw.ID,
		Type:           raw.EventType,
		OccurredAt:     raw.CreateTime.UTC(),
		SubscriptionID: raw.Resource.ID,
		PayerRef:       raw.Resource.Subscriber.PayerID,
		NativeStatus:   raw.Resource.Status,
		PlanID:         raw.Resource.PlanID,
	}

	if raw.Resource.Status == "" {
		ev.Kind = KindPointer
	} else {
		ev.Kind = KindStatusChange
		if raw.Resource.BillingInfo.NextBillingTime != nil {
			end := raw.Resource.BillingInfo.NextBillingTime.UTC()
			ev.PeriodEnd = &end
		}
		if raw.Resource.BillingInfo.LastPayment.Time != nil {
			ev.PeriodStart = raw.Resource.BillingInfo.LastPayment.Time.UTC()
		}
		if interval := walletInterval(&raw); interval != "" {
			ev.BillingInterval = &interval
		}
	}

	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

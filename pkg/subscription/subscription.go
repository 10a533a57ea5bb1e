package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is one row per provider-side subscription or order ever seen
// for a user. Rows are created on first webhook or checkout confirmation,
// mutated only by the webhook processor and the reconciliation engine, and
// never physically deleted: cancellation is a status transition so that
// revenue reporting keeps full history.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	Provider               Provider
	ProviderSubscriptionID string
	Status                 Status
	PlanID                 string
	PlanName               string
	PriceAmount            *int64 // minor currency units; nil for legacy rows without a stored price
	Currency               string
	BillingInterval        *string // nil when the provider has not reported it
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       *time.Time
	CanceledAt             *time.Time
	IsLegacy               bool
	LegacyMetadata         map[string]any

	// StatusChangedAt is the event time of the last applied transition and
	// the anchor for monotonic ordering: an event older than this never
	// regresses the row.
	StatusChangedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLifetimeClass reports whether the row is exempt from period-end expiry.
// Only the explicit lifetime status qualifies: providers routinely omit the
// billing interval on webhooks, so an unreported interval must not turn a
// recurring subscription into one that never expires or gets swept.
func (s *Subscription) IsLifetimeClass() bool {
	return s.Status == StatusLifetime
}

// IsTerminal reports whether the subscription has reached a terminal state.
func (s *Subscription) IsTerminal() bool {
	return s.Status.Terminal()
}

// GrantsEntitlementAt reports whether the row grants paid access at the
// given instant, including the past-due grace window. An entitled status
// whose period expired past the standard grace no longer grants access even
// before the reconciliation sweep force-cancels it: a missed cancellation
// webhook must not extend entitlement indefinitely.
func (s *Subscription) GrantsEntitlementAt(now time.Time) bool {
	if s.Status.GrantsEntitlement() {
		return !s.PeriodExpiredAt(now)
	}
	return s.InPastDueGraceAt(now)
}

// InPastDueGraceAt reports whether a past_due row is still within its grace
// window measured from the current period end.
func (s *Subscription) InPastDueGraceAt(now time.Time) bool {
	if s.Status != StatusPastDue || s.CurrentPeriodEnd == nil {
		return false
	}
	return !now.After(s.CurrentPeriodEnd.Add(PastDueGrace))
}

// PeriodExpiredAt reports whether the current period ended more than the
// standard grace window before now. Lifetime-class rows never expire.
func (s *Subscription) PeriodExpiredAt(now time.Time) bool {
	if s.IsLifetimeClass() || s.CurrentPeriodEnd == nil {
		return false
	}
	return now.After(s.CurrentPeriodEnd.Add(StandardGrace))
}

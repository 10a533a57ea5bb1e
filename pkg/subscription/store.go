package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transition describes a requested state change keyed by the provider-side
// identity. Both the webhook processor and the reconciliation engine express
// every mutation through ApplyTransition so that concurrent writers cannot
// produce lost updates: the store applies a transition only if it does not
// regress a later-timestamped one.
type Transition struct {
	Provider               Provider
	ProviderSubscriptionID string

	// UserID is required when the transition may create the row; ignored on
	// updates since ownership never changes.
	UserID uuid.UUID

	Status    Status
	EventTime time.Time

	// Plan and price fields are merged into the row when non-empty; sparse
	// events (e.g. a bare cancellation) leave existing values untouched.
	PlanID      string
	PlanName    string
	PriceAmount *int64
	Currency    string

	// BillingInterval is merged only when non-nil so that a sparse event
	// leaves a known interval in place.
	BillingInterval    *string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   *time.Time

	IsLegacy       bool
	LegacyMetadata map[string]any
}

// Store is the persistence port for canonical subscriptions. Implementations
// must make ApplyTransition atomic per (provider, provider_subscription_id);
// all other methods are plain reads.
type Store interface {
	// GetByProviderRef returns the row for a provider-side identity.
	// Returns ErrNotFound if the pair has never been seen.
	GetByProviderRef(ctx context.Context, provider Provider, providerSubID string) (*Subscription, error)

	// ListByUser returns every subscription ever seen for a user, newest
	// transition first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error)

	// ListSweepable returns all non-terminal rows for the reconciliation
	// sweep. Lifetime-class rows are included: they are exempt from expiry
	// but still eligible for duplicate-active repair.
	ListSweepable(ctx context.Context) ([]Subscription, error)

	// ListAll returns the full history for reporting.
	ListAll(ctx context.Context) ([]Subscription, error)

	// ApplyTransition upserts the row identified by the transition, honoring
	// monotonic event-time ordering. It reports whether the transition was
	// applied; a false result with a nil error means the row already
	// reflects a state at least as advanced (duplicate or stale event).
	ApplyTransition(ctx context.Context, t Transition) (*Subscription, bool, error)
}

// mergeTransition applies t onto an existing row in place. Shared by store
// implementations after they have decided the transition wins the ordering
// check.
func mergeTransition(row *Subscription, t Transition, now time.Time) {
	row.Status = t.Status
	row.StatusChangedAt = t.EventTime
	row.UpdatedAt = now

	if t.PlanID != "" {
		row.PlanID = t.PlanID
	}
	if t.PlanName != "" {
		row.PlanName = t.PlanName
	}
	if t.PriceAmount != nil {
		row.PriceAmount = t.PriceAmount
	}
	if t.Currency != "" {
		row.Currency = t.Currency
	}
	if t.BillingInterval != nil {
		row.BillingInterval = t.BillingInterval
	}
	if !t.CurrentPeriodStart.IsZero() {
		row.CurrentPeriodStart = t.CurrentPeriodStart
	}
	if t.CurrentPeriodEnd != nil {
		row.CurrentPeriodEnd = t.CurrentPeriodEnd
	}
	if len(t.LegacyMetadata) > 0 {
		row.LegacyMetadata = t.LegacyMetadata
	}

	if t.Status == StatusCanceled {
		if row.CanceledAt == nil {
			at := t.EventTime
			row.CanceledAt = &at
		}
	} else {
		// A later-timestamped non-canceled event resurrects the row; a
		// canceled status without canceled_at would violate the model.
		row.CanceledAt = nil
	}
}

// wins decides whether a transition may be applied over the stored state.
// Strictly later event times always win. Equal timestamps are a no-op for
// the same status (duplicate delivery) and otherwise only let a
// cancellation through, so ties resolve toward the terminal state instead
// of flip-flopping.
func wins(stored *Subscription, t Transition) bool {
	if t.EventTime.After(stored.StatusChangedAt) {
		return true
	}
	if t.EventTime.Equal(stored.StatusChangedAt) {
		return t.Status != stored.Status && t.Status == StatusCanceled
	}
	return false
}

// newFromTransition builds a fresh row for a first-seen identity.
func newFromTransition(t Transition, now time.Time) *Subscription {
	row := &Subscription{
		ID:                     uuid.New(),
		UserID:                 t.UserID,
		Provider:               t.Provider,
		ProviderSubscriptionID: t.ProviderSubscriptionID,
		Status:                 t.Status,
		PlanID:                 t.PlanID,
		PlanName:               t.PlanName,
		PriceAmount:            t.PriceAmount,
		Currency:               t.Currency,
		BillingInterval:        t.BillingInterval,
		CurrentPeriodStart:     t.CurrentPeriodStart,
		CurrentPeriodEnd:       t.CurrentPeriodEnd,
		IsLegacy:               t.IsLegacy,
		LegacyMetadata:         t.LegacyMetadata,
		StatusChangedAt:        t.EventTime,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if t.Status == StatusCanceled {
		at := t.EventTime
		row.CanceledAt = &at
	}
	return row
}

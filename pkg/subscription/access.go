package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Access is the result of a feature-gate subscription check.
type Access struct {
	HasAccess    bool
	Subscription *Subscription // the row granting access, nil when HasAccess is false
	Reason       string
	// IsPastDue signals that access is granted only through the past-due
	// grace window, so upstream code can surface a payment-problem warning.
	IsPastDue bool
}

// Checker answers checkSubscription queries against the canonical store.
// It is read-only: grace arithmetic is evaluated here but enforcement
// (force-cancel) belongs to the reconciliation engine.
type Checker struct {
	store Store
	now   func() time.Time
	log   *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckerClock overrides the wall clock, mainly for tests.
func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCheckerLogger sets the logger used for store failures.
func WithCheckerLogger(log *slog.Logger) CheckerOption {
	return func(c *Checker) {
		if log != nil {
			c.log = log
		}
	}
}

// NewChecker creates a Checker over the given store.
func NewChecker(store Store, opts ...CheckerOption) *Checker {
	if store == nil {
		panic("subscription: store is required")
	}
	c := &Checker{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check resolves the user's entitlement from stored state only; it never
// calls a payment provider, so transient provider outages cannot deny
// access that the last reconciled state grants.
func (c *Checker) Check(ctx context.Context, userID uuid.UUID) (Access, error) {
	rows, err := c.store.ListByUser(ctx, userID)
	if err != nil {
		c.log.ErrorContext(ctx, "subscription access check failed", "user_id", userID, "error", err)
		return Access{}, err
	}

	now := c.now()
	best := pickEntitled(rows, now)
	if best == nil {
		return Access{Reason: "no active subscription"}, nil
	}

	access := Access{
		HasAccess:    true,
		Subscription: best,
	}
	switch {
	case best.Status == StatusPastDue:
		access.IsPastDue = true
		access.Reason = "payment past due, access retained during grace period"
	case best.IsLifetimeClass():
		access.Reason = "lifetime access"
	case best.Status == StatusTrialing:
		access.Reason = "trial period"
	default:
		access.Reason = "active subscription"
	}
	return access, nil
}

// pickEntitled selects the row that grants access, preferring stronger
// entitlement classes and breaking ties by most recent transition. The
// ordering matters when a user holds both a dying past_due row and a fresh
// active one: the warning flag must not leak from the stale row.
func pickEntitled(rows []Subscription, now time.Time) *Subscription {
	var best *Subscription
	bestRank := -1
	for i := range rows {
		row := &rows[i]
		if row.IsTerminal() || !row.GrantsEntitlementAt(now) {
			continue
		}
		rank := entitlementRank(row)
		if best == nil || rank > bestRank ||
			(rank == bestRank && row.StatusChangedAt.After(best.StatusChangedAt)) {
			best = row
			bestRank = rank
		}
	}
	return best
}

func entitlementRank(row *Subscription) int {
	switch {
	case row.IsLifetimeClass():
		return 3
	case row.Status == StatusActive:
		return 2
	case row.Status == StatusTrialing:
		return 1
	default: // past_due within grace
		return 0
	}
}

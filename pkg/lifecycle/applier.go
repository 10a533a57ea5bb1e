package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxley/billingkit/pkg/directory"
	"github.com/voxley/billingkit/pkg/subscription"
)

// Applier is the single write path for subscription transitions. The webhook
// processor and the reconciliation engine both go through it, so monotonic
// ordering and entitlement-role sync behave identically no matter which
// writer observed the change first.
type Applier struct {
	store subscription.Store
	dir   directory.Directory
	log   *slog.Logger
	now   func() time.Time
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithApplierLogger sets the logger.
func WithApplierLogger(log *slog.Logger) ApplierOption {
	return func(a *Applier) {
		if log != nil {
			a.log = log
		}
	}
}

// WithApplierClock overrides the wall clock, mainly for tests.
func WithApplierClock(now func() time.Time) ApplierOption {
	return func(a *Applier) {
		if now != nil {
			a.now = now
		}
	}
}

// NewApplier creates an Applier over the canonical store and the principal
// directory.
func NewApplier(store subscription.Store, dir directory.Directory, opts ...ApplierOption) *Applier {
	if store == nil {
		panic("lifecycle: store is required")
	}
	if dir == nil {
		panic("lifecycle: directory is required")
	}
	a := &Applier{
		store: store,
		dir:   dir,
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply writes the transition through the store and, if it was applied,
// synchronizes the owner's entitlement role. A role-sync failure after a
// successful store write returns ErrRoleSyncFailed with applied=true: the
// caller reports the event partially applied and relies on redelivery
// rather than rolling back.
func (a *Applier) Apply(ctx context.Context, t subscription.Transition) (*subscription.Subscription, bool, error) {
	sub, applied, err := a.store.ApplyTransition(ctx, t)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return sub, false, nil
	}

	a.log.InfoContext(ctx, "subscription transition applied",
		"provider", sub.Provider,
		"provider_subscription_id", sub.ProviderSubscriptionID,
		"status", sub.Status,
		"event_time", t.EventTime,
	)

	if err := a.syncRole(ctx, sub); err != nil {
		a.log.ErrorContext(ctx, "entitlement role sync failed",
			"user_id", sub.UserID, "error", err)
		return sub, true, errors.Join(ErrRoleSyncFailed, err)
	}
	return sub, true, nil
}

// syncRole raises or lowers the coarse entitlement role to match the user's
// subscription state. Downgrades re-check every row first: a user holding a
// second active subscription keeps the paid tier even when this one dies.
// Administrator roles are never touched.
func (a *Applier) syncRole(ctx context.Context, sub *subscription.Subscription) error {
	role, err := a.dir.GetEntitlementRole(ctx, sub.UserID)
	if err != nil {
		return err
	}
	if role == directory.RoleAdmin {
		return nil
	}

	now := a.now()
	if sub.GrantsEntitlementAt(now) {
		if role != directory.RolePaid {
			return a.dir.SetEntitlementRole(ctx, sub.UserID, directory.RolePaid)
		}
		return nil
	}

	rows, err := a.store.ListByUser(ctx, sub.UserID)
	if err != nil {
		return err
	}
	for i := range rows {
		if !rows[i].IsTerminal() && rows[i].GrantsEntitlementAt(now) {
			if role != directory.RolePaid {
				return a.dir.SetEntitlementRole(ctx, sub.UserID, directory.RolePaid)
			}
			return nil
		}
	}

	if role != directory.RoleFree {
		return a.dir.SetEntitlementRole(ctx, sub.UserID, directory.RoleFree)
	}
	return nil
}

package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxley/billingkit/pkg/directory"
	"github.com/voxley/billingkit/pkg/lifecycle"
	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/subscription"
)

type fakeGateway struct {
	remote *payment.RemoteSubscription
	err    error
	calls  int
}

func (g *fakeGateway) GetSubscription(ctx context.Context, provider subscription.Provider, id string) (*payment.RemoteSubscription, error) {
	g.calls++
	return g.remote, g.err
}

func (g *fakeGateway) GetOrder(ctx context.Context, provider subscription.Provider, id string) (*payment.RemoteOrder, error) {
	return nil, payment.ErrNotFoundAtProvider
}

func (g *fakeGateway) CapturePayment(ctx context.Context, provider subscription.Provider, id string) (*payment.RemoteOrder, error) {
	return nil, payment.ErrNotFoundAtProvider
}

type fakeDeduper struct {
	seen   map[string]bool
	marked []string
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) Seen(ctx context.Context, provider subscription.Provider, eventID string) (bool, error) {
	return d.seen[string(provider)+":"+eventID], nil
}

func (d *fakeDeduper) Mark(ctx context.Context, provider subscription.Provider, eventID string) error {
	d.seen[string(provider)+":"+eventID] = true
	d.marked = append(d.marked, eventID)
	return nil
}

type fixture struct {
	store     *subscription.MemoryStore
	dir       *directory.MemoryDirectory
	gateway   *fakeGateway
	processor *lifecycle.Processor
	userID    uuid.UUID
}

func newFixture(t *testing.T, opts ...lifecycle.ProcessorOption) *fixture {
	t.Helper()

	store := subscription.NewMemoryStore()
	dir := directory.NewMemoryDirectory()
	gateway := &fakeGateway{}
	userID := uuid.New()
	dir.AddUser("ctm_1", userID)

	applier := lifecycle.NewApplier(store, dir)
	return &fixture{
		store:     store,
		dir:       dir,
		gateway:   gateway,
		processor: lifecycle.NewProcessor(applier, store, gateway, dir.ResolveUser, opts...),
		userID:    userID,
	}
}

func statusEvent(eventID string, status string, at time.Time) payment.Event {
	return payment.Event{
		Provider:       subscription.ProviderCard,
		EventID:        eventID,
		Kind:           payment.KindStatusChange,
		Type:           "subscription.updated",
		OccurredAt:     at,
		SubscriptionID: "sub_1",
		PayerRef:       "ctm_1",
		NativeStatus:   status,
		PlanID:         "pro",
		Currency:       "USD",
	}
}

func TestProcessor_Handle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("applies a status change and raises the role", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		outcome, err := f.processor.Handle(ctx, statusEvent("evt_1", "active", t0))
		require.NoError(t, err)
		assert.Equal(t, lifecycle.OutcomeApplied, outcome)

		sub, err := f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, f.userID, sub.UserID)

		role, err := f.dir.GetEntitlementRole(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RolePaid, role)
	})

	t.Run("replaying a delivery is idempotent", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ev := statusEvent("evt_1", "active", t0)

		outcome, err := f.processor.Handle(ctx, ev)
		require.NoError(t, err)
		require.Equal(t, lifecycle.OutcomeApplied, outcome)

		for range 3 {
			outcome, err := f.processor.Handle(ctx, ev)
			require.NoError(t, err)
			assert.Equal(t, lifecycle.OutcomeIgnored, outcome)
		}

		sub, err := f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, t0, sub.StatusChangedAt)
	})

	t.Run("out-of-order deliveries converge on the later event", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		// Cancellation arrives first.
		outcome, err := f.processor.Handle(ctx, statusEvent("evt_2", "canceled", t0.Add(time.Hour)))
		require.NoError(t, err)
		require.Equal(t, lifecycle.OutcomeApplied, outcome)

		// The older activation lands afterwards and must not resurrect.
		outcome, err = f.processor.Handle(ctx, statusEvent("evt_1", "active", t0))
		require.NoError(t, err)
		assert.Equal(t, lifecycle.OutcomeIgnored, outcome)

		sub, err := f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)

		role, err := f.dir.GetEntitlementRole(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RoleFree, role)
	})

	t.Run("unmapped status is acked as an anomaly without mutation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		outcome, err := f.processor.Handle(ctx, statusEvent("evt_1", "some_new_state", t0))
		require.ErrorIs(t, err, payment.ErrMappingAnomaly)
		assert.Equal(t, lifecycle.OutcomeIgnored, outcome)

		_, err = f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("pointer event fetches provider truth", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.remote = &payment.RemoteSubscription{
			ProviderSubscriptionID: "sub_1",
			NativeStatus:           "active",
			PlanID:                 "pro",
		}

		outcome, err := f.processor.Handle(ctx, payment.Event{
			Provider:       subscription.ProviderCard,
			EventID:        "evt_ptr",
			Kind:           payment.KindPointer,
			OccurredAt:     t0,
			SubscriptionID: "sub_1",
			PayerRef:       "ctm_1",
		})
		require.NoError(t, err)
		assert.Equal(t, lifecycle.OutcomeApplied, outcome)
		assert.Equal(t, 1, f.gateway.calls)

		sub, err := f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("pointer event for a deleted subscription cancels it", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		// Seed an active row, then the provider forgets it.
		_, err := f.processor.Handle(ctx, statusEvent("evt_1", "active", t0))
		require.NoError(t, err)
		f.gateway.err = payment.ErrNotFoundAtProvider

		outcome, err := f.processor.Handle(ctx, payment.Event{
			Provider:       subscription.ProviderCard,
			EventID:        "evt_ptr",
			Kind:           payment.KindPointer,
			OccurredAt:     t0.Add(time.Hour),
			SubscriptionID: "sub_1",
		})
		require.NoError(t, err)
		assert.Equal(t, lifecycle.OutcomeApplied, outcome)

		sub, err := f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)
	})

	t.Run("transient provider failure leaves state untouched", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.err = payment.ErrProviderUnavailable

		outcome, err := f.processor.Handle(ctx, payment.Event{
			Provider:       subscription.ProviderCard,
			EventID:        "evt_ptr",
			Kind:           payment.KindPointer,
			OccurredAt:     t0,
			SubscriptionID: "sub_1",
			PayerRef:       "ctm_1",
		})
		require.ErrorIs(t, err, payment.ErrProviderUnavailable)
		assert.Equal(t, lifecycle.OutcomeIgnored, outcome)

		_, err = f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("unknown payer makes the event unattributable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ev := statusEvent("evt_1", "active", t0)
		ev.PayerRef = "ctm_stranger"

		outcome, err := f.processor.Handle(ctx, ev)
		require.ErrorIs(t, err, lifecycle.ErrUnattributable)
		assert.Equal(t, lifecycle.OutcomeIgnored, outcome)
	})

	t.Run("role sync failure reports partial application", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		outcome, err := f.processor.Handle(ctx, statusEvent("evt_1", "active", t0))
		require.NoError(t, err)
		require.Equal(t, lifecycle.OutcomeApplied, outcome)

		boom := errors.New("directory timeout")
		f.dir.Fail(boom)

		outcome, err = f.processor.Handle(ctx, statusEvent("evt_2", "canceled", t0.Add(time.Hour)))
		require.ErrorIs(t, err, lifecycle.ErrRoleSyncFailed)
		assert.Equal(t, lifecycle.OutcomePartiallyApplied, outcome)

		// The row was written; redelivery finishes the role sync.
		f.dir.Fail(nil)
		sub, err := f.store.GetByProviderRef(ctx, subscription.ProviderCard, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)
		role, err := f.dir.GetEntitlementRole(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RolePaid, role, "role still stale until redelivery")

		outcome, err = f.processor.Handle(ctx, statusEvent("evt_3", "canceled", t0.Add(2*time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, lifecycle.OutcomeApplied, outcome)

		role, err = f.dir.GetEntitlementRole(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RoleFree, role)
	})

	t.Run("dedupe window short-circuits exact duplicates", func(t *testing.T) {
		t.Parallel()

		dedupe := newFakeDeduper()
		f := newFixture(t, lifecycle.WithDeduper(dedupe))
		ev := statusEvent("evt_1", "active", t0)

		outcome, err := f.processor.Handle(ctx, ev)
		require.NoError(t, err)
		require.Equal(t, lifecycle.OutcomeApplied, outcome)
		require.Equal(t, []string{"evt_1"}, dedupe.marked)

		outcome, err = f.processor.Handle(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.OutcomeIgnored, outcome)
		assert.Len(t, dedupe.marked, 1, "duplicate must not re-mark")
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.processor.Handle(ctx, payment.Event{Provider: subscription.ProviderCard})
		require.ErrorIs(t, err, payment.ErrInvalidEvent)
	})
}

func TestApplier_RoleDowngrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("keeps paid while another entitled row exists", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		// Two subscriptions: the wallet one stays active when the card one dies.
		_, err := f.processor.Handle(ctx, statusEvent("evt_1", "active", t0))
		require.NoError(t, err)

		walletEv := statusEvent("evt_2", "", t0)
		walletEv.Provider = subscription.ProviderWallet
		walletEv.SubscriptionID = "I-1"
		walletEv.NativeStatus = "ACTIVE"
		_, err = f.processor.Handle(ctx, walletEv)
		require.NoError(t, err)

		_, err = f.processor.Handle(ctx, statusEvent("evt_3", "canceled", t0.Add(time.Hour)))
		require.NoError(t, err)

		role, err := f.dir.GetEntitlementRole(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RolePaid, role, "second active subscription retains the paid tier")
	})

	t.Run("admin role survives every sync", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.dir.SetEntitlementRole(ctx, f.userID, directory.RoleAdmin))

		_, err := f.processor.Handle(ctx, statusEvent("evt_1", "active", t0))
		require.NoError(t, err)
		_, err = f.processor.Handle(ctx, statusEvent("evt_2", "canceled", t0.Add(time.Hour)))
		require.NoError(t, err)

		role, err := f.dir.GetEntitlementRole(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RoleAdmin, role)
	})
}

package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxley/billingkit/pkg/lifecycle"
	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/subscription"
)

// Report summarizes one reconciliation run. A sweep never halts on a single
// provider failure: each row is processed independently and failures are
// recorded per row.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Verified      int // remote state matched stored state
	Transitioned  int // drift resolved by applying the provider's status
	ForceCanceled int // expired past grace and canceled locally
	Anomalies     int // unmapped statuses and repaired invariant violations
	Failures      int // rows skipped due to transient provider errors
}

// Engine is the periodic sweep that re-verifies every non-terminal
// subscription against its provider's source of truth. It applies the same
// monotonic transition and entitlement-sync rules as the webhook processor,
// so running concurrently with live deliveries is safe.
type Engine struct {
	store       subscription.Store
	gateway     payment.Gateway
	applier     *lifecycle.Applier
	concurrency int
	log         *slog.Logger
	now         func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConcurrency bounds how many rows are verified in parallel.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithEngineClock overrides the wall clock, mainly for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a reconciliation engine.
func NewEngine(store subscription.Store, gateway payment.Gateway, applier *lifecycle.Applier, opts ...EngineOption) *Engine {
	if store == nil {
		panic("reconcile: store is required")
	}
	if gateway == nil {
		panic("reconcile: gateway is required")
	}
	if applier == nil {
		panic("reconcile: applier is required")
	}
	e := &Engine{
		store:       store,
		gateway:     gateway,
		applier:     applier,
		concurrency: 8,
		log:         slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one sweep and returns its report. Safe to call concurrently
// with webhook processing; the store's conditional updates guarantee that
// the later event time wins on any row both writers touch.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: e.now()}

	rows, err := e.store.ListSweepable(ctx)
	if err != nil {
		return report, err
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.concurrency)
	)
	for i := range rows {
		row := rows[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := e.reconcileRow(ctx, &row)

			mu.Lock()
			switch outcome {
			case rowVerified:
				report.Verified++
			case rowTransitioned:
				report.Transitioned++
			case rowForceCanceled:
				report.ForceCanceled++
			case rowAnomaly:
				report.Anomalies++
			case rowFailed:
				report.Failures++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	repaired, err := e.repairDuplicateActives(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "duplicate-active repair failed", "error", err)
		report.Failures++
	}
	report.Anomalies += repaired

	report.FinishedAt = e.now()
	e.log.InfoContext(ctx, "reconciliation sweep finished",
		"verified", report.Verified,
		"transitioned", report.Transitioned,
		"force_canceled", report.ForceCanceled,
		"anomalies", report.Anomalies,
		"failures", report.Failures,
	)
	return report, nil
}

type rowOutcome int

const (
	rowVerified rowOutcome = iota
	rowTransitioned
	rowForceCanceled
	rowAnomaly
	rowFailed
)

func (e *Engine) reconcileRow(ctx context.Context, row *subscription.Subscription) rowOutcome {
	// Lifetime-class rows are exempt from expiry and provider drift checks;
	// they only participate in duplicate-active repair.
	if row.IsLifetimeClass() {
		return rowVerified
	}

	remote, err := e.gateway.GetSubscription(ctx, row.Provider, row.ProviderSubscriptionID)
	if errors.Is(err, payment.ErrNotFoundAtProvider) {
		// Deleted at the provider is a cancellation signal.
		return e.forceCancel(ctx, row, "gone at provider")
	}
	if err != nil {
		e.log.WarnContext(ctx, "provider fetch failed, row left unchanged",
			"provider", row.Provider,
			"provider_subscription_id", row.ProviderSubscriptionID,
			"error", err)
		return rowFailed
	}

	now := e.now()
	t := lifecycle.TransitionFromRemote(row.Provider, remote, now)
	if t.Status == subscription.StatusUnknown {
		e.log.WarnContext(ctx, "unmapped provider status during sweep",
			"provider", row.Provider,
			"provider_subscription_id", row.ProviderSubscriptionID,
			"native_status", remote.NativeStatus)
		return rowAnomaly
	}

	if t.Status.GrantsEntitlement() || t.Status == subscription.StatusCanceled {
		if t.Status == row.Status && equalPeriodEnd(t.CurrentPeriodEnd, row.CurrentPeriodEnd) {
			return rowVerified
		}
		if _, applied, err := e.applier.Apply(ctx, *t); err != nil || !applied {
			return e.applyOutcome(ctx, row, err, applied)
		}
		return rowTransitioned
	}

	// Non-entitled, non-terminal remote state: grace arithmetic decides
	// between carrying the status and force-canceling. past_due gets the
	// longer window; everything else the standard one.
	grace := subscription.StandardGrace
	if t.Status == subscription.StatusPastDue {
		grace = subscription.PastDueGrace
	}
	periodEnd := row.CurrentPeriodEnd
	if t.CurrentPeriodEnd != nil {
		periodEnd = t.CurrentPeriodEnd
	}
	if periodEnd != nil && now.After(periodEnd.Add(grace)) {
		return e.forceCancel(ctx, row, "expired past grace")
	}

	if t.Status == row.Status {
		return rowVerified
	}
	if _, applied, err := e.applier.Apply(ctx, *t); err != nil || !applied {
		return e.applyOutcome(ctx, row, err, applied)
	}
	return rowTransitioned
}

func (e *Engine) forceCancel(ctx context.Context, row *subscription.Subscription, reason string) rowOutcome {
	e.log.InfoContext(ctx, "force-canceling subscription",
		"provider", row.Provider,
		"provider_subscription_id", row.ProviderSubscriptionID,
		"reason", reason)

	_, applied, err := e.applier.Apply(ctx, subscription.Transition{
		Provider:               row.Provider,
		ProviderSubscriptionID: row.ProviderSubscriptionID,
		Status:                 subscription.StatusCanceled,
		EventTime:              e.now(),
	})
	if err != nil || !applied {
		return e.applyOutcome(ctx, row, err, applied)
	}
	return rowForceCanceled
}

// applyOutcome classifies a non-applied or failed transition. A lost race
// against a fresher webhook is success (the row is more advanced than our
// read); a role-sync failure is partial and will be retried, so the
// transition itself still counts.
func (e *Engine) applyOutcome(ctx context.Context, row *subscription.Subscription, err error, applied bool) rowOutcome {
	if err == nil {
		return rowVerified // stale read lost the ordering race
	}
	if errors.Is(err, lifecycle.ErrRoleSyncFailed) && applied {
		return rowTransitioned
	}
	e.log.ErrorContext(ctx, "failed to apply reconciliation transition",
		"provider", row.Provider,
		"provider_subscription_id", row.ProviderSubscriptionID,
		"error", err)
	return rowFailed
}

// repairDuplicateActives enforces the one-active-row-per-user invariant per
// provider family. The most recently activated row is canonical; the others
// are canceled locally with the repair logged. Returns how many rows were
// repaired.
func (e *Engine) repairDuplicateActives(ctx context.Context) (int, error) {
	rows, err := e.store.ListSweepable(ctx)
	if err != nil {
		return 0, err
	}

	type familyKey struct {
		user   uuid.UUID
		family string
	}
	actives := make(map[familyKey][]subscription.Subscription)
	for _, row := range rows {
		if row.Status != subscription.StatusActive {
			continue
		}
		key := familyKey{user: row.UserID, family: providerFamily(row.Provider)}
		actives[key] = append(actives[key], row)
	}

	repaired := 0
	for key, group := range actives {
		if len(group) < 2 {
			continue
		}

		// Most-recently-transitioned-to-active wins the tie-break.
		keep := group[0]
		for _, row := range group[1:] {
			if row.StatusChangedAt.After(keep.StatusChangedAt) {
				keep = row
			}
		}

		for _, row := range group {
			if row.ID == keep.ID {
				continue
			}
			e.log.WarnContext(ctx, "repairing duplicate active subscription",
				"user_id", key.user,
				"kept", keep.ProviderSubscriptionID,
				"canceled", row.ProviderSubscriptionID)

			_, _, err := e.applier.Apply(ctx, subscription.Transition{
				Provider:               row.Provider,
				ProviderSubscriptionID: row.ProviderSubscriptionID,
				Status:                 subscription.StatusCanceled,
				EventTime:              e.now(),
			})
			if err != nil && !errors.Is(err, lifecycle.ErrRoleSyncFailed) {
				e.log.ErrorContext(ctx, "duplicate-active repair write failed",
					"provider_subscription_id", row.ProviderSubscriptionID, "error", err)
				continue
			}
			repaired++
		}
	}
	return repaired, nil
}

// providerFamily groups providers that grant the same entitlement: both
// wallet processors count as one family, so a migrated subscription and its
// legacy twin cannot both stay active.
func providerFamily(p subscription.Provider) string {
	switch p {
	case subscription.ProviderWallet, subscription.ProviderLegacyWallet:
		return "wallet"
	default:
		return string(p)
	}
}

func equalPeriodEnd(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

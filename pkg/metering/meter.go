package metering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxley/billingkit/pkg/plans"
	"github.com/voxley/billingkit/pkg/subscription"
)

// Decision is the answer to a quota check.
type Decision struct {
	Allowed   bool
	Reason    string
	PlanID    string
	Limit     int64 // plans.Unlimited for unmetered plans
	Used      int64
	Remaining int64 // 0 when exhausted or unlimited
}

// ThresholdEvent fires when a usage increment crosses a consumption
// percentage. Each threshold fires at most once per period: only the
// increment that crosses the line sees it.
type ThresholdEvent struct {
	UserID      uuid.UUID
	PeriodStart time.Time
	Threshold   int // percentage, 80 or 100
	Used        int64
	Limit       int64
}

// ThresholdHook receives threshold crossings, e.g. to send a usage warning
// email. Hooks run synchronously on the recording call; keep them fast.
type ThresholdHook func(ctx context.Context, ev ThresholdEvent)

// usage warning thresholds, in percent
var thresholds = []int{80, 100}

// Meter enforces monthly character quotas. The applicable plan comes from
// the user's entitled subscription; users without one meter against the
// configured free plan.
type Meter struct {
	usage      Store
	checker    *subscription.Checker
	catalog    *plans.Catalog
	freePlanID string
	hooks      []ThresholdHook
	log        *slog.Logger
	now        func() time.Time
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithThresholdHook registers a hook for usage threshold crossings.
func WithThresholdHook(hook ThresholdHook) MeterOption {
	return func(m *Meter) {
		if hook != nil {
			m.hooks = append(m.hooks, hook)
		}
	}
}

// WithMeterLogger sets the logger.
func WithMeterLogger(log *slog.Logger) MeterOption {
	return func(m *Meter) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMeterClock overrides the wall clock, mainly for tests.
func WithMeterClock(now func() time.Time) MeterOption {
	return func(m *Meter) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMeter creates a usage meter. freePlanID must resolve in the catalog;
// it is the plan applied to users with no entitled subscription.
func NewMeter(usage Store, checker *subscription.Checker, catalog *plans.Catalog, freePlanID string, opts ...MeterOption) (*Meter, error) {
	if usage == nil {
		panic("metering: usage store is required")
	}
	if checker == nil {
		panic("metering: subscription checker is required")
	}
	if catalog == nil {
		panic("metering: plan catalog is required")
	}
	if _, err := catalog.Resolve(freePlanID); err != nil {
		return nil, fmt.Errorf("metering: free plan %q: %w", freePlanID, err)
	}
	m := &Meter{
		usage:      usage,
		checker:    checker,
		catalog:    catalog,
		freePlanID: freePlanID,
		log:        slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CanGenerateSpeech reports whether the user may consume n more characters
// this period. It never mutates the counter; callers record actual
// consumption with RecordUsage after the work succeeds.
func (m *Meter) CanGenerateSpeech(ctx context.Context, userID uuid.UUID, n int64) (Decision, error) {
	if n <= 0 {
		return Decision{}, ErrInvalidAmount
	}

	plan, err := m.planFor(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	if plan.IsUnlimited() {
		return Decision{
			Allowed: true,
			Reason:  "unlimited plan",
			PlanID:  plan.ID,
			Limit:   plans.Unlimited,
		}, nil
	}

	period, err := m.usage.Get(ctx, userID, PeriodStartFor(m.now()))
	if err != nil {
		return Decision{}, errors.Join(ErrStoreFailure, err)
	}

	remaining := plan.CharactersPerMonth - period.CharactersUsed
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		PlanID:    plan.ID,
		Limit:     plan.CharactersPerMonth,
		Used:      period.CharactersUsed,
		Remaining: remaining,
	}
	if n > remaining {
		d.Reason = fmt.Sprintf("monthly character limit exceeded: %d characters remaining of %d", remaining, plan.CharactersPerMonth)
		return d, nil
	}
	d.Allowed = true
	d.Reason = "within quota"
	return d, nil
}

// CanUseLanguage reports whether the user's plan covers the given language.
func (m *Meter) CanUseLanguage(ctx context.Context, userID uuid.UUID, language string) (bool, error) {
	plan, err := m.planFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return plan.AllowsLanguage(language), nil
}

// RecordUsage atomically adds n consumed characters to the current period
// and fires threshold hooks for any percentage line this increment crossed.
func (m *Meter) RecordUsage(ctx context.Context, userID uuid.UUID, n int64) error {
	if n <= 0 {
		return ErrInvalidAmount
	}

	periodStart := PeriodStartFor(m.now())
	before, after, err := m.usage.Increment(ctx, userID, periodStart, n)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	plan, err := m.planFor(ctx, userID)
	if err != nil {
		// Usage is already recorded; only the warning is lost.
		m.log.WarnContext(ctx, "plan lookup failed after usage increment", "user_id", userID, "error", err)
		return nil
	}
	if plan.IsUnlimited() {
		return nil
	}

	for _, pct := range thresholds {
		if !crossed(before, after, plan.CharactersPerMonth, pct) {
			continue
		}
		ev := ThresholdEvent{
			UserID:      userID,
			PeriodStart: periodStart,
			Threshold:   pct,
			Used:        after,
			Limit:       plan.CharactersPerMonth,
		}
		m.log.InfoContext(ctx, "usage threshold crossed",
			"user_id", userID, "threshold_pct", pct, "used", after, "limit", plan.CharactersPerMonth)
		for _, hook := range m.hooks {
			hook(ctx, ev)
		}
	}
	return nil
}

// crossed reports whether the counter moved from below to at-or-above the
// percentage line. Integer math avoids float drift at exact boundaries.
func crossed(before, after, limit int64, pct int) bool {
	if limit <= 0 {
		return false
	}
	line := limit * int64(pct)
	return before*100 < line && after*100 >= line
}

// planFor resolves the plan governing the user's quota. No entitled
// subscription, or a subscription pointing at an unknown plan, falls back
// to the free plan rather than failing the quota check.
func (m *Meter) planFor(ctx context.Context, userID uuid.UUID) (plans.Plan, error) {
	access, err := m.checker.Check(ctx, userID)
	if err != nil {
		return plans.Plan{}, err
	}

	planID := m.freePlanID
	if access.HasAccess && access.Subscription != nil && access.Subscription.PlanID != "" {
		planID = access.Subscription.PlanID
	}

	plan, err := m.catalog.Resolve(planID)
	if errors.Is(err, plans.ErrPlanNotFound) && planID != m.freePlanID {
		m.log.WarnContext(ctx, "subscription references unknown plan, metering against free tier",
			"user_id", userID, "plan_id", planID)
		return m.catalog.Resolve(m.freePlanID)
	}
	return plan, err
}

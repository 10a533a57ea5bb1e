package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/subscription"
)

// Outcome reports what a webhook delivery did.
type Outcome int

const (
	// OutcomeIgnored means no state changed: duplicate, stale, or
	// uninterpretable event.
	OutcomeIgnored Outcome = iota
	// OutcomeApplied means the subscription row and entitlement role were
	// both updated.
	OutcomeApplied
	// OutcomePartiallyApplied means the row was written but the role sync
	// failed; redelivery will finish the job.
	OutcomePartiallyApplied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomePartiallyApplied:
		return "partially_applied"
	default:
		return "ignored"
	}
}

// Processor consumes validated provider events and turns them into
// monotonic subscription transitions. It is safe to run as a pool of
// concurrent handlers: all ordering is enforced at the store.
type Processor struct {
	applier  *Applier
	store    subscription.Store
	gateway  payment.Gateway
	resolver UserResolver
	dedupe   Deduper
	log      *slog.Logger
	now      func() time.Time
}

// UserResolver maps a provider payer reference to the owning user ID.
// Typically directory.Directory.ResolveUser.
type UserResolver func(ctx context.Context, payerRef string) (uuid.UUID, error)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithDeduper installs a delivery dedupe window.
func WithDeduper(d Deduper) ProcessorOption {
	return func(p *Processor) { p.dedupe = d }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithProcessorClock overrides the wall clock, mainly for tests.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProcessor creates a webhook event processor. Signature verification is
// a precondition of Handle: the ingress layer must reject unverified
// payloads before events reach this package.
func NewProcessor(applier *Applier, store subscription.Store, gateway payment.Gateway, resolver UserResolver, opts ...ProcessorOption) *Processor {
	if applier == nil {
		panic("lifecycle: applier is required")
	}
	if store == nil {
		panic("lifecycle: store is required")
	}
	if gateway == nil {
		panic("lifecycle: gateway is required")
	}
	if resolver == nil {
		panic("lifecycle: user resolver is required")
	}
	p := &Processor{
		applier:  applier,
		store:    store,
		gateway:  gateway,
		resolver: resolver,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one inbound provider event. Replaying the same event any
// number of times produces the same subscription row as applying it once;
// out-of-order deliveries never regress the row (the later-timestamped event
// wins regardless of arrival order).
func (p *Processor) Handle(ctx context.Context, ev payment.Event) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return OutcomeIgnored, err
	}

	if p.dedupe != nil {
		seen, err := p.dedupe.Seen(ctx, ev.Provider, ev.EventID)
		if err != nil {
			// Best effort only; the row-level monotonic check still makes
			// duplicates harmless.
			p.log.WarnContext(ctx, "dedupe lookup failed", "event_id", ev.EventID, "error", err)
		} else if seen {
			return OutcomeIgnored, nil
		}
	}

	t, err := p.transitionFor(ctx, ev)
	if err != nil {
		if errors.Is(err, payment.ErrMappingAnomaly) {
			p.log.WarnContext(ctx, "unmapped provider status",
				"provider", ev.Provider, "event_id", ev.EventID,
				"event_type", ev.Type, "native_status", ev.NativeStatus)
			return OutcomeIgnored, err
		}
		return OutcomeIgnored, err
	}

	if err := p.attachUser(ctx, t, ev.PayerRef); err != nil {
		return OutcomeIgnored, err
	}

	_, applied, err := p.applier.Apply(ctx, *t)
	if err != nil {
		if errors.Is(err, ErrRoleSyncFailed) {
			return OutcomePartiallyApplied, err
		}
		return OutcomeIgnored, err
	}

	if p.dedupe != nil {
		if err := p.dedupe.Mark(ctx, ev.Provider, ev.EventID); err != nil {
			p.log.WarnContext(ctx, "dedupe mark failed", "event_id", ev.EventID, "error", err)
		}
	}

	if !applied {
		return OutcomeIgnored, nil
	}
	return OutcomeApplied, nil
}

// transitionFor turns an event into a transition. Pointer events carry no
// state, so the processor fetches the provider's current truth instead of
// guessing; the observation time becomes the event time.
func (p *Processor) transitionFor(ctx context.Context, ev payment.Event) (*subscription.Transition, error) {
	if ev.Kind == payment.KindPointer {
		remote, err := p.gateway.GetSubscription(ctx, ev.Provider, ev.SubscriptionID)
		if errors.Is(err, payment.ErrNotFoundAtProvider) {
			// Deleted at the provider: a cancellation signal, not an error.
			return &subscription.Transition{
				Provider:               ev.Provider,
				ProviderSubscriptionID: ev.SubscriptionID,
				Status:                 subscription.StatusCanceled,
				EventTime:              p.now(),
			}, nil
		}
		if err != nil {
			return nil, err
		}
		t := TransitionFromRemote(ev.Provider, remote, p.now())
		if t.Status == subscription.StatusUnknown {
			return nil, payment.ErrMappingAnomaly
		}
		return t, nil
	}

	status := payment.MapStatus(ev.Provider, ev.NativeStatus)
	if status == subscription.StatusUnknown {
		return nil, payment.ErrMappingAnomaly
	}

	return &subscription.Transition{
		Provider:               ev.Provider,
		ProviderSubscriptionID: ev.SubscriptionID,
		Status:                 status,
		EventTime:              ev.OccurredAt,
		PlanID:                 ev.PlanID,
		PlanName:               ev.PlanName,
		PriceAmount:            ev.PriceAmount,
		Currency:               ev.Currency,
		BillingInterval:        ev.BillingInterval,
		CurrentPeriodStart:     ev.PeriodStart,
		CurrentPeriodEnd:       ev.PeriodEnd,
	}, nil
}

// attachUser fills in the owner for transitions that may create the row.
// Existing rows keep their owner; ownership never changes via webhooks.
func (p *Processor) attachUser(ctx context.Context, t *subscription.Transition, payerRef string) error {
	existing, err := p.store.GetByProviderRef(ctx, t.Provider, t.ProviderSubscriptionID)
	if err == nil {
		t.UserID = existing.UserID
		return nil
	}
	if !errors.Is(err, subscription.ErrNotFound) {
		return err
	}

	if payerRef == "" {
		return errors.Join(ErrUnattributable, payment.ErrMissingPayerRef)
	}
	userID, err := p.resolver(ctx, payerRef)
	if err != nil {
		return errors.Join(ErrUnattributable, err)
	}
	t.UserID = userID
	return nil
}

// TransitionFromRemote maps a gateway fetch into a transition. Shared with
// the reconciliation engine so both writers interpret provider truth the
// same way. Callers must check for StatusUnknown before applying.
func TransitionFromRemote(provider subscription.Provider, remote *payment.RemoteSubscription, observedAt time.Time) *subscription.Transition {
	return &subscription.Transition{
		Provider:               provider,
		ProviderSubscriptionID: remote.ProviderSubscriptionID,
		Status:                 payment.MapStatus(provider, remote.NativeStatus),
		EventTime:              observedAt,
		PlanID:                 remote.PlanID,
		PriceAmount:            remote.PriceAmount,
		Currency:               remote.Currency,
		BillingInterval:        remote.BillingInterval,
		CurrentPeriodStart:     remote.PeriodStart,
		CurrentPeriodEnd:       remote.PeriodEnd,
	}
}

package payment

import (
	"context"
	"errors"
	"time"

	"github.com/voxley/billingkit/pkg/subscription"
)

// ResilientGateway wraps a Gateway with a bounded per-call timeout, a single
// backoff retry for transient failures, and one circuit breaker per provider
// so a slow or failing provider cannot block the others' rows (bulkhead per
// provider).
//
// Not-found responses pass through untouched: they are a meaningful signal,
// not a failure to retry.
type ResilientGateway struct {
	inner    Gateway
	timeout  time.Duration
	retries  int
	backoff  BackoffStrategy
	breakers map[subscription.Provider]*CircuitBreaker
}

// ResilientOption configures a ResilientGateway.
type ResilientOption func(*ResilientGateway)

// WithCallTimeout bounds each underlying gateway call. On timeout the row is
// left unchanged and retried on the next sweep or delivery.
func WithCallTimeout(d time.Duration) ResilientOption {
	return func(g *ResilientGateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetries sets how many backoff retries a transient failure gets within
// a single call.
func WithRetries(n int) ResilientOption {
	return func(g *ResilientGateway) {
		if n >= 0 {
			g.retries = n
		}
	}
}

// WithBackoff sets the retry backoff strategy.
func WithBackoff(b BackoffStrategy) ResilientOption {
	return func(g *ResilientGateway) {
		if b != nil {
			g.backoff = b
		}
	}
}

// NewResilientGateway wraps inner with timeout, retry, and circuit breaking.
func NewResilientGateway(inner Gateway, opts ...ResilientOption) *ResilientGateway {
	if inner == nil {
		panic("payment: inner gateway is required")
	}
	g := &ResilientGateway{
		inner:   inner,
		timeout: 10 * time.Second,
		retries: 1,
		backoff: DefaultBackoffStrategy(),
		breakers: map[subscription.Provider]*CircuitBreaker{
			subscription.ProviderCard:         NewCircuitBreaker(0, 0, 0),
			subscription.ProviderWallet:       NewCircuitBreaker(0, 0, 0),
			subscription.ProviderLegacyWallet: NewCircuitBreaker(0, 0, 0),
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *ResilientGateway) GetSubscription(ctx context.Context, provider subscription.Provider, providerSubID string) (*RemoteSubscription, error) {
	return call(g, ctx, provider, func(ctx context.Context) (*RemoteSubscription, error) {
		return g.inner.GetSubscription(ctx, provider, providerSubID)
	})
}

func (g *ResilientGateway) GetOrder(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error) {
	return call(g, ctx, provider, func(ctx context.Context) (*RemoteOrder, error) {
		return g.inner.GetOrder(ctx, provider, orderID)
	})
}

func (g *ResilientGateway) CapturePayment(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error) {
	return call(g, ctx, provider, func(ctx context.Context) (*RemoteOrder, error) {
		return g.inner.CapturePayment(ctx, provider, orderID)
	})
}

func call[T any](g *ResilientGateway, ctx context.Context, provider subscription.Provider, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	breaker := g.breakers[provider]
	if breaker == nil {
		return zero, ErrUnsupportedProvider
	}

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, errors.Join(ErrProviderUnavailable, ctx.Err())
			case <-time.After(g.backoff.NextInterval(attempt)):
			}
		}

		if !breaker.Allow() {
			return zero, errors.Join(ErrProviderUnavailable, ErrCircuitOpen)
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		result, err := fn(callCtx)
		cancel()

		if err == nil {
			breaker.RecordSuccess()
			return result, nil
		}

		// Not-found is an answer, not an outage; it must not trip the
		// breaker or burn retries.
		if errors.Is(err, ErrNotFoundAtProvider) {
			breaker.RecordSuccess()
			return zero, err
		}

		breaker.RecordFailure()
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrProviderUnavailable
	}
	if !errors.Is(lastErr, ErrProviderUnavailable) {
		lastErr = errors.Join(ErrProviderUnavailable, lastErr)
	}
	return zero, lastErr
}

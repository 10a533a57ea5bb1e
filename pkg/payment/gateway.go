package payment

import (
	"context"
	"time"

	"github.com/voxley/billingkit/pkg/subscription"
)

// RemoteSubscription is a provider's authoritative view of a subscription,
// as returned by a confirmation fetch. NativeStatus is the provider's own
// vocabulary; callers translate it through MapStatus.
type RemoteSubscription struct {
	ProviderSubscriptionID string
	NativeStatus           string
	PeriodStart            time.Time
	PeriodEnd              *time.Time
	PayerRef               string // provider-side customer/payer identifier
	PlanID                 string
	PriceAmount            *int64
	Currency               string
	BillingInterval        *string
}

// RemoteOrder is a provider's view of a one-time order (lifetime purchases).
type RemoteOrder struct {
	OrderID      string
	NativeStatus string
	PayerRef     string
	Amount       *int64
	Currency     string
	PaidAt       *time.Time
}

// Gateway is the external Payment Provider Gateway collaborator. The core
// consumes it for fetch-to-confirm webhook handling and for reconciliation;
// it never implements provider HTTP clients itself.
//
// Implementations must distinguish "not found" (ErrNotFoundAtProvider, which
// is itself a cancellation signal) from transient failures
// (ErrProviderUnavailable, which must leave local state untouched).
type Gateway interface {
	GetSubscription(ctx context.Context, provider subscription.Provider, providerSubID string) (*RemoteSubscription, error)
	GetOrder(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error)
	CapturePayment(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error)
}

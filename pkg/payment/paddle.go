package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/voxley/billingkit/pkg/subscription"
)

// PaddleConfig holds configuration for the card-provider gateway.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleGateway implements Gateway for the current card processor on top of
// the official Paddle SDK. It only answers for ProviderCard; wallet
// providers have their own adapters wired separately.
type PaddleGateway struct {
	client *paddle.SDK
}

// NewPaddleGateway creates a card-provider gateway.
func NewPaddleGateway(cfg PaddleConfig) (*PaddleGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleGateway{client: client}, nil
}

func (g *PaddleGateway) GetSubscription(ctx context.Context, provider subscription.Provider, providerSubID string) (*RemoteSubscription, error) {
	if provider != subscription.ProviderCard {
		return nil, ErrUnsupportedProvider
	}

	sub, err := g.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: providerSubID,
	})
	if err != nil {
		return nil, classifyPaddleErr(err)
	}

	remote := &RemoteSubscription{
		ProviderSubscriptionID: sub.ID,
		NativeStatus:           string(sub.Status),
		PayerRef:               sub.CustomerID,
	}

	if sub.CurrentBillingPeriod != nil {
		remote.PeriodStart = parsePaddleTime(sub.CurrentBillingPeriod.StartsAt)
		if end := parsePaddleTime(sub.CurrentBillingPeriod.EndsAt); !end.IsZero() {
			remote.PeriodEnd = &end
		}
	}

	if len(sub.Items) > 0 {
		price := sub.Items[0].Price
		remote.PlanID = price.ID
		remote.Currency = string(price.UnitPrice.CurrencyCode)
		if amount, err := strconv.ParseInt(price.UnitPrice.Amount, 10, 64); err == nil {
			remote.PriceAmount = &amount
		}
		interval := paddleInterval(price.BillingCycle)
		if interval != "" {
			remote.BillingInterval = &interval
		}
	}

	return remote, nil
}

func (g *PaddleGateway) GetOrder(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error) {
	if provider != subscription.ProviderCard {
		return nil, ErrUnsupportedProvider
	}

	txn, err := g.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: orderID,
	})
	if err != nil {
		return nil, classifyPaddleErr(err)
	}

	order := &RemoteOrder{
		OrderID:      txn.ID,
		NativeStatus: string(txn.Status),
	}
	if txn.CustomerID != nil {
		order.PayerRef = *txn.CustomerID
	}
	// Details and Totals are value types in the SDK; an absent totals block
	// comes through as zero values, so presence is a content check.
	if txn.Details.Totals.Total != "" {
		if total, err := strconv.ParseInt(txn.Details.Totals.Total, 10, 64); err == nil {
			order.Amount = &total
		}
		order.Currency = string(txn.Details.Totals.CurrencyCode)
	}
	if txn.BilledAt != nil {
		if at := parsePaddleTime(*txn.BilledAt); !at.IsZero() {
			order.PaidAt = &at
		}
	}

	return order, nil
}

// CapturePayment confirms that a checkout transaction settled. Paddle
// captures hosted-checkout payments itself, so capture here means verifying
// the settled state rather than initiating a money movement.
func (g *PaddleGateway) CapturePayment(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error) {
	order, err := g.GetOrder(ctx, provider, orderID)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(order.NativeStatus) {
	case "completed", "paid":
		return order, nil
	}
	return nil, fmt.Errorf("transaction %s not settled (status %q)", orderID, order.NativeStatus)
}

// classifyPaddleErr folds SDK errors into the gateway taxonomy. The SDK
// surfaces entity_not_found in the API error code; everything else,
// including timeouts, is transient and must not mutate local state.
func classifyPaddleErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrProviderUnavailable, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not_found") || strings.Contains(msg, "not found") {
		return errors.Join(ErrNotFoundAtProvider, err)
	}
	return errors.Join(ErrProviderUnavailable, err)
}

func parsePaddleTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// paddleInterval renders a billing cycle as the canonical interval string,
// e.g. "month" or "6 months" for multi-period cycles.
func paddleInterval(cycle *paddle.Duration) string {
	if cycle == nil {
		return ""
	}
	unit := string(cycle.Interval)
	if unit == "" {
		return ""
	}
	if cycle.Frequency > 1 {
		return fmt.Sprintf("%d %ss", cycle.Frequency, unit)
	}
	return unit
}

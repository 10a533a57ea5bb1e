package legacy

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxley/billingkit/pkg/lifecycle"
	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/subscription"
)

// Order is one historical billing record from the legacy wallet processor,
// as exported by the prior system.
type Order struct {
	OrderID      string
	PayerRef     string
	ItemName     string
	NativeStatus string
	PurchasedAt  time.Time
	PeriodEnd    *time.Time
	AmountCents  *int64
	Currency     string
	Raw          map[string]any // preserved verbatim as provenance
}

// Report summarizes one import run.
type Report struct {
	Imported int // canonical rows created or updated
	Skipped  int // duplicates and stale records
	Unmapped int // item names or statuses the lookup table cannot resolve
	Failures int // store or directory errors
}

// Importer migrates legacy orders into canonical subscription rows. Imports
// go through the same transition path as webhooks, so re-running an import
// is idempotent and a legacy row later superseded by live events never
// regresses.
type Importer struct {
	table    *Table
	applier  *lifecycle.Applier
	resolver lifecycle.UserResolver
	log      *slog.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImporterLogger sets the logger.
func WithImporterLogger(log *slog.Logger) ImporterOption {
	return func(i *Importer) {
		if log != nil {
			i.log = log
		}
	}
}

// NewImporter creates a legacy order importer.
func NewImporter(table *Table, applier *lifecycle.Applier, resolver lifecycle.UserResolver, opts ...ImporterOption) *Importer {
	if table == nil {
		panic("legacy: lookup table is required")
	}
	if applier == nil {
		panic("legacy: applier is required")
	}
	if resolver == nil {
		panic("legacy: user resolver is required")
	}
	imp := &Importer{
		table:    table,
		applier:  applier,
		resolver: resolver,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// ImportOrders migrates a batch of legacy orders. Each order is independent:
// one failure never aborts the batch.
func (i *Importer) ImportOrders(ctx context.Context, orders []Order) Report {
	var report Report
	for idx := range orders {
		switch i.importOrder(ctx, &orders[idx]) {
		case importApplied:
			report.Imported++
		case importSkipped:
			report.Skipped++
		case importUnmapped:
			report.Unmapped++
		case importFailed:
			report.Failures++
		}
	}
	i.log.InfoContext(ctx, "legacy order import finished",
		"imported", report.Imported,
		"skipped", report.Skipped,
		"unmapped", report.Unmapped,
		"failures", report.Failures,
	)
	return report
}

type importResult int

const (
	importApplied importResult = iota
	importSkipped
	importUnmapped
	importFailed
)

func (i *Importer) importOrder(ctx context.Context, order *Order) importResult {
	if order.OrderID == "" {
		i.log.WarnContext(ctx, "legacy order rejected", "error", ErrMissingOrderID)
		return importUnmapped
	}

	mapping, ok := i.table.Lookup(order.ItemName)
	if !ok {
		i.log.WarnContext(ctx, "legacy item name not in lookup table",
			"order_id", order.OrderID, "item_name", order.ItemName)
		return importUnmapped
	}

	status := payment.MapStatus(subscription.ProviderLegacyWallet, order.NativeStatus)
	if status == subscription.StatusUnknown {
		i.log.WarnContext(ctx, "legacy order status unmapped",
			"order_id", order.OrderID, "native_status", order.NativeStatus)
		return importUnmapped
	}
	// Non-recurring purchases carry lifetime entitlement regardless of the
	// exported status wording.
	if mapping.Interval == nil && status != subscription.StatusCanceled {
		status = subscription.StatusLifetime
	}

	userID, err := i.resolver(ctx, order.PayerRef)
	if err != nil {
		i.log.ErrorContext(ctx, "legacy order owner unresolved",
			"order_id", order.OrderID, "payer_ref", order.PayerRef, "error", err)
		return importFailed
	}

	t := subscription.Transition{
		Provider:               subscription.ProviderLegacyWallet,
		ProviderSubscriptionID: order.OrderID,
		UserID:                 userID,
		Status:                 status,
		EventTime:              order.PurchasedAt,
		PlanID:                 mapping.PlanID,
		PlanName:               mapping.PlanName,
		Currency:               order.Currency,
		BillingInterval:        mapping.Interval,
		CurrentPeriodStart:     order.PurchasedAt,
		CurrentPeriodEnd:       order.PeriodEnd,
		IsLegacy:               true,
		LegacyMetadata:         i.provenance(order),
	}
	switch {
	case order.AmountCents != nil:
		t.PriceAmount = order.AmountCents
	case mapping.Price != nil:
		amount := mapping.Price.Amount
		t.PriceAmount = &amount
		if t.Currency == "" {
			t.Currency = mapping.Price.Currency
		}
	}

	_, applied, err := i.applier.Apply(ctx, t)
	if err != nil {
		i.log.ErrorContext(ctx, "legacy order import failed",
			"order_id", order.OrderID, "error", err)
		return importFailed
	}
	if !applied {
		return importSkipped
	}
	return importApplied
}

// provenance records where the row came from so anomalies can be traced
// back to the source export.
func (i *Importer) provenance(order *Order) map[string]any {
	meta := map[string]any{
		"source":        "legacy_wallet_export",
		"table_version": i.table.Version(),
		"item_name":     order.ItemName,
		"native_status": order.NativeStatus,
	}
	for k, v := range order.Raw {
		meta["raw_"+k] = v
	}
	return meta
}

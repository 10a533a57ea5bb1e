package revenue

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/voxley/billingkit/pkg/plans"
	"github.com/voxley/billingkit/pkg/subscription"
)

// PlanRevenue is the per-plan MRR breakdown.
type PlanRevenue struct {
	PlanID      string
	PlanName    string
	MRRCents    int64
	ActiveCount int
}

// ProviderRevenue is the per-provider MRR breakdown.
type ProviderRevenue struct {
	Provider    subscription.Provider
	MRRCents    int64
	ActiveCount int
}

// Stats is one MRR snapshot. Amounts are in minor units of the reporting
// currency; FormattedMRR carries the human-readable figure.
type Stats struct {
	MRRCents     int64
	Currency     string
	FormattedMRR string

	ByPlan     []PlanRevenue
	ByProvider []ProviderRevenue

	ActiveCount      int
	LifetimeCount    int // lifetime-class rows, excluded from MRR
	CanceledInWindow int
	ChurnRate        float64 // canceled / (active + canceled) over the window

	GeneratedAt time.Time
}

// Aggregator derives MRR and churn figures from the canonical subscription
// store. It is strictly read-only.
type Aggregator struct {
	store       subscription.Store
	defaults    map[string]plans.Money // fallback prices keyed by plan ID and name
	currency    string
	churnWindow time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithDefaultPrices installs the fallback price table, keyed by plan ID or
// plan name. Legacy rows frequently lack a stored price; without a fallback
// they are excluded from MRR.
func WithDefaultPrices(table map[string]plans.Money) AggregatorOption {
	return func(a *Aggregator) { a.defaults = table }
}

// WithReportingCurrency sets the ISO 4217 currency used for formatting.
// Defaults to USD.
func WithReportingCurrency(code string) AggregatorOption {
	return func(a *Aggregator) {
		if code != "" {
			a.currency = code
		}
	}
}

// WithChurnWindow sets the trailing window for the churn rate. Defaults to
// 30 days.
func WithChurnWindow(window time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if window > 0 {
			a.churnWindow = window
		}
	}
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(log *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// WithAggregatorClock overrides the wall clock, mainly for tests.
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator creates an MRR aggregator over the subscription store.
func NewAggregator(store subscription.Store, opts ...AggregatorOption) *Aggregator {
	if store == nil {
		panic("revenue: store is required")
	}
	a := &Aggregator{
		store:       store,
		currency:    "USD",
		churnWindow: 30 * 24 * time.Hour,
		log:         slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MRRStats computes the current MRR snapshot. Active recurring rows
// contribute their monthly-normalized price; lifetime-class rows are
// counted but never contribute to MRR; rows with no resolvable price or
// interval are logged and skipped.
func (a *Aggregator) MRRStats(ctx context.Context) (Stats, error) {
	rows, err := a.store.ListAll(ctx)
	if err != nil {
		return Stats{}, errors.Join(ErrStoreFailure, err)
	}

	now := a.now()
	stats := Stats{Currency: a.currency, GeneratedAt: now}
	byPlan := make(map[string]*PlanRevenue)
	byProvider := make(map[subscription.Provider]*ProviderRevenue)
	windowStart := now.Add(-a.churnWindow)

	for i := range rows {
		row := &rows[i]

		if row.Status == subscription.StatusCanceled {
			if row.CanceledAt != nil && row.CanceledAt.After(windowStart) {
				stats.CanceledInWindow++
			}
			continue
		}
		if row.IsLifetimeClass() {
			stats.LifetimeCount++
			continue
		}
		if row.Status != subscription.StatusActive {
			continue
		}

		stats.ActiveCount++
		monthly, ok := a.monthlyCents(row)
		if !ok {
			continue
		}

		stats.MRRCents += monthly

		pk := row.PlanID
		if pk == "" {
			pk = row.PlanName
		}
		pr, found := byPlan[pk]
		if !found {
			pr = &PlanRevenue{PlanID: row.PlanID, PlanName: row.PlanName}
			byPlan[pk] = pr
		}
		pr.MRRCents += monthly
		pr.ActiveCount++

		prov, found := byProvider[row.Provider]
		if !found {
			prov = &ProviderRevenue{Provider: row.Provider}
			byProvider[row.Provider] = prov
		}
		prov.MRRCents += monthly
		prov.ActiveCount++
	}

	if denom := stats.ActiveCount + stats.CanceledInWindow; denom > 0 {
		stats.ChurnRate = float64(stats.CanceledInWindow) / float64(denom)
	}

	for _, pr := range byPlan {
		stats.ByPlan = append(stats.ByPlan, *pr)
	}
	sort.Slice(stats.ByPlan, func(i, j int) bool {
		return stats.ByPlan[i].MRRCents > stats.ByPlan[j].MRRCents
	})
	for _, pr := range byProvider {
		stats.ByProvider = append(stats.ByProvider, *pr)
	}
	sort.Slice(stats.ByProvider, func(i, j int) bool {
		return stats.ByProvider[i].MRRCents > stats.ByProvider[j].MRRCents
	})

	stats.FormattedMRR = FormatCents(stats.MRRCents, a.currency)
	return stats, nil
}

// monthlyCents resolves a row's monthly-equivalent price in minor units.
// Stored price wins; missing prices fall back to the default table keyed by
// plan ID then plan name.
func (a *Aggregator) monthlyCents(row *subscription.Subscription) (int64, bool) {
	var cents int64
	switch {
	case row.PriceAmount != nil:
		cents = *row.PriceAmount
	default:
		money, ok := a.defaults[row.PlanID]
		if !ok {
			money, ok = a.defaults[row.PlanName]
		}
		if !ok {
			a.log.Warn("subscription has no price and no default, excluded from MRR",
				"provider_subscription_id", row.ProviderSubscriptionID,
				"plan_id", row.PlanID, "plan_name", row.PlanName)
			return 0, false
		}
		cents = money.Amount
	}

	interval := "month"
	if row.BillingInterval != nil {
		interval = *row.BillingInterval
	}
	months, err := intervalMonths(interval)
	if err != nil {
		a.log.Warn("subscription interval excluded from MRR",
			"provider_subscription_id", row.ProviderSubscriptionID,
			"interval", interval, "error", err)
		return 0, false
	}
	return int64(float64(cents)/months + 0.5), true
}

// FormatCents renders minor units as a localized currency amount, e.g.
// "$1,234.50". Unknown currency codes fall back to a bare numeric string.
func FormatCents(cents int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return message.NewPrinter(language.English).Sprintf("%.2f %s", float64(cents)/100, code)
	}
	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(float64(cents)/100)))
}

package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store. Every mutation goes through a single
// conditional upsert keyed on (provider, provider_subscription_id) and the
// stored status_changed_at, so a reconciliation sweep reading stale data and
// a webhook landing mid-sweep cannot both apply: the later event time wins
// at the database, not in application code.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

const subscriptionColumns = `
	id, user_id, provider, provider_subscription_id, status, plan_id,
	plan_name, price_amount, currency, billing_interval,
	current_period_start, current_period_end, canceled_at, is_legacy,
	legacy_metadata, status_changed_at, created_at, updated_at`

func (s *PGStore) GetByProviderRef(ctx context.Context, provider Provider, providerSubID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE provider = $1 AND provider_subscription_id = $2`,
		string(provider), providerSubID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return sub, nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY status_changed_at DESC`, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *PGStore) ListSweepable(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE status <> $1
		ORDER BY status_changed_at DESC`, string(StatusCanceled))
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *PGStore) ListAll(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+subscriptionColumns+`
		FROM subscriptions
		ORDER BY status_changed_at DESC`)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *PGStore) ApplyTransition(ctx context.Context, t Transition) (*Subscription, bool, error) {
	if !t.Provider.Valid() {
		return nil, false, ErrInvalidProvider
	}
	if t.ProviderSubscriptionID == "" {
		return nil, false, ErrEmptyProviderID
	}

	var metadata []byte
	if len(t.LegacyMetadata) > 0 {
		var err error
		metadata, err = json.Marshal(t.LegacyMetadata)
		if err != nil {
			return nil, false, fmt.Errorf("encode legacy metadata: %w", err)
		}
	}

	var periodStart *time.Time
	if !t.CurrentPeriodStart.IsZero() {
		periodStart = &t.CurrentPeriodStart
	}

	var canceledAt *time.Time
	if t.Status == StatusCanceled {
		at := t.EventTime
		canceledAt = &at
	}

	// Sparse events merge via COALESCE so a bare cancellation cannot blank
	// plan or period data; the WHERE clause enforces monotonic ordering with
	// cancellation winning exact-timestamp ties.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (
			id, user_id, provider, provider_subscription_id, status, plan_id,
			plan_name, price_amount, currency, billing_interval,
			current_period_start, current_period_end, canceled_at, is_legacy,
			legacy_metadata, status_changed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now())
		ON CONFLICT (provider, provider_subscription_id) DO UPDATE SET
			status = EXCLUDED.status,
			status_changed_at = EXCLUDED.status_changed_at,
			plan_id = COALESCE(NULLIF(EXCLUDED.plan_id, ''), subscriptions.plan_id),
			plan_name = COALESCE(NULLIF(EXCLUDED.plan_name, ''), subscriptions.plan_name),
			price_amount = COALESCE(EXCLUDED.price_amount, subscriptions.price_amount),
			currency = COALESCE(NULLIF(EXCLUDED.currency, ''), subscriptions.currency),
			billing_interval = COALESCE(EXCLUDED.billing_interval, subscriptions.billing_interval),
			current_period_start = COALESCE(EXCLUDED.current_period_start, subscriptions.current_period_start),
			current_period_end = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
			legacy_metadata = COALESCE(EXCLUDED.legacy_metadata, subscriptions.legacy_metadata),
			canceled_at = CASE
				WHEN EXCLUDED.status = 'canceled'
					THEN COALESCE(subscriptions.canceled_at, EXCLUDED.status_changed_at)
				ELSE NULL
			END,
			updated_at = now()
		WHERE subscriptions.status_changed_at < EXCLUDED.status_changed_at
			OR (subscriptions.status_changed_at = EXCLUDED.status_changed_at
				AND subscriptions.status IS DISTINCT FROM EXCLUDED.status
				AND EXCLUDED.status = 'canceled')
		RETURNING`+subscriptionColumns,
		uuid.New(), t.UserID, string(t.Provider), t.ProviderSubscriptionID,
		string(t.Status), t.PlanID, t.PlanName, t.PriceAmount, t.Currency,
		t.BillingInterval, periodStart, t.CurrentPeriodEnd, canceledAt,
		t.IsLegacy, metadata, t.EventTime)

	sub, err := scanSubscription(row)
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Join(ErrStoreFailure, err)
	}

	// The ordering guard rejected the write; the stored row is already at
	// least as advanced as this event.
	current, err := s.GetByProviderRef(ctx, t.Provider, t.ProviderSubscriptionID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanSubscription(row pgRow) (*Subscription, error) {
	var (
		sub         Subscription
		provider    string
		status      string
		periodStart *time.Time
		metadata    []byte
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &provider, &sub.ProviderSubscriptionID,
		&status, &sub.PlanID, &sub.PlanName, &sub.PriceAmount, &sub.Currency,
		&sub.BillingInterval, &periodStart, &sub.CurrentPeriodEnd,
		&sub.CanceledAt, &sub.IsLegacy, &metadata, &sub.StatusChangedAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Provider = Provider(provider)
	sub.Status = Status(status)
	if periodStart != nil {
		sub.CurrentPeriodStart = *periodStart
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sub.LegacyMetadata); err != nil {
			return nil, fmt.Errorf("decode legacy metadata: %w", err)
		}
	}
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]Subscription, error) {
	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

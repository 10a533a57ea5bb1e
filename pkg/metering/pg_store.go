package metering

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed usage store. Atomicity comes from a single
// upsert statement, so concurrent increments never need application-level
// locking.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a usage store over the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("metering: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, userID uuid.UUID, periodStart time.Time) (UsagePeriod, error) {
	const query = `
		SELECT user_id, period_start, characters_used, updated_at
		FROM usage_periods
		WHERE user_id = $1 AND period_start = $2`

	var p UsagePeriod
	err := s.pool.QueryRow(ctx, query, userID, periodStart.UTC()).
		Scan(&p.UserID, &p.PeriodStart, &p.CharactersUsed, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UsagePeriod{UserID: userID, PeriodStart: periodStart.UTC()}, nil
	}
	if err != nil {
		return UsagePeriod{}, errors.Join(ErrStoreFailure, err)
	}
	return p, nil
}

func (s *PGStore) Increment(ctx context.Context, userID uuid.UUID, periodStart time.Time, n int64) (int64, int64, error) {
	if n <= 0 {
		return 0, 0, ErrInvalidAmount
	}

	const query = `
		INSERT INTO usage_periods (user_id, period_start, characters_used, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, period_start) DO UPDATE SET
			characters_used = usage_periods.characters_used + EXCLUDED.characters_used,
			updated_at = now()
		RETURNING characters_used`

	var after int64
	if err := s.pool.QueryRow(ctx, query, userID, periodStart.UTC(), n).Scan(&after); err != nil {
		return 0, 0, errors.Join(ErrStoreFailure, err)
	}
	return after - n, after, nil
}

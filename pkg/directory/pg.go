package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDirectory is a Postgres-backed Directory over the principals table.
// Deployments where the user service lives elsewhere implement the
// Directory port against that service instead; this implementation serves
// setups where principals are provisioned into the billing database.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewPGDirectory creates a directory over the given connection pool.
func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	if pool == nil {
		panic("directory: pgx pool is required")
	}
	return &PGDirectory{pool: pool}
}

func (d *PGDirectory) ResolveUser(ctx context.Context, payerRef string) (uuid.UUID, error) {
	const query = `SELECT id FROM principals WHERE payer_ref = $1`

	var id uuid.UUID
	err := d.pool.QueryRow(ctx, query, payerRef).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrUserNotFound
	}
	if err != nil {
		return uuid.Nil, errors.Join(ErrUnavailable, err)
	}
	return id, nil
}

func (d *PGDirectory) GetEntitlementRole(ctx context.Context, userID uuid.UUID) (Role, error) {
	const query = `SELECT entitlement_role FROM principals WHERE id = $1`

	var role Role
	err := d.pool.QueryRow(ctx, query, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", errors.Join(ErrUnavailable, err)
	}
	return role, nil
}

// SetEntitlementRole updates the role. The admin guard lives in the SQL so
// a racing admin grant can never be clobbered by a role sync.
func (d *PGDirectory) SetEntitlementRole(ctx context.Context, userID uuid.UUID, role Role) error {
	const query = `
		UPDATE principals
		SET entitlement_role = $2, updated_at = now()
		WHERE id = $1 AND entitlement_role <> 'admin'`

	tag, err := d.pool.Exec(ctx, query, userID, role)
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the user is an admin (guard held) or unknown; distinguish.
		if _, err := d.GetEntitlementRole(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

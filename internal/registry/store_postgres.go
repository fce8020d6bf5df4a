package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// PostgresStore persists identities in PostgreSQL. The primary key on address
// makes Create atomic: the first writer wins, later writers see a unique
// violation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, identity Identity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identities (address, role, public_key, verified, rejected, profile_ref, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		identity.Address, identity.Role, identity.PublicKey,
		identity.Verified, identity.Rejected, identity.ProfileRef, identity.RegisteredAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, address domain.Address) (Identity, error) {
	var identity Identity
	err := s.pool.QueryRow(ctx, `
		SELECT address, role, public_key, verified, rejected, profile_ref, registered_at
		FROM identities WHERE address = $1`,
		address,
	).Scan(&identity.Address, &identity.Role, &identity.PublicKey,
		&identity.Verified, &identity.Rejected, &identity.ProfileRef, &identity.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("find identity: %w", err)
	}
	return identity, nil
}

func (s *PostgresStore) Update(ctx context.Context, identity Identity) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE identities
		SET verified = $2, rejected = $3, profile_ref = $4
		WHERE address = $1`,
		identity.Address, identity.Verified, identity.Rejected, identity.ProfileRef,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListProviders(ctx context.Context) ([]Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, role, public_key, verified, rejected, profile_ref, registered_at
		FROM identities WHERE role = $1 ORDER BY address`,
		RoleProvider,
	)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var identity Identity
		if err := rows.Scan(&identity.Address, &identity.Role, &identity.PublicKey,
			&identity.Verified, &identity.Rejected, &identity.ProfileRef, &identity.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, identity)
	}
	return out, rows.Err()
}

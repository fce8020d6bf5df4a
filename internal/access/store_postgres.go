package access

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

// PostgresStore persists grants with optimistic per-pair versioning. The
// version column carries the compare-and-set: an UPDATE guarded on the
// expected version affects zero rows when the CAS loses.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Get(ctx context.Context, patient, provider domain.Address) (Grant, error) {
	var g Grant
	var refs []string
	err := s.pool.QueryRow(ctx, `
		SELECT patient, provider, state, purpose, wrapped_key, content_refs,
		       requested_at, approved_at, revoked_at, version
		FROM access_grants WHERE patient = $1 AND provider = $2`,
		patient, provider,
	).Scan(&g.Patient, &g.Provider, &g.State, &g.Purpose, &g.WrappedKey, &refs,
		&g.RequestedAt, &g.ApprovedAt, &g.RevokedAt, &g.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Grant{}, fmt.Errorf("get grant: %w", err)
	}
	g.ContentRefs = toContentIDs(refs)
	return g, nil
}

func (s *PostgresStore) Put(ctx context.Context, grant Grant, expectedVersion uint64) error {
	refs := toStrings(grant.ContentRefs)

	if expectedVersion == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO access_grants
				(patient, provider, state, purpose, wrapped_key, content_refs,
				 requested_at, approved_at, revoked_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)`,
			grant.Patient, grant.Provider, grant.State, grant.Purpose,
			grant.WrappedKey, refs, grant.RequestedAt, grant.ApprovedAt, grant.RevokedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE access_grants
		SET state = $3, purpose = $4, wrapped_key = $5, content_refs = $6,
		    requested_at = $7, approved_at = $8, revoked_at = $9, version = version + 1
		WHERE patient = $1 AND provider = $2 AND version = $10`,
		grant.Patient, grant.Provider, grant.State, grant.Purpose,
		grant.WrappedKey, refs, grant.RequestedAt, grant.ApprovedAt, grant.RevokedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patient domain.Address) ([]Grant, error) {
	return s.list(ctx, `
		SELECT patient, provider, state, purpose, wrapped_key, content_refs,
		       requested_at, approved_at, revoked_at, version
		FROM access_grants WHERE patient = $1 ORDER BY provider`, patient)
}

func (s *PostgresStore) ListByProvider(ctx context.Context, provider domain.Address) ([]Grant, error) {
	return s.list(ctx, `
		SELECT patient, provider, state, purpose, wrapped_key, content_refs,
		       requested_at, approved_at, revoked_at, version
		FROM access_grants WHERE provider = $1 ORDER BY patient`, provider)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var g Grant
		var refs []string
		if err := rows.Scan(&g.Patient, &g.Provider, &g.State, &g.Purpose, &g.WrappedKey, &refs,
			&g.RequestedAt, &g.ApprovedAt, &g.RevokedAt, &g.Version); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.ContentRefs = toContentIDs(refs)
		out = append(out, g)
	}
	return out, rows.Err()
}

func toStrings(refs []domain.ContentID) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = string(r)
	}
	return out
}

func toContentIDs(refs []string) []domain.ContentID {
	if len(refs) == 0 {
		return nil
	}
	out := make([]domain.ContentID, len(refs))
	for i, r := range refs {
		out[i] = domain.ContentID(r)
	}
	return out
}

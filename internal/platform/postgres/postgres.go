package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"medledger/internal/platform/config"
)

// Connect opens a pgx pool and verifies connectivity.
// Returns nil if the URL is empty (Postgres not configured).
func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// schema is applied on startup. Statements are idempotent so repeated starts
// are safe.
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	address        TEXT PRIMARY KEY,
	role           TEXT NOT NULL,
	public_key     BYTEA,
	verified       BOOLEAN NOT NULL DEFAULT FALSE,
	rejected       BOOLEAN NOT NULL DEFAULT FALSE,
	profile_ref    TEXT NOT NULL DEFAULT '',
	registered_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS identities_role_idx ON identities (role);

CREATE TABLE IF NOT EXISTS access_grants (
	patient       TEXT NOT NULL,
	provider      TEXT NOT NULL,
	state         TEXT NOT NULL,
	purpose       TEXT NOT NULL DEFAULT '',
	wrapped_key   BYTEA,
	content_refs  TEXT[] NOT NULL DEFAULT '{}',
	requested_at  TIMESTAMPTZ NOT NULL,
	approved_at   TIMESTAMPTZ NOT NULL,
	revoked_at    TIMESTAMPTZ NOT NULL,
	version       BIGINT NOT NULL,
	PRIMARY KEY (patient, provider)
);

CREATE INDEX IF NOT EXISTS access_grants_provider_idx ON access_grants (provider);

CREATE TABLE IF NOT EXISTS content_records (
	id           BIGSERIAL PRIMARY KEY,
	patient      TEXT NOT NULL,
	content_ref  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS content_records_patient_idx ON content_records (patient);
`

// EnsureSchema creates the tables the stores expect.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

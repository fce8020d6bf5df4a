package records

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"medledger/pkg/domain"
)

// PostgresStore persists the record index. The table is append-only; rows are
// never updated or deleted.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, record ContentRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_records (patient, content_ref, created_at)
		VALUES ($1, $2, $3)`,
		record.Patient, record.ContentRef, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patient domain.Address) ([]ContentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT patient, content_ref, created_at
		FROM content_records WHERE patient = $1 ORDER BY created_at, content_ref`,
		patient,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []ContentRecord
	for rows.Next() {
		var record ContentRecord
		if err := rows.Scan(&record.Patient, &record.ContentRef, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

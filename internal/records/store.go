package records

import (
	"context"

	"medledger/pkg/domain"
)

// Store persists the append-only record index.
type Store interface {
	Append(ctx context.Context, record ContentRecord) error
	ListByPatient(ctx context.Context, patient domain.Address) ([]ContentRecord, error)
}

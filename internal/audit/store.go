package audit

import (
	"context"

	"medledger/pkg/domain"
)

// Store persists audit entries append-only.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByPatient(ctx context.Context, patient domain.Address) ([]Entry, error)
}

package access

import (
	"context"

	"medledger/pkg/domain"
)

// Store is a versioned key-value store keyed by (patient, provider) with
// atomic compare-and-set semantics per key. No global lock: concurrent
// transitions on different pairs must not block each other.
type Store interface {
	// Get returns the grant, or sentinel.ErrNotFound if the pair has never
	// been written.
	Get(ctx context.Context, patient, provider domain.Address) (Grant, error)

	// Put writes the grant iff the stored version equals expectedVersion
	// (0 means the pair must not exist yet), bumping Version by one.
	// Returns sentinel.ErrConflict when the CAS loses.
	Put(ctx context.Context, grant Grant, expectedVersion uint64) error

	// ListByPatient returns all grants where the address is the patient.
	ListByPatient(ctx context.Context, patient domain.Address) ([]Grant, error)

	// ListByProvider returns all grants where the address is the provider.
	ListByProvider(ctx context.Context, provider domain.Address) ([]Grant, error)
}

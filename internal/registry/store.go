package registry

import (
	"context"

	"medledger/pkg/domain"
)

// Store persists identities. Create must be atomic per address (first writer
// wins, sentinel.ErrConflict for the rest) because registration is permanent.
type Store interface {
	Create(ctx context.Context, identity Identity) error
	Find(ctx context.Context, address domain.Address) (Identity, error)
	Update(ctx context.Context, identity Identity) error
	ListProviders(ctx context.Context) ([]Identity, error)
}

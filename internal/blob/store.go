// Package blob is the boundary to the external content-addressed store.
// Everything written here is already encrypted; the store only ever sees
// ciphertext and opaque ids.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"medledger/pkg/domain"
)

// Store is the minimal put/get surface. Put is content-addressed: identical
// bytes must yield the identical id, so re-uploads are free and references
// are tamper-evident.
type Store interface {
	Put(ctx context.Context, data []byte) (domain.ContentID, error)
	Get(ctx context.Context, id domain.ContentID) ([]byte, error)
}

// ContentAddress computes the id for a byte sequence: hex SHA-256.
func ContentAddress(data []byte) domain.ContentID {
	sum := sha256.Sum256(data)
	return domain.ContentID(hex.EncodeToString(sum[:]))
}

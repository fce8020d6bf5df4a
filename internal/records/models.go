// Package records maintains the append-only per-patient index of content
// references. The index tracks what exists; the access ledger tracks what is
// authorized. Authorization is checked at read time, not write time, except
// that appending on a patient's behalf requires the same approval used for
// reading.
package records

import (
	"time"

	"medledger/pkg/domain"
)

// ContentRecord is one entry in a patient's record index. The content bytes
// live in the external blob store, encrypted client-side before upload; the
// index only ever sees the opaque reference.
type ContentRecord struct {
	Patient    domain.Address
	ContentRef domain.ContentID
	CreatedAt  time.Time
}

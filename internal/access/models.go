// Package access implements the authorization state machine for one
// (patient, provider) pair: request, approve, revoke, and the gated reads
// that hand the wrapped record key to an approved provider.
package access

import (
	"time"

	"medledger/pkg/domain"
)

// State is the grant lifecycle position. There is no terminal state: a pair
// may cycle Requested → Approved → None any number of times.
type State string

const (
	StateNone      State = "none"
	StateRequested State = "requested"
	StateApproved  State = "approved"
)

// Grant is the authoritative record for one (patient, provider) pair. The
// grant holds no history; the event log is the derived audit trail.
//
// Invariant: WrappedKey is non-empty iff State == StateApproved.
type Grant struct {
	Patient     domain.Address
	Provider    domain.Address
	State       State
	Purpose     string
	WrappedKey  []byte
	ContentRefs []domain.ContentID
	RequestedAt time.Time
	ApprovedAt  time.Time
	RevokedAt   time.Time

	// Version supports per-key compare-and-set writes. Writes to different
	// pairs never contend; writes to the same pair serialize on it.
	Version uint64
}

// Package registry tracks which addresses are registered as patients or
// providers, and each provider's admin verification status. Registration is
// keyed by address and permanent: a rejected provider can never re-register
// or be verified later.
package registry

import (
	"time"

	"medledger/pkg/domain"
)

// Role distinguishes record owners from access requesters. An address holds
// at most one role, ever.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
)

// Identity is the ledger-backed record for one registered address.
type Identity struct {
	Address      domain.Address
	Role         Role
	PublicKey    []byte // provider only; ECDH public key for key wrapping
	Verified     bool
	Rejected     bool
	ProfileRef   domain.ContentID
	RegisteredAt time.Time
}

// CanRequestAccess reports whether this identity may submit access requests.
func (i Identity) CanRequestAccess() bool {
	return i.Role == RoleProvider && i.Verified && !i.Rejected
}

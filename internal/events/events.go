// Package events provides the derived event log for access transitions. The
// log is append-only and read-only for consumers: history views replay it,
// but authorization decisions never depend on it.
package events

import (
	"time"

	"medledger/pkg/domain"
)

// Type enumerates access-grant transitions.
type Type string

const (
	TypeRequested Type = "Requested"
	TypeApproved  Type = "Approved"
	TypeRevoked   Type = "Revoked"
)

// Event records one transition on a (patient, provider) pair. Seq is assigned
// by the bus and is strictly increasing across all pairs.
type Event struct {
	Seq       uint64
	Type      Type
	Patient   domain.Address
	Provider  domain.Address
	Timestamp time.Time
}

// Filter selects a subset of events. Zero values match everything.
type Filter struct {
	Type     Type
	Patient  domain.Address
	Provider domain.Address
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Patient != "" && e.Patient != f.Patient {
		return false
	}
	if f.Provider != "" && e.Provider != f.Provider {
		return false
	}
	return true
}

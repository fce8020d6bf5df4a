// Package domain holds small identifier types shared across packages to
// prevent circular imports.
package domain

// Address identifies a principal on the ledger. Addresses are opaque to this
// system; the wallet layer owns their format.
type Address string

// ContentID is a content-addressed reference to an encrypted blob in the
// external store. Identical bytes always yield the identical id.
type ContentID string

func (a Address) String() string   { return string(a) }
func (c ContentID) String() string { return string(c) }

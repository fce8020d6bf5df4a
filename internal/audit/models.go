// Package audit turns ledger transition events into a durable, queryable
// audit trail. It is read-only with respect to authorization: history views
// consume it, access decisions never do.
package audit

import (
	"time"

	"medledger/pkg/domain"
)

// Entry is one audited transition. Keep it transport-agnostic so stores and
// sinks can fan out.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Patient   domain.Address `json:"patient"`
	Provider  domain.Address `json:"provider"`
	Seq       uint64         `json:"seq"`
}

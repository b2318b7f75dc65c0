package subscription

import (
	"context"
	"time"
)

// Snapshot is the view of a user's subscription the rate limiter consumes:
// the active entitlement names and the earliest purchase date among them.
// StartedAt is nil when the user holds no active entitlement.
type Snapshot struct {
	Entitlements []string   `json:"entitlements"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// None returns the snapshot of a user without any active entitlement.
func None() *Snapshot {
	return &Snapshot{}
}

// Provider resolves a user id to its subscription snapshot. A user unknown to
// the provider is a normal None snapshot, not an error; errors mean no
// snapshot could be obtained (transport failures, error statuses other than
// 404, unreadable payloads, missing configuration).
type Provider interface {
	Lookup(ctx context.Context, userID string) (*Snapshot, error)
}

package lock

import (
	"context"
	"time"
)

// Store persists resource claims. Acquire must be atomic: the availability
// check and the claim write happen as one operation so two concurrent
// claimers can never both succeed on a conflicting claim.
type Store interface {
	// Acquire attempts to record the claim. It returns false without
	// mutation when an unexpired conflicting claim exists.
	Acquire(ctx context.Context, claim *Claim) (bool, error)

	// Release removes the claim on slot held by agentID. It returns false
	// when the agent holds no unexpired claim on the slot.
	Release(ctx context.Context, slot, agentID string) (bool, error)

	// ActiveClaims returns the unexpired claims for a slot.
	ActiveClaims(ctx context.Context, slot string, now time.Time) ([]*Claim, error)

	// List returns all unexpired claims.
	List(ctx context.Context, now time.Time) ([]*Claim, error)

	// DeleteExpired removes every claim whose expiry has passed, including
	// unreadable rows, and returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

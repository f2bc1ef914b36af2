// Package lock implements the resource lock manager: time-boxed exclusive
// or shared claims over named resources, with expiry-based reclamation.
//
// The lock store is the single source of truth for resource availability.
// Task claiming, test coordination, and issue assignment all consult it and
// release through it on every exit path.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Claim is a time-boxed right to use a named resource. At most one
// exclusive claim per resource slot may be unexpired at any instant.
type Claim struct {
	Slot         string          `db:"slot" json:"-"`
	ResourceID   string          `db:"resource_id" json:"resource_id"`
	ResourceType v1.ResourceType `db:"resource_type" json:"resource_type"`
	ClaimedBy    string          `db:"claimed_by" json:"claimed_by"`
	Operation    string          `db:"operation" json:"operation"`
	Exclusive    bool            `db:"exclusive" json:"exclusive"`
	ClaimedAt    time.Time       `db:"claimed_at" json:"claimed_at"`
	ExpiresAt    time.Time       `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the claim is past its expiry at the given instant.
func (c *Claim) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ToAPI converts the claim to its wire form.
func (c *Claim) ToAPI() *v1.ResourceClaim {
	return &v1.ResourceClaim{
		ResourceID:   c.ResourceID,
		ResourceType: c.ResourceType,
		ClaimedBy:    c.ClaimedBy,
		Operation:    c.Operation,
		Exclusive:    c.Exclusive,
		ClaimedAt:    c.ClaimedAt,
		ExpiresAt:    c.ExpiresAt,
	}
}

// Slot returns the stable storage slot for a resource identifier. Identical
// resource ids always map to the same slot regardless of length or content.
func Slot(resourceID string) string {
	sum := sha256.Sum256([]byte(resourceID))
	return hex.EncodeToString(sum[:8])
}

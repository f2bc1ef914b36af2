package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore provides in-memory claim storage for tests and
// single-process embedding.
type MemoryStore struct {
	mu     sync.Mutex
	claims map[string]map[string]*Claim // slot -> claimed_by -> claim
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory claim store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: make(map[string]map[string]*Claim)}
}

// Acquire attempts to record the claim under the store mutex.
func (s *MemoryStore) Acquire(ctx context.Context, claim *Claim) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := claim.ClaimedAt
	holders := s.claims[claim.Slot]
	for owner, existing := range holders {
		if existing.Expired(now) {
			delete(holders, owner)
			continue
		}
		if claim.Exclusive || existing.Exclusive {
			return false, nil
		}
	}

	if holders == nil {
		holders = make(map[string]*Claim)
		s.claims[claim.Slot] = holders
	}
	copied := *claim
	holders[claim.ClaimedBy] = &copied
	return true, nil
}

// Release deletes the claim held by agentID on slot.
func (s *MemoryStore) Release(ctx context.Context, slot, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	holders, ok := s.claims[slot]
	if !ok {
		return false, nil
	}
	if _, held := holders[agentID]; !held {
		return false, nil
	}
	delete(holders, agentID)
	if len(holders) == 0 {
		delete(s.claims, slot)
	}
	return true, nil
}

// ActiveClaims returns the unexpired claims for a slot.
func (s *MemoryStore) ActiveClaims(ctx context.Context, slot string, now time.Time) ([]*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*Claim
	for _, claim := range s.claims[slot] {
		if !claim.Expired(now) {
			copied := *claim
			active = append(active, &copied)
		}
	}
	return active, nil
}

// List returns all unexpired claims.
func (s *MemoryStore) List(ctx context.Context, now time.Time) ([]*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*Claim
	for _, holders := range s.claims {
		for _, claim := range holders {
			if !claim.Expired(now) {
				copied := *claim
				active = append(active, &copied)
			}
		}
	}
	return active, nil
}

// DeleteExpired removes every claim past its expiry.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for slot, holders := range s.claims {
		for owner, claim := range holders {
			if claim.Expired(now) {
				delete(holders, owner)
				removed++
			}
		}
		if len(holders) == 0 {
			delete(s.claims, slot)
		}
	}
	return removed, nil
}

package knowledge

import (
	"context"
	"sort"
	"sync"

	"github.com/crewmesh/crewmesh/internal/common/errors"
)

// MemoryStore provides in-memory knowledge storage for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	events  []*LearningEvent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory knowledge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func copyEntry(entry *Entry) *Entry {
	copied := *entry
	copied.Tags = append([]string(nil), entry.Tags...)
	copied.Keywords = append([]string(nil), entry.Keywords...)
	copied.RelatedEntries = append([]string(nil), entry.RelatedEntries...)
	return &copied
}

func (s *MemoryStore) CreateEntry(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; ok {
		return errors.Conflict("knowledge entry already exists: " + entry.ID)
	}
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, errors.NotFound("knowledge entry", id)
	}
	return copyEntry(entry), nil
}

func (s *MemoryStore) UpdateEntry(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return errors.NotFound("knowledge entry", entry.ID)
	}
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, entryType string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entryType != "" && entry.Type != entryType {
			continue
		}
		entries = append(entries, copyEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *MemoryStore) AppendLearningEvent(ctx context.Context, event *LearningEvent, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
	if limit > 0 && len(s.events) > limit {
		s.events = s.events[len(s.events)-limit:]
	}
	return nil
}

func (s *MemoryStore) ListLearningEvents(ctx context.Context) ([]*LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]*LearningEvent, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		copied := *s.events[i]
		events = append(events, &copied)
	}
	return events, nil
}

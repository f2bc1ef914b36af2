package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crewmesh/crewmesh/internal/common/errors"
)

// MemoryStore provides in-memory agent profile storage for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory agent store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]*Agent)}
}

func (s *MemoryStore) Upsert(ctx context.Context, agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *agent
	if existing, ok := s.agents[agent.AgentID]; ok {
		copied.CurrentLoad = existing.CurrentLoad
		copied.RegisteredAt = existing.RegisteredAt
	}
	s.agents[agent.AgentID] = &copied
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, agentID string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return nil, errors.NotFound("agent", agentID)
	}
	copied := *agent
	return &copied, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]*Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		copied := *agent
		agents = append(agents, &copied)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].RegisteredAt.Before(agents[j].RegisteredAt)
	})
	return agents, nil
}

func (s *MemoryStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		return errors.NotFound("agent", agentID)
	}
	delete(s.agents, agentID)
	return nil
}

func (s *MemoryStore) AdjustLoad(ctx context.Context, agentID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return errors.NotFound("agent", agentID)
	}
	agent.CurrentLoad += delta
	if agent.CurrentLoad < 0 {
		agent.CurrentLoad = 0
	}
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

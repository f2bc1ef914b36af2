package testrun

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crewmesh/crewmesh/internal/common/errors"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// MemoryStore provides in-memory test coordination storage for tests.
type MemoryStore struct {
	mu           sync.RWMutex
	suites       map[string]*Suite
	executions   map[string]*Execution
	reservations map[string]*Reservation
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory test store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		suites:       make(map[string]*Suite),
		executions:   make(map[string]*Execution),
		reservations: make(map[string]*Reservation),
	}
}

func (s *MemoryStore) CreateSuite(ctx context.Context, suite *Suite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suites[suite.ID]; ok {
		return errors.Conflict("test suite already exists: " + suite.ID)
	}
	copied := *suite
	s.suites[suite.ID] = &copied
	return nil
}

func (s *MemoryStore) GetSuite(ctx context.Context, id string) (*Suite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	suite, ok := s.suites[id]
	if !ok {
		return nil, errors.NotFound("test suite", id)
	}
	copied := *suite
	return &copied, nil
}

func (s *MemoryStore) ListSuites(ctx context.Context) ([]*Suite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	suites := make([]*Suite, 0, len(s.suites))
	for _, suite := range s.suites {
		copied := *suite
		suites = append(suites, &copied)
	}
	sort.Slice(suites, func(i, j int) bool {
		return suites[i].CreatedAt.Before(suites[j].CreatedAt)
	})
	return suites, nil
}

func (s *MemoryStore) CreateExecution(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.ID]; ok {
		return errors.Conflict("test execution already exists: " + exec.ID)
	}
	copied := *exec
	s.executions[exec.ID] = &copied
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, errors.NotFound("test execution", id)
	}
	copied := *exec
	return &copied, nil
}

func (s *MemoryStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.ID]; !ok {
		return errors.NotFound("test execution", exec.ID)
	}
	copied := *exec
	s.executions[exec.ID] = &copied
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, suiteID string) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	executions := make([]*Execution, 0, len(s.executions))
	for _, exec := range s.executions {
		if suiteID != "" && exec.SuiteID != suiteID {
			continue
		}
		copied := *exec
		executions = append(executions, &copied)
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].ScheduledAt.Before(executions[j].ScheduledAt)
	})
	return executions, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, r *Reservation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, existing := range s.reservations {
		if existing.Environment != r.Environment {
			continue
		}
		if existing.Expired(now) {
			delete(s.reservations, id)
			continue
		}
		return false, nil
	}
	copied := *r
	s.reservations[r.ID] = &copied
	return true, nil
}

func (s *MemoryStore) ReleaseReservation(ctx context.Context, id, reservedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || r.ReservedBy != reservedBy {
		return false, nil
	}
	delete(s.reservations, id)
	return true, nil
}

func (s *MemoryStore) ListReservations(ctx context.Context, now time.Time) ([]*Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var reservations []*Reservation
	for _, r := range s.reservations {
		if !r.Expired(now) {
			copied := *r
			reservations = append(reservations, &copied)
		}
	}
	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].ReservedAt.Before(reservations[j].ReservedAt)
	})
	return reservations, nil
}

func (s *MemoryStore) DeleteExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, r := range s.reservations {
		if r.Expired(now) {
			delete(s.reservations, id)
			removed++
		}
	}
	return removed, nil
}

// ReservedEnvironments returns the environments currently reserved.
// Test helper.
func (s *MemoryStore) ReservedEnvironments() []v1.TestEnvironment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	var envs []v1.TestEnvironment
	for _, r := range s.reservations {
		if !r.Expired(now) {
			envs = append(envs, r.Environment)
		}
	}
	return envs
}

package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crewmesh/crewmesh/internal/common/errors"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// MemoryStore provides in-memory issue storage for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	issues    map[string]*Issue
	solutions map[string]*Solution
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory issue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues:    make(map[string]*Issue),
		solutions: make(map[string]*Solution),
	}
}

func (s *MemoryStore) CreateIssue(ctx context.Context, issue *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.ID]; ok {
		return errors.Conflict("issue already exists: " + issue.ID)
	}
	copied := *issue
	s.issues[issue.ID] = &copied
	return nil
}

func (s *MemoryStore) GetIssue(ctx context.Context, id string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, errors.NotFound("issue", id)
	}
	copied := *issue
	return &copied, nil
}

func (s *MemoryStore) UpdateIssue(ctx context.Context, issue *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.ID]; !ok {
		return errors.NotFound("issue", issue.ID)
	}
	copied := *issue
	s.issues[issue.ID] = &copied
	return nil
}

func (s *MemoryStore) ListIssues(ctx context.Context, status v1.IssueStatus) ([]*Issue, error) {
	return s.listWhere(func(i *Issue) bool {
		return status == "" || i.Status == status
	}), nil
}

func (s *MemoryStore) listWhere(keep func(*Issue) bool) []*Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var issues []*Issue
	for _, issue := range s.issues {
		if keep(issue) {
			copied := *issue
			issues = append(issues, &copied)
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].PriorityRank != issues[j].PriorityRank {
			return issues[i].PriorityRank < issues[j].PriorityRank
		}
		return issues[i].CreatedAt.Before(issues[j].CreatedAt)
	})
	return issues
}

func (s *MemoryStore) CountOpenIssues(ctx context.Context, agentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, issue := range s.issues {
		if issue.AssignedAgent == agentID && issue.Open() && issue.Status != v1.IssueStatusReported {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListStaleAssigned(ctx context.Context, cutoff time.Time) ([]*Issue, error) {
	return s.listWhere(func(i *Issue) bool {
		return i.Status == v1.IssueStatusAssigned && i.UpdatedAt.Before(cutoff)
	}), nil
}

func (s *MemoryStore) CreateSolution(ctx context.Context, solution *Solution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *solution
	s.solutions[solution.ID] = &copied
	return nil
}

func (s *MemoryStore) GetSolution(ctx context.Context, id string) (*Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	solution, ok := s.solutions[id]
	if !ok {
		return nil, errors.NotFound("solution", id)
	}
	copied := *solution
	return &copied, nil
}

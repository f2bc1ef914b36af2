package task

import (
	"context"
	"sort"
	"sync"

	"github.com/crewmesh/crewmesh/internal/common/errors"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// MemoryStore provides in-memory task storage for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (s *MemoryStore) Create(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return errors.Conflict("task already exists: " + task.ID)
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	copied := *task
	return &copied, nil
}

func (s *MemoryStore) Update(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return errors.NotFound("task", task.ID)
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Task, error) {
	return s.listWhere(func(*Task) bool { return true }), nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]*Task, error) {
	return s.listWhere(func(t *Task) bool { return t.Status == v1.TaskStatusPending }), nil
}

func (s *MemoryStore) listWhere(keep func(*Task) bool) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if keep(task) {
			copied := *task
			tasks = append(tasks, &copied)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].PriorityRank != tasks[j].PriorityRank {
			return tasks[i].PriorityRank < tasks[j].PriorityRank
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

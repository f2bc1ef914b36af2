package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/common/errors"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/events"
	"github.com/crewmesh/crewmesh/internal/events/bus"
	"github.com/crewmesh/crewmesh/internal/lock"
	"github.com/crewmesh/crewmesh/internal/observability"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Service coordinates the task ledger. Contention and precondition failures
// on claim/start/complete/fail are reported as a false return with no state
// change; errors are reserved for malformed input and storage faults.
type Service struct {
	store    Store
	locks    *lock.Manager
	registry *registry.Registry
	eventBus bus.EventBus
	logger   *logger.Logger
}

// NewService creates a task coordination service.
func NewService(store Store, locks *lock.Manager, reg *registry.Registry, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		locks:    locks,
		registry: reg,
		eventBus: eventBus,
		logger:   log,
	}
}

// CreateRequest carries the fields for a new task.
type CreateRequest struct {
	Title             string
	Description       string
	Priority          v1.TaskPriority
	CreatedBy         string
	Dependencies      []string
	RequiredResources []string
	Tags              []string
	EstimatedDuration int
	Deadline          *time.Time
}

// Create records a new pending task and returns it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Task, error) {
	if req.Title == "" {
		return nil, errors.ValidationError("title", "must not be empty")
	}
	if req.CreatedBy == "" {
		return nil, errors.ValidationError("created_by", "must not be empty")
	}
	if req.Priority == "" {
		req.Priority = v1.TaskPriorityMedium
	}
	if !ValidPriority(req.Priority) {
		return nil, errors.ValidationError("priority", "unknown priority: "+string(req.Priority))
	}
	if req.EstimatedDuration <= 0 {
		req.EstimatedDuration = 30
	}

	for _, dep := range req.Dependencies {
		if _, err := s.store.Get(ctx, dep); err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.ValidationError("dependencies", "unknown dependency: "+dep)
			}
			return nil, err
		}
	}

	now := time.Now().UTC()
	task := &Task{
		ID:                uuid.New().String(),
		Title:             req.Title,
		Description:       req.Description,
		PriorityRank:      PriorityRank(req.Priority),
		Status:            v1.TaskStatusPending,
		CreatedBy:         req.CreatedBy,
		Dependencies:      req.Dependencies,
		RequiredResources: req.RequiredResources,
		Tags:              req.Tags,
		EstimatedDuration: req.EstimatedDuration,
		Deadline:          req.Deadline,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}

	observability.TasksByTransition.WithLabelValues(string(v1.TaskStatusPending)).Inc()
	s.publish(ctx, events.TaskCreated, task)
	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("title", task.Title),
		zap.String("priority", string(req.Priority)),
		zap.String("created_by", task.CreatedBy))
	return task, nil
}

// Get returns the task by id.
func (s *Service) Get(ctx context.Context, taskID string) (*Task, error) {
	return s.store.Get(ctx, taskID)
}

// List returns every task ordered by (priority, created_at).
func (s *Service) List(ctx context.Context) ([]*Task, error) {
	return s.store.List(ctx)
}

// Claim attempts to assign the pending task to agentID. All required
// resources are claimed as one batch: if any claim is denied, the ones
// already acquired are released and the task stays pending.
func (s *Service) Claim(ctx context.Context, taskID, agentID string) bool {
	log := s.logger.WithTaskID(taskID).WithAgentID(agentID)

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		log.Warn("claim failed: task lookup", zap.Error(err))
		return false
	}
	if task.Status != v1.TaskStatusPending {
		log.Debug("claim denied: task not pending", zap.String("status", string(task.Status)))
		return false
	}
	if !s.dependenciesSatisfied(ctx, task) {
		log.Debug("claim denied: dependencies incomplete")
		return false
	}
	if !s.registry.CanAccept(ctx, agentID, task.Tags) {
		log.Debug("claim denied: agent at capacity or capability mismatch")
		return false
	}

	// Two-phase resource acquisition. Any denial rolls back the batch.
	claimed := make([]string, 0, len(task.RequiredResources))
	for _, resourceID := range task.RequiredResources {
		if !s.locks.Claim(ctx, agentID, resourceID, v1.ResourceTypeFile, "task:"+task.ID, true, task.EstimatedTTL()) {
			for _, acquired := range claimed {
				s.locks.Release(ctx, agentID, acquired)
			}
			log.Info("claim denied: resource unavailable", zap.String("resource_id", resourceID))
			return false
		}
		claimed = append(claimed, resourceID)
	}

	task.Status = v1.TaskStatusClaimed
	task.AssignedTo = agentID
	task.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, task); err != nil {
		for _, acquired := range claimed {
			s.locks.Release(ctx, agentID, acquired)
		}
		log.Error("claim failed: task update", zap.Error(err))
		return false
	}

	s.registry.IncrementLoad(ctx, agentID)
	observability.TasksByTransition.WithLabelValues(string(v1.TaskStatusClaimed)).Inc()
	s.publish(ctx, events.TaskClaimed, task)
	log.Info("task claimed")
	return true
}

// Start moves a claimed task to in_progress. Only the assignee may start it.
func (s *Service) Start(ctx context.Context, taskID, agentID string) bool {
	log := s.logger.WithTaskID(taskID).WithAgentID(agentID)

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		log.Warn("start failed: task lookup", zap.Error(err))
		return false
	}
	if task.Status != v1.TaskStatusClaimed || task.AssignedTo != agentID {
		return false
	}

	task.Status = v1.TaskStatusInProgress
	task.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, task); err != nil {
		log.Error("start failed: task update", zap.Error(err))
		return false
	}

	observability.TasksByTransition.WithLabelValues(string(v1.TaskStatusInProgress)).Inc()
	s.publish(ctx, events.TaskStarted, task)
	log.Info("task started")
	return true
}

// Complete finishes the task, releasing its resources and recording the
// optional results blob. Only the assignee may complete it.
func (s *Service) Complete(ctx context.Context, taskID, agentID string, results map[string]any) bool {
	return s.finish(ctx, taskID, agentID, v1.TaskStatusCompleted, results, "")
}

// Fail marks the task failed with a reason, releasing its resources.
// Only the assignee may fail it.
func (s *Service) Fail(ctx context.Context, taskID, agentID, reason string) bool {
	return s.finish(ctx, taskID, agentID, v1.TaskStatusFailed, nil, reason)
}

func (s *Service) finish(ctx context.Context, taskID, agentID string, status v1.TaskStatus, results map[string]any, reason string) bool {
	log := s.logger.WithTaskID(taskID).WithAgentID(agentID)

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		log.Warn("finish failed: task lookup", zap.Error(err))
		return false
	}
	if task.AssignedTo != agentID {
		return false
	}
	if task.Status != v1.TaskStatusClaimed && task.Status != v1.TaskStatusInProgress {
		return false
	}

	task.Status = status
	task.Results = results
	task.FailureReason = reason
	task.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, task); err != nil {
		log.Error("finish failed: task update", zap.Error(err))
		return false
	}

	for _, resourceID := range task.RequiredResources {
		s.locks.Release(ctx, agentID, resourceID)
	}
	s.registry.DecrementLoad(ctx, agentID)

	observability.TasksByTransition.WithLabelValues(string(status)).Inc()
	if status == v1.TaskStatusCompleted {
		s.publish(ctx, events.TaskCompleted, task)
		log.Info("task completed")
	} else {
		s.publish(ctx, events.TaskFailed, task)
		log.Info("task failed", zap.String("reason", reason))
	}
	return true
}

// ListAvailable returns the pending tasks agentID could claim right now:
// dependencies complete, no required resource held, and at least one tag
// matching the agent's skills. Agents without a registered profile see
// every eligible task.
func (s *Service) ListAvailable(ctx context.Context, agentID string) ([]*Task, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	var skills map[string]bool
	if agent, err := s.registry.Get(ctx, agentID); err == nil {
		skills = agent.SkillSet()
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	available := make([]*Task, 0, len(pending))
	for _, task := range pending {
		if skills != nil && !task.MatchesAgent(skills) {
			continue
		}
		if !s.dependenciesSatisfied(ctx, task) {
			continue
		}
		if !s.resourcesFree(ctx, task) {
			continue
		}
		available = append(available, task)
	}
	return available, nil
}

func (s *Service) dependenciesSatisfied(ctx context.Context, task *Task) bool {
	for _, dep := range task.Dependencies {
		depTask, err := s.store.Get(ctx, dep)
		if err != nil || depTask.Status != v1.TaskStatusCompleted {
			return false
		}
	}
	return true
}

func (s *Service) resourcesFree(ctx context.Context, task *Task) bool {
	for _, resourceID := range task.RequiredResources {
		if !s.locks.IsFree(ctx, resourceID) {
			return false
		}
	}
	return true
}

func (s *Service) publish(ctx context.Context, eventType string, task *Task) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "task-store", map[string]any{
		"task_id":     task.ID,
		"status":      string(task.Status),
		"assigned_to": task.AssignedTo,
	})
	if err := s.eventBus.Publish(ctx, eventType, event); err != nil {
		s.logger.Debug("task event publish failed", zap.Error(err))
	}
}

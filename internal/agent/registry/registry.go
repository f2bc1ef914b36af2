package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/common/errors"
	"github.com/crewmesh/crewmesh/internal/common/logger"
)

// Registry manages agent capability profiles.
type Registry struct {
	store  Store
	logger *logger.Logger
}

// NewRegistry creates an agent registry.
func NewRegistry(store Store, log *logger.Logger) *Registry {
	return &Registry{store: store, logger: log}
}

// Register records or refreshes an agent's capability profile.
// Re-registration keeps the agent's current load.
func (r *Registry) Register(ctx context.Context, agentID string, capabilities, specializations []string, maxConcurrent int) (*Agent, error) {
	if agentID == "" {
		return nil, errors.ValidationError("agent_id", "must not be empty")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	now := time.Now().UTC()
	agent := &Agent{
		AgentID:            agentID,
		Capabilities:       capabilities,
		Specializations:    specializations,
		MaxConcurrentTasks: maxConcurrent,
		RegisteredAt:       now,
		UpdatedAt:          now,
	}
	if err := r.store.Upsert(ctx, agent); err != nil {
		r.logger.Error("failed to register agent", zap.String("agent_id", agentID), zap.Error(err))
		return nil, err
	}

	r.logger.Info("agent registered",
		zap.String("agent_id", agentID),
		zap.Strings("capabilities", capabilities),
		zap.Int("max_concurrent_tasks", maxConcurrent))
	return agent, nil
}

// Deregister removes an agent's profile.
func (r *Registry) Deregister(ctx context.Context, agentID string) error {
	if err := r.store.Delete(ctx, agentID); err != nil {
		return err
	}
	r.logger.Info("agent deregistered", zap.String("agent_id", agentID))
	return nil
}

// Get returns an agent's profile.
func (r *Registry) Get(ctx context.Context, agentID string) (*Agent, error) {
	return r.store.Get(ctx, agentID)
}

// List returns all registered agents, earliest registration first.
func (r *Registry) List(ctx context.Context) ([]*Agent, error) {
	return r.store.List(ctx)
}

// CanAccept reports whether the agent may take on another task. Agents
// without a registered profile are treated as universally capable and
// unconstrained.
func (r *Registry) CanAccept(ctx context.Context, agentID string, tags []string) bool {
	agent, err := r.store.Get(ctx, agentID)
	if err != nil {
		if errors.IsNotFound(err) {
			return true
		}
		r.logger.Error("capability lookup failed", zap.String("agent_id", agentID), zap.Error(err))
		return false
	}
	return agent.HasCapacity() && agent.MatchesAny(tags)
}

// IncrementLoad bumps the agent's load after a successful claim. Unknown
// agents are ignored: they carry no profile to track.
func (r *Registry) IncrementLoad(ctx context.Context, agentID string) {
	if err := r.store.AdjustLoad(ctx, agentID, 1); err != nil && !errors.IsNotFound(err) {
		r.logger.Error("failed to increment agent load", zap.String("agent_id", agentID), zap.Error(err))
	}
}

// DecrementLoad lowers the agent's load after completion or failure.
func (r *Registry) DecrementLoad(ctx context.Context, agentID string) {
	if err := r.store.AdjustLoad(ctx, agentID, -1); err != nil && !errors.IsNotFound(err) {
		r.logger.Error("failed to decrement agent load", zap.String("agent_id", agentID), zap.Error(err))
	}
}

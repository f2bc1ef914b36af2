package lock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/events"
	"github.com/crewmesh/crewmesh/internal/events/bus"
	"github.com/crewmesh/crewmesh/internal/observability"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Manager coordinates resource claims. Contention and I/O failures are both
// reported to callers as a false return; only the logs distinguish them.
type Manager struct {
	store         Store
	eventBus      bus.EventBus
	logger        *logger.Logger
	defaultTTL    time.Duration
	sweepInterval time.Duration
}

// NewManager creates a resource lock manager.
func NewManager(store Store, eventBus bus.EventBus, log *logger.Logger, cfg config.LockConfig) *Manager {
	return &Manager{
		store:         store,
		eventBus:      eventBus,
		logger:        log,
		defaultTTL:    cfg.DefaultTTL(),
		sweepInterval: cfg.SweepInterval(),
	}
}

// Claim attempts to acquire resourceID for agentID. A zero ttl uses the
// configured default. Returns false on contention or storage failure.
func (m *Manager) Claim(ctx context.Context, agentID, resourceID string, resourceType v1.ResourceType, operation string, exclusive bool, ttl time.Duration) bool {
	if agentID == "" || resourceID == "" {
		m.logger.Warn("claim rejected: missing agent or resource id")
		return false
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := time.Now().UTC()
	claim := &Claim{
		Slot:         Slot(resourceID),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		ClaimedBy:    agentID,
		Operation:    operation,
		Exclusive:    exclusive,
		ClaimedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	acquired, err := m.store.Acquire(ctx, claim)
	if err != nil {
		m.logger.Error("claim failed",
			zap.String("resource_id", resourceID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return false
	}
	if !acquired {
		observability.ClaimsDenied.Inc()
		m.logger.Debug("claim denied",
			zap.String("resource_id", resourceID),
			zap.String("agent_id", agentID))
		return false
	}

	observability.ClaimsGranted.Inc()
	m.publish(ctx, events.ResourceClaimed, claim)
	m.logger.Info("resource claimed",
		zap.String("resource_id", resourceID),
		zap.String("agent_id", agentID),
		zap.Bool("exclusive", exclusive),
		zap.Duration("ttl", ttl))
	return true
}

// Release removes agentID's claim on resourceID. It returns false when the
// agent is not the recorded owner, leaving any other claim untouched.
func (m *Manager) Release(ctx context.Context, agentID, resourceID string) bool {
	released, err := m.store.Release(ctx, Slot(resourceID), agentID)
	if err != nil {
		m.logger.Error("release failed",
			zap.String("resource_id", resourceID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return false
	}
	if !released {
		return false
	}

	m.publish(ctx, events.ResourceReleased, &Claim{ResourceID: resourceID, ClaimedBy: agentID})
	m.logger.Info("resource released",
		zap.String("resource_id", resourceID),
		zap.String("agent_id", agentID))
	return true
}

// IsFree reports whether resourceID has no unexpired claim.
func (m *Manager) IsFree(ctx context.Context, resourceID string) bool {
	claims, err := m.store.ActiveClaims(ctx, Slot(resourceID), time.Now().UTC())
	if err != nil {
		// Unreadable state is treated as held; the sweep will reclaim it.
		m.logger.Error("availability check failed",
			zap.String("resource_id", resourceID),
			zap.Error(err))
		return false
	}
	return len(claims) == 0
}

// ActiveClaims returns the unexpired claims on resourceID.
func (m *Manager) ActiveClaims(ctx context.Context, resourceID string) ([]*Claim, error) {
	return m.store.ActiveClaims(ctx, Slot(resourceID), time.Now().UTC())
}

// ListClaims returns every unexpired claim.
func (m *Manager) ListClaims(ctx context.Context) ([]*Claim, error) {
	return m.store.List(ctx, time.Now().UTC())
}

// SweepExpired runs one expiry pass and returns the number of reclaimed claims.
func (m *Manager) SweepExpired(ctx context.Context) int64 {
	removed, err := m.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		m.logger.Error("expiry sweep failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		observability.ClaimsExpired.Add(float64(removed))
		m.logger.Info("expired claims reclaimed", zap.Int64("count", removed))
	}
	return removed
}

// RunSweeper runs the expiry sweep on the configured interval until ctx is
// cancelled. Every iteration is fenced; an error never stops the loop.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.SweepRuns.WithLabelValues("lock_expiry").Inc()
			m.SweepExpired(ctx)
		}
	}
}

func (m *Manager) publish(ctx context.Context, eventType string, claim *Claim) {
	if m.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "lock-manager", map[string]any{
		"resource_id": claim.ResourceID,
		"claimed_by":  claim.ClaimedBy,
	})
	if err := m.eventBus.Publish(ctx, eventType, event); err != nil {
		m.logger.Debug("lock event publish failed", zap.Error(err))
	}
}

package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/errors"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/events"
	"github.com/crewmesh/crewmesh/internal/events/bus"
	"github.com/crewmesh/crewmesh/internal/observability"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Service routes messages between agents. The persisted inbox copy is the
// authoritative delivery; the event bus publish is a best-effort side
// channel whose failure never blocks a send.
type Service struct {
	store    Store
	registry *registry.Registry
	eventBus bus.EventBus
	logger   *logger.Logger

	retention    time.Duration
	broadcastTTL time.Duration
	pollInterval time.Duration
}

// NewService creates a messaging service.
func NewService(store Store, reg *registry.Registry, eventBus bus.EventBus, log *logger.Logger, cfg config.MessagingConfig) *Service {
	return &Service{
		store:        store,
		registry:     reg,
		eventBus:     eventBus,
		logger:       log,
		retention:    time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		broadcastTTL: time.Duration(cfg.BroadcastTTLHours) * time.Hour,
		pollInterval: cfg.PollInterval(),
	}
}

// SendRequest carries the fields for a direct message.
type SendRequest struct {
	From             string
	To               string
	Type             string
	Subject          string
	Content          map[string]any
	Priority         v1.MessagePriority
	Tags             []string
	RequiresResponse bool
	DeadlineMinutes  int
	ThreadID         string
}

// Send persists the message into the sender's outbox and the recipient's
// inbox, then attempts the side-channel publish.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	if req.From == "" {
		return nil, errors.ValidationError("from", "must not be empty")
	}
	if req.To == "" {
		return nil, errors.ValidationError("to", "must not be empty")
	}
	if req.Type == "" {
		return nil, errors.ValidationError("type", "must not be empty")
	}
	if req.Priority == "" {
		req.Priority = v1.MessagePriorityMedium
	}

	now := time.Now().UTC()
	msg := &Message{
		ID:               uuid.New().String(),
		Type:             req.Type,
		Priority:         req.Priority,
		From:             req.From,
		To:               req.To,
		Subject:          req.Subject,
		Content:          req.Content,
		Tags:             req.Tags,
		RequiresResponse: req.RequiresResponse,
		ThreadID:         req.ThreadID,
		State:            StateDelivered,
		Timestamp:        now,
	}
	if req.DeadlineMinutes > 0 {
		deadline := now.Add(time.Duration(req.DeadlineMinutes) * time.Minute)
		msg.ResponseDeadline = &deadline
	}

	if err := s.store.Deliver(ctx, msg); err != nil {
		return nil, err
	}
	observability.MessagesDelivered.Inc()

	s.sideChannel(ctx, events.AgentInboxSubject(req.To), events.MessageSent, msg)
	s.logger.Debug("message sent",
		zap.String("message_id", msg.ID),
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("type", msg.Type))
	return msg, nil
}

// BroadcastRequest carries the fields for a fan-out announcement.
// An empty Targets list means every registered agent except the sender.
type BroadcastRequest struct {
	From     string
	Title    string
	Content  map[string]any
	Priority v1.MessagePriority
	Tags     []string
	Targets  []string
	TTL      time.Duration
}

// Broadcast records the announcement and writes a notification message
// into each recipient's inbox, skipping the sender. It returns the
// broadcast and the recipients it reached.
func (s *Service) Broadcast(ctx context.Context, req BroadcastRequest) (*Broadcast, []string, error) {
	if req.From == "" {
		return nil, nil, errors.ValidationError("from", "must not be empty")
	}
	if req.Title == "" {
		return nil, nil, errors.ValidationError("title", "must not be empty")
	}
	if req.Priority == "" {
		req.Priority = v1.MessagePriorityMedium
	}
	if req.TTL <= 0 {
		req.TTL = s.broadcastTTL
	}

	targets := req.Targets
	if len(targets) == 0 {
		agents, err := s.registry.List(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, agent := range agents {
			targets = append(targets, agent.AgentID)
		}
	}

	now := time.Now().UTC()
	b := &Broadcast{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Content:   req.Content,
		Priority:  req.Priority,
		From:      req.From,
		Tags:      req.Tags,
		CreatedAt: now,
		ExpiresAt: now.Add(req.TTL),
	}
	if err := s.store.SaveBroadcast(ctx, b); err != nil {
		return nil, nil, err
	}

	var reached []string
	for _, target := range targets {
		if target == req.From {
			continue
		}
		_, err := s.Send(ctx, SendRequest{
			From:     req.From,
			To:       target,
			Type:     TypeBroadcastNotice,
			Subject:  req.Title,
			Content:  map[string]any{"broadcast_id": b.ID, "title": b.Title, "content": req.Content},
			Priority: req.Priority,
			Tags:     req.Tags,
		})
		if err != nil {
			s.logger.Error("broadcast delivery failed",
				zap.String("broadcast_id", b.ID),
				zap.String("target", target),
				zap.Error(err))
			continue
		}
		reached = append(reached, target)
	}

	s.sideChannelBroadcast(ctx, b)
	s.logger.Info("broadcast posted",
		zap.String("broadcast_id", b.ID),
		zap.String("from", b.From),
		zap.Int("recipients", len(reached)))
	return b, reached, nil
}

// Inbox returns agentID's full inbox.
func (s *Service) Inbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.store.Inbox(ctx, agentID)
}

// Outbox returns agentID's sent messages.
func (s *Service) Outbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.store.Outbox(ctx, agentID)
}

// Broadcasts returns the unexpired broadcasts.
func (s *Service) Broadcasts(ctx context.Context) ([]*Broadcast, error) {
	return s.store.ListBroadcasts(ctx, time.Now().UTC())
}

// SweepRetention purges messages and broadcasts past the retention window.
func (s *Service) SweepRetention(ctx context.Context) int64 {
	removed, err := s.store.PurgeOlderThan(ctx, time.Now().UTC().Add(-s.retention))
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		s.logger.Info("old messages purged", zap.Int64("count", removed))
	}
	return removed
}

// RunRetentionSweeper purges old records once per hour until ctx is
// cancelled.
func (s *Service) RunRetentionSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.SweepRuns.WithLabelValues("message_retention").Inc()
			s.SweepRetention(ctx)
		}
	}
}

func (s *Service) sideChannel(ctx context.Context, subject, eventType string, msg *Message) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "messaging", map[string]any{
		"message_id": msg.ID,
		"type":       msg.Type,
		"from":       msg.From,
		"to":         msg.To,
		"subject":    msg.Subject,
	})
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		// Inbox delivery is authoritative; the side channel is advisory.
		s.logger.Debug("side-channel publish failed", zap.Error(err))
	}
}

func (s *Service) sideChannelBroadcast(ctx context.Context, b *Broadcast) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(events.BroadcastPosted, "messaging", map[string]any{
		"broadcast_id": b.ID,
		"title":        b.Title,
		"from":         b.From,
	})
	if err := s.eventBus.Publish(ctx, events.BroadcastSubject, event); err != nil {
		s.logger.Debug("side-channel publish failed", zap.Error(err))
	}
}

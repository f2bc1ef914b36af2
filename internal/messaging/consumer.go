package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/observability"
)

// Handler consumes one inbox message. A returned error is logged; the
// message still counts as consumed so a poisoned payload cannot wedge
// the inbox.
type Handler func(ctx context.Context, msg *Message) error

// Consumer polls one agent's inbox and dispatches messages to handlers
// by message type. Consumption is idempotent: the store's delivered-state
// guard ensures each message reaches a handler at most once even when a
// poll overlaps a restart.
type Consumer struct {
	agentID string
	store   Store
	logger  *logger.Logger
	poll    time.Duration

	mu         sync.RWMutex
	handlers   map[string]Handler
	subscribed map[string]bool
}

// Consumer creates an inbox consumer for agentID with the built-in
// default handlers registered.
func (s *Service) Consumer(agentID string) *Consumer {
	c := &Consumer{
		agentID:  agentID,
		store:    s.store,
		logger:   s.logger.WithAgentID(agentID),
		poll:     s.pollInterval,
		handlers: make(map[string]Handler),
	}
	c.handlers[TypeHelpRequest] = c.logOnly("help request received")
	c.handlers[TypeCollaborationInvite] = c.logOnly("collaboration invite received")
	c.handlers[TypeSolutionShare] = c.logOnly("solution shared")
	return c
}

func (c *Consumer) logOnly(msg string) Handler {
	return func(ctx context.Context, m *Message) error {
		c.logger.Info(msg,
			zap.String("message_id", m.ID),
			zap.String("from", m.From),
			zap.String("subject", m.Subject))
		return nil
	}
}

// RegisterHandler installs or replaces the handler for a message type.
func (c *Consumer) RegisterHandler(msgType string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Subscribe restricts consumption to messages whose tags intersect the
// given set. Non-matching messages are moved to the discarded state
// instead of piling up unprocessed. An empty set consumes everything.
func (c *Consumer) Subscribe(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tags) == 0 {
		c.subscribed = nil
		return
	}
	c.subscribed = make(map[string]bool, len(tags))
	for _, tag := range tags {
		c.subscribed[tag] = true
	}
}

// ProcessOnce drains the pending inbox and returns how many messages
// were handed to a handler.
func (c *Consumer) ProcessOnce(ctx context.Context) int {
	pending, err := c.store.PendingInbox(ctx, c.agentID)
	if err != nil {
		c.logger.Error("inbox poll failed", zap.Error(err))
		return 0
	}

	processed := 0
	for _, msg := range pending {
		c.mu.RLock()
		subscribed := c.subscribed
		handler := c.handlers[msg.Type]
		c.mu.RUnlock()

		if !msg.MatchesTags(subscribed) {
			marked, err := c.store.MarkState(ctx, c.agentID, msg.ID, StateDiscarded)
			if err != nil {
				c.logger.Error("discard failed", zap.String("message_id", msg.ID), zap.Error(err))
			} else if marked {
				observability.MessagesProcessed.WithLabelValues("discarded").Inc()
			}
			continue
		}

		// Claim the message before dispatch so a concurrent poller
		// cannot invoke the handler twice.
		marked, err := c.store.MarkState(ctx, c.agentID, msg.ID, StateProcessed)
		if err != nil {
			c.logger.Error("mark processed failed", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		if !marked {
			continue
		}

		if handler == nil {
			c.logger.Debug("no handler for message type",
				zap.String("message_id", msg.ID),
				zap.String("type", msg.Type))
			observability.MessagesProcessed.WithLabelValues("unhandled").Inc()
			processed++
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Error("message handler failed",
				zap.String("message_id", msg.ID),
				zap.String("type", msg.Type),
				zap.Error(err))
			observability.MessagesProcessed.WithLabelValues("handler_error").Inc()
		} else {
			observability.MessagesProcessed.WithLabelValues("ok").Inc()
		}
		processed++
	}
	return processed
}

// Run polls the inbox on the configured interval until ctx is cancelled.
// Every iteration is fenced; a failing poll never stops the loop.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ProcessOnce(ctx)
		}
	}
}

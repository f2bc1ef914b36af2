package messaging

import (
	"context"
	"time"
)

// Store persists messages and broadcasts.
type Store interface {
	// Deliver writes the message to the sender's outbox and the
	// recipient's inbox as one unit.
	Deliver(ctx context.Context, msg *Message) error

	// PendingInbox returns agentID's delivered (unconsumed) inbox
	// messages, oldest first.
	PendingInbox(ctx context.Context, agentID string) ([]*Message, error)

	// Inbox returns agentID's full inbox regardless of state.
	Inbox(ctx context.Context, agentID string) ([]*Message, error)

	// Outbox returns agentID's sent messages.
	Outbox(ctx context.Context, agentID string) ([]*Message, error)

	// MarkState transitions an inbox message out of the delivered state.
	// It returns false when the message is absent or already consumed,
	// which makes consumption idempotent across poller restarts.
	MarkState(ctx context.Context, agentID, messageID string, state State) (bool, error)

	SaveBroadcast(ctx context.Context, b *Broadcast) error

	// ListBroadcasts returns broadcasts that have not expired at now.
	ListBroadcasts(ctx context.Context, now time.Time) ([]*Broadcast, error)

	// PurgeOlderThan removes messages and broadcasts created before the
	// cutoff and returns how many records were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Package messaging implements the persisted inter-agent messaging bus:
// per-agent inboxes and outboxes, a broadcast channel, and polling-based
// at-least-once delivery. A real-time side channel is attempted for low
// latency but the inbox record remains authoritative.
package messaging

import (
	"time"

	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Mailbox identifies which side of a delivery a record belongs to.
type Mailbox string

const (
	MailboxInbox  Mailbox = "inbox"
	MailboxOutbox Mailbox = "outbox"
)

// State tracks an inbox message through consumption. Outbox copies stay
// in the delivered state forever.
type State string

const (
	// StateDelivered means the message is persisted but not yet consumed.
	StateDelivered State = "delivered"
	// StateProcessed means a handler consumed the message.
	StateProcessed State = "processed"
	// StateDiscarded means the recipient's tag subscription filtered the
	// message out. Discarded messages stay readable but are never
	// redelivered, so a changed subscription cannot grow the inbox
	// without bound.
	StateDiscarded State = "discarded"
)

// Known message types with built-in default handlers.
const (
	TypeHelpRequest         = "help_request"
	TypeCollaborationInvite = "collaboration_invite"
	TypeSolutionShare       = "solution_share"
	TypeBroadcastNotice     = "broadcast_notification"
	TypeIssueReport         = "issue_report"
	TypeTestFailure         = "test_failure"
	TypeIntegrationError    = "integration_error"
	TypeResourceConflict    = "resource_conflict"
)

// Message is the internal form of an inter-agent message.
type Message struct {
	ID               string             `db:"id"`
	Type             string             `db:"type"`
	Priority         v1.MessagePriority `db:"priority"`
	From             string             `db:"sender"`
	To               string             `db:"recipient"`
	Subject          string             `db:"subject"`
	Content          map[string]any     `db:"-"`
	Tags             []string           `db:"-"`
	RequiresResponse bool               `db:"requires_response"`
	ResponseDeadline *time.Time         `db:"response_deadline"`
	ThreadID         string             `db:"thread_id"`
	State            State              `db:"state"`
	Timestamp        time.Time          `db:"timestamp"`
	ProcessedAt      *time.Time         `db:"processed_at"`
}

// MatchesTags reports whether the message's tags intersect the
// subscription set. An empty subscription matches everything.
func (m *Message) MatchesTags(subscribed map[string]bool) bool {
	if len(subscribed) == 0 {
		return true
	}
	for _, tag := range m.Tags {
		if subscribed[tag] {
			return true
		}
	}
	return false
}

// ToAPI converts the message to its wire form.
func (m *Message) ToAPI() *v1.Message {
	return &v1.Message{
		ID:               m.ID,
		Type:             m.Type,
		Priority:         m.Priority,
		From:             m.From,
		To:               m.To,
		Subject:          m.Subject,
		Content:          m.Content,
		Tags:             m.Tags,
		RequiresResponse: m.RequiresResponse,
		ResponseDeadline: m.ResponseDeadline,
		ThreadID:         m.ThreadID,
		Timestamp:        m.Timestamp,
	}
}

// Broadcast is a fan-out announcement with a TTL.
type Broadcast struct {
	ID        string             `db:"id"`
	Title     string             `db:"title"`
	Content   map[string]any     `db:"-"`
	Priority  v1.MessagePriority `db:"priority"`
	From      string             `db:"sender"`
	Tags      []string           `db:"-"`
	CreatedAt time.Time          `db:"created_at"`
	ExpiresAt time.Time          `db:"expires_at"`
}

package messaging

import (
	"context"
	"sort"
	"sync"
	"time"
)

type mailboxKey struct {
	owner   string
	mailbox Mailbox
}

// MemoryStore provides in-memory message storage for tests.
type MemoryStore struct {
	mu         sync.RWMutex
	mailboxes  map[mailboxKey][]*Message
	broadcasts []*Broadcast
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mailboxes: make(map[mailboxKey][]*Message)}
}

func (s *MemoryStore) Deliver(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(mailboxKey{msg.From, MailboxOutbox}, msg)
	s.append(mailboxKey{msg.To, MailboxInbox}, msg)
	return nil
}

func (s *MemoryStore) append(key mailboxKey, msg *Message) {
	for _, existing := range s.mailboxes[key] {
		if existing.ID == msg.ID {
			return
		}
	}
	copied := *msg
	copied.State = StateDelivered
	s.mailboxes[key] = append(s.mailboxes[key], &copied)
}

func (s *MemoryStore) PendingInbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.listMailbox(agentID, MailboxInbox, func(m *Message) bool {
		return m.State == StateDelivered
	}), nil
}

func (s *MemoryStore) Inbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.listMailbox(agentID, MailboxInbox, func(*Message) bool { return true }), nil
}

func (s *MemoryStore) Outbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.listMailbox(agentID, MailboxOutbox, func(*Message) bool { return true }), nil
}

func (s *MemoryStore) listMailbox(agentID string, mailbox Mailbox, keep func(*Message) bool) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var messages []*Message
	for _, msg := range s.mailboxes[mailboxKey{agentID, mailbox}] {
		if keep(msg) {
			copied := *msg
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages
}

func (s *MemoryStore) MarkState(ctx context.Context, agentID, messageID string, state State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.mailboxes[mailboxKey{agentID, MailboxInbox}] {
		if msg.ID == messageID && msg.State == StateDelivered {
			now := time.Now().UTC()
			msg.State = state
			msg.ProcessedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SaveBroadcast(ctx context.Context, b *Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *b
	s.broadcasts = append(s.broadcasts, &copied)
	return nil
}

func (s *MemoryStore) ListBroadcasts(ctx context.Context, now time.Time) ([]*Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*Broadcast
	for _, b := range s.broadcasts {
		if b.ExpiresAt.After(now) {
			copied := *b
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, messages := range s.mailboxes {
		kept := messages[:0]
		for _, msg := range messages {
			if msg.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, msg)
		}
		s.mailboxes[key] = kept
	}
	keptBroadcasts := s.broadcasts[:0]
	for _, b := range s.broadcasts {
		if b.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		keptBroadcasts = append(keptBroadcasts, b)
	}
	s.broadcasts = keptBroadcasts
	return removed, nil
}

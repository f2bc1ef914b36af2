package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	sqliteutil "github.com/crewmesh/crewmesh/internal/common/sqlite"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// SQLiteStore provides SQLite-backed message storage. Each delivery is
// two rows in the messages table: an outbox copy owned by the sender and
// an inbox copy owned by the recipient.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the message store and initializes its schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize messaging schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT NOT NULL,
		owner TEXT NOT NULL,
		mailbox TEXT NOT NULL,
		type TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		subject TEXT DEFAULT '',
		content TEXT DEFAULT '{}',
		tags TEXT DEFAULT '[]',
		requires_response INTEGER NOT NULL DEFAULT 0,
		response_deadline TIMESTAMP,
		thread_id TEXT DEFAULT '',
		state TEXT NOT NULL DEFAULT 'delivered',
		timestamp TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		PRIMARY KEY (id, owner, mailbox)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(owner, mailbox, state);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

	CREATE TABLE IF NOT EXISTS broadcasts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT DEFAULT '{}',
		priority TEXT NOT NULL DEFAULT 'medium',
		sender TEXT NOT NULL,
		tags TEXT DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);
	`)
	return err
}

type messageRow struct {
	ID               string     `db:"id"`
	Owner            string     `db:"owner"`
	Mailbox          string     `db:"mailbox"`
	Type             string     `db:"type"`
	Priority         string     `db:"priority"`
	Sender           string     `db:"sender"`
	Recipient        string     `db:"recipient"`
	Subject          string     `db:"subject"`
	Content          string     `db:"content"`
	Tags             string     `db:"tags"`
	RequiresResponse int        `db:"requires_response"`
	ResponseDeadline *time.Time `db:"response_deadline"`
	ThreadID         string     `db:"thread_id"`
	State            string     `db:"state"`
	Timestamp        time.Time  `db:"timestamp"`
	ProcessedAt      *time.Time `db:"processed_at"`
}

func (r *messageRow) toMessage() *Message {
	return &Message{
		ID:               r.ID,
		Type:             r.Type,
		Priority:         v1.MessagePriority(r.Priority),
		From:             r.Sender,
		To:               r.Recipient,
		Subject:          r.Subject,
		Content:          sqliteutil.DecodeMap(r.Content),
		Tags:             sqliteutil.DecodeStrings(r.Tags),
		RequiresResponse: r.RequiresResponse != 0,
		ResponseDeadline: r.ResponseDeadline,
		ThreadID:         r.ThreadID,
		State:            State(r.State),
		Timestamp:        r.Timestamp,
		ProcessedAt:      r.ProcessedAt,
	}
}

// Deliver writes the outbox and inbox copies in a single transaction.
func (s *SQLiteStore) Deliver(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO messages
			(id, owner, mailbox, type, priority, sender, recipient, subject, content,
			 tags, requires_response, response_deadline, thread_id, state, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, owner, mailbox) DO NOTHING`

	for _, copyOf := range []struct {
		owner   string
		mailbox Mailbox
	}{
		{msg.From, MailboxOutbox},
		{msg.To, MailboxInbox},
	} {
		_, err = tx.ExecContext(ctx, insert,
			msg.ID, copyOf.owner, string(copyOf.mailbox),
			msg.Type, string(msg.Priority), msg.From, msg.To, msg.Subject,
			sqliteutil.EncodeMap(msg.Content),
			sqliteutil.EncodeStrings(msg.Tags),
			sqliteutil.BoolToInt(msg.RequiresResponse),
			msg.ResponseDeadline, msg.ThreadID,
			string(StateDelivered), msg.Timestamp)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PendingInbox returns delivered inbox messages, oldest first.
func (s *SQLiteStore) PendingInbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.selectMessages(ctx, `
		SELECT * FROM messages
		WHERE owner = ? AND mailbox = ? AND state = ?
		ORDER BY timestamp`,
		agentID, string(MailboxInbox), string(StateDelivered))
}

// Inbox returns every inbox message regardless of state.
func (s *SQLiteStore) Inbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.selectMessages(ctx, `
		SELECT * FROM messages
		WHERE owner = ? AND mailbox = ?
		ORDER BY timestamp`,
		agentID, string(MailboxInbox))
}

// Outbox returns every sent message.
func (s *SQLiteStore) Outbox(ctx context.Context, agentID string) ([]*Message, error) {
	return s.selectMessages(ctx, `
		SELECT * FROM messages
		WHERE owner = ? AND mailbox = ?
		ORDER BY timestamp`,
		agentID, string(MailboxOutbox))
}

func (s *SQLiteStore) selectMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	messages := make([]*Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].toMessage())
	}
	return messages, nil
}

// MarkState transitions an inbox message out of delivered. The state guard
// in the WHERE clause makes repeated marking a no-op.
func (s *SQLiteStore) MarkState(ctx context.Context, agentID, messageID string, state State) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET state = ?, processed_at = ?
		WHERE id = ? AND owner = ? AND mailbox = ? AND state = ?`,
		string(state), time.Now().UTC(),
		messageID, agentID, string(MailboxInbox), string(StateDelivered))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SaveBroadcast records a broadcast announcement.
func (s *SQLiteStore) SaveBroadcast(ctx context.Context, b *Broadcast) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broadcasts (id, title, content, priority, sender, tags, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, sqliteutil.EncodeMap(b.Content), string(b.Priority),
		b.From, sqliteutil.EncodeStrings(b.Tags), b.CreatedAt, b.ExpiresAt)
	return err
}

type broadcastRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	Priority  string    `db:"priority"`
	Sender    string    `db:"sender"`
	Tags      string    `db:"tags"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// ListBroadcasts returns unexpired broadcasts, newest first.
func (s *SQLiteStore) ListBroadcasts(ctx context.Context, now time.Time) ([]*Broadcast, error) {
	var rows []broadcastRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM broadcasts WHERE expires_at > ? ORDER BY created_at DESC`, now)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	broadcasts := make([]*Broadcast, 0, len(rows))
	for i := range rows {
		r := rows[i]
		broadcasts = append(broadcasts, &Broadcast{
			ID:        r.ID,
			Title:     r.Title,
			Content:   sqliteutil.DecodeMap(r.Content),
			Priority:  v1.MessagePriority(r.Priority),
			From:      r.Sender,
			Tags:      sqliteutil.DecodeStrings(r.Tags),
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return broadcasts, nil
}

// PurgeOlderThan removes messages and broadcasts created before cutoff.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	res, err = s.db.ExecContext(ctx, `DELETE FROM broadcasts WHERE created_at < ?`, cutoff)
	if err != nil {
		return total, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}

package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/crewmesh/crewmesh/internal/common/errors"
	sqliteutil "github.com/crewmesh/crewmesh/internal/common/sqlite"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// SQLiteStore provides SQLite-backed knowledge storage.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the knowledge store and initializes its schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS knowledge_entries (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		content TEXT DEFAULT '',
		tags TEXT DEFAULT '[]',
		keywords TEXT DEFAULT '[]',
		confidence TEXT NOT NULL DEFAULT 'medium',
		created_by TEXT DEFAULT '',
		validation_count INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0,
		related_entries TEXT DEFAULT '[]',
		last_validated_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_type ON knowledge_entries(type);

	CREATE TABLE IF NOT EXISTS learning_events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		context TEXT DEFAULT '{}',
		outcome TEXT DEFAULT '',
		agents TEXT DEFAULT '[]',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_learning_created ON learning_events(created_at);
	`)
	return err
}

type entryRow struct {
	ID              string     `db:"id"`
	Type            string     `db:"type"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	Content         string     `db:"content"`
	Tags            string     `db:"tags"`
	Keywords        string     `db:"keywords"`
	Confidence      string     `db:"confidence"`
	CreatedBy       string     `db:"created_by"`
	ValidationCount int        `db:"validation_count"`
	SuccessRate     float64    `db:"success_rate"`
	RelatedEntries  string     `db:"related_entries"`
	LastValidatedAt *time.Time `db:"last_validated_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r *entryRow) toEntry() *Entry {
	return &Entry{
		ID:              r.ID,
		Type:            r.Type,
		Title:           r.Title,
		Description:     r.Description,
		Content:         r.Content,
		Tags:            sqliteutil.DecodeStrings(r.Tags),
		Keywords:        sqliteutil.DecodeStrings(r.Keywords),
		Confidence:      v1.ConfidenceLevel(r.Confidence),
		CreatedBy:       r.CreatedBy,
		ValidationCount: r.ValidationCount,
		SuccessRate:     r.SuccessRate,
		RelatedEntries:  sqliteutil.DecodeStrings(r.RelatedEntries),
		LastValidatedAt: r.LastValidatedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// CreateEntry inserts a new knowledge entry.
func (s *SQLiteStore) CreateEntry(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries
			(id, type, title, description, content, tags, keywords, confidence,
			 created_by, validation_count, success_rate, related_entries,
			 last_validated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Type, entry.Title, entry.Description, entry.Content,
		sqliteutil.EncodeStrings(entry.Tags),
		sqliteutil.EncodeStrings(entry.Keywords),
		string(entry.Confidence), entry.CreatedBy,
		entry.ValidationCount, entry.SuccessRate,
		sqliteutil.EncodeStrings(entry.RelatedEntries),
		entry.LastValidatedAt, entry.CreatedAt, entry.UpdatedAt)
	return err
}

// GetEntry returns the entry by id.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM knowledge_entries WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("knowledge entry", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toEntry(), nil
}

// UpdateEntry rewrites the entry's mutable fields.
func (s *SQLiteStore) UpdateEntry(ctx context.Context, entry *Entry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries SET
			confidence = ?, validation_count = ?, success_rate = ?,
			related_entries = ?, last_validated_at = ?, updated_at = ?
		WHERE id = ?`,
		string(entry.Confidence), entry.ValidationCount, entry.SuccessRate,
		sqliteutil.EncodeStrings(entry.RelatedEntries),
		entry.LastValidatedAt, entry.UpdatedAt, entry.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("knowledge entry", entry.ID)
	}
	return nil
}

// ListEntries returns entries, optionally filtered by type.
func (s *SQLiteStore) ListEntries(ctx context.Context, entryType string) ([]*Entry, error) {
	query := `SELECT * FROM knowledge_entries ORDER BY created_at`
	args := []any{}
	if entryType != "" {
		query = `SELECT * FROM knowledge_entries WHERE type = ? ORDER BY created_at`
		args = append(args, entryType)
	}
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	entries := make([]*Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toEntry())
	}
	return entries, nil
}

// AppendLearningEvent records the event and trims the log to limit rows.
func (s *SQLiteStore) AppendLearningEvent(ctx context.Context, event *LearningEvent, limit int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO learning_events (id, type, context, outcome, agents, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Type, sqliteutil.EncodeMap(event.Context),
		event.Outcome, sqliteutil.EncodeStrings(event.Agents), event.CreatedAt); err != nil {
		return err
	}

	if limit > 0 {
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM learning_events WHERE id NOT IN (
				SELECT id FROM learning_events ORDER BY created_at DESC LIMIT ?
			)`, limit); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type learningEventRow struct {
	ID        string    `db:"id"`
	Type      string    `db:"type"`
	Context   string    `db:"context"`
	Outcome   string    `db:"outcome"`
	Agents    string    `db:"agents"`
	CreatedAt time.Time `db:"created_at"`
}

// ListLearningEvents returns the log, newest first.
func (s *SQLiteStore) ListLearningEvents(ctx context.Context) ([]*LearningEvent, error) {
	var rows []learningEventRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM learning_events ORDER BY created_at DESC`)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	events := make([]*LearningEvent, 0, len(rows))
	for i := range rows {
		r := rows[i]
		events = append(events, &LearningEvent{
			ID:        r.ID,
			Type:      r.Type,
			Context:   sqliteutil.DecodeMap(r.Context),
			Outcome:   r.Outcome,
			Agents:    sqliteutil.DecodeStrings(r.Agents),
			CreatedAt: r.CreatedAt,
		})
	}
	return events, nil
}

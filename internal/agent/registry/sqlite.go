package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/crewmesh/crewmesh/internal/common/errors"
	sqliteutil "github.com/crewmesh/crewmesh/internal/common/sqlite"
)

// SQLiteStore provides SQLite-backed agent profile storage.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the agent store and initializes its schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize agent schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		capabilities TEXT DEFAULT '[]',
		specializations TEXT DEFAULT '[]',
		current_load INTEGER NOT NULL DEFAULT 0,
		max_concurrent_tasks INTEGER NOT NULL DEFAULT 1,
		registered_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`)
	return err
}

type agentRow struct {
	AgentID            string    `db:"agent_id"`
	Capabilities       string    `db:"capabilities"`
	Specializations    string    `db:"specializations"`
	CurrentLoad        int       `db:"current_load"`
	MaxConcurrentTasks int       `db:"max_concurrent_tasks"`
	RegisteredAt       time.Time `db:"registered_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r *agentRow) toAgent() *Agent {
	return &Agent{
		AgentID:            r.AgentID,
		Capabilities:       sqliteutil.DecodeStrings(r.Capabilities),
		Specializations:    sqliteutil.DecodeStrings(r.Specializations),
		CurrentLoad:        r.CurrentLoad,
		MaxConcurrentTasks: r.MaxConcurrentTasks,
		RegisteredAt:       r.RegisteredAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// Upsert inserts or replaces the agent profile.
func (s *SQLiteStore) Upsert(ctx context.Context, agent *Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents
			(agent_id, capabilities, specializations, current_load, max_concurrent_tasks, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			capabilities = excluded.capabilities,
			specializations = excluded.specializations,
			max_concurrent_tasks = excluded.max_concurrent_tasks,
			updated_at = excluded.updated_at`,
		agent.AgentID,
		sqliteutil.EncodeStrings(agent.Capabilities),
		sqliteutil.EncodeStrings(agent.Specializations),
		agent.CurrentLoad, agent.MaxConcurrentTasks,
		agent.RegisteredAt, agent.UpdatedAt)
	return err
}

// Get returns the agent profile by id.
func (s *SQLiteStore) Get(ctx context.Context, agentID string) (*Agent, error) {
	var row agentRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM agents WHERE agent_id = ?`, agentID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("agent", agentID)
	}
	if err != nil {
		return nil, err
	}
	return row.toAgent(), nil
}

// List returns all registered agents ordered by registration time.
func (s *SQLiteStore) List(ctx context.Context) ([]*Agent, error) {
	var rows []agentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM agents ORDER BY registered_at`)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	agents := make([]*Agent, 0, len(rows))
	for i := range rows {
		agents = append(agents, rows[i].toAgent())
	}
	return agents, nil
}

// Delete removes the agent profile.
func (s *SQLiteStore) Delete(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, agentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("agent", agentID)
	}
	return nil
}

// AdjustLoad changes the agent's current load by delta, clamped at zero.
func (s *SQLiteStore) AdjustLoad(ctx context.Context, agentID string, delta int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents
		SET current_load = MAX(0, current_load + ?), updated_at = ?
		WHERE agent_id = ?`,
		delta, time.Now().UTC(), agentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("agent", agentID)
	}
	return nil
}

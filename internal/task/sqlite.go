package task

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

// SQLiteStore provides SQLite-backed task storage.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the task store and initializes its schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize task schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		priority_rank INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_by TEXT NOT NULL,
		assigned_to TEXT DEFAULT '',
		dependencies TEXT DEFAULT '[]',
		required_resources TEXT DEFAULT '[]',
		tags TEXT DEFAULT '[]',
		estimated_duration INTEGER NOT NULL DEFAULT 30,
		deadline TIMESTAMP,
		results TEXT DEFAULT '{}',
		failure_reason TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_order ON tasks(priority_rank, created_at);
	`)
	return err
}

type taskRow struct {
	ID                string     `db:"id"`
	Title             string     `db:"title"`
	Description       string     `db:"description"`
	PriorityRank      int        `db:"priority_rank"`
	Status            string     `db:"status"`
	CreatedBy         string     `db:"created_by"`
	AssignedTo        string     `db:"assigned_to"`
	Dependencies      string     `db:"dependencies"`
	RequiredResources string     `db:"required_resources"`
	Tags              string     `db:"tags"`
	EstimatedDuration int        `db:"estimated_duration"`
	Deadline          *time.Time `db:"deadline"`
	Results           string     `db:"results"`
	FailureReason     string     `db:"failure_reason"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func (r *taskRow) toTask() *Task {
	return &Task{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		PriorityRank:      r.PriorityRank,
		Status:            v1.TaskStatus(r.Status),
		CreatedBy:         r.CreatedBy,
		AssignedTo:        r.AssignedTo,
		Dependencies:      sqliteutil.DecodeStrings(r.Dependencies),
		RequiredResources: sqliteutil.DecodeStrings(r.RequiredResources),
		Tags:              sqliteutil.DecodeStrings(r.Tags),
		EstimatedDuration: r.EstimatedDuration,
		Deadline:          r.Deadline,
		Results:           sqliteutil.DecodeMap(r.Results),
		FailureReason:     r.FailureReason,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// Create inserts a new task record.
func (s *SQLiteStore) Create(ctx context.Context, task *Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
			(id, title, description, priority_rank, status, created_by, assigned_to,
			 dependencies, required_resources, tags, estimated_duration, deadline,
			 results, failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.PriorityRank, string(task.Status),
		task.CreatedBy, task.AssignedTo,
		sqliteutil.EncodeStrings(task.Dependencies),
		sqliteutil.EncodeStrings(task.RequiredResources),
		sqliteutil.EncodeStrings(task.Tags),
		task.EstimatedDuration, task.Deadline,
		sqliteutil.EncodeMap(task.Results), task.FailureReason,
		task.CreatedAt, task.UpdatedAt)
	return err
}

// Get returns the task by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("task", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toTask(), nil
}

// Update rewrites the task's mutable fields.
func (s *SQLiteStore) Update(ctx context.Context, task *Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = ?, assigned_to = ?, results = ?, failure_reason = ?, updated_at = ?
		WHERE id = ?`,
		string(task.Status), task.AssignedTo,
		sqliteutil.EncodeMap(task.Results), task.FailureReason,
		task.UpdatedAt, task.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("task", task.ID)
	}
	return nil
}

// List returns every task ordered by (priority rank, created_at).
func (s *SQLiteStore) List(ctx context.Context) ([]*Task, error) {
	return s.selectTasks(ctx, `SELECT * FROM tasks ORDER BY priority_rank, created_at`)
}

// ListPending returns pending tasks ordered by (priority rank, created_at).
func (s *SQLiteStore) ListPending(ctx context.Context) ([]*Task, error) {
	return s.selectTasks(ctx,
		`SELECT * FROM tasks WHERE status = ? ORDER BY priority_rank, created_at`,
		string(v1.TaskStatusPending))
}

func (s *SQLiteStore) selectTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	tasks := make([]*Task, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, rows[i].toTask())
	}
	return tasks, nil
}

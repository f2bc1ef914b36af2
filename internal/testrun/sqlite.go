package testrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/crewmesh/crewmesh/internal/common/errors"
	sqliteutil "github.com/crewmesh/crewmesh/internal/common/sqlite"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// SQLiteStore provides SQLite-backed test coordination storage.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the test store and initializes its schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize testrun schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS test_suites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		environment TEXT NOT NULL,
		test_files TEXT DEFAULT '[]',
		dependencies TEXT DEFAULT '[]',
		required_resources TEXT DEFAULT '[]',
		estimated_duration INTEGER NOT NULL DEFAULT 30,
		max_parallel_runs INTEGER NOT NULL DEFAULT 1,
		registered_by TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS test_executions (
		id TEXT PRIMARY KEY,
		suite_id TEXT NOT NULL REFERENCES test_suites(id),
		executor_agent TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		environment TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 5,
		scheduled_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		results TEXT,
		logs TEXT DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_executions_suite ON test_executions(suite_id);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON test_executions(status);

	CREATE TABLE IF NOT EXISTS environment_reservations (
		id TEXT PRIMARY KEY,
		environment TEXT NOT NULL,
		reserved_by TEXT NOT NULL,
		purpose TEXT DEFAULT '',
		reserved_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reservations_env ON environment_reservations(environment, expires_at);
	`)
	return err
}

// CreateSuite inserts a new suite record.
func (s *SQLiteStore) CreateSuite(ctx context.Context, suite *Suite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_suites
			(id, name, type, environment, test_files, dependencies, required_resources,
			 estimated_duration, max_parallel_runs, registered_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		suite.ID, suite.Name, suite.Type, string(suite.Environment),
		sqliteutil.EncodeStrings(suite.TestFiles),
		sqliteutil.EncodeStrings(suite.Dependencies),
		sqliteutil.EncodeStrings(suite.RequiredResources),
		suite.EstimatedDuration, suite.MaxParallelRuns,
		suite.RegisteredBy, suite.CreatedAt)
	return err
}

type suiteRow struct {
	ID                string    `db:"id"`
	Name              string    `db:"name"`
	Type              string    `db:"type"`
	Environment       string    `db:"environment"`
	TestFiles         string    `db:"test_files"`
	Dependencies      string    `db:"dependencies"`
	RequiredResources string    `db:"required_resources"`
	EstimatedDuration int       `db:"estimated_duration"`
	MaxParallelRuns   int       `db:"max_parallel_runs"`
	RegisteredBy      string    `db:"registered_by"`
	CreatedAt         time.Time `db:"created_at"`
}

func (r *suiteRow) toSuite() *Suite {
	return &Suite{
		ID:                r.ID,
		Name:              r.Name,
		Type:              r.Type,
		Environment:       v1.TestEnvironment(r.Environment),
		TestFiles:         sqliteutil.DecodeStrings(r.TestFiles),
		Dependencies:      sqliteutil.DecodeStrings(r.Dependencies),
		RequiredResources: sqliteutil.DecodeStrings(r.RequiredResources),
		EstimatedDuration: r.EstimatedDuration,
		MaxParallelRuns:   r.MaxParallelRuns,
		RegisteredBy:      r.RegisteredBy,
		CreatedAt:         r.CreatedAt,
	}
}

// GetSuite returns the suite by id.
func (s *SQLiteStore) GetSuite(ctx context.Context, id string) (*Suite, error) {
	var row suiteRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM test_suites WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("test suite", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toSuite(), nil
}

// ListSuites returns every registered suite.
func (s *SQLiteStore) ListSuites(ctx context.Context) ([]*Suite, error) {
	var rows []suiteRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM test_suites ORDER BY created_at`)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	suites := make([]*Suite, 0, len(rows))
	for i := range rows {
		suites = append(suites, rows[i].toSuite())
	}
	return suites, nil
}

type executionRow struct {
	ID            string         `db:"id"`
	SuiteID       string         `db:"suite_id"`
	ExecutorAgent string         `db:"executor_agent"`
	Status        string         `db:"status"`
	Environment   string         `db:"environment"`
	Priority      int            `db:"priority"`
	ScheduledAt   time.Time      `db:"scheduled_at"`
	StartedAt     *time.Time     `db:"started_at"`
	CompletedAt   *time.Time     `db:"completed_at"`
	Results       sql.NullString `db:"results"`
	Logs          string         `db:"logs"`
}

func (r *executionRow) toExecution() *Execution {
	exec := &Execution{
		ID:            r.ID,
		SuiteID:       r.SuiteID,
		ExecutorAgent: r.ExecutorAgent,
		Status:        v1.ExecutionStatus(r.Status),
		Environment:   v1.TestEnvironment(r.Environment),
		Priority:      r.Priority,
		ScheduledAt:   r.ScheduledAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		Logs:          sqliteutil.DecodeStrings(r.Logs),
	}
	if r.Results.Valid && r.Results.String != "" {
		var result RunResult
		if err := json.Unmarshal([]byte(r.Results.String), &result); err == nil {
			exec.Results = &result
		}
	}
	return exec
}

func encodeResults(result *RunResult) any {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return string(data)
}

// CreateExecution inserts a new execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, exec *Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_executions
			(id, suite_id, executor_agent, status, environment, priority,
			 scheduled_at, started_at, completed_at, results, logs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.SuiteID, exec.ExecutorAgent, string(exec.Status),
		string(exec.Environment), exec.Priority, exec.ScheduledAt,
		exec.StartedAt, exec.CompletedAt,
		encodeResults(exec.Results), sqliteutil.EncodeStrings(exec.Logs))
	return err
}

// GetExecution returns the execution by id.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var row executionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM test_executions WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("test execution", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toExecution(), nil
}

// UpdateExecution rewrites the execution's mutable fields.
func (s *SQLiteStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE test_executions SET
			executor_agent = ?, status = ?, started_at = ?, completed_at = ?,
			results = ?, logs = ?
		WHERE id = ?`,
		exec.ExecutorAgent, string(exec.Status), exec.StartedAt, exec.CompletedAt,
		encodeResults(exec.Results), sqliteutil.EncodeStrings(exec.Logs), exec.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("test execution", exec.ID)
	}
	return nil
}

// ListExecutions returns executions, optionally filtered by suite.
func (s *SQLiteStore) ListExecutions(ctx context.Context, suiteID string) ([]*Execution, error) {
	query := `SELECT * FROM test_executions ORDER BY scheduled_at`
	args := []any{}
	if suiteID != "" {
		query = `SELECT * FROM test_executions WHERE suite_id = ? ORDER BY scheduled_at`
		args = append(args, suiteID)
	}
	var rows []executionRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	executions := make([]*Execution, 0, len(rows))
	for i := range rows {
		executions = append(executions, rows[i].toExecution())
	}
	return executions, nil
}

// Reserve grants the environment inside one transaction: expired
// reservations for it are purged, then the insert happens only if no
// live reservation remains. The single-writer pool makes the sequence
// atomic.
func (s *SQLiteStore) Reserve(ctx context.Context, r *Reservation) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM environment_reservations WHERE environment = ? AND expires_at <= ?`,
		string(r.Environment), now); err != nil {
		return false, err
	}

	var live int
	if err = tx.GetContext(ctx, &live,
		`SELECT COUNT(*) FROM environment_reservations WHERE environment = ?`,
		string(r.Environment)); err != nil {
		return false, err
	}
	if live > 0 {
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO environment_reservations
			(id, environment, reserved_by, purpose, reserved_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Environment), r.ReservedBy, r.Purpose,
		r.ReservedAt, r.ExpiresAt); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ReleaseReservation drops the reservation if reservedBy owns it.
func (s *SQLiteStore) ReleaseReservation(ctx context.Context, id, reservedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM environment_reservations WHERE id = ? AND reserved_by = ?`,
		id, reservedBy)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type reservationRow struct {
	ID          string    `db:"id"`
	Environment string    `db:"environment"`
	ReservedBy  string    `db:"reserved_by"`
	Purpose     string    `db:"purpose"`
	ReservedAt  time.Time `db:"reserved_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// ListReservations returns unexpired reservations at now.
func (s *SQLiteStore) ListReservations(ctx context.Context, now time.Time) ([]*Reservation, error) {
	var rows []reservationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM environment_reservations WHERE expires_at > ? ORDER BY reserved_at`, now)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	reservations := make([]*Reservation, 0, len(rows))
	for i := range rows {
		r := rows[i]
		reservations = append(reservations, &Reservation{
			ID:          r.ID,
			Environment: v1.TestEnvironment(r.Environment),
			ReservedBy:  r.ReservedBy,
			Purpose:     r.Purpose,
			ReservedAt:  r.ReservedAt,
			ExpiresAt:   r.ExpiresAt,
		})
	}
	return reservations, nil
}

// DeleteExpiredReservations reclaims lapsed reservations.
func (s *SQLiteStore) DeleteExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM environment_reservations WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

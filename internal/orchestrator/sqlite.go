package orchestrator

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

// SQLiteStore provides SQLite-backed issue storage.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the issue store and initializes its schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		priority_rank INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'reported',
		reporter_agent TEXT NOT NULL,
		assigned_agent TEXT DEFAULT '',
		tags TEXT DEFAULT '[]',
		affected_resources TEXT DEFAULT '[]',
		solution_id TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
	CREATE INDEX IF NOT EXISTS idx_issues_assigned ON issues(assigned_agent, status);

	CREATE TABLE IF NOT EXISTS solutions (
		id TEXT PRIMARY KEY,
		issue_id TEXT NOT NULL REFERENCES issues(id),
		description TEXT DEFAULT '',
		resolved_by TEXT NOT NULL,
		knowledge_entry_id TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	`)
	return err
}

type issueRow struct {
	ID                string    `db:"id"`
	Title             string    `db:"title"`
	Description       string    `db:"description"`
	PriorityRank      int       `db:"priority_rank"`
	Status            string    `db:"status"`
	ReporterAgent     string    `db:"reporter_agent"`
	AssignedAgent     string    `db:"assigned_agent"`
	Tags              string    `db:"tags"`
	AffectedResources string    `db:"affected_resources"`
	SolutionID        string    `db:"solution_id"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r *issueRow) toIssue() *Issue {
	return &Issue{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		PriorityRank:      r.PriorityRank,
		Status:            v1.IssueStatus(r.Status),
		ReporterAgent:     r.ReporterAgent,
		AssignedAgent:     r.AssignedAgent,
		Tags:              sqliteutil.DecodeStrings(r.Tags),
		AffectedResources: sqliteutil.DecodeStrings(r.AffectedResources),
		SolutionID:        r.SolutionID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// CreateIssue inserts a new issue record.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *Issue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues
			(id, title, description, priority_rank, status, reporter_agent,
			 assigned_agent, tags, affected_resources, solution_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description, issue.PriorityRank,
		string(issue.Status), issue.ReporterAgent, issue.AssignedAgent,
		sqliteutil.EncodeStrings(issue.Tags),
		sqliteutil.EncodeStrings(issue.AffectedResources),
		issue.SolutionID, issue.CreatedAt, issue.UpdatedAt)
	return err
}

// GetIssue returns the issue by id.
func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*Issue, error) {
	var row issueRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM issues WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("issue", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toIssue(), nil
}

// UpdateIssue rewrites the issue's mutable fields.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, issue *Issue) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE issues SET
			status = ?, assigned_agent = ?, solution_id = ?, updated_at = ?
		WHERE id = ?`,
		string(issue.Status), issue.AssignedAgent, issue.SolutionID,
		issue.UpdatedAt, issue.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("issue", issue.ID)
	}
	return nil
}

// ListIssues returns issues, optionally filtered by status.
func (s *SQLiteStore) ListIssues(ctx context.Context, status v1.IssueStatus) ([]*Issue, error) {
	query := `SELECT * FROM issues ORDER BY priority_rank, created_at`
	args := []any{}
	if status != "" {
		query = `SELECT * FROM issues WHERE status = ? ORDER BY priority_rank, created_at`
		args = append(args, string(status))
	}
	var rows []issueRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	issues := make([]*Issue, 0, len(rows))
	for i := range rows {
		issues = append(issues, rows[i].toIssue())
	}
	return issues, nil
}

// CountOpenIssues returns the agent's open issue count.
func (s *SQLiteStore) CountOpenIssues(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM issues
		WHERE assigned_agent = ? AND status IN (?, ?, ?)`,
		agentID,
		string(v1.IssueStatusAssigned),
		string(v1.IssueStatusInProgress),
		string(v1.IssueStatusTesting))
	return count, err
}

// ListStaleAssigned returns assigned issues not updated since cutoff.
func (s *SQLiteStore) ListStaleAssigned(ctx context.Context, cutoff time.Time) ([]*Issue, error) {
	var rows []issueRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM issues WHERE status = ? AND updated_at < ?
		ORDER BY priority_rank, created_at`,
		string(v1.IssueStatusAssigned), cutoff)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	issues := make([]*Issue, 0, len(rows))
	for i := range rows {
		issues = append(issues, rows[i].toIssue())
	}
	return issues, nil
}

// CreateSolution inserts a solution record.
func (s *SQLiteStore) CreateSolution(ctx context.Context, solution *Solution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solutions (id, issue_id, description, resolved_by, knowledge_entry_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		solution.ID, solution.IssueID, solution.Description,
		solution.ResolvedBy, solution.KnowledgeEntryID, solution.CreatedAt)
	return err
}

// GetSolution returns the solution by id.
func (s *SQLiteStore) GetSolution(ctx context.Context, id string) (*Solution, error) {
	var solution Solution
	err := s.db.GetContext(ctx, &solution, `SELECT * FROM solutions WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("solution", id)
	}
	if err != nil {
		return nil, err
	}
	return &solution, nil
}

package orchestrator

import (
	"context"
	"time"

	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Store persists issues and solutions.
type Store interface {
	CreateIssue(ctx context.Context, issue *Issue) error
	GetIssue(ctx context.Context, id string) (*Issue, error)
	UpdateIssue(ctx context.Context, issue *Issue) error

	// ListIssues returns issues, optionally filtered by status, ordered
	// by (priority rank, created_at).
	ListIssues(ctx context.Context, status v1.IssueStatus) ([]*Issue, error)

	// CountOpenIssues returns how many open issues are assigned to the
	// agent. Used as the workload penalty during assignment scoring.
	CountOpenIssues(ctx context.Context, agentID string) (int, error)

	// ListStaleAssigned returns issues still in the assigned state whose
	// last update is older than the cutoff.
	ListStaleAssigned(ctx context.Context, cutoff time.Time) ([]*Issue, error)

	CreateSolution(ctx context.Context, solution *Solution) error
	GetSolution(ctx context.Context, id string) (*Solution, error)
}

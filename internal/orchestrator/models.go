// Package orchestrator implements the troubleshooting controller: it
// ingests issue reports from the messaging bus, assigns them to agents
// by capability score, and recovers stale assignments.
package orchestrator

import (
	"time"

	"github.com/crewmesh/crewmesh/internal/task"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Issue is one tracked troubleshooting issue.
type Issue struct {
	ID                string         `db:"id"`
	Title             string         `db:"title"`
	Description       string         `db:"description"`
	PriorityRank      int            `db:"priority_rank"`
	Status            v1.IssueStatus `db:"status"`
	ReporterAgent     string         `db:"reporter_agent"`
	AssignedAgent     string         `db:"assigned_agent"`
	Tags              []string       `db:"-"`
	AffectedResources []string       `db:"-"`
	SolutionID        string         `db:"solution_id"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// Open reports whether the issue still needs work.
func (i *Issue) Open() bool {
	switch i.Status {
	case v1.IssueStatusResolved, v1.IssueStatusClosed:
		return false
	}
	return true
}

// ToAPI converts the issue to its wire form.
func (i *Issue) ToAPI() *v1.Issue {
	return &v1.Issue{
		ID:                i.ID,
		Title:             i.Title,
		Description:       i.Description,
		Priority:          task.PriorityLabel(i.PriorityRank),
		Status:            i.Status,
		ReporterAgent:     i.ReporterAgent,
		AssignedAgent:     i.AssignedAgent,
		Tags:              i.Tags,
		AffectedResources: i.AffectedResources,
		SolutionID:        i.SolutionID,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

// Solution records how an issue was resolved.
type Solution struct {
	ID               string    `db:"id"`
	IssueID          string    `db:"issue_id"`
	Description      string    `db:"description"`
	ResolvedBy       string    `db:"resolved_by"`
	KnowledgeEntryID string    `db:"knowledge_entry_id"`
	CreatedAt        time.Time `db:"created_at"`
}

// validTransitions is the issue state machine. Reassignment re-enters
// assigned from assigned.
var validTransitions = map[v1.IssueStatus][]v1.IssueStatus{
	v1.IssueStatusReported:   {v1.IssueStatusAssigned},
	v1.IssueStatusAssigned:   {v1.IssueStatusAssigned, v1.IssueStatusInProgress},
	v1.IssueStatusInProgress: {v1.IssueStatusTesting, v1.IssueStatusResolved},
	v1.IssueStatusTesting:    {v1.IssueStatusInProgress, v1.IssueStatusResolved},
	v1.IssueStatusResolved:   {v1.IssueStatusClosed},
}

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to v1.IssueStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

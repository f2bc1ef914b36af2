// Package task implements the shared task ledger: create, claim, start,
// complete and fail, with dependency and capability gating. Resource claims
// are acquired atomically with the claim transition and released on
// completion or failure.
package task

import (
	"time"

	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Priority ranks. Lower rank sorts first. Labels only appear at the
// serialization boundary; comparing the labels as strings orders them
// wrong ("critical" < "high" < "low" < "medium" lexically).
const (
	rankCritical = 0
	rankHigh     = 1
	rankMedium   = 2
	rankLow      = 3
)

var priorityRanks = map[v1.TaskPriority]int{
	v1.TaskPriorityCritical: rankCritical,
	v1.TaskPriorityHigh:     rankHigh,
	v1.TaskPriorityMedium:   rankMedium,
	v1.TaskPriorityLow:      rankLow,
}

var priorityLabels = map[int]v1.TaskPriority{
	rankCritical: v1.TaskPriorityCritical,
	rankHigh:     v1.TaskPriorityHigh,
	rankMedium:   v1.TaskPriorityMedium,
	rankLow:      v1.TaskPriorityLow,
}

// PriorityRank converts a priority label to its ordered rank. Unknown
// labels rank as medium.
func PriorityRank(p v1.TaskPriority) int {
	if rank, ok := priorityRanks[p]; ok {
		return rank
	}
	return rankMedium
}

// PriorityLabel converts a rank back to its wire label.
func PriorityLabel(rank int) v1.TaskPriority {
	if label, ok := priorityLabels[rank]; ok {
		return label
	}
	return v1.TaskPriorityMedium
}

// ValidPriority reports whether the label is one of the known priorities.
func ValidPriority(p v1.TaskPriority) bool {
	_, ok := priorityRanks[p]
	return ok
}

// Task is the internal form of a coordination task.
type Task struct {
	ID                string        `db:"id"`
	Title             string        `db:"title"`
	Description       string        `db:"description"`
	PriorityRank      int           `db:"priority_rank"`
	Status            v1.TaskStatus `db:"status"`
	CreatedBy         string        `db:"created_by"`
	AssignedTo        string        `db:"assigned_to"`
	Dependencies      []string      `db:"-"`
	RequiredResources []string      `db:"-"`
	Tags              []string      `db:"-"`
	EstimatedDuration int           `db:"estimated_duration"`
	Deadline          *time.Time    `db:"deadline"`
	Results           map[string]any
	FailureReason     string    `db:"failure_reason"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// EstimatedTTL returns the resource claim TTL derived from the task's
// estimated duration.
func (t *Task) EstimatedTTL() time.Duration {
	return time.Duration(t.EstimatedDuration) * time.Minute
}

// MatchesAgent reports whether the task's tags intersect the given skill
// set. A task without tags matches every agent.
func (t *Task) MatchesAgent(skills map[string]bool) bool {
	if len(t.Tags) == 0 {
		return true
	}
	for _, tag := range t.Tags {
		if skills[tag] {
			return true
		}
	}
	return false
}

// ToAPI converts the task to its wire form.
func (t *Task) ToAPI() *v1.Task {
	return &v1.Task{
		ID:                t.ID,
		Title:             t.Title,
		Description:       t.Description,
		Priority:          PriorityLabel(t.PriorityRank),
		Status:            t.Status,
		CreatedBy:         t.CreatedBy,
		AssignedTo:        t.AssignedTo,
		Dependencies:      t.Dependencies,
		RequiredResources: t.RequiredResources,
		Tags:              t.Tags,
		EstimatedDuration: t.EstimatedDuration,
		Deadline:          t.Deadline,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// Package registry tracks agent capability profiles and per-agent load.
//
// Agents register what they can do; the task store and the orchestrator use
// the profiles for capability gating and assignment scoring. An agent with
// no registered profile is treated as universally capable.
package registry

import (
	"time"

	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Agent is a registered agent's capability profile.
type Agent struct {
	AgentID            string    `db:"agent_id"`
	Capabilities       []string  `db:"-"`
	Specializations    []string  `db:"-"`
	CurrentLoad        int       `db:"current_load"`
	MaxConcurrentTasks int       `db:"max_concurrent_tasks"`
	RegisteredAt       time.Time `db:"registered_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// SkillSet returns the union of capabilities and specializations.
func (a *Agent) SkillSet() map[string]bool {
	skills := make(map[string]bool, len(a.Capabilities)+len(a.Specializations))
	for _, c := range a.Capabilities {
		skills[c] = true
	}
	for _, s := range a.Specializations {
		skills[s] = true
	}
	return skills
}

// MatchesAny reports whether any tag intersects the agent's skill set.
func (a *Agent) MatchesAny(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	skills := a.SkillSet()
	for _, tag := range tags {
		if skills[tag] {
			return true
		}
	}
	return false
}

// HasCapacity reports whether the agent can take on another task.
func (a *Agent) HasCapacity() bool {
	return a.CurrentLoad < a.MaxConcurrentTasks
}

// ToAPI converts the agent to its wire form.
func (a *Agent) ToAPI() *v1.AgentProfile {
	return &v1.AgentProfile{
		AgentID:            a.AgentID,
		Capabilities:       a.Capabilities,
		Specializations:    a.Specializations,
		CurrentLoad:        a.CurrentLoad,
		MaxConcurrentTasks: a.MaxConcurrentTasks,
		RegisteredAt:       a.RegisteredAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

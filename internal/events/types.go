// Package events provides event types and utilities for the crewmesh event system.
package events

// Event types for tasks
const (
	TaskCreated   = "task.created"
	TaskClaimed   = "task.claimed"
	TaskStarted   = "task.started"
	TaskCompleted = "task.completed"
	TaskFailed    = "task.failed"
)

// Event types for resource locks
const (
	ResourceClaimed  = "resource.claimed"
	ResourceReleased = "resource.released"
	ResourceExpired  = "resource.expired"
)

// Event types for messaging. Per-agent delivery uses the
// "agent.<id>.inbox" subject; broadcasts use the shared subject below.
const (
	MessageSent      = "message.sent"
	BroadcastPosted  = "broadcast.posted"
	BroadcastSubject = "crewmesh.broadcast"
)

// Event types for test executions
const (
	ExecutionScheduled = "execution.scheduled"
	ExecutionStarted   = "execution.started"
	ExecutionFinished  = "execution.finished"
	ExecutionBlocked   = "execution.blocked"
)

// Event types for knowledge entries
const (
	KnowledgeCreated   = "knowledge.created"
	KnowledgeValidated = "knowledge.validated"
)

// Event types for troubleshooting issues
const (
	IssueReported   = "issue.reported"
	IssueAssigned   = "issue.assigned"
	IssueReassigned = "issue.reassigned"
	IssueResolved   = "issue.resolved"
	IssueClosed     = "issue.closed"
)

// AgentInboxSubject returns the side-channel subject for an agent's inbox.
func AgentInboxSubject(agentID string) string {
	return "crewmesh.agent." + agentID + ".inbox"
}

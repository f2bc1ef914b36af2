// Package v1 defines the shared API types for crewmesh.
// Internal packages convert to/from these types at the serialization boundary.
package v1

import "time"

// TaskPriority is the label form of a task priority.
// Internally priorities are ordered integer ranks; the label only appears
// on the wire and in storage.
type TaskPriority string

const (
	TaskPriorityCritical TaskPriority = "critical"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityLow      TaskPriority = "low"
)

// TaskStatus represents the lifecycle state of a coordination task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusClaimed    TaskStatus = "claimed"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ResourceType classifies a lockable resource.
type ResourceType string

const (
	ResourceTypeFile        ResourceType = "file"
	ResourceTypeDirectory   ResourceType = "directory"
	ResourceTypeConfig      ResourceType = "config"
	ResourceTypeTestEnv     ResourceType = "test_env"
	ResourceTypeAPIEndpoint ResourceType = "api_endpoint"
)

// MessagePriority orders message delivery handling.
type MessagePriority string

const (
	MessagePriorityUrgent MessagePriority = "urgent"
	MessagePriorityHigh   MessagePriority = "high"
	MessagePriorityMedium MessagePriority = "medium"
	MessagePriorityLow    MessagePriority = "low"
)

// ExecutionStatus represents the state of a test execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusScheduled ExecutionStatus = "scheduled"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPassed    ExecutionStatus = "passed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusSkipped   ExecutionStatus = "skipped"
	ExecutionStatusBlocked   ExecutionStatus = "blocked"
)

// TestEnvironment is the closed set of environments executions run in.
type TestEnvironment string

const (
	TestEnvironmentLocal       TestEnvironment = "local"
	TestEnvironmentIsolated    TestEnvironment = "isolated"
	TestEnvironmentStaging     TestEnvironment = "staging"
	TestEnvironmentIntegration TestEnvironment = "integration"
)

// ConfidenceLevel grades how trustworthy a knowledge entry is.
type ConfidenceLevel string

const (
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceVerified ConfidenceLevel = "verified"
)

// IssueStatus represents the lifecycle state of a troubleshooting issue.
type IssueStatus string

const (
	IssueStatusReported   IssueStatus = "reported"
	IssueStatusAssigned   IssueStatus = "assigned"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusTesting    IssueStatus = "testing"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusClosed     IssueStatus = "closed"
)

// Task is the wire form of a coordination task.
type Task struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Priority          TaskPriority `json:"priority"`
	Status            TaskStatus   `json:"status"`
	CreatedBy         string       `json:"created_by"`
	AssignedTo        string       `json:"assigned_to,omitempty"`
	Dependencies      []string     `json:"dependencies,omitempty"`
	RequiredResources []string     `json:"required_resources,omitempty"`
	Tags              []string     `json:"tags,omitempty"`
	EstimatedDuration int          `json:"estimated_duration_minutes"`
	Deadline          *time.Time   `json:"deadline,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// ResourceClaim is the wire form of a resource lock.
type ResourceClaim struct {
	ResourceID   string       `json:"resource_id"`
	ResourceType ResourceType `json:"resource_type"`
	ClaimedBy    string       `json:"claimed_by"`
	Operation    string       `json:"operation"`
	Exclusive    bool         `json:"exclusive"`
	ClaimedAt    time.Time    `json:"claimed_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// AgentProfile is the wire form of an agent capability registration.
type AgentProfile struct {
	AgentID            string    `json:"agent_id"`
	Capabilities       []string  `json:"capabilities"`
	Specializations    []string  `json:"specializations,omitempty"`
	CurrentLoad        int       `json:"current_load"`
	MaxConcurrentTasks int       `json:"max_concurrent_tasks"`
	RegisteredAt       time.Time `json:"registered_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Message is the wire form of an inter-agent message.
type Message struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Priority         MessagePriority `json:"priority"`
	From             string          `json:"from"`
	To               string          `json:"to,omitempty"` // empty means broadcast
	Subject          string          `json:"subject"`
	Content          map[string]any  `json:"content"`
	Tags             []string        `json:"tags,omitempty"`
	RequiresResponse bool            `json:"requires_response"`
	ResponseDeadline *time.Time      `json:"response_deadline,omitempty"`
	ThreadID         string          `json:"thread_id,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Issue is the wire form of a troubleshooting issue.
type Issue struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Priority          TaskPriority `json:"priority"`
	Status            IssueStatus  `json:"status"`
	ReporterAgent     string       `json:"reporter_agent"`
	AssignedAgent     string       `json:"assigned_agent,omitempty"`
	Tags              []string     `json:"tags,omitempty"`
	AffectedResources []string     `json:"affected_resources,omitempty"`
	SolutionID        string       `json:"solution_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

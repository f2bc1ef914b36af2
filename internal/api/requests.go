package api

import (
	"time"

	"github.com/crewmesh/crewmesh/internal/knowledge"
	"github.com/crewmesh/crewmesh/internal/testrun"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title             string          `json:"title" binding:"required"`
	Description       string          `json:"description"`
	Priority          v1.TaskPriority `json:"priority"`
	CreatedBy         string          `json:"created_by" binding:"required"`
	Dependencies      []string        `json:"dependencies"`
	RequiredResources []string        `json:"required_resources"`
	Tags              []string        `json:"tags"`
	EstimatedDuration int             `json:"estimated_duration_minutes"`
	Deadline          *time.Time      `json:"deadline"`
}

// AgentActionRequest identifies the agent behind a task action.
type AgentActionRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// CompleteTaskRequest is the body of POST /tasks/:taskId/complete.
type CompleteTaskRequest struct {
	AgentID string         `json:"agent_id" binding:"required"`
	Results map[string]any `json:"results"`
}

// FailTaskRequest is the body of POST /tasks/:taskId/fail.
type FailTaskRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Reason  string `json:"reason"`
}

// ClaimResourceRequest is the body of POST /locks.
type ClaimResourceRequest struct {
	AgentID      string          `json:"agent_id" binding:"required"`
	ResourceID   string          `json:"resource_id" binding:"required"`
	ResourceType v1.ResourceType `json:"resource_type"`
	Operation    string          `json:"operation"`
	Exclusive    *bool           `json:"exclusive"`
	TTLMinutes   int             `json:"ttl_minutes"`
}

// ReleaseResourceRequest is the body of DELETE /locks/:resourceId.
type ReleaseResourceRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// RegisterAgentRequest is the body of POST /agents.
type RegisterAgentRequest struct {
	AgentID            string   `json:"agent_id" binding:"required"`
	Capabilities       []string `json:"capabilities"`
	Specializations    []string `json:"specializations"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks"`
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	From             string             `json:"from" binding:"required"`
	To               string             `json:"to" binding:"required"`
	Type             string             `json:"type" binding:"required"`
	Subject          string             `json:"subject"`
	Content          map[string]any     `json:"content"`
	Priority         v1.MessagePriority `json:"priority"`
	Tags             []string           `json:"tags"`
	RequiresResponse bool               `json:"requires_response"`
	DeadlineMinutes  int                `json:"deadline_minutes"`
	ThreadID         string             `json:"thread_id"`
}

// BroadcastMessageRequest is the body of POST /broadcasts.
type BroadcastMessageRequest struct {
	From       string             `json:"from" binding:"required"`
	Title      string             `json:"title" binding:"required"`
	Content    map[string]any     `json:"content"`
	Priority   v1.MessagePriority `json:"priority"`
	Tags       []string           `json:"tags"`
	Targets    []string           `json:"targets"`
	TTLMinutes int                `json:"ttl_minutes"`
}

// BroadcastResponse reports a fan-out result.
type BroadcastResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	From      string    `json:"from"`
	Reached   []string  `json:"reached"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterSuiteRequest is the body of POST /testing/suites.
type RegisterSuiteRequest struct {
	Name              string             `json:"name" binding:"required"`
	Type              string             `json:"type"`
	Environment       v1.TestEnvironment `json:"environment" binding:"required"`
	TestFiles         []string           `json:"test_files"`
	Dependencies      []string           `json:"dependencies"`
	RequiredResources []string           `json:"required_resources"`
	EstimatedDuration int                `json:"estimated_duration_minutes"`
	MaxParallelRuns   int                `json:"max_parallel_runs"`
	RegisteredBy      string             `json:"registered_by" binding:"required"`
}

// ScheduleExecutionRequest is the body of POST /testing/suites/:suiteId/schedule.
type ScheduleExecutionRequest struct {
	ExecutorAgent string `json:"executor_agent" binding:"required"`
	Priority      int    `json:"priority"`
}

// SuiteResponse is the wire form of a test suite.
type SuiteResponse struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Type              string             `json:"type"`
	Environment       v1.TestEnvironment `json:"environment"`
	TestFiles         []string           `json:"test_files,omitempty"`
	Dependencies      []string           `json:"dependencies,omitempty"`
	RequiredResources []string           `json:"required_resources,omitempty"`
	EstimatedDuration int                `json:"estimated_duration_minutes"`
	MaxParallelRuns   int                `json:"max_parallel_runs"`
	RegisteredBy      string             `json:"registered_by"`
	CreatedAt         time.Time          `json:"created_at"`
}

func suiteResponse(s *testrun.Suite) SuiteResponse {
	return SuiteResponse{
		ID:                s.ID,
		Name:              s.Name,
		Type:              s.Type,
		Environment:       s.Environment,
		TestFiles:         s.TestFiles,
		Dependencies:      s.Dependencies,
		RequiredResources: s.RequiredResources,
		EstimatedDuration: s.EstimatedDuration,
		MaxParallelRuns:   s.MaxParallelRuns,
		RegisteredBy:      s.RegisteredBy,
		CreatedAt:         s.CreatedAt,
	}
}

// ExecutionResponse is the wire form of a test execution.
type ExecutionResponse struct {
	ID            string             `json:"id"`
	SuiteID       string             `json:"suite_id"`
	ExecutorAgent string             `json:"executor_agent"`
	Status        v1.ExecutionStatus `json:"status"`
	Environment   v1.TestEnvironment `json:"environment"`
	Priority      int                `json:"priority"`
	ScheduledAt   time.Time          `json:"scheduled_at"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	Results       *testrun.RunResult `json:"results,omitempty"`
	Logs          []string           `json:"logs,omitempty"`
}

func executionResponse(e *testrun.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:            e.ID,
		SuiteID:       e.SuiteID,
		ExecutorAgent: e.ExecutorAgent,
		Status:        e.Status,
		Environment:   e.Environment,
		Priority:      e.Priority,
		ScheduledAt:   e.ScheduledAt,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
		Results:       e.Results,
		Logs:          e.Logs,
	}
}

// ReservationResponse is the wire form of an environment reservation.
type ReservationResponse struct {
	ID          string             `json:"id"`
	Environment v1.TestEnvironment `json:"environment"`
	ReservedBy  string             `json:"reserved_by"`
	Purpose     string             `json:"purpose"`
	ReservedAt  time.Time          `json:"reserved_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// CreateEntryRequest is the body of POST /knowledge/entries.
type CreateEntryRequest struct {
	Type        string             `json:"type" binding:"required"`
	Title       string             `json:"title" binding:"required"`
	Description string             `json:"description"`
	Content     string             `json:"content"`
	Tags        []string           `json:"tags"`
	Keywords    []string           `json:"keywords"`
	Confidence  v1.ConfidenceLevel `json:"confidence"`
	CreatedBy   string             `json:"created_by" binding:"required"`
}

// EntryResponse is the wire form of a knowledge entry.
type EntryResponse struct {
	ID              string             `json:"id"`
	Type            string             `json:"type"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Content         string             `json:"content"`
	Tags            []string           `json:"tags,omitempty"`
	Keywords        []string           `json:"keywords,omitempty"`
	Confidence      v1.ConfidenceLevel `json:"confidence"`
	CreatedBy       string             `json:"created_by"`
	ValidationCount int                `json:"validation_count"`
	SuccessRate     float64            `json:"success_rate"`
	RelatedEntries  []string           `json:"related_entries,omitempty"`
	LastValidatedAt *time.Time         `json:"last_validated_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func entryResponse(e *knowledge.Entry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		Type:            e.Type,
		Title:           e.Title,
		Description:     e.Description,
		Content:         e.Content,
		Tags:            e.Tags,
		Keywords:        e.Keywords,
		Confidence:      e.Confidence,
		CreatedBy:       e.CreatedBy,
		ValidationCount: e.ValidationCount,
		SuccessRate:     e.SuccessRate,
		RelatedEntries:  e.RelatedEntries,
		LastValidatedAt: e.LastValidatedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// SearchEntriesRequest is the body of POST /knowledge/search.
type SearchEntriesRequest struct {
	Query         string             `json:"query" binding:"required"`
	Type          string             `json:"type"`
	Tags          []string           `json:"tags"`
	MinConfidence v1.ConfidenceLevel `json:"min_confidence"`
}

// SearchResultResponse pairs an entry with its relevance score.
type SearchResultResponse struct {
	Entry EntryResponse `json:"entry"`
	Score float64       `json:"score"`
}

// MatchPatternsRequest is the body of POST /knowledge/patterns/match.
type MatchPatternsRequest struct {
	IssueText string `json:"issue_text" binding:"required"`
}

// ValidateEntryRequest is the body of POST /knowledge/entries/:entryId/validate.
type ValidateEntryRequest struct {
	Success  bool   `json:"success"`
	Feedback string `json:"feedback"`
}

// LearningEventResponse is the wire form of a learning log record.
type LearningEventResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Context   map[string]any `json:"context,omitempty"`
	Outcome   string         `json:"outcome"`
	Agents    []string       `json:"agents,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReportIssueRequest is the body of POST /issues.
type ReportIssueRequest struct {
	Title             string          `json:"title" binding:"required"`
	Description       string          `json:"description"`
	Priority          v1.TaskPriority `json:"priority"`
	ReporterAgent     string          `json:"reporter_agent" binding:"required"`
	Tags              []string        `json:"tags"`
	AffectedResources []string        `json:"affected_resources"`
}

// TransitionIssueRequest is the body of POST /issues/:issueId/status.
type TransitionIssueRequest struct {
	AgentID string         `json:"agent_id" binding:"required"`
	Status  v1.IssueStatus `json:"status" binding:"required"`
}

// ResolveIssueRequest is the body of POST /issues/:issueId/resolve.
type ResolveIssueRequest struct {
	AgentID     string `json:"agent_id" binding:"required"`
	Description string `json:"description"`
}

// SolutionResponse is the wire form of an issue solution.
type SolutionResponse struct {
	ID               string    `json:"id"`
	IssueID          string    `json:"issue_id"`
	Description      string    `json:"description"`
	ResolvedBy       string    `json:"resolved_by"`
	KnowledgeEntryID string    `json:"knowledge_entry_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/common/errors"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/knowledge"
	"github.com/crewmesh/crewmesh/internal/lock"
	"github.com/crewmesh/crewmesh/internal/messaging"
	"github.com/crewmesh/crewmesh/internal/orchestrator"
	"github.com/crewmesh/crewmesh/internal/task"
	"github.com/crewmesh/crewmesh/internal/testrun"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Handler contains the HTTP handlers for the coordinator API.
type Handler struct {
	tasks     *task.Service
	locks     *lock.Manager
	agents    *registry.Registry
	messages  *messaging.Service
	testing   *testrun.Coordinator
	knowledge *knowledge.Service
	issues    *orchestrator.Service
	logger    *logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(tasks *task.Service, locks *lock.Manager, agents *registry.Registry, messages *messaging.Service, testing *testrun.Coordinator, know *knowledge.Service, issues *orchestrator.Service, log *logger.Logger) *Handler {
	return &Handler{
		tasks:     tasks,
		locks:     locks,
		agents:    agents,
		messages:  messages,
		testing:   testing,
		knowledge: know,
		issues:    issues,
		logger:    log.WithFields(zap.String("component", "api")),
	}
}

// CreateTask creates a new coordination task.
// POST /api/v1/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}

	created, err := h.tasks.Create(c.Request.Context(), task.CreateRequest{
		Title:             req.Title,
		Description:       req.Description,
		Priority:          req.Priority,
		CreatedBy:         req.CreatedBy,
		Dependencies:      req.Dependencies,
		RequiredResources: req.RequiredResources,
		Tags:              req.Tags,
		EstimatedDuration: req.EstimatedDuration,
		Deadline:          req.Deadline,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created.ToAPI())
}

// GetTask returns a task by id.
// GET /api/v1/tasks/:taskId
func (h *Handler) GetTask(c *gin.Context) {
	t, err := h.tasks.Get(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t.ToAPI())
}

// ListTasks returns all tasks, best-priority first.
// GET /api/v1/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": toAPITasks(tasks), "total": len(tasks)})
}

// ListAvailableTasks returns the tasks an agent could claim right now.
// GET /api/v1/agents/:agentId/available-tasks
func (h *Handler) ListAvailableTasks(c *gin.Context) {
	tasks, err := h.tasks.ListAvailable(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": toAPITasks(tasks), "total": len(tasks)})
}

func toAPITasks(tasks []*task.Task) []*v1.Task {
	out := make([]*v1.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ToAPI())
	}
	return out
}

// ClaimTask atomically claims a task and its required resources.
// POST /api/v1/tasks/:taskId/claim
func (h *Handler) ClaimTask(c *gin.Context) {
	var req AgentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}

	taskID := c.Param("taskId")
	if !h.tasks.Claim(c.Request.Context(), taskID, req.AgentID) {
		respondError(c, errors.Conflict("task could not be claimed"))
		return
	}
	t, err := h.tasks.Get(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t.ToAPI())
}

// StartTask moves a claimed task to in_progress.
// POST /api/v1/tasks/:taskId/start
func (h *Handler) StartTask(c *gin.Context) {
	var req AgentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	if !h.tasks.Start(c.Request.Context(), c.Param("taskId"), req.AgentID) {
		respondError(c, errors.Conflict("task could not be started"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(v1.TaskStatusInProgress)})
}

// CompleteTask finishes a task and releases its resources.
// POST /api/v1/tasks/:taskId/complete
func (h *Handler) CompleteTask(c *gin.Context) {
	var req CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	if !h.tasks.Complete(c.Request.Context(), c.Param("taskId"), req.AgentID, req.Results) {
		respondError(c, errors.Conflict("task could not be completed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(v1.TaskStatusCompleted)})
}

// FailTask marks a task failed and releases its resources.
// POST /api/v1/tasks/:taskId/fail
func (h *Handler) FailTask(c *gin.Context) {
	var req FailTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	if !h.tasks.Fail(c.Request.Context(), c.Param("taskId"), req.AgentID, req.Reason) {
		respondError(c, errors.Conflict("task could not be failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(v1.TaskStatusFailed)})
}

// ClaimResource acquires a standalone resource lock.
// POST /api/v1/locks
func (h *Handler) ClaimResource(c *gin.Context) {
	var req ClaimResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}

	resourceType := req.ResourceType
	if resourceType == "" {
		resourceType = v1.ResourceTypeFile
	}
	exclusive := true
	if req.Exclusive != nil {
		exclusive = *req.Exclusive
	}

	ttl := time.Duration(req.TTLMinutes) * time.Minute
	if !h.locks.Claim(c.Request.Context(), req.AgentID, req.ResourceID, resourceType, req.Operation, exclusive, ttl) {
		respondError(c, errors.Conflict("resource is already claimed"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"resource_id": req.ResourceID, "claimed_by": req.AgentID})
}

// ReleaseResource releases a resource lock held by the agent.
// DELETE /api/v1/locks/:resourceId
func (h *Handler) ReleaseResource(c *gin.Context) {
	var req ReleaseResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	if !h.locks.Release(c.Request.Context(), req.AgentID, c.Param("resourceId")) {
		respondError(c, errors.Conflict("resource is not held by this agent"))
		return
	}
	c.Status(http.StatusNoContent)
}

// ListLocks returns all active claims.
// GET /api/v1/locks
func (h *Handler) ListLocks(c *gin.Context) {
	claims, err := h.locks.ListClaims(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]*v1.ResourceClaim, 0, len(claims))
	for _, claim := range claims {
		out = append(out, claim.ToAPI())
	}
	c.JSON(http.StatusOK, gin.H{"claims": out, "total": len(out)})
}

// RegisterAgent records an agent's capability profile.
// POST /api/v1/agents
func (h *Handler) RegisterAgent(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	agent, err := h.agents.Register(c.Request.Context(), req.AgentID, req.Capabilities, req.Specializations, req.MaxConcurrentTasks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent.ToAPI())
}

// ListAgents returns registered agents with liveness flags.
// GET /api/v1/agents
func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.agents.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	type agentWithLiveness struct {
		*v1.AgentProfile
		Active bool `json:"active"`
	}
	out := make([]agentWithLiveness, 0, len(agents))
	for _, agent := range agents {
		out = append(out, agentWithLiveness{
			AgentProfile: agent.ToAPI(),
			Active:       h.issues.IsActive(agent.AgentID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"agents": out, "total": len(out)})
}

// DeregisterAgent removes an agent's profile.
// DELETE /api/v1/agents/:agentId
func (h *Handler) DeregisterAgent(c *gin.Context) {
	if err := h.agents.Deregister(c.Request.Context(), c.Param("agentId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendMessage delivers a direct message.
// POST /api/v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	msg, err := h.messages.Send(c.Request.Context(), messaging.SendRequest{
		From:             req.From,
		To:               req.To,
		Type:             req.Type,
		Subject:          req.Subject,
		Content:          req.Content,
		Priority:         req.Priority,
		Tags:             req.Tags,
		RequiresResponse: req.RequiresResponse,
		DeadlineMinutes:  req.DeadlineMinutes,
		ThreadID:         req.ThreadID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// Issue-bearing message types also feed the troubleshooting pipeline.
	if _, err := h.issues.Ingest(c.Request.Context(), msg); err != nil {
		h.logger.Error("issue ingest failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, msg.ToAPI())
}

// GetInbox returns an agent's inbox.
// GET /api/v1/agents/:agentId/inbox
func (h *Handler) GetInbox(c *gin.Context) {
	msgs, err := h.messages.Inbox(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toAPIMessages(msgs), "total": len(msgs)})
}

// GetOutbox returns an agent's outbox.
// GET /api/v1/agents/:agentId/outbox
func (h *Handler) GetOutbox(c *gin.Context) {
	msgs, err := h.messages.Outbox(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toAPIMessages(msgs), "total": len(msgs)})
}

func toAPIMessages(msgs []*messaging.Message) []*v1.Message {
	out := make([]*v1.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToAPI())
	}
	return out
}

// BroadcastMessage fans a notification out to agents.
// POST /api/v1/broadcasts
func (h *Handler) BroadcastMessage(c *gin.Context) {
	var req BroadcastMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	b, reached, err := h.messages.Broadcast(c.Request.Context(), messaging.BroadcastRequest{
		From:     req.From,
		Title:    req.Title,
		Content:  req.Content,
		Priority: req.Priority,
		Tags:     req.Tags,
		Targets:  req.Targets,
		TTL:      time.Duration(req.TTLMinutes) * time.Minute,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, BroadcastResponse{
		ID:        b.ID,
		Title:     b.Title,
		From:      b.From,
		Reached:   reached,
		CreatedAt: b.CreatedAt,
		ExpiresAt: b.ExpiresAt,
	})
}

// ListBroadcasts returns unexpired broadcasts.
// GET /api/v1/broadcasts
func (h *Handler) ListBroadcasts(c *gin.Context) {
	broadcasts, err := h.messages.Broadcasts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"broadcasts": broadcasts, "total": len(broadcasts)})
}

// RegisterSuite records a new test suite.
// POST /api/v1/testing/suites
func (h *Handler) RegisterSuite(c *gin.Context) {
	var req RegisterSuiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	suite, err := h.testing.RegisterSuite(c.Request.Context(), testrun.RegisterSuiteRequest{
		Name:              req.Name,
		Type:              req.Type,
		Environment:       req.Environment,
		TestFiles:         req.TestFiles,
		Dependencies:      req.Dependencies,
		RequiredResources: req.RequiredResources,
		EstimatedDuration: req.EstimatedDuration,
		MaxParallelRuns:   req.MaxParallelRuns,
		RegisteredBy:      req.RegisteredBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, suiteResponse(suite))
}

// ListSuites returns all registered suites.
// GET /api/v1/testing/suites
func (h *Handler) ListSuites(c *gin.Context) {
	suites, err := h.testing.ListSuites(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]SuiteResponse, 0, len(suites))
	for _, s := range suites {
		out = append(out, suiteResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"suites": out, "total": len(out)})
}

// ScheduleExecution queues a run of a suite.
// POST /api/v1/testing/suites/:suiteId/schedule
func (h *Handler) ScheduleExecution(c *gin.Context) {
	var req ScheduleExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	exec, err := h.testing.Schedule(c.Request.Context(), c.Param("suiteId"), req.ExecutorAgent, req.Priority)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, executionResponse(exec))
}

// GetExecution returns one execution.
// GET /api/v1/testing/executions/:executionId
func (h *Handler) GetExecution(c *gin.Context) {
	exec, err := h.testing.GetExecution(c.Request.Context(), c.Param("executionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, executionResponse(exec))
}

// ListExecutions returns executions, optionally for one suite.
// GET /api/v1/testing/executions?suite_id=...
func (h *Handler) ListExecutions(c *gin.Context) {
	execs, err := h.testing.ListExecutions(c.Request.Context(), c.Query("suite_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]ExecutionResponse, 0, len(execs))
	for _, e := range execs {
		out = append(out, executionResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"executions": out, "total": len(out)})
}

// ListReservations returns live environment reservations.
// GET /api/v1/testing/reservations
func (h *Handler) ListReservations(c *gin.Context) {
	reservations, err := h.testing.ListReservations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]ReservationResponse, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, ReservationResponse{
			ID:          r.ID,
			Environment: r.Environment,
			ReservedBy:  r.ReservedBy,
			Purpose:     r.Purpose,
			ReservedAt:  r.ReservedAt,
			ExpiresAt:   r.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"reservations": out, "total": len(out)})
}

// CreateEntry records a new knowledge entry.
// POST /api/v1/knowledge/entries
func (h *Handler) CreateEntry(c *gin.Context) {
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	entry, err := h.knowledge.CreateEntry(c.Request.Context(), knowledge.CreateRequest{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Tags:        req.Tags,
		Keywords:    req.Keywords,
		Confidence:  req.Confidence,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entryResponse(entry))
}

// GetEntry returns one knowledge entry.
// GET /api/v1/knowledge/entries/:entryId
func (h *Handler) GetEntry(c *gin.Context) {
	entry, err := h.knowledge.GetEntry(c.Request.Context(), c.Param("entryId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entryResponse(entry))
}

// SearchEntries scores entries against a query.
// POST /api/v1/knowledge/search
func (h *Handler) SearchEntries(c *gin.Context) {
	var req SearchEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	results, err := h.knowledge.Search(c.Request.Context(), knowledge.SearchRequest{
		Query:         req.Query,
		Type:          req.Type,
		Tags:          req.Tags,
		MinConfidence: req.MinConfidence,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]SearchResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResultResponse{Entry: entryResponse(r.Entry), Score: r.Score})
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "total": len(out)})
}

// MatchPatterns matches issue text against known failure patterns.
// POST /api/v1/knowledge/patterns/match
func (h *Handler) MatchPatterns(c *gin.Context) {
	var req MatchPatternsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	matches, err := h.knowledge.FindMatchingPatterns(c.Request.Context(), req.IssueText)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "total": len(matches)})
}

// ValidateEntry records a validation outcome against an entry.
// POST /api/v1/knowledge/entries/:entryId/validate
func (h *Handler) ValidateEntry(c *gin.Context) {
	var req ValidateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	entryID := c.Param("entryId")
	if !h.knowledge.Validate(c.Request.Context(), entryID, req.Success, req.Feedback) {
		respondError(c, errors.NotFound("knowledge entry", entryID))
		return
	}
	entry, err := h.knowledge.GetEntry(c.Request.Context(), entryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entryResponse(entry))
}

// ListLearningEvents returns the bounded learning log, newest first.
// GET /api/v1/knowledge/learning-events
func (h *Handler) ListLearningEvents(c *gin.Context) {
	events, err := h.knowledge.LearningEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]LearningEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, LearningEventResponse{
			ID:        e.ID,
			Type:      e.Type,
			Context:   e.Context,
			Outcome:   e.Outcome,
			Agents:    e.Agents,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out, "total": len(out)})
}

// ReportIssue records a troubleshooting issue and assigns it.
// POST /api/v1/issues
func (h *Handler) ReportIssue(c *gin.Context) {
	var req ReportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	issue, err := h.issues.ReportIssue(c.Request.Context(), orchestrator.ReportRequest{
		Title:             req.Title,
		Description:       req.Description,
		Priority:          req.Priority,
		ReporterAgent:     req.ReporterAgent,
		Tags:              req.Tags,
		AffectedResources: req.AffectedResources,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issue.ToAPI())
}

// GetIssue returns one issue.
// GET /api/v1/issues/:issueId
func (h *Handler) GetIssue(c *gin.Context) {
	issue, err := h.issues.GetIssue(c.Request.Context(), c.Param("issueId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue.ToAPI())
}

// ListIssues returns issues, optionally filtered by status.
// GET /api/v1/issues?status=...
func (h *Handler) ListIssues(c *gin.Context) {
	issues, err := h.issues.ListIssues(c.Request.Context(), v1.IssueStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]*v1.Issue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.ToAPI())
	}
	c.JSON(http.StatusOK, gin.H{"issues": out, "total": len(out)})
}

// TransitionIssue advances an issue through its state machine.
// POST /api/v1/issues/:issueId/status
func (h *Handler) TransitionIssue(c *gin.Context) {
	var req TransitionIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	issueID := c.Param("issueId")
	if !h.issues.Transition(c.Request.Context(), issueID, req.AgentID, req.Status) {
		respondError(c, errors.Conflict("status transition not allowed"))
		return
	}
	issue, err := h.issues.GetIssue(c.Request.Context(), issueID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue.ToAPI())
}

// ResolveIssue records a solution and resolves the issue.
// POST /api/v1/issues/:issueId/resolve
func (h *Handler) ResolveIssue(c *gin.Context) {
	var req ResolveIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("request", err.Error()))
		return
	}
	issueID := c.Param("issueId")
	if !h.issues.Resolve(c.Request.Context(), issueID, req.AgentID, req.Description) {
		respondError(c, errors.Conflict("issue could not be resolved"))
		return
	}
	issue, err := h.issues.GetIssue(c.Request.Context(), issueID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue.ToAPI())
}

// GetSolution returns one recorded solution.
// GET /api/v1/solutions/:solutionId
func (h *Handler) GetSolution(c *gin.Context) {
	solution, err := h.issues.GetSolution(c.Request.Context(), c.Param("solutionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SolutionResponse{
		ID:               solution.ID,
		IssueID:          solution.IssueID,
		Description:      solution.Description,
		ResolvedBy:       solution.ResolvedBy,
		KnowledgeEntryID: solution.KnowledgeEntryID,
		CreatedAt:        solution.CreatedAt,
	})
}

package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/errors"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/events"
	"github.com/crewmesh/crewmesh/internal/events/bus"
	"github.com/crewmesh/crewmesh/internal/knowledge"
	"github.com/crewmesh/crewmesh/internal/lock"
	"github.com/crewmesh/crewmesh/internal/messaging"
	"github.com/crewmesh/crewmesh/internal/observability"
	"github.com/crewmesh/crewmesh/internal/task"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// messageTypesAsIssues maps inbound message types to issue tags.
var messageTypesAsIssues = map[string][]string{
	messaging.TypeIssueReport:      nil,
	messaging.TypeTestFailure:      {"testing"},
	messaging.TypeIntegrationError: {"integration"},
	messaging.TypeResourceConflict: {"resources"},
	messaging.TypeHelpRequest:      nil,
}

// Service is the troubleshooting orchestrator.
type Service struct {
	store     Store
	registry  *registry.Registry
	locks     *lock.Manager
	knowledge *knowledge.Service
	eventBus  bus.EventBus
	logger    *logger.Logger

	// liveness tracks agents by their recent inbox traffic. An entry
	// lapses when the agent goes quiet past the configured window.
	liveness *gocache.Cache

	staleAfter    time.Duration
	sweepInterval time.Duration
}

// NewService creates the orchestrator. The knowledge service is
// optional; without it resolution skips the knowledge write-back.
func NewService(store Store, reg *registry.Registry, locks *lock.Manager, know *knowledge.Service, eventBus bus.EventBus, log *logger.Logger, cfg config.OrchestratorConfig) *Service {
	window := time.Duration(cfg.LivenessWindowMinutes) * time.Minute
	return &Service{
		store:         store,
		registry:      reg,
		locks:         locks,
		knowledge:     know,
		eventBus:      eventBus,
		logger:        log,
		liveness:      gocache.New(window, window),
		staleAfter:    time.Duration(cfg.StaleAssignmentMinutes) * time.Minute,
		sweepInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
	}
}

// ReportRequest carries the fields for a directly reported issue.
type ReportRequest struct {
	Title             string
	Description       string
	Priority          v1.TaskPriority
	ReporterAgent     string
	Tags              []string
	AffectedResources []string
}

// ReportIssue records a new issue in the reported state and immediately
// tries to assign it.
func (s *Service) ReportIssue(ctx context.Context, req ReportRequest) (*Issue, error) {
	if req.Title == "" {
		return nil, errors.ValidationError("title", "must not be empty")
	}
	if req.ReporterAgent == "" {
		return nil, errors.ValidationError("reporter_agent", "must not be empty")
	}
	if req.Priority == "" {
		req.Priority = v1.TaskPriorityMedium
	}

	now := time.Now().UTC()
	issue := &Issue{
		ID:                uuid.New().String(),
		Title:             req.Title,
		Description:       req.Description,
		PriorityRank:      task.PriorityRank(req.Priority),
		Status:            v1.IssueStatusReported,
		ReporterAgent:     req.ReporterAgent,
		Tags:              req.Tags,
		AffectedResources: req.AffectedResources,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}

	s.publish(ctx, events.IssueReported, issue)
	s.logger.Info("issue reported",
		zap.String("issue_id", issue.ID),
		zap.String("title", issue.Title),
		zap.String("reporter", issue.ReporterAgent))

	s.Assign(ctx, issue.ID)
	return s.store.GetIssue(ctx, issue.ID)
}

// Ingest consumes one messaging-bus message. Issue-bearing message
// types become tracked issues; every message refreshes the sender's
// liveness.
func (s *Service) Ingest(ctx context.Context, msg *messaging.Message) (*Issue, error) {
	s.MarkActive(msg.From)

	extraTags, isIssue := messageTypesAsIssues[msg.Type]
	if !isIssue {
		return nil, nil
	}

	title := msg.Subject
	if title == "" {
		title = msg.Type + " from " + msg.From
	}
	description, _ := msg.Content["description"].(string)
	priority := v1.TaskPriorityMedium
	switch msg.Priority {
	case v1.MessagePriorityUrgent:
		priority = v1.TaskPriorityCritical
	case v1.MessagePriorityHigh:
		priority = v1.TaskPriorityHigh
	case v1.MessagePriorityLow:
		priority = v1.TaskPriorityLow
	}

	var affected []string
	if raw, ok := msg.Content["affected_resources"].([]any); ok {
		for _, entry := range raw {
			if id, ok := entry.(string); ok {
				affected = append(affected, id)
			}
		}
	}

	issue, err := s.ReportIssue(ctx, ReportRequest{
		Title:             title,
		Description:       description,
		Priority:          priority,
		ReporterAgent:     msg.From,
		Tags:              append(append([]string(nil), msg.Tags...), extraTags...),
		AffectedResources: affected,
	})
	if err != nil {
		return nil, err
	}

	if s.knowledge != nil {
		matches, err := s.knowledge.FindMatchingPatterns(ctx, title+" "+description)
		if err == nil && len(matches) > 0 {
			s.logger.Info("known patterns matched for issue",
				zap.String("issue_id", issue.ID),
				zap.String("top_category", matches[0].Category),
				zap.Int("matches", len(matches)))
		}
	}
	return issue, nil
}

// Assign picks the best agent for the issue by capability score minus
// the agent's open-issue workload. Ties go to the earliest-registered
// agent. Returns false when no agent is registered or the issue is not
// assignable.
func (s *Service) Assign(ctx context.Context, issueID string) bool {
	return s.assign(ctx, issueID, "")
}

func (s *Service) assign(ctx context.Context, issueID, excludeAgent string) bool {
	log := s.logger.WithFields(zap.String("issue_id", issueID))

	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		log.Warn("assign failed: issue lookup", zap.Error(err))
		return false
	}
	if !CanTransition(issue.Status, v1.IssueStatusAssigned) {
		return false
	}

	agents, err := s.registry.List(ctx)
	if err != nil {
		log.Error("assign failed: agent listing", zap.Error(err))
		return false
	}

	var best *registry.Agent
	bestScore := 0.0
	for _, agent := range agents {
		if agent.AgentID == excludeAgent {
			continue
		}
		score := s.scoreAgent(ctx, agent, issue)
		// Strict comparison keeps the first-registered agent on ties.
		if best == nil || score > bestScore {
			best = agent
			bestScore = score
		}
	}
	if best == nil {
		log.Debug("no candidate agent for issue")
		return false
	}

	reassigned := issue.Status == v1.IssueStatusAssigned
	issue.Status = v1.IssueStatusAssigned
	issue.AssignedAgent = best.AgentID
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		log.Error("assign failed: issue update", zap.Error(err))
		return false
	}

	observability.IssuesAssigned.Inc()
	if reassigned {
		s.publish(ctx, events.IssueReassigned, issue)
	} else {
		s.publish(ctx, events.IssueAssigned, issue)
	}
	log.Info("issue assigned",
		zap.String("agent_id", best.AgentID),
		zap.Float64("score", bestScore),
		zap.Bool("reassigned", reassigned))
	return true
}

// scoreAgent is the capability score: matched tags against the agent's
// skill set, penalized by the agent's open-issue count.
func (s *Service) scoreAgent(ctx context.Context, agent *registry.Agent, issue *Issue) float64 {
	skills := agent.SkillSet()
	matches := 0
	for _, tag := range issue.Tags {
		if skills[tag] {
			matches++
		}
	}

	open, err := s.store.CountOpenIssues(ctx, agent.AgentID)
	if err != nil {
		s.logger.Error("workload count failed",
			zap.String("agent_id", agent.AgentID), zap.Error(err))
	}
	return float64(matches) - float64(open)
}

// GetIssue returns the issue by id.
func (s *Service) GetIssue(ctx context.Context, id string) (*Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// ListIssues returns issues, optionally filtered by status.
func (s *Service) ListIssues(ctx context.Context, status v1.IssueStatus) ([]*Issue, error) {
	return s.store.ListIssues(ctx, status)
}

// Transition moves the issue through its state machine. Only the
// assigned agent may advance an assigned issue.
func (s *Service) Transition(ctx context.Context, issueID, agentID string, to v1.IssueStatus) bool {
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		s.logger.Warn("transition failed: issue lookup",
			zap.String("issue_id", issueID), zap.Error(err))
		return false
	}
	if issue.AssignedAgent != "" && issue.AssignedAgent != agentID {
		return false
	}
	if !CanTransition(issue.Status, to) {
		return false
	}

	issue.Status = to
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		s.logger.Error("transition failed: issue update",
			zap.String("issue_id", issueID), zap.Error(err))
		return false
	}
	if to == v1.IssueStatusClosed {
		s.publish(ctx, events.IssueClosed, issue)
	}
	s.MarkActive(agentID)
	return true
}

// Resolve records the solution, marks the issue resolved and writes the
// outcome back to the knowledge store.
func (s *Service) Resolve(ctx context.Context, issueID, agentID, description string) bool {
	log := s.logger.WithFields(zap.String("issue_id", issueID), zap.String("agent_id", agentID))

	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		log.Warn("resolve failed: issue lookup", zap.Error(err))
		return false
	}
	if issue.AssignedAgent != agentID {
		return false
	}
	if !CanTransition(issue.Status, v1.IssueStatusResolved) {
		return false
	}

	solution := &Solution{
		ID:          uuid.New().String(),
		IssueID:     issue.ID,
		Description: description,
		ResolvedBy:  agentID,
		CreatedAt:   time.Now().UTC(),
	}

	if s.knowledge != nil {
		entry, err := s.knowledge.CreateEntry(ctx, knowledge.CreateRequest{
			Type:        knowledge.TypeSolution,
			Title:       "resolved: " + issue.Title,
			Description: issue.Description,
			Content:     description,
			Tags:        issue.Tags,
			CreatedBy:   agentID,
		})
		if err != nil {
			log.Error("knowledge write-back failed", zap.Error(err))
		} else {
			solution.KnowledgeEntryID = entry.ID
		}
	}

	if err := s.store.CreateSolution(ctx, solution); err != nil {
		log.Error("resolve failed: solution record", zap.Error(err))
		return false
	}

	issue.Status = v1.IssueStatusResolved
	issue.SolutionID = solution.ID
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		log.Error("resolve failed: issue update", zap.Error(err))
		return false
	}

	s.MarkActive(agentID)
	s.publish(ctx, events.IssueResolved, issue)
	log.Info("issue resolved", zap.String("solution_id", solution.ID))
	return true
}

// GetSolution returns the solution by id.
func (s *Service) GetSolution(ctx context.Context, id string) (*Solution, error) {
	return s.store.GetSolution(ctx, id)
}

// AcquireResourceLock claims a resource on behalf of an agent working
// an issue.
func (s *Service) AcquireResourceLock(ctx context.Context, agentID, resourceID string, ttl time.Duration) bool {
	return s.locks.Claim(ctx, agentID, resourceID, v1.ResourceTypeFile, "troubleshooting", true, ttl)
}

// ReleaseResourceLock releases a claim taken via AcquireResourceLock.
func (s *Service) ReleaseResourceLock(ctx context.Context, agentID, resourceID string) bool {
	return s.locks.Release(ctx, agentID, resourceID)
}

// MarkActive refreshes the agent's liveness window.
func (s *Service) MarkActive(agentID string) {
	if agentID == "" {
		return
	}
	s.liveness.Set(agentID, time.Now().UTC(), gocache.DefaultExpiration)
}

// IsActive reports whether the agent produced traffic within the
// liveness window.
func (s *Service) IsActive(agentID string) bool {
	_, active := s.liveness.Get(agentID)
	return active
}

// ActiveAgents returns the agents currently inside the liveness window.
func (s *Service) ActiveAgents() []string {
	items := s.liveness.Items()
	agents := make([]string, 0, len(items))
	for agentID := range items {
		agents = append(agents, agentID)
	}
	return agents
}

// SweepStaleAssignments reassigns issues stuck in the assigned state
// past the staleness window, away from their current assignee.
func (s *Service) SweepStaleAssignments(ctx context.Context) int {
	stale, err := s.store.ListStaleAssigned(ctx, time.Now().UTC().Add(-s.staleAfter))
	if err != nil {
		s.logger.Error("stale assignment sweep failed", zap.Error(err))
		return 0
	}

	reassigned := 0
	for _, issue := range stale {
		if s.assign(ctx, issue.ID, issue.AssignedAgent) {
			reassigned++
		}
	}
	if reassigned > 0 {
		s.logger.Info("stale issues reassigned", zap.Int("count", reassigned))
	}
	return reassigned
}

// RunSweeper runs the stale-assignment sweep on its interval until ctx
// is cancelled.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.SweepRuns.WithLabelValues("stale_assignment").Inc()
			s.SweepStaleAssignments(ctx)
		}
	}
}

func (s *Service) publish(ctx context.Context, eventType string, issue *Issue) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "orchestrator", map[string]any{
		"issue_id":       issue.ID,
		"status":         string(issue.Status),
		"assigned_agent": issue.AssignedAgent,
	})
	if err := s.eventBus.Publish(ctx, eventType, event); err != nil {
		s.logger.Debug("issue event publish failed", zap.Error(err))
	}
}

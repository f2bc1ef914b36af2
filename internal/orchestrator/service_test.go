package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/knowledge"
	"github.com/crewmesh/crewmesh/internal/lock"
	"github.com/crewmesh/crewmesh/internal/messaging"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

type orchestratorEnv struct {
	service   *Service
	store     *MemoryStore
	registry  *registry.Registry
	locks     *lock.Manager
	knowledge *knowledge.Service
}

func newOrchestratorEnv(t *testing.T) *orchestratorEnv {
	t.Helper()

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text"})
	require.NoError(t, err)

	reg := registry.NewRegistry(registry.NewMemoryStore(), log)
	locks := lock.NewManager(lock.NewMemoryStore(), nil, log, config.LockConfig{
		DefaultTTLMinutes:    10,
		SweepIntervalSeconds: 60,
	})
	know := knowledge.NewService(knowledge.NewMemoryStore(), nil, log, config.KnowledgeConfig{
		DecayAfterDays:     30,
		DecaySweepHours:    24,
		LearningEventLimit: 100,
	})
	store := NewMemoryStore()
	service := NewService(store, reg, locks, know, nil, log, config.OrchestratorConfig{
		StaleAssignmentMinutes: 30,
		LivenessWindowMinutes:  10,
		SweepIntervalSeconds:   60,
	})
	return &orchestratorEnv{
		service:   service,
		store:     store,
		registry:  reg,
		locks:     locks,
		knowledge: know,
	}
}

func (e *orchestratorEnv) register(t *testing.T, agentID string, capabilities ...string) {
	t.Helper()
	_, err := e.registry.Register(context.Background(), agentID, capabilities, nil, 5)
	require.NoError(t, err)
}

func TestReportIssue_AssignsByCapabilityScore(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	env.register(t, "generalist", "coding")
	env.register(t, "db-expert", "database", "sql")

	issue, err := env.service.ReportIssue(ctx, ReportRequest{
		Title:         "connection pool exhausted",
		ReporterAgent: "agent-1",
		Tags:          []string{"database", "sql"},
	})
	require.NoError(t, err)
	assert.Equal(t, v1.IssueStatusAssigned, issue.Status)
	assert.Equal(t, "db-expert", issue.AssignedAgent)
}

func TestAssign_WorkloadPenalty(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	env.register(t, "busy", "database")
	env.register(t, "idle", "database")

	// Load up the first matching agent with two open issues.
	for i := 0; i < 2; i++ {
		issue, err := env.service.ReportIssue(ctx, ReportRequest{
			Title:         "prior issue",
			ReporterAgent: "reporter",
			Tags:          []string{"database"},
		})
		require.NoError(t, err)
		issue.AssignedAgent = "busy"
		issue.Status = v1.IssueStatusInProgress
		require.NoError(t, env.store.UpdateIssue(ctx, issue))
	}

	issue, err := env.service.ReportIssue(ctx, ReportRequest{
		Title:         "new issue",
		ReporterAgent: "reporter",
		Tags:          []string{"database"},
	})
	require.NoError(t, err)
	assert.Equal(t, "idle", issue.AssignedAgent)
}

func TestAssign_TieGoesToFirstRegistered(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	env.register(t, "first", "testing")
	env.register(t, "second", "testing")

	issue, err := env.service.ReportIssue(ctx, ReportRequest{
		Title:         "flaky suite",
		ReporterAgent: "reporter",
		Tags:          []string{"testing"},
	})
	require.NoError(t, err)
	assert.Equal(t, "first", issue.AssignedAgent)
}

func TestReportIssue_NoAgentsStaysReported(t *testing.T) {
	env := newOrchestratorEnv(t)

	issue, err := env.service.ReportIssue(context.Background(), ReportRequest{
		Title:         "orphan issue",
		ReporterAgent: "reporter",
	})
	require.NoError(t, err)
	assert.Equal(t, v1.IssueStatusReported, issue.Status)
	assert.Empty(t, issue.AssignedAgent)
}

func TestTransition_StateMachine(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	env.register(t, "solver", "testing")

	issue, err := env.service.ReportIssue(ctx, ReportRequest{
		Title:         "state machine check",
		ReporterAgent: "reporter",
		Tags:          []string{"testing"},
	})
	require.NoError(t, err)
	require.Equal(t, v1.IssueStatusAssigned, issue.Status)

	// Skipping in_progress is rejected.
	assert.False(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusTesting))

	// Only the assignee may advance the issue.
	assert.False(t, env.service.Transition(ctx, issue.ID, "intruder", v1.IssueStatusInProgress))

	assert.True(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusInProgress))
	assert.True(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusTesting))

	// Testing can bounce back to in_progress.
	assert.True(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusInProgress))
}

func TestResolve_RecordsSolutionAndKnowledge(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	env.register(t, "solver", "database")

	issue, err := env.service.ReportIssue(ctx, ReportRequest{
		Title:         "pool exhausted under load",
		Description:   "connection pool runs dry during peak traffic",
		ReporterAgent: "reporter",
		Tags:          []string{"database"},
	})
	require.NoError(t, err)

	require.True(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusInProgress))
	require.True(t, env.service.Resolve(ctx, issue.ID, "solver", "raised pool size and added retry backoff"))

	resolved, err := env.service.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.IssueStatusResolved, resolved.Status)
	require.NotEmpty(t, resolved.SolutionID)

	solution, err := env.service.GetSolution(ctx, resolved.SolutionID)
	require.NoError(t, err)
	assert.Equal(t, "solver", solution.ResolvedBy)
	require.NotEmpty(t, solution.KnowledgeEntryID)

	// The write-back lands in the knowledge store as a solution entry.
	entry, err := env.knowledge.GetEntry(ctx, solution.KnowledgeEntryID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.TypeSolution, entry.Type)

	// Resolved issues can only close.
	assert.False(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusInProgress))
	assert.True(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusClosed))
}

func TestResolve_RequiresAssignee(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	env.register(t, "solver", "testing")

	issue, err := env.service.ReportIssue(ctx, ReportRequest{
		Title:         "assignee gate",
		ReporterAgent: "reporter",
		Tags:          []string{"testing"},
	})
	require.NoError(t, err)
	require.True(t, env.service.Transition(ctx, issue.ID, "solver", v1.IssueStatusInProgress))

	assert.False(t, env.service.Resolve(ctx, issue.ID, "intruder", "not my issue"))
}

func TestIngest_MapsMessageTypesToIssues(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	env.register(t, "tester", "testing")

	issue, err := env.service.Ingest(ctx, &messaging.Message{
		ID:       "msg-1",
		Type:     messaging.TypeTestFailure,
		Priority: v1.MessagePriorityUrgent,
		From:     "ci-agent",
		Subject:  "integration suite failing",
		Content: map[string]any{
			"description":        "auth tests time out",
			"affected_resources": []any{"src/auth.go"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, "integration suite failing", issue.Title)
	assert.Equal(t, 0, issue.PriorityRank)
	assert.Contains(t, issue.Tags, "testing")
	assert.Equal(t, []string{"src/auth.go"}, issue.AffectedResources)
	assert.Equal(t, "tester", issue.AssignedAgent)

	// Non-issue message types only refresh liveness.
	issue, err = env.service.Ingest(ctx, &messaging.Message{
		ID:   "msg-2",
		Type: messaging.TypeSolutionShare,
		From: "other-agent",
	})
	require.NoError(t, err)
	assert.Nil(t, issue)
	assert.True(t, env.service.IsActive("other-agent"))
}

func TestLiveness(t *testing.T) {
	env := newOrchestratorEnv(t)

	assert.False(t, env.service.IsActive("quiet-agent"))

	env.service.MarkActive("chatty-agent")
	assert.True(t, env.service.IsActive("chatty-agent"))
	assert.Contains(t, env.service.ActiveAgents(), "chatty-agent")
}

func TestSweepStaleAssignments_ReassignsAwayFromAssignee(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	env.register(t, "stalled", "database")
	env.register(t, "backup", "database")

	issue, err := env.service.ReportIssue(ctx, ReportRequest{
		Title:         "stuck issue",
		ReporterAgent: "reporter",
		Tags:          []string{"database"},
	})
	require.NoError(t, err)
	require.Equal(t, "stalled", issue.AssignedAgent)

	// Age the assignment past the staleness window.
	issue.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, env.store.UpdateIssue(ctx, issue))

	reassigned := env.service.SweepStaleAssignments(ctx)
	assert.Equal(t, 1, reassigned)

	fresh, err := env.service.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "backup", fresh.AssignedAgent)
	assert.Equal(t, v1.IssueStatusAssigned, fresh.Status)
}

func TestResourceLockDelegation(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	assert.True(t, env.service.AcquireResourceLock(ctx, "agent-a", "src/db.go", 5*time.Minute))
	assert.False(t, env.service.AcquireResourceLock(ctx, "agent-b", "src/db.go", 5*time.Minute))
	assert.True(t, env.service.ReleaseResourceLock(ctx, "agent-a", "src/db.go"))
	assert.True(t, env.service.AcquireResourceLock(ctx, "agent-b", "src/db.go", 5*time.Minute))
}

package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/lock"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

type testEnv struct {
	service  *Service
	locks    *lock.Manager
	registry *registry.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	locks := lock.NewManager(lock.NewMemoryStore(), nil, log,
		config.LockConfig{DefaultTTLMinutes: 30, SweepIntervalSeconds: 30})
	reg := registry.NewRegistry(registry.NewMemoryStore(), log)
	service := NewService(NewMemoryStore(), locks, reg, nil, log)
	return &testEnv{service: service, locks: locks, registry: reg}
}

func (e *testEnv) createTask(t *testing.T, req CreateRequest) *Task {
	t.Helper()
	if req.CreatedBy == "" {
		req.CreatedBy = "creator"
	}
	task, err := e.service.Create(context.Background(), req)
	require.NoError(t, err)
	return task
}

func TestPriorityRank_OrdersCriticalFirst(t *testing.T) {
	// Lexical ordering of the labels puts "low" before "medium"; the rank
	// table must not.
	assert.Less(t, PriorityRank(v1.TaskPriorityCritical), PriorityRank(v1.TaskPriorityHigh))
	assert.Less(t, PriorityRank(v1.TaskPriorityHigh), PriorityRank(v1.TaskPriorityMedium))
	assert.Less(t, PriorityRank(v1.TaskPriorityMedium), PriorityRank(v1.TaskPriorityLow))
	assert.Equal(t, v1.TaskPriorityHigh, PriorityLabel(PriorityRank(v1.TaskPriorityHigh)))
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Create(ctx, CreateRequest{CreatedBy: "a"})
	assert.Error(t, err)

	_, err = env.service.Create(ctx, CreateRequest{Title: "t"})
	assert.Error(t, err)

	_, err = env.service.Create(ctx, CreateRequest{Title: "t", CreatedBy: "a", Priority: "severe"})
	assert.Error(t, err)

	_, err = env.service.Create(ctx, CreateRequest{Title: "t", CreatedBy: "a", Dependencies: []string{"missing"}})
	assert.Error(t, err)

	task, err := env.service.Create(ctx, CreateRequest{Title: "t", CreatedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusPending, task.Status)
	assert.Equal(t, PriorityRank(v1.TaskPriorityMedium), task.PriorityRank)
	assert.Equal(t, 30, task.EstimatedDuration)
}

func TestService_ListAvailableOrdering(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.createTask(t, CreateRequest{Title: "low", Priority: v1.TaskPriorityLow})
	env.createTask(t, CreateRequest{Title: "critical", Priority: v1.TaskPriorityCritical})
	env.createTask(t, CreateRequest{Title: "medium", Priority: v1.TaskPriorityMedium})

	available, err := env.service.ListAvailable(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, available, 3)
	assert.Equal(t, "critical", available[0].Title)
	assert.Equal(t, "medium", available[1].Title)
	assert.Equal(t, "low", available[2].Title)
}

func TestService_LifecycleMonotonicity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.createTask(t, CreateRequest{Title: "work"})

	// Out-of-order transitions are rejected without state change.
	assert.False(t, env.service.Start(ctx, task.ID, "agent-1"))
	assert.False(t, env.service.Complete(ctx, task.ID, "agent-1", nil))

	assert.True(t, env.service.Claim(ctx, task.ID, "agent-1"))
	assert.False(t, env.service.Claim(ctx, task.ID, "agent-2"), "claimed task is no longer pending")

	// Only the assignee may advance it.
	assert.False(t, env.service.Start(ctx, task.ID, "agent-2"))
	assert.True(t, env.service.Start(ctx, task.ID, "agent-1"))

	assert.False(t, env.service.Complete(ctx, task.ID, "agent-2", nil))
	assert.True(t, env.service.Complete(ctx, task.ID, "agent-1", map[string]any{"ok": true}))

	// Terminal states are final.
	assert.False(t, env.service.Complete(ctx, task.ID, "agent-1", nil))
	assert.False(t, env.service.Fail(ctx, task.ID, "agent-1", "late"))

	got, err := env.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusCompleted, got.Status)
}

func TestService_DependencyGating(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	dep := env.createTask(t, CreateRequest{Title: "dep"})
	task := env.createTask(t, CreateRequest{Title: "dependent", Dependencies: []string{dep.ID}})

	available, err := env.service.ListAvailable(ctx, "agent-1")
	require.NoError(t, err)
	ids := make([]string, 0, len(available))
	for _, a := range available {
		ids = append(ids, a.ID)
	}
	assert.NotContains(t, ids, task.ID)
	assert.False(t, env.service.Claim(ctx, task.ID, "agent-1"))

	require.True(t, env.service.Claim(ctx, dep.ID, "agent-2"))
	require.True(t, env.service.Complete(ctx, dep.ID, "agent-2", nil))

	assert.True(t, env.service.Claim(ctx, task.ID, "agent-1"))
}

func TestService_ClaimAcquiresResources(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := env.createTask(t, CreateRequest{
		Title:             "configure",
		RequiredResources: []string{"cfg"},
		EstimatedDuration: 10,
	})

	require.True(t, env.service.Claim(ctx, task.ID, "agent-a"))
	assert.False(t, env.locks.IsFree(ctx, "cfg"))

	claims, err := env.locks.ActiveClaims(ctx, "cfg")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "agent-a", claims[0].ClaimedBy)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), claims[0].ExpiresAt, 5*time.Second)
}

func TestService_ClaimRollsBackPartialResourceBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// Another agent holds the second resource.
	require.True(t, env.locks.Claim(ctx, "other", "res-b", v1.ResourceTypeFile, "edit", true, 0))

	task := env.createTask(t, CreateRequest{
		Title:             "two resources",
		RequiredResources: []string{"res-a", "res-b"},
	})

	assert.False(t, env.service.Claim(ctx, task.ID, "agent-1"))

	// The first resource was rolled back and the task stays pending.
	assert.True(t, env.locks.IsFree(ctx, "res-a"))
	got, err := env.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusPending, got.Status)
	assert.Empty(t, got.AssignedTo)
}

func TestService_FinishReleasesResources(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := env.createTask(t, CreateRequest{Title: "work", RequiredResources: []string{"db"}})
	require.True(t, env.service.Claim(ctx, task.ID, "agent-1"))
	require.False(t, env.locks.IsFree(ctx, "db"))

	require.True(t, env.service.Fail(ctx, task.ID, "agent-1", "flaky dependency"))
	assert.True(t, env.locks.IsFree(ctx, "db"))

	got, err := env.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusFailed, got.Status)
	assert.Equal(t, "flaky dependency", got.FailureReason)
}

func TestService_CapabilityAndCapacityGating(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.registry.Register(ctx, "py-agent", []string{"python"}, nil, 1)
	require.NoError(t, err)

	pyTask := env.createTask(t, CreateRequest{Title: "py", Tags: []string{"python"}})
	goTask := env.createTask(t, CreateRequest{Title: "go", Tags: []string{"golang"}})

	available, err := env.service.ListAvailable(ctx, "py-agent")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, pyTask.ID, available[0].ID)

	// Capability mismatch blocks claiming too.
	assert.False(t, env.service.Claim(ctx, goTask.ID, "py-agent"))

	// At max load the second claim is denied.
	require.True(t, env.service.Claim(ctx, pyTask.ID, "py-agent"))
	extra := env.createTask(t, CreateRequest{Title: "extra", Tags: []string{"python"}})
	assert.False(t, env.service.Claim(ctx, extra.ID, "py-agent"))

	// Unregistered agents see and may claim everything.
	available, err = env.service.ListAvailable(ctx, "stranger")
	require.NoError(t, err)
	assert.Len(t, available, 2)
}

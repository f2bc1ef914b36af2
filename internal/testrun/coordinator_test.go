package testrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/lock"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// stubRunner returns a canned result without touching the toolchain.
type stubRunner struct {
	result *RunResult
	err    error
	calls  int
}

func (r *stubRunner) Run(ctx context.Context, suite *Suite, workDir string) (*RunResult, error) {
	r.calls++
	return r.result, r.err
}

type coordinatorEnv struct {
	coordinator *Coordinator
	store       *MemoryStore
	locks       *lock.Manager
	runner      *stubRunner
	reportsDir  string
}

func newCoordinatorEnv(t *testing.T, runner *stubRunner) *coordinatorEnv {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	locks := lock.NewManager(lock.NewMemoryStore(), nil, log,
		config.LockConfig{DefaultTTLMinutes: 30, SweepIntervalSeconds: 30})
	store := NewMemoryStore()
	reportsDir := t.TempDir()
	cfg := config.TestingConfig{
		WorkDir:              t.TempDir(),
		ReportsDir:           reportsDir,
		QueueSize:            10,
		ReservationTTLHours:  2,
		DrainIntervalSeconds: 1,
	}
	return &coordinatorEnv{
		coordinator: NewCoordinator(store, locks, runner, nil, log, cfg),
		store:       store,
		locks:       locks,
		runner:      runner,
		reportsDir:  reportsDir,
	}
}

func registerSuite(t *testing.T, env *coordinatorEnv, req RegisterSuiteRequest) *Suite {
	t.Helper()
	if req.Name == "" {
		req.Name = "suite"
	}
	if req.Environment == "" {
		req.Environment = v1.TestEnvironmentLocal
	}
	suite, err := env.coordinator.RegisterSuite(context.Background(), req)
	require.NoError(t, err)
	return suite
}

func TestCoordinator_RegisterSuiteValidation(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, &stubRunner{result: &RunResult{}})

	_, err := env.coordinator.RegisterSuite(ctx, RegisterSuiteRequest{Environment: v1.TestEnvironmentLocal})
	assert.Error(t, err)

	_, err = env.coordinator.RegisterSuite(ctx, RegisterSuiteRequest{Name: "s", Environment: "production"})
	assert.Error(t, err)

	suite, err := env.coordinator.RegisterSuite(ctx, RegisterSuiteRequest{Name: "s", Environment: v1.TestEnvironmentLocal})
	require.NoError(t, err)
	assert.Equal(t, SuiteTypeUnit, suite.Type)
	assert.Equal(t, 30, suite.EstimatedDuration)
	assert.Equal(t, 1, suite.MaxParallelRuns)
}

func TestCoordinator_ExecutePassWritesReport(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, &stubRunner{result: &RunResult{Passed: 4, Coverage: 81.5}})

	suite := registerSuite(t, env, RegisterSuiteRequest{Name: "unit", RequiredResources: []string{"db"}})
	exec, err := env.coordinator.Schedule(ctx, suite.ID, "agent-1", 5)
	require.NoError(t, err)

	assert.True(t, env.coordinator.Execute(ctx, exec.ID))

	got, err := env.coordinator.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ExecutionStatusPassed, got.Status)
	require.NotNil(t, got.Results)
	assert.Equal(t, 4, got.Results.Passed)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	// Cleanup happened on the success path.
	assert.True(t, env.locks.IsFree(ctx, "db"))
	assert.Empty(t, env.store.ReservedEnvironments())

	// Structured report landed in the reports store.
	_, err = os.Stat(filepath.Join(env.reportsDir, "execution-"+exec.ID+".yaml"))
	assert.NoError(t, err)
}

func TestCoordinator_FailedRunStillCleansUp(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, &stubRunner{result: &RunResult{Failed: 2}})

	suite := registerSuite(t, env, RegisterSuiteRequest{
		Name:              "integration",
		Type:              SuiteTypeIntegration,
		Environment:       v1.TestEnvironmentIsolated,
		RequiredResources: []string{"db"},
	})
	exec, err := env.coordinator.Schedule(ctx, suite.ID, "agent-1", 5)
	require.NoError(t, err)

	assert.False(t, env.coordinator.Execute(ctx, exec.ID))

	got, err := env.coordinator.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ExecutionStatusFailed, got.Status)

	// The isolated environment and the db lock are free again.
	assert.Empty(t, env.store.ReservedEnvironments())
	assert.True(t, env.locks.IsFree(ctx, "db"))
}

func TestCoordinator_RunnerErrorStillCleansUp(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, &stubRunner{result: nil, err: assert.AnError})

	suite := registerSuite(t, env, RegisterSuiteRequest{
		Name:              "crashy",
		Environment:       v1.TestEnvironmentIsolated,
		RequiredResources: []string{"cache"},
	})
	exec, err := env.coordinator.Schedule(ctx, suite.ID, "agent-1", 5)
	require.NoError(t, err)

	assert.False(t, env.coordinator.Execute(ctx, exec.ID))

	got, err := env.coordinator.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ExecutionStatusFailed, got.Status)
	require.NotNil(t, got.Results)
	assert.NotEmpty(t, got.Results.Errors)

	assert.Empty(t, env.store.ReservedEnvironments())
	assert.True(t, env.locks.IsFree(ctx, "cache"))
}

func TestCoordinator_EnvironmentContentionBlocks(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, &stubRunner{result: &RunResult{}})

	// Someone else holds the staging environment.
	reserved, err := env.store.Reserve(ctx, &Reservation{
		ID:          "r-1",
		Environment: v1.TestEnvironmentStaging,
		ReservedBy:  "other",
		ReservedAt:  time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)
	require.True(t, reserved)

	suite := registerSuite(t, env, RegisterSuiteRequest{Name: "staged", Environment: v1.TestEnvironmentStaging})
	exec, err := env.coordinator.Schedule(ctx, suite.ID, "agent-1", 5)
	require.NoError(t, err)

	assert.False(t, env.coordinator.Execute(ctx, exec.ID))
	assert.Equal(t, 0, env.runner.calls)

	got, err := env.coordinator.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ExecutionStatusBlocked, got.Status)
}

func TestCoordinator_ResourceContentionReleasesEnvironment(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, &stubRunner{result: &RunResult{}})

	require.True(t, env.locks.Claim(ctx, "other", "db", v1.ResourceTypeFile, "edit", true, 0))

	suite := registerSuite(t, env, RegisterSuiteRequest{
		Name:              "needs db",
		Environment:       v1.TestEnvironmentIsolated,
		RequiredResources: []string{"db"},
	})
	exec, err := env.coordinator.Schedule(ctx, suite.ID, "agent-1", 5)
	require.NoError(t, err)

	assert.False(t, env.coordinator.Execute(ctx, exec.ID))
	assert.Equal(t, 0, env.runner.calls)

	got, err := env.coordinator.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ExecutionStatusBlocked, got.Status)

	// The reservation taken before the resource denial was rolled back.
	assert.Empty(t, env.store.ReservedEnvironments())
}

func TestExecutionQueue_PriorityOrder(t *testing.T) {
	q := NewExecutionQueue(10)
	require.NoError(t, q.Enqueue("low", 1))
	require.NoError(t, q.Enqueue("high", 9))
	require.NoError(t, q.Enqueue("mid", 5))

	assert.Equal(t, ErrAlreadyQueued, q.Enqueue("mid", 5))

	assert.Equal(t, "high", q.Dequeue())
	assert.Equal(t, "mid", q.Dequeue())
	assert.Equal(t, "low", q.Dequeue())
	assert.Equal(t, "", q.Dequeue())
}

func TestExecutionQueue_CapacityAndRemove(t *testing.T) {
	q := NewExecutionQueue(2)
	require.NoError(t, q.Enqueue("a", 1))
	require.NoError(t, q.Enqueue("b", 2))
	assert.Equal(t, ErrQueueFull, q.Enqueue("c", 3))

	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.Equal(t, 1, q.Len())
}

func TestCoordinator_ReservationSweep(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, &stubRunner{result: &RunResult{}})

	reserved, err := env.store.Reserve(ctx, &Reservation{
		ID:          "r-exp",
		Environment: v1.TestEnvironmentIntegration,
		ReservedBy:  "ghost",
		ReservedAt:  time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.True(t, reserved)

	assert.Equal(t, int64(1), env.coordinator.SweepReservations(ctx))
	assert.Empty(t, env.store.ReservedEnvironments())
}

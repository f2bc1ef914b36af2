package testrun

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/errors"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/events"
	"github.com/crewmesh/crewmesh/internal/events/bus"
	"github.com/crewmesh/crewmesh/internal/lock"
	"github.com/crewmesh/crewmesh/internal/observability"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

var validEnvironments = map[v1.TestEnvironment]bool{
	v1.TestEnvironmentLocal:       true,
	v1.TestEnvironmentIsolated:    true,
	v1.TestEnvironmentStaging:     true,
	v1.TestEnvironmentIntegration: true,
}

// Coordinator schedules and executes test suites. An execution runs only
// once its environment is reserved and every required resource claimed;
// both are released on every exit path.
type Coordinator struct {
	store    Store
	locks    *lock.Manager
	runner   Runner
	eventBus bus.EventBus
	logger   *logger.Logger
	queue    *ExecutionQueue

	workDir        string
	reportsDir     string
	reservationTTL time.Duration
	drainInterval  time.Duration
}

// NewCoordinator creates a testing coordinator.
func NewCoordinator(store Store, locks *lock.Manager, runner Runner, eventBus bus.EventBus, log *logger.Logger, cfg config.TestingConfig) *Coordinator {
	return &Coordinator{
		store:          store,
		locks:          locks,
		runner:         runner,
		eventBus:       eventBus,
		logger:         log,
		queue:          NewExecutionQueue(cfg.QueueSize),
		workDir:        cfg.WorkDir,
		reportsDir:     cfg.ReportsDir,
		reservationTTL: time.Duration(cfg.ReservationTTLHours) * time.Hour,
		drainInterval:  time.Duration(cfg.DrainIntervalSeconds) * time.Second,
	}
}

// RegisterSuiteRequest carries the fields for a new suite.
type RegisterSuiteRequest struct {
	Name              string
	Type              string
	Environment       v1.TestEnvironment
	TestFiles         []string
	Dependencies      []string
	RequiredResources []string
	EstimatedDuration int
	MaxParallelRuns   int
	RegisteredBy      string
}

// RegisterSuite records a new test suite.
func (c *Coordinator) RegisterSuite(ctx context.Context, req RegisterSuiteRequest) (*Suite, error) {
	if req.Name == "" {
		return nil, errors.ValidationError("name", "must not be empty")
	}
	if !validEnvironments[req.Environment] {
		return nil, errors.ValidationError("environment", "unknown environment: "+string(req.Environment))
	}
	if req.Type == "" {
		req.Type = SuiteTypeUnit
	}
	if req.EstimatedDuration <= 0 {
		req.EstimatedDuration = 30
	}
	if req.MaxParallelRuns <= 0 {
		req.MaxParallelRuns = 1
	}

	suite := &Suite{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Type:              req.Type,
		Environment:       req.Environment,
		TestFiles:         req.TestFiles,
		Dependencies:      req.Dependencies,
		RequiredResources: req.RequiredResources,
		EstimatedDuration: req.EstimatedDuration,
		MaxParallelRuns:   req.MaxParallelRuns,
		RegisteredBy:      req.RegisteredBy,
		CreatedAt:         time.Now().UTC(),
	}
	if err := c.store.CreateSuite(ctx, suite); err != nil {
		return nil, err
	}

	c.logger.Info("test suite registered",
		zap.String("suite_id", suite.ID),
		zap.String("name", suite.Name),
		zap.String("environment", string(suite.Environment)))
	return suite, nil
}

// Schedule creates a pending execution for the suite and queues it for
// the background drainer. Priority follows the queue's convention:
// higher drains first.
func (c *Coordinator) Schedule(ctx context.Context, suiteID, executorAgent string, priority int) (*Execution, error) {
	suite, err := c.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	exec := &Execution{
		ID:            uuid.New().String(),
		SuiteID:       suite.ID,
		ExecutorAgent: executorAgent,
		Status:        v1.ExecutionStatusScheduled,
		Environment:   suite.Environment,
		Priority:      priority,
		ScheduledAt:   time.Now().UTC(),
	}
	if err := c.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	if err := c.queue.Enqueue(exec.ID, priority); err != nil {
		return nil, err
	}

	c.publish(ctx, events.ExecutionScheduled, exec)
	c.logger.Info("execution scheduled",
		zap.String("execution_id", exec.ID),
		zap.String("suite_id", suite.ID),
		zap.Int("priority", priority))
	return exec, nil
}

// GetSuite returns the suite by id.
func (c *Coordinator) GetSuite(ctx context.Context, id string) (*Suite, error) {
	return c.store.GetSuite(ctx, id)
}

// ListSuites returns every registered suite.
func (c *Coordinator) ListSuites(ctx context.Context) ([]*Suite, error) {
	return c.store.ListSuites(ctx)
}

// GetExecution returns the execution by id.
func (c *Coordinator) GetExecution(ctx context.Context, id string) (*Execution, error) {
	return c.store.GetExecution(ctx, id)
}

// ListExecutions returns executions, optionally filtered by suite.
func (c *Coordinator) ListExecutions(ctx context.Context, suiteID string) ([]*Execution, error) {
	return c.store.ListExecutions(ctx, suiteID)
}

// ListReservations returns the live environment reservations.
func (c *Coordinator) ListReservations(ctx context.Context) ([]*Reservation, error) {
	return c.store.ListReservations(ctx, time.Now().UTC())
}

// Execute runs one scheduled execution to completion. It returns true
// only when the run passed. Contention on the environment or a resource
// marks the execution blocked; the drainer will requeue it.
func (c *Coordinator) Execute(ctx context.Context, executionID string) bool {
	log := c.logger.WithFields(zap.String("execution_id", executionID))

	exec, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		log.Warn("execute failed: execution lookup", zap.Error(err))
		return false
	}
	if exec.Status != v1.ExecutionStatusScheduled && exec.Status != v1.ExecutionStatusPending && exec.Status != v1.ExecutionStatusBlocked {
		log.Debug("execute denied: not runnable", zap.String("status", string(exec.Status)))
		return false
	}
	suite, err := c.store.GetSuite(ctx, exec.SuiteID)
	if err != nil {
		log.Error("execute failed: suite lookup", zap.Error(err))
		return false
	}

	holder := "execution:" + exec.ID

	// Phase 1: reserve the environment.
	reservation := &Reservation{
		ID:          uuid.New().String(),
		Environment: suite.Environment,
		ReservedBy:  holder,
		Purpose:     "suite " + suite.Name,
		ReservedAt:  time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(c.reservationTTL),
	}
	reserved, err := c.store.Reserve(ctx, reservation)
	if err != nil || !reserved {
		if err != nil {
			log.Error("environment reservation failed", zap.Error(err))
		}
		c.markBlocked(ctx, exec, "environment unavailable: "+string(suite.Environment))
		return false
	}

	// Phase 2: claim every required resource; roll back on denial.
	claimed := make([]string, 0, len(suite.RequiredResources))
	for _, resourceID := range suite.RequiredResources {
		if !c.locks.Claim(ctx, holder, resourceID, v1.ResourceTypeTestEnv, "test:"+suite.Name, true, suite.Timeout()) {
			for _, acquired := range claimed {
				c.locks.Release(ctx, holder, acquired)
			}
			if _, err := c.store.ReleaseReservation(ctx, reservation.ID, holder); err != nil {
				log.Error("reservation rollback failed", zap.Error(err))
			}
			c.markBlocked(ctx, exec, "resource unavailable: "+resourceID)
			return false
		}
		claimed = append(claimed, resourceID)
	}

	workDir, cleanupWorkspace, err := c.prepareWorkspace(suite)
	if err != nil {
		log.Error("workspace preparation failed", zap.Error(err))
		workDir = c.workDir
		cleanupWorkspace = func() {}
	}

	// Guaranteed cleanup: resources, reservation and workspace are
	// released exactly once no matter how the run ends.
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		for _, resourceID := range claimed {
			c.locks.Release(ctx, holder, resourceID)
		}
		if _, err := c.store.ReleaseReservation(ctx, reservation.ID, holder); err != nil {
			log.Error("reservation release failed", zap.Error(err))
		}
		cleanupWorkspace()
	}
	defer release()

	now := time.Now().UTC()
	exec.Status = v1.ExecutionStatusRunning
	exec.StartedAt = &now
	if err := c.store.UpdateExecution(ctx, exec); err != nil {
		log.Error("execute failed: status update", zap.Error(err))
		return false
	}
	c.publish(ctx, events.ExecutionStarted, exec)
	log.Info("execution running",
		zap.String("suite_id", suite.ID),
		zap.String("environment", string(suite.Environment)))

	runCtx, cancel := context.WithTimeout(ctx, suite.Timeout())
	defer cancel()

	result, runErr := c.runner.Run(runCtx, suite, workDir)
	if result == nil {
		result = &RunResult{}
	}
	if runErr != nil {
		result.Errors = append(result.Errors, runErr.Error())
		log.Error("test run errored", zap.Error(runErr))
	}

	completed := time.Now().UTC()
	exec.CompletedAt = &completed
	exec.Results = result
	if result.Succeeded() {
		exec.Status = v1.ExecutionStatusPassed
	} else {
		exec.Status = v1.ExecutionStatusFailed
	}
	if err := c.store.UpdateExecution(ctx, exec); err != nil {
		log.Error("execute failed: result update", zap.Error(err))
	}

	release()
	c.writeReport(suite, exec)
	observability.ExecutionsByStatus.WithLabelValues(string(exec.Status)).Inc()
	c.publish(ctx, events.ExecutionFinished, exec)
	log.Info("execution finished",
		zap.String("status", string(exec.Status)),
		zap.Int("passed", result.Passed),
		zap.Int("failed", result.Failed))
	return exec.Status == v1.ExecutionStatusPassed
}

func (c *Coordinator) markBlocked(ctx context.Context, exec *Execution, reason string) {
	exec.Status = v1.ExecutionStatusBlocked
	if exec.Results == nil {
		exec.Results = &RunResult{}
	}
	exec.Results.Errors = append(exec.Results.Errors, reason)
	if err := c.store.UpdateExecution(ctx, exec); err != nil {
		c.logger.Error("blocked status update failed",
			zap.String("execution_id", exec.ID), zap.Error(err))
	}
	observability.ExecutionsByStatus.WithLabelValues(string(v1.ExecutionStatusBlocked)).Inc()
	c.publish(ctx, events.ExecutionBlocked, exec)
	c.logger.Info("execution blocked",
		zap.String("execution_id", exec.ID),
		zap.String("reason", reason))
}

// prepareWorkspace returns the directory a run executes in. Non-local
// environments get an isolated working copy of the suite's files so the
// run cannot collide with local state.
func (c *Coordinator) prepareWorkspace(suite *Suite) (string, func(), error) {
	if suite.Environment == v1.TestEnvironmentLocal {
		return c.workDir, func() {}, nil
	}

	isolated, err := os.MkdirTemp(c.workDir, "crewmesh-"+string(suite.Environment)+"-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(isolated); err != nil {
			c.logger.Warn("workspace cleanup failed",
				zap.String("dir", isolated), zap.Error(err))
		}
	}

	for _, path := range suite.TestFiles {
		src := filepath.Join(c.workDir, path)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyPath(src, filepath.Join(isolated, path)); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to copy %s: %w", path, err)
		}
	}
	return isolated, cleanup, nil
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dst, info.Mode()); err != nil {
			return err
		}
		for _, entry := range entries {
			if err := copyPath(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// writeReport persists the structured per-execution report.
func (c *Coordinator) writeReport(suite *Suite, exec *Execution) {
	report := &Report{
		ExecutionID: exec.ID,
		SuiteID:     suite.ID,
		SuiteName:   suite.Name,
		SuiteType:   suite.Type,
		Environment: suite.Environment,
		Executor:    exec.ExecutorAgent,
		Status:      exec.Status,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		Results:     exec.Results,
		Summary:     summarize(suite, exec),
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		c.logger.Error("report marshal failed", zap.String("execution_id", exec.ID), zap.Error(err))
		return
	}
	if err := os.MkdirAll(c.reportsDir, 0o755); err != nil {
		c.logger.Error("reports dir creation failed", zap.Error(err))
		return
	}
	path := filepath.Join(c.reportsDir, "execution-"+exec.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Error("report write failed", zap.String("path", path), zap.Error(err))
	}
}

func summarize(suite *Suite, exec *Execution) string {
	r := exec.Results
	if r == nil {
		return fmt.Sprintf("suite %q finished with status %s", suite.Name, exec.Status)
	}
	return fmt.Sprintf("suite %q finished with status %s: %d passed, %d failed, %d skipped, %.1f%% coverage",
		suite.Name, exec.Status, r.Passed, r.Failed, r.Skipped, r.Coverage)
}

// RunQueueDrainer serially drains queued executions until ctx is
// cancelled. An execution whose environment is still reserved goes back
// on the queue for the next pass.
func (c *Coordinator) RunQueueDrainer(ctx context.Context) {
	ticker := time.NewTicker(c.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drainOne(ctx)
		}
	}
}

func (c *Coordinator) drainOne(ctx context.Context) {
	executionID := c.queue.Dequeue()
	if executionID == "" {
		return
	}

	if c.Execute(ctx, executionID) {
		return
	}

	// Requeue only contention; terminal failures stay failed.
	exec, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		c.logger.Error("drain requeue lookup failed",
			zap.String("execution_id", executionID), zap.Error(err))
		return
	}
	if exec.Status == v1.ExecutionStatusBlocked {
		if err := c.queue.Enqueue(executionID, exec.Priority); err != nil {
			c.logger.Warn("requeue failed",
				zap.String("execution_id", executionID), zap.Error(err))
		}
	}
}

// SweepReservations reclaims expired environment reservations.
func (c *Coordinator) SweepReservations(ctx context.Context) int64 {
	removed, err := c.store.DeleteExpiredReservations(ctx, time.Now().UTC())
	if err != nil {
		c.logger.Error("reservation sweep failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		c.logger.Info("expired reservations reclaimed", zap.Int64("count", removed))
	}
	return removed
}

// RunReservationSweeper reclaims expired reservations on the drain
// interval until ctx is cancelled.
func (c *Coordinator) RunReservationSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.SweepRuns.WithLabelValues("environment_reservation").Inc()
			c.SweepReservations(ctx)
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, eventType string, exec *Execution) {
	if c.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "testing-coordinator", map[string]any{
		"execution_id": exec.ID,
		"suite_id":     exec.SuiteID,
		"status":       string(exec.Status),
	})
	if err := c.eventBus.Publish(ctx, eventType, event); err != nil {
		c.logger.Debug("execution event publish failed", zap.Error(err))
	}
}

// Package testrun implements the testing coordinator: suite registration,
// execution scheduling, environment reservation and serialized resource
// access around test runs. Resources and reservations are released on
// every exit path.
package testrun

import (
	"time"

	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Suite types with dedicated runner behavior.
const (
	SuiteTypeUnit        = "unit"
	SuiteTypeIntegration = "integration"
	SuiteTypePerformance = "performance"
	SuiteTypeSecurity    = "security"
)

// Suite is a registered test suite.
type Suite struct {
	ID                string             `db:"id"`
	Name              string             `db:"name"`
	Type              string             `db:"type"`
	Environment       v1.TestEnvironment `db:"environment"`
	TestFiles         []string           `db:"-"`
	Dependencies      []string           `db:"-"`
	RequiredResources []string           `db:"-"`
	EstimatedDuration int                `db:"estimated_duration"`
	MaxParallelRuns   int                `db:"max_parallel_runs"`
	RegisteredBy      string             `db:"registered_by"`
	CreatedAt         time.Time          `db:"created_at"`
}

// Timeout returns the hard run timeout derived from the suite's
// estimated duration.
func (s *Suite) Timeout() time.Duration {
	return time.Duration(s.EstimatedDuration) * time.Minute
}

// Execution is one scheduled run of a suite.
type Execution struct {
	ID            string             `db:"id"`
	SuiteID       string             `db:"suite_id"`
	ExecutorAgent string             `db:"executor_agent"`
	Status        v1.ExecutionStatus `db:"status"`
	Environment   v1.TestEnvironment `db:"environment"`
	Priority      int                `db:"priority"`
	ScheduledAt   time.Time          `db:"scheduled_at"`
	StartedAt     *time.Time         `db:"started_at"`
	CompletedAt   *time.Time         `db:"completed_at"`
	Results       *RunResult
	Logs          []string `db:"-"`
}

// RunResult is the parsed outcome of one run.
type RunResult struct {
	Passed   int      `json:"passed" yaml:"passed"`
	Failed   int      `json:"failed" yaml:"failed"`
	Skipped  int      `json:"skipped" yaml:"skipped"`
	Coverage float64  `json:"coverage" yaml:"coverage"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Output   string   `json:"output,omitempty" yaml:"output,omitempty"`
}

// Succeeded reports whether the run passed outright.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Failed == 0 && len(r.Errors) == 0
}

// Reservation grants one agent exclusive use of an environment.
type Reservation struct {
	ID          string             `db:"id"`
	Environment v1.TestEnvironment `db:"environment"`
	ReservedBy  string             `db:"reserved_by"`
	Purpose     string             `db:"purpose"`
	ReservedAt  time.Time          `db:"reserved_at"`
	ExpiresAt   time.Time          `db:"expires_at"`
}

// Expired reports whether the reservation has lapsed at now.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Report is the structured per-execution document written to the
// reports store.
type Report struct {
	ExecutionID string             `yaml:"execution_id"`
	SuiteID     string             `yaml:"suite_id"`
	SuiteName   string             `yaml:"suite_name"`
	SuiteType   string             `yaml:"suite_type"`
	Environment v1.TestEnvironment `yaml:"environment"`
	Executor    string             `yaml:"executor"`
	Status      v1.ExecutionStatus `yaml:"status"`
	StartedAt   *time.Time         `yaml:"started_at,omitempty"`
	CompletedAt *time.Time         `yaml:"completed_at,omitempty"`
	Results     *RunResult         `yaml:"results,omitempty"`
	Summary     string             `yaml:"summary"`
}

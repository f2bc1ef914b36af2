package testrun

import (
	"context"
	"time"
)

// Store persists suites, executions and environment reservations.
type Store interface {
	CreateSuite(ctx context.Context, suite *Suite) error
	GetSuite(ctx context.Context, id string) (*Suite, error)
	ListSuites(ctx context.Context) ([]*Suite, error)

	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, exec *Execution) error
	ListExecutions(ctx context.Context, suiteID string) ([]*Execution, error)

	// Reserve atomically grants the environment to reservedBy if no
	// unexpired reservation exists for it. Returns false on contention.
	Reserve(ctx context.Context, r *Reservation) (bool, error)

	// ReleaseReservation drops the reservation if reservedBy owns it.
	ReleaseReservation(ctx context.Context, id, reservedBy string) (bool, error)

	ListReservations(ctx context.Context, now time.Time) ([]*Reservation, error)

	// DeleteExpiredReservations reclaims lapsed reservations.
	DeleteExpiredReservations(ctx context.Context, now time.Time) (int64, error)
}

package task

import "context"

// Store persists the task ledger.
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, task *Task) error
	List(ctx context.Context) ([]*Task, error)

	// ListPending returns pending tasks ordered by (priority rank, created_at).
	ListPending(ctx context.Context) ([]*Task, error)
}

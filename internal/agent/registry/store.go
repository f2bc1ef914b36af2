package registry

import "context"

// Store persists agent capability profiles.
type Store interface {
	Upsert(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, agentID string) (*Agent, error)
	List(ctx context.Context) ([]*Agent, error)
	Delete(ctx context.Context, agentID string) error

	// AdjustLoad changes the agent's current load by delta, clamped at zero.
	AdjustLoad(ctx context.Context, agentID string, delta int) error
}

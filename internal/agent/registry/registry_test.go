package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmesh/crewmesh/internal/common/logger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text"})
	require.NoError(t, err)
	return NewRegistry(NewMemoryStore(), log)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	agent, err := reg.Register(ctx, "agent-1", []string{"python", "testing"}, []string{"api"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", agent.AgentID)
	assert.Equal(t, 3, agent.MaxConcurrentTasks)

	got, err := reg.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "testing"}, got.Capabilities)
	assert.Equal(t, 0, got.CurrentLoad)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "", nil, nil, 1)
	assert.Error(t, err)

	agent, err := reg.Register(ctx, "agent-1", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, agent.MaxConcurrentTasks)
}

func TestRegistry_ReRegisterKeepsLoad(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "agent-1", []string{"python"}, nil, 2)
	require.NoError(t, err)
	reg.IncrementLoad(ctx, "agent-1")

	_, err = reg.Register(ctx, "agent-1", []string{"python", "go"}, nil, 4)
	require.NoError(t, err)

	got, err := reg.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentLoad)
	assert.Equal(t, 4, got.MaxConcurrentTasks)
	assert.Equal(t, []string{"python", "go"}, got.Capabilities)
}

func TestRegistry_CanAccept(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "agent-1", []string{"python"}, []string{"database"}, 1)
	require.NoError(t, err)

	assert.True(t, reg.CanAccept(ctx, "agent-1", []string{"python"}))
	assert.True(t, reg.CanAccept(ctx, "agent-1", []string{"database"}))
	assert.False(t, reg.CanAccept(ctx, "agent-1", []string{"frontend"}))
	assert.True(t, reg.CanAccept(ctx, "agent-1", nil))

	// At capacity.
	reg.IncrementLoad(ctx, "agent-1")
	assert.False(t, reg.CanAccept(ctx, "agent-1", []string{"python"}))
	reg.DecrementLoad(ctx, "agent-1")
	assert.True(t, reg.CanAccept(ctx, "agent-1", []string{"python"}))

	// Unregistered agents are universally capable.
	assert.True(t, reg.CanAccept(ctx, "stranger", []string{"anything"}))
}

func TestRegistry_LoadClampedAtZero(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "agent-1", nil, nil, 2)
	require.NoError(t, err)

	reg.DecrementLoad(ctx, "agent-1")
	reg.DecrementLoad(ctx, "agent-1")

	got, err := reg.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentLoad)
}

func TestRegistry_Deregister(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "agent-1", nil, nil, 1)
	require.NoError(t, err)
	require.NoError(t, reg.Deregister(ctx, "agent-1"))

	_, err = reg.Get(ctx, "agent-1")
	assert.Error(t, err)
	assert.Error(t, reg.Deregister(ctx, "agent-1"))
}

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	cfg := config.LockConfig{DefaultTTLMinutes: 30, SweepIntervalSeconds: 30}
	return NewManager(NewMemoryStore(), nil, log, cfg)
}

func TestSlot_Stable(t *testing.T) {
	assert.Equal(t, Slot("file:main.go"), Slot("file:main.go"))
	assert.NotEqual(t, Slot("file:main.go"), Slot("file:other.go"))
	assert.Len(t, Slot("anything"), 16)
}

func TestManager_ExclusiveClaimConflicts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Claim(ctx, "agent-a", "file:a.py", v1.ResourceTypeFile, "edit", true, time.Minute))
	assert.False(t, m.Claim(ctx, "agent-b", "file:a.py", v1.ResourceTypeFile, "edit", true, time.Minute),
		"second exclusive claim must be denied")
	assert.False(t, m.IsFree(ctx, "file:a.py"))

	// Only the recorded owner may release.
	assert.False(t, m.Release(ctx, "agent-b", "file:a.py"))
	assert.False(t, m.IsFree(ctx, "file:a.py"))

	assert.True(t, m.Release(ctx, "agent-a", "file:a.py"))
	assert.True(t, m.IsFree(ctx, "file:a.py"))
	assert.True(t, m.Claim(ctx, "agent-b", "file:a.py", v1.ResourceTypeFile, "edit", true, time.Minute))
}

func TestManager_SharedClaimsCoexist(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Claim(ctx, "agent-a", "cfg", v1.ResourceTypeConfig, "read", false, time.Minute))
	assert.True(t, m.Claim(ctx, "agent-b", "cfg", v1.ResourceTypeConfig, "read", false, time.Minute),
		"shared claims should coexist")
	assert.False(t, m.Claim(ctx, "agent-c", "cfg", v1.ResourceTypeConfig, "write", true, time.Minute),
		"exclusive claim must be denied while shared claims are held")

	claims, err := m.ActiveClaims(ctx, "cfg")
	require.NoError(t, err)
	assert.Len(t, claims, 2)
}

func TestManager_ExpiryMakesResourceClaimable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Claim(ctx, "agent-a", "db", v1.ResourceTypeTestEnv, "test", true, 20*time.Millisecond))
	assert.False(t, m.Claim(ctx, "agent-b", "db", v1.ResourceTypeTestEnv, "test", true, time.Minute))

	time.Sleep(30 * time.Millisecond)

	// Expired claims no longer block, with or without a sweep.
	assert.True(t, m.IsFree(ctx, "db"))
	assert.True(t, m.Claim(ctx, "agent-b", "db", v1.ResourceTypeTestEnv, "test", true, time.Minute))
}

func TestManager_SweepRemovesExpiredClaims(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Claim(ctx, "agent-a", "r1", v1.ResourceTypeFile, "edit", true, 10*time.Millisecond))
	require.True(t, m.Claim(ctx, "agent-b", "r2", v1.ResourceTypeFile, "edit", true, time.Minute))

	time.Sleep(20 * time.Millisecond)

	removed := m.SweepExpired(ctx)
	assert.Equal(t, int64(1), removed)

	remaining, err := m.ListClaims(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "r2", remaining[0].ResourceID)
}

func TestManager_ClaimValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	assert.False(t, m.Claim(ctx, "", "r1", v1.ResourceTypeFile, "edit", true, time.Minute))
	assert.False(t, m.Claim(ctx, "agent-a", "", v1.ResourceTypeFile, "edit", true, time.Minute))
}

package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
)

func newTestService(t *testing.T) (*Service, *registry.Registry) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	reg := registry.NewRegistry(registry.NewMemoryStore(), log)
	cfg := config.MessagingConfig{PollIntervalSeconds: 2, RetentionDays: 7, BroadcastTTLHours: 24}
	return NewService(NewMemoryStore(), reg, nil, log, cfg), reg
}

func TestService_SendDeliversToInboxAndOutbox(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	// The service has no side channel wired at all; inbox delivery must
	// still happen.
	msg, err := svc.Send(ctx, SendRequest{
		From: "alice", To: "bob", Type: TypeHelpRequest,
		Subject: "stuck on migration",
		Content: map[string]any{"detail": "fk violation"},
	})
	require.NoError(t, err)

	inbox, err := svc.Inbox(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, msg.ID, inbox[0].ID)
	assert.Equal(t, StateDelivered, inbox[0].State)

	outbox, err := svc.Outbox(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	assert.Equal(t, msg.ID, outbox[0].ID)
}

func TestService_SendValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Send(ctx, SendRequest{To: "bob", Type: "x"})
	assert.Error(t, err)
	_, err = svc.Send(ctx, SendRequest{From: "alice", Type: "x"})
	assert.Error(t, err)
	_, err = svc.Send(ctx, SendRequest{From: "alice", To: "bob"})
	assert.Error(t, err)
}

func TestConsumer_IdempotentProcessing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Send(ctx, SendRequest{From: "alice", To: "bob", Type: "status_update"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, SendRequest{From: "carol", To: "bob", Type: "status_update"})
	require.NoError(t, err)

	invocations := 0
	consumer := svc.Consumer("bob")
	consumer.RegisterHandler("status_update", func(ctx context.Context, m *Message) error {
		invocations++
		return nil
	})

	assert.Equal(t, 2, consumer.ProcessOnce(ctx))
	assert.Equal(t, 2, invocations)

	// A second sweep over the same inbox must not re-invoke handlers.
	assert.Equal(t, 0, consumer.ProcessOnce(ctx))
	assert.Equal(t, 2, invocations)
}

func TestConsumer_TagSubscriptionDiscardsNonMatching(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Send(ctx, SendRequest{From: "alice", To: "bob", Type: "note", Tags: []string{"x"}})
	require.NoError(t, err)

	handled := 0
	consumer := svc.Consumer("bob")
	consumer.RegisterHandler("note", func(ctx context.Context, m *Message) error {
		handled++
		return nil
	})
	consumer.Subscribe("y")

	assert.Equal(t, 0, consumer.ProcessOnce(ctx))
	assert.Equal(t, 0, handled)

	// The message is still present in the inbox store, just discarded.
	inbox, err := svc.Inbox(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, StateDiscarded, inbox[0].State)

	// A later matching subscription does not resurrect it.
	consumer.Subscribe("x")
	assert.Equal(t, 0, consumer.ProcessOnce(ctx))
}

func TestConsumer_HandlerErrorStillConsumes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Send(ctx, SendRequest{From: "alice", To: "bob", Type: TypeHelpRequest})
	require.NoError(t, err)

	consumer := svc.Consumer("bob")
	consumer.RegisterHandler(TypeHelpRequest, func(ctx context.Context, m *Message) error {
		return assert.AnError
	})

	assert.Equal(t, 1, consumer.ProcessOnce(ctx))
	assert.Equal(t, 0, consumer.ProcessOnce(ctx), "errored message is not redelivered")
}

func TestService_BroadcastFansOutToAllButSender(t *testing.T) {
	ctx := context.Background()
	svc, reg := newTestService(t)

	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		_, err := reg.Register(ctx, id, nil, nil, 1)
		require.NoError(t, err)
	}

	b, reached, err := svc.Broadcast(ctx, BroadcastRequest{
		From:  "alice",
		Title: "deploy window tonight",
	})
	require.NoError(t, err)
	assert.Len(t, reached, 3)
	assert.NotContains(t, reached, "alice")

	senderInbox, err := svc.Inbox(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, senderInbox)

	for _, id := range []string{"bob", "carol", "dave"} {
		inbox, err := svc.Inbox(ctx, id)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, TypeBroadcastNotice, inbox[0].Type)
		assert.Equal(t, b.ID, inbox[0].Content["broadcast_id"])
	}

	active, err := svc.Broadcasts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestService_BroadcastExplicitTargets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, reached, err := svc.Broadcast(ctx, BroadcastRequest{
		From:    "alice",
		Title:   "heads up",
		Targets: []string{"bob", "alice", "carol"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, reached)
}

func TestService_RetentionSweep(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	msg, err := svc.Send(ctx, SendRequest{From: "alice", To: "bob", Type: "note"})
	require.NoError(t, err)

	// Nothing is old enough yet.
	assert.Equal(t, int64(0), svc.SweepRetention(ctx))

	// Age the message past the retention window via the store directly.
	removed, err := svc.store.PurgeOlderThan(ctx, msg.Timestamp.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed, "inbox and outbox copies")

	inbox, err := svc.Inbox(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

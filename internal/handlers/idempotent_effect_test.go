package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"outbox-dispatcher/internal/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	srv, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return client, srv.Close
}

type recordingEffect struct {
	calls int
	err   error
}

func (r *recordingEffect) HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error {
	r.calls++
	return r.err
}

func testEvent() events.IntegrationEvent {
	return events.IntegrationEvent{
		EventID:    uuid.New(),
		EventName:  events.EventOrderPlaced,
		OccurredAt: time.Now(),
		Payload:    json.RawMessage(`{}`),
	}
}

func TestIdempotentEffectHandler_SkipsDuplicateInvocation(t *testing.T) {
	client, cleanup := newTestRedisClient(t)
	defer cleanup()

	inner := &recordingEffect{}
	handler := NewIdempotentEffectHandler(inner, client)
	evt := testEvent()

	require.NoError(t, handler.HandleExternalEffect(context.Background(), evt))
	require.NoError(t, handler.HandleExternalEffect(context.Background(), evt))

	require.Equal(t, 1, inner.calls, "second invocation for the same event id must not reach the inner handler")
}

func TestIdempotentEffectHandler_ReleasesClaimOnFailure(t *testing.T) {
	client, cleanup := newTestRedisClient(t)
	defer cleanup()

	inner := &recordingEffect{err: errors.New("downstream unavailable")}
	handler := NewIdempotentEffectHandler(inner, client)
	evt := testEvent()

	err := handler.HandleExternalEffect(context.Background(), evt)
	require.Error(t, err)

	inner.err = nil
	err = handler.HandleExternalEffect(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls, "a retry after failure must reach the inner handler again")
}

func TestIdempotentEffectHandler_DifferentEventsClaimDistinctKeys(t *testing.T) {
	client, cleanup := newTestRedisClient(t)
	defer cleanup()

	inner := &recordingEffect{}
	handler := NewIdempotentEffectHandler(inner, client)

	require.NoError(t, handler.HandleExternalEffect(context.Background(), testEvent()))
	require.NoError(t, handler.HandleExternalEffect(context.Background(), testEvent()))

	require.Equal(t, 2, inner.calls, "distinct event ids must each reach the inner handler")
}

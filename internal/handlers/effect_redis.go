package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"outbox-dispatcher/internal/events"

	"github.com/redis/go-redis/v9"
)

// RedisChannelName is the Redis Pub/Sub channel integration events publish to.
const RedisChannelName = "commerce:integration-events"

// redisEventPayload is the wire shape published to the channel. It carries
// the envelope fields a subscriber needs to route and dedup on, without
// exposing the dispatcher's internal outbox row shape.
type redisEventPayload struct {
	EventID       string          `json:"event_id"`
	EventName     string          `json:"event_name"`
	CorrelationID string          `json:"correlation_id"`
	OccurredAt    int64           `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// RedisEffectHandler publishes integration events to Redis Pub/Sub. It
// satisfies ExternalEffectHandler.
type RedisEffectHandler struct {
	client *redis.Client
}

// NewRedisEffectHandler builds a RedisEffectHandler over an existing client.
func NewRedisEffectHandler(client *redis.Client) *RedisEffectHandler {
	return &RedisEffectHandler{client: client}
}

// HandleExternalEffect publishes evt and returns only the publish error, if
// any; the number of subscribers that received it is not reported. Pub/Sub delivery is at-most-once to whoever is
// currently subscribed; callers that need durable delivery should use
// NATSEffectHandler or SQSEffectHandler instead.
func (h *RedisEffectHandler) HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error {
	payload := redisEventPayload{
		EventID:       evt.EventID.String(),
		EventName:     evt.EventName,
		CorrelationID: evt.CorrelationID.String(),
		OccurredAt:    evt.OccurredAt.UnixMilli(),
		Payload:       evt.Payload,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal redis event payload: %w", err)
	}

	if err := h.client.Publish(ctx, RedisChannelName, data).Err(); err != nil {
		return fmt.Errorf("publish to channel %s: %w", RedisChannelName, err)
	}
	return nil
}

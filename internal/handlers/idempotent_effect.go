package handlers

import (
	"context"
	"fmt"
	"time"

	"outbox-dispatcher/internal/events"

	"github.com/redis/go-redis/v9"
)

// dedupKeyPrefix namespaces the Redis keys this handler claims, keyed by
// event id.
const dedupKeyPrefix = "outbox:dedup:"

// dedupTTL bounds how long an unreleased claim survives. It only needs to
// outlive the retry window (minutes, per RetryPolicy's cap) plus the time a
// crashed worker's lease takes to go stale, so an hour comfortably covers
// both without claims piling up in Redis forever.
const dedupTTL = time.Hour

// IdempotentEffectHandler decorates an ExternalEffectHandler with a
// Redis-backed dedup claim keyed by event id, an alternative to the
// Postgres inbox table for deployments that would rather keep dedup state
// out of the primary database. The claim is taken with SETNX before inner
// runs and released if inner fails, so a retried message can still reach
// the downstream system instead of being permanently (and wrongly) treated
// as already delivered.
type IdempotentEffectHandler struct {
	inner  ExternalEffectHandler
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotentEffectHandler wraps inner with a dedup claim backed by
// client.
func NewIdempotentEffectHandler(inner ExternalEffectHandler, client *redis.Client) *IdempotentEffectHandler {
	return &IdempotentEffectHandler{inner: inner, client: client, ttl: dedupTTL}
}

// HandleExternalEffect claims evt's event id in Redis before delegating to
// inner. A duplicate claim is treated as success: the dispatcher's
// retry-whole-message behavior means this handler may see the same event
// id again after the paired projection handler failed once. Claiming
// before the inner call runs means two concurrent retries can't both reach
// the downstream system; if inner then fails, the claim is released so the
// next retry is allowed through.
func (h *IdempotentEffectHandler) HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error {
	key := dedupKeyPrefix + evt.EventID.String()

	claimed, err := h.client.SetNX(ctx, key, "1", h.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim dedup key: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := h.inner.HandleExternalEffect(ctx, evt); err != nil {
		if delErr := h.client.Del(ctx, key).Err(); delErr != nil {
			return fmt.Errorf("external effect failed (%v) and releasing dedup claim also failed: %w", err, delErr)
		}
		return err
	}
	return nil
}

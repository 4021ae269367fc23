package handlers

import (
	"context"
	"fmt"

	"outbox-dispatcher/internal/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSEffectHandler publishes integration events onto a JetStream stream,
// keyed for at-least-once-but-deduplicated delivery. Unlike the Redis
// Pub/Sub handler, a consumer that was offline when the dispatcher retried
// a message still receives it once the stream replays.
type NATSEffectHandler struct {
	js      jetstream.JetStream
	subject string
}

// NewNATSEffectHandler builds a NATSEffectHandler publishing to subject.
func NewNATSEffectHandler(js jetstream.JetStream, subject string) *NATSEffectHandler {
	return &NATSEffectHandler{js: js, subject: subject}
}

// HandleExternalEffect publishes evt, setting the JetStream deduplication
// header to the event's own id. A repeat invocation for a message the
// dispatcher is retrying (handler succeeded once, the paired handler
// failed) is deduplicated by the broker itself, not by this handler.
func (h *NATSEffectHandler) HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error {
	data, err := events.Encode(evt)
	if err != nil {
		return fmt.Errorf("encode event for jetstream publish: %w", err)
	}

	msg := &nats.Msg{
		Subject: h.subject,
		Data:    data,
		Header:  make(nats.Header),
	}
	msg.Header.Set("Nats-Msg-Id", evt.EventID.String())

	if _, err := h.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish to subject %s: %w", h.subject, err)
	}
	return nil
}

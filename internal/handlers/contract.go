// Package handlers defines the two handler capabilities the dispatcher
// invokes for every outbox message, plus reference and decorator
// implementations. Handler bodies are named collaborators per the core
// design, not part of it: the dispatcher only depends on these interfaces.
package handlers

import (
	"context"

	"outbox-dispatcher/internal/events"
)

// ProjectionHandler updates a read model from an integration event. It must
// be idempotent: the dispatcher may invoke it more than once for the same
// event (after a crash recovery, or when the external-effect handler fails
// and the whole message is retried).
type ProjectionHandler interface {
	HandleProjection(ctx context.Context, evt events.IntegrationEvent) error
}

// ExternalEffectHandler performs a side effect outside this service's own
// storage — publishing to a broker, calling a downstream API — for an
// integration event. Like ProjectionHandler, it must tolerate repeat
// invocation for the same event.
type ExternalEffectHandler interface {
	HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error
}

// ProjectionHandlerFunc adapts a plain function to ProjectionHandler.
type ProjectionHandlerFunc func(ctx context.Context, evt events.IntegrationEvent) error

func (f ProjectionHandlerFunc) HandleProjection(ctx context.Context, evt events.IntegrationEvent) error {
	return f(ctx, evt)
}

// ExternalEffectHandlerFunc adapts a plain function to ExternalEffectHandler.
type ExternalEffectHandlerFunc func(ctx context.Context, evt events.IntegrationEvent) error

func (f ExternalEffectHandlerFunc) HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error {
	return f(ctx, evt)
}

package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"outbox-dispatcher/internal/events"
	"outbox-dispatcher/internal/handlers"
)

func TestMessageProcessor_InvokeHandlers_BothFailJoinsBothErrors(t *testing.T) {
	mp := &MessageProcessor{
		projection: handlers.ProjectionHandlerFunc(func(ctx context.Context, evt events.IntegrationEvent) error {
			return errors.New("projection boom")
		}),
		effect: handlers.ExternalEffectHandlerFunc(func(ctx context.Context, evt events.IntegrationEvent) error {
			return errors.New("effect boom")
		}),
	}

	err := mp.invokeHandlers(context.Background(), events.IntegrationEvent{})
	if err == nil {
		t.Fatal("expected an error when both handlers fail")
	}
	if !strings.Contains(err.Error(), "projection boom") {
		t.Errorf("expected joined error to contain the projection failure, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "effect boom") {
		t.Errorf("expected joined error to contain the external effect failure, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "None") {
		t.Errorf("expected neither side to read as None when both failed, got %q", err.Error())
	}
}

func TestMessageProcessor_InvokeHandlers_OneFailsOtherReadsNone(t *testing.T) {
	mp := &MessageProcessor{
		projection: handlers.ProjectionHandlerFunc(func(ctx context.Context, evt events.IntegrationEvent) error {
			return errors.New("projection boom")
		}),
		effect: handlers.ExternalEffectHandlerFunc(func(ctx context.Context, evt events.IntegrationEvent) error {
			return nil
		}),
	}

	err := mp.invokeHandlers(context.Background(), events.IntegrationEvent{})
	if err == nil {
		t.Fatal("expected an error when the projection handler fails")
	}
	if !strings.Contains(err.Error(), "projection boom") {
		t.Errorf("expected joined error to contain the projection failure, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "external_effect: None") {
		t.Errorf("expected the succeeding side to read as None, got %q", err.Error())
	}
}

func TestMessageProcessor_InvokeHandlers_BothSucceed(t *testing.T) {
	mp := &MessageProcessor{
		projection: handlers.ProjectionHandlerFunc(func(ctx context.Context, evt events.IntegrationEvent) error {
			return nil
		}),
		effect: handlers.ExternalEffectHandlerFunc(func(ctx context.Context, evt events.IntegrationEvent) error {
			return nil
		}),
	}

	if err := mp.invokeHandlers(context.Background(), events.IntegrationEvent{}); err != nil {
		t.Fatalf("expected no error when both handlers succeed, got %v", err)
	}
}

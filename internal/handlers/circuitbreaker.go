package handlers

import (
	"context"
	"time"

	"outbox-dispatcher/internal/events"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreakerConfig tunes the breaker wrapping an ExternalEffectHandler.
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailRatio   float64
}

// DefaultCircuitBreakerConfig trips after at least 10 requests with a
// failure ratio of 60% or worse, and probes again after 30 seconds open.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MinRequests: 10,
		FailRatio:   0.6,
	}
}

// CircuitBreakerEffectHandler decorates an ExternalEffectHandler so that a
// downstream outage fails fast instead of letting every leased message in a
// batch hang on the same dead target. A tripped breaker returns an error
// immediately, which the message processor treats like any other handler
// failure: reschedule with backoff, or DLQ once attempts are exhausted.
type CircuitBreakerEffectHandler struct {
	inner   ExternalEffectHandler
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewCircuitBreakerEffectHandler wraps inner with a breaker built from cfg.
func NewCircuitBreakerEffectHandler(inner ExternalEffectHandler, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerEffectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("external effect circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &CircuitBreakerEffectHandler{inner: inner, breaker: breaker, logger: logger}
}

// HandleExternalEffect runs inner through the breaker.
func (h *CircuitBreakerEffectHandler) HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error {
	_, err := h.breaker.Execute(func() (interface{}, error) {
		return nil, h.inner.HandleExternalEffect(ctx, evt)
	})
	return err
}

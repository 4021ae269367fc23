package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"outbox-dispatcher/internal/events"
	"outbox-dispatcher/internal/handlers"
	"outbox-dispatcher/internal/outboxstore"

	"github.com/google/uuid"
)

// MessageProcessor resolves a single leased message to one of three
// outcomes: delete on success, reschedule with backoff on a recoverable
// failure, or transfer to the dead-letter table once the retry budget is
// exhausted.
type MessageProcessor struct {
	store       *outboxstore.Store
	projection  handlers.ProjectionHandler
	effect      handlers.ExternalEffectHandler
	maxAttempts int
	retry       RetryPolicy
	now         func() time.Time
}

// NewMessageProcessor builds a MessageProcessor. maxAttempts is the retry
// budget from spec §4.5: attempts counts failures, not leases, so a message
// that has already failed maxAttempts-1 times is dead-lettered on its next
// failure (maxAttempts=1 dead-letters on the first failure).
func NewMessageProcessor(store *outboxstore.Store, projection handlers.ProjectionHandler, effect handlers.ExternalEffectHandler, maxAttempts int, retry RetryPolicy) *MessageProcessor {
	return &MessageProcessor{
		store:       store,
		projection:  projection,
		effect:      effect,
		maxAttempts: maxAttempts,
		retry:       retry,
		now:         time.Now,
	}
}

// Outcome reports what happened to a single leased message, for metrics and
// logging at the batch level.
type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeRetried
	OutcomeDeadLettered
	OutcomeSkipped
)

// Process fetches id's full row, invokes both handlers concurrently, and
// resolves the message per the rules above. A message another worker
// already resolved (ErrNotFound on re-fetch) resolves as OutcomeSkipped,
// not an error: that is the expected shape of a race between two workers
// recovering the same stale lease.
func (m *MessageProcessor) Process(ctx context.Context, id uuid.UUID) (Outcome, error) {
	msg, err := m.store.Fetch(ctx, id)
	if err != nil {
		if err == outboxstore.ErrNotFound {
			return OutcomeSkipped, nil
		}
		return OutcomeSkipped, fmt.Errorf("fetch leased message %s: %w", id, err)
	}

	evt, err := events.Decode(msg.Event)
	if err != nil {
		return m.fail(ctx, id, fmt.Errorf("decode message %s: %w", id, err))
	}

	if err := m.invokeHandlers(ctx, evt); err != nil {
		return m.fail(ctx, id, err)
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := m.store.Delete(ctx, tx, id); err != nil {
		return OutcomeSkipped, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OutcomeSkipped, fmt.Errorf("commit delete transaction: %w", err)
	}
	return OutcomeProcessed, nil
}

// invokeHandlers runs both handler capabilities concurrently and requires
// both to succeed, per §4.4's AND-combination rule. When either side fails,
// the returned error joins both outcomes (substituting "None" for a side
// that succeeded) so a subsequent dead-letter transfer's last_error records
// what both handlers did, not just whichever failed.
func (m *MessageProcessor) invokeHandlers(ctx context.Context, evt events.IntegrationEvent) error {
	var wg sync.WaitGroup
	var projErr, effectErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		projErr = m.projection.HandleProjection(ctx, evt)
	}()
	go func() {
		defer wg.Done()
		effectErr = m.effect.HandleExternalEffect(ctx, evt)
	}()
	wg.Wait()

	if projErr == nil && effectErr == nil {
		return nil
	}
	return fmt.Errorf("projection: %s | external_effect: %s", outcomeString(projErr), outcomeString(effectErr))
}

// outcomeString renders a handler's result for the joined error string:
// its error text, or the sentinel "None" if it succeeded.
func outcomeString(err error) string {
	if err == nil {
		return "None"
	}
	return err.Error()
}

// fail runs the failure protocol from §4.5: re-read the row's attempts
// count under a row lock (so a racing stale-lease recovery by another
// worker can't double count), increment it, and either reschedule or
// transfer to the dead-letter table.
func (m *MessageProcessor) fail(ctx context.Context, id uuid.UUID, cause error) (Outcome, error) {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("begin failure transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	attempts, err := m.store.FetchAttemptsForUpdate(ctx, tx, id)
	if err != nil {
		if err == outboxstore.ErrNotFound {
			return OutcomeSkipped, nil
		}
		return OutcomeSkipped, err
	}
	attempts++

	if attempts >= m.maxAttempts {
		msg, err := m.store.Fetch(ctx, id)
		if err != nil {
			return OutcomeSkipped, err
		}
		if err := m.store.TransferToDLQ(ctx, tx, id, msg.Event, m.now(), cause.Error()); err != nil {
			return OutcomeSkipped, err
		}
		if err := tx.Commit(ctx); err != nil {
			return OutcomeSkipped, fmt.Errorf("commit dlq transfer: %w", err)
		}
		return OutcomeDeadLettered, nil
	}

	nextAt := m.retry.NextAvailableAt(m.now(), attempts)
	if err := m.store.ScheduleRetry(ctx, tx, id, attempts, nextAt); err != nil {
		return OutcomeSkipped, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OutcomeSkipped, fmt.Errorf("commit retry schedule: %w", err)
	}
	return OutcomeRetried, nil
}

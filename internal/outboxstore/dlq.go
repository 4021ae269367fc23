package outboxstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	listDeadLettersSQL = `
SELECT id, failed_at, event, last_error
FROM outbox_dead_letter
ORDER BY failed_at DESC
LIMIT $1`

	fetchDeadLetterForUpdateSQL = `
SELECT id, failed_at, event, last_error
FROM outbox_dead_letter
WHERE id = $1
FOR UPDATE`

	deleteDeadLetterSQL = `DELETE FROM outbox_dead_letter WHERE id = $1`

	reinsertOutboxSQL = `
INSERT INTO outbox (id, status, attempts, event)
VALUES ($1, 'pending', 0, $2)`
)

// ListDeadLetters returns up to limit dead-letter rows, most recently failed
// first. Used by the `dlq list` operator command.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, listDeadLettersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.FailedAt, &dl.Event, &dl.LastError); err != nil {
			return nil, fmt.Errorf("scan dead letter row: %w", err)
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// RequeueDeadLetter moves a dead-letter row back onto the outbox with a
// fresh zero attempts count, deleting it from the dead-letter table in the
// same transaction. This is an operator action (the `dlq requeue` command),
// never something the poll loop does on its own: a message that exhausted
// its retry budget stays dead until a human decides otherwise.
func (s *Store) RequeueDeadLetter(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin requeue transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		gotID     uuid.UUID
		failedAt  time.Time
		event     []byte
		lastError string
	)
	err = tx.QueryRow(ctx, fetchDeadLetterForUpdateSQL, id).Scan(&gotID, &failedAt, &event, &lastError)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("fetch dead letter row: %w", err)
	}

	if _, err := tx.Exec(ctx, reinsertOutboxSQL, id, event); err != nil {
		return fmt.Errorf("reinsert outbox row: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteDeadLetterSQL, id); err != nil {
		return fmt.Errorf("delete dead letter row: %w", err)
	}
	return tx.Commit(ctx)
}

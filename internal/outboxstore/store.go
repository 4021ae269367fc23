package outboxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	selectEligibleSQL = `
SELECT id
FROM outbox
WHERE (status = 'pending' AND (next_available_at IS NULL OR next_available_at < now()))
   OR (status = 'in_progress' AND leased_at < now() - $2::interval)
ORDER BY id ASC
FOR UPDATE SKIP LOCKED
LIMIT $1`

	markInProgressSQL = `
UPDATE outbox SET status = 'in_progress', leased_at = $2
WHERE id = ANY($1)`

	fetchSQL = `
SELECT id, status, leased_at, next_available_at, attempts, event
FROM outbox
WHERE id = $1`

	fetchAttemptsForUpdateSQL = `
SELECT attempts FROM outbox WHERE id = $1 FOR UPDATE`

	scheduleRetrySQL = `
UPDATE outbox
SET status = 'pending', leased_at = NULL, attempts = $2, next_available_at = $3
WHERE id = $1`

	deleteSQL = `DELETE FROM outbox WHERE id = $1`

	insertDLQSQL = `
INSERT INTO outbox_dead_letter (id, failed_at, event, last_error)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`
)

// Store is the Outbox Store: the leasing, retry, delete, and DLQ-transfer
// primitives described in spec §4.1, backed by PostgreSQL via pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SelectEligibleForUpdate returns up to limit row ids eligible for leasing,
// locking them for the duration of the enclosing transaction. Eligibility is
// either an unleased pending row whose schedule has arrived, or an
// in_progress row whose lease has gone stale. Two concurrent callers never
// receive the same id: FOR UPDATE SKIP LOCKED guarantees disjointness.
func (s *Store) SelectEligibleForUpdate(ctx context.Context, tx pgx.Tx, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := tx.Query(ctx, selectEligibleSQL, limit, StaleLease)
	if err != nil {
		return nil, fmt.Errorf("select eligible outbox rows: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan eligible outbox row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkInProgress transitions the given ids to in_progress with leasedAt.
func (s *Store) MarkInProgress(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, leasedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, markInProgressSQL, ids, leasedAt); err != nil {
		return fmt.Errorf("mark outbox rows in_progress: %w", err)
	}
	return nil
}

// ErrNotFound is returned by Fetch when the row is absent (raced deletion).
var ErrNotFound = errors.New("outboxstore: message not found")

// Fetch reads the full row for id, or ErrNotFound if it no longer exists.
func (s *Store) Fetch(ctx context.Context, id uuid.UUID) (Message, error) {
	row := s.pool.QueryRow(ctx, fetchSQL, id)
	return scanMessage(row)
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		msg      Message
		status   string
		leasedAt *time.Time
		nextAt   *time.Time
	)
	if err := row.Scan(&msg.ID, &status, &leasedAt, &nextAt, &msg.Attempts, &msg.Event); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("fetch outbox row: %w", err)
	}
	msg.Status = Status(status)
	msg.LeasedAt = leasedAt
	msg.NextAvailableAt = nextAt
	return msg, nil
}

// FetchAttemptsForUpdate re-selects a row's attempts count under a row lock,
// the step §4.5 requires before any failure-protocol decision, so a
// concurrent stale-lease recovery by another worker cannot double-increment
// or double-DLQ the same message. Returns ErrNotFound if another worker
// already resolved the row.
func (s *Store) FetchAttemptsForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	var attempts int
	err := tx.QueryRow(ctx, fetchAttemptsForUpdateSQL, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("fetch outbox attempts for update: %w", err)
	}
	return attempts, nil
}

// ScheduleRetry reschedules id as pending with an incremented attempts count
// and the given next-eligible time.
func (s *Store) ScheduleRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, nextAvailableAt time.Time) error {
	if _, err := tx.Exec(ctx, scheduleRetrySQL, id, attempts, nextAvailableAt); err != nil {
		return fmt.Errorf("schedule outbox retry: %w", err)
	}
	return nil
}

// Delete removes the outbox row for id. Deleting an already-absent row is a
// no-op (another worker raced us to it).
func (s *Store) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx, deleteSQL, id); err != nil {
		return fmt.Errorf("delete outbox row: %w", err)
	}
	return nil
}

// TransferToDLQ deletes the outbox row and inserts a dead-letter row for id
// within the caller's transaction. The insert is idempotent on id: a
// duplicate transfer (e.g. a peer worker racing the same terminal failure)
// is silently absorbed.
func (s *Store) TransferToDLQ(ctx context.Context, tx pgx.Tx, id uuid.UUID, event []byte, failedAt time.Time, lastError string) error {
	if _, err := tx.Exec(ctx, insertDLQSQL, id, failedAt, event, lastError); err != nil {
		return fmt.Errorf("insert dead-letter row: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteSQL, id); err != nil {
		return fmt.Errorf("delete outbox row after dlq transfer: %w", err)
	}
	return nil
}

// BeginTx starts a transaction on the store's pool. Callers are responsible
// for Commit/Rollback.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// Pool exposes the underlying connection pool for callers outside this
// package that only need read-only access outside a transaction.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

package handlers

import (
	"context"
	"fmt"

	"outbox-dispatcher/internal/events"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertInboxSQL = `
INSERT INTO inbox (id) VALUES ($1)
ON CONFLICT (id) DO NOTHING`

	checkInboxSQL = `SELECT EXISTS(SELECT 1 FROM inbox WHERE id = $1)`

	upsertProductReadModelSQL = `
INSERT INTO product_read_model (id, name, payload, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, payload = EXCLUDED.payload, updated_at = now()`
)

// PostgresProjectionHandler is the reference ProjectionHandler: it records
// the event id in the inbox table before applying the read-model write, so
// a second invocation of the same event (the dispatcher's retry-whole-message
// behavior) is a guaranteed no-op rather than a double-apply.
type PostgresProjectionHandler struct {
	pool *pgxpool.Pool
}

// NewPostgresProjectionHandler builds a handler over pool.
func NewPostgresProjectionHandler(pool *pgxpool.Pool) *PostgresProjectionHandler {
	return &PostgresProjectionHandler{pool: pool}
}

// HandleProjection applies evt to the read model exactly once per event id,
// regardless of how many times the dispatcher calls it.
func (h *PostgresProjectionHandler) HandleProjection(ctx context.Context, evt events.IntegrationEvent) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin projection transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var alreadySeen bool
	if err := tx.QueryRow(ctx, checkInboxSQL, evt.EventID).Scan(&alreadySeen); err != nil {
		return fmt.Errorf("check inbox: %w", err)
	}
	if alreadySeen {
		return tx.Commit(ctx)
	}

	if err := h.apply(ctx, tx, evt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, insertInboxSQL, evt.EventID); err != nil {
		return fmt.Errorf("record inbox entry: %w", err)
	}

	return tx.Commit(ctx)
}

// apply dispatches on EventName, a tagged union over the handful of product
// and order events this read model cares about. Event names this handler
// doesn't recognize are accepted silently: the projection only needs to
// keep up with the subset of the domain it materializes.
func (h *PostgresProjectionHandler) apply(ctx context.Context, tx pgx.Tx, evt events.IntegrationEvent) error {
	switch evt.EventName {
	case events.EventProductCreated, events.EventProductVariantCreated, events.EventProductPriceChanged:
		if _, err := tx.Exec(ctx, upsertProductReadModelSQL, evt.EventID, evt.EventName, evt.Payload); err != nil {
			return fmt.Errorf("upsert product read model: %w", err)
		}
	}
	return nil
}

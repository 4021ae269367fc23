package outbox

import (
	"context"
	"fmt"
	"time"

	"outbox-dispatcher/internal/outboxstore"

	"github.com/google/uuid"
)

// LeaseManager owns the single atomic step that makes two dispatcher
// workers safe to run concurrently: select eligible rows and mark them
// in_progress inside the same transaction, so a row leased by one worker is
// never visible as eligible to another until its lease goes stale.
type LeaseManager struct {
	store *outboxstore.Store
	now   func() time.Time
}

// NewLeaseManager builds a LeaseManager over store.
func NewLeaseManager(store *outboxstore.Store) *LeaseManager {
	return &LeaseManager{store: store, now: time.Now}
}

// Lease selects up to limit eligible rows and marks them in_progress,
// returning their ids in ascending order. limit<=0 is the "leasing disabled"
// pathology: it returns an empty lease without touching the database.
func (l *LeaseManager) Lease(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin lease transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids, err := l.store.SelectEligibleForUpdate(ctx, tx, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	leasedAt := l.now()
	if err := l.store.MarkInProgress(ctx, tx, ids, leasedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return ids, nil
}

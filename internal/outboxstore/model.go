// Package outboxstore implements the persistent outbox and dead-letter tables:
// leasing, retry scheduling, deletion, and idempotent DLQ transfer, all under
// row-level locks so that two dispatcher workers never observe the same
// eligible row in the same cycle.
package outboxstore

import (
	"time"

	"github.com/google/uuid"
)

// Status is the outbox row's lifecycle state. There is no terminal "done"
// status: success deletes the row, and terminal failure moves it to the
// dead-letter table.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
)

// Message is a row of the outbox table.
type Message struct {
	ID              uuid.UUID
	Status          Status
	LeasedAt        *time.Time
	NextAvailableAt *time.Time
	Attempts        int
	Event           []byte // raw JSONB, decoded by the message processor
}

// DeadLetter is a row of the outbox_dead_letter table.
type DeadLetter struct {
	ID        uuid.UUID
	FailedAt  time.Time
	Event     []byte
	LastError string
}

// StaleLease bounds how long a crashed worker may hold a lease before another
// worker reclaims the row. Fixed per spec; not configurable.
const StaleLease = 5 * time.Minute

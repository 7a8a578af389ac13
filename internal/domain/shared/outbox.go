package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// DefaultOutboxMaxAttempts bounds deliveries before an entry is dead-lettered
const DefaultOutboxMaxAttempts = 10

// maxOutboxBackoffShift caps the retry delay at base * 2^8
const maxOutboxBackoffShift = 8

// OutboxEntry is an event committed together with the aggregate change that
// raised it, waiting to be delivered to in-process handlers
type OutboxEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	MaxAttempts   int
	LastError     string
	NextAttemptAt *time.Time
	ClaimedAt     *time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps an encoded event
func NewOutboxEntry(event DomainEvent, payload []byte, at time.Time) *OutboxEntry {
	return &OutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxAttempts:   DefaultOutboxMaxAttempts,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

// MarkSent records a delivery every handler accepted
func (e *OutboxEntry) MarkSent(at time.Time) {
	e.Status = OutboxStatusSent
	e.SentAt = &at
	e.NextAttemptAt = nil
	e.LastError = ""
	e.UpdatedAt = at
}

// MarkFailed records a failed delivery and schedules the next one with
// exponential backoff from base. Once MaxAttempts is reached the entry is DEAD.
func (e *OutboxEntry) MarkFailed(reason string, at time.Time, base time.Duration) {
	e.Attempts++
	e.LastError = reason
	e.UpdatedAt = at
	if e.Attempts >= e.MaxAttempts {
		e.Status = OutboxStatusDead
		e.NextAttemptAt = nil
		return
	}
	shift := min(e.Attempts-1, maxOutboxBackoffShift)
	next := at.Add(base * time.Duration(1<<shift))
	e.Status = OutboxStatusFailed
	e.NextAttemptAt = &next
}

// IsDead reports whether the entry gave up
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// EventEncoder turns an event into the bytes stored in the outbox
type EventEncoder interface {
	Encode(event DomainEvent) ([]byte, error)
}

// OutboxRepository persists outbox entries. Entries are written by the
// aggregate repositories inside their own transactions; this port only
// reads and advances them.
type OutboxRepository interface {
	// FindDue returns PENDING entries, FAILED entries due at now and
	// PROCESSING entries claimed before staleBefore, oldest first
	FindDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]*OutboxEntry, error)
	// FindByEventIDs returns the entries written for the given events
	FindByEventIDs(ctx context.Context, eventIDs []uuid.UUID) ([]*OutboxEntry, error)
	// Claim moves a deliverable entry to PROCESSING. It reports false when
	// another deliverer holds or already finished it.
	Claim(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error)
	// Update writes the delivery outcome of a claimed entry
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteSentBefore removes delivered entries sent before the cutoff
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}

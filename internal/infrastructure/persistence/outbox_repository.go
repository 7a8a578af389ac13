package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GormOutboxRepository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// deliverable matches entries a deliverer may take: new ones, failed ones
// whose retry is due and processing ones whose claim went stale
func deliverable(now, staleBefore time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(status = ? OR (status = ? AND next_attempt_at <= ?) OR (status = ? AND claimed_at < ?))",
			shared.OutboxStatusPending, shared.OutboxStatusFailed, now,
			shared.OutboxStatusProcessing, staleBefore,
		)
	}
}

// FindDue returns deliverable entries, oldest first
func (r *GormOutboxRepository) FindDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]*shared.OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.OutboxEntryModel
	if err := r.db.WithContext(ctx).
		Scopes(deliverable(now, staleBefore)).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toOutboxEntries(rows), nil
}

// FindByEventIDs returns the entries written for the given events
func (r *GormOutboxRepository) FindByEventIDs(ctx context.Context, eventIDs []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var rows []models.OutboxEntryModel
	if err := r.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toOutboxEntries(rows), nil
}

// Claim is a conditional update, so two deliverers never hold the same entry
func (r *GormOutboxRepository) Claim(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ?", id).
		Scopes(deliverable(now, staleBefore)).
		Updates(map[string]any{
			"status":     shared.OutboxStatusProcessing,
			"claimed_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Update writes the delivery outcome
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":          string(entry.Status),
			"attempts":        entry.Attempts,
			"last_error":      entry.LastError,
			"next_attempt_at": entry.NextAttemptAt,
			"sent_at":         entry.SentAt,
			"updated_at":      entry.UpdatedAt,
		}).Error
}

// DeleteSentBefore removes delivered entries
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND sent_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxEntryModel{})
	return result.RowsAffected, result.Error
}

// writeOutbox stores events in the caller's transaction
func writeOutbox(tx *gorm.DB, enc shared.EventEncoder, events []shared.DomainEvent, at time.Time) error {
	if enc == nil || len(events) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, 0, len(events))
	for _, e := range events {
		payload, err := enc.Encode(e)
		if err != nil {
			return fmt.Errorf("outbox %s: %w", e.EventType(), err)
		}
		rows = append(rows, models.OutboxEntryModelFromDomain(shared.NewOutboxEntry(e, payload, at)))
	}
	return tx.Create(rows).Error
}

func toOutboxEntries(rows []models.OutboxEntryModel) []*shared.OutboxEntry {
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)

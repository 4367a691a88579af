package gatewaywebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
)

// maxErrorLength bounds the error text persisted on a webhook row.
const maxErrorLength = 2000

// Repository persists the webhook dedupe ledger.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByEventID returns nil when the event has never been seen.
func (r *Repository) FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var row models.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Insert stores a first delivery. False means a concurrent delivery inserted it first.
func (r *Repository) Insert(ctx context.Context, row *models.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) IncrementRetries(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retries":    gorm.Expr("retries + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkProcessed closes the event; it runs on the handler's transaction.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID, orderNumber *string, note *string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": now,
			"order_number": orderNumber,
			"error":        note,
			"updated_at":   now,
		}).Error
}

// RecordError keeps the event unprocessed and stores why the last attempt failed.
func (r *Repository) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"error":      message,
			"updated_at": time.Now().UTC(),
		}).Error
}

// CountStuck counts unprocessed events that have been redelivered at least minRetries times.
func (r *Repository) CountStuck(ctx context.Context, minRetries int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("processed = ? AND retries >= ?", false, minRetries).
		Count(&count).Error
	return count, err
}

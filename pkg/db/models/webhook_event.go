package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent is the durable dedupe record for a gateway delivery, keyed by event_id.
type WebhookEvent struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EventID     string          `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_event_id"`
	EventType   string          `gorm:"column:event_type;not null"`
	OrderNumber *string         `gorm:"column:order_number;index"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Processed   bool            `gorm:"column:processed;not null;default:false"`
	Retries     int             `gorm:"column:retries;not null;default:0"`
	Error       *string         `gorm:"column:error"`
	ProcessedAt *time.Time      `gorm:"column:processed_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

func (w *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderReminder records that the unpaid notice for a day offset was queued.
type OrderReminder struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_reminders_order_day,priority:1"`
	DayOffset int       `gorm:"column:day_offset;not null;uniqueIndex:ux_order_reminders_order_day,priority:2"`
	SentAt    time.Time `gorm:"column:sent_at;not null"`
}

func (OrderReminder) TableName() string { return "order_reminders" }

func (r *OrderReminder) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant occupies exactly one reserved seat of an order.
type Participant struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	TicketTypeID uuid.UUID `gorm:"column:ticket_type_id;type:uuid;not null"`
	Name         string    `gorm:"column:name;not null"`
	Email        string    `gorm:"column:email;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Participant) TableName() string { return "participants" }

func (p *Participant) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

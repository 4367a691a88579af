package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketType is a priced, stock-limited admission class within a session.
type TicketType struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SessionID    uuid.UUID  `gorm:"column:session_id;type:uuid;not null;index"`
	Name         string     `gorm:"column:name;not null"`
	PriceCents   int64      `gorm:"column:price_cents;not null"`
	Stock        int        `gorm:"column:stock;not null;check:chk_ticket_types_stock_non_negative,stock >= 0"`
	MaxPerOrder  int        `gorm:"column:max_per_order;not null"`
	SalesStartAt *time.Time `gorm:"column:sales_start_at"`
	SalesEndAt   *time.Time `gorm:"column:sales_end_at"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (TicketType) TableName() string { return "ticket_types" }

func (t *TicketType) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// OnSale reports whether now falls inside the optional sales window.
func (t TicketType) OnSale(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.SalesStartAt != nil && now.Before(*t.SalesStartAt) {
		return false
	}
	if t.SalesEndAt != nil && !now.Before(*t.SalesEndAt) {
		return false
	}
	return true
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

// Payment is an append-only fact reported by the gateway for an order.
type Payment struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	GatewayPaymentID    string              `gorm:"column:gateway_payment_id;not null;uniqueIndex:ux_payments_gateway_status,priority:1"`
	Status              enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;uniqueIndex:ux_payments_gateway_status,priority:2"`
	AmountCents         int64               `gorm:"column:amount_cents;not null"`
	RefundedAmountCents int64               `gorm:"column:refunded_amount_cents;not null;default:0"`
	WebhookEventID      *uuid.UUID          `gorm:"column:webhook_event_id;type:uuid"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

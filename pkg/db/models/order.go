package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

// Order is the registration aggregate. Rows are never deleted.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	SessionID        uuid.UUID           `gorm:"column:session_id;type:uuid;not null;index"`
	Status           enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	TotalCents       int64               `gorm:"column:total_cents;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	BuyerName        string              `gorm:"column:buyer_name;not null"`
	BuyerEmail       string              `gorm:"column:buyer_email;not null;index"`
	GatewaySessionID *string             `gorm:"column:gateway_session_id"`
	PaymentURL       *string             `gorm:"column:payment_url"`
	CancelReason     *string             `gorm:"column:cancel_reason"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	ExpiredAt        *time.Time          `gorm:"column:expired_at"`
	RefundedAt       *time.Time          `gorm:"column:refunded_at"`

	LineItems    []OrderLineItem `gorm:"foreignKey:OrderID"`
	Participants []Participant   `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

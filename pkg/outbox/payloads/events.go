package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

// OrderCreatedEvent announces a freshly reserved pending order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	SessionID     uuid.UUID           `json:"sessionId"`
	TotalCents    int64               `json:"totalCents"`
	Currency      string              `json:"currency"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Seats         int                 `json:"seats"`
}

// OrderStateChangedEvent feeds the audit collaborator with every committed transition.
type OrderStateChangedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Reason      string            `json:"reason,omitempty"`
	EventID     string            `json:"gatewayEventId,omitempty"`
	ChangedAt   time.Time         `json:"changedAt"`
}

// NotificationRequestedEvent is the fire-and-forget trigger for buyer messaging.
type NotificationRequestedEvent struct {
	OrderID     uuid.UUID              `json:"orderId"`
	OrderNumber string                 `json:"orderNumber"`
	EventKind   enums.NotificationKind `json:"eventKind"`
	DayOffset   int                    `json:"dayOffset,omitempty"`
}

// ParticipantRegistrationRequestedEvent asks the third-party registration
// collaborator to enrol every participant of a paid order.
type ParticipantRegistrationRequestedEvent struct {
	OrderID      uuid.UUID         `json:"orderId"`
	OrderNumber  string            `json:"orderNumber"`
	SessionID    uuid.UUID         `json:"sessionId"`
	Participants []ParticipantInfo `json:"participants"`
}

type ParticipantInfo struct {
	TicketTypeID uuid.UUID `json:"ticketTypeId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
}

package enums

import "fmt"

// NotificationKind identifies which buyer-facing message the notification collaborator sends.
type NotificationKind string

const (
	NotificationOrderPaid      NotificationKind = "order_paid"
	NotificationOrderCancelled NotificationKind = "order_cancelled"
	NotificationOrderExpired   NotificationKind = "order_expired"
	NotificationOrderRefunded  NotificationKind = "order_refunded"
	NotificationPaymentDue     NotificationKind = "payment_due_reminder"
)

var validNotificationKinds = []NotificationKind{
	NotificationOrderPaid,
	NotificationOrderCancelled,
	NotificationOrderExpired,
	NotificationOrderRefunded,
	NotificationPaymentDue,
}

// NotificationKindFor maps an order status to the message announcing it.
func NotificationKindFor(status OrderStatus) (NotificationKind, bool) {
	switch status {
	case OrderStatusPaid:
		return NotificationOrderPaid, true
	case OrderStatusCancelled:
		return NotificationOrderCancelled, true
	case OrderStatusExpired:
		return NotificationOrderExpired, true
	case OrderStatusRefunded:
		return NotificationOrderRefunded, true
	default:
		return "", false
	}
}

// IsValid reports whether the value is a known NotificationKind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}

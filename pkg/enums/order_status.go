package enums

import "fmt"

// OrderStatus tracks the lifecycle of a registration order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusExpired   OrderStatus = "expired"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusExpired,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the order still holds (or may still hold) a seat.
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusPending || s == OrderStatusPaid
}

// SourceFor returns the only status a transition into target may start from.
func (s OrderStatus) SourceFor() (OrderStatus, bool) {
	switch s {
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusExpired:
		return OrderStatusPending, true
	case OrderStatusRefunded:
		return OrderStatusPaid, true
	default:
		return "", false
	}
}

// ReleasesInventory reports whether entering the status gives seats back.
func (s OrderStatus) ReleasesInventory() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusExpired, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

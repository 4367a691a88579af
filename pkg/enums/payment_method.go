package enums

import "fmt"

// PaymentMethod describes how a buyer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodEWallet        PaymentMethod = "e_wallet"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodOverTheCounter PaymentMethod = "over_the_counter"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodEWallet,
	PaymentMethodBankTransfer,
	PaymentMethodOverTheCounter,
}

// DeferredSettlementMethods settle out of band, so pending orders wait on a payment window.
var DeferredSettlementMethods = []PaymentMethod{
	PaymentMethodBankTransfer,
	PaymentMethodOverTheCounter,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsDeferredSettlement reports whether the buyer pays after leaving checkout.
func (p PaymentMethod) IsDeferredSettlement() bool {
	for _, candidate := range DeferredSettlementMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

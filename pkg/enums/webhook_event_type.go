package enums

// WebhookEventType is the settlement event name sent by the payment gateway.
type WebhookEventType string

const (
	WebhookPaymentAuthorized WebhookEventType = "payment.authorized"
	WebhookPaymentCaptured   WebhookEventType = "payment.captured"
	WebhookPaymentFailed     WebhookEventType = "payment.failed"
	WebhookPaymentExpired    WebhookEventType = "payment.expired"
	WebhookPaymentRefunded   WebhookEventType = "payment.refunded"
)

var validWebhookEventTypes = []WebhookEventType{
	WebhookPaymentAuthorized,
	WebhookPaymentCaptured,
	WebhookPaymentFailed,
	WebhookPaymentExpired,
	WebhookPaymentRefunded,
}

// String implements fmt.Stringer.
func (w WebhookEventType) String() string {
	return string(w)
}

// IsValid reports whether the value is a settlement event this service handles.
func (w WebhookEventType) IsValid() bool {
	for _, candidate := range validWebhookEventTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

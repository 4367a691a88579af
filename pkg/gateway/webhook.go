package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Gateway-Signature"

// WebhookEvent is a settlement event delivered by the gateway.
type WebhookEvent struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

type WebhookData struct {
	ID               string           `json:"id"`
	ExternalOrderNum string           `json:"external_order_num"`
	Amount           decimal.Decimal  `json:"amount"`
	CapturedAt       *time.Time       `json:"captured_at,omitempty"`
	RefundedAmount   *decimal.Decimal `json:"refunded_amount,omitempty"`
}

// AmountCents returns the payment amount in minor units.
func (d WebhookData) AmountCents() int64 {
	return CentsFromAmount(d.Amount)
}

// RefundedCents returns the refunded amount, falling back to the payment amount.
func (d WebhookData) RefundedCents() int64 {
	if d.RefundedAmount != nil {
		return CentsFromAmount(*d.RefundedAmount)
	}
	return d.AmountCents()
}

// Sign computes the signature the gateway attaches to payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares header against the expected signature in constant time.
func VerifySignature(secret string, payload []byte, header string) bool {
	header = strings.ToLower(strings.TrimSpace(header))
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(header))
}

// ParseWebhookEvent decodes a verified body and checks the identity fields.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode gateway event")
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway event id missing")
	}
	if event.Type == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway event type missing")
	}
	event.Data.ExternalOrderNum = strings.TrimSpace(event.Data.ExternalOrderNum)
	return &event, nil
}

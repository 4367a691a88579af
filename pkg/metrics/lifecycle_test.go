package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCheckoutAndWebhookMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	checkout := NewCheckoutMetrics(reg)
	webhook := NewWebhookMetrics(reg)
	outbox := NewOutboxMetrics(reg)

	checkout.ObserveSubmission("created")
	checkout.ObserveSubmission("created")
	checkout.ObserveSubmission("INSUFFICIENT_STOCK")
	checkout.ObserveGatewayLatency(120*time.Millisecond, true)
	webhook.ObserveDelivery("payment.captured", "processed")
	outbox.ObservePublish("", "failed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "checkout_submissions_total", "outcome", "created"); err != nil || got != 2 {
		t.Fatalf("expected created=2, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "gateway_session_request_seconds", "result", "ok"); err != nil || got <= 0 {
		t.Fatalf("expected gateway latency recorded, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "webhook_deliveries_total", "event_type", "payment.captured"); err != nil || got != 1 {
		t.Fatalf("expected one captured delivery, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_publish_total", "topic", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected blank topic to normalize, got %f err=%v", got, err)
	}
}

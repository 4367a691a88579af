package gatewaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/internal/inventory"
	"github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/db"
	"github.com/angelmondragon/eventreg-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	"github.com/angelmondragon/eventreg-backend/pkg/gateway"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
)

const testSecret = "whsec_test"

type pipelineFixture struct {
	client *db.Client
	svc    *Service
	store  *orders.Store
	ticket models.TicketType
	order  *models.Order
}

func newPipelineFixture(t *testing.T) pipelineFixture {
	t.Helper()
	client := dbtest.Open(t, models.All()...)
	repo := orders.NewRepository(client.DB())
	store, err := orders.NewStore(repo, client, outbox.NewService(outbox.NewRepository(client.DB()), nil), inventory.NewLedger(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Secret:            testSecret,
		FailureThreshold:  3,
		Events:            NewRepository(client.DB()),
		Orders:            repo,
		Store:             store,
		TransactionRunner: client,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	session := dbtest.SeedSession(t, client)
	ticket := dbtest.SeedTicketType(t, client, session, 100000, 5)
	var order *models.Order
	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		order, err = store.CreatePending(context.Background(), tx, orders.Draft{
			SessionID:     session.ID,
			PaymentMethod: enums.PaymentMethodCard,
			Currency:      "PHP",
			BuyerName:     "Ana",
			BuyerEmail:    "ana@example.com",
			Lines:         []orders.DraftLine{{TicketTypeID: ticket.ID, Quantity: 2, UnitPriceCents: ticket.PriceCents}},
			Participants: []orders.DraftParticipant{
				{TicketTypeID: ticket.ID, Name: "Ana", Email: "ana@example.com"},
				{TicketTypeID: ticket.ID, Name: "Ben", Email: "ben@example.com"},
			},
		})
		return err
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return pipelineFixture{client: client, svc: svc, store: store, ticket: ticket, order: order}
}

func (f pipelineFixture) deliver(t *testing.T, eventID, eventType, paymentID string, data map[string]any) int {
	t.Helper()
	body := map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{
			"id":                 paymentID,
			"external_order_num": f.order.OrderNumber,
			"amount":             "2000.00",
		},
	}
	for k, v := range data {
		body["data"].(map[string]any)[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	status, _ := f.svc.Ingest(context.Background(), payload, gateway.Sign(testSecret, payload))
	return status
}

func (f pipelineFixture) reload(t *testing.T) models.Order {
	t.Helper()
	var order models.Order
	if err := f.client.DB().First(&order, "id = ?", f.order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

func (f pipelineFixture) payments(t *testing.T, status enums.PaymentStatus) int64 {
	t.Helper()
	var count int64
	f.client.DB().Model(&models.Payment{}).Where("order_id = ? AND status = ?", f.order.ID, status).Count(&count)
	return count
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := newPipelineFixture(t)
	payload := []byte(`{"id":"evt_1","type":"payment.captured","data":{}}`)

	status, err := f.svc.Ingest(context.Background(), payload, gateway.Sign("wrong", payload))
	if status != http.StatusUnauthorized || err == nil {
		t.Fatalf("expected 401, got %d %v", status, err)
	}
	var count int64
	f.client.DB().Model(&models.WebhookEvent{}).Count(&count)
	if count != 0 {
		t.Fatalf("bad signature must not persist anything, got %d rows", count)
	}
}

func TestIngestCaptureIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t)

	for i := 0; i < 3; i++ {
		if status := f.deliver(t, "evt_cap", "payment.captured", "pay_1", nil); status != http.StatusOK {
			t.Fatalf("delivery %d: status %d", i, status)
		}
	}

	if got := f.reload(t).Status; got != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
	if got := f.payments(t, enums.PaymentStatusCaptured); got != 1 {
		t.Fatalf("expected one captured payment, got %d", got)
	}
	if got := dbtest.CountOutbox(t, f.client, enums.EventNotificationRequested); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}

	var row models.WebhookEvent
	if err := f.client.DB().First(&row, "event_id = ?", "evt_cap").Error; err != nil {
		t.Fatalf("load webhook row: %v", err)
	}
	if !row.Processed || row.ProcessedAt == nil || row.Retries != 0 {
		t.Fatalf("unexpected webhook row %+v", row)
	}
}

func TestIngestAuthorizedThenCapturedThenDuplicateCapture(t *testing.T) {
	f := newPipelineFixture(t)

	f.deliver(t, "evt_auth", "payment.authorized", "pay_1", nil)
	if got := f.reload(t).Status; got != enums.OrderStatusPending {
		t.Fatalf("authorization must not change status, got %s", got)
	}
	f.deliver(t, "evt_cap_1", "payment.captured", "pay_1", nil)
	f.deliver(t, "evt_cap_2", "payment.captured", "pay_1", nil)

	if got := f.reload(t).Status; got != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
	if got := f.payments(t, enums.PaymentStatusAuthorized); got != 1 {
		t.Fatalf("expected one authorized payment, got %d", got)
	}
	if got := f.payments(t, enums.PaymentStatusCaptured); got != 1 {
		t.Fatalf("expected one captured payment, got %d", got)
	}
	if got := dbtest.CountOutbox(t, f.client, enums.EventNotificationRequested); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
	if got := dbtest.CountOutbox(t, f.client, enums.EventParticipantRegistrationRequested); got != 1 {
		t.Fatalf("expected one registration request, got %d", got)
	}
}

func TestIngestFailureThresholdCancels(t *testing.T) {
	f := newPipelineFixture(t)

	f.deliver(t, "evt_f1", "payment.failed", "pay_1", nil)
	f.deliver(t, "evt_f2", "payment.failed", "pay_2", nil)
	if got := f.reload(t).Status; got != enums.OrderStatusPending {
		t.Fatalf("expected pending below threshold, got %s", got)
	}
	f.deliver(t, "evt_f3", "payment.failed", "pay_3", nil)

	order := f.reload(t)
	if order.Status != enums.OrderStatusCancelled || order.CancelReason == nil || *order.CancelReason != ReasonPaymentFailed {
		t.Fatalf("expected cancelled after threshold, got %s %v", order.Status, order.CancelReason)
	}
	if got := dbtest.Stock(t, f.client, f.ticket.ID); got != 5 {
		t.Fatalf("expected stock restored, got %d", got)
	}
}

func TestIngestExpiry(t *testing.T) {
	f := newPipelineFixture(t)
	f.deliver(t, "evt_exp", "payment.expired", "pay_1", nil)

	order := f.reload(t)
	if order.Status != enums.OrderStatusExpired || order.ExpiredAt == nil {
		t.Fatalf("expected expired, got %s", order.Status)
	}
	if got := dbtest.Stock(t, f.client, f.ticket.ID); got != 5 {
		t.Fatalf("expected stock restored, got %d", got)
	}
}

func TestIngestPartialThenFullRefund(t *testing.T) {
	f := newPipelineFixture(t)
	f.deliver(t, "evt_cap", "payment.captured", "pay_1", nil)

	f.deliver(t, "evt_ref_1", "payment.refunded", "ref_1", map[string]any{"refunded_amount": "500.00"})
	if got := f.reload(t).Status; got != enums.OrderStatusPaid {
		t.Fatalf("partial refund must keep order paid, got %s", got)
	}
	if got := dbtest.Stock(t, f.client, f.ticket.ID); got != 3 {
		t.Fatalf("partial refund must keep seats, got %d", got)
	}

	f.deliver(t, "evt_ref_2", "payment.refunded", "ref_2", map[string]any{"refunded_amount": "1500.00"})
	order := f.reload(t)
	if order.Status != enums.OrderStatusRefunded || order.RefundedAt == nil {
		t.Fatalf("expected refunded once cumulative refunds cover total, got %s", order.Status)
	}
	if got := dbtest.Stock(t, f.client, f.ticket.ID); got != 5 {
		t.Fatalf("expected stock restored, got %d", got)
	}
}

func TestIngestRefundOnPendingOrderRecordsPaymentOnly(t *testing.T) {
	f := newPipelineFixture(t)
	if status := f.deliver(t, "evt_ref", "payment.refunded", "ref_1", nil); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if got := f.reload(t).Status; got != enums.OrderStatusPending {
		t.Fatalf("expected pending, got %s", got)
	}
	if got := f.payments(t, enums.PaymentStatusRefunded); got != 1 {
		t.Fatalf("expected refund payment recorded, got %d", got)
	}
}

func TestIngestUnknownTypeAndOrderAreAcknowledged(t *testing.T) {
	f := newPipelineFixture(t)
	if status := f.deliver(t, "evt_x", "payment.disputed", "pay_1", nil); status != http.StatusOK {
		t.Fatalf("expected 200 for unknown type, got %d", status)
	}

	payload := []byte(`{"id":"evt_y","type":"payment.captured","data":{"id":"pay_9","external_order_num":"ER-20260101-DEADBEEF","amount":"10.00"}}`)
	status, err := f.svc.Ingest(context.Background(), payload, gateway.Sign(testSecret, payload))
	if status != http.StatusOK || err != nil {
		t.Fatalf("expected 200 for unknown order, got %d %v", status, err)
	}

	var rows []models.WebhookEvent
	f.client.DB().Find(&rows)
	for _, row := range rows {
		if !row.Processed || row.Error == nil {
			t.Fatalf("expected acknowledged row with note, got %+v", row)
		}
	}
	if got := f.reload(t).Status; got != enums.OrderStatusPending {
		t.Fatalf("expected pending, got %s", got)
	}
}

type flakyTransitioner struct {
	inner    *orders.Store
	failures int
}

func (f *flakyTransitioner) TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, evidence orders.Evidence) (*orders.TransitionResult, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient failure")
	}
	return f.inner.TransitionTx(ctx, tx, orderID, target, evidence)
}

func TestIngestFailureLeavesEventForRedelivery(t *testing.T) {
	f := newPipelineFixture(t)
	f.svc.store = &flakyTransitioner{inner: f.store, failures: 1}

	if status := f.deliver(t, "evt_cap", "payment.captured", "pay_1", nil); status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	var row models.WebhookEvent
	if err := f.client.DB().First(&row, "event_id = ?", "evt_cap").Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Processed || row.Error == nil || *row.Error == "" {
		t.Fatalf("expected unprocessed row with error, got %+v", row)
	}
	if got := f.payments(t, enums.PaymentStatusCaptured); got != 0 {
		t.Fatalf("failed handler must roll back payment, got %d", got)
	}

	if status := f.deliver(t, "evt_cap", "payment.captured", "pay_1", nil); status != http.StatusOK {
		t.Fatalf("expected redelivery to succeed, got %d", status)
	}
	if err := f.client.DB().First(&row, "event_id = ?", "evt_cap").Error; err != nil {
		t.Fatalf("reload row: %v", err)
	}
	if !row.Processed || row.Retries != 1 || row.Error != nil {
		t.Fatalf("expected processed after one retry, got %+v", row)
	}
	if got := f.reload(t).Status; got != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
}

func TestCountStuck(t *testing.T) {
	f := newPipelineFixture(t)
	repo := NewRepository(f.client.DB())
	ctx := context.Background()

	for i, retries := range []int{0, 5, 7} {
		row := &models.WebhookEvent{EventID: uuid.NewString(), EventType: "payment.captured", Payload: []byte(`{}`), Retries: retries}
		if _, err := repo.Insert(ctx, row); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	count, err := repo.CountStuck(ctx, 5)
	if err != nil {
		t.Fatalf("count stuck: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stuck events, got %d", count)
	}
}

package gatewaywebhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
	"github.com/angelmondragon/eventreg-backend/pkg/gateway"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
)

// Cancel reasons recorded by gateway-driven transitions.
const (
	ReasonPaymentFailed        = "payment_failed"
	ReasonAuthorizationExpired = "authorization_expired"
	ReasonRefunded             = "refunded"
)

const defaultFailureThreshold = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, evidence orders.Evidence) (*orders.TransitionResult, error)
}

type ServiceParams struct {
	Secret            string
	FailureThreshold  int
	Events            *Repository
	Orders            orders.Repository
	Store             orderTransitioner
	TransactionRunner txRunner
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

// Service turns gateway deliveries into at-most-once order transitions.
type Service struct {
	secret    string
	threshold int
	events    *Repository
	orders    orders.Repository
	store     orderTransitioner
	tx        txRunner
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	threshold := params.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &Service{
		secret:    params.Secret,
		threshold: threshold,
		events:    params.Events,
		orders:    params.Orders,
		store:     params.Store,
		tx:        params.TransactionRunner,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Ingest verifies, dedupes and applies one delivery, returning the HTTP status the
// gateway should see. A non-nil error accompanies every non-2xx status.
func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) (int, error) {
	if !gateway.VerifySignature(s.secret, payload, signature) {
		s.metrics.ObserveDelivery("unknown", "unauthorized")
		return http.StatusUnauthorized, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}

	event, err := gateway.ParseWebhookEvent(payload)
	if err != nil {
		s.metrics.ObserveDelivery("unknown", "invalid")
		return http.StatusBadRequest, err
	}
	if s.logg != nil {
		ctx = s.logg.WithGatewayEvent(ctx, event.ID, event.Type)
		if event.Data.ExternalOrderNum != "" {
			ctx = s.logg.WithOrderNumber(ctx, event.Data.ExternalOrderNum)
		}
	}

	row, duplicate, err := s.claim(ctx, event, payload)
	if err != nil {
		s.metrics.ObserveDelivery(event.Type, "failed")
		return http.StatusInternalServerError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	if duplicate {
		s.metrics.ObserveDelivery(event.Type, "duplicate")
		s.info(ctx, "webhook already processed")
		return http.StatusOK, nil
	}
	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "retries", row.Retries)
	}

	outcome := "processed"
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var note *string
		orderNumber, handled, err := s.dispatch(ctx, tx, row.ID, event)
		if err != nil {
			return err
		}
		if handled != "" {
			outcome = "ignored"
			note = &handled
		}
		return s.events.WithTx(tx).MarkProcessed(ctx, row.ID, orderNumber, note, s.now().UTC())
	})
	if err != nil {
		if recordErr := s.events.RecordError(context.WithoutCancel(ctx), row.ID, err.Error()); recordErr != nil && s.logg != nil {
			s.logg.Error(ctx, "failed to persist webhook error", recordErr)
		}
		if s.logg != nil {
			s.logg.Error(ctx, "webhook processing failed", err)
		}
		s.metrics.ObserveDelivery(event.Type, "failed")
		return http.StatusInternalServerError, err
	}

	s.metrics.ObserveDelivery(event.Type, outcome)
	s.info(ctx, "webhook "+outcome)
	return http.StatusOK, nil
}

// claim loads or inserts the dedupe row. The boolean reports an already processed event.
func (s *Service) claim(ctx context.Context, event *gateway.WebhookEvent, payload []byte) (*models.WebhookEvent, bool, error) {
	row, err := s.events.FindByEventID(ctx, event.ID)
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		candidate := &models.WebhookEvent{
			EventID:   event.ID,
			EventType: event.Type,
			Payload:   payload,
		}
		if event.Data.ExternalOrderNum != "" {
			number := event.Data.ExternalOrderNum
			candidate.OrderNumber = &number
		}
		inserted, err := s.events.Insert(ctx, candidate)
		if err != nil {
			return nil, false, err
		}
		if inserted {
			return candidate, false, nil
		}
		row, err = s.events.FindByEventID(ctx, event.ID)
		if err != nil {
			return nil, false, err
		}
		if row == nil {
			return nil, false, fmt.Errorf("webhook event %s vanished after conflict", event.ID)
		}
	}
	if row.Processed {
		return row, true, nil
	}
	if err := s.events.IncrementRetries(ctx, row.ID); err != nil {
		return nil, false, err
	}
	row.Retries++
	return row, false, nil
}

// dispatch applies the event on tx. A non-empty note means the event was acknowledged
// without touching any order.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, rowID uuid.UUID, event *gateway.WebhookEvent) (*string, string, error) {
	eventType := enums.WebhookEventType(event.Type)
	if !eventType.IsValid() {
		return nil, fmt.Sprintf("unhandled event type %q", event.Type), nil
	}
	if event.Data.ExternalOrderNum == "" {
		return nil, "event carries no order number", nil
	}

	repo := s.orders.WithTx(tx)
	order, err := repo.FindByNumber(ctx, event.Data.ExternalOrderNum)
	if err != nil {
		if orders.IsNotFound(err) {
			s.warn(ctx, "webhook references unknown order")
			return nil, "order not found", nil
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	number := order.OrderNumber

	evidence := orders.Evidence{
		GatewayEventID: event.ID,
		Actor:          &outbox.ActorRef{Kind: outbox.ActorGateway, ID: event.ID},
	}

	switch eventType {
	case enums.WebhookPaymentAuthorized:
		return &number, "", s.recordPayment(ctx, repo, order, rowID, event, enums.PaymentStatusAuthorized, 0)

	case enums.WebhookPaymentCaptured:
		if err := s.recordPayment(ctx, repo, order, rowID, event, enums.PaymentStatusCaptured, 0); err != nil {
			return nil, "", err
		}
		_, err := s.store.TransitionTx(ctx, tx, order.ID, enums.OrderStatusPaid, evidence)
		return &number, "", err

	case enums.WebhookPaymentFailed:
		if err := s.recordPayment(ctx, repo, order, rowID, event, enums.PaymentStatusFailed, 0); err != nil {
			return nil, "", err
		}
		failures, err := repo.CountPayments(ctx, order.ID, enums.PaymentStatusFailed)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count failed payments")
		}
		if failures < int64(s.threshold) {
			return &number, "", nil
		}
		evidence.Reason = ReasonPaymentFailed
		_, err = s.store.TransitionTx(ctx, tx, order.ID, enums.OrderStatusCancelled, evidence)
		return &number, "", err

	case enums.WebhookPaymentExpired:
		evidence.Reason = ReasonAuthorizationExpired
		_, err := s.store.TransitionTx(ctx, tx, order.ID, enums.OrderStatusExpired, evidence)
		return &number, "", err

	case enums.WebhookPaymentRefunded:
		if err := s.recordPayment(ctx, repo, order, rowID, event, enums.PaymentStatusRefunded, event.Data.RefundedCents()); err != nil {
			return nil, "", err
		}
		if order.Status != enums.OrderStatusPaid {
			s.warn(ctx, fmt.Sprintf("refund recorded for %s order", order.Status))
			return &number, "", nil
		}
		refunded, err := repo.SumRefunded(ctx, order.ID)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
		}
		if refunded < order.TotalCents {
			return &number, "", nil
		}
		evidence.Reason = ReasonRefunded
		_, err = s.store.TransitionTx(ctx, tx, order.ID, enums.OrderStatusRefunded, evidence)
		return &number, "", err
	}
	return &number, "", nil
}

func (s *Service) recordPayment(ctx context.Context, repo orders.Repository, order *models.Order, rowID uuid.UUID, event *gateway.WebhookEvent, status enums.PaymentStatus, refundedCents int64) error {
	gatewayPaymentID := event.Data.ID
	if gatewayPaymentID == "" {
		gatewayPaymentID = event.ID
	}
	amount := event.Data.AmountCents()
	if amount == 0 {
		amount = order.TotalCents
	}
	webhookID := rowID
	_, err := repo.InsertPayment(ctx, &models.Payment{
		OrderID:             order.ID,
		GatewayPaymentID:    gatewayPaymentID,
		Status:              status,
		AmountCents:         amount,
		RefundedAmountCents: refundedCents,
		WebhookEventID:      &webhookID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
	}
	return nil
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

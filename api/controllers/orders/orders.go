package orders

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventreg-backend/api/middleware"
	"github.com/angelmondragon/eventreg-backend/api/responses"
	"github.com/angelmondragon/eventreg-backend/api/validators"
	internalorders "github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
)

const defaultAdminCancelReason = "cancelled_by_operator"

type orderReader interface {
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
}

// DeadLetterLister reads the notifications the outbox relay could not deliver for an order.
type DeadLetterLister interface {
	ListForOrder(ctx context.Context, orderID uuid.UUID, limit int) ([]models.OutboxDLQ, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, evidence internalorders.Evidence) (*internalorders.TransitionResult, error)
}

// Status returns the public view of an order, looked up by its order number.
func Status(repo orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}
		order, err := loadOrder(r, repo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// AdminCancel cancels a pending order on behalf of an operator. Cancelling an already
// cancelled order succeeds; any other terminal state is a conflict.
func AdminCancel(repo orderReader, store orderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil || store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		reason := validators.SanitizeString(payload.Reason, 500)
		if reason == "" {
			reason = defaultAdminCancelReason
		}

		order, err := loadOrder(r, repo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := store.Transition(r.Context(), order.ID, enums.OrderStatusCancelled, internalorders.Evidence{
			Reason: reason,
			Actor:  &outbox.ActorRef{Kind: outbox.ActorAdmin, ID: middleware.OperatorIDFromContext(r.Context())},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !result.Applied && result.Order.Status != enums.OrderStatusCancelled {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already "+string(result.Order.Status)).
				WithDetails(map[string]any{"status": result.Order.Status}))
			return
		}
		responses.WriteSuccess(w, newOrderView(result.Order))
	}
}

// DeadLetters lists the order's notifications that were parked after the relay gave up,
// so an operator can follow up with the buyer by hand.
func DeadLetters(repo orderReader, dlq DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil || dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		order, err := loadOrder(r, repo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := dlq.ListForOrder(r.Context(), order.ID, 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		views := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			views = append(views, deadLetterView{
				EventID:      row.EventID,
				EventType:    row.EventType,
				ErrorReason:  row.ErrorReason,
				ErrorMessage: row.ErrorMessage,
				Attempts:     row.AttemptCount,
				FailedAt:     row.FailedAt,
			})
		}
		responses.WriteSuccess(w, deadLettersView{OrderNumber: order.OrderNumber, DeadLetters: views})
	}
}

func loadOrder(r *http.Request, repo orderReader) (*models.Order, error) {
	number := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "orderNumber")))
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := repo.FindByNumber(r.Context(), number)
	if err != nil {
		if internalorders.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type orderView struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalCents    int64               `json:"total_cents"`
	Currency      string              `json:"currency"`
	PaymentURL    *string             `json:"payment_url,omitempty"`
	Seats         int                 `json:"seats"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	ExpiredAt     *time.Time          `json:"expired_at,omitempty"`
	RefundedAt    *time.Time          `json:"refunded_at,omitempty"`
}

type deadLetterView struct {
	EventID      uuid.UUID                  `json:"event_id"`
	EventType    enums.OutboxEventType      `json:"event_type"`
	ErrorReason  enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage *string                    `json:"error_message,omitempty"`
	Attempts     int                        `json:"attempts"`
	FailedAt     time.Time                  `json:"failed_at"`
}

type deadLettersView struct {
	OrderNumber string           `json:"order_number"`
	DeadLetters []deadLetterView `json:"dead_letters"`
}

func newOrderView(order *models.Order) orderView {
	view := orderView{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
		CreatedAt:     order.CreatedAt,
		PaidAt:        order.PaidAt,
		CancelledAt:   order.CancelledAt,
		ExpiredAt:     order.ExpiredAt,
		RefundedAt:    order.RefundedAt,
	}
	if order.Status == enums.OrderStatusPending {
		view.PaymentURL = order.PaymentURL
	}
	for _, line := range order.LineItems {
		view.Seats += line.Quantity
	}
	return view
}

package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/internal/catalog"
	"github.com/angelmondragon/eventreg-backend/internal/inventory"
	"github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
	"github.com/angelmondragon/eventreg-backend/pkg/gateway"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
)

// GatewayCancelReason is recorded on orders cancelled because no payment session opened.
const GatewayCancelReason = "gateway_unavailable"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderStore interface {
	CreatePending(ctx context.Context, tx *gorm.DB, draft orders.Draft) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, evidence orders.Evidence) (*orders.TransitionResult, error)
}

type paymentGateway interface {
	CreatePaymentSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error)
	Currency() string
	ReturnURL() string
}

// Service executes checkout orchestration.
type Service interface {
	Submit(ctx context.Context, req Request) (*Result, error)
}

type service struct {
	tx      txRunner
	catalog catalog.Repository
	repo    orders.Repository
	store   orderStore
	gateway paymentGateway
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	catalogRepo catalog.Repository,
	ordersRepo orders.Repository,
	store orderStore,
	gw paymentGateway,
	checkoutMetrics *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	return &service{
		tx:      tx,
		catalog: catalogRepo,
		repo:    ordersRepo,
		store:   store,
		gateway: gw,
		metrics: checkoutMetrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) Submit(ctx context.Context, req Request) (result *Result, err error) {
	defer func() {
		s.metrics.ObserveSubmission(outcomeFor(err))
	}()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	session, err := s.catalog.FindSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.AcceptsOrders(now) {
		return nil, pkgerrors.New(pkgerrors.CodeSessionNotOpen, "session is not accepting registrations")
	}

	requested := make([]inventory.Line, len(req.Lines))
	for i, line := range req.Lines {
		requested[i] = inventory.Line{TicketTypeID: line.TicketTypeID, Quantity: line.Quantity}
	}
	lines := inventory.Merge(requested)
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.TicketTypeID
	}
	tickets, err := s.catalog.FindTicketTypes(ctx, session.ID, ids)
	if err != nil {
		return nil, err
	}

	draftLines := make([]orders.DraftLine, 0, len(lines))
	for _, line := range lines {
		ticket := tickets[line.TicketTypeID]
		if !ticket.OnSale(now) {
			return nil, pkgerrors.New(pkgerrors.CodeSessionNotOpen, fmt.Sprintf("%s is not on sale", ticket.Name)).
				WithDetails(map[string]any{"ticket_type_id": ticket.ID.String()})
		}
		if ticket.MaxPerOrder > 0 && line.Quantity > ticket.MaxPerOrder {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d %s tickets per order", ticket.MaxPerOrder, ticket.Name)).
				WithDetails(map[string]any{"ticket_type_id": ticket.ID.String(), "max_per_order": ticket.MaxPerOrder})
		}
		draftLines = append(draftLines, orders.DraftLine{
			TicketTypeID:   line.TicketTypeID,
			Quantity:       line.Quantity,
			UnitPriceCents: ticket.PriceCents,
		})
	}

	participants, err := resolveParticipants(lines, req.Buyer, req.Participants)
	if err != nil {
		return nil, err
	}

	draft := orders.Draft{
		SessionID:     session.ID,
		PaymentMethod: req.PaymentMethod,
		Currency:      s.gateway.Currency(),
		BuyerName:     req.Buyer.Name,
		BuyerEmail:    req.Buyer.Email,
		Lines:         draftLines,
		Participants:  participants,
		Actor:         &outbox.ActorRef{Kind: outbox.ActorBuyer, ID: req.Buyer.Email},
	}

	emails := registrationEmails(req.Buyer, participants)
	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockRegistrations(ctx, session.ID, emails); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock registrations")
		}
		duplicate, err := repo.HasActiveRegistration(ctx, session.ID, emails)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing registrations")
		}
		if duplicate {
			return pkgerrors.New(pkgerrors.CodeDuplicateRegistration, "an active registration already exists for this session")
		}
		order, err = s.store.CreatePending(ctx, tx, draft)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	}

	paymentSession, err := s.openPaymentSession(ctx, order)
	if err != nil {
		s.cancelAfterGatewayFailure(logCtx, order, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "payment gateway unavailable")
	}

	// the URL is only handed out once the session is recorded
	if err := s.repo.SetGatewaySession(ctx, order.ID, paymentSession.ID, paymentSession.URL); err != nil {
		s.cancelAfterGatewayFailure(logCtx, order, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "store payment session")
	}
	if s.logg != nil {
		s.logg.Info(logCtx, "checkout order created")
	}

	return &Result{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PaymentURL:  paymentSession.URL,
	}, nil
}

func (s *service) openPaymentSession(ctx context.Context, order *models.Order) (*gateway.Session, error) {
	started := time.Now()
	session, err := s.gateway.CreatePaymentSession(ctx, gateway.SessionRequest{
		Amount:              gateway.AmountFromCents(order.TotalCents),
		Currency:            order.Currency,
		PaymentMethods:      []string{string(order.PaymentMethod)},
		ExternalOrderNumber: order.OrderNumber,
		ReturnURL:           s.gateway.ReturnURL(),
		Metadata: map[string]string{
			"order_id":   order.ID.String(),
			"session_id": order.SessionID.String(),
		},
	})
	s.metrics.ObserveGatewayLatency(time.Since(started), err == nil)
	return session, err
}

// cancelAfterGatewayFailure releases the seats of an order whose payment session never
// opened. It runs detached from the request context so a client disconnect cannot strand stock.
func (s *service) cancelAfterGatewayFailure(ctx context.Context, order *models.Order, cause error) {
	if s.logg != nil {
		s.logg.Warn(ctx, fmt.Sprintf("payment session failed: %v", cause))
	}
	_, err := s.store.Transition(context.WithoutCancel(ctx), order.ID, enums.OrderStatusCancelled, orders.Evidence{
		Reason: GatewayCancelReason,
		Actor:  &outbox.ActorRef{Kind: outbox.ActorSystem},
	})
	if err != nil && s.logg != nil {
		// the order keeps no gateway session; the abandoned-checkout sweep cancels it later
		s.logg.Error(ctx, "failed to cancel order after gateway failure", err)
	}
}

func outcomeFor(err error) string {
	if err == nil {
		return "created"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		return "invalid"
	case pkgerrors.CodeInsufficientStock:
		return "insufficient_stock"
	case pkgerrors.CodeDuplicateRegistration:
		return "duplicate_registration"
	case pkgerrors.CodeSessionNotOpen:
		return "session_not_open"
	case pkgerrors.CodeGatewayUnavailable:
		return "gateway_unavailable"
	default:
		return "error"
	}
}

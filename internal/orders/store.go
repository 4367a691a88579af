package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/internal/inventory"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryLedger reserves and returns ticket stock on the caller's transaction.
type InventoryLedger interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, lines []inventory.Line) ([]inventory.Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error
}

// Draft is a validated purchase ready to be persisted as a pending order.
type Draft struct {
	SessionID     uuid.UUID
	PaymentMethod enums.PaymentMethod
	Currency      string
	BuyerName     string
	BuyerEmail    string
	Lines         []DraftLine
	Participants  []DraftParticipant
	Actor         *outbox.ActorRef
}

type DraftLine struct {
	TicketTypeID   uuid.UUID
	Quantity       int
	UnitPriceCents int64
}

type DraftParticipant struct {
	TicketTypeID uuid.UUID
	Name         string
	Email        string
}

// Evidence explains why a transition was requested.
type Evidence struct {
	Reason         string
	GatewayEventID string
	Actor          *outbox.ActorRef
}

// TransitionResult reports the order after a transition attempt. Applied is false
// when another caller already moved the order and the request was a no-op.
type TransitionResult struct {
	Order   *models.Order
	From    enums.OrderStatus
	Applied bool
}

// Store owns order lifecycle writes.
type Store struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory InventoryLedger
	logg      *logger.Logger
	now       func() time.Time
}

// NewStore builds the order aggregate store with the required dependencies.
func NewStore(repo Repository, tx txRunner, publisher outboxPublisher, ledger InventoryLedger, logg *logger.Logger) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &Store{
		repo:      repo,
		tx:        tx,
		outbox:    publisher,
		inventory: ledger,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Repository exposes the underlying repository for read paths.
func (s *Store) Repository() Repository {
	return s.repo
}

// CreatePending reserves stock for every line and inserts the order, its line items
// and participants on tx. Any error leaves the caller to roll back.
func (s *Store) CreatePending(ctx context.Context, tx *gorm.DB, draft Draft) (*models.Order, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	lines := make([]inventory.Line, len(draft.Lines))
	for i, line := range draft.Lines {
		lines[i] = inventory.Line{TicketTypeID: line.TicketTypeID, Quantity: line.Quantity}
	}
	if _, err := s.inventory.ReserveAll(ctx, tx, lines); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		OrderNumber:   NewOrderNumber(now),
		SessionID:     draft.SessionID,
		Status:        enums.OrderStatusPending,
		Currency:      draft.Currency,
		PaymentMethod: draft.PaymentMethod,
		BuyerName:     strings.TrimSpace(draft.BuyerName),
		BuyerEmail:    strings.ToLower(strings.TrimSpace(draft.BuyerEmail)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	seats := 0
	for _, line := range draft.Lines {
		order.TotalCents += line.UnitPriceCents * int64(line.Quantity)
		seats += line.Quantity
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			TicketTypeID:   line.TicketTypeID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			CreatedAt:      now,
		})
	}
	for _, p := range draft.Participants {
		order.Participants = append(order.Participants, models.Participant{
			TicketTypeID: p.TicketTypeID,
			Name:         strings.TrimSpace(p.Name),
			Email:        strings.ToLower(strings.TrimSpace(p.Email)),
			CreatedAt:    now,
		})
	}

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         draft.Actor,
		OccurredAt:    now,
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			SessionID:     order.SessionID,
			TotalCents:    order.TotalCents,
			Currency:      order.Currency,
			PaymentMethod: order.PaymentMethod,
			Seats:         seats,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
	}
	return order, nil
}

// Transition runs TransitionTx inside its own transaction.
func (s *Store) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, evidence Evidence) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.TransitionTx(ctx, tx, orderID, target, evidence)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Applied && s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, result.Order.OrderNumber)
		logCtx = s.logg.WithFields(logCtx, map[string]any{"from": result.From, "to": target, "reason": evidence.Reason})
		s.logg.Info(logCtx, "order transitioned")
	}
	return result, nil
}

// TransitionTx moves the order into target if it still sits in the single legal source
// state. Losing the race is not an error: the current order is returned with Applied=false.
// Only a PENDING order asked to become REFUNDED reports an invalid transition.
func (s *Store) TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, evidence Evidence) (*TransitionResult, error) {
	source, ok := target.SourceFor()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot transition order into %q", target))
	}
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	updates := map[string]any{
		"status":     target,
		"updated_at": now,
	}
	if column := timestampColumn(target); column != "" {
		updates[column] = now
	}
	if target == enums.OrderStatusCancelled && evidence.Reason != "" {
		updates["cancel_reason"] = evidence.Reason
	}

	applied, err := repo.UpdateStatusFrom(ctx, orderID, source, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if !applied {
		if order.Status == enums.OrderStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s cannot move from %s to %s", order.OrderNumber, order.Status, target))
		}
		return &TransitionResult{Order: order, From: order.Status, Applied: false}, nil
	}

	if target.ReleasesInventory() {
		for _, item := range order.LineItems {
			if err := s.inventory.Release(ctx, tx, item.TicketTypeID, item.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if err := s.emitTransition(ctx, tx, order, source, target, evidence, now); err != nil {
		return nil, err
	}
	return &TransitionResult{Order: order, From: source, Applied: true}, nil
}

func (s *Store) emitTransition(ctx context.Context, tx *gorm.DB, order *models.Order, from, to enums.OrderStatus, evidence Evidence, now time.Time) error {
	events := []outbox.DomainEvent{
		{
			EventType: enums.EventOrderStateChanged,
			Data: payloads.OrderStateChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        from,
				To:          to,
				Reason:      evidence.Reason,
				EventID:     evidence.GatewayEventID,
				ChangedAt:   now,
			},
		},
	}
	if kind, ok := enums.NotificationKindFor(to); ok {
		events = append(events, outbox.DomainEvent{
			EventType: enums.EventNotificationRequested,
			Data: payloads.NotificationRequestedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				EventKind:   kind,
			},
		})
	}
	if to == enums.OrderStatusPaid {
		participants := make([]payloads.ParticipantInfo, 0, len(order.Participants))
		for _, p := range order.Participants {
			participants = append(participants, payloads.ParticipantInfo{
				TicketTypeID: p.TicketTypeID,
				Name:         p.Name,
				Email:        p.Email,
			})
		}
		events = append(events, outbox.DomainEvent{
			EventType: enums.EventParticipantRegistrationRequested,
			Data: payloads.ParticipantRegistrationRequestedEvent{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				SessionID:    order.SessionID,
				Participants: participants,
			},
		})
	}

	for _, event := range events {
		event.AggregateType = enums.AggregateOrder
		event.AggregateID = order.ID
		event.Actor = evidence.Actor
		event.OccurredAt = now
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("emit %s event", event.EventType))
		}
	}
	return nil
}

// RequestReminder queues the unpaid notice for dayOffset unless one was already queued.
func (s *Store) RequestReminder(ctx context.Context, order models.Order, dayOffset int) (bool, error) {
	var queued bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		inserted, err := s.repo.WithTx(tx).InsertReminder(ctx, &models.OrderReminder{
			OrderID:   order.ID,
			DayOffset: dayOffset,
			SentAt:    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order reminder")
		}
		if !inserted {
			return nil
		}
		queued = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
			OccurredAt:    now,
			Data: payloads.NotificationRequestedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				EventKind:   enums.NotificationPaymentDue,
				DayOffset:   dayOffset,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return queued, nil
}

func timestampColumn(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPaid:
		return "paid_at"
	case enums.OrderStatusCancelled:
		return "cancelled_at"
	case enums.OrderStatusExpired:
		return "expired_at"
	case enums.OrderStatusRefunded:
		return "refunded_at"
	default:
		return ""
	}
}

func validateDraft(draft Draft) error {
	if draft.SessionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if !draft.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if strings.TrimSpace(draft.Currency) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency required")
	}
	if strings.TrimSpace(draft.BuyerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer email required")
	}
	if len(draft.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one ticket line is required")
	}
	seats := 0
	for _, line := range draft.Lines {
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}
		if line.UnitPriceCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
		}
		seats += line.Quantity
	}
	if len(draft.Participants) != seats {
		return pkgerrors.New(pkgerrors.CodeValidation, "one participant is required per seat")
	}
	return nil
}

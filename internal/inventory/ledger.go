package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
)

// Line is one requested quantity of a ticket type.
type Line struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// Reservation is the stock actually taken for a ticket type.
type Reservation struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// Ledger owns the stock column of ticket_types. Every call runs on the caller's transaction.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve atomically takes qty units. The conditional update is the only guard against
// overselling; a zero-row result means either the ticket type is unknown or stock is short.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) (*Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reserve")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE ticket_types
		SET stock = stock - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock >= ?
	`, qty, ticketTypeID, qty)
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 0 {
		if err := l.ensureExists(ctx, tx, ticketTypeID); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"ticket_type_id": ticketTypeID.String(), "requested": qty})
	}
	return &Reservation{TicketTypeID: ticketTypeID, Quantity: qty}, nil
}

// ReserveAll reserves every line in request order after merging repeats of the same
// ticket type. The first failure is returned as-is; rolling back the transaction undoes
// the lines already taken.
func (l *Ledger) ReserveAll(ctx context.Context, tx *gorm.DB, lines []Line) ([]Reservation, error) {
	merged := Merge(lines)
	if len(merged) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one ticket line is required")
	}
	reservations := make([]Reservation, 0, len(merged))
	for _, line := range merged {
		reservation, err := l.Reserve(ctx, tx, line.TicketTypeID, line.Quantity)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *reservation)
	}
	return reservations, nil
}

// Release returns qty units to the ticket type.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE ticket_types
		SET stock = stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, ticketTypeID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("ticket type %s not found", ticketTypeID))
	}
	return nil
}

// Available reads the current stock for a ticket type.
func (l *Ledger) Available(ctx context.Context, db *gorm.DB, ticketTypeID uuid.UUID) (int, error) {
	var ticket models.TicketType
	err := db.WithContext(ctx).Select("id", "stock").Where("id = ?", ticketTypeID).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("ticket type %s not found", ticketTypeID))
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket stock")
	}
	return ticket.Stock, nil
}

func (l *Ledger) ensureExists(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.TicketType{}).Where("id = ?", ticketTypeID).Count(&count).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up ticket type")
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("ticket type %s not found", ticketTypeID))
	}
	return nil
}

// Merge folds repeated ticket types together, keeping first-seen order and dropping
// non-positive quantities.
func Merge(lines []Line) []Line {
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if i, ok := index[line.TicketTypeID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.TicketTypeID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

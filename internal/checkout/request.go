package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventreg-backend/internal/inventory"
	"github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
)

// Request is a buyer's purchase attempt for one session.
type Request struct {
	SessionID     uuid.UUID
	PaymentMethod enums.PaymentMethod
	Lines         []LineRequest
	Buyer         Buyer
	Participants  []ParticipantRequest
}

type LineRequest struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

type Buyer struct {
	Name  string
	Email string
}

type ParticipantRequest struct {
	TicketTypeID uuid.UUID
	Name         string
	Email        string
}

// Result is returned to the buyer once a payment session is open.
type Result struct {
	OrderID     uuid.UUID
	OrderNumber string
	PaymentURL  string
}

func validateRequest(req Request) error {
	if req.SessionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	if !req.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment_method is invalid")
	}
	if strings.TrimSpace(req.Buyer.Name) == "" || strings.TrimSpace(req.Buyer.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer name and email are required")
	}
	if len(req.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one ticket line is required")
	}
	for _, line := range req.Lines {
		if line.TicketTypeID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "ticket_type_id is required")
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}
	}
	for _, p := range req.Participants {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Email) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "participant name and email are required")
		}
	}
	return nil
}

// resolveParticipants fills one buyer seat per ticket when none were listed; otherwise
// every ticket type must carry exactly as many participants as seats.
func resolveParticipants(lines []inventory.Line, buyer Buyer, listed []ParticipantRequest) ([]orders.DraftParticipant, error) {
	if len(listed) == 0 {
		out := []orders.DraftParticipant{}
		for _, line := range lines {
			for i := 0; i < line.Quantity; i++ {
				out = append(out, orders.DraftParticipant{
					TicketTypeID: line.TicketTypeID,
					Name:         buyer.Name,
					Email:        buyer.Email,
				})
			}
		}
		return out, nil
	}

	want := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		want[line.TicketTypeID] = line.Quantity
	}
	got := make(map[uuid.UUID]int, len(lines))
	out := make([]orders.DraftParticipant, 0, len(listed))
	for _, p := range listed {
		if _, ok := want[p.TicketTypeID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("participant references ticket type %s that is not in the order", p.TicketTypeID))
		}
		got[p.TicketTypeID]++
		out = append(out, orders.DraftParticipant{TicketTypeID: p.TicketTypeID, Name: p.Name, Email: p.Email})
	}
	for id, qty := range want {
		if got[id] != qty {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "participant count must match ticket quantity").
				WithDetails(map[string]any{"ticket_type_id": id.String(), "quantity": qty, "participants": got[id]})
		}
	}
	return out, nil
}

func registrationEmails(buyer Buyer, participants []orders.DraftParticipant) []string {
	emails := make([]string, 0, len(participants)+1)
	emails = append(emails, buyer.Email)
	for _, p := range participants {
		emails = append(emails, p.Email)
	}
	return emails
}

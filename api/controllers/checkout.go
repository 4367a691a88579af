package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventreg-backend/api/responses"
	"github.com/angelmondragon/eventreg-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/eventreg-backend/internal/checkout"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
)

// Checkout reserves seats, persists a pending order, and hands back the gateway payment URL.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method"))
			return
		}

		result, err := svc.Submit(r.Context(), payload.toRequest(method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:     result.OrderID,
			OrderNumber: result.OrderNumber,
			PaymentURL:  result.PaymentURL,
		})
	}
}

type checkoutRequest struct {
	SessionID     uuid.UUID            `json:"session_id" validate:"required"`
	PaymentMethod string               `json:"payment_method" validate:"required"`
	TicketLines   []ticketLineRequest  `json:"ticket_lines" validate:"required,min=1,max=20,dive"`
	Buyer         buyerRequest         `json:"buyer"`
	Participants  []participantRequest `json:"participants" validate:"omitempty,max=100,dive"`
}

type ticketLineRequest struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,min=1"`
}

type buyerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=320"`
}

type participantRequest struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id" validate:"required"`
	Name         string    `json:"name" validate:"required,max=200"`
	Email        string    `json:"email" validate:"required,email,max=320"`
}

type checkoutResponse struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	PaymentURL  string    `json:"payment_url"`
}

func (p checkoutRequest) toRequest(method enums.PaymentMethod) checkoutsvc.Request {
	req := checkoutsvc.Request{
		SessionID:     p.SessionID,
		PaymentMethod: method,
		Lines:         make([]checkoutsvc.LineRequest, 0, len(p.TicketLines)),
		Buyer: checkoutsvc.Buyer{
			Name:  validators.SanitizeString(p.Buyer.Name, 200),
			Email: validators.NormalizeEmail(p.Buyer.Email),
		},
	}
	for _, line := range p.TicketLines {
		req.Lines = append(req.Lines, checkoutsvc.LineRequest{TicketTypeID: line.TicketTypeID, Quantity: line.Quantity})
	}
	for _, participant := range p.Participants {
		req.Participants = append(req.Participants, checkoutsvc.ParticipantRequest{
			TicketTypeID: participant.TicketTypeID,
			Name:         validators.SanitizeString(participant.Name, 200),
			Email:        validators.NormalizeEmail(participant.Email),
		})
	}
	return req
}

package dbtest

import (
	"testing"
	"time"

	"github.com/angelmondragon/eventreg-backend/pkg/db"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

// SeedSession inserts a scheduled session starting a week from now.
func SeedSession(t testing.TB, client *db.Client) models.Session {
	t.Helper()
	session := models.Session{
		Title:    "Intro to Sourdough",
		Status:   enums.SessionStatusScheduled,
		StartsAt: time.Now().UTC().Add(7 * 24 * time.Hour),
	}
	if err := client.DB().Create(&session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

// SeedTicketType inserts an active ticket type for the session.
func SeedTicketType(t testing.TB, client *db.Client, session models.Session, priceCents int64, stock int) models.TicketType {
	t.Helper()
	ticket := models.TicketType{
		SessionID:   session.ID,
		Name:        "General Admission",
		PriceCents:  priceCents,
		Stock:       stock,
		MaxPerOrder: 5,
		IsActive:    true,
	}
	if err := client.DB().Create(&ticket).Error; err != nil {
		t.Fatalf("seed ticket type: %v", err)
	}
	return ticket
}

// Stock reads the current stock for a ticket type.
func Stock(t testing.TB, client *db.Client, ticketTypeID any) int {
	t.Helper()
	var ticket models.TicketType
	if err := client.DB().First(&ticket, "id = ?", ticketTypeID).Error; err != nil {
		t.Fatalf("load ticket type: %v", err)
	}
	return ticket.Stock
}

// CountOutbox counts outbox rows of the given type.
func CountOutbox(t testing.TB, client *db.Client, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	if err := client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}

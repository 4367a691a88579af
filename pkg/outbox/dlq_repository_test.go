package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

func deadLetter(orderID uuid.UUID, eventType enums.OutboxEventType, failedAt time.Time) models.OutboxDLQ {
	msg := "publish failed"
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       json.RawMessage(`{"orderNumber":"ER-20260301-ABCDEF12"}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQListForOrderReturnsNewestFirst(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxDLQ{})
	repo := NewDLQRepository(client.DB())
	ctx := context.Background()
	orderID := uuid.New()
	now := time.Now().UTC()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		entries := []models.OutboxDLQ{
			deadLetter(orderID, enums.EventNotificationRequested, now.Add(-time.Hour)),
			deadLetter(orderID, enums.EventParticipantRegistrationRequested, now),
			deadLetter(uuid.New(), enums.EventNotificationRequested, now),
		}
		for _, entry := range entries {
			if err := repo.InsertTx(tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert dead letters: %v", err)
	}

	rows, err := repo.ListForOrder(ctx, orderID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two rows for the order, got %d", len(rows))
	}
	if rows[0].EventType != enums.EventParticipantRegistrationRequested || rows[1].EventType != enums.EventNotificationRequested {
		t.Fatalf("unexpected order %s, %s", rows[0].EventType, rows[1].EventType)
	}

	limited, err := repo.ListForOrder(ctx, orderID, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d rows err=%v", len(limited), err)
	}
}

func TestDLQInsertValidatesEntry(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxDLQ{})
	repo := NewDLQRepository(client.DB())
	ctx := context.Background()

	if err := repo.InsertTx(nil, deadLetter(uuid.New(), enums.EventOrderCreated, time.Now())); err == nil {
		t.Fatalf("expected missing transaction error")
	}

	noOrder := deadLetter(uuid.Nil, enums.EventOrderCreated, time.Now())
	badReason := deadLetter(uuid.New(), enums.EventOrderCreated, time.Now())
	badReason.ErrorReason = "gave_up"
	for name, entry := range map[string]models.OutboxDLQ{"no order": noOrder, "bad reason": badReason} {
		err := client.WithTx(ctx, func(tx *gorm.DB) error { return repo.InsertTx(tx, entry) })
		if err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}

	long := deadLetter(uuid.New(), enums.EventOrderCreated, time.Now())
	msg := strings.Repeat("x", maxDLQErrorLen+200)
	long.ErrorMessage = &msg
	if err := client.WithTx(ctx, func(tx *gorm.DB) error { return repo.InsertTx(tx, long) }); err != nil {
		t.Fatalf("insert long message: %v", err)
	}
	rows, err := repo.ListForOrder(ctx, long.AggregateID, 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected stored row, got %d err=%v", len(rows), err)
	}
	if got := len(*rows[0].ErrorMessage); got != maxDLQErrorLen {
		t.Fatalf("expected message truncated to %d, got %d", maxDLQErrorLen, got)
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

// Session is a scheduled event occurrence that ticket types are sold against.
type Session struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Title     string              `gorm:"column:title;not null"`
	Status    enums.SessionStatus `gorm:"column:status;type:session_status;not null;default:'scheduled'"`
	StartsAt  time.Time           `gorm:"column:starts_at;not null"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Session) TableName() string { return "sessions" }

func (s *Session) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// AcceptsOrders reports whether checkout may open new orders for the session.
func (s Session) AcceptsOrders(now time.Time) bool {
	return s.Status == enums.SessionStatusScheduled && now.Before(s.StartsAt)
}

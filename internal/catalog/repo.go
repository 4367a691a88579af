package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
)

// Repository reads sessions and their ticket types.
type Repository interface {
	FindSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindTicketTypes(ctx context.Context, sessionID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.TicketType, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	return &session, nil
}

// FindTicketTypes loads the requested ticket types, keyed by id. Every id must belong to
// the session; a missing or foreign id is reported as not found.
func (r *repository) FindTicketTypes(ctx context.Context, sessionID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.TicketType, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.TicketType{}, nil
	}
	var rows []models.TicketType
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND id IN ?", sessionID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket types")
	}
	byID := make(map[uuid.UUID]models.TicketType, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket type not found").
				WithDetails(map[string]any{"ticket_type_id": id.String()})
		}
	}
	return byID, nil
}

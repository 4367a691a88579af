package orders

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

// Repository defines persistence operations for the order aggregate tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID, paymentURL string) error
	LockRegistrations(ctx context.Context, sessionID uuid.UUID, emails []string) error
	HasActiveRegistration(ctx context.Context, sessionID uuid.UUID, emails []string) (bool, error)
	ListPendingCreatedBetween(ctx context.Context, methods []enums.PaymentMethod, from, to time.Time, limit int) ([]models.Order, error)
	ListPendingAwaitingReminder(ctx context.Context, now, from time.Time, offsets []int, limit int) ([]models.Order, error)
	ListPendingWithoutGatewaySession(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	InsertPayment(ctx context.Context, payment *models.Payment) (bool, error)
	CountPayments(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) (int64, error)
	SumRefunded(ctx context.Context, orderID uuid.UUID) (int64, error)
	InsertReminder(ctx context.Context, reminder *models.OrderReminder) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its line items and participants.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return r.findOne(ctx, "order_number = ?", strings.TrimSpace(orderNumber))
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where(query, arg).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatusFrom applies updates only while the order still sits in from.
// The boolean reports whether this caller won the transition.
func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID, paymentURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"gateway_session_id": sessionID,
			"payment_url":        paymentURL,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// LockRegistrations serialises registrations for the same session and email until the
// surrounding transaction ends. It must run on a transaction-bound repository. SQLite runs
// on a single connection, so writers are already serialised there.
func (r *repository) LockRegistrations(ctx context.Context, sessionID uuid.UUID, emails []string) error {
	if r.db.Dialector == nil || r.db.Dialector.Name() != "postgres" {
		return nil
	}
	keys := normalizeEmails(emails)
	// sorted so two transactions never take the same locks in opposite order
	slices.Sort(keys)
	for _, email := range keys {
		err := r.db.WithContext(ctx).
			Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", sessionID.String()+":"+email).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// HasActiveRegistration reports whether any pending or paid order for the session
// carries one of the emails as buyer or participant.
func (r *repository) HasActiveRegistration(ctx context.Context, sessionID uuid.UUID, emails []string) (bool, error) {
	normalized := normalizeEmails(emails)
	if len(normalized) == 0 {
		return false, nil
	}
	active := []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("session_id = ? AND status IN ?", sessionID, active).
		Where(
			r.db.Where("LOWER(buyer_email) IN ?", normalized).
				Or("id IN (?)", r.db.Model(&models.Participant{}).Select("order_id").Where("LOWER(email) IN ?", normalized)),
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPendingCreatedBetween returns pending orders created in [from, to), oldest first.
// A zero from leaves the window open at the bottom. An empty methods slice matches every
// payment method.
func (r *repository) ListPendingCreatedBetween(ctx context.Context, methods []enums.PaymentMethod, from, to time.Time, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, to)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if len(methods) > 0 {
		query = query.Where("payment_method IN ?", methods)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var orders []models.Order
	if err := query.Order("created_at ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPendingAwaitingReminder returns pending orders created in [from, now) that have reached
// at least one offset (in days) with no reminder recorded for it, oldest first. Orders that
// were already reminded for every reached offset are left out so they cannot fill the batch.
func (r *repository) ListPendingAwaitingReminder(ctx context.Context, now, from time.Time, offsets []int, limit int) ([]models.Order, error) {
	if len(offsets) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(offsets))
	args := make([]any, 0, 2*len(offsets))
	for _, offset := range offsets {
		conds = append(conds, "(orders.created_at <= ? AND NOT EXISTS "+
			"(SELECT 1 FROM order_reminders r WHERE r.order_id = orders.id AND r.day_offset = ?))")
		args = append(args, now.Add(-time.Duration(offset)*24*time.Hour), offset)
	}

	query := r.db.WithContext(ctx).
		Where("orders.status = ?", enums.OrderStatusPending).
		Where("orders.created_at >= ? AND orders.created_at < ?", from, now).
		Where("("+strings.Join(conds, " OR ")+")", args...)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var orders []models.Order
	if err := query.Order("orders.created_at ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPendingWithoutGatewaySession returns pending orders created before the cutoff that
// never had a payment session stored, oldest first.
func (r *repository) ListPendingWithoutGatewaySession(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND gateway_session_id IS NULL AND created_at < ?", enums.OrderStatusPending, before)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var orders []models.Order
	if err := query.Order("created_at ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// InsertPayment records a gateway fact once per (gateway_payment_id, status).
func (r *repository) InsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_payment_id"}, {Name: "status"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountPayments(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, status).
		Count(&count).Error
	return count, err
}

// SumRefunded totals refunded_amount_cents across refund payments for the order.
func (r *repository) SumRefunded(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(refunded_amount_cents), 0)").
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusRefunded).
		Scan(&total).Error
	return total, err
}

// InsertReminder claims the (order, day offset) slot; false means it was already taken.
func (r *repository) InsertReminder(ctx context.Context, reminder *models.OrderReminder) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "day_offset"}},
			DoNothing: true,
		}).
		Create(reminder)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func normalizeEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		e := strings.ToLower(strings.TrimSpace(email))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// IsNotFound reports whether err means the order row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

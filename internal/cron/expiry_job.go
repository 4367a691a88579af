package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
)

// ReasonPaymentWindowElapsed is recorded on deferred orders expired by the sweep.
const ReasonPaymentWindowElapsed = "payment_window_elapsed"

const defaultSweepBatch = 500

type pendingOrderLister interface {
	ListPendingCreatedBetween(ctx context.Context, methods []enums.PaymentMethod, from, to time.Time, limit int) ([]models.Order, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, evidence orders.Evidence) (*orders.TransitionResult, error)
}

type ExpiryJobParams struct {
	Logger        *logger.Logger
	Orders        pendingOrderLister
	Transitioner  orderTransitioner
	Metrics       *metrics.CronJobMetrics
	PaymentWindow time.Duration
	BatchSize     int
}

// NewExpiryJob expires pending deferred-settlement orders whose payment window elapsed.
func NewExpiryJob(params ExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Transitioner == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if params.PaymentWindow <= 0 {
		return nil, fmt.Errorf("payment window must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &expiryJob{
		logg:    params.Logger,
		orders:  params.Orders,
		store:   params.Transitioner,
		metrics: params.Metrics,
		window:  params.PaymentWindow,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type expiryJob struct {
	logg    *logger.Logger
	orders  pendingOrderLister
	store   orderTransitioner
	metrics *metrics.CronJobMetrics
	window  time.Duration
	batch   int
	now     func() time.Time
}

func (j *expiryJob) Name() string { return "order-expiry" }

// Run has no lower age bound: an order that outlived a long scheduler outage still holds
// seats, and expiring it twice is a no-op.
func (j *expiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	to := now.Add(-j.window)

	candidates, err := j.orders.ListPendingCreatedBetween(ctx, enums.DeferredSettlementMethods, time.Time{}, to, j.batch)
	if err != nil {
		return fmt.Errorf("list expirable orders: %w", err)
	}

	var (
		errs    error
		expired int
	)
	for _, order := range candidates {
		res, err := j.store.Transition(ctx, order.ID, enums.OrderStatusExpired, orders.Evidence{
			Reason: ReasonPaymentWindowElapsed,
			Actor:  &outbox.ActorRef{Kind: outbox.ActorSystem},
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.OrderNumber, err))
			continue
		}
		if res.Applied {
			expired++
		}
	}
	j.metrics.AddSwept(j.Name(), "expired", expired)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     to,
		"candidates": len(candidates),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return errs
}

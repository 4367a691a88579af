package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
)

// ReasonGatewaySessionMissing is recorded on orders cancelled because checkout never stored a payment session.
const ReasonGatewaySessionMissing = "gateway_session_missing"

type sessionlessOrderLister interface {
	ListPendingWithoutGatewaySession(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

type AbandonedCheckoutJobParams struct {
	Logger       *logger.Logger
	Orders       sessionlessOrderLister
	Transitioner orderTransitioner
	Metrics      *metrics.CronJobMetrics
	// Grace must exceed the gateway call timeout so in-flight checkouts are left alone.
	Grace     time.Duration
	BatchSize int
}

// NewAbandonedCheckoutJob cancels pending orders that never received a gateway session,
// releasing the seats a crashed or failed checkout left held.
func NewAbandonedCheckoutJob(params AbandonedCheckoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Transitioner == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if params.Grace <= 0 {
		return nil, fmt.Errorf("grace must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &abandonedCheckoutJob{
		logg:    params.Logger,
		orders:  params.Orders,
		store:   params.Transitioner,
		metrics: params.Metrics,
		grace:   params.Grace,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type abandonedCheckoutJob struct {
	logg    *logger.Logger
	orders  sessionlessOrderLister
	store   orderTransitioner
	metrics *metrics.CronJobMetrics
	grace   time.Duration
	batch   int
	now     func() time.Time
}

func (j *abandonedCheckoutJob) Name() string { return "abandoned-checkout" }

func (j *abandonedCheckoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)

	candidates, err := j.orders.ListPendingWithoutGatewaySession(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list sessionless orders: %w", err)
	}

	var (
		errs      error
		cancelled int
	)
	for _, order := range candidates {
		res, err := j.store.Transition(ctx, order.ID, enums.OrderStatusCancelled, orders.Evidence{
			Reason: ReasonGatewaySessionMissing,
			Actor:  &outbox.ActorRef{Kind: outbox.ActorSystem},
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.OrderNumber, err))
			continue
		}
		if res.Applied {
			cancelled++
		}
	}
	j.metrics.AddSwept(j.Name(), "cancelled", cancelled)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(candidates),
		"cancelled":  cancelled,
	})
	j.logg.Info(logCtx, "abandoned checkout sweep complete")
	return errs
}

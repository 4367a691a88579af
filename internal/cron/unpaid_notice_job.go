package cron

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/eventreg-backend/pkg/db/models"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
)

const day = 24 * time.Hour

type reminderCandidateLister interface {
	ListPendingAwaitingReminder(ctx context.Context, now, from time.Time, offsets []int, limit int) ([]models.Order, error)
}

type reminderRequester interface {
	RequestReminder(ctx context.Context, order models.Order, dayOffset int) (bool, error)
}

type UnpaidNoticeJobParams struct {
	Logger    *logger.Logger
	Orders    reminderCandidateLister
	Reminders reminderRequester
	Metrics   *metrics.CronJobMetrics
	Offsets   []int
	Lookback  time.Duration
	BatchSize int
}

// NewUnpaidNoticeJob queues a payment-due reminder for every pending order once per day offset.
func NewUnpaidNoticeJob(params UnpaidNoticeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Reminders == nil {
		return nil, fmt.Errorf("reminder requester required")
	}
	if len(params.Offsets) == 0 {
		return nil, fmt.Errorf("at least one reminder offset required")
	}
	if params.Lookback <= 0 {
		return nil, fmt.Errorf("lookback must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	offsets := append([]int(nil), params.Offsets...)
	slices.Sort(offsets)
	return &unpaidNoticeJob{
		logg:      params.Logger,
		orders:    params.Orders,
		reminders: params.Reminders,
		metrics:   params.Metrics,
		offsets:   offsets,
		lookback:  params.Lookback,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type unpaidNoticeJob struct {
	logg      *logger.Logger
	orders    reminderCandidateLister
	reminders reminderRequester
	metrics   *metrics.CronJobMetrics
	offsets   []int
	lookback  time.Duration
	batch     int
	now       func() time.Time
}

func (j *unpaidNoticeJob) Name() string { return "unpaid-notice" }

// Run considers pending orders inside the lookback window that still owe a reminder for an
// offset they reached. Offsets already queued are skipped by the reminder ledger.
func (j *unpaidNoticeJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	candidates, err := j.orders.ListPendingAwaitingReminder(ctx, now, now.Add(-j.lookback), j.offsets, j.batch)
	if err != nil {
		return fmt.Errorf("list unpaid orders: %w", err)
	}

	var (
		errs   error
		queued int
	)
	for _, order := range candidates {
		age := now.Sub(order.CreatedAt)
		for _, offset := range j.offsets {
			if age < time.Duration(offset)*day {
				break
			}
			sent, err := j.reminders.RequestReminder(ctx, order, offset)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("remind order %s day %d: %w", order.OrderNumber, offset, err))
				continue
			}
			if sent {
				queued++
			}
		}
	}
	j.metrics.AddSwept(j.Name(), "reminded", queued)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"queued":     queued,
		"offsets":    j.offsets,
	})
	j.logg.Info(logCtx, "unpaid notice sweep complete")
	return errs
}

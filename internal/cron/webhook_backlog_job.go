package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
)

const defaultRetryAlertThreshold = 5

type stuckWebhookCounter interface {
	CountStuck(ctx context.Context, minRetries int) (int64, error)
}

type WebhookBacklogJobParams struct {
	Logger         *logger.Logger
	Events         stuckWebhookCounter
	Metrics        *metrics.CronJobMetrics
	AlertThreshold int
}

// NewWebhookBacklogJob exports how many deliveries keep failing after repeated redelivery.
func NewWebhookBacklogJob(params WebhookBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	threshold := params.AlertThreshold
	if threshold <= 0 {
		threshold = defaultRetryAlertThreshold
	}
	return &webhookBacklogJob{
		logg:      params.Logger,
		events:    params.Events,
		metrics:   params.Metrics,
		threshold: threshold,
	}, nil
}

type webhookBacklogJob struct {
	logg      *logger.Logger
	events    stuckWebhookCounter
	metrics   *metrics.CronJobMetrics
	threshold int
}

func (j *webhookBacklogJob) Name() string { return "webhook-backlog" }

func (j *webhookBacklogJob) Run(ctx context.Context) error {
	stuck, err := j.events.CountStuck(ctx, j.threshold)
	if err != nil {
		return fmt.Errorf("count stuck webhooks: %w", err)
	}
	j.metrics.SetWebhookBacklog(stuck)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stuck":           stuck,
		"retry_threshold": j.threshold,
	})
	if stuck > 0 {
		j.logg.Warn(logCtx, "webhook events exceeded retry alert threshold")
		return nil
	}
	j.logg.Info(logCtx, "webhook backlog clear")
	return nil
}

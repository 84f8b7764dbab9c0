package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
)

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configures the retention job. DeadLetters is
// optional; without it DLQ rows are kept forever.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Published    publishedPruner
	DeadLetters  deadLetterPruner
	Retention    int
	DLQRetention int
	Now          func() time.Time
}

// NewOutboxRetentionJob prunes published outbox rows and aged DLQ entries.
// Pending rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Published == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		published:    params.Published,
		deadLetters:  params.DeadLetters,
		retention:    orDefault(params.Retention, outboxRetentionDays),
		dlqRetention: orDefault(params.DLQRetention, dlqRetentionDays),
		now:          params.Now,
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	published    publishedPruner
	deadLetters  deadLetterPruner
	retention    int
	dlqRetention int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	today := j.now().UTC()
	fields := map[string]any{"retention_days": j.retention}

	var errs error
	cutoff := today.AddDate(0, 0, -j.retention)
	published, err := j.published.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune published outbox: %w", err))
	}
	fields["published_deleted"] = published

	if j.deadLetters != nil {
		dlqCutoff := today.AddDate(0, 0, -j.dlqRetention)
		dead, err := j.deadLetters.DeleteBefore(ctx, dlqCutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune outbox dlq: %w", err))
		}
		fields["dlq_retention_days"] = j.dlqRetention
		fields["dlq_deleted"] = dead
	}
	if errs != nil {
		return errs
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultStaleReleaseDays  = 7
	defaultStaleReleaseBatch = 500
)

type staleOrderReleaser interface {
	ReleaseStale(ctx context.Context, createdBefore time.Time, limit int) (int, error)
}

type StaleOrderReleaseJobParams struct {
	Logger *logger.Logger
	Orders staleOrderReleaser
	Days   int
	Batch  int
	Now    func() time.Time
}

// NewStaleOrderReleaseJob returns stock held by orders abandoned for more
// than the configured number of days.
func NewStaleOrderReleaseJob(params StaleOrderReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	days := params.Days
	if days <= 0 {
		days = defaultStaleReleaseDays
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultStaleReleaseBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &staleOrderReleaseJob{logg: params.Logger, orders: params.Orders, days: days, batch: batch, now: now}, nil
}

type staleOrderReleaseJob struct {
	logg   *logger.Logger
	orders staleOrderReleaser
	days   int
	batch  int
	now    func() time.Time
}

func (j *staleOrderReleaseJob) Name() string { return "stale-order-release" }

func (j *staleOrderReleaseJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)
	released, err := j.orders.ReleaseStale(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("release stale orders: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"released": released,
	}), "stale order release complete")
	return nil
}

package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type subscriptionSource interface {
	ReconcileCandidates(ctx context.Context, updatedAfter time.Time, limit int) ([]models.Subscription, error)
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*asaas.Subscription, error)
}

type subscriptionApplier interface {
	ApplySubscriptionSnapshot(ctx context.Context, sub *asaas.Subscription) (string, error)
}

// SubscriptionReconcileJobParams configures the subscription sync job.
type SubscriptionReconcileJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionSource
	Provider      subscriptionFetcher
	Applier       subscriptionApplier
	Limit         int
	Lookback      time.Duration
	Now           func() time.Time
}

// NewSubscriptionReconcileJob refreshes live subscriptions from the provider.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("subscription provider required")
	}
	if params.Applier == nil {
		return nil, fmt.Errorf("subscription applier required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:     params.Logger,
		subs:     params.Subscriptions,
		provider: params.Provider,
		applier:  params.Applier,
		now:      now,
		limit:    limit,
		lookback: lookback,
	}, nil
}

type subscriptionReconcileJob struct {
	logg     *logger.Logger
	subs     subscriptionSource
	provider subscriptionFetcher
	applier  subscriptionApplier
	now      func() time.Time
	limit    int
	lookback time.Duration
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	snapshot, err := j.subs.ReconcileCandidates(ctx, j.now().UTC().Add(-j.lookback), j.limit)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}
	var errs error
	synced := 0
	for i := range snapshot {
		changed, err := j.reconcileSubscription(ctx, &snapshot[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			synced++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(snapshot),
		"synced":     synced,
	}), "subscription reconcile loop complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcileSubscription(ctx context.Context, sub *models.Subscription) (bool, error) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"subscription_id":          sub.ID,
		"provider_subscription_id": sub.ProviderSubscriptionID,
	})
	if strings.TrimSpace(sub.ProviderSubscriptionID) == "" {
		return false, nil
	}
	remote, err := j.provider.GetSubscription(logCtx, sub.ProviderSubscriptionID)
	if errors.Is(err, asaas.ErrNotFound) {
		j.logg.Warn(logCtx, "provider subscription not found; skipping")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch subscription %s: %w", sub.ID, err)
	}
	outcome, err := j.applier.ApplySubscriptionSnapshot(logCtx, remote)
	if err != nil {
		return false, fmt.Errorf("apply subscription %s: %w", sub.ID, err)
	}
	return outcome == metrics.WebhookOutcomeApplied, nil
}

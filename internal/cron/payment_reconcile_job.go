package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultReconcileLimit    = 200
	defaultReconcileMinAge   = 30 * time.Minute
	defaultReconcileLookback = 7 * 24 * time.Hour
)

type pendingOrderSource interface {
	ReconcileCandidates(ctx context.Context, createdBefore, createdAfter time.Time, limit int) ([]models.Order, error)
}

type paymentFetcher interface {
	GetPayment(ctx context.Context, id string) (*asaas.Payment, error)
}

type paymentApplier interface {
	ReconcilePayment(ctx context.Context, payment *asaas.Payment) (string, error)
}

// PaymentReconcileJobParams configures the pending payment sweep.
type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Orders   pendingOrderSource
	Provider paymentFetcher
	Applier  paymentApplier
	Limit    int
	MinAge   time.Duration
	Lookback time.Duration
	Now      func() time.Time
}

// NewPaymentReconcileJob polls the provider for pending orders whose webhook
// may have been lost.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Applier == nil {
		return nil, fmt.Errorf("payment applier required")
	}
	job := &paymentReconcileJob{
		logg:     params.Logger,
		orders:   params.Orders,
		provider: params.Provider,
		applier:  params.Applier,
		limit:    params.Limit,
		minAge:   params.MinAge,
		lookback: params.Lookback,
		now:      params.Now,
	}
	if job.limit <= 0 {
		job.limit = defaultReconcileLimit
	}
	if job.minAge <= 0 {
		job.minAge = defaultReconcileMinAge
	}
	if job.lookback <= job.minAge {
		job.lookback = defaultReconcileLookback
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	orders   pendingOrderSource
	provider paymentFetcher
	applier  paymentApplier
	limit    int
	minAge   time.Duration
	lookback time.Duration
	now      func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	candidates, err := j.orders.ReconcileCandidates(ctx, now.Add(-j.minAge), now.Add(-j.lookback), j.limit)
	if err != nil {
		return fmt.Errorf("list reconcile candidates: %w", err)
	}
	var errs error
	counts := map[string]int{}
	for i := range candidates {
		outcome, err := j.reconcile(ctx, &candidates[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		counts[outcome]++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"applied":    counts[metrics.WebhookOutcomeApplied],
		"unchanged":  counts[metrics.WebhookOutcomeNoop],
		"failed":     len(multierr.Errors(errs)),
	}), "payment reconcile complete")
	return errs
}

func (j *paymentReconcileJob) reconcile(ctx context.Context, order *models.Order) (string, error) {
	if order.ProviderPaymentID == nil || *order.ProviderPaymentID == "" {
		return metrics.WebhookOutcomeNoop, nil
	}
	ctx = j.logg.WithOrderID(ctx, order.ID.String())
	payment, err := j.provider.GetPayment(ctx, *order.ProviderPaymentID)
	if errors.Is(err, asaas.ErrNotFound) {
		j.logg.Warn(j.logg.WithField(ctx, "provider_payment_id", *order.ProviderPaymentID), "provider payment not found")
		return metrics.WebhookOutcomeNoop, nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch payment for order %s: %w", order.ID, err)
	}
	outcome, err := j.applier.ReconcilePayment(ctx, payment)
	if err != nil {
		return "", fmt.Errorf("apply payment for order %s: %w", order.ID, err)
	}
	return outcome, nil
}

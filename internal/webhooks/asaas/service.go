package asaaswebhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/subscriptions"
	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const eventSubscriptionDeleted = "SUBSCRIPTION_DELETED"

type orderReconciler interface {
	Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Order, error)
	ApplyProviderUpdate(ctx context.Context, update orders.ProviderUpdate) (*orders.TransitionResult, error)
}

type subscriptionReconciler interface {
	ApplyProviderUpdate(ctx context.Context, update subscriptions.ProviderUpdate) (*subscriptions.UpdateResult, error)
}

// ServiceParams groups reconciler dependencies.
type ServiceParams struct {
	Orders        orderReconciler
	Subscriptions subscriptionReconciler
	Config        config.PaymentsConfig
	Logger        *logger.Logger
}

// Service applies provider payment and subscription notifications to local
// state. Webhooks and the payment reconcile job both go through it.
type Service struct {
	orders orderReconciler
	subs   subscriptionReconciler
	loc    *time.Location
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy, err := payments.NewDueDatePolicy(params.Config)
	if err != nil {
		return nil, err
	}
	return &Service{
		orders: params.Orders,
		subs:   params.Subscriptions,
		loc:    policy.Location(),
		logg:   params.Logger,
	}, nil
}

// EventKey identifies a notification for deduplication. Older payloads carry
// no id, so the event name, resource and status stand in for it.
func EventKey(event *asaas.Event) string {
	if event == nil {
		return ""
	}
	if id := strings.TrimSpace(event.ID); id != "" {
		return id
	}
	switch {
	case event.Payment != nil:
		return strings.Join([]string{event.Event, event.Payment.ID, event.Payment.Status}, ":")
	case event.Subscription != nil:
		return strings.Join([]string{event.Event, event.Subscription.ID, event.Subscription.Status}, ":")
	}
	return ""
}

// Validate rejects notifications that can never be applied.
func Validate(event *asaas.Event) error {
	if event == nil || strings.TrimSpace(event.Event) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event name required")
	}
	switch {
	case event.Payment != nil:
		if strings.TrimSpace(event.Payment.ID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
		}
	case event.Subscription != nil:
		if strings.TrimSpace(event.Subscription.ID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "payment or subscription payload required")
	}
	return nil
}

// HandleEvent applies one webhook notification and reports the metrics outcome.
func (s *Service) HandleEvent(ctx context.Context, event *asaas.Event) (string, error) {
	if err := Validate(event); err != nil {
		return metrics.WebhookOutcomeRejected, err
	}
	name := strings.ToUpper(strings.TrimSpace(event.Event))
	ctx = s.logg.WithFields(ctx, map[string]any{"provider_event": name, "provider_event_id": event.ID})

	if payment := event.Payment; payment != nil {
		if strings.TrimSpace(payment.Subscription) != "" {
			return s.applySubscriptionCharge(ctx, name, payment)
		}
		return s.applyPayment(ctx, payment, payments.EventTarget(name), payloads.SourceWebhook)
	}
	return s.applySubscription(ctx, name, event.Subscription, payloads.SourceWebhook)
}

// ReconcilePayment applies a payment fetched from the provider, using its
// current status instead of an event name.
func (s *Service) ReconcilePayment(ctx context.Context, payment *asaas.Payment) (string, error) {
	if payment == nil || strings.TrimSpace(payment.ID) == "" {
		return metrics.WebhookOutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "payment required")
	}
	return s.applyPayment(ctx, payment, payments.PaymentTarget(payment), payloads.SourceReconcile)
}

func (s *Service) applyPayment(ctx context.Context, payment *asaas.Payment, target *enums.OrderStatus, source string) (string, error) {
	order, err := s.resolveOrder(ctx, payment)
	if err != nil {
		return metrics.WebhookOutcomeFailed, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"provider_payment_id": payment.ID})
	if order == nil {
		s.logg.Warn(ctx, "provider payment matches no order")
		return metrics.WebhookOutcomeNoop, nil
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	result, err := s.orders.ApplyProviderUpdate(ctx, orders.ProviderUpdate{
		OrderID:           order.ID,
		Target:            target,
		ProviderPaymentID: payment.ID,
		ProviderStatus:    strings.ToUpper(payment.Status),
		Source:            source,
	})
	if err != nil {
		return metrics.WebhookOutcomeFailed, err
	}
	if result.Outcome != orders.OutcomeApplied {
		s.logg.Info(s.logg.WithField(ctx, "outcome", string(result.Outcome)), "provider payment already reflected")
		return metrics.WebhookOutcomeNoop, nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"from": result.From,
		"to":   result.Order.Status,
	}), "order status updated from provider")
	return metrics.WebhookOutcomeApplied, nil
}

// resolveOrder follows the back-reference first, then the description, and
// only then the stored provider payment id. A nil order means no match.
func (s *Service) resolveOrder(ctx context.Context, payment *asaas.Payment) (*models.Order, error) {
	candidates := []uuid.UUID{}
	if id, err := uuid.Parse(strings.TrimSpace(payment.ExternalReference)); err == nil {
		candidates = append(candidates, id)
	}
	if id, ok := payments.OrderIDFromDescription(payment.Description); ok {
		candidates = append(candidates, id)
	}
	for _, id := range candidates {
		order, err := s.orders.Find(ctx, id)
		if err == nil {
			return order, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	order, err := s.orders.FindByProviderPaymentID(ctx, payment.ID)
	if err == nil {
		return order, nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	return nil, err
}

// applySubscriptionCharge maps a subscription charge onto the subscription:
// a settled charge keeps it active, an overdue one marks it overdue.
func (s *Service) applySubscriptionCharge(ctx context.Context, name string, payment *asaas.Payment) (string, error) {
	var status string
	target := payments.EventTarget(name)
	switch {
	case target != nil && *target == enums.OrderStatusPaid:
		status = subscriptions.StatusActive
	case name == payments.EventPaymentOverdue:
		status = subscriptions.StatusOverdue
	default:
		return metrics.WebhookOutcomeNoop, nil
	}
	return s.updateSubscription(ctx, subscriptions.ProviderUpdate{
		ProviderSubscriptionID: payment.Subscription,
		Status:                 status,
		Source:                 payloads.SourceWebhook,
	})
}

func (s *Service) applySubscription(ctx context.Context, name string, sub *asaas.Subscription, source string) (string, error) {
	update := subscriptions.ProviderUpdate{
		ProviderSubscriptionID: sub.ID,
		Status:                 sub.Status,
		Source:                 source,
	}
	if sub.Deleted || name == eventSubscriptionDeleted {
		update.Status = subscriptions.StatusInactive
	}
	if strings.TrimSpace(sub.NextDueDate) != "" {
		due, err := asaas.ParseDate(sub.NextDueDate, s.loc)
		if err != nil {
			return metrics.WebhookOutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid next due date")
		}
		update.NextDueDate = &due
	}
	return s.updateSubscription(ctx, update)
}

// ApplySubscriptionSnapshot applies a subscription fetched from the provider.
func (s *Service) ApplySubscriptionSnapshot(ctx context.Context, sub *asaas.Subscription) (string, error) {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return metrics.WebhookOutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "subscription required")
	}
	return s.applySubscription(ctx, "", sub, payloads.SourceReconcile)
}

func (s *Service) updateSubscription(ctx context.Context, update subscriptions.ProviderUpdate) (string, error) {
	ctx = s.logg.WithField(ctx, "provider_subscription_id", update.ProviderSubscriptionID)
	result, err := s.subs.ApplyProviderUpdate(ctx, update)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(ctx, "provider subscription matches no local subscription")
		return metrics.WebhookOutcomeNoop, nil
	}
	if err != nil {
		return metrics.WebhookOutcomeFailed, err
	}
	if !result.Changed {
		return metrics.WebhookOutcomeNoop, nil
	}
	return metrics.WebhookOutcomeApplied, nil
}

package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type providerClient interface {
	CreateSubscription(ctx context.Context, params asaas.SubscriptionCreateParams) (*asaas.Subscription, error)
}

type planLoader interface {
	PlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type customerResolver interface {
	Resolve(ctx context.Context, user *models.User, buyer types.Buyer) (string, error)
	Forget(ctx context.Context, user *models.User, customerID string) error
}

// Service defines the subscription lifecycle surface.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*SubscriptionDTO, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*SubscriptionDTO, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]SubscriptionDTO, error)
	ApplyProviderUpdate(ctx context.Context, update ProviderUpdate) (*UpdateResult, error)
	ReconcileCandidates(ctx context.Context, updatedAfter time.Time, limit int) ([]models.Subscription, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Tx        txRunner
	Repo      Repository
	Plans     planLoader
	Users     userLoader
	Customers customerResolver
	Provider  providerClient
	Outbox    outbox.Emitter
	Config    config.PaymentsConfig
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	repo      Repository
	plans     planLoader
	users     userLoader
	customers customerResolver
	provider  providerClient
	outbox    outbox.Emitter
	policy    payments.DueDatePolicy
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan loader required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer resolver required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy, err := payments.NewDueDatePolicy(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		plans:     params.Plans,
		users:     params.Users,
		customers: params.Customers,
		provider:  params.Provider,
		outbox:    params.Outbox,
		policy:    policy,
		logg:      params.Logger,
		now:       params.Now,
	}, nil
}

// Create opens a provider subscription for the user and mirrors it locally.
// The provider call happens before any local write; a failed local write
// leaves a provider subscription the reconcile job cannot see, so it is
// logged with the provider id.
func (s *service) Create(ctx context.Context, input CreateInput) (*SubscriptionDTO, error) {
	details, err := validateCreate(input)
	if err != nil {
		return nil, err
	}
	plan, err := s.resolvePlan(ctx, input)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithUserID(ctx, user.ID.String())

	localID := uuid.New()
	now := s.now()
	params := asaas.SubscriptionCreateParams{
		BillingType:       payments.BillingType(input.PaymentMethod),
		Value:             asaas.NewMoney(plan.Value),
		NextDueDate:       s.policy.DueDate(input.PaymentMethod, now),
		Cycle:             string(plan.Cycle),
		Description:       plan.Name,
		ExternalReference: localID.String(),
	}
	if card, ok := details.(payments.CardDetails); ok {
		params.CreditCard, params.CreditCardHolderInfo = payments.CardPayload(card, input.Buyer, nil)
		params.RemoteIP = card.RemoteIP
	}

	remote, err := s.openRemote(ctx, user, input.Buyer, params)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ID:                     localID,
		UserID:                 user.ID,
		ProviderSubscriptionID: remote.ID,
		Status:                 firstStatus(remote.Status),
		BillingType:            input.PaymentMethod,
		Value:                  plan.Value,
		Cycle:                  plan.Cycle,
		NextDueDate:            s.parseDueDate(logCtx, remote.NextDueDate, params.NextDueDate),
		PlanName:               &plan.Name,
		PlanDescription:        plan.Description,
	}
	if input.PlanID != nil {
		sub.PlanID = &plan.ID
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist subscription")
		}
		return s.emitUpdated(ctx, tx, sub, &outbox.ActorRef{UserID: user.ID, Role: enums.UserRoleCustomer.String()})
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "provider_subscription_id", remote.ID), "provider subscription created but not recorded", err)
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"subscription_id":          sub.ID,
		"provider_subscription_id": sub.ProviderSubscriptionID,
		"cycle":                    sub.Cycle,
	}), "subscription created")
	dto := FromModel(sub)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && sub.UserID != userID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	dto := FromModel(sub)
	return &dto, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]SubscriptionDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions")
	}
	out := make([]SubscriptionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

// ApplyProviderUpdate writes status and next due date when either differs and
// emits subscription_updated in the same transaction. Unknown provider ids are
// NOT_FOUND.
func (s *service) ApplyProviderUpdate(ctx context.Context, update ProviderUpdate) (*UpdateResult, error) {
	providerID := strings.TrimSpace(update.ProviderSubscriptionID)
	if providerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider subscription id required")
	}
	status := strings.ToUpper(strings.TrimSpace(update.Status))

	var result *UpdateResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByProviderIDForUpdate(ctx, providerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
		}

		updates := map[string]any{}
		if status != "" && status != sub.Status {
			updates["status"] = status
			sub.Status = status
		}
		if update.NextDueDate != nil && !sameDay(sub.NextDueDate, *update.NextDueDate) {
			due := *update.NextDueDate
			updates["next_due_date"] = due
			sub.NextDueDate = &due
		}
		result = &UpdateResult{Subscription: sub}
		if len(updates) == 0 {
			return nil
		}
		if err := repo.Update(ctx, sub.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription")
		}
		result.Changed = true
		return s.emitUpdated(ctx, tx, sub, nil)
	})
	if err != nil {
		return nil, err
	}
	if result.Changed {
		logCtx := s.logg.WithSubscriptionID(ctx, result.Subscription.ID.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"provider_subscription_id": providerID,
			"status":                   result.Subscription.Status,
			"source":                   update.Source,
		}), "subscription updated from provider")
	}
	return result, nil
}

func (s *service) ReconcileCandidates(ctx context.Context, updatedAfter time.Time, limit int) ([]models.Subscription, error) {
	rows, err := s.repo.ListForReconciliation(ctx, updatedAfter, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions for reconciliation")
	}
	return rows, nil
}

func (s *service) emitUpdated(ctx context.Context, tx *gorm.DB, sub *models.Subscription, actor *outbox.ActorRef) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventSubscriptionUpdated,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         actor,
		Data: payloads.SubscriptionUpdatedEvent{
			SubscriptionID:         sub.ID,
			ProviderSubscriptionID: sub.ProviderSubscriptionID,
			UserID:                 sub.UserID,
			Status:                 sub.Status,
			NextDueDate:            sub.NextDueDate,
		},
		Version: 1,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit subscription_updated")
	}
	return nil
}

// openRemote creates the provider subscription for the user's customer. A
// customer the provider rejects is unlinked and resolved again, once.
func (s *service) openRemote(ctx context.Context, user *models.User, buyer types.Buyer, params asaas.SubscriptionCreateParams) (*asaas.Subscription, error) {
	for attempt := 0; ; attempt++ {
		customerID, err := s.customers.Resolve(ctx, user, buyer)
		if err != nil {
			return nil, err
		}
		params.Customer = customerID
		remote, err := s.provider.CreateSubscription(ctx, params)
		if err == nil {
			return remote, nil
		}
		if attempt > 0 || !asaas.IsStaleCustomer(err) {
			return nil, asaas.ToDomainError(err, "create provider subscription")
		}
		if err := s.customers.Forget(ctx, user, customerID); err != nil {
			return nil, err
		}
	}
}

func (s *service) resolvePlan(ctx context.Context, input CreateInput) (*models.Plan, error) {
	if input.PlanID != nil {
		return s.plans.PlanByID(ctx, *input.PlanID)
	}
	custom := input.Custom
	return &models.Plan{
		Name:        strings.TrimSpace(custom.Name),
		Description: custom.Description,
		Value:       custom.Value,
		Cycle:       custom.Cycle,
		IsActive:    true,
	}, nil
}

func (s *service) parseDueDate(ctx context.Context, remote, requested string) *time.Time {
	value := remote
	if strings.TrimSpace(value) == "" {
		value = requested
	}
	due, err := asaas.ParseDate(value, s.policy.Location())
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "next_due_date", value), "unparseable subscription due date")
		return nil
	}
	return &due
}

func validateCreate(input CreateInput) (payments.MethodDetails, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user required")
	}
	if (input.PlanID == nil) == (input.Custom == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of plan_id or custom plan is required")
	}
	if custom := input.Custom; custom != nil {
		if strings.TrimSpace(custom.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "custom plan name required")
		}
		if !custom.Value.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "custom plan value must be positive")
		}
		if !custom.Cycle.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription cycle")
		}
	}
	buyer := input.Buyer
	if strings.TrimSpace(buyer.Name) == "" || strings.TrimSpace(buyer.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer name and email required")
	}
	if digits := types.OnlyDigits(buyer.TaxID); len(digits) != 11 && len(digits) != 14 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer tax id must have 11 or 14 digits")
	}
	details, err := payments.DetailsFor(input.PaymentMethod, input.Card)
	if err != nil {
		return nil, err
	}
	if err := payments.Validate(details); err != nil {
		return nil, err
	}
	return details, nil
}

func firstStatus(remote string) string {
	if status := strings.ToUpper(strings.TrimSpace(remote)); status != "" {
		return status
	}
	return StatusActive
}

func sameDay(current *time.Time, next time.Time) bool {
	if current == nil {
		return false
	}
	return current.Format(time.DateOnly) == next.Format(time.DateOnly)
}

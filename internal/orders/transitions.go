package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Outcome describes what a provider update did to an order.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeNoop        Outcome = "noop"
	OutcomeAlreadyPaid Outcome = "already_paid"
	OutcomeStale       Outcome = "stale_payment"
)

// PaymentRecord binds a freshly created provider payment to an order.
type PaymentRecord struct {
	OrderID           uuid.UUID
	ProviderPaymentID string
	ProviderStatus    string
	Method            enums.PaymentMethod
	Retry             bool
}

// ProviderUpdate is a normalized provider notification or poll result.
// Target is nil when the provider status has no order status mapping.
type ProviderUpdate struct {
	OrderID           uuid.UUID
	Target            *enums.OrderStatus
	ProviderPaymentID string
	ProviderStatus    string
	Source            string
}

// TransitionResult reports the order after a provider update.
type TransitionResult struct {
	Order   *models.Order
	Outcome Outcome
	From    enums.OrderStatus
}

// AdminStatusInput is an operator override of an order status.
type AdminStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Reason  string
	ActorID uuid.UUID
}

// RecordPayment stores the provider payment reference. A retried CANCELED
// order that still holds its stock returns to PENDING.
func (s *service) RecordPayment(ctx context.Context, record PaymentRecord) (*models.Order, error) {
	if record.OrderID == uuid.Nil || strings.TrimSpace(record.ProviderPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and provider payment id are required")
	}

	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, record.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}

		updates := map[string]any{
			"provider_payment_id": record.ProviderPaymentID,
		}
		if record.ProviderStatus != "" {
			updates["provider_payment_status"] = record.ProviderStatus
		}
		if record.Method.IsValid() {
			updates["payment_method"] = record.Method
		}

		switch order.Status {
		case enums.OrderStatusPaid:
			// the order settled through another payment; keep that reference
			if order.ProviderPaymentID != nil {
				out = order
				return nil
			}
		case enums.OrderStatusCanceled:
			if order.StockReleased {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order stock was released; place a new order")
			}
			updates["status"] = enums.OrderStatusPending
			updates["canceled_at"] = nil
		}

		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record provider payment")
		}
		applyUpdates(order, updates)

		if err := s.emit(ctx, tx, enums.EventOrderPaymentInitiated, order, nil, payloads.OrderPaymentInitiatedEvent{
			OrderID:           order.ID,
			ProviderPaymentID: record.ProviderPaymentID,
			ProviderStatus:    record.ProviderStatus,
			PaymentMethod:     order.PaymentMethod,
			Retry:             record.Retry,
		}); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, asDomain(err, "record provider payment")
	}
	return out, nil
}

// ApplyProviderUpdate moves an order according to a provider status. PAID is
// terminal: later notifications never change it.
func (s *service) ApplyProviderUpdate(ctx context.Context, update ProviderUpdate) (*TransitionResult, error) {
	if update.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if update.Source == "" {
		update.Source = payloads.SourceWebhook
	}

	result := &TransitionResult{Outcome: OutcomeNoop}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, update.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		result.Order = order
		result.From = order.Status

		if order.Status == enums.OrderStatusPaid {
			result.Outcome = OutcomeAlreadyPaid
			return nil
		}

		stalePayment := update.ProviderPaymentID != "" && order.ProviderPaymentID != nil &&
			*order.ProviderPaymentID != update.ProviderPaymentID
		target := update.Target
		if stalePayment && (target == nil || *target != enums.OrderStatusPaid) {
			// a superseded payment can still settle the order but never cancel it
			result.Outcome = OutcomeStale
			return nil
		}

		updates := map[string]any{}
		if update.ProviderPaymentID != "" && (order.ProviderPaymentID == nil || stalePayment) {
			updates["provider_payment_id"] = update.ProviderPaymentID
		}
		if update.ProviderStatus != "" && (order.ProviderPaymentStatus == nil || *order.ProviderPaymentStatus != update.ProviderStatus) {
			updates["provider_payment_status"] = update.ProviderStatus
		}

		now := s.now().UTC()
		var emitFn func() error
		if target != nil && *target != order.Status {
			switch *target {
			case enums.OrderStatusPaid:
				emitFn, err = s.settle(ctx, tx, order, updates, now, update.Source, nil)
				if err != nil {
					return err
				}
			case enums.OrderStatusCanceled:
				updates["status"] = enums.OrderStatusCanceled
				updates["canceled_at"] = now
				emitFn = func() error {
					return s.emitCanceled(ctx, tx, order, now, "provider "+strings.ToLower(update.ProviderStatus), update.Source, nil)
				}
			}
		}

		if len(updates) == 0 {
			return nil
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply provider update")
		}
		applyUpdates(order, updates)
		if emitFn != nil {
			if err := emitFn(); err != nil {
				return err
			}
			result.Outcome = OutcomeApplied
		}
		return nil
	})
	if err != nil {
		return nil, asDomain(err, "apply provider update")
	}
	return result, nil
}

// Cancel lets the buyer abandon a PENDING order. Its stock returns to the
// catalog immediately.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status.IsFinal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be canceled").WithDetails(map[string]any{
				"status": order.Status,
			})
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":      enums.OrderStatusCanceled,
			"canceled_at": now,
		}
		if !order.StockReleased {
			if err := s.releaseStock(ctx, tx, order); err != nil {
				return err
			}
			updates["stock_released"] = true
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		applyUpdates(order, updates)

		actor := &outbox.ActorRef{UserID: userID, Role: enums.UserRoleCustomer.String()}
		if err := s.emitCanceled(ctx, tx, order, now, reason, payloads.SourceBuyer, actor); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, asDomain(err, "cancel order")
	}
	return out, nil
}

// AdminSetStatus applies an operator override. It never moves an order out
// of PAID, and only paying a released order touches stock.
func (s *service) AdminSetStatus(ctx context.Context, input AdminStatusInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		out = order
		if order.Status == input.Status {
			return nil
		}
		if order.Status == enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders cannot change status")
		}

		now := s.now().UTC()
		actor := &outbox.ActorRef{UserID: input.ActorID, Role: enums.UserRoleAdmin.String()}
		updates := map[string]any{"status": input.Status}
		var emitFn func() error
		switch input.Status {
		case enums.OrderStatusPending:
			if order.StockReleased {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order stock was released; it cannot be reopened")
			}
			updates["canceled_at"] = nil
		case enums.OrderStatusPaid:
			emitFn, err = s.settle(ctx, tx, order, updates, now, payloads.SourceAdmin, actor)
			if err != nil {
				return err
			}
		case enums.OrderStatusCanceled:
			updates["canceled_at"] = now
			emitFn = func() error {
				return s.emitCanceled(ctx, tx, order, now, input.Reason, payloads.SourceAdmin, actor)
			}
		}

		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "override order status")
		}
		applyUpdates(order, updates)
		if emitFn != nil {
			return emitFn()
		}
		return nil
	})
	if err != nil {
		return nil, asDomain(err, "override order status")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, out.ID.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"status":   out.Status,
			"actor_id": input.ActorID.String(),
		}), "order status overridden")
	}
	return out, nil
}

// ReleaseStale returns stock held by abandoned orders. PENDING orders without
// a provider payment are canceled on the way.
func (s *service) ReleaseStale(ctx context.Context, createdBefore time.Time, limit int) (int, error) {
	candidates, err := s.repo.FindStockHolders(ctx, createdBefore, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find stale orders")
	}

	released := 0
	var errs error
	for _, candidate := range candidates {
		ok, err := s.releaseOne(ctx, candidate.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			released++
		}
	}
	return released, errs
}

func (s *service) releaseOne(ctx context.Context, orderID uuid.UUID) (bool, error) {
	released := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		if order.StockReleased || order.Status == enums.OrderStatusPaid {
			return nil
		}
		if order.Status == enums.OrderStatusPending && order.ProviderPaymentID != nil {
			return nil
		}

		if err := s.releaseStock(ctx, tx, order); err != nil {
			return err
		}
		now := s.now().UTC()
		updates := map[string]any{"stock_released": true}
		cancel := order.Status == enums.OrderStatusPending
		if cancel {
			updates["status"] = enums.OrderStatusCanceled
			updates["canceled_at"] = now
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release stale order")
		}
		applyUpdates(order, updates)
		if cancel {
			if err := s.emitCanceled(ctx, tx, order, now, "expired", payloads.SourceJob, nil); err != nil {
				return err
			}
		}
		released = true
		return nil
	})
	if err != nil {
		return false, asDomain(err, "release stale order")
	}
	return released, nil
}

// settle stages the move to PAID. An order whose stock was already handed
// back takes it again; when the catalog can no longer cover it the order is
// still paid and an oversold event goes out next to order_paid.
func (s *service) settle(ctx context.Context, tx *gorm.DB, order *models.Order, updates map[string]any, now time.Time, source string, actor *outbox.ActorRef) (func() error, error) {
	updates["status"] = enums.OrderStatusPaid
	updates["paid_at"] = now

	var shortage error
	if order.StockReleased {
		err := s.reholdStock(ctx, tx, order)
		switch {
		case err == nil:
			updates["stock_released"] = false
		case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
			shortage = err
			s.warn(ctx, order.ID, "order paid after its stock was released and resold")
		default:
			return nil, err
		}
	}

	return func() error {
		if err := s.emitPaid(ctx, tx, order, now, source, actor); err != nil {
			return err
		}
		if shortage != nil {
			return s.emitOversold(ctx, tx, order, now, source, shortage)
		}
		return nil
	}, nil
}

// reholdStock reserves the order's products again inside a savepoint so a
// shortage leaves the surrounding transaction usable.
func (s *service) reholdStock(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	lines := orderStockLines(order)
	if len(lines) == 0 {
		return nil
	}
	return tx.Transaction(func(savepoint *gorm.DB) error {
		return s.ledger.Reserve(ctx, savepoint, lines)
	})
}

func (s *service) releaseStock(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	lines := orderStockLines(order)
	if len(lines) == 0 {
		return nil
	}
	return s.ledger.Release(ctx, tx, lines)
}

func orderStockLines(order *models.Order) []inventory.Line {
	var lines []inventory.Line
	for _, item := range order.Items {
		if item.ItemType.HasStock() && item.ProductID != nil {
			lines = append(lines, inventory.Line{ProductID: *item.ProductID, Quantity: item.Quantity})
		}
	}
	return lines
}

func (s *service) warn(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), msg)
}

// applyUpdates mirrors a column update onto the loaded model.
func applyUpdates(order *models.Order, updates map[string]any) {
	for column, value := range updates {
		switch column {
		case "status":
			order.Status = value.(enums.OrderStatus)
		case "provider_payment_id":
			id := value.(string)
			order.ProviderPaymentID = &id
		case "provider_payment_status":
			status := value.(string)
			order.ProviderPaymentStatus = &status
		case "payment_method":
			order.PaymentMethod = value.(enums.PaymentMethod)
		case "stock_released":
			order.StockReleased = value.(bool)
		case "paid_at":
			at := value.(time.Time)
			order.PaidAt = &at
		case "canceled_at":
			if value == nil {
				order.CanceledAt = nil
				continue
			}
			at := value.(time.Time)
			order.CanceledAt = &at
		}
	}
}

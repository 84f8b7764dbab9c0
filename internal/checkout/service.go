package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type orderService interface {
	Create(ctx context.Context, input orders.CreateInput) (*models.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type customerResolver interface {
	Resolve(ctx context.Context, user *models.User, buyer types.Buyer) (string, error)
	Forget(ctx context.Context, user *models.User, customerID string) error
}

type paymentInitiator interface {
	Initiate(ctx context.Context, input payments.InitiateInput) (*payments.Instructions, error)
}

type cartClearer interface {
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Service runs checkout and payment retries.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Result, error)
	RetryPayment(ctx context.Context, input RetryInput) (*payments.Instructions, error)
}

// CreateOrderInput is a checkout request. Card is required only for
// CREDIT_CARD.
type CreateOrderInput struct {
	orders.CreateInput
	Card *payments.CardDetails
}

// RetryInput re-initiates payment for an existing order.
type RetryInput struct {
	UserID        uuid.UUID
	OrderID       uuid.UUID
	PaymentMethod enums.PaymentMethod
	Card          *payments.CardDetails
}

// Result is the order plus the instructions the buyer needs to pay it.
type Result struct {
	Order   orders.OrderDTO        `json:"order"`
	Payment *payments.Instructions `json:"payment"`
}

// ServiceParams groups checkout dependencies.
type ServiceParams struct {
	Orders    orderService
	Users     userLoader
	Customers customerResolver
	Payments  paymentInitiator
	Cart      cartClearer
	Logger    *logger.Logger
}

type service struct {
	orders    orderService
	users     userLoader
	customers customerResolver
	payments  paymentInitiator
	cart      cartClearer
	logg      *logger.Logger
}

// NewService builds the checkout orchestration service.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer resolver required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment initiator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		orders:    params.Orders,
		users:     params.Users,
		customers: params.Customers,
		payments:  params.Payments,
		cart:      params.Cart,
		logg:      params.Logger,
	}, nil
}

// CreateOrder persists the order with its stock reservation, then resolves the
// provider customer and submits the payment. A provider failure after the
// order exists leaves it PENDING; the error carries the order id so the buyer
// can retry payment.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Result, error) {
	details, err := payments.DetailsFor(input.PaymentMethod, input.Card)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Create(ctx, input.CreateInput)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, user.ID.String()), order.ID.String())

	if s.cart != nil {
		if err := s.cart.Clear(ctx, user.ID); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "cart not cleared after checkout")
		}
	}

	instructions, err := s.pay(ctx, user, order, details, false)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "order created but payment not initiated")
		return nil, withOrderID(err, order.ID)
	}

	return &Result{Order: orders.ToDTO(s.refresh(ctx, order)), Payment: instructions}, nil
}

// RetryPayment submits a new provider payment for a PENDING or CANCELED order
// that still holds its stock. Stock is never touched here.
func (s *service) RetryPayment(ctx context.Context, input RetryInput) (*payments.Instructions, error) {
	details, err := payments.DetailsFor(input.PaymentMethod, input.Card)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.Get(ctx, input.UserID, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := retryable(order); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	instructions, err := s.pay(ctx, user, order, details, true)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "payment retried")
	return instructions, nil
}

// pay resolves the buyer's provider customer and submits the payment. A
// customer the provider rejects is unlinked and resolved again, once.
func (s *service) pay(ctx context.Context, user *models.User, order *models.Order, details payments.MethodDetails, retry bool) (*payments.Instructions, error) {
	input := payments.InitiateInput{Order: order, Details: details, Retry: retry}
	for attempt := 0; ; attempt++ {
		customerID, err := s.customers.Resolve(ctx, user, order.Buyer())
		if err != nil {
			return nil, err
		}
		input.CustomerID = customerID
		instructions, err := s.payments.Initiate(ctx, input)
		if err == nil || attempt > 0 || !asaas.IsStaleCustomer(err) {
			return instructions, err
		}

		s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"provider_customer_id": customerID,
		}), "provider rejected customer, resolving again")
		if err := s.customers.Forget(ctx, user, customerID); err != nil {
			return nil, err
		}
	}
}

func (s *service) refresh(ctx context.Context, order *models.Order) *models.Order {
	latest, err := s.orders.Find(ctx, order.ID)
	if err != nil {
		return order
	}
	return latest
}

func retryable(order *models.Order) error {
	switch order.Status {
	case enums.OrderStatusPaid:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid").WithDetails(map[string]any{
			"status": order.Status,
		})
	case enums.OrderStatusPending, enums.OrderStatusCanceled:
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be paid").WithDetails(map[string]any{
			"status": order.Status,
		})
	}
	if order.StockReleased {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order stock was released; place a new order").WithDetails(map[string]any{
			"status":         order.Status,
			"stock_released": true,
		})
	}
	return nil
}

// withOrderID adds the order id to a typed error's details so the client can
// call the retry endpoint.
func withOrderID(err error, orderID uuid.UUID) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "initiate payment").WithDetails(map[string]any{
			"order_id": orderID,
		})
	}
	details := map[string]any{"order_id": orderID}
	switch existing := typed.Details().(type) {
	case map[string]any:
		for k, v := range existing {
			details[k] = v
		}
	case nil:
	default:
		details["cause"] = existing
	}
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
}

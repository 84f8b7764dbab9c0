package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actor *outbox.ActorRef, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data:          data,
		Version:       1,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	actor := &outbox.ActorRef{UserID: order.UserID, Role: enums.UserRoleCustomer.String()}
	return s.emit(ctx, tx, enums.EventOrderCreated, order, actor, payloads.OrderCreatedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Total:         order.Total,
		PaymentMethod: order.PaymentMethod,
		BuyerName:     order.BuyerName,
		BuyerEmail:    order.BuyerEmail,
		ItemCount:     len(order.Items),
	})
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, order *models.Order, paidAt time.Time, source string, actor *outbox.ActorRef) error {
	data := payloads.OrderPaidEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Total:      order.Total,
		BuyerName:  order.BuyerName,
		BuyerEmail: order.BuyerEmail,
		PaidAt:     paidAt,
		Source:     source,
	}
	if order.ProviderPaymentID != nil {
		data.ProviderPaymentID = *order.ProviderPaymentID
	}
	return s.emit(ctx, tx, enums.EventOrderPaid, order, actor, data)
}

func (s *service) emitOversold(ctx context.Context, tx *gorm.DB, order *models.Order, paidAt time.Time, source string, shortage error) error {
	data := payloads.OrderPaidOversoldEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Total:      order.Total,
		BuyerEmail: order.BuyerEmail,
		PaidAt:     paidAt,
		Reason:     shortage.Error(),
		Source:     source,
	}
	if order.ProviderPaymentID != nil {
		data.ProviderPaymentID = *order.ProviderPaymentID
	}
	for _, line := range orderStockLines(order) {
		data.Lines = append(data.Lines, payloads.StockLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return s.emit(ctx, tx, enums.EventOrderPaidOversold, order, nil, data)
}

func (s *service) emitCanceled(ctx context.Context, tx *gorm.DB, order *models.Order, canceledAt time.Time, reason, source string, actor *outbox.ActorRef) error {
	return s.emit(ctx, tx, enums.EventOrderCanceled, order, actor, payloads.OrderCanceledEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		BuyerName:     order.BuyerName,
		BuyerEmail:    order.BuyerEmail,
		CanceledAt:    canceledAt,
		StockReleased: order.StockReleased,
		Reason:        reason,
		Source:        source,
	})
}

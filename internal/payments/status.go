package payments

import (
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Provider webhook event names that move an order.
const (
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentReceived  = "PAYMENT_RECEIVED"
	EventPaymentOverdue   = "PAYMENT_OVERDUE"
	EventPaymentDeleted   = "PAYMENT_DELETED"
)

var eventTargets = map[string]enums.OrderStatus{
	EventPaymentConfirmed: enums.OrderStatusPaid,
	EventPaymentReceived:  enums.OrderStatusPaid,
	EventPaymentOverdue:   enums.OrderStatusCanceled,
	EventPaymentDeleted:   enums.OrderStatusCanceled,
}

var statusTargets = map[string]enums.OrderStatus{
	asaas.PaymentStatusConfirmed:      enums.OrderStatusPaid,
	asaas.PaymentStatusReceived:       enums.OrderStatusPaid,
	asaas.PaymentStatusReceivedInCash: enums.OrderStatusPaid,
	asaas.PaymentStatusOverdue:        enums.OrderStatusCanceled,
}

// EventTarget maps a webhook event name to the order status it implies. Nil
// means the event is accepted without a status change.
func EventTarget(event string) *enums.OrderStatus {
	target, ok := eventTargets[strings.ToUpper(strings.TrimSpace(event))]
	if !ok {
		return nil
	}
	return &target
}

// PaymentTarget maps a fetched provider payment to the order status it implies.
func PaymentTarget(payment *asaas.Payment) *enums.OrderStatus {
	if payment == nil {
		return nil
	}
	if payment.Deleted {
		target := enums.OrderStatusCanceled
		return &target
	}
	target, ok := statusTargets[strings.ToUpper(payment.Status)]
	if !ok {
		return nil
	}
	return &target
}

// IsSettled reports whether a provider status means the money is secured.
func IsSettled(status string) bool {
	target, ok := statusTargets[strings.ToUpper(status)]
	return ok && target == enums.OrderStatusPaid
}

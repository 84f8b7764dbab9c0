package payments

import (
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestEventTarget(t *testing.T) {
	cases := map[string]*enums.OrderStatus{
		"PAYMENT_CONFIRMED":          statusPtr(enums.OrderStatusPaid),
		"PAYMENT_RECEIVED":           statusPtr(enums.OrderStatusPaid),
		"payment_overdue":            statusPtr(enums.OrderStatusCanceled),
		"PAYMENT_DELETED":            statusPtr(enums.OrderStatusCanceled),
		"PAYMENT_CREATED":            nil,
		"PAYMENT_REFUND_IN_PROGRESS": nil,
	}
	for event, want := range cases {
		got := EventTarget(event)
		if (got == nil) != (want == nil) || (got != nil && *got != *want) {
			t.Fatalf("%s: expected %v, got %v", event, want, got)
		}
	}
}

func TestPaymentTarget(t *testing.T) {
	if got := PaymentTarget(&asaas.Payment{Status: asaas.PaymentStatusReceivedInCash}); got == nil || *got != enums.OrderStatusPaid {
		t.Fatalf("expected PAID, got %v", got)
	}
	if got := PaymentTarget(&asaas.Payment{Status: asaas.PaymentStatusPending, Deleted: true}); got == nil || *got != enums.OrderStatusCanceled {
		t.Fatalf("expected CANCELED for deleted payment, got %v", got)
	}
	if got := PaymentTarget(&asaas.Payment{Status: asaas.PaymentStatusAwaitingRiskReview}); got != nil {
		t.Fatalf("expected no target, got %v", *got)
	}
}

func statusPtr(s enums.OrderStatus) *enums.OrderStatus { return &s }

package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Status change sources carried on order events.
const (
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
	SourceCheckout  = "checkout"
	SourceAdmin     = "admin"
	SourceBuyer     = "buyer"
	SourceJob       = "job"
)

// OrderCreatedEvent is emitted with the order insert.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	BuyerName     string              `json:"buyer_name"`
	BuyerEmail    string              `json:"buyer_email"`
	ItemCount     int                 `json:"item_count"`
}

// OrderPaymentInitiatedEvent records a provider payment bound to an order.
type OrderPaymentInitiatedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	ProviderPaymentID string              `json:"provider_payment_id"`
	ProviderStatus    string              `json:"provider_status"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	Retry             bool                `json:"retry"`
}

// OrderPaidEvent is emitted once per order on the transition to PAID.
type OrderPaidEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	UserID            uuid.UUID       `json:"user_id"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
	Total             decimal.Decimal `json:"total"`
	BuyerName         string          `json:"buyer_name"`
	BuyerEmail        string          `json:"buyer_email"`
	PaidAt            time.Time       `json:"paid_at"`
	Source            string          `json:"source"`
}

// OrderPaidOversoldEvent flags a PAID order whose stock had already been
// returned and could not be taken again. Operators refund or restock by hand.
type OrderPaidOversoldEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	UserID            uuid.UUID       `json:"user_id"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
	Total             decimal.Decimal `json:"total"`
	BuyerEmail        string          `json:"buyer_email"`
	PaidAt            time.Time       `json:"paid_at"`
	Lines             []StockLine     `json:"lines"`
	Reason            string          `json:"reason"`
	Source            string          `json:"source"`
}

// StockLine is one product quantity an order needed.
type StockLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// OrderCanceledEvent is emitted on every transition to CANCELED.
type OrderCanceledEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	UserID        uuid.UUID `json:"user_id"`
	BuyerName     string    `json:"buyer_name"`
	BuyerEmail    string    `json:"buyer_email"`
	CanceledAt    time.Time `json:"canceled_at"`
	StockReleased bool      `json:"stock_released"`
	Reason        string    `json:"reason,omitempty"`
	Source        string    `json:"source"`
}

// SubscriptionUpdatedEvent mirrors a provider subscription status change.
type SubscriptionUpdatedEvent struct {
	SubscriptionID         uuid.UUID  `json:"subscription_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	UserID                 uuid.UUID  `json:"user_id"`
	Status                 string     `json:"status"`
	NextDueDate            *time.Time `json:"next_due_date,omitempty"`
}

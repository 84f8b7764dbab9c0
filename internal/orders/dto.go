package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// LineInput is one cart line submitted at checkout. UnitPrice is what the
// client believes the price is; the catalog price always wins.
type LineInput struct {
	ItemID    uuid.UUID
	ItemType  enums.ItemType
	Quantity  int
	UnitPrice *decimal.Decimal
}

// CreateInput carries everything needed to persist a pending order.
type CreateInput struct {
	UserID          uuid.UUID
	Lines           []LineInput
	Total           decimal.Decimal
	PaymentMethod   enums.PaymentMethod
	Buyer           types.Buyer
	ShippingAddress *types.ShippingAddress
}

// PriceMismatch is disclosed when the client's price no longer matches the catalog.
type PriceMismatch struct {
	ItemID        uuid.UUID `json:"item_id"`
	ItemType      string    `json:"item_type"`
	ExpectedPrice string    `json:"expected_unit_price"`
	ReceivedPrice string    `json:"received_unit_price"`
}

// OrderItemDTO is the API shape of an order line.
type OrderItemDTO struct {
	ID        uuid.UUID      `json:"id"`
	ItemID    uuid.UUID      `json:"item_id"`
	ItemType  enums.ItemType `json:"item_type"`
	Name      string         `json:"name"`
	Quantity  int            `json:"quantity"`
	UnitPrice string         `json:"unit_price"`
	LineTotal string         `json:"line_total"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID                    uuid.UUID              `json:"id"`
	Status                enums.OrderStatus      `json:"status"`
	Total                 string                 `json:"total"`
	PaymentMethod         enums.PaymentMethod    `json:"payment_method"`
	ProviderPaymentID     *string                `json:"provider_payment_id,omitempty"`
	ProviderPaymentStatus *string                `json:"provider_payment_status,omitempty"`
	Buyer                 types.Buyer            `json:"buyer"`
	ShippingAddress       *types.ShippingAddress `json:"shipping_address,omitempty"`
	StockReleased         bool                   `json:"stock_released"`
	PaidAt                *time.Time             `json:"paid_at,omitempty"`
	CanceledAt            *time.Time             `json:"canceled_at,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	Items                 []OrderItemDTO         `json:"items"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ToDTO maps the persisted order into its API shape.
func ToDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                    order.ID,
		Status:                order.Status,
		Total:                 order.Total.StringFixed(2),
		PaymentMethod:         order.PaymentMethod,
		ProviderPaymentID:     order.ProviderPaymentID,
		ProviderPaymentStatus: order.ProviderPaymentStatus,
		Buyer:                 order.Buyer(),
		ShippingAddress:       order.ShippingAddress,
		StockReleased:         order.StockReleased,
		PaidAt:                order.PaidAt,
		CanceledAt:            order.CanceledAt,
		CreatedAt:             order.CreatedAt,
		Items:                 make([]OrderItemDTO, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:        item.ID,
			ItemID:    item.ItemID(),
			ItemType:  item.ItemType,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			LineTotal: item.LineTotal().StringFixed(2),
		})
	}
	return dto
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the durable record of a checkout. Items and prices never change
// after creation; status moves only through reconciliation, admin override or
// an explicit cancel.
type Order struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Total                 decimal.Decimal        `gorm:"column:total;type:numeric(12,2);not null"`
	Status                enums.OrderStatus      `gorm:"column:status;type:order_status;not null;default:'PENDING'"`
	PaymentMethod         enums.PaymentMethod    `gorm:"column:payment_method;type:payment_method;not null"`
	ProviderPaymentID     *string                `gorm:"column:provider_payment_id"`
	ProviderPaymentStatus *string                `gorm:"column:provider_payment_status"`
	BuyerName             string                 `gorm:"column:buyer_name;not null"`
	BuyerEmail            string                 `gorm:"column:buyer_email;not null"`
	BuyerTaxID            string                 `gorm:"column:buyer_tax_id;not null"`
	BuyerPhone            *string                `gorm:"column:buyer_phone"`
	ShippingAddress       *types.ShippingAddress `gorm:"column:shipping_address;type:jsonb"`
	StockReleased         bool                   `gorm:"column:stock_released;not null;default:false"`
	PaidAt                *time.Time             `gorm:"column:paid_at"`
	CanceledAt            *time.Time             `gorm:"column:canceled_at"`
	Items                 []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// Buyer rebuilds the buyer snapshot captured at checkout.
func (o Order) Buyer() types.Buyer {
	buyer := types.Buyer{
		Name:  o.BuyerName,
		Email: o.BuyerEmail,
		TaxID: o.BuyerTaxID,
	}
	if o.BuyerPhone != nil {
		buyer.Phone = *o.BuyerPhone
	}
	return buyer
}

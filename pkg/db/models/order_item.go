package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderItem captures the immutable snapshot of a purchased line. Exactly one of
// ProductID or CourseID is set.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID *uuid.UUID      `gorm:"column:product_id;type:uuid"`
	CourseID  *uuid.UUID      `gorm:"column:course_id;type:uuid"`
	ItemType  enums.ItemType  `gorm:"column:item_type;type:item_type;not null"`
	Name      string          `gorm:"column:name;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// ItemID returns whichever catalog reference the line carries.
func (i OrderItem) ItemID() uuid.UUID {
	if i.ProductID != nil {
		return *i.ProductID
	}
	if i.CourseID != nil {
		return *i.CourseID
	}
	return uuid.Nil
}

// LineTotal is quantity times the snapshotted unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Plan is a catalog subscription offer.
type Plan struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string                  `gorm:"column:name;not null"`
	Description *string                 `gorm:"column:description"`
	Value       decimal.Decimal         `gorm:"column:value;type:numeric(12,2);not null"`
	Cycle       enums.SubscriptionCycle `gorm:"column:cycle;not null"`
	IsActive    bool                    `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

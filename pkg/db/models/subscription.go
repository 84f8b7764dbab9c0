package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Subscription mirrors a provider subscription. Reconciliation only touches
// Status and NextDueDate.
type Subscription struct {
	ID                     uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                 uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	ProviderSubscriptionID string                  `gorm:"column:provider_subscription_id;not null;unique"`
	Status                 string                  `gorm:"column:status;not null"`
	BillingType            enums.PaymentMethod     `gorm:"column:billing_type;type:payment_method;not null"`
	Value                  decimal.Decimal         `gorm:"column:value;type:numeric(12,2);not null"`
	Cycle                  enums.SubscriptionCycle `gorm:"column:cycle;not null"`
	NextDueDate            *time.Time              `gorm:"column:next_due_date;type:date"`
	PlanID                 *uuid.UUID              `gorm:"column:plan_id;type:uuid"`
	PlanName               *string                 `gorm:"column:plan_name"`
	PlanDescription        *string                 `gorm:"column:plan_description"`
	CreatedAt              time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

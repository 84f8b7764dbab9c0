package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// User represents the canonical identity entity. ProviderCustomerID is an
// advisory cache of the payment provider customer.
type User struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string         `gorm:"type:text;not null;uniqueIndex"`
	Name               string         `gorm:"column:name;not null"`
	TaxID              *string        `gorm:"column:tax_id"`
	Phone              *string        `gorm:"column:phone"`
	Role               enums.UserRole `gorm:"column:role;type:text;not null;default:'customer'"`
	ProviderCustomerID *string        `gorm:"column:provider_customer_id;uniqueIndex"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

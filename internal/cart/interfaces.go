package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository defines the persistence surface required by the cart service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	ReplaceForUser(ctx context.Context, userID uuid.UUID, items []models.CartItem) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindReconcileCandidates(ctx context.Context, createdBefore, createdAfter time.Time, limit int) ([]models.Order, error)
	FindStockHolders(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

// ListParams are the cursor inputs for a user's order history.
type ListParams struct {
	Limit  int
	Cursor *pagination.Cursor
	Status *enums.OrderStatus
}

package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Item is the priced view of a product or course used at checkout.
type Item struct {
	ID       uuid.UUID
	Type     enums.ItemType
	Name     string
	Price    decimal.Decimal
	IsActive bool
}

// Repository reads catalog entries. Catalog CRUD lives elsewhere.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Items(ctx context.Context, refs []Ref) (map[Ref]Item, error)
	PlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Items loads every referenced product and course keyed by (type, id).
func (r *repository) Items(ctx context.Context, refs []Ref) (map[Ref]Item, error) {
	var productIDs, courseIDs []uuid.UUID
	for _, ref := range refs {
		switch ref.Type {
		case enums.ItemTypeProduct:
			productIDs = append(productIDs, ref.ID)
		case enums.ItemTypeCourse:
			courseIDs = append(courseIDs, ref.ID)
		}
	}

	out := make(map[Ref]Item, len(refs))
	if len(productIDs) > 0 {
		var products []models.Product
		if err := r.db.WithContext(ctx).Where("id IN ?", productIDs).Find(&products).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
		}
		for _, p := range products {
			out[Ref{Type: enums.ItemTypeProduct, ID: p.ID}] = Item{
				ID:       p.ID,
				Type:     enums.ItemTypeProduct,
				Name:     p.Name,
				Price:    p.Price,
				IsActive: p.IsActive,
			}
		}
	}
	if len(courseIDs) > 0 {
		var courses []models.Course
		if err := r.db.WithContext(ctx).Where("id IN ?", courseIDs).Find(&courses).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load courses")
		}
		for _, c := range courses {
			out[Ref{Type: enums.ItemTypeCourse, ID: c.ID}] = Item{
				ID:       c.ID,
				Type:     enums.ItemTypeCourse,
				Name:     c.Title,
				Price:    c.Price,
				IsActive: c.IsActive,
			}
		}
	}
	return out, nil
}

// PlanByID loads an active subscription plan.
func (r *repository) PlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not active")
	}
	return &plan, nil
}

// Ref identifies a catalog entry.
type Ref struct {
	Type enums.ItemType
	ID   uuid.UUID
}

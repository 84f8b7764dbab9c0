package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return &user, nil
}

// LinkProviderCustomer caches the provider customer id on the user. Any other
// user still pointing at the same id loses the link so the mapping stays one
// to one.
func (r *Repository) LinkProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	if userID == uuid.Nil || customerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and customer id are required")
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("provider_customer_id = ? AND id <> ?", customerID, userID).
			UpdateColumn("provider_customer_id", nil).Error; err != nil {
			return err
		}
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("provider_customer_id", customerID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link provider customer")
	}
	return nil
}

// ClearProviderCustomer drops a stale cached id, only if it still matches.
func (r *Repository) ClearProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND provider_customer_id = ?", userID, customerID).
		UpdateColumn("provider_customer_id", nil).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear provider customer")
	}
	return nil
}

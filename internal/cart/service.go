package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the server-held cart.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) ([]Line, error)
	Replace(ctx context.Context, userID uuid.UUID, lines []Line) ([]Line, error)
	Merge(ctx context.Context, userID uuid.UUID, client []Line) ([]Line, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	tx   txRunner
	repo Repository
	logg *logger.Logger
}

// NewService builds the cart service.
func NewService(tx txRunner, repo Repository, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &service{tx: tx, repo: repo, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return toLines(rows), nil
}

// Replace overwrites the server cart. Duplicate lines in the input collapse
// into one.
func (s *service) Replace(ctx context.Context, userID uuid.UUID, lines []Line) ([]Line, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	merged := Merge(nil, lines)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReplaceForUser(ctx, userID, toRows(merged))
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace cart")
	}
	return merged, nil
}

// Merge reconciles the anonymous client cart with the stored one and stores
// the result as the new server cart.
func (s *service) Merge(ctx context.Context, userID uuid.UUID, client []Line) ([]Line, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateLines(client); err != nil {
		return nil, err
	}

	var merged []Line
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		merged = Merge(toLines(rows), client)
		return repo.ReplaceForUser(ctx, userID, toRows(merged))
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge cart")
	}

	if s.logg != nil {
		logCtx := s.logg.WithUserID(ctx, userID.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"client_lines": len(client),
			"merged_lines": len(merged),
		}), "cart merged")
	}
	return merged, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

func validateLines(lines []Line) error {
	for _, line := range lines {
		if line.ItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
		}
		if !line.ItemType.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid item type %q", line.ItemType))
		}
		if line.Quantity <= 0 || line.Quantity > MaxLineQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxLineQuantity))
		}
	}
	return nil
}

func toLines(rows []models.CartItem) []Line {
	out := make([]Line, 0, len(rows))
	for _, row := range rows {
		out = append(out, Line{ItemID: row.ItemID, ItemType: row.ItemType, Quantity: row.Quantity})
	}
	return out
}

func toRows(lines []Line) []models.CartItem {
	rows := make([]models.CartItem, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, models.CartItem{
			ID:       uuid.New(),
			ItemType: line.ItemType,
			ItemID:   line.ItemID,
			Quantity: line.Quantity,
		})
	}
	return rows
}

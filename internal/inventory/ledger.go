package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Line is a stock movement request for one product.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// ShortageDetail is disclosed to clients when a reservation cannot be met.
type ShortageDetail struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name,omitempty"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

type stockRow struct {
	ID    uuid.UUID
	Name  string
	Stock int
}

// Ledger moves products.stock. Every method runs against the caller's
// transaction; it never opens one itself.
type Ledger struct{}

// NewLedger returns the stock ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve decrements stock for every line or fails without touching any row.
// Rows are locked in id order so concurrent reservations cannot deadlock, and
// each decrement is conditional so stock never goes negative even without
// row locks.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	rows, err := l.lockRows(ctx, tx, merged)
	if err != nil {
		return err
	}

	for _, line := range merged {
		row, ok := rows[line.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{
				"item_id": line.ProductID,
			})
		}
		if row.Stock < line.Quantity {
			return insufficientStock(row, line.Quantity)
		}
	}

	for _, line := range merged {
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND stock >= ?", line.ProductID, line.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", line.Quantity))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve stock")
		}
		if res.RowsAffected == 0 {
			available, err := l.Available(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			row := rows[line.ProductID]
			row.Stock = available
			return insufficientStock(row, line.Quantity)
		}
	}
	return nil
}

// Release increments stock back for every line. Unknown products are skipped
// since a deleted catalog entry has nothing to restock.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return err
	}
	for _, line := range merged {
		if err := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", line.ProductID).
			UpdateColumn("stock", gorm.Expr("stock + ?", line.Quantity)).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release stock")
		}
	}
	return nil
}

// Available reads the current stock of a product.
func (l *Ledger) Available(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	var product models.Product
	err := tx.WithContext(ctx).Select("id", "stock").First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read stock")
	}
	return product.Stock, nil
}

func (l *Ledger) lockRows(ctx context.Context, tx *gorm.DB, lines []Line) (map[uuid.UUID]stockRow, error) {
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	var rows []stockRow
	err := tx.WithContext(ctx).
		Model(&models.Product{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "name", "stock").
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock products")
	}

	out := make(map[uuid.UUID]stockRow, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// mergeLines folds duplicate products together and sorts by id.
func mergeLines(lines []Line) ([]Line, error) {
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive for product %s", line.ProductID))
		}
		totals[line.ProductID] += line.Quantity
	}

	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID.String() < merged[j].ProductID.String()
	})
	return merged, nil
}

func insufficientStock(row stockRow, requested int) error {
	available := row.Stock
	if available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", row.Name)).WithDetails(ShortageDetail{
		ItemID:    row.ID,
		Name:      row.Name,
		Requested: requested,
		Available: available,
	})
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const maxLineQuantity = 9999

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
	Release(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Order, error)
	List(ctx context.Context, userID uuid.UUID, input ListInput) (*OrderList, error)
	RecordPayment(ctx context.Context, record PaymentRecord) (*models.Order, error)
	ApplyProviderUpdate(ctx context.Context, update ProviderUpdate) (*TransitionResult, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, error)
	AdminSetStatus(ctx context.Context, input AdminStatusInput) (*models.Order, error)
	ReconcileCandidates(ctx context.Context, createdBefore, createdAfter time.Time, limit int) ([]models.Order, error)
	ReleaseStale(ctx context.Context, createdBefore time.Time, limit int) (int, error)
}

// ListInput carries raw list query values from the transport layer.
type ListInput struct {
	Limit  int
	Cursor string
	Status *enums.OrderStatus
}

// ServiceParams groups order service dependencies.
type ServiceParams struct {
	Tx      txRunner
	Repo    Repository
	Catalog catalog.Repository
	Ledger  stockLedger
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	tx      txRunner
	repo    Repository
	catalog catalog.Repository
	ledger  stockLedger
	outbox  outbox.Emitter
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Ledger == nil {
		params.Ledger = inventory.NewLedger()
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		catalog: params.Catalog,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		logg:    params.Logger,
		now:     params.Now,
	}, nil
}

// Create prices the lines from the catalog, reserves stock and persists the
// pending order in a single transaction.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	lines, err := validateCreate(input)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items, err := s.catalog.WithTx(tx).Items(ctx, refsFor(lines))
		if err != nil {
			return err
		}
		priced, total, err := priceLines(lines, items)
		if err != nil {
			return err
		}
		if !total.Equal(input.Total.Round(2)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order total does not match current prices").WithDetails(map[string]any{
				"expected_total": total.StringFixed(2),
				"received_total": input.Total.StringFixed(2),
			})
		}

		if stock := stockLines(priced); len(stock) > 0 {
			if err := s.ledger.Reserve(ctx, tx, stock); err != nil {
				return err
			}
		}

		order := buildOrder(input, priced, total)
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := s.emitCreated(ctx, tx, order); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, asDomain(err, "create order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, created.ID.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"total":          created.Total.StringFixed(2),
			"payment_method": created.PaymentMethod,
			"items":          len(created.Items),
		}), "order created")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return order, nil
}

func (s *service) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Order, error) {
	if strings.TrimSpace(providerPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider payment id required")
	}
	order, err := s.repo.FindByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		return nil, notFoundOr(err, "load order by provider payment")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, input ListInput) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	params := ListParams{Limit: input.Limit, Status: input.Status}
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}

	rows, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	page, next := pagination.Trim(rows, input.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	out := &OrderList{Orders: make([]OrderDTO, 0, len(page)), NextCursor: next}
	for i := range page {
		out.Orders = append(out.Orders, ToDTO(&page[i]))
	}
	return out, nil
}

func (s *service) ReconcileCandidates(ctx context.Context, createdBefore, createdAfter time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindReconcileCandidates(ctx, createdBefore, createdAfter, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find reconcile candidates")
	}
	return rows, nil
}

func validateCreate(input CreateInput) ([]LineInput, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if strings.TrimSpace(input.Buyer.Name) == "" || strings.TrimSpace(input.Buyer.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer name and email are required")
	}
	if types.OnlyDigits(input.Buyer.TaxID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer tax id is required")
	}
	if input.Total.IsNegative() || input.Total.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must be positive")
	}

	merged := make([]LineInput, 0, len(input.Lines))
	index := make(map[catalog.Ref]int, len(input.Lines))
	needsShipping := false
	for _, line := range input.Lines {
		if line.ItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
		}
		if !line.ItemType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid item type %q", line.ItemType))
		}
		if line.Quantity <= 0 || line.Quantity > maxLineQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
		}
		if line.ItemType.HasStock() {
			needsShipping = true
		}
		ref := catalog.Ref{Type: line.ItemType, ID: line.ItemID}
		if i, ok := index[ref]; ok {
			merged[i].Quantity += line.Quantity
			if merged[i].Quantity > maxLineQuantity {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
			}
			continue
		}
		index[ref] = len(merged)
		merged = append(merged, line)
	}
	if needsShipping && input.ShippingAddress == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required for physical products")
	}
	return merged, nil
}

type pricedLine struct {
	LineInput
	Name      string
	UnitPrice decimal.Decimal
}

func refsFor(lines []LineInput) []catalog.Ref {
	refs := make([]catalog.Ref, len(lines))
	for i, line := range lines {
		refs[i] = catalog.Ref{Type: line.ItemType, ID: line.ItemID}
	}
	return refs
}

// priceLines snapshots catalog prices. A client price that differs from the
// catalog is rejected with the expected value disclosed.
func priceLines(lines []LineInput, items map[catalog.Ref]catalog.Item) ([]pricedLine, decimal.Decimal, error) {
	total := decimal.Zero
	priced := make([]pricedLine, 0, len(lines))
	var mismatches []PriceMismatch
	for _, line := range lines {
		item, ok := items[catalog.Ref{Type: line.ItemType, ID: line.ItemID}]
		if !ok {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").WithDetails(map[string]any{
				"item_id":   line.ItemID,
				"item_type": line.ItemType,
			})
		}
		if !item.IsActive {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "item is no longer available").WithDetails(map[string]any{
				"item_id": line.ItemID,
			})
		}
		price := item.Price.Round(2)
		if line.UnitPrice != nil && !line.UnitPrice.Round(2).Equal(price) {
			mismatches = append(mismatches, PriceMismatch{
				ItemID:        line.ItemID,
				ItemType:      line.ItemType.String(),
				ExpectedPrice: price.StringFixed(2),
				ReceivedPrice: line.UnitPrice.StringFixed(2),
			})
		}
		priced = append(priced, pricedLine{LineInput: line, Name: item.Name, UnitPrice: price})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if len(mismatches) > 0 {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "item prices changed").WithDetails(map[string]any{
			"price_changes": mismatches,
		})
	}
	return priced, total.Round(2), nil
}

func stockLines(lines []pricedLine) []inventory.Line {
	var out []inventory.Line
	for _, line := range lines {
		if line.ItemType.HasStock() {
			out = append(out, inventory.Line{ProductID: line.ItemID, Quantity: line.Quantity})
		}
	}
	return out
}

func buildOrder(input CreateInput, lines []pricedLine, total decimal.Decimal) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          input.UserID,
		Total:           total,
		Status:          enums.OrderStatusPending,
		PaymentMethod:   input.PaymentMethod,
		BuyerName:       strings.TrimSpace(input.Buyer.Name),
		BuyerEmail:      strings.TrimSpace(input.Buyer.Email),
		BuyerTaxID:      types.OnlyDigits(input.Buyer.TaxID),
		ShippingAddress: input.ShippingAddress,
		Items:           make([]models.OrderItem, 0, len(lines)),
	}
	if phone := types.OnlyDigits(input.Buyer.Phone); phone != "" {
		order.BuyerPhone = &phone
	}
	for _, line := range lines {
		item := models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ItemType:  line.ItemType,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
		id := line.ItemID
		if line.ItemType == enums.ItemTypeProduct {
			item.ProductID = &id
		} else {
			item.CourseID = &id
		}
		order.Items = append(order.Items, item)
	}
	return order
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}

func asDomain(err error, msg string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}

package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type checkoutItemRequest struct {
	ItemID    uuid.UUID        `json:"item_id" validate:"required"`
	ItemType  enums.ItemType   `json:"item_type" validate:"required,oneof=PRODUCT COURSE"`
	Quantity  int              `json:"quantity" validate:"gt=0,lte=9999"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type checkoutRequest struct {
	Items           []checkoutItemRequest  `json:"items" validate:"required,min=1,dive"`
	Total           decimal.Decimal        `json:"total"`
	PaymentMethod   enums.PaymentMethod    `json:"payment_method" validate:"required,oneof=BOLETO PIX CREDIT_CARD"`
	Buyer           types.Buyer            `json:"buyer" validate:"required"`
	ShippingAddress *types.ShippingAddress `json:"shipping_address,omitempty" validate:"omitempty"`
	Card            *cardRequest           `json:"card,omitempty" validate:"omitempty"`
}

// Checkout creates the order, reserves stock and starts the payment.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.CreateOrderInput{
			CreateInput: orders.CreateInput{
				UserID:          userID,
				Lines:           make([]orders.LineInput, 0, len(payload.Items)),
				Total:           payload.Total,
				PaymentMethod:   payload.PaymentMethod,
				Buyer:           payload.Buyer,
				ShippingAddress: payload.ShippingAddress,
			},
			Card: payload.Card.toDetails(r),
		}
		for _, item := range payload.Items {
			input.Lines = append(input.Lines, orders.LineInput{
				ItemID:    item.ItemID,
				ItemType:  item.ItemType,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

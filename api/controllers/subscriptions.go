package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/subscriptions"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type customPlanRequest struct {
	Name        string                  `json:"name" validate:"required,max=120"`
	Description *string                 `json:"description,omitempty"`
	Value       decimal.Decimal         `json:"value"`
	Cycle       enums.SubscriptionCycle `json:"cycle" validate:"required"`
}

type subscriptionCreateRequest struct {
	PlanID        *uuid.UUID          `json:"plan_id,omitempty"`
	Custom        *customPlanRequest  `json:"custom_plan,omitempty" validate:"omitempty"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required,oneof=BOLETO PIX CREDIT_CARD"`
	Buyer         types.Buyer         `json:"buyer" validate:"required"`
	Card          *cardRequest        `json:"card,omitempty" validate:"omitempty"`
}

// SubscriptionCreate starts a recurring provider subscription for the caller.
func SubscriptionCreate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload subscriptionCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := subscriptions.CreateInput{
			UserID:        userID,
			PlanID:        payload.PlanID,
			PaymentMethod: payload.PaymentMethod,
			Card:          payload.Card.toDetails(r),
			Buyer:         payload.Buyer,
		}
		if payload.Custom != nil {
			input.Custom = &subscriptions.CustomPlan{
				Name:        payload.Custom.Name,
				Description: payload.Custom.Description,
				Value:       payload.Custom.Value,
				Cycle:       payload.Custom.Cycle,
			}
		}

		sub, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}

func SubscriptionList(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subs, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subs)
	}
}

func SubscriptionFetch(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Get(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

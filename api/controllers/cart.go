package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type cartRequest struct {
	Items []cart.Line `json:"items" validate:"dive"`
}

type cartResponse struct {
	Items []cart.Line `json:"items"`
}

func CartFetch(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse{Items: lines})
	}
}

// CartReplace overwrites the server cart with the submitted lines.
func CartReplace(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return cartWrite(logg, svc.Replace)
}

// CartMerge folds the anonymous client cart into the server cart and returns
// the merged result, which the client must adopt as its own copy.
func CartMerge(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return cartWrite(logg, svc.Merge)
}

func cartWrite(logg *logger.Logger, apply func(ctx context.Context, userID uuid.UUID, lines []cart.Line) ([]cart.Line, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := apply(r.Context(), userID, payload.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse{Items: lines})
	}
}

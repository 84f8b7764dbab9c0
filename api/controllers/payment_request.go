package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/payments"
)

type cardHolderRequest struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	TaxID             string `json:"tax_id"`
	PostalCode        string `json:"postal_code"`
	AddressNumber     string `json:"address_number"`
	AddressComplement string `json:"address_complement"`
	Phone             string `json:"phone"`
}

// cardRequest is never logged; it only lives for the duration of the request.
type cardRequest struct {
	HolderName  string            `json:"holder_name" validate:"required"`
	Number      string            `json:"number" validate:"required"`
	ExpiryMonth string            `json:"expiry_month" validate:"required,numeric,len=2"`
	ExpiryYear  string            `json:"expiry_year" validate:"required,numeric,len=4"`
	CCV         string            `json:"ccv" validate:"required,numeric,min=3,max=4"`
	Holder      cardHolderRequest `json:"holder"`
}

func (c *cardRequest) toDetails(r *http.Request) *payments.CardDetails {
	if c == nil {
		return nil
	}
	return &payments.CardDetails{
		HolderName:  c.HolderName,
		Number:      c.Number,
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  c.ExpiryYear,
		CCV:         c.CCV,
		Holder: payments.CardHolder{
			Name:              c.Holder.Name,
			Email:             c.Holder.Email,
			TaxID:             c.Holder.TaxID,
			PostalCode:        c.Holder.PostalCode,
			AddressNumber:     c.Holder.AddressNumber,
			AddressComplement: c.Holder.AddressComplement,
			Phone:             c.Holder.Phone,
		},
		RemoteIP: middleware.ClientIP(r),
	}
}

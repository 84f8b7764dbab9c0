package payments

import (
	"sort"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// MethodDetails is the method specific part of a payment request. Only the
// types in this package implement it.
type MethodDetails interface {
	Method() enums.PaymentMethod
	validate() error
}

// PixDetails requests an instant PIX charge.
type PixDetails struct{}

func (PixDetails) Method() enums.PaymentMethod { return enums.PaymentMethodPix }
func (PixDetails) validate() error             { return nil }

// BoletoDetails requests a bank slip.
type BoletoDetails struct{}

func (BoletoDetails) Method() enums.PaymentMethod { return enums.PaymentMethodBoleto }
func (BoletoDetails) validate() error             { return nil }

// CardHolder identifies the card owner for the provider's risk analysis.
// Empty fields fall back to the order's buyer snapshot.
type CardHolder struct {
	Name              string
	Email             string
	TaxID             string
	PostalCode        string
	AddressNumber     string
	AddressComplement string
	Phone             string
}

// CardDetails carries raw card data. It is never logged or persisted.
type CardDetails struct {
	HolderName  string
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CCV         string
	Holder      CardHolder
	RemoteIP    string
}

func (CardDetails) Method() enums.PaymentMethod { return enums.PaymentMethodCreditCard }

func (d CardDetails) validate() error {
	missing := []string{}
	for field, value := range map[string]string{
		"holder_name":  d.HolderName,
		"number":       d.Number,
		"expiry_month": d.ExpiryMonth,
		"expiry_year":  d.ExpiryYear,
		"ccv":          d.CCV,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return pkgerrors.New(pkgerrors.CodeValidation, "card details incomplete").WithDetails(map[string]any{
			"missing": missing,
		})
	}
	return nil
}

// DetailsFor builds the variant for methods that carry no extra data. Card
// payments must supply CardDetails.
func DetailsFor(method enums.PaymentMethod, card *CardDetails) (MethodDetails, error) {
	switch method {
	case enums.PaymentMethodPix:
		return PixDetails{}, nil
	case enums.PaymentMethodBoleto:
		return BoletoDetails{}, nil
	case enums.PaymentMethodCreditCard:
		if card == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "card details required for credit card payments")
		}
		return *card, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
}

// Validate checks the method specific data before any provider call.
func Validate(details MethodDetails) error {
	if details == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment details required")
	}
	return details.validate()
}

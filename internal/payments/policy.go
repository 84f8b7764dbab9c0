package payments

import (
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// DueDatePolicy turns a payment method into a provider due date. Offsets are
// calendar days in the configured timezone.
type DueDatePolicy struct {
	offsets map[enums.PaymentMethod]int
	loc     *time.Location
}

// NewDueDatePolicy reads per-method offsets from configuration.
func NewDueDatePolicy(cfg config.PaymentsConfig) (DueDatePolicy, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return DueDatePolicy{}, fmt.Errorf("load payments timezone: %w", err)
	}
	return DueDatePolicy{
		offsets: map[enums.PaymentMethod]int{
			enums.PaymentMethodBoleto:     cfg.BoletoDueDays,
			enums.PaymentMethodPix:        cfg.PixDueDays,
			enums.PaymentMethodCreditCard: cfg.CreditCardDueDays,
		},
		loc: loc,
	}, nil
}

// Location is the timezone provider dates are interpreted in.
func (p DueDatePolicy) Location() *time.Location {
	if p.loc == nil {
		return time.UTC
	}
	return p.loc
}

// DueDate returns the provider formatted due date for method relative to now.
func (p DueDatePolicy) DueDate(method enums.PaymentMethod, now time.Time) string {
	loc := p.Location()
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return asaas.FormatDate(day.AddDate(0, 0, p.offsets[method]))
}

// BillingType maps a local payment method to the provider billing type.
func BillingType(method enums.PaymentMethod) asaas.BillingType {
	switch method {
	case enums.PaymentMethodBoleto:
		return asaas.BillingBoleto
	case enums.PaymentMethodPix:
		return asaas.BillingPix
	case enums.PaymentMethodCreditCard:
		return asaas.BillingCreditCard
	default:
		return asaas.BillingUndefined
	}
}

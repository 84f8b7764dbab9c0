package asaas

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Money serialises as a JSON number with two decimals, the format Asaas expects.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

// FormatDate renders a due date in the provider's calendar format.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a provider calendar date in the given location.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(dateLayout, value, loc)
}

// BillingType is the provider payment method.
type BillingType string

const (
	BillingBoleto     BillingType = "BOLETO"
	BillingPix        BillingType = "PIX"
	BillingCreditCard BillingType = "CREDIT_CARD"
	BillingUndefined  BillingType = "UNDEFINED"
)

// Payment statuses reported by the provider.
const (
	PaymentStatusPending            = "PENDING"
	PaymentStatusConfirmed          = "CONFIRMED"
	PaymentStatusReceived           = "RECEIVED"
	PaymentStatusReceivedInCash     = "RECEIVED_IN_CASH"
	PaymentStatusOverdue            = "OVERDUE"
	PaymentStatusRefunded           = "REFUNDED"
	PaymentStatusAwaitingRiskReview = "AWAITING_RISK_ANALYSIS"
)

type listResponse[T any] struct {
	Object     string `json:"object"`
	HasMore    bool   `json:"hasMore"`
	TotalCount int    `json:"totalCount"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	Data       []T    `json:"data"`
}

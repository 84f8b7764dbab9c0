package enums

// PaymentMethod is both the checkout option and the Asaas billingType.
type PaymentMethod string

const (
	PaymentMethodBoleto     PaymentMethod = "BOLETO"
	PaymentMethodPix        PaymentMethod = "PIX"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
)

var paymentMethods = []PaymentMethod{PaymentMethodBoleto, PaymentMethodPix, PaymentMethodCreditCard}

func (p PaymentMethod) String() string { return string(p) }
func (p PaymentMethod) IsValid() bool  { return member(paymentMethods, p) }

// SettlesSynchronously reports whether Asaas answers the charge request with
// the final outcome instead of a pending payment.
func (p PaymentMethod) SettlesSynchronously() bool {
	return p == PaymentMethodCreditCard
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse(paymentMethods, "payment method", value)
}

package asaas

import (
	"context"
	"net/http"
	"net/url"
)

// CreditCard is raw card data. Never logged.
type CreditCard struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

// CreditCardHolderInfo identifies the card holder for risk analysis.
type CreditCardHolderInfo struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	CpfCnpj           string `json:"cpfCnpj"`
	PostalCode        string `json:"postalCode"`
	AddressNumber     string `json:"addressNumber"`
	AddressComplement string `json:"addressComplement,omitempty"`
	Phone             string `json:"phone,omitempty"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
}

// PaymentCreateParams is the POST /payments body.
type PaymentCreateParams struct {
	Customer             string                `json:"customer"`
	BillingType          BillingType           `json:"billingType"`
	Value                Money                 `json:"value"`
	DueDate              string                `json:"dueDate"`
	Description          string                `json:"description,omitempty"`
	ExternalReference    string                `json:"externalReference,omitempty"`
	CreditCard           *CreditCard           `json:"creditCard,omitempty"`
	CreditCardHolderInfo *CreditCardHolderInfo `json:"creditCardHolderInfo,omitempty"`
	RemoteIP             string                `json:"remoteIp,omitempty"`
}

// Payment is the provider payment resource, also embedded in webhooks.
type Payment struct {
	ID                string      `json:"id"`
	Customer          string      `json:"customer"`
	Subscription      string      `json:"subscription,omitempty"`
	BillingType       BillingType `json:"billingType"`
	Status            string      `json:"status"`
	Value             Money       `json:"value"`
	NetValue          *Money      `json:"netValue,omitempty"`
	DueDate           string      `json:"dueDate"`
	Description       string      `json:"description,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
	InvoiceURL        string      `json:"invoiceUrl,omitempty"`
	BankSlipURL       string      `json:"bankSlipUrl,omitempty"`
	ConfirmedDate     string      `json:"confirmedDate,omitempty"`
	PaymentDate       string      `json:"paymentDate,omitempty"`
	Deleted           bool        `json:"deleted"`
}

// PixQRCode is the GET /payments/{id}/pixQrCode response.
type PixQRCode struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

// IdentificationField is the boleto digitable line response.
type IdentificationField struct {
	IdentificationField string `json:"identificationField"`
	NossoNumero         string `json:"nossoNumero"`
	BarCode             string `json:"barCode"`
}

func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payments", nil, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, "get_payment", http.MethodGet, "/payments/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPixQRCode(ctx context.Context, paymentID string) (*PixQRCode, error) {
	var out PixQRCode
	if err := c.do(ctx, "get_pix_qr_code", http.MethodGet, "/payments/"+url.PathEscape(paymentID)+"/pixQrCode", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetIdentificationField(ctx context.Context, paymentID string) (*IdentificationField, error) {
	var out IdentificationField
	if err := c.do(ctx, "get_identification_field", http.MethodGet, "/payments/"+url.PathEscape(paymentID)+"/identificationField", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

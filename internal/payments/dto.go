package payments

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Instructions tell the buyer how to complete a payment. Exactly one of Pix,
// Boleto or Card is set.
type Instructions struct {
	OrderID           uuid.UUID           `json:"order_id"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	ProviderPaymentID string              `json:"provider_payment_id"`
	ProviderStatus    string              `json:"provider_status"`
	DueDate           string              `json:"due_date"`
	InvoiceURL        string              `json:"invoice_url,omitempty"`
	Pix               *PixInstructions    `json:"pix,omitempty"`
	Boleto            *BoletoInstructions `json:"boleto,omitempty"`
	Card              *CardInstructions   `json:"card,omitempty"`
}

type PixInstructions struct {
	Payload      string `json:"payload"`
	EncodedImage string `json:"encoded_image"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

type BoletoInstructions struct {
	URL                 string `json:"url"`
	IdentificationField string `json:"identification_field,omitempty"`
	BarCode             string `json:"bar_code,omitempty"`
}

type CardInstructions struct {
	Status   string `json:"status"`
	Approved bool   `json:"approved"`
}

package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingAddress is the delivery address snapshot stored on an order as jsonb.
type ShippingAddress struct {
	Street     string  `json:"street" validate:"required"`
	Number     string  `json:"number" validate:"required"`
	Complement *string `json:"complement,omitempty"`
	District   string  `json:"district" validate:"required"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required,len=2"`
	PostalCode string  `json:"postal_code" validate:"required,cep"`
	Country    string  `json:"country,omitempty"`
}

// Value marshals the address into JSON.
func (a ShippingAddress) Value() (driver.Value, error) {
	if strings.TrimSpace(a.Street) == "" {
		return nil, fmt.Errorf("address: missing street")
	}
	if strings.TrimSpace(a.City) == "" {
		return nil, fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return nil, fmt.Errorf("address: missing postal_code")
	}

	normalized := a
	if strings.TrimSpace(normalized.Country) == "" {
		normalized.Country = "BR"
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the stored JSON document.
func (a *ShippingAddress) Scan(value any) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}

	var decoded ShippingAddress
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("address: decode %w", err)
	}
	*a = decoded
	return nil
}

// PostalCodeDigits strips formatting from the CEP.
func (a ShippingAddress) PostalCodeDigits() string {
	return OnlyDigits(a.PostalCode)
}

// Buyer is the buyer snapshot captured at checkout.
type Buyer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	TaxID string `json:"tax_id" validate:"required,taxid"`
	Phone string `json:"phone,omitempty"`
}

// OnlyDigits drops every non digit rune, used for CPF/CNPJ and phones.
func OnlyDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package asaas

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Customer is the provider customer resource.
type Customer struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	CpfCnpj           string `json:"cpfCnpj"`
	Phone             string `json:"phone,omitempty"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
	Deleted           bool   `json:"deleted"`
}

// CustomerCreateParams carries buyer details for POST /customers.
type CustomerCreateParams struct {
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	CpfCnpj           string `json:"cpfCnpj"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
	NotificationsOff  bool   `json:"notificationDisabled,omitempty"`
}

// GetCustomer fetches a customer; a 404 matches ErrNotFound.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, "get_customer", http.MethodGet, "/customers/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCustomer registers a new provider customer.
func (c *Client) CreateCustomer(ctx context.Context, params CustomerCreateParams) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customers", nil, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindCustomerByTaxID returns the first non deleted customer with the given
// CPF/CNPJ, or nil when none exist.
func (c *Client) FindCustomerByTaxID(ctx context.Context, taxID string) (*Customer, error) {
	taxID = strings.TrimSpace(taxID)
	if taxID == "" {
		return nil, nil
	}
	query := url.Values{}
	query.Set("cpfCnpj", taxID)

	var out listResponse[Customer]
	if err := c.do(ctx, "search_customer", http.MethodGet, "/customers", query, nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Data {
		if !out.Data[i].Deleted {
			return &out.Data[i], nil
		}
	}
	return nil, nil
}

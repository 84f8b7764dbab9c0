package asaas

import (
	"context"
	"net/http"
	"net/url"
)

// SubscriptionCreateParams is the POST /subscriptions body.
type SubscriptionCreateParams struct {
	Customer             string                `json:"customer"`
	BillingType          BillingType           `json:"billingType"`
	Value                Money                 `json:"value"`
	NextDueDate          string                `json:"nextDueDate"`
	Cycle                string                `json:"cycle"`
	Description          string                `json:"description,omitempty"`
	ExternalReference    string                `json:"externalReference,omitempty"`
	CreditCard           *CreditCard           `json:"creditCard,omitempty"`
	CreditCardHolderInfo *CreditCardHolderInfo `json:"creditCardHolderInfo,omitempty"`
	RemoteIP             string                `json:"remoteIp,omitempty"`
}

// Subscription is the provider subscription resource.
type Subscription struct {
	ID                string      `json:"id"`
	Customer          string      `json:"customer"`
	BillingType       BillingType `json:"billingType"`
	Status            string      `json:"status"`
	Value             Money       `json:"value"`
	Cycle             string      `json:"cycle"`
	NextDueDate       string      `json:"nextDueDate"`
	Description       string      `json:"description,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
	Deleted           bool        `json:"deleted"`
}

func (c *Client) CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*Subscription, error) {
	var out Subscription
	if err := c.do(ctx, "create_subscription", http.MethodPost, "/subscriptions", nil, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out Subscription
	if err := c.do(ctx, "get_subscription", http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	recordAttempts = 3
	recordBackoff  = 100 * time.Millisecond
	recordTimeout  = 5 * time.Second
)

type providerClient interface {
	CreatePayment(ctx context.Context, params asaas.PaymentCreateParams) (*asaas.Payment, error)
	GetPixQRCode(ctx context.Context, paymentID string) (*asaas.PixQRCode, error)
	GetIdentificationField(ctx context.Context, paymentID string) (*asaas.IdentificationField, error)
}

type orderRecorder interface {
	RecordPayment(ctx context.Context, record orders.PaymentRecord) (*models.Order, error)
	ApplyProviderUpdate(ctx context.Context, update orders.ProviderUpdate) (*orders.TransitionResult, error)
}

// Initiator submits a payment for an order and returns what the buyer needs
// to complete it.
type Initiator interface {
	Initiate(ctx context.Context, input InitiateInput) (*Instructions, error)
}

// InitiateInput identifies the order, the provider customer and the method.
type InitiateInput struct {
	Order      *models.Order
	CustomerID string
	Details    MethodDetails
	Retry      bool
}

// ServiceParams groups payment service dependencies.
type ServiceParams struct {
	Provider providerClient
	Orders   orderRecorder
	Config   config.PaymentsConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	provider providerClient
	orders   orderRecorder
	policy   DueDatePolicy
	prefix   string
	logg     *logger.Logger
	now      func() time.Time
	backoff  func() retry.Backoff
}

// NewService builds the payment initiation service.
func NewService(params ServiceParams) (Initiator, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy, err := NewDueDatePolicy(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	prefix := strings.TrimSpace(params.Config.DescriptionPrefix)
	if prefix == "" {
		prefix = "Pedido"
	}
	return &service{
		provider: params.Provider,
		orders:   params.Orders,
		policy:   policy,
		prefix:   prefix,
		logg:     params.Logger,
		now:      params.Now,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(recordAttempts-1, retry.NewExponential(recordBackoff))
		},
	}, nil
}

// Initiate submits the provider payment, then records its id on the order.
// No local lock or transaction is held across the provider call.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*Instructions, error) {
	order := input.Order
	if order == nil || order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if strings.TrimSpace(input.CustomerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider customer required")
	}
	if input.Details == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment details required")
	}
	if err := input.Details.validate(); err != nil {
		return nil, err
	}

	method := input.Details.Method()
	params := asaas.PaymentCreateParams{
		Customer:          input.CustomerID,
		BillingType:       BillingType(method),
		Value:             asaas.NewMoney(order.Total),
		DueDate:           s.policy.DueDate(method, s.now()),
		Description:       Description(s.prefix, order.ID),
		ExternalReference: order.ID.String(),
	}
	if card, ok := input.Details.(CardDetails); ok {
		params.CreditCard, params.CreditCardHolderInfo = CardPayload(card, order.Buyer(), order.ShippingAddress)
		params.RemoteIP = card.RemoteIP
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"payment_method": method,
		"retry":          input.Retry,
	})

	payment, err := s.provider.CreatePayment(ctx, params)
	if err != nil {
		s.logg.Error(logCtx, "provider payment create failed", err)
		return nil, asaas.ToDomainError(err, "create provider payment")
	}
	logCtx = s.logg.WithField(logCtx, "provider_payment_id", payment.ID)

	if err := s.record(ctx, orders.PaymentRecord{
		OrderID:           order.ID,
		ProviderPaymentID: payment.ID,
		ProviderStatus:    payment.Status,
		Method:            method,
		Retry:             input.Retry,
	}); err != nil {
		// the webhook and the reconcile job resolve the order by its
		// back-reference, so the payment still lands on it
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "provider payment accepted but not recorded")
	}

	out := &Instructions{
		OrderID:           order.ID,
		PaymentMethod:     method,
		ProviderPaymentID: payment.ID,
		ProviderStatus:    payment.Status,
		DueDate:           payment.DueDate,
		InvoiceURL:        payment.InvoiceURL,
	}
	if out.DueDate == "" {
		out.DueDate = params.DueDate
	}

	switch method {
	case enums.PaymentMethodPix:
		out.Pix = s.pixInstructions(logCtx, payment)
	case enums.PaymentMethodBoleto:
		out.Boleto = s.boletoInstructions(logCtx, payment)
	}
	if method.SettlesSynchronously() {
		out.Card = &CardInstructions{Status: payment.Status, Approved: IsSettled(payment.Status)}
		if out.Card.Approved {
			s.settle(logCtx, order.ID, payment)
		}
	}

	s.logg.Info(logCtx, "payment initiated")
	return out, nil
}

// record retries transient failures of the follow-up write. A state conflict
// is final. The provider already holds the payment, so the write outlives a
// caller that disconnects.
func (s *service) record(ctx context.Context, rec orders.PaymentRecord) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		_, err := s.orders.RecordPayment(ctx, rec)
		if pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *service) settle(ctx context.Context, orderID uuid.UUID, payment *asaas.Payment) {
	_, err := s.orders.ApplyProviderUpdate(ctx, orders.ProviderUpdate{
		OrderID:           orderID,
		Target:            PaymentTarget(payment),
		ProviderPaymentID: payment.ID,
		ProviderStatus:    payment.Status,
		Source:            payloads.SourceCheckout,
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "card approval not applied; waiting for webhook")
	}
}

func (s *service) pixInstructions(ctx context.Context, payment *asaas.Payment) *PixInstructions {
	qr, err := s.provider.GetPixQRCode(ctx, payment.ID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "pix qr code unavailable")
		return &PixInstructions{}
	}
	return &PixInstructions{
		Payload:      qr.Payload,
		EncodedImage: qr.EncodedImage,
		ExpiresAt:    qr.ExpirationDate,
	}
}

func (s *service) boletoInstructions(ctx context.Context, payment *asaas.Payment) *BoletoInstructions {
	out := &BoletoInstructions{URL: payment.BankSlipURL}
	field, err := s.provider.GetIdentificationField(ctx, payment.ID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "boleto identification field unavailable")
		return out
	}
	out.IdentificationField = field.IdentificationField
	out.BarCode = field.BarCode
	return out
}

// Description embeds the order id so a notification can be traced back even
// without the external reference.
func Description(prefix string, orderID uuid.UUID) string {
	return fmt.Sprintf("%s %s", prefix, orderID)
}

// OrderIDFromDescription recovers the order id written by Description.
func OrderIDFromDescription(description string) (uuid.UUID, bool) {
	for _, field := range strings.Fields(description) {
		if id, err := uuid.Parse(strings.Trim(field, "#:.,()")); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

// CardPayload builds the provider card objects. Holder fields left empty fall
// back to the buyer and the shipping address.
func CardPayload(card CardDetails, buyer types.Buyer, addr *types.ShippingAddress) (*asaas.CreditCard, *asaas.CreditCardHolderInfo) {
	holder := card.Holder
	info := &asaas.CreditCardHolderInfo{
		Name:              firstNonEmpty(holder.Name, card.HolderName, buyer.Name),
		Email:             firstNonEmpty(holder.Email, buyer.Email),
		CpfCnpj:           types.OnlyDigits(firstNonEmpty(holder.TaxID, buyer.TaxID)),
		PostalCode:        types.OnlyDigits(holder.PostalCode),
		AddressNumber:     holder.AddressNumber,
		AddressComplement: holder.AddressComplement,
		MobilePhone:       types.OnlyDigits(firstNonEmpty(holder.Phone, buyer.Phone)),
	}
	if addr != nil {
		if info.PostalCode == "" {
			info.PostalCode = addr.PostalCodeDigits()
		}
		if info.AddressNumber == "" {
			info.AddressNumber = addr.Number
		}
	}
	return &asaas.CreditCard{
		HolderName:  card.HolderName,
		Number:      types.OnlyDigits(card.Number),
		ExpiryMonth: card.ExpiryMonth,
		ExpiryYear:  card.ExpiryYear,
		CCV:         card.CCV,
	}, info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

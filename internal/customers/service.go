package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type providerClient interface {
	GetCustomer(ctx context.Context, id string) (*asaas.Customer, error)
	CreateCustomer(ctx context.Context, params asaas.CustomerCreateParams) (*asaas.Customer, error)
	FindCustomerByTaxID(ctx context.Context, taxID string) (*asaas.Customer, error)
}

type userLinker interface {
	LinkProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error
	ClearProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error
}

// Resolver maps a local user to a provider customer id.
type Resolver interface {
	Resolve(ctx context.Context, user *models.User, buyer types.Buyer) (string, error)
	Forget(ctx context.Context, user *models.User, customerID string) error
}

// ServiceParams groups resolver dependencies.
type ServiceParams struct {
	Provider providerClient
	Users    userLinker
	Cache    *Cache
	Logger   *logger.Logger
}

type service struct {
	provider providerClient
	users    userLinker
	cache    *Cache
	logg     *logger.Logger
}

// NewService builds the customer resolver.
func NewService(params ServiceParams) (Resolver, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider client required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	return &service{
		provider: params.Provider,
		users:    params.Users,
		cache:    params.Cache,
		logg:     params.Logger,
	}, nil
}

// Resolve returns a provider customer id usable for payments and caches it on
// the user. The cached id is advisory: a provider not-found or deleted
// customer falls through to creation.
func (s *service) Resolve(ctx context.Context, user *models.User, buyer types.Buyer) (string, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user required")
	}
	ctx = s.ctxWithUser(ctx, user.ID)

	if cached := cachedCustomerID(user); cached != "" {
		if id, ok := s.cache.Get(user.ID); ok && id == cached {
			return cached, nil
		}
		customer, err := s.provider.GetCustomer(ctx, cached)
		switch {
		case err == nil && customer != nil && !customer.Deleted:
			s.cache.Set(user.ID, customer.ID)
			return customer.ID, nil
		case err == nil, errors.Is(err, asaas.ErrNotFound):
			s.warn(ctx, "cached provider customer is gone, creating a new one", map[string]any{"provider_customer_id": cached})
		default:
			return "", asaas.ToDomainError(err, "failed to load payment customer")
		}
	}

	if strings.TrimSpace(buyer.TaxID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "buyer tax id required")
	}

	created, err := s.provider.CreateCustomer(ctx, createParams(user.ID, buyer))
	if err == nil {
		return s.link(ctx, user, created.ID)
	}
	if !errors.Is(err, asaas.ErrDuplicateTaxID) {
		return "", asaas.ToDomainError(err, "failed to create payment customer")
	}

	existing, searchErr := s.provider.FindCustomerByTaxID(ctx, types.OnlyDigits(buyer.TaxID))
	if searchErr != nil {
		return "", asaas.ToDomainError(searchErr, "failed to search payment customer")
	}
	if existing == nil {
		return "", asaas.ToDomainError(err, "failed to create payment customer")
	}
	s.info(ctx, "recovered provider customer by tax id", map[string]any{"provider_customer_id": existing.ID})
	return s.link(ctx, user, existing.ID)
}

// Forget drops a customer id the provider rejected, both from the cache and
// from the user row, so the next Resolve links a live customer. A newer id
// stored meanwhile is left alone.
func (s *service) Forget(ctx context.Context, user *models.User, customerID string) error {
	if user == nil || user.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user required")
	}
	s.cache.Forget(user.ID)
	if customerID == "" {
		return nil
	}
	ctx = s.ctxWithUser(ctx, user.ID)
	if err := s.users.ClearProviderCustomer(ctx, user.ID, customerID); err != nil {
		return err
	}
	if cachedCustomerID(user) == customerID {
		user.ProviderCustomerID = nil
	}
	s.warn(ctx, "provider rejected customer, link cleared", map[string]any{"provider_customer_id": customerID})
	return nil
}

func (s *service) link(ctx context.Context, user *models.User, customerID string) (string, error) {
	if customerID == "" {
		return "", pkgerrors.New(pkgerrors.CodePaymentProvider, "payment provider returned an empty customer id")
	}
	if cachedCustomerID(user) != customerID {
		if err := s.users.LinkProviderCustomer(ctx, user.ID, customerID); err != nil {
			return "", err
		}
		id := customerID
		user.ProviderCustomerID = &id
	}
	s.cache.Set(user.ID, customerID)
	return customerID, nil
}

func createParams(userID uuid.UUID, buyer types.Buyer) asaas.CustomerCreateParams {
	return asaas.CustomerCreateParams{
		Name:              strings.TrimSpace(buyer.Name),
		Email:             strings.TrimSpace(buyer.Email),
		CpfCnpj:           types.OnlyDigits(buyer.TaxID),
		MobilePhone:       types.OnlyDigits(buyer.Phone),
		ExternalReference: userID.String(),
	}
}

func cachedCustomerID(user *models.User) string {
	if user.ProviderCustomerID == nil {
		return ""
	}
	return strings.TrimSpace(*user.ProviderCustomerID)
}

func (s *service) ctxWithUser(ctx context.Context, userID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithUserID(ctx, userID.String())
}

func (s *service) info(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

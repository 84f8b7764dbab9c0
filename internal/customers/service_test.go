package customers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubProvider struct {
	customers   map[string]*asaas.Customer
	createErr   error
	searchHit   *asaas.Customer
	getErr      error
	getCalls    int
	createCalls int
	searchCalls int
	nextID      int
}

func newStubProvider() *stubProvider {
	return &stubProvider{customers: map[string]*asaas.Customer{}}
}

func (p *stubProvider) GetCustomer(_ context.Context, id string) (*asaas.Customer, error) {
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	customer, ok := p.customers[id]
	if !ok {
		return nil, &asaas.APIError{StatusCode: http.StatusNotFound, Operation: "get_customer"}
	}
	return customer, nil
}

func (p *stubProvider) CreateCustomer(_ context.Context, params asaas.CustomerCreateParams) (*asaas.Customer, error) {
	p.createCalls++
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.nextID++
	customer := &asaas.Customer{ID: "cus_" + string(rune('0'+p.nextID)), Name: params.Name, CpfCnpj: params.CpfCnpj}
	p.customers[customer.ID] = customer
	return customer, nil
}

func (p *stubProvider) FindCustomerByTaxID(_ context.Context, taxID string) (*asaas.Customer, error) {
	p.searchCalls++
	return p.searchHit, nil
}

type stubLinker struct {
	links map[uuid.UUID]string
	calls int
	err   error
}

func (l *stubLinker) LinkProviderCustomer(_ context.Context, userID uuid.UUID, customerID string) error {
	l.calls++
	if l.err != nil {
		return l.err
	}
	if l.links == nil {
		l.links = map[uuid.UUID]string{}
	}
	l.links[userID] = customerID
	return nil
}

func (l *stubLinker) ClearProviderCustomer(_ context.Context, userID uuid.UUID, customerID string) error {
	if l.links[userID] == customerID {
		delete(l.links, userID)
	}
	return nil
}

func newResolver(t *testing.T, provider *stubProvider, linker *stubLinker, cache *Cache) Resolver {
	t.Helper()
	svc, err := NewService(ServiceParams{Provider: provider, Users: linker, Cache: cache})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testBuyer() types.Buyer {
	return types.Buyer{Name: "Maria Souza", Email: "maria@example.com", TaxID: "529.982.247-25", Phone: "(11) 98888-7777"}
}

func TestResolveCreatesAndLinks(t *testing.T) {
	provider := newStubProvider()
	linker := &stubLinker{}
	svc := newResolver(t, provider, linker, nil)
	user := &models.User{ID: uuid.New()}

	id, err := svc.Resolve(context.Background(), user, testBuyer())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if provider.createCalls != 1 {
		t.Fatalf("expected one create, got %d", provider.createCalls)
	}
	if linker.links[user.ID] != id {
		t.Fatalf("expected link %q, got %q", id, linker.links[user.ID])
	}
	if provider.customers[id].CpfCnpj != "52998224725" {
		t.Fatalf("tax id not normalised: %q", provider.customers[id].CpfCnpj)
	}
}

func TestResolveTwiceIsStable(t *testing.T) {
	provider := newStubProvider()
	linker := &stubLinker{}
	svc := newResolver(t, provider, linker, nil)
	user := &models.User{ID: uuid.New()}

	first, err := svc.Resolve(context.Background(), user, testBuyer())
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := svc.Resolve(context.Background(), user, testBuyer())
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable id, got %q then %q", first, second)
	}
	if provider.createCalls != 1 {
		t.Fatalf("expected no second create, got %d creates", provider.createCalls)
	}
	if linker.calls != 1 {
		t.Fatalf("expected a single user write, got %d", linker.calls)
	}
}

func TestResolveUsesVerifiedCache(t *testing.T) {
	provider := newStubProvider()
	linker := &stubLinker{}
	cache, err := NewCache(config.CustomerCacheConfig{Size: 8, TTL: time.Minute})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	svc := newResolver(t, provider, linker, cache)
	user := &models.User{ID: uuid.New()}

	if _, err := svc.Resolve(context.Background(), user, testBuyer()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), user, testBuyer()); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if provider.getCalls != 0 {
		t.Fatalf("expected cache hit to skip provider fetch, got %d gets", provider.getCalls)
	}
}

func TestResolveStaleCachedIDRecreates(t *testing.T) {
	provider := newStubProvider()
	linker := &stubLinker{}
	svc := newResolver(t, provider, linker, nil)
	stale := "cus_deleted"
	user := &models.User{ID: uuid.New(), ProviderCustomerID: &stale}

	id, err := svc.Resolve(context.Background(), user, testBuyer())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id == stale {
		t.Fatalf("expected a fresh id")
	}
	if provider.createCalls != 1 || linker.links[user.ID] != id {
		t.Fatalf("expected recreate and link, creates=%d link=%q", provider.createCalls, linker.links[user.ID])
	}
}

func TestResolveDuplicateTaxIDRecoversBySearch(t *testing.T) {
	provider := newStubProvider()
	provider.createErr = &asaas.APIError{
		StatusCode: http.StatusBadRequest,
		Operation:  "create_customer",
		Errors:     []asaas.ErrorItem{{Code: "invalid_cpfCnpj_duplicated", Description: "CPF já cadastrado"}},
	}
	provider.searchHit = &asaas.Customer{ID: "cus_existing"}
	linker := &stubLinker{}
	svc := newResolver(t, provider, linker, nil)
	user := &models.User{ID: uuid.New()}

	id, err := svc.Resolve(context.Background(), user, testBuyer())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "cus_existing" {
		t.Fatalf("expected search result, got %q", id)
	}
	if linker.links[user.ID] != "cus_existing" {
		t.Fatalf("expected cached id to equal search result, got %q", linker.links[user.ID])
	}
	if user.ProviderCustomerID == nil || *user.ProviderCustomerID != "cus_existing" {
		t.Fatalf("user model not updated")
	}
}

func TestResolveDuplicateWithoutMatchFails(t *testing.T) {
	provider := newStubProvider()
	provider.createErr = &asaas.APIError{StatusCode: http.StatusConflict, Operation: "create_customer"}
	svc := newResolver(t, provider, &stubLinker{}, nil)

	_, err := svc.Resolve(context.Background(), &models.User{ID: uuid.New()}, testBuyer())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if provider.searchCalls != 1 {
		t.Fatalf("expected one search, got %d", provider.searchCalls)
	}
}

func TestResolveOtherFailuresSurface(t *testing.T) {
	provider := newStubProvider()
	provider.createErr = &asaas.APIError{StatusCode: http.StatusBadRequest, Operation: "create_customer", Errors: []asaas.ErrorItem{{Code: "invalid_email"}}}
	svc := newResolver(t, provider, &stubLinker{}, nil)

	_, err := svc.Resolve(context.Background(), &models.User{ID: uuid.New()}, testBuyer())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if provider.searchCalls != 0 {
		t.Fatalf("search must only run on duplicate tax id")
	}

	provider.createErr = nil
	provider.getErr = errors.New("connection reset")
	cached := "cus_1"
	_, err = svc.Resolve(context.Background(), &models.User{ID: uuid.New(), ProviderCustomerID: &cached}, testBuyer())
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCacheExpiry(t *testing.T) {
	cache, err := NewCache(config.CustomerCacheConfig{Size: 2, TTL: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	userID := uuid.New()

	cache.Set(userID, "cus_1")
	if id, ok := cache.Get(userID); !ok || id != "cus_1" {
		t.Fatalf("expected hit")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := cache.Get(userID); ok {
		t.Fatalf("expected expired entry")
	}
}

func TestCacheDisabledWithoutTTL(t *testing.T) {
	cache, err := NewCache(config.CustomerCacheConfig{Size: 2})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	cache.Set(uuid.New(), "cus_1")
	if _, ok := cache.Get(uuid.New()); ok {
		t.Fatalf("disabled cache must never hit")
	}
}

func TestForgetDropsRejectedCustomer(t *testing.T) {
	provider := newStubProvider()
	linker := &stubLinker{}
	cache, err := NewCache(config.CustomerCacheConfig{Size: 8, TTL: time.Minute})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	svc := newResolver(t, provider, linker, cache)
	user := &models.User{ID: uuid.New()}
	ctx := context.Background()

	first, err := svc.Resolve(ctx, user, testBuyer())
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	delete(provider.customers, first)

	if err := svc.Forget(ctx, user, first); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if user.ProviderCustomerID != nil {
		t.Fatalf("expected user link cleared")
	}
	if _, ok := linker.links[user.ID]; ok {
		t.Fatalf("expected stored link cleared")
	}
	if _, ok := cache.Get(user.ID); ok {
		t.Fatalf("expected cache entry dropped")
	}

	second, err := svc.Resolve(ctx, user, testBuyer())
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second == first {
		t.Fatalf("expected a new customer, got %q again", second)
	}
	if _, ok := provider.customers[second]; !ok {
		t.Fatalf("resolved customer %q does not exist at the provider", second)
	}
	if provider.createCalls != 2 {
		t.Fatalf("expected two creates, got %d", provider.createCalls)
	}
}

func TestForgetKeepsNewerLink(t *testing.T) {
	linker := &stubLinker{links: map[uuid.UUID]string{}}
	svc := newResolver(t, newStubProvider(), linker, nil)
	current := "cus_2"
	user := &models.User{ID: uuid.New(), ProviderCustomerID: &current}
	linker.links[user.ID] = current

	if err := svc.Forget(context.Background(), user, "cus_1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if linker.links[user.ID] != "cus_2" || user.ProviderCustomerID == nil {
		t.Fatalf("a newer link must survive forgetting an older id")
	}
}

package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/subscriptions"
	asaaswebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type stubDLQStore struct{}

func (stubDLQStore) List(context.Context, outbox.DLQFilter) ([]models.OutboxDLQ, error) {
	return nil, nil
}

func (stubDLQStore) Replay(context.Context, uuid.UUID) error { return nil }

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryCache struct {
	mu      sync.Mutex
	data    map[string]string
	windows map[string]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}, windows: map[string]int64{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (m *memoryCache) WebhookEventKey(provider, eventID string) string {
	return "test:webhook:" + provider + ":" + eventID
}

func (m *memoryCache) Ping(context.Context) error {
	return nil
}

func (m *memoryCache) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[scope]++
	count := m.windows[scope]
	return count <= limit, count, nil
}

type stubSessionManager struct {
	revoked map[string]bool
}

func (s *stubSessionManager) IsRevoked(_ context.Context, accessID string) (bool, error) {
	return s.revoked[accessID], nil
}

func (s *stubSessionManager) Revoke(_ context.Context, accessID string, _ time.Time) error {
	if s.revoked == nil {
		s.revoked = map[string]bool{}
	}
	s.revoked[accessID] = true
	return nil
}

type stubCheckoutService struct {
	calls int
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, input checkoutsvc.CreateOrderInput) (*checkoutsvc.Result, error) {
	s.calls++
	return &checkoutsvc.Result{Order: orders.OrderDTO{ID: uuid.New(), Status: enums.OrderStatusPending}}, nil
}

func (s *stubCheckoutService) RetryPayment(ctx context.Context, input checkoutsvc.RetryInput) (*payments.Instructions, error) {
	return &payments.Instructions{OrderID: input.OrderID, PaymentMethod: input.PaymentMethod}, nil
}

type stubOrdersService struct {
	orders.Service
}

func (stubOrdersService) List(ctx context.Context, userID uuid.UUID, input orders.ListInput) (*orders.OrderList, error) {
	return &orders.OrderList{Orders: []orders.OrderDTO{}}, nil
}

func (stubOrdersService) AdminSetStatus(ctx context.Context, input orders.AdminStatusInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: input.Status, Total: decimal.NewFromInt(10)}, nil
}

type stubCartService struct {
	cart.Service
}

type stubSubscriptionsService struct {
	subscriptions.Service
}

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(ctx context.Context, event *asaas.Event) (string, error) {
	return metrics.WebhookOutcomeApplied, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		HTTP: config.HTTPConfig{
			RateLimitWindow: time.Minute,
			CheckoutLimit:   2,
			RetryLimit:      2,
			WebhookMaxBytes: 1 << 20,
		},
		FeatureFlags: config.FeatureFlagsConfig{SessionCheck: true},
		Asaas:        config.AsaasConfig{WebhookToken: "whk"},
	}
}

type testRouter struct {
	handler  http.Handler
	sessions *stubSessionManager
	checkout *stubCheckoutService
}

func newTestRouter(t *testing.T, cfg *config.Config) testRouter {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	cache := newMemoryCache()
	guard, err := asaaswebhook.NewIdempotencyGuard(cache, time.Hour)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	sessions := &stubSessionManager{}
	checkout := &stubCheckoutService{}
	handler := NewRouter(
		cfg,
		logg,
		stubPinger{},
		cache,
		prometheus.NewRegistry(),
		sessions,
		checkout,
		stubCartService{},
		stubOrdersService{},
		stubSubscriptionsService{},
		stubWebhookService{},
		guard,
		metrics.NewWebhookMetrics(nil),
		stubDLQStore{},
	)
	return testRouter{handler: handler, sessions: sessions, checkout: checkout}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole, jti string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    jti,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestOrdersListWithToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer, ""))
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	token := buildToken(t, cfg, enums.UserRoleCustomer, "jti-logout")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/status"

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"CANCELED"}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer, ""))
	req.Header.Set("Idempotency-Key", "admin-1")
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"CANCELED"}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleAdmin, ""))
	req.Header.Set("Idempotency-Key", "admin-2")
	resp = httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d (%s)", resp.Code, resp.Body.String())
	}
}

const checkoutBody = `{"items":[{"item_id":"2b0c5f1e-6a7e-4f0a-9a39-1d2b8d3f4c10","item_type":"PRODUCT","quantity":1}],"total":"10.00","payment_method":"PIX","buyer":{"name":"Ana","email":"ana@example.com","tax_id":"52998224725"}}`

func TestCheckoutRequiresIdempotencyKeyAndReplays(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	token := buildToken(t, cfg, enums.UserRoleCustomer, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key got %d", resp.Code)
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "checkout-1")
		resp = httptest.NewRecorder()
		router.handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d (%s)", i, resp.Code, resp.Body.String())
		}
	}
	if router.checkout.calls != 1 {
		t.Fatalf("expected replay to skip the service, got %d calls", router.checkout.calls)
	}
}

func TestCheckoutRateLimited(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	token := buildToken(t, cfg, enums.UserRoleCustomer, "")

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", fmt.Sprintf("rl-%d", i))
		resp := httptest.NewRecorder()
		router.handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third checkout to be limited, got %v", codes)
	}
}

func TestWebhookIsPublicButAuthenticated(t *testing.T) {
	router := newTestRouter(t, testConfig())
	body := `{"id":"evt_1","event":"PAYMENT_CONFIRMED","payment":{"id":"pay_1","status":"CONFIRMED"}}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/asaas", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without webhook token got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/asaas", strings.NewReader(body))
	req.Header.Set(asaas.HeaderWebhookToken, "whk")
	resp = httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with webhook token got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, testConfig())
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

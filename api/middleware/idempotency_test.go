package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type replayStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newReplayStore() *replayStore {
	return &replayStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *replayStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *replayStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprint(value)
	s.ttls[key] = ttl
	return nil
}

func (s *replayStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	s.ttls[key] = ttl
	return true, nil
}

func (s *replayStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
		delete(s.ttls, key)
	}
	return nil
}

func (s *replayStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func keyedRequest(method, path, key, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v (%s)", err, rec.Body.String())
	}
	return payload.Error.Code
}

func TestRouteTTL(t *testing.T) {
	const orderPath = "/api/v1/orders/4f1c2a9e-0d7b-4a51-9f3e-2a6c8b1d5e70"
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"checkout", http.MethodPost, "/api/v1/checkout", paymentReplayTTL, true},
		{"order retry", http.MethodPost, orderPath + "/retry", paymentReplayTTL, true},
		{"order cancel", http.MethodPost, orderPath + "/cancel", paymentReplayTTL, true},
		{"order detail", http.MethodPost, orderPath, 0, false},
		{"cart replace", http.MethodPut, "/api/v1/cart", replayTTL, true},
		{"cart merge", http.MethodPost, "/api/v1/cart/merge", replayTTL, true},
		{"subscriptions trailing slash", http.MethodPost, "/api/v1/subscriptions/", replayTTL, true},
		{"admin status", http.MethodPost, "/api/admin/v1/orders/abc/status", replayTTL, true},
		{"empty order id", http.MethodPost, "/api/v1/orders//cancel", 0, false},
		{"cart read", http.MethodGet, "/api/v1/cart", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/asaas", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyRejectsMissingOrOversizedKey(t *testing.T) {
	called := false
	handler := Idempotency(newReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, key := range []string{"", strings.Repeat("k", maxKeyLength+1)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/checkout", key, `{}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("key len %d: expected 400 got %d", len(key), rec.Code)
		}
	}
	if called {
		t.Fatalf("handler should not run without a usable idempotency key")
	}
}

func TestIdempotencyReplaysCompletedCheckout(t *testing.T) {
	store := newReplayStore()
	var calls int
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order_id":"o-1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest(http.MethodPost, "/api/v1/checkout", "chk-1", `{"payment_method":"PIX"}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}
	if first.Header().Get(replayedHeader) != "" {
		t.Fatalf("first response must not be marked as replayed")
	}

	// whitespace around the body does not change the fingerprint
	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, keyedRequest(http.MethodPost, "/api/v1/checkout", "chk-1", ` {"payment_method":"PIX"}`+"\n"))
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", replay.Code)
	}
	if replay.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type preserved")
	}
	if replay.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if replay.Body.String() != `{"data":{"order_id":"o-1"}}` {
		t.Fatalf("unexpected replay body %s", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != paymentReplayTTL {
			t.Fatalf("expected %s stored for %v, got %v", key, paymentReplayTTL, ttl)
		}
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	handler := Idempotency(newReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/api/v1/cart/merge", "m-1", `{"items":[]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/cart/merge", "m-1", `{"items":[{"sku":"A"}]}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, got)
	}
}

func TestIdempotencyConflictsWhileFirstRequestRuns(t *testing.T) {
	store := newReplayStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/api/v1/checkout", "dup", `{}`))
	}()
	<-entered

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/checkout", "dup", `{}`))
	close(release)
	<-done

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for in-flight duplicate, got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeConflict, got)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on in-flight conflict")
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, expected 1", calls)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newReplayStore()
	var calls int
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/api/v1/orders/o-1/retry", "retry-1", `{"payment_method":"PIX"}`))
	}
	if calls != 2 {
		t.Fatalf("expected the failed attempt to be retried, handler ran %d times", calls)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected one stored response, got %d", len(store.data))
	}
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	var calls int
	handler := Idempotency(newReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, user := range []string{"user-a", "user-b"} {
		req := keyedRequest(http.MethodPost, "/api/v1/checkout", "same", `{}`)
		req = req.WithContext(WithUserID(req.Context(), user))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected each user to run the handler, got %d", calls)
	}
}

func TestIdempotencySkipsUnlistedRoutes(t *testing.T) {
	var calls int
	handler := Idempotency(newReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(http.MethodGet, "/api/v1/orders", "", ""))
	if rec.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected passthrough, got status %d calls %d", rec.Code, calls)
	}
}

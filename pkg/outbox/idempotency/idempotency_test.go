package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	return s.values[key], s.err
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.values[key] = value.(string)
	s.ttls[key] = ttl
	return nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	s.ttls[key] = ttl
	return true, nil
}

func (s *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if s.values[key] != expected {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func TestClaimLifecycle(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, 24*time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.New()
	key := "sf:idempotency:evt:order-emails:" + eventID.String()

	claim, err := manager.Claim(ctx, "order-emails", eventID)
	if err != nil || claim != Acquired {
		t.Fatalf("first claim = %v, %v", claim, err)
	}
	if store.values[key] != markerPending || store.ttls[key] != time.Minute {
		t.Fatalf("expected pending lease, got %q ttl %v", store.values[key], store.ttls[key])
	}

	if claim, _ := manager.Claim(ctx, "order-emails", eventID); claim != InFlight {
		t.Fatalf("expected in-flight while leased, got %v", claim)
	}

	if err := manager.Complete(ctx, "order-emails", eventID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if store.ttls[key] != 24*time.Hour {
		t.Fatalf("expected retention ttl, got %v", store.ttls[key])
	}
	if claim, _ := manager.Claim(ctx, "order-emails", eventID); claim != Done {
		t.Fatalf("expected done after complete, got %v", claim)
	}
}

func TestReleaseFreesPendingOnly(t *testing.T) {
	store := newMemoryStore()
	manager, _ := NewManager(store, time.Hour, 0)
	ctx := context.Background()
	pending, done := uuid.New(), uuid.New()

	_, _ = manager.Claim(ctx, "order-emails", pending)
	if err := manager.Release(ctx, "order-emails", pending); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if claim, _ := manager.Claim(ctx, "order-emails", pending); claim != Acquired {
		t.Fatalf("expected reclaim after release, got %v", claim)
	}

	_, _ = manager.Claim(ctx, "order-emails", done)
	_ = manager.Complete(ctx, "order-emails", done)
	_ = manager.Release(ctx, "order-emails", done)
	if claim, _ := manager.Claim(ctx, "order-emails", done); claim != Done {
		t.Fatalf("release must not clear a done marker, got %v", claim)
	}
}

func TestClaimScopesByConsumer(t *testing.T) {
	manager, _ := NewManager(newMemoryStore(), time.Hour, time.Minute)
	eventID := uuid.New()
	ctx := context.Background()
	if claim, _ := manager.Claim(ctx, "order-emails", eventID); claim != Acquired {
		t.Fatalf("unexpected claim %v", claim)
	}
	if claim, _ := manager.Claim(ctx, "subscription-sync", eventID); claim != Acquired {
		t.Fatalf("other consumer should claim independently, got %v", claim)
	}
}

func TestClaimErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	manager, _ := NewManager(store, time.Hour, time.Minute)

	if _, err := manager.Claim(context.Background(), "order-emails", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := manager.Claim(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected consumer name error")
	}
	if _, err := manager.Claim(context.Background(), "order-emails", uuid.Nil); err == nil {
		t.Fatal("expected event id error")
	}
}

func TestNewManagerValidates(t *testing.T) {
	if _, err := NewManager(nil, time.Hour, time.Minute); err == nil {
		t.Fatal("expected nil store rejected")
	}
	if _, err := NewManager(newMemoryStore(), 0, time.Minute); err == nil {
		t.Fatal("expected zero retention rejected")
	}
	m, err := NewManager(newMemoryStore(), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.lease != time.Minute {
		t.Fatalf("lease should be clamped to retention, got %v", m.lease)
	}
}

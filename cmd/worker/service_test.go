package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubConsumer struct {
	calls int
	err   error
}

func (s *stubConsumer) Run(ctx context.Context) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func newTestService(t *testing.T, redisErr error, c *stubConsumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:       stubPinger{},
		Redis:    stubPinger{err: redisErr},
		PubSub:   stubPinger{},
		Consumer: c,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	c := &stubConsumer{}
	svc := newTestService(t, errors.New("connection refused"), c)

	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness error")
	}
	if c.calls != 0 {
		t.Fatalf("consumer should not start when redis is down")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc := newTestService(t, nil, &stubConsumer{err: boom})

	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := &stubConsumer{}
	svc := newTestService(t, nil, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("expected consumer started once, got %d", c.calls)
	}
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:     stubPinger{},
		Redis:  stubPinger{},
		PubSub: stubPinger{},
	})
	if err == nil {
		t.Fatalf("expected error without consumer")
	}
}

package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLease bounds how long a crashed worker can hold an event before
// another delivery may claim it.
const DefaultLease = 5 * time.Minute

const (
	markerPending = "pending"
	markerDone    = "done"
)

// Claim describes the outcome of Manager.Claim.
type Claim int

const (
	// Acquired means the caller owns the event until Complete or Release.
	Acquired Claim = iota
	// Done means a previous delivery finished the work.
	Done
	// InFlight means another delivery holds an unexpired lease.
	InFlight
)

func (c Claim) String() string {
	switch c {
	case Acquired:
		return "acquired"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	}
	return fmt.Sprintf("claim(%d)", int(c))
}

// Store is the Redis surface the manager needs; *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Manager guards event handlers against redelivery. A claim writes a short
// pending lease; Complete upgrades it to a done marker kept for the
// retention window, and Release drops a lease that never completed.
type Manager struct {
	store     Store
	retention time.Duration
	lease     time.Duration
}

func NewManager(store Store, retention, lease time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	if lease > retention {
		lease = retention
	}
	return &Manager{store: store, retention: retention, lease: lease}, nil
}

// Claim tries to take the event for consumer.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Claim, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	ok, err := m.store.SetNX(ctx, key, markerPending, m.lease)
	if err != nil {
		return InFlight, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return Acquired, nil
	}
	current, err := m.store.Get(ctx, key)
	if err != nil {
		return InFlight, fmt.Errorf("read claim %s: %w", key, err)
	}
	if current == markerDone {
		return Done, nil
	}
	return InFlight, nil
}

// Complete records that the event was handled.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.retention)
}

// Release gives up a pending claim so the next delivery can retry. A done
// marker is left in place.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	_, err = m.store.CompareAndDelete(ctx, key, markerPending)
	return err
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}

// Package session tracks logged-out access tokens. Tokens are stateless JWTs,
// so logout stores the token's jti until the token would have expired anyway.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

const revokedMarker = "1"

var errMissingAccessID = errors.New("access id is required")

// Store is the Redis surface the manager needs; *redis.Client satisfies it.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware consults per request.
type AccessSessionChecker interface {
	IsRevoked(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	return &Manager{store: store, now: time.Now}, nil
}

// Revoke blocks accessID until expiresAt. Already expired tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, accessID string, expiresAt time.Time) error {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return errMissingAccessID
	}
	ttl := expiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.store.Set(ctx, m.store.AccessSessionKey(accessID), revokedMarker, ttl)
}

func (m *Manager) IsRevoked(ctx context.Context, accessID string) (bool, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return false, errMissingAccessID
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redislib.Nil):
		return false, nil
	default:
		return false, err
	}
}

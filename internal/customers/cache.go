package customers

import (
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const defaultCacheSize = 4096

// Cache remembers provider customer ids verified recently, so a burst of
// checkouts from the same user does not re-fetch the customer every time.
// Entries rejected by the provider are dropped with Forget.
type Cache struct {
	entries *expirable.LRU[uuid.UUID, string]
}

// NewCache builds the verified-id cache. A zero TTL disables caching.
func NewCache(cfg config.CustomerCacheConfig) (*Cache, error) {
	if cfg.TTL <= 0 {
		return nil, nil
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Cache{entries: expirable.NewLRU[uuid.UUID, string](size, nil, cfg.TTL)}, nil
}

// Get returns the cached customer id for the user if it has not expired.
func (c *Cache) Get(userID uuid.UUID) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.entries.Get(userID)
}

// Set records a verified customer id.
func (c *Cache) Set(userID uuid.UUID, customerID string) {
	if c == nil || customerID == "" {
		return
	}
	c.entries.Add(userID, customerID)
}

// Forget drops the user's entry.
func (c *Cache) Forget(userID uuid.UUID) {
	if c == nil {
		return
	}
	c.entries.Remove(userID)
}

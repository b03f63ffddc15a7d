package grants

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/veritrail/veritrail/internal/authz"
)

const cacheKeyPrefix = "veritrail:grants:"

// Cache keeps a principal's resolved grant capabilities in Redis for a
// short TTL. It is strictly an optimisation: every cache failure is
// treated as a miss and resolution falls through to the repository, so
// the fail-closed semantics of the resolver are preserved.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache constructs a Cache.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached capability map for the principal, or false on
// any miss or cache error.
func (c *Cache) Get(ctx context.Context, principalID uuid.UUID) (map[authz.Capability]bool, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, cacheKeyPrefix+principalID.String()).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("grant cache get", slog.Any("error", err))
		}
		return nil, false
	}
	var names map[string]bool
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, false
	}
	caps := make(map[authz.Capability]bool, len(names))
	for name, allowed := range names {
		caps[authz.Capability(name)] = allowed
	}
	return caps, true
}

// Set stores the capability map for the principal.
func (c *Cache) Set(ctx context.Context, principalID uuid.UUID, caps map[authz.Capability]bool) {
	if c == nil || c.client == nil {
		return
	}
	names := make(map[string]bool, len(caps))
	for capability, allowed := range caps {
		names[string(capability)] = allowed
	}
	data, err := json.Marshal(names)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+principalID.String(), data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("grant cache set", slog.Any("error", err))
	}
}

// Invalidate drops the cached entry after a grant mutation.
func (c *Cache) Invalidate(ctx context.Context, principalID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKeyPrefix+principalID.String()).Err(); err != nil && c.logger != nil {
		c.logger.Warn("grant cache invalidate", slog.Any("error", err))
	}
}

package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through Redis cache for account lookups. Accounts are
// rarely created or deactivated, so reads are served from cache; any
// mutation invalidates the code before the mutation returns to the
// caller, which keeps deactivation visible to subsequent postings.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache constructs a Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// tombstone marks an invalidated entry. It outlives any load that was
// already in flight when the invalidation ran, so that load cannot
// re-populate the key with the pre-mutation row.
const tombstone = "__invalidated__"

const tombstoneTTL = 10 * time.Second

func (c *Cache) key(code string) string {
	return "account:" + code
}

// Get returns the cached account, or loads and caches it via load.
// Concurrent misses for the same code collapse into one load. Entries
// are written with SetNX: while an invalidation tombstone holds the
// key, loads read from the store and leave the cache alone.
func (c *Cache) Get(ctx context.Context, code string, load func(context.Context) (Account, error)) (Account, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	if data, err := c.client.Get(ctx, c.key(code)).Bytes(); err == nil {
		if string(data) != tombstone {
			var account Account
			if err := json.Unmarshal(data, &account); err == nil {
				return account, nil
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		// Redis trouble must not block reads; fall through to the store.
		return load(ctx)
	}

	value, err, _ := c.group.Do(code, func() (any, error) {
		account, err := load(ctx)
		if err != nil {
			return Account{}, err
		}
		if data, err := json.Marshal(account); err == nil {
			_ = c.client.SetNX(ctx, c.key(code), data, c.ttl).Err()
		}
		return account, nil
	})
	if err != nil {
		return Account{}, err
	}
	return value.(Account), nil
}

// Invalidate replaces the cached entry for code with a short-lived
// tombstone. A plain DEL would leave a window where a load that began
// before the mutation writes the stale row back for a full TTL; the
// tombstone blocks that SetNX. The Redis error is returned so
// mutations can refuse to report success with a stale cache still in
// place.
func (c *Cache) Invalidate(ctx context.Context, code string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, c.key(code), tombstone, tombstoneTTL).Err()
}

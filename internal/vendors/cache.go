package vendors

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps vendor suggestion results in Redis for a short window. Nil
// receivers fall through to the loader so tests can skip Redis entirely.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func suggestionKey(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return "vendors:suggest:" + strings.Join(sorted, ",")
}

// FetchSuggestions loads cached suggestions or populates them via the loader.
func (c *Cache) FetchSuggestions(ctx context.Context, names []string, loader func(context.Context) ([]VendorRef, error)) ([]VendorRef, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := suggestionKey(names)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var refs []VendorRef
		if jsonErr := json.Unmarshal(payload, &refs); jsonErr == nil {
			return refs, nil
		}
	} else if err != redis.Nil {
		return nil, err
	}
	refs, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// Invalidate drops all cached suggestions after a vendor write.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, "vendors:suggest:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sitebeacon/stats-service/internal/domain"
)

// Cache holds short-lived summary responses. Storage stays the source of
// truth; aggregation tolerates slightly-stale counts, so entries just
// expire instead of being invalidated on write.
type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

func NewWithClient(c *redis.Client) *Cache {
	return &Cache{Client: c}
}

func (c *Cache) GetSummary(ctx context.Context, key string) (domain.Summary, error) {
	raw, err := c.Client.Get(ctx, "summary:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Summary{}, domain.ErrCacheMiss
		}
		return domain.Summary{}, err
	}
	var s domain.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Summary{}, domain.ErrCacheMiss
	}
	return s, nil
}

func (c *Cache) SetSummary(ctx context.Context, key string, s domain.Summary, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, "summary:"+key, raw, ttl).Err()
}

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "reminder:tick:"
	defaultTTL       = 10 * time.Minute
)

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisTickClaimer grants each tick to the first replica that claims it. The key expires after
// TTL, which must outlast the tick window plus clock skew between replicas.
type RedisTickClaimer struct {
	client     setNXer
	prefix     string
	ttl        time.Duration
	instanceID string
}

func NewRedisTickClaimer(client redis.UniversalClient, instanceID string, ttl time.Duration) *RedisTickClaimer {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisTickClaimer{client: client, prefix: defaultKeyPrefix, ttl: ttl, instanceID: instanceID}
}

func (c *RedisTickClaimer) Claim(ctx context.Context, tick time.Time) (bool, error) {
	key := c.prefix + tick.UTC().Format(time.RFC3339)
	ok, err := c.client.SetNX(ctx, key, c.instanceID, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim tick %s: %w", key, err)
	}
	return ok, nil
}

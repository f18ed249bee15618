package volume

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyPrefix = "volume:bucket:"

// RedisCache stores settled bucket sums as decimal strings. Keys only need to
// outlive the window they can fall into.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache returns a cache whose keys expire after ttl. A ttl shorter
// than Window plus BucketSize is raised to it.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if minTTL := Window + BucketSize; ttl < minTTL {
		ttl = minTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func bucketKey(customerID uuid.UUID, start time.Time) string {
	return keyPrefix + customerID.String() + ":" + strconv.FormatInt(start.Unix(), 10)
}

func (c *RedisCache) GetBuckets(ctx context.Context, customerID uuid.UUID, starts []time.Time) (map[time.Time]decimal.Decimal, error) {
	if len(starts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(starts))
	for i, s := range starts {
		keys[i] = bucketKey(customerID, s)
	}
	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get cached volume buckets: %w", err)
	}

	out := make(map[time.Time]decimal.Decimal, len(starts))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("parse cached volume bucket %s: %w", keys[i], err)
		}
		out[starts[i]] = d
	}
	return out, nil
}

func (c *RedisCache) SetBuckets(ctx context.Context, customerID uuid.UUID, sums map[time.Time]decimal.Decimal) error {
	if len(sums) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for start, sum := range sums {
			p.Set(ctx, bucketKey(customerID, start), sum.String(), c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache volume buckets: %w", err)
	}
	return nil
}

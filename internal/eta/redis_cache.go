package eta

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/emergency-dispatch/internal/models"
)

// RedisCache is a Store shared by every server instance. Lookups are best
// effort; a Redis error is a cache miss.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "eta:"}
}

func (r *RedisCache) Get(a, b models.Coord) (float64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	s, err := r.client.Get(ctx, r.prefix+keyFor(a, b)).Result()
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (r *RedisCache) Set(a, b models.Coord, v float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.client.Set(ctx, r.prefix+keyFor(a, b), strconv.FormatFloat(v, 'f', -1, 64), r.ttl).Err()
}

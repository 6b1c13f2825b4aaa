package subjects

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

// RedisCache guarda subjects serializados em JSON com TTL
type RedisCache struct {
	R   *redis.Client
	TTL time.Duration
}

func NewRedisCache(r *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{R: r, TTL: ttl}
}

func key(id string) string { return "subject:" + id }

func (c *RedisCache) Get(ctx context.Context, id string) (model.Subject, bool, error) {
	b, err := c.R.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Subject{}, false, nil
	}
	if err != nil {
		return model.Subject{}, false, err
	}
	var s model.Subject
	if err := json.Unmarshal(b, &s); err != nil {
		return model.Subject{}, false, err
	}
	return s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, s model.Subject) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key(s.ID), b, c.TTL).Err()
}

func (c *RedisCache) Delete(ctx context.Context, id string) error {
	return c.R.Del(ctx, key(id)).Err()
}

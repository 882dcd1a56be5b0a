package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fuelstation/backend/internal/domain"
)

const keyPrefix = "fuelstation:nozzle:"

type RedisNozzleCache struct {
	client *redis.Client
}

func NewRedisNozzleCache(addr string, password string, db int) *RedisNozzleCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisNozzleCache{client: client}
}

func (c *RedisNozzleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisNozzleCache) Close() error {
	return c.client.Close()
}

func (c *RedisNozzleCache) Get(ctx context.Context, key string) (*domain.NozzleContext, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var nc domain.NozzleContext
	if err := json.Unmarshal(val, &nc); err != nil {
		return nil, false, err
	}
	return &nc, true, nil
}

func (c *RedisNozzleCache) Set(ctx context.Context, key string, value *domain.NozzleContext, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache holds catalog rows that change rarely: routes and users.
// Seat availability is never cached.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		ttl:    ttl,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetRoute returns nil, nil on a miss.
func (c *RedisCache) GetRoute(ctx context.Context, id int64) (*domain.Route, error) {
	var route domain.Route
	ok, err := c.get(ctx, routeKey(id), &route)
	if err != nil || !ok {
		return nil, err
	}
	return &route, nil
}

func (c *RedisCache) SetRoute(ctx context.Context, route *domain.Route) error {
	return c.set(ctx, routeKey(route.ID), route)
}

// GetUser returns nil, nil on a miss.
func (c *RedisCache) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	ok, err := c.get(ctx, userKey(id), &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

func (c *RedisCache) SetUser(ctx context.Context, user *domain.User) error {
	return c.set(ctx, userKey(user.ID), user)
}

func (c *RedisCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

func routeKey(id int64) string {
	return fmt.Sprintf("cache:route:%d", id)
}

func userKey(id int64) string {
	return fmt.Sprintf("cache:user:%d", id)
}

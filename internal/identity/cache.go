package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gigmarket/models"

	"github.com/redis/go-redis/v9"
)

const (
	tokenBlacklistPrefix = "auth:token:blacklist:"
	actorPrefix          = "gigmarket:actor:"
)

// Cache хранит отозванные токены и недолговечные копии пользователей
type Cache interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// GetActor возвращает nil, nil при промахе
	GetActor(ctx context.Context, id int64) (*models.User, error)
	SetActor(ctx context.Context, u *models.User) error
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, actorTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: actorTTL}
}

func blacklistKey(jti string) string {
	return tokenBlacklistPrefix + jti
}

func actorKey(id int64) string {
	return fmt.Sprintf("%s%d", actorPrefix, id)
}

func (c *RedisCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

func (c *RedisCache) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return c.rdb.Set(ctx, blacklistKey(jti), "1", ttl).Err()
}

func (c *RedisCache) GetActor(ctx context.Context, id int64) (*models.User, error) {
	raw, err := c.rdb.Get(ctx, actorKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *RedisCache) SetActor(ctx context.Context, u *models.User) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, actorKey(u.ID), raw, c.ttl).Err()
}

// internal/infrastructure/cache/redis/cache.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Общий префикс всех ключей приложения
const cacheKeyPrefix = "bscbot:"

type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(addr, password string, db int) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: cacheKeyPrefix,
	}
}

// NewCacheWithClient создает Cache с существующим клиентом
func NewCacheWithClient(client *redis.Client) *Cache {
	return &Cache{
		client: client,
		prefix: cacheKeyPrefix,
	}
}

// Set устанавливает значение в Redis с TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	fullKey := c.prefix + key

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, fullKey, data, ttl).Err()
}

// Get получает значение из Redis
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	fullKey := c.prefix + key

	data, err := c.client.Get(ctx, fullKey).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// Delete удаляет ключ из Redis
func (c *Cache) Delete(ctx context.Context, key string) error {
	fullKey := c.prefix + key
	return c.client.Del(ctx, fullKey).Err()
}

// DeleteMulti удаляет несколько ключей из Redis
func (c *Cache) DeleteMulti(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = c.prefix + key
	}

	return c.client.Del(ctx, fullKeys...).Err()
}

// SetUserByTelegramID устанавливает пользователя по Telegram ID
func (c *Cache) SetUserByTelegramID(ctx context.Context, user interface{}, telegramID int64, ttl time.Duration) error {
	key := fmt.Sprintf("user:telegram:%d", telegramID)
	return c.Set(ctx, key, user, ttl)
}

// GetUserByTelegramID получает пользователя по Telegram ID.
// Возвращает false без ошибки, если записи в кэше нет.
func (c *Cache) GetUserByTelegramID(ctx context.Context, telegramID int64, dest interface{}) (bool, error) {
	key := fmt.Sprintf("user:telegram:%d", telegramID)
	if err := c.Get(ctx, key, dest); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteUserByTelegramID удаляет пользователя из кэша
func (c *Cache) DeleteUserByTelegramID(ctx context.Context, telegramID int64) error {
	key := fmt.Sprintf("user:telegram:%d", telegramID)
	return c.Delete(ctx, key)
}

// SetTokenQuote устанавливает котировку токена в кэш
func (c *Cache) SetTokenQuote(ctx context.Context, quote interface{}, chainID, tokenAddress string, ttl time.Duration) error {
	key := fmt.Sprintf("quote:%s:%s", chainID, tokenAddress)
	return c.Set(ctx, key, quote, ttl)
}

// GetTokenQuote получает котировку токена из кэша.
// Возвращает false без ошибки, если котировки в кэше нет или она истекла.
func (c *Cache) GetTokenQuote(ctx context.Context, chainID, tokenAddress string, dest interface{}) (bool, error) {
	key := fmt.Sprintf("quote:%s:%s", chainID, tokenAddress)
	if err := c.Get(ctx, key, dest); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Rate limiting
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	fullKey := c.prefix + "ratelimit:" + key

	// Используем Redis pipeline для атомарности
	pipe := c.client.Pipeline()

	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	return count <= limit, count, nil
}

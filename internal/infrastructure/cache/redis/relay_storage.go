// internal/infrastructure/cache/redis/relay_storage.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bsc-trading-assistant-bot/internal/infrastructure/api/relay"

	"github.com/go-redis/redis/v8"
)

// Пространство ключей relay-клиента внутри общего префикса приложения
const relayKeyPrefix = cacheKeyPrefix + "relay:"

// Таймаут одиночной операции relay-хранилища
const relayOpTimeout = 3 * time.Second

// RelayStorage - Redis-реализация хранилища relay-клиента.
// Интерфейс хранилища синхронный, поэтому каждая операция получает
// собственный таймаут вместо внешнего контекста.
type RelayStorage struct {
	client *redis.Client
}

// NewRelayStorage создает хранилище relay-клиента поверх подключенного клиента
func NewRelayStorage(client *redis.Client) *RelayStorage {
	return &RelayStorage{client: client}
}

var _ relay.Storage = (*RelayStorage)(nil)

func (s *RelayStorage) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), relayOpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, relayKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to save relay key %s: %w", key, err)
	}
	return nil
}

func (s *RelayStorage) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), relayOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, relayKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, &relay.StorageError{Key: key}
		}
		return nil, fmt.Errorf("failed to load relay key %s: %w", key, err)
	}
	return data, nil
}

func (s *RelayStorage) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), relayOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, relayKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete relay key %s: %w", key, err)
	}
	return nil
}

// Keys возвращает ключи с данным префиксом без пространства имен relay
func (s *RelayStorage) Keys(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), relayOpTimeout)
	defer cancel()

	full, err := scanKeys(ctx, s.client, relayKeyPrefix+prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan relay keys: %w", err)
	}

	keys := make([]string, 0, len(full))
	for _, key := range full {
		keys = append(keys, strings.TrimPrefix(key, relayKeyPrefix))
	}
	return keys, nil
}

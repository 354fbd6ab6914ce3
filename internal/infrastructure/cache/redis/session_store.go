// internal/infrastructure/cache/redis/session_store.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bsc-trading-assistant-bot/internal/core/walletsession"
	"bsc-trading-assistant-bot/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// Префикс ключей записей о кошелек-сессиях
const sessionKeyPrefix = cacheKeyPrefix + "wallet:session:"

// Сколько ключей запрашивается за одну итерацию SCAN
const scanBatchSize = 100

// SessionStore - Redis-реализация хранилища записей о кошелек-сессиях.
// Ключ: bscbot:wallet:session:{userID}, значение - JSON-снимок записи.
// Каждая запись получает TTL равный окну хранения: даже если плановая
// чистка не запускалась, Redis сам удалит запись, которая не обновлялась
// дольше окна. Окно хранения не короче срока жизни сессии, поэтому
// живая сессия так исчезнуть не может.
type SessionStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewSessionStore создает хранилище сессий поверх подключенного клиента.
// retention - окно хранения записей; 0 отключает автоматическое истечение.
func NewSessionStore(client *redis.Client, retention time.Duration) *SessionStore {
	return &SessionStore{
		client:    client,
		retention: retention,
	}
}

var _ walletsession.Store = (*SessionStore)(nil)

func sessionRecordKey(userID int64) string {
	return fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
}

// Save сохраняет запись, перезаписывая предыдущую для этого пользователя
func (s *SessionStore) Save(ctx context.Context, record *walletsession.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := s.client.Set(ctx, sessionRecordKey(record.UserID), data, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}

	return nil
}

// Load возвращает запись пользователя или walletsession.ErrRecordNotFound
func (s *SessionStore) Load(ctx context.Context, userID int64) (*walletsession.SessionRecord, error) {
	data, err := s.client.Get(ctx, sessionRecordKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, walletsession.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}

	var record walletsession.SessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}

	return &record, nil
}

// Delete удаляет запись. Удаление отсутствующей записи - no-op.
func (s *SessionStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionRecordKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// All возвращает все сохраненные записи.
// Поврежденные записи пропускаются с предупреждением, их удалит PruneOlderThan.
func (s *SessionStore) All(ctx context.Context) ([]*walletsession.SessionRecord, error) {
	keys, err := scanKeys(ctx, s.client, sessionKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan session records: %w", err)
	}

	records := make([]*walletsession.SessionRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			// Ключ мог истечь между SCAN и GET
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to load session record %s: %w", key, err)
		}

		var record walletsession.SessionRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			logger.Warn("⚠️ Skipping corrupted session record %s: %v", key, err)
			continue
		}

		records = append(records, &record)
	}

	return records, nil
}

// PruneOlderThan удаляет записи, не обновлявшиеся с момента cutoff,
// и возвращает количество удаленных. Поврежденные записи тоже удаляются.
func (s *SessionStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := scanKeys(ctx, s.client, sessionKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to scan session records: %w", err)
	}

	pruned := 0
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return pruned, fmt.Errorf("failed to load session record %s: %w", key, err)
		}

		var record walletsession.SessionRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			logger.Warn("⚠️ Pruning corrupted session record %s: %v", key, err)
		} else if !record.UpdatedAt.Before(cutoff) {
			continue
		}

		if err := s.client.Del(ctx, key).Err(); err != nil {
			return pruned, fmt.Errorf("failed to prune session record %s: %w", key, err)
		}
		pruned++
	}

	return pruned, nil
}

// scanKeys собирает все ключи по шаблону курсорным SCAN, не блокируя Redis
func scanKeys(ctx context.Context, client *redis.Client, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

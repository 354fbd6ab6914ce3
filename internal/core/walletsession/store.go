// internal/core/walletsession/store.go
package walletsession

import (
	"context"
	"encoding/json"
	"time"
)

// SessionRecord - сохраненная запись о подключении пользователя.
// Инвариант: не более одной неистекшей записи на пользователя.
// Создается при подтверждении пейринга, обновляется при продлении,
// удаляется при отключении, истечении или несовпадении адреса.
type SessionRecord struct {
	UserID      int64           `json:"user_id"`
	Topic       string          `json:"topic"`
	Address     string          `json:"address"`
	SessionData json.RawMessage `json:"session_data,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store - долговременное хранилище записей о сессиях, переживает рестарты.
// Реализация - internal/infrastructure/cache/redis.
type Store interface {
	// Save сохраняет запись, перезаписывая предыдущую для этого пользователя
	Save(ctx context.Context, record *SessionRecord) error

	// Load возвращает запись пользователя или ErrRecordNotFound
	Load(ctx context.Context, userID int64) (*SessionRecord, error)

	// Delete удаляет запись. Удаление отсутствующей записи - no-op.
	Delete(ctx context.Context, userID int64) error

	// All возвращает все сохраненные записи
	All(ctx context.Context) ([]*SessionRecord, error)

	// PruneOlderThan удаляет записи, не обновлявшиеся с момента cutoff,
	// и возвращает количество удаленных
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

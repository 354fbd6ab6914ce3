// internal/infrastructure/api/relay/storage.go
package relay

import (
	"strings"
	"sync"
)

// Записи сессий лежат под префиксом, PurgeTopic снимает их по топику
const storageSessionPrefix = "session:"

func sessionKeyFor(topic string) string { return storageSessionPrefix + topic }

// Storage - долговременное KV-хранилище клиента: реестр сессий и ключи
// шифрования переживают рестарт процесса. Get обязан возвращать ошибку
// с контрактом NotFound() для отсутствующего ключа, Delete отсутствие
// ключа молча прощает.
type Storage interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// MemoryStorage - хранилище в памяти для тестов и dev-режима без Redis
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (s *MemoryStorage) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *MemoryStorage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, &StorageError{Key: key}
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStorage) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

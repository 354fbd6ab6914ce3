// internal/core/walletsession/registry.go
package walletsession

import "sync"

// TopicRegistry - множество топиков, которые этот процесс считает своими
// живыми сессиями. Инвариант: топик зарегистрирован тогда и только тогда,
// когда пейринг подтвержден пользователем или восстановление подтвердило
// живую сессию. Безопасен для конкурентного доступа из supervisor-ов.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]struct{}
}

// NewTopicRegistry создает пустой реестр топиков
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]struct{}),
	}
}

// Register добавляет топик в реестр
func (r *TopicRegistry) Register(topic string) {
	if topic == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[topic] = struct{}{}
}

// Unregister удаляет топик из реестра. Повторное удаление - no-op.
func (r *TopicRegistry) Unregister(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.topics, topic)
}

// Contains проверяет, зарегистрирован ли топик
func (r *TopicRegistry) Contains(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic]
	return ok
}

// Active возвращает снимок всех зарегистрированных топиков
func (r *TopicRegistry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	return topics
}

// Len возвращает количество зарегистрированных топиков
func (r *TopicRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// internal/core/walletsession/broker.go
package walletsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bsc-trading-assistant-bot/pkg/logger"
)

// ClientFactory создает и инициализирует протокольный клиент
type ClientFactory func(ctx context.Context) (ProtocolClient, error)

// Broker - единственный владелец протокольного клиента на процесс.
// Relay-клиент не переживает повторную инициализацию в одном процессе
// (дублирование ломает его внутреннее состояние транспорта), поэтому
// создание сериализуется: первый вызывающий инициализирует, остальные
// ждут его итог с ограниченным таймаутом. Брокер принадлежит корню
// composition root-а приложения, а не пакету как глобальная переменная.
type Broker struct {
	factory     ClientFactory
	initTimeout time.Duration

	mu       sync.Mutex
	client   ProtocolClient
	initDone chan struct{} // не nil, пока инициализация в полете
	initErr  error         // итог последней завершившейся инициализации

	registry *TopicRegistry

	listenersMu sync.RWMutex
	listeners   map[string]EventHandler // топик -> обработчик supervisor-а
}

// NewBroker создает брокер с фабрикой клиента и таймаутом ожидания инициализации
func NewBroker(factory ClientFactory, initTimeout time.Duration) *Broker {
	if initTimeout <= 0 {
		initTimeout = 10 * time.Second
	}

	return &Broker{
		factory:     factory,
		initTimeout: initTimeout,
		registry:    NewTopicRegistry(),
		listeners:   make(map[string]EventHandler),
	}
}

// GetClient возвращает общий клиент, при необходимости инициализируя его.
// Конкурентные вызовы во время инициализации блокируются на ее итоге;
// если итог не пришел за initTimeout - ErrInitializationTimeout.
func (b *Broker) GetClient(ctx context.Context) (ProtocolClient, error) {
	b.mu.Lock()
	if b.client != nil {
		client := b.client
		b.mu.Unlock()
		return client, nil
	}

	if b.initDone != nil {
		// Инициализация уже идет в другой горутине - ждем ее итог
		done := b.initDone
		b.mu.Unlock()
		return b.awaitInit(ctx, done)
	}

	// Становимся инициализатором
	done := make(chan struct{})
	b.initDone = done
	b.mu.Unlock()

	logger.Info("🔄 Инициализация протокольного клиента...")
	client, err := b.factory(ctx)

	b.mu.Lock()
	b.initDone = nil
	if err != nil {
		// Синглтон остается незаполненным: следующий вызов начнет заново
		b.initErr = err
		b.mu.Unlock()
		close(done)
		logger.Error("❌ Инициализация протокольного клиента: %v", err)
		return nil, fmt.Errorf("init protocol client: %w", err)
	}

	b.client = client
	b.initErr = nil
	b.mu.Unlock()

	b.attachEvents(client)
	close(done)

	logger.Info("✅ Протокольный клиент инициализирован")
	return client, nil
}

// awaitInit ждет завершения чужой инициализации не дольше initTimeout
func (b *Broker) awaitInit(ctx context.Context, done <-chan struct{}) (ProtocolClient, error) {
	timer := time.NewTimer(b.initTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return nil, ErrInitializationTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	b.mu.Lock()
	client, initErr := b.client, b.initErr
	b.mu.Unlock()

	if client == nil {
		if initErr == nil {
			return nil, ErrInitializationTimeout
		}
		return nil, fmt.Errorf("init protocol client: %w", initErr)
	}
	return client, nil
}

// current возвращает клиент без инициализации (nil, если его еще нет)
func (b *Broker) current() ProtocolClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// ==================== Реестр топиков ====================

// RegisterTopic помечает топик как принадлежащий этому процессу
func (b *Broker) RegisterTopic(topic string) {
	b.registry.Register(topic)
}

// UnregisterTopic снимает топик с учета
func (b *Broker) UnregisterTopic(topic string) {
	b.registry.Unregister(topic)
}

// IsTopicActive проверяет, считает ли процесс топик своим
func (b *Broker) IsTopicActive(topic string) bool {
	return b.registry.Contains(topic)
}

// ==================== Мост событий ====================

// attachEvents устанавливает мост событий клиента. События по топикам,
// которых нет в реестре, отбрасываются до обработчиков: прилетевшее после
// отключения событие не должно уронить код, ожидающий живую сессию.
func (b *Broker) attachEvents(client ProtocolClient) {
	bridge := func(event Event) {
		topic := event.SessionTopic()
		if !b.registry.Contains(topic) {
			logger.Debug("📡 Событие %s по неотслеживаемому топику отброшено", event.Kind())
			return
		}
		b.dispatch(event)
	}

	client.On(EventSessionDeleted, bridge)
	client.On(EventSessionUpdated, bridge)
	client.On(EventSessionExpired, bridge)
}

func (b *Broker) dispatch(event Event) {
	b.listenersMu.RLock()
	handler := b.listeners[event.SessionTopic()]
	b.listenersMu.RUnlock()

	if handler != nil {
		handler(event)
	}
}

// AddSessionListener регистрирует обработчик событий конкретного топика
func (b *Broker) AddSessionListener(topic string, handler EventHandler) {
	if topic == "" || handler == nil {
		return
	}

	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners[topic] = handler
}

// RemoveSessionListener снимает обработчик топика. Повторное снятие - no-op.
func (b *Broker) RemoveSessionListener(topic string) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	delete(b.listeners, topic)
}

// ==================== Нормализация операций клиента ====================

// SessionForTopic ищет топик в живом наборе сессий клиента напрямую,
// не доверяя его внутренним кэшам. Отсутствие сессии - штатный итог,
// а не ошибка.
func (b *Broker) SessionForTopic(topic string) (Session, bool) {
	client := b.current()
	if client == nil || topic == "" {
		return Session{}, false
	}

	for _, session := range client.Sessions() {
		if session.Topic == topic {
			return session, true
		}
	}
	return Session{}, false
}

// SessionBlob читает сериализованные метаданные сессии из хранилища клиента.
// Отсутствие ключа возвращается как (nil, false, nil): сессии не было или
// она уже вычищена, это не сбой.
func (b *Broker) SessionBlob(topic string) ([]byte, bool, error) {
	client := b.current()
	if client == nil || topic == "" {
		return nil, false, nil
	}

	data, err := client.SessionMeta(topic)
	if err != nil {
		if isKeyNotFound(err) || IsTopicUnknown(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read session meta: %w", err)
	}
	return data, true, nil
}

// DisconnectTopic закрывает сессию, терпя "топик неизвестен":
// контрагент мог уже отключиться сам
func (b *Broker) DisconnectTopic(ctx context.Context, topic, reason string) error {
	client := b.current()
	if client == nil || topic == "" {
		return nil
	}

	if err := client.Disconnect(ctx, topic, reason); err != nil {
		if IsTopicUnknown(err) {
			return nil
		}
		return fmt.Errorf("disconnect topic: %w", err)
	}
	return nil
}

// PurgeTopicStorage вычищает данные клиента по топику, терпя отсутствие ключей
func (b *Broker) PurgeTopicStorage(topic string) {
	client := b.current()
	if client == nil || topic == "" {
		return
	}

	if err := client.PurgeTopic(topic); err != nil && !isKeyNotFound(err) {
		logger.Warn("⚠️ Очистка хранилища топика: %v", err)
	}
}

// ==================== Полный сброс ====================

// Clear полностью разбирает клиент: отключает все живые сессии, снимает
// слушателей, вычищает хранилище по всем активным топикам и сбрасывает
// синглтон в неинициализированное состояние. Ошибки отдельных отключений
// глотаются - контрагент мог уже уйти.
func (b *Broker) Clear(ctx context.Context) {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.initErr = nil
	b.mu.Unlock()

	b.listenersMu.Lock()
	b.listeners = make(map[string]EventHandler)
	b.listenersMu.Unlock()

	topics := b.registry.Active()
	for _, topic := range topics {
		b.registry.Unregister(topic)
	}

	if client == nil {
		return
	}

	for _, session := range client.Sessions() {
		if err := client.Disconnect(ctx, session.Topic, "client reset"); err != nil {
			logger.Warn("⚠️ Отключение сессии при сбросе: %v", err)
		}
	}

	for _, topic := range topics {
		if err := client.PurgeTopic(topic); err != nil && !isKeyNotFound(err) {
			logger.Warn("⚠️ Очистка хранилища при сбросе: %v", err)
		}
	}

	client.Off(EventSessionDeleted)
	client.Off(EventSessionUpdated)
	client.Off(EventSessionExpired)

	if err := client.Close(ctx); err != nil {
		logger.Warn("⚠️ Остановка протокольного клиента: %v", err)
	}

	logger.Info("🛑 Протокольный клиент сброшен")
}

// ForceRecreate - Clear с немедленной повторной инициализацией.
// Применяется для восстановления после системной деградации протокола.
func (b *Broker) ForceRecreate(ctx context.Context) (ProtocolClient, error) {
	b.Clear(ctx)
	return b.GetClient(ctx)
}

// Shutdown закрывает протокольный клиент, не разрывая установленные сессии:
// записи остаются в store и поднимаются восстановителем при следующем старте.
// В отличие от Clear реестр топиков и слушатели не трогаются.
func (b *Broker) Shutdown(ctx context.Context) {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.initErr = nil
	b.mu.Unlock()

	if client == nil {
		return
	}

	if err := client.Close(ctx); err != nil {
		logger.Warn("⚠️ Остановка протокольного клиента: %v", err)
	}
}

// ==================== Статистика ====================

// BrokerStats - снимок состояния брокера для health check
type BrokerStats struct {
	Initialized  bool `json:"initialized"`
	ActiveTopics int  `json:"active_topics"`
	Listeners    int  `json:"listeners"`
}

// Stats возвращает снимок состояния брокера
func (b *Broker) Stats() BrokerStats {
	b.listenersMu.RLock()
	listeners := len(b.listeners)
	b.listenersMu.RUnlock()

	return BrokerStats{
		Initialized:  b.current() != nil,
		ActiveTopics: b.registry.Len(),
		Listeners:    listeners,
	}
}

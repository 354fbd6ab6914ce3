// internal/infrastructure/transport/event_bus/event_bus.go
package events

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"bsc-trading-assistant-bot/pkg/logger"

	"github.com/google/uuid"
)

// EventBus - центральная шина событий
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]EventSubscriber
	middlewares []Middleware
	eventBuffer chan Event
	metrics     *busMetrics
	config      EventBusConfig
	running     bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// EventBusConfig - конфигурация EventBus
type EventBusConfig struct {
	BufferSize    int           `json:"buffer_size"`
	WorkerCount   int           `json:"worker_count"`
	MaxRetries    int           `json:"max_retries"`
	RetryDelay    time.Duration `json:"retry_delay"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableLogging bool          `json:"enable_logging"`
}

// DefaultConfig - конфигурация по умолчанию
var DefaultConfig = EventBusConfig{
	BufferSize:    1000,
	WorkerCount:   5,
	MaxRetries:    3,
	RetryDelay:    100 * time.Millisecond,
	EnableMetrics: true,
	EnableLogging: true,
}

// busMetrics - счетчики доставки, защищены собственным мьютексом
type busMetrics struct {
	mu               sync.RWMutex
	eventsPublished  int64
	eventsProcessed  int64
	eventsFailed     int64
	eventsRetried    int64
	eventsDropped    int64
	processingTime   time.Duration
	subscribersCount map[EventType]int
}

// MetricsSnapshot - снимок метрик шины
type MetricsSnapshot struct {
	EventsPublished  int64             `json:"events_published"`
	EventsProcessed  int64             `json:"events_processed"`
	EventsFailed     int64             `json:"events_failed"`
	EventsRetried    int64             `json:"events_retried"`
	EventsDropped    int64             `json:"events_dropped"`
	ProcessingTime   time.Duration     `json:"processing_time"`
	SubscribersCount map[EventType]int `json:"subscribers_count"`
}

// NewEventBus создает новую шину событий
func NewEventBus(config ...EventBusConfig) *EventBus {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig.WorkerCount
	}

	return &EventBus{
		subscribers: make(map[EventType][]EventSubscriber),
		middlewares: make([]Middleware, 0),
		eventBuffer: make(chan Event, cfg.BufferSize),
		metrics: &busMetrics{
			subscribersCount: make(map[EventType]int),
		},
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Start запускает EventBus
func (b *EventBus) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	for i := 0; i < b.config.WorkerCount; i++ {
		b.wg.Add(1)
		go b.eventWorker(i)
	}

	if b.config.EnableLogging {
		logger.Info("🚀 EventBus запущен с %d обработчиками", b.config.WorkerCount)
	}
}

// Stop останавливает EventBus. События, оставшиеся в буфере, отбрасываются.
func (b *EventBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()

	if b.config.EnableLogging {
		logger.Info("🛑 EventBus остановлен")
	}
}

// Subscribe подписывает обработчик на тип события
func (b *EventBus) Subscribe(eventType EventType, subscriber EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Подписчик должен объявлять этот тип среди обрабатываемых
	found := false
	for _, et := range subscriber.GetSubscribedEvents() {
		if et == eventType {
			found = true
			break
		}
	}

	if !found {
		logger.Warn("⚠️ Подписчик %s не обрабатывает событие %s",
			subscriber.GetName(), eventType)
		return
	}

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)

	b.metrics.mu.Lock()
	b.metrics.subscribersCount[eventType] = len(b.subscribers[eventType])
	b.metrics.mu.Unlock()

	if b.config.EnableLogging {
		logger.Info("✅ %s подписался на %s", subscriber.GetName(), eventType)
	}
}

// Unsubscribe отписывает обработчик от типа события
func (b *EventBus) Unsubscribe(eventType EventType, subscriber EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[eventType]
	if !exists {
		return
	}

	for i, sub := range subscribers {
		if sub == subscriber {
			b.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)

			b.metrics.mu.Lock()
			b.metrics.subscribersCount[eventType] = len(b.subscribers[eventType])
			b.metrics.mu.Unlock()

			if b.config.EnableLogging {
				logger.Info("❌ %s отписался от %s", subscriber.GetName(), eventType)
			}
			return
		}
	}
}

// Publish публикует событие асинхронно.
// При переполненном буфере событие отбрасывается с предупреждением.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()

	if !running {
		return fmt.Errorf("event bus is not running")
	}

	// Заполняем ID и временную метку, если издатель их не выставил
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventBuffer <- event:
		b.metrics.mu.Lock()
		b.metrics.eventsPublished++
		b.metrics.mu.Unlock()

		logger.Debug("📤 Опубликовано событие: %s от %s", event.Type, event.Source)
		return nil
	default:
		b.metrics.mu.Lock()
		b.metrics.eventsDropped++
		b.metrics.mu.Unlock()

		logger.Warn("⚠️ Буфер событий полон, событие отброшено: %s", event.Type)
		return fmt.Errorf("event buffer is full")
	}
}

// PublishSync публикует событие синхронно, минуя буфер
func (b *EventBus) PublishSync(event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.metrics.mu.Lock()
	b.metrics.eventsPublished++
	b.metrics.mu.Unlock()

	return b.processEvent(event)
}

// AddMiddleware добавляет middleware
func (b *EventBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middlewares = append(b.middlewares, middleware)

	if b.config.EnableLogging {
		logger.Info("➕ Добавлен middleware: %T", middleware)
	}
}

// eventWorker - обработчик событий
func (b *EventBus) eventWorker(id int) {
	defer b.wg.Done()

	logger.Debug("🔄 [EventWorker %d] Запущен", id)

	for {
		select {
		case event := <-b.eventBuffer:
			b.processEvent(event)
		case <-b.stopChan:
			logger.Debug("🛑 [EventWorker %d] Остановлен", id)
			return
		}
	}
}

// processEvent обрабатывает одно событие
func (b *EventBus) processEvent(event Event) error {
	startTime := time.Now()

	defer func() {
		b.metrics.mu.Lock()
		b.metrics.processingTime += time.Since(startTime)
		b.metrics.eventsProcessed++
		b.metrics.mu.Unlock()
	}()

	b.mu.RLock()
	subscribers := b.subscribers[event.Type]
	middlewares := b.middlewares
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		logger.Debug("⚠️ Нет подписчиков для события: %s", event.Type)
		return nil
	}

	handler := b.createHandlerChain(subscribers)

	// Оборачиваем обработку в цепочку middleware
	chain := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := chain
		chain = func(event Event) error {
			return mw.Process(event, next)
		}
	}

	return chain(event)
}

// createHandlerChain создает цепочку обработчиков
func (b *EventBus) createHandlerChain(subscribers []EventSubscriber) HandlerFunc {
	return func(event Event) error {
		var lastError error

		for _, subscriber := range subscribers {
			if err := b.handleEventWithRetry(event, subscriber); err != nil {
				lastError = err
				logger.Error("❌ Ошибка обработки события %s подписчиком %s: %v",
					event.Type, subscriber.GetName(), err)
			}
		}

		return lastError
	}
}

// handleEventWithRetry обрабатывает событие с повторными попытками
func (b *EventBus) handleEventWithRetry(event Event, subscriber EventSubscriber) error {
	var err error

	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if attempt > 0 {
			b.metrics.mu.Lock()
			b.metrics.eventsRetried++
			b.metrics.mu.Unlock()

			select {
			case <-time.After(b.config.RetryDelay):
			case <-b.stopChan:
				return err
			}
		}

		err = b.callSubscriber(event, subscriber)
		if err == nil {
			return nil
		}

		logger.Debug("🔄 Повтор %d/%d для %s после ошибки: %v",
			attempt+1, b.config.MaxRetries, subscriber.GetName(), err)
	}

	b.metrics.mu.Lock()
	b.metrics.eventsFailed++
	b.metrics.mu.Unlock()

	return err
}

// callSubscriber вызывает обработчик, перехватывая панику
func (b *EventBus) callSubscriber(event Event, subscriber EventSubscriber) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("⚠️ Паника в подписчике %s восстановлена: %v\n%s",
				subscriber.GetName(), r, debug.Stack())
			err = fmt.Errorf("subscriber %s panicked: %v", subscriber.GetName(), r)
		}
	}()

	return subscriber.HandleEvent(event)
}

// GetMetrics возвращает снимок метрик
func (b *EventBus) GetMetrics() MetricsSnapshot {
	b.metrics.mu.RLock()
	defer b.metrics.mu.RUnlock()

	counts := make(map[EventType]int, len(b.metrics.subscribersCount))
	for eventType, count := range b.metrics.subscribersCount {
		counts[eventType] = count
	}

	return MetricsSnapshot{
		EventsPublished:  b.metrics.eventsPublished,
		EventsProcessed:  b.metrics.eventsProcessed,
		EventsFailed:     b.metrics.eventsFailed,
		EventsRetried:    b.metrics.eventsRetried,
		EventsDropped:    b.metrics.eventsDropped,
		ProcessingTime:   b.metrics.processingTime,
		SubscribersCount: counts,
	}
}

// GetSubscriberCount возвращает количество подписчиков
func (b *EventBus) GetSubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[eventType])
}

// IsRunning возвращает true если EventBus запущен
func (b *EventBus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.running
}

// Name возвращает имя сервиса
func (b *EventBus) Name() string {
	return "EventBus"
}

// HealthCheck проверяет здоровье сервиса
func (b *EventBus) HealthCheck() bool {
	if !b.IsRunning() {
		return false
	}

	select {
	case <-b.stopChan:
		return false
	default:
		return true
	}
}

// GetMetricsMap возвращает метрики в виде map для health-эндпоинта
func (b *EventBus) GetMetricsMap() map[string]interface{} {
	metrics := b.GetMetrics()
	return map[string]interface{}{
		"events_published": metrics.EventsPublished,
		"events_processed": metrics.EventsProcessed,
		"events_failed":    metrics.EventsFailed,
		"events_retried":   metrics.EventsRetried,
		"events_dropped":   metrics.EventsDropped,
		"processing_time":  metrics.ProcessingTime.String(),
		"subscribers":      metrics.SubscribersCount,
	}
}

// internal/infrastructure/transport/event_bus/factory.go
package events

import (
	"time"

	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/pkg/logger"
)

// Factory - фабрика для создания EventBus
type Factory struct{}

// NewEventBusFromConfig создает EventBus из конфигурации
func (f *Factory) NewEventBusFromConfig(cfg *config.Config) *EventBus {
	eventBusConfig := EventBusConfig{
		BufferSize:    cfg.EventBus.BufferSize,
		WorkerCount:   cfg.EventBus.WorkerCount,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		EnableMetrics: cfg.EventBus.EnableMetrics,
		EnableLogging: cfg.EventBus.EnableLogging,
	}

	bus := NewEventBus(eventBusConfig)

	// Middleware в зависимости от конфигурации
	if cfg.Logging.DebugMode {
		bus.AddMiddleware(NewLoggingMiddleware())
	}

	bus.AddMiddleware(NewValidationMiddleware())

	if cfg.EventBus.EnableMetrics {
		bus.AddMiddleware(NewMetricsMiddleware(0))
	}

	return bus
}

// RegisterDebugSubscribers регистрирует консольного подписчика для отладки
func (f *Factory) RegisterDebugSubscribers(bus *EventBus) {
	consoleLogger := NewConsoleLoggerSubscriber()
	for _, eventType := range consoleLogger.GetSubscribedEvents() {
		bus.Subscribe(eventType, consoleLogger)
	}

	logger.Info("📋 Консольный подписчик событий зарегистрирован")
}

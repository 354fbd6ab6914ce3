// internal/infrastructure/transport/event_bus/middleware.go
package events

import (
	"fmt"
	"time"

	"bsc-trading-assistant-bot/pkg/logger"
)

// LoggingMiddleware логирует прохождение событий через шину
type LoggingMiddleware struct{}

// NewLoggingMiddleware создает middleware логирования
func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{}
}

// Process логирует событие до и после обработки
func (m *LoggingMiddleware) Process(event Event, next HandlerFunc) error {
	startTime := time.Now()
	id := shortID(event.ID)

	logger.Debug("📨 [%s] Событие %s от %s", id, event.Type, event.Source)

	err := next(event)

	duration := time.Since(startTime)
	if err != nil {
		logger.Warn("📨 [%s] Событие %s обработано с ошибкой за %v: %v",
			id, event.Type, duration, err)
	} else {
		logger.Debug("📨 [%s] Событие %s обработано за %v", id, event.Type, duration)
	}

	return err
}

// shortID возвращает первые 8 символов идентификатора события
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ValidationMiddleware отбрасывает некорректные события
type ValidationMiddleware struct{}

// NewValidationMiddleware создает middleware валидации
func NewValidationMiddleware() *ValidationMiddleware {
	return &ValidationMiddleware{}
}

// Process проверяет обязательные поля события
func (m *ValidationMiddleware) Process(event Event, next HandlerFunc) error {
	if event.Type == "" {
		return fmt.Errorf("event type is empty")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is empty")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is not set")
	}

	return next(event)
}

// MetricsMiddleware следит за временем обработки событий
type MetricsMiddleware struct {
	slowThreshold time.Duration
}

// NewMetricsMiddleware создает middleware метрик.
// Обработка дольше slowThreshold логируется как предупреждение.
func NewMetricsMiddleware(slowThreshold time.Duration) *MetricsMiddleware {
	if slowThreshold <= 0 {
		slowThreshold = 500 * time.Millisecond
	}
	return &MetricsMiddleware{slowThreshold: slowThreshold}
}

// Process замеряет длительность обработки
func (m *MetricsMiddleware) Process(event Event, next HandlerFunc) error {
	startTime := time.Now()

	err := next(event)

	if duration := time.Since(startTime); duration > m.slowThreshold {
		logger.Warn("🐌 Медленная обработка события %s: %v (порог %v)",
			event.Type, duration, m.slowThreshold)
	}

	return err
}

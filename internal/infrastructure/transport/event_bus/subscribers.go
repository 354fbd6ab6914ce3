// internal/infrastructure/transport/event_bus/subscribers.go
package events

import (
	"bsc-trading-assistant-bot/pkg/logger"
)

// BaseSubscriber - базовая реализация подписчика
type BaseSubscriber struct {
	name             string
	subscribedEvents []EventType
	handler          func(Event) error
}

// NewBaseSubscriber создает нового подписчика
func NewBaseSubscriber(name string, events []EventType, handler func(Event) error) *BaseSubscriber {
	return &BaseSubscriber{
		name:             name,
		subscribedEvents: events,
		handler:          handler,
	}
}

// HandleEvent обрабатывает событие
func (s *BaseSubscriber) HandleEvent(event Event) error {
	return s.handler(event)
}

// GetName возвращает имя подписчика
func (s *BaseSubscriber) GetName() string {
	return s.name
}

// GetSubscribedEvents возвращает типы событий
func (s *BaseSubscriber) GetSubscribedEvents() []EventType {
	return s.subscribedEvents
}

// ConsoleLoggerSubscriber - подписчик для логирования событий кошелька в консоль.
// Используется в режиме отладки вместо Telegram-уведомлений.
type ConsoleLoggerSubscriber struct {
	BaseSubscriber
}

func NewConsoleLoggerSubscriber() *ConsoleLoggerSubscriber {
	return &ConsoleLoggerSubscriber{
		BaseSubscriber: *NewBaseSubscriber(
			"console_logger",
			[]EventType{
				EventWalletConnected,
				EventWalletDisconnected,
				EventWalletSessionExpired,
				EventWalletPairingFailed,
				EventWalletRestored,
				EventError,
			},
			func(event Event) error {
				payload, ok := event.WalletPayload()
				if !ok {
					logger.Info("📋 Событие %s: %v", event.Type, event.Data)
					return nil
				}

				switch event.Type {
				case EventWalletConnected:
					logger.Info("🔗 Кошелек подключен: user=%d address=%s", payload.UserID, payload.Address)
				case EventWalletDisconnected:
					logger.Info("🔌 Кошелек отключен: user=%d причина=%s", payload.UserID, payload.Reason)
				case EventWalletSessionExpired:
					logger.Info("⏰ Сессия истекла: user=%d topic=%s", payload.UserID, payload.Topic)
				case EventWalletPairingFailed:
					logger.Info("⚠️ Пейринг не удался: user=%d причина=%s", payload.UserID, payload.Reason)
				case EventWalletRestored:
					logger.Info("♻️ Сессия восстановлена: user=%d address=%s", payload.UserID, payload.Address)
				default:
					logger.Info("📋 Событие %s: user=%d", event.Type, payload.UserID)
				}
				return nil
			},
		),
	}
}

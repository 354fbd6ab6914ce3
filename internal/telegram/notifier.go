// internal/telegram/notifier.go
package telegram

import (
	"context"
	"fmt"
	"time"

	"bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres/models"
	events "bsc-trading-assistant-bot/internal/infrastructure/transport/event_bus"
	"bsc-trading-assistant-bot/pkg/logger"
)

// lookupTimeout ограничивает поиск чата пользователя
const lookupTimeout = 5 * time.Second

// UserLookup разрешает Telegram ID в профиль пользователя
type UserLookup interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

// Notifier пересылает события жизненного цикла сессии пользователю в чат
type Notifier struct {
	sender Sender
	users  UserLookup
}

// NewNotifier создает подписчика уведомлений о сессиях
func NewNotifier(sender Sender, users UserLookup) *Notifier {
	return &Notifier{sender: sender, users: users}
}

// HandleEvent пересылает событие кошелька в чат пользователя
func (n *Notifier) HandleEvent(event events.Event) error {
	payload, ok := event.WalletPayload()
	if !ok {
		return fmt.Errorf("unexpected payload in event %s", event.Type)
	}

	text := messageFor(event.Type, payload)
	if text == "" {
		logger.Debug("Событие %s не требует уведомления", event.Type)
		return nil
	}

	return n.sender.SendMessage(n.chatFor(payload.UserID), text)
}

// GetName возвращает имя подписчика
func (n *Notifier) GetName() string {
	return "telegram_notifier"
}

// GetSubscribedEvents возвращает типы событий подписчика
func (n *Notifier) GetSubscribedEvents() []events.EventType {
	return []events.EventType{
		events.EventWalletConnected,
		events.EventWalletDisconnected,
		events.EventWalletSessionExpired,
		events.EventWalletPairingFailed,
		events.EventWalletRestored,
	}
}

// chatFor возвращает чат пользователя. В личном чате chat_id совпадает
// с Telegram ID, поэтому при недоступном профиле шлем напрямую.
func (n *Notifier) chatFor(userID int64) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	user, err := n.users.GetByTelegramID(ctx, userID)
	if err != nil {
		logger.Warn("⚠️ Поиск чата пользователя %d: %v", userID, err)
		return userID
	}
	if user == nil || user.ChatID == 0 {
		return userID
	}
	return user.ChatID
}

// messageFor строит текст уведомления для события
func messageFor(eventType events.EventType, p events.WalletEvent) string {
	switch eventType {
	case events.EventWalletConnected:
		return fmt.Sprintf("✅ *Кошелек подключен*\n📍 Адрес: `%s`", p.Address)
	case events.EventWalletRestored:
		return fmt.Sprintf("♻️ Сессия кошелька восстановлена\n📍 Адрес: `%s`", p.Address)
	case events.EventWalletDisconnected:
		if p.Reason == "user disconnect" {
			return "🔌 Кошелек отключен"
		}
		return "🔌 Сессия кошелька завершена. Подключитесь заново: /connect"
	case events.EventWalletSessionExpired:
		return "⏰ Сессия кошелька истекла. Подключитесь заново: /connect"
	case events.EventWalletPairingFailed:
		return fmt.Sprintf("❌ Подключение не удалось: %s\nПопробуйте еще раз: /connect", p.Reason)
	}
	return ""
}

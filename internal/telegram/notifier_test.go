// internal/telegram/notifier_test.go
package telegram

import (
	"context"
	"errors"
	"testing"

	"bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres/models"
	events "bsc-trading-assistant-bot/internal/infrastructure/transport/event_bus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLookup отдает заранее заданный профиль
type fakeLookup struct {
	user *models.User
	err  error
}

func (f *fakeLookup) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return f.user, f.err
}

// TestNotifierConnected проверяет уведомление о подключении в чат из профиля
func TestNotifierConnected(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n := NewNotifier(sender, &fakeLookup{user: &models.User{TelegramID: 100, ChatID: 555}})

	event := events.NewWalletEvent(events.EventWalletConnected, "test", events.WalletEvent{
		UserID:  100,
		Address: "0xAbCdEf12",
	})
	require.NoError(t, n.HandleEvent(event))

	messages := sender.sent()
	require.Len(t, messages, 1)
	assert.Equal(t, int64(555), messages[0].chatID)
	assert.Contains(t, messages[0].text, "подключен")
	assert.Contains(t, messages[0].text, "0xAbCdEf12")
}

// TestNotifierFallbackChat проверяет отправку напрямую по Telegram ID без профиля
func TestNotifierFallbackChat(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n := NewNotifier(sender, &fakeLookup{err: errors.New("db down")})

	event := events.NewWalletEvent(events.EventWalletSessionExpired, "test", events.WalletEvent{
		UserID: 100,
	})
	require.NoError(t, n.HandleEvent(event))

	messages := sender.sent()
	require.Len(t, messages, 1)
	assert.Equal(t, int64(100), messages[0].chatID)
	assert.Contains(t, messages[0].text, "истекла")
}

// TestNotifierDisconnectedReasons проверяет разные тексты по причине разрыва
func TestNotifierDisconnectedReasons(t *testing.T) {
	t.Parallel()

	ownText := messageFor(events.EventWalletDisconnected, events.WalletEvent{
		UserID: 100,
		Reason: "user disconnect",
	})
	assert.Equal(t, "🔌 Кошелек отключен", ownText)

	foreignText := messageFor(events.EventWalletDisconnected, events.WalletEvent{
		UserID: 100,
		Reason: "topic unknown on ping",
	})
	assert.Contains(t, foreignText, "/connect")
}

// TestNotifierPairingFailed проверяет передачу причины отказа пользователю
func TestNotifierPairingFailed(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n := NewNotifier(sender, &fakeLookup{})

	event := events.NewWalletEvent(events.EventWalletPairingFailed, "test", events.WalletEvent{
		UserID: 100,
		Reason: "подтверждение не получено вовремя",
	})
	require.NoError(t, n.HandleEvent(event))

	messages := sender.sent()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].text, "подтверждение не получено вовремя")
}

// TestNotifierBadPayload проверяет отказ на событии с чужими данными
func TestNotifierBadPayload(t *testing.T) {
	t.Parallel()

	n := NewNotifier(&fakeSender{}, &fakeLookup{})

	err := n.HandleEvent(events.Event{
		Type:   events.EventWalletConnected,
		Source: "test",
		Data:   42,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected payload")
}

// TestNotifierSubscriptions проверяет полный список подписок
func TestNotifierSubscriptions(t *testing.T) {
	t.Parallel()

	n := NewNotifier(&fakeSender{}, &fakeLookup{})
	subscribed := n.GetSubscribedEvents()

	assert.Len(t, subscribed, 5)
	assert.Contains(t, subscribed, events.EventWalletRestored)
	assert.Contains(t, subscribed, events.EventWalletPairingFailed)
}

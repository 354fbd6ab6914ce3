// internal/core/users/subscriber.go
package users

import (
	"context"
	"fmt"
	"time"

	events "bsc-trading-assistant-bot/internal/infrastructure/transport/event_bus"
	"bsc-trading-assistant-bot/pkg/logger"
)

// walletLinkTimeout ограничивает обработку одного события
const walletLinkTimeout = 5 * time.Second

// WalletLinkSubscriber синхронизирует привязку кошелька в базе с жизненным
// циклом сессии: подключение и восстановление записывают адрес, разрыв и
// истечение снимают привязку.
type WalletLinkSubscriber struct {
	service *Service
}

// NewWalletLinkSubscriber создает подписчика привязки кошельков
func NewWalletLinkSubscriber(service *Service) *WalletLinkSubscriber {
	return &WalletLinkSubscriber{service: service}
}

// HandleEvent обрабатывает событие кошелька
func (s *WalletLinkSubscriber) HandleEvent(event events.Event) error {
	payload, ok := event.WalletPayload()
	if !ok {
		return fmt.Errorf("unexpected payload in event %s", event.Type)
	}

	ctx, cancel := context.WithTimeout(context.Background(), walletLinkTimeout)
	defer cancel()

	switch event.Type {
	case events.EventWalletConnected, events.EventWalletRestored:
		return s.service.LinkWallet(ctx, payload.UserID, payload.Address)
	case events.EventWalletDisconnected, events.EventWalletSessionExpired:
		return s.service.UnlinkWallet(ctx, payload.UserID)
	default:
		logger.Debug("Событие %s не требует синхронизации кошелька", event.Type)
		return nil
	}
}

// GetName возвращает имя подписчика
func (s *WalletLinkSubscriber) GetName() string {
	return "users_wallet_link"
}

// GetSubscribedEvents возвращает типы событий подписчика
func (s *WalletLinkSubscriber) GetSubscribedEvents() []events.EventType {
	return []events.EventType{
		events.EventWalletConnected,
		events.EventWalletRestored,
		events.EventWalletDisconnected,
		events.EventWalletSessionExpired,
	}
}

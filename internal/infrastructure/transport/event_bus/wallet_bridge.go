// internal/infrastructure/transport/event_bus/wallet_bridge.go
package events

import (
	"bsc-trading-assistant-bot/internal/core/walletsession"
	"bsc-trading-assistant-bot/pkg/logger"
)

const bridgeSource = "walletsession"

// WalletBridge транслирует уведомления жизненного цикла сессий в шину событий.
// Менеджер сессий знает только контракт Notifier, подписчики шины получают
// типизированные wallet.* события.
type WalletBridge struct {
	bus *EventBus
}

var _ walletsession.Notifier = (*WalletBridge)(nil)

// NewWalletBridge создает мост между менеджером сессий и шиной
func NewWalletBridge(bus *EventBus) *WalletBridge {
	return &WalletBridge{bus: bus}
}

// SessionConnected публикует установление сессии
func (b *WalletBridge) SessionConnected(userID int64, address string) {
	b.publish(NewWalletEvent(EventWalletConnected, bridgeSource, WalletEvent{UserID: userID, Address: address}))
}

// SessionDisconnected публикует разрыв сессии
func (b *WalletBridge) SessionDisconnected(userID int64, reason string) {
	b.publish(NewWalletEvent(EventWalletDisconnected, bridgeSource, WalletEvent{UserID: userID, Reason: reason}))
}

// SessionExpired публикует истечение сессии
func (b *WalletBridge) SessionExpired(userID int64) {
	b.publish(NewWalletEvent(EventWalletSessionExpired, bridgeSource, WalletEvent{UserID: userID}))
}

// SessionRestored публикует восстановление сессии при старте
func (b *WalletBridge) SessionRestored(userID int64, address string) {
	b.publish(NewWalletEvent(EventWalletRestored, bridgeSource, WalletEvent{UserID: userID, Address: address}))
}

// PairingFailed публикует неудачный пейринг
func (b *WalletBridge) PairingFailed(userID int64, reason string) {
	b.publish(NewWalletEvent(EventWalletPairingFailed, bridgeSource, WalletEvent{UserID: userID, Reason: reason}))
}

func (b *WalletBridge) publish(event Event) {
	if err := b.bus.Publish(event); err != nil {
		logger.Warn("⚠️ Событие %s не опубликовано: %v", event.Type, err)
	}
}

// internal/infrastructure/transport/event_bus/event.go
package events

import (
	"time"
)

// EventType - тип события
type EventType string

// Типы событий жизненного цикла кошелек-сессий
const (
	EventWalletConnected      EventType = "wallet.connected"
	EventWalletDisconnected   EventType = "wallet.disconnected"
	EventWalletSessionExpired EventType = "wallet.session_expired"
	EventWalletPairingFailed  EventType = "wallet.pairing_failed"
	EventWalletRestored       EventType = "wallet.restored"
)

// Служебные типы событий
const (
	EventServiceStarted EventType = "service.started"
	EventServiceStopped EventType = "service.stopped"
	EventError          EventType = "system.error"
)

// Event - структура события
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// WalletEvent - полезная нагрузка событий жизненного цикла кошелька
type WalletEvent struct {
	UserID  int64  `json:"user_id"`
	Topic   string `json:"topic,omitempty"`
	Address string `json:"address,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// NewWalletEvent собирает событие жизненного цикла кошелька
func NewWalletEvent(eventType EventType, source string, payload WalletEvent) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Data:      payload,
		Timestamp: time.Now(),
	}
}

// WalletPayload извлекает полезную нагрузку кошелек-события
func (e Event) WalletPayload() (WalletEvent, bool) {
	payload, ok := e.Data.(WalletEvent)
	return payload, ok
}

// EventSubscriber - интерфейс подписчика
type EventSubscriber interface {
	HandleEvent(event Event) error
	GetName() string
	GetSubscribedEvents() []EventType
}

// Middleware - промежуточное ПО для обработки событий
type Middleware interface {
	Process(event Event, next HandlerFunc) error
}

// HandlerFunc - функция обработки события
type HandlerFunc func(event Event) error

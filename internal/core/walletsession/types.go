// internal/core/walletsession/types.go
package walletsession

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Session - представление живой сессии, которую отслеживает протокольный клиент.
// Accounts приходят в формате CAIP-10: "eip155:56:0x...".
type Session struct {
	Topic    string    `json:"topic"`
	Accounts []string  `json:"accounts"`
	Expiry   time.Time `json:"expiry"` // нулевое значение = срок неизвестен
}

// Address возвращает адрес контрагента из списка аккаунтов сессии.
// Берется первый аккаунт, при наличии предпочитается целевая сеть.
func (s Session) Address(chainID string) string {
	if len(s.Accounts) == 0 {
		return ""
	}
	for _, account := range s.Accounts {
		if chainID != "" && strings.HasPrefix(account, chainID+":") {
			return AddressFromAccount(account)
		}
	}
	return AddressFromAccount(s.Accounts[0])
}

// AddressFromAccount извлекает адрес из CAIP-10 строки "namespace:chain:address"
func AddressFromAccount(account string) string {
	parts := strings.Split(account, ":")
	return parts[len(parts)-1]
}

// Proposal - заявка на пейринг: целевая сеть и фиксированный набор возможностей
type Proposal struct {
	ChainID string   `json:"chain_id"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ApprovalResult - итог ожидания подтверждения пейринга кошельком
type ApprovalResult struct {
	Session Session
	Err     error
}

// PairingRequest - запущенный пейринг: URI для кошелька и канал подтверждения
type PairingRequest struct {
	URI      string
	Approval <-chan ApprovalResult
}

// ProtocolClient - контракт протокольного клиента relay-сети.
// Реализация живет в infrastructure, ядро работает только через этот интерфейс.
type ProtocolClient interface {
	// Connect запускает новый пейринг и возвращает URI + канал подтверждения
	Connect(ctx context.Context, proposal Proposal) (*PairingRequest, error)

	// Sessions возвращает все живые сессии, известные клиенту
	Sessions() []Session

	// Disconnect завершает сессию по топику
	Disconnect(ctx context.Context, topic string, reason string) error

	// Ping отправляет probe живости по топику
	Ping(ctx context.Context, topic string) error

	// Extend продлевает срок действия сессии
	Extend(ctx context.Context, topic string) error

	// Request выполняет JSON-RPC вызов к кошельку поверх установленной сессии
	Request(ctx context.Context, topic string, method string, params interface{}) (json.RawMessage, error)

	// SessionMeta читает сериализованные метаданные сессии из хранилища клиента
	SessionMeta(topic string) ([]byte, error)

	// PurgeTopic удаляет все данные клиента, привязанные к топику
	PurgeTopic(topic string) error

	// On/Off - подписка на события жизненного цикла сессий
	On(kind EventKind, handler EventHandler)
	Off(kind EventKind)

	// Close полностью останавливает клиент: транспорт, подписки, фоновые циклы
	Close(ctx context.Context) error
}

// SessionState - состояние supervisor-а для конкретного пользователя
type SessionState string

const (
	StateDisconnected     SessionState = "disconnected"
	StatePairing          SessionState = "pairing"
	StateAwaitingApproval SessionState = "awaiting_approval"
	StateConnected        SessionState = "connected"
	StateExpiring         SessionState = "expiring"
)

// validTransitions - допустимые переходы состояний сессии
var validTransitions = map[SessionState][]SessionState{
	StateDisconnected:     {StatePairing},
	StatePairing:          {StateAwaitingApproval, StateDisconnected},
	StateAwaitingApproval: {StateConnected, StatePairing, StateDisconnected},
	StateConnected:        {StateExpiring, StateDisconnected},
	StateExpiring:         {StateConnected, StateDisconnected},
}

// canTransition проверяет допустимость перехода между состояниями
func canTransition(from, to SessionState) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InMemorySession - сессия пользователя в памяти процесса.
// Принадлежит исключительно supervisor-у этого пользователя.
type InMemorySession struct {
	UserID     int64
	Client     ProtocolClient
	Topic      string
	Address    string
	PendingURI string
	State      SessionState

	keepalive *keepaliveLoop
}

// Config - тюнинг жизненного цикла сессий
type Config struct {
	// Целевая сеть и набор возможностей для пейринга
	ChainID string
	Methods []string
	Events  []string

	KeepaliveInterval   time.Duration // интервал keepalive-цикла
	ExpiryWarningWindow time.Duration // окно до истечения, в котором продлеваем сессию
	PairingTimeout      time.Duration // максимальное ожидание подтверждения пейринга
	RetentionWindow     time.Duration // срок хранения записей в store
}

// withDefaults подставляет production-значения вместо нулевых полей
func (c Config) withDefaults() Config {
	if c.ChainID == "" {
		c.ChainID = "eip155:56"
	}
	if len(c.Methods) == 0 {
		c.Methods = []string{"eth_sendTransaction", "personal_sign", "eth_signTypedData_v4"}
	}
	if len(c.Events) == 0 {
		c.Events = []string{"accountsChanged", "chainChanged"}
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 5 * time.Minute
	}
	if c.ExpiryWarningWindow <= 0 {
		c.ExpiryWarningWindow = 1 * time.Hour
	}
	if c.PairingTimeout <= 0 {
		c.PairingTimeout = 5 * time.Minute
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = 7 * 24 * time.Hour
	}
	return c
}

// Notifier - получатель уведомлений о жизненном цикле сессий (обычно шина событий)
type Notifier interface {
	SessionConnected(userID int64, address string)
	SessionDisconnected(userID int64, reason string)
	SessionExpired(userID int64)
	SessionRestored(userID int64, address string)
	PairingFailed(userID int64, reason string)
}

// Metrics - счетчики жизненного цикла сессий
type Metrics interface {
	PairingResult(result string)
	SessionRestored()
	SessionInvalidated()
	KeepaliveFailure()
	SetActiveSessions(count int)
}

type noopNotifier struct{}

func (noopNotifier) SessionConnected(int64, string)    {}
func (noopNotifier) SessionDisconnected(int64, string) {}
func (noopNotifier) SessionExpired(int64)              {}
func (noopNotifier) SessionRestored(int64, string)     {}
func (noopNotifier) PairingFailed(int64, string)       {}

type noopMetrics struct{}

func (noopMetrics) PairingResult(string)  {}
func (noopMetrics) SessionRestored()      {}
func (noopMetrics) SessionInvalidated()   {}
func (noopMetrics) KeepaliveFailure()     {}
func (noopMetrics) SetActiveSessions(int) {}

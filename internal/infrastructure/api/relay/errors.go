// internal/infrastructure/api/relay/errors.go
package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected - операция до установления транспорта
	ErrNotConnected = errors.New("relay: transport is not connected")

	// ErrClosed - клиент уже остановлен
	ErrClosed = errors.New("relay: client is closed")

	// ErrProposalExpired - кошелек не ответил на предложение пейринга
	// за его время жизни
	ErrProposalExpired = errors.New("relay: pairing proposal expired")

	// ErrFingerprintMismatch - отпечаток предложения в ответе кошелька
	// не совпал с отправленным
	ErrFingerprintMismatch = errors.New("relay: proposal fingerprint mismatch")
)

// TopicError - операция ссылается на топик, которого нет в реестрах клиента.
// Контракт TopicUnknown() распознается на границе брокера сессий: выше него
// этот тип никогда не виден.
type TopicError struct {
	Op    string
	Topic string
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("relay: %s: no matching key, session topic doesn't exist: %s", e.Op, e.Topic)
}

// TopicUnknown помечает ошибку классом "топик неизвестен"
func (e *TopicError) TopicUnknown() bool { return true }

// StorageError - ключ отсутствует в хранилище клиента.
// Контракт NotFound() распознается на границе брокера.
type StorageError struct {
	Key string
}

func (e *StorageError) Error() string {
	return "relay: storage: key not found: " + e.Key
}

// NotFound помечает ошибку классом "ключ отсутствует"
func (e *StorageError) NotFound() bool { return true }

// RPCError - кошелек или relay вернули ошибку на запрос
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay: %s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// RequestTimeoutError - ответ на запрос не пришел за отведенное время
type RequestTimeoutError struct {
	Method string
}

func (e *RequestTimeoutError) Error() string {
	return "relay: request timed out: " + e.Method
}

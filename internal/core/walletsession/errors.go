// internal/core/walletsession/errors.go
package walletsession

import "errors"

// Таксономия ошибок жизненного цикла сессий.
// Ошибки протокольного клиента нормализуются на границе брокера:
// выше брокера никогда не видны нативные типы ошибок relay-библиотеки.
var (
	// ErrInitializationTimeout - брокер не дождался инициализации клиента.
	// Ошибка запроса, не процесса: следующий вызов начнет инициализацию заново.
	ErrInitializationTimeout = errors.New("walletsession: protocol client initialization timed out")

	// ErrPairingTimeout - кошелек не подтвердил пейринг за отведенное время
	ErrPairingTimeout = errors.New("walletsession: pairing approval timed out")

	// ErrStaleSession - сохраненная запись не прошла правило восстановления
	ErrStaleSession = errors.New("walletsession: persisted session failed validation")

	// ErrTopicUnknown - операция ссылается на топик, которого нет в живом наборе
	// сессий. Всегда трактуется как "сессия завершена", никогда не фатальна.
	ErrTopicUnknown = errors.New("walletsession: topic is not tracked by the protocol client")

	// ErrNoSession - у пользователя нет активной сессии
	ErrNoSession = errors.New("walletsession: no active session for user")

	// ErrRecordNotFound - в store нет записи для пользователя
	ErrRecordNotFound = errors.New("walletsession: session record not found")
)

// topicUnknownError - поведенческий признак нативной ошибки клиента
// "топик не отслеживается"
type topicUnknownError interface {
	TopicUnknown() bool
}

// notFoundError - поведенческий признак нативной ошибки клиента
// "ключ отсутствует в хранилище"
type notFoundError interface {
	NotFound() bool
}

// IsTopicUnknown распознает ошибки класса "топик неизвестен" - как
// нормализованный ErrTopicUnknown, так и нативные ошибки клиента
func IsTopicUnknown(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTopicUnknown) {
		return true
	}
	var tu topicUnknownError
	return errors.As(err, &tu) && tu.TopicUnknown()
}

// isKeyNotFound распознает нативную ошибку клиента "ключ не найден".
// Отсутствие ключа - штатное состояние (сессии не было или уже вычищена),
// на границе брокера оно превращается в "значения нет", а не в ошибку.
func isKeyNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf notFoundError
	return errors.As(err, &nf) && nf.NotFound()
}

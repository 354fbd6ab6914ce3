// internal/core/walletsession/events.go
package walletsession

// EventKind - вид события жизненного цикла сессии
type EventKind int

const (
	EventSessionDeleted EventKind = iota
	EventSessionUpdated
	EventSessionExpired
)

func (k EventKind) String() string {
	switch k {
	case EventSessionDeleted:
		return "session_delete"
	case EventSessionUpdated:
		return "session_update"
	case EventSessionExpired:
		return "session_expire"
	default:
		return "unknown"
	}
}

// Event - закрытое множество событий жизненного цикла.
// Payload relay-протокола декодируется в эти типы один раз на границе брокера,
// дальше по коду событие не разбирается ad hoc.
type Event interface {
	Kind() EventKind
	SessionTopic() string
}

// EventHandler - обработчик событий жизненного цикла
type EventHandler func(Event)

// SessionDeleted - контрагент или relay завершили сессию
type SessionDeleted struct {
	Topic  string
	Reason string
}

func (e SessionDeleted) Kind() EventKind      { return EventSessionDeleted }
func (e SessionDeleted) SessionTopic() string { return e.Topic }

// SessionUpdated - у сессии изменились namespaces/аккаунты.
// Только логируется: сроки перечитываются на следующем keepalive-тике,
// push-payload не считается полным.
type SessionUpdated struct {
	Topic    string
	Accounts []string
}

func (e SessionUpdated) Kind() EventKind      { return EventSessionUpdated }
func (e SessionUpdated) SessionTopic() string { return e.Topic }

// SessionExpired - срок сессии истек на стороне протокола
type SessionExpired struct {
	Topic string
}

func (e SessionExpired) Kind() EventKind      { return EventSessionExpired }
func (e SessionExpired) SessionTopic() string { return e.Topic }

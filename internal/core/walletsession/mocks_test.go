// internal/core/walletsession/mocks_test.go
package walletsession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ============ Ошибки в стиле relay-клиента ============

// relayTopicErr имитирует нативную ошибку клиента "топик не отслеживается"
type relayTopicErr struct{ topic string }

func (e *relayTopicErr) Error() string      { return "no matching key: session topic doesn't exist: " + e.topic }
func (e *relayTopicErr) TopicUnknown() bool { return true }

// relayMissingErr имитирует нативную ошибку клиента "ключ отсутствует"
type relayMissingErr struct{ key string }

func (e *relayMissingErr) Error() string  { return "storage: key not found: " + e.key }
func (e *relayMissingErr) NotFound() bool { return true }

// ============ Fake ProtocolClient ============

// fakeClient - протокольный клиент в памяти: живой набор сессий,
// хранилище метаданных и ручное управление итогом пейринга
type fakeClient struct {
	mu       sync.Mutex
	sessions map[string]Session
	meta     map[string][]byte
	handlers map[EventKind]EventHandler
	pending  []chan ApprovalResult

	connectErr error
	pingErr    map[string]error
	extendErr  map[string]error

	connects    int
	disconnects []string
	purged      []string
	pinged      []string
	extended    []string
	closed      bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		sessions:  make(map[string]Session),
		meta:      make(map[string][]byte),
		handlers:  make(map[EventKind]EventHandler),
		pingErr:   make(map[string]error),
		extendErr: make(map[string]error),
	}
}

func (f *fakeClient) Connect(ctx context.Context, proposal Proposal) (*PairingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connectErr != nil {
		return nil, f.connectErr
	}

	f.connects++
	approval := make(chan ApprovalResult, 1)
	f.pending = append(f.pending, approval)
	return &PairingRequest{
		URI:      fmt.Sprintf("wc:pairing-%d@2?relay-protocol=irn&symKey=deadbeef", f.connects),
		Approval: approval,
	}, nil
}

// approve подтверждает последний запущенный пейринг: сессия попадает
// в живой набор и уходит в канал подтверждения
func (f *fakeClient) approve(session Session) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[session.Topic] = session
	approval := f.pending[len(f.pending)-1]
	approval <- ApprovalResult{Session: session}
}

// reject отклоняет последний запущенный пейринг
func (f *fakeClient) reject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	approval := f.pending[len(f.pending)-1]
	approval <- ApprovalResult{Err: err}
}

func (f *fakeClient) Sessions() []Session {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

func (f *fakeClient) Disconnect(ctx context.Context, topic, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.sessions[topic]; !ok {
		return &relayTopicErr{topic: topic}
	}
	delete(f.sessions, topic)
	f.disconnects = append(f.disconnects, topic)
	return nil
}

func (f *fakeClient) Ping(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.pingErr[topic]; err != nil {
		return err
	}
	if _, ok := f.sessions[topic]; !ok {
		return &relayTopicErr{topic: topic}
	}
	f.pinged = append(f.pinged, topic)
	return nil
}

func (f *fakeClient) Extend(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.extendErr[topic]; err != nil {
		return err
	}
	session, ok := f.sessions[topic]
	if !ok {
		return &relayTopicErr{topic: topic}
	}
	session.Expiry = session.Expiry.Add(7 * 24 * time.Hour)
	f.sessions[topic] = session
	f.extended = append(f.extended, topic)
	return nil
}

func (f *fakeClient) Request(ctx context.Context, topic, method string, params interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.sessions[topic]; !ok {
		return nil, &relayTopicErr{topic: topic}
	}
	return json.RawMessage(`"0x0"`), nil
}

func (f *fakeClient) SessionMeta(topic string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.meta[topic]
	if !ok {
		return nil, &relayMissingErr{key: topic}
	}
	return data, nil
}

func (f *fakeClient) PurgeTopic(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.meta, topic)
	f.purged = append(f.purged, topic)
	return nil
}

func (f *fakeClient) On(kind EventKind, handler EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = handler
}

func (f *fakeClient) Off(kind EventKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, kind)
}

func (f *fakeClient) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// emit доставляет событие подписчику так же, как это делает read-loop клиента
func (f *fakeClient) emit(event Event) {
	f.mu.Lock()
	handler := f.handlers[event.Kind()]
	f.mu.Unlock()

	if handler != nil {
		handler(event)
	}
}

// addSession кладет сессию в живой набор, минуя пейринг
func (f *fakeClient) addSession(session Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.Topic] = session
}

// removeSession выкидывает сессию из живого набора, имитируя потерю на relay
func (f *fakeClient) removeSession(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, topic)
}

func (f *fakeClient) hasSession(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[topic]
	return ok
}

func (f *fakeClient) disconnectedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.disconnects...)
}

// ============ Fake Store ============

// fakeStore - Store в памяти с инъекцией ошибок
type fakeStore struct {
	mu      sync.Mutex
	records map[int64]*SessionRecord

	saveErr   error
	loadErr   error
	deleteErr error
	allErr    error
	pruneErr  error

	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64]*SessionRecord)}
}

func (f *fakeStore) Save(ctx context.Context, record *SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return f.saveErr
	}
	clone := *record
	f.records[record.UserID] = &clone
	return nil
}

func (f *fakeStore) Load(ctx context.Context, userID int64) (*SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadErr != nil {
		return nil, f.loadErr
	}
	record, ok := f.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeStore) Delete(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.records, userID)
	return nil
}

func (f *fakeStore) All(ctx context.Context) ([]*SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.allErr != nil {
		return nil, f.allErr
	}
	out := make([]*SessionRecord, 0, len(f.records))
	for _, record := range f.records {
		clone := *record
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pruneErr != nil {
		return 0, f.pruneErr
	}
	pruned := 0
	for userID, record := range f.records {
		if record.UpdatedAt.Before(cutoff) {
			delete(f.records, userID)
			pruned++
		}
	}
	return pruned, nil
}

func (f *fakeStore) has(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[userID]
	return ok
}

func (f *fakeStore) put(record *SessionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *record
	f.records[record.UserID] = &clone
}

// ============ Notifier и Metrics для проверок ============

// captureNotifier копит уведомления строками вида "connected:7:0xAAA"
type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (c *captureNotifier) add(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, fmt.Sprintf(format, args...))
}

func (c *captureNotifier) SessionConnected(userID int64, address string) {
	c.add("connected:%d:%s", userID, address)
}

func (c *captureNotifier) SessionDisconnected(userID int64, reason string) {
	c.add("disconnected:%d", userID)
}

func (c *captureNotifier) SessionExpired(userID int64) {
	c.add("expired:%d", userID)
}

func (c *captureNotifier) SessionRestored(userID int64, address string) {
	c.add("restored:%d:%s", userID, address)
}

func (c *captureNotifier) PairingFailed(userID int64, reason string) {
	c.add("pairing_failed:%d", userID)
}

func (c *captureNotifier) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func (c *captureNotifier) contains(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

// countingMetrics считает вызовы счетчиков
type countingMetrics struct {
	mu          sync.Mutex
	pairings    map[string]int
	restored    int
	invalidated int
	keepalive   int
	active      int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{pairings: make(map[string]int)}
}

func (m *countingMetrics) PairingResult(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairings[result]++
}

func (m *countingMetrics) SessionRestored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored++
}

func (m *countingMetrics) SessionInvalidated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated++
}

func (m *countingMetrics) KeepaliveFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keepalive++
}

func (m *countingMetrics) SetActiveSessions(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = count
}

func (m *countingMetrics) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *countingMetrics) restoredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restored
}

func (m *countingMetrics) invalidatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidated
}

// ============ Сборка сервиса для тестов ============

// testConfig - быстрые тайминги, чтобы тесты не ждали production-интервалов
func testConfig() Config {
	return Config{
		ChainID:             "eip155:56",
		KeepaliveInterval:   50 * time.Millisecond,
		ExpiryWarningWindow: time.Hour,
		PairingTimeout:      200 * time.Millisecond,
		RetentionWindow:     7 * 24 * time.Hour,
	}
}

// newTestService собирает сервис поверх fake-клиента и fake-store
func newTestService(client *fakeClient, store *fakeStore) *Service {
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		return client, nil
	}, time.Second)
	return NewService(broker, store, testConfig())
}

// bscAccount собирает CAIP-10 аккаунт сети BSC
func bscAccount(address string) string {
	return "eip155:56:" + address
}

// waitFor ждет выполнения условия опросом с коротким шагом
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

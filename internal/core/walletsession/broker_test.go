// internal/core/walletsession/broker_test.go
package walletsession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBrokerSingleClient проверяет, что конкурентные GetClient создают
// клиент ровно один раз и все получают один и тот же экземпляр
func TestBrokerSingleClient(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	var factoryCalls int32
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		atomic.AddInt32(&factoryCalls, 1)
		time.Sleep(30 * time.Millisecond)
		return fc, nil
	}, time.Second)

	const goroutines = 25
	clients := make([]ProtocolClient, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], errs[i] = broker.GetClient(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&factoryCalls))
	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, fc, clients[i].(*fakeClient))
	}
}

// TestBrokerInitTimeout проверяет, что ожидающий чужую инициализацию вызов
// получает ErrInitializationTimeout, а сам инициализатор доходит до конца
func TestBrokerInitTimeout(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	release := make(chan struct{})
	var started int32
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		atomic.StoreInt32(&started, 1)
		<-release
		return fc, nil
	}, 50*time.Millisecond)

	type outcome struct {
		client ProtocolClient
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		client, err := broker.GetClient(context.Background())
		first <- outcome{client, err}
	}()

	require.True(t, waitFor(time.Second, func() bool {
		return atomic.LoadInt32(&started) == 1
	}), "инициализатор не стартовал")

	_, err := broker.GetClient(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitializationTimeout)

	close(release)
	got := <-first
	require.NoError(t, got.err)
	assert.Same(t, fc, got.client.(*fakeClient))

	// После завершения инициализации таймаут - история: клиент уже на руках
	client, err := broker.GetClient(context.Background())
	require.NoError(t, err)
	assert.Same(t, fc, client.(*fakeClient))
}

// TestBrokerInitFailureRetries проверяет, что неудача инициализации фатальна
// запросу, но не процессу: следующий вызов начинает заново
func TestBrokerInitFailureRetries(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	var calls int32
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("relay unreachable")
		}
		return fc, nil
	}, time.Second)

	_, err := broker.GetClient(context.Background())
	require.Error(t, err)

	client, err := broker.GetClient(context.Background())
	require.NoError(t, err)
	assert.Same(t, fc, client.(*fakeClient))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestBrokerEventFiltering проверяет перехват событий: событие по топику
// вне реестра не доходит до слушателя
func TestBrokerEventFiltering(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		return fc, nil
	}, time.Second)

	_, err := broker.GetClient(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var delivered []Event
	broker.AddSessionListener("topic-a", func(event Event) {
		mu.Lock()
		delivered = append(delivered, event)
		mu.Unlock()
	})

	// Топик не зарегистрирован - событие глотается до слушателя
	fc.emit(SessionDeleted{Topic: "topic-a", Reason: "peer gone"})
	mu.Lock()
	assert.Empty(t, delivered)
	mu.Unlock()

	broker.RegisterTopic("topic-a")
	fc.emit(SessionDeleted{Topic: "topic-a", Reason: "peer gone"})

	mu.Lock()
	require.Len(t, delivered, 1)
	assert.Equal(t, EventSessionDeleted, delivered[0].Kind())
	assert.Equal(t, "topic-a", delivered[0].SessionTopic())
	mu.Unlock()

	// Чужой зарегистрированный топик не трогает этого слушателя
	broker.RegisterTopic("topic-b")
	fc.emit(SessionExpired{Topic: "topic-b"})
	mu.Lock()
	assert.Len(t, delivered, 1)
	mu.Unlock()
}

// TestBrokerClear проверяет полный сброс: отключение живых сессий, снятие
// слушателей, очистка хранилища и возврат синглтона в неинициализированное
// состояние
func TestBrokerClear(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	var calls int32
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		atomic.AddInt32(&calls, 1)
		return fc, nil
	}, time.Second)

	_, err := broker.GetClient(context.Background())
	require.NoError(t, err)

	fc.addSession(Session{Topic: "t1", Accounts: []string{bscAccount("0xAAA")}})
	fc.addSession(Session{Topic: "t2", Accounts: []string{bscAccount("0xBBB")}})
	broker.RegisterTopic("t1")
	broker.RegisterTopic("t2")
	broker.AddSessionListener("t1", func(Event) {})

	broker.Clear(context.Background())

	assert.Nil(t, broker.current())
	assert.Empty(t, fc.Sessions())
	assert.True(t, fc.closed)
	assert.False(t, broker.IsTopicActive("t1"))
	assert.False(t, broker.IsTopicActive("t2"))

	stats := broker.Stats()
	assert.False(t, stats.Initialized)
	assert.Zero(t, stats.ActiveTopics)
	assert.Zero(t, stats.Listeners)

	// ForceRecreate поднимает клиент заново
	_, err = broker.ForceRecreate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestBrokerSessionBlob проверяет нормализацию чтения хранилища:
// отсутствие ключа - не ошибка
func TestBrokerSessionBlob(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		return fc, nil
	}, time.Second)
	_, err := broker.GetClient(context.Background())
	require.NoError(t, err)

	data, ok, err := broker.SessionBlob("missing-topic")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)

	fc.meta["topic-x"] = []byte(`{"expiry":123}`)
	data, ok, err = broker.SessionBlob("topic-x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"expiry":123}`, string(data))
}

// TestBrokerDisconnectTolerant проверяет, что "топик неизвестен" при
// отключении не считается ошибкой: контрагент мог уйти сам
func TestBrokerDisconnectTolerant(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		return fc, nil
	}, time.Second)
	_, err := broker.GetClient(context.Background())
	require.NoError(t, err)

	assert.NoError(t, broker.DisconnectTopic(context.Background(), "ghost-topic", "cleanup"))
}

// TestBrokerSessionForTopic проверяет поиск по живому набору сессий клиента
func TestBrokerSessionForTopic(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	broker := NewBroker(func(ctx context.Context) (ProtocolClient, error) {
		return fc, nil
	}, time.Second)

	// До инициализации клиента живого набора нет
	_, ok := broker.SessionForTopic("t1")
	assert.False(t, ok)

	_, err := broker.GetClient(context.Background())
	require.NoError(t, err)

	fc.addSession(Session{Topic: "t1", Accounts: []string{bscAccount("0xAAA")}})

	session, ok := broker.SessionForTopic("t1")
	require.True(t, ok)
	assert.Equal(t, "t1", session.Topic)

	_, ok = broker.SessionForTopic("t2")
	assert.False(t, ok)
}

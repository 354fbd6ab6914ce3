// internal/infrastructure/transport/event_bus/event_bus_test.go
package events

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize:    16,
		WorkerCount:   2,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
		EnableMetrics: true,
		EnableLogging: false,
	}
}

// TestEventBusDeliver проверяет асинхронную доставку события подписчику
func TestEventBusDeliver(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testConfig())
	bus.Start()
	defer bus.Stop()

	received := make(chan Event, 1)
	sub := NewBaseSubscriber("test_receiver", []EventType{EventWalletConnected},
		func(event Event) error {
			received <- event
			return nil
		})
	bus.Subscribe(EventWalletConnected, sub)

	payload := WalletEvent{UserID: 42, Topic: "topic-1", Address: "0xabc"}
	err := bus.Publish(NewWalletEvent(EventWalletConnected, "test", payload))
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.NotEmpty(t, event.ID)
		assert.Equal(t, EventWalletConnected, event.Type)
		assert.Equal(t, "test", event.Source)
		assert.False(t, event.Timestamp.IsZero())

		got, ok := event.WalletPayload()
		require.True(t, ok)
		assert.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}
}

// TestEventBusRetry проверяет повторные попытки после ошибок подписчика
func TestEventBusRetry(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 3
	bus := NewEventBus(cfg)
	bus.Start()
	defer bus.Stop()

	var calls int32
	sub := NewBaseSubscriber("flaky", []EventType{EventWalletRestored},
		func(event Event) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("temporary failure")
			}
			return nil
		})
	bus.Subscribe(EventWalletRestored, sub)

	err := bus.PublishSync(NewWalletEvent(EventWalletRestored, "test", WalletEvent{UserID: 1}))
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	metrics := bus.GetMetrics()
	assert.Equal(t, int64(2), metrics.EventsRetried)
	assert.Equal(t, int64(0), metrics.EventsFailed)
}

// TestEventBusRetryExhausted проверяет, что после исчерпания попыток
// возвращается последняя ошибка и событие учитывается как проваленное
func TestEventBusRetryExhausted(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 2
	bus := NewEventBus(cfg)
	bus.Start()
	defer bus.Stop()

	var calls int32
	sub := NewBaseSubscriber("broken", []EventType{EventWalletDisconnected},
		func(event Event) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("permanent failure")
		})
	bus.Subscribe(EventWalletDisconnected, sub)

	err := bus.PublishSync(NewWalletEvent(EventWalletDisconnected, "test", WalletEvent{UserID: 2}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permanent failure")

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), bus.GetMetrics().EventsFailed)
}

// TestEventBusSubscriberPanic проверяет, что паника подписчика перехватывается
// и не роняет шину
func TestEventBusSubscriberPanic(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testConfig())
	bus.Start()
	defer bus.Stop()

	sub := NewBaseSubscriber("panicky", []EventType{EventError},
		func(event Event) error {
			panic("boom")
		})
	bus.Subscribe(EventError, sub)

	err := bus.PublishSync(Event{Type: EventError, Source: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// Шина продолжает работать после паники
	assert.True(t, bus.IsRunning())
	assert.True(t, bus.HealthCheck())
}

// TestEventBusSubscribeRejectsUndeclared проверяет, что подписка на тип,
// который подписчик не объявляет, игнорируется
func TestEventBusSubscribeRejectsUndeclared(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testConfig())

	sub := NewBaseSubscriber("narrow", []EventType{EventWalletConnected},
		func(event Event) error { return nil })
	bus.Subscribe(EventWalletDisconnected, sub)

	assert.Equal(t, 0, bus.GetSubscriberCount(EventWalletDisconnected))
}

// TestEventBusUnsubscribe проверяет отписку
func TestEventBusUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testConfig())

	sub := NewBaseSubscriber("temp", []EventType{EventWalletConnected},
		func(event Event) error { return nil })

	bus.Subscribe(EventWalletConnected, sub)
	require.Equal(t, 1, bus.GetSubscriberCount(EventWalletConnected))

	bus.Unsubscribe(EventWalletConnected, sub)
	assert.Equal(t, 0, bus.GetSubscriberCount(EventWalletConnected))
}

// TestEventBusPublishWhenStopped проверяет отказ публикации на остановленной шине
func TestEventBusPublishWhenStopped(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testConfig())

	err := bus.Publish(Event{Type: EventWalletConnected, Source: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

// TestEventBusBufferOverflow проверяет отбрасывание событий при полном буфере
func TestEventBusBufferOverflow(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.BufferSize = 1
	cfg.WorkerCount = 1
	bus := NewEventBus(cfg)
	bus.Start()

	entered := make(chan struct{})
	release := make(chan struct{})
	sub := NewBaseSubscriber("slow", []EventType{EventWalletConnected},
		func(event Event) error {
			entered <- struct{}{}
			<-release
			return nil
		})
	bus.Subscribe(EventWalletConnected, sub)

	// Первое событие занимает единственного воркера
	require.NoError(t, bus.Publish(NewWalletEvent(EventWalletConnected, "test", WalletEvent{UserID: 1})))
	<-entered

	// Второе заполняет буфер
	require.NoError(t, bus.Publish(NewWalletEvent(EventWalletConnected, "test", WalletEvent{UserID: 2})))

	// Третье отбрасывается
	err := bus.Publish(NewWalletEvent(EventWalletConnected, "test", WalletEvent{UserID: 3}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer is full")
	assert.Equal(t, int64(1), bus.GetMetrics().EventsDropped)

	close(release)
	<-entered
	bus.Stop()
}

// TestEventBusValidationMiddleware проверяет отбрасывание некорректных событий
func TestEventBusValidationMiddleware(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testConfig())
	bus.Start()
	defer bus.Stop()

	bus.AddMiddleware(NewValidationMiddleware())

	var calls int32
	sub := NewBaseSubscriber("strict", []EventType{EventWalletConnected},
		func(event Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	bus.Subscribe(EventWalletConnected, sub)

	// Событие без источника не проходит валидацию
	err := bus.PublishSync(Event{Type: EventWalletConnected})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	// Корректное событие доходит до подписчика
	err = bus.PublishSync(NewWalletEvent(EventWalletConnected, "test", WalletEvent{UserID: 7}))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestWalletPayload проверяет извлечение полезной нагрузки из события
func TestWalletPayload(t *testing.T) {
	t.Parallel()

	event := NewWalletEvent(EventWalletPairingFailed, "supervisor", WalletEvent{
		UserID: 9,
		Topic:  "deadbeef",
		Reason: "timeout",
	})

	payload, ok := event.WalletPayload()
	require.True(t, ok)
	assert.Equal(t, int64(9), payload.UserID)
	assert.Equal(t, "deadbeef", payload.Topic)
	assert.Equal(t, "timeout", payload.Reason)

	// Событие с произвольными данными не является событием кошелька
	other := Event{Type: EventError, Source: "test", Data: fmt.Errorf("oops")}
	_, ok = other.WalletPayload()
	assert.False(t, ok)
}

// TestEventBusStopIdempotent проверяет повторные Start/Stop
func TestEventBusStopIdempotent(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testConfig())
	bus.Start()
	bus.Start()

	require.True(t, bus.IsRunning())

	bus.Stop()
	bus.Stop()

	assert.False(t, bus.IsRunning())
	assert.False(t, bus.HealthCheck())
}

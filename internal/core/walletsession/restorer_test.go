// internal/core/walletsession/restorer_test.go
package walletsession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRestoreAllMixedRecords проверяет разбор смешанного состояния при
// старте: запись с совпадающим адресом в другом регистре восстанавливается,
// запись с чужим адресом инвалидируется
func TestRestoreAllMixedRecords(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	store := newFakeStore()
	svc := newTestService(fc, store)
	notifier := &captureNotifier{}
	metrics := newCountingMetrics()
	svc.SetNotifier(notifier)
	svc.SetMetrics(metrics)
	defer svc.Shutdown()

	// Пользователь 1: живая сессия совпадает с записью (регистр отличается)
	store.put(&SessionRecord{UserID: 1, Topic: "topic-1", Address: "0xAAA", UpdatedAt: time.Now()})
	fc.addSession(Session{
		Topic:    "topic-1",
		Accounts: []string{bscAccount("0xaaa")},
		Expiry:   time.Now().Add(2 * time.Hour),
	})

	// Пользователь 2: живая сессия принадлежит другому адресу
	store.put(&SessionRecord{UserID: 2, Topic: "topic-2", Address: "0xAAA", UpdatedAt: time.Now()})
	fc.addSession(Session{
		Topic:    "topic-2",
		Accounts: []string{bscAccount("0xBBB")},
		Expiry:   time.Now().Add(2 * time.Hour),
	})

	report, err := svc.RestoreAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, 1, report.Invalidated)
	assert.Zero(t, report.Orphans)

	// Первый восстановлен и обслуживается
	assert.Equal(t, StateConnected, svc.SessionState(1))
	assert.True(t, svc.Broker().IsTopicActive("topic-1"))
	assert.True(t, notifier.contains("restored:1:0xAAA"))
	address, ok := svc.GetActiveAddress(1)
	require.True(t, ok)
	assert.Equal(t, "0xAAA", address)

	// Второй вычищен целиком
	assert.Equal(t, StateDisconnected, svc.SessionState(2))
	assert.False(t, store.has(2))
	assert.False(t, fc.hasSession("topic-2"))
	assert.False(t, svc.Broker().IsTopicActive("topic-2"))

	assert.Equal(t, 1, metrics.restoredCount())
	assert.Equal(t, 1, metrics.invalidatedCount())
}

// TestRestoreAllOrphanReclamation проверяет уборку живых сессий без
// владеющей записи: ими никто не управляет, это утечка
func TestRestoreAllOrphanReclamation(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	store := newFakeStore()
	svc := newTestService(fc, store)
	defer svc.Shutdown()

	store.put(&SessionRecord{UserID: 9, Topic: "topic-owned", Address: "0xAAA", UpdatedAt: time.Now()})
	fc.addSession(Session{
		Topic:    "topic-owned",
		Accounts: []string{bscAccount("0xAAA")},
		Expiry:   time.Now().Add(2 * time.Hour),
	})
	fc.addSession(Session{
		Topic:    "topic-orphan",
		Accounts: []string{bscAccount("0xCCC")},
		Expiry:   time.Now().Add(2 * time.Hour),
	})

	report, err := svc.RestoreAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, 1, report.Orphans)
	assert.False(t, fc.hasSession("topic-orphan"), "орфан должен быть отключен")
	assert.True(t, fc.hasSession("topic-owned"))
	assert.False(t, svc.Broker().IsTopicActive("topic-orphan"))
}

// TestRestoreAllPrunesOldRecords проверяет гигиену хранилища: записи
// старше окна хранения вычищаются до восстановительного прохода
func TestRestoreAllPrunesOldRecords(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	store := newFakeStore()
	svc := newTestService(fc, store)
	defer svc.Shutdown()

	store.put(&SessionRecord{UserID: 1, Topic: "topic-old", Address: "0xAAA", UpdatedAt: time.Now().Add(-8 * 24 * time.Hour)})
	store.put(&SessionRecord{UserID: 2, Topic: "topic-fresh", Address: "0xBBB", UpdatedAt: time.Now()})
	fc.addSession(Session{
		Topic:    "topic-fresh",
		Accounts: []string{bscAccount("0xBBB")},
		Expiry:   time.Now().Add(2 * time.Hour),
	})

	report, err := svc.RestoreAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pruned)
	assert.Equal(t, 1, report.Restored)
	assert.Zero(t, report.Invalidated, "вычищенная по сроку запись не доходит до восстановления")
	assert.False(t, store.has(1))
	assert.True(t, store.has(2))
}

// TestRestoreAllPerRecordIsolation проверяет, что сбой одной записи
// не прерывает восстановление остальных
func TestRestoreAllPerRecordIsolation(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	store := newFakeStore()
	svc := newTestService(fc, store)
	defer svc.Shutdown()

	store.put(&SessionRecord{UserID: 1, Topic: "topic-1", Address: "0xAAA", UpdatedAt: time.Now()})
	fc.addSession(Session{
		Topic:    "topic-1",
		Accounts: []string{bscAccount("0xAAA")},
		Expiry:   time.Now().Add(2 * time.Hour),
	})

	// Запись без живой сессии и запись без топика
	store.put(&SessionRecord{UserID: 2, Topic: "topic-dead", Address: "0xBBB", UpdatedAt: time.Now()})
	store.put(&SessionRecord{UserID: 3, Topic: "", Address: "0xCCC", UpdatedAt: time.Now()})

	report, err := svc.RestoreAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, 1, report.Invalidated)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, StateConnected, svc.SessionState(1))
	assert.False(t, store.has(2))
}

// TestRestoreAllStoreFailure проверяет, что недоступность store фатальна
// для всего прохода: восстанавливать нечего и не из чего
func TestRestoreAllStoreFailure(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	store := newFakeStore()
	store.allErr = errors.New("redis down")
	svc := newTestService(fc, store)
	defer svc.Shutdown()

	_, err := svc.RestoreAll(context.Background())
	require.Error(t, err)
}

// TestRestoreAllPruneFailureNonFatal проверяет, что сбой гигиены
// не мешает восстановлению
func TestRestoreAllPruneFailureNonFatal(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	store := newFakeStore()
	store.pruneErr = errors.New("scan failed")
	svc := newTestService(fc, store)
	defer svc.Shutdown()

	store.put(&SessionRecord{UserID: 1, Topic: "topic-1", Address: "0xAAA", UpdatedAt: time.Now()})
	fc.addSession(Session{
		Topic:    "topic-1",
		Accounts: []string{bscAccount("0xAAA")},
		Expiry:   time.Now().Add(2 * time.Hour),
	})

	report, err := svc.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restored)
	assert.Zero(t, report.Pruned)
}

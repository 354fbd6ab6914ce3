// internal/infrastructure/api/relay/session_test.go
package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionLedgerCloneIsolation проверяет, что реестр отдает копии:
// мутации снаружи не протекают внутрь
func TestSessionLedgerCloneIsolation(t *testing.T) {
	ledger := newSessionLedger()
	ledger.put(&sessionEntry{
		Topic:    "topic-1",
		SymKey:   "00ff",
		Accounts: []string{"eip155:56:0xAAA"},
		Expiry:   100,
	})

	entry, ok := ledger.get("topic-1")
	require.True(t, ok)

	entry.Accounts[0] = "испорчено"
	entry.Expiry = 999

	fresh, ok := ledger.get("topic-1")
	require.True(t, ok)
	assert.Equal(t, []string{"eip155:56:0xAAA"}, fresh.Accounts)
	assert.Equal(t, int64(100), fresh.Expiry)
}

// TestSessionLedgerMutators проверяет точечные обновления срока и аккаунтов
func TestSessionLedgerMutators(t *testing.T) {
	ledger := newSessionLedger()
	ledger.put(&sessionEntry{Topic: "topic-1", SymKey: "00", Expiry: 100})

	assert.True(t, ledger.setExpiry("topic-1", 500))
	assert.True(t, ledger.setAccounts("topic-1", []string{"eip155:56:0xBBB"}))
	assert.False(t, ledger.setExpiry("нет-такого", 1))
	assert.False(t, ledger.setAccounts("нет-такого", nil))

	entry, ok := ledger.get("topic-1")
	require.True(t, ok)
	assert.Equal(t, int64(500), entry.Expiry)
	assert.Equal(t, []string{"eip155:56:0xBBB"}, entry.Accounts)

	assert.True(t, ledger.remove("topic-1"))
	assert.False(t, ledger.remove("topic-1"))
	assert.Empty(t, ledger.all())
}

// TestSessionLedgerExpired проверяет выборку истекших сессий
func TestSessionLedgerExpired(t *testing.T) {
	ledger := newSessionLedger()
	now := time.Now()

	ledger.put(&sessionEntry{Topic: "alive", Expiry: now.Add(time.Hour).Unix()})
	ledger.put(&sessionEntry{Topic: "dead", Expiry: now.Add(-time.Hour).Unix()})
	ledger.put(&sessionEntry{Topic: "eternal", Expiry: 0})

	expired := ledger.expired(now)
	require.Len(t, expired, 1)
	assert.Equal(t, "dead", expired[0].Topic)
}

// TestSessionEntryToSession проверяет конвертацию записи в доменную сессию
func TestSessionEntryToSession(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Unix()
	entry := &sessionEntry{
		Topic:    "topic-1",
		SymKey:   "00ff",
		Accounts: []string{"eip155:56:0xAAA"},
		Expiry:   expiry,
	}

	session := entry.toSession()
	assert.Equal(t, "topic-1", session.Topic)
	assert.Equal(t, []string{"eip155:56:0xAAA"}, session.Accounts)
	assert.Equal(t, time.Unix(expiry, 0), session.Expiry)
}

// TestSessionEntryKey проверяет декодирование симметричного ключа записи
func TestSessionEntryKey(t *testing.T) {
	entry := &sessionEntry{Topic: "topic-1", SymKey: "00112233"}
	key, err := entry.key()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, key)

	bad := &sessionEntry{Topic: "topic-2", SymKey: "не-hex"}
	_, err = bad.key()
	assert.Error(t, err)
}

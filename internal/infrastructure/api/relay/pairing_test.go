// internal/infrastructure/api/relay/pairing_test.go
package relay

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-trading-assistant-bot/internal/core/walletsession"
)

// TestPairingURIRoundtrip проверяет симметрию сборки и разбора wc-ссылки
func TestPairingURIRoundtrip(t *testing.T) {
	symKey, err := newSymKey()
	require.NoError(t, err)
	topic := topicFromKey(symKey)

	uri := BuildPairingURI(topic, symKey)
	assert.True(t, strings.HasPrefix(uri, "wc:"+topic+"@2?"))
	assert.Contains(t, uri, "relay-protocol=irn")

	parsedTopic, parsedKey, err := ParsePairingURI(uri)
	require.NoError(t, err)
	assert.Equal(t, topic, parsedTopic)
	assert.Equal(t, symKey, parsedKey)
}

// TestParsePairingURIErrors проверяет отбраковку некорректных ссылок
func TestParsePairingURIErrors(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{name: "чужая схема", uri: "http://example.com"},
		{name: "без параметров", uri: "wc:abc@2"},
		{name: "без топика", uri: "wc:@2?symKey=aa"},
		{name: "чужая версия", uri: "wc:abc@1?symKey=aa"},
		{name: "битый ключ", uri: "wc:abc@2?symKey=zz"},
		{name: "без ключа", uri: "wc:abc@2?relay-protocol=irn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParsePairingURI(tt.uri)
			assert.Error(t, err)
		})
	}
}

// TestPairingLedgerTakeOnce проверяет, что take выдает пейринг ровно
// одному вызвавшему: ответ кошелька и сторож истечения не дублируются
func TestPairingLedgerTakeOnce(t *testing.T) {
	ledger := newPairingLedger()
	p := &pendingPairing{topic: "topic-1", approval: make(chan walletsession.ApprovalResult, 1)}
	ledger.put(p)

	taken, ok := ledger.take("topic-1")
	require.True(t, ok)
	assert.Same(t, p, taken)

	_, ok = ledger.take("topic-1")
	assert.False(t, ok)
	_, ok = ledger.get("topic-1")
	assert.False(t, ok)
}

// TestPairingLedgerExpired проверяет выборку просроченных пейрингов
func TestPairingLedgerExpired(t *testing.T) {
	ledger := newPairingLedger()
	now := time.Now()

	ledger.put(&pendingPairing{topic: "fresh", expiresAt: now.Add(time.Minute)})
	ledger.put(&pendingPairing{topic: "stale", expiresAt: now.Add(-time.Minute)})

	expired := ledger.expired(now)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].topic)

	assert.ElementsMatch(t, []string{"fresh", "stale"}, ledger.topics())
}

// internal/infrastructure/api/relay/crypto_test.go
package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-trading-assistant-bot/internal/core/walletsession"
)

// TestSealOpenRoundtrip проверяет, что запечатанный конверт вскрывается
// тем же ключом в исходный текст
func TestSealOpenRoundtrip(t *testing.T) {
	key, err := newSymKey()
	require.NoError(t, err)

	plaintext := []byte(`{"id":1,"jsonrpc":"2.0","method":"wc_sessionPropose"}`)

	sealed, err := seal(key, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "wc_sessionPropose")

	opened, err := open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

// TestOpenWrongKey проверяет, что чужой ключ не вскрывает конверт
func TestOpenWrongKey(t *testing.T) {
	key, err := newSymKey()
	require.NoError(t, err)
	wrongKey, err := newSymKey()
	require.NoError(t, err)

	sealed, err := seal(key, []byte("secret"))
	require.NoError(t, err)

	_, err = open(wrongKey, sealed)
	assert.Error(t, err)
}

// TestOpenMalformedEnvelope проверяет устойчивость к мусору на входе
func TestOpenMalformedEnvelope(t *testing.T) {
	key, err := newSymKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "не base64", payload: "%%%не-конверт%%%"},
		{name: "короче nonce", payload: "AAAA"},
		{name: "пустой", payload: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := open(key, tt.payload)
			assert.Error(t, err)
		})
	}
}

// TestSessionKeySymmetry проверяет, что обе стороны пейринга выводят
// одинаковый сессионный ключ и, как следствие, одинаковый топик
func TestSessionKeySymmetry(t *testing.T) {
	proposer, err := newKeyPair()
	require.NoError(t, err)
	responder, err := newKeyPair()
	require.NoError(t, err)

	fromProposer, err := proposer.sessionKey(responder.publicHex())
	require.NoError(t, err)
	fromResponder, err := responder.sessionKey(proposer.publicHex())
	require.NoError(t, err)

	assert.Equal(t, fromProposer, fromResponder)
	assert.Len(t, fromProposer, 32)
	assert.Equal(t, topicFromKey(fromProposer), topicFromKey(fromResponder))
}

// TestSessionKeyBadPeer проверяет ошибку на некорректном ключе контрагента
func TestSessionKeyBadPeer(t *testing.T) {
	keys, err := newKeyPair()
	require.NoError(t, err)

	_, err = keys.sessionKey("не-hex")
	assert.Error(t, err)
}

// TestTopicFromKeyDeterministic проверяет детерминированность топика:
// кошелек считает его от того же ключа независимо
func TestTopicFromKeyDeterministic(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	topic := topicFromKey(key)
	assert.Equal(t, topic, topicFromKey(key))
	assert.Len(t, topic, 64)
	assert.NotEqual(t, topic, topicFromKey([]byte("другой ключ совсем")))
}

// TestProposalFingerprint проверяет стабильность отпечатка предложения
// и его чувствительность к содержимому
func TestProposalFingerprint(t *testing.T) {
	proposal := walletsession.Proposal{
		ChainID: "eip155:56",
		Methods: []string{"eth_sendTransaction", "personal_sign"},
		Events:  []string{"accountsChanged"},
	}

	first, err := proposalFingerprint(proposal, "aabb")
	require.NoError(t, err)
	second, err := proposalFingerprint(proposal, "aabb")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	otherKey, err := proposalFingerprint(proposal, "ccdd")
	require.NoError(t, err)
	assert.NotEqual(t, first, otherKey)

	proposal.Methods = []string{"eth_sendTransaction"}
	otherProposal, err := proposalFingerprint(proposal, "aabb")
	require.NoError(t, err)
	assert.NotEqual(t, first, otherProposal)
}

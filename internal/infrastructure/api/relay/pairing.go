// internal/infrastructure/api/relay/pairing.go
package relay

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"bsc-trading-assistant-bot/internal/core/walletsession"
)

const (
	uriScheme       = "wc"
	uriVersion      = "2"
	uriRelayPayload = "irn"
)

// pendingPairing - незавершенный пейринг: предложение опубликовано,
// клиент ждет ответа кошелька на пейринг-топике
type pendingPairing struct {
	topic       string
	symKey      []byte
	keys        *keyPair
	fingerprint string
	proposalID  int64
	approval    chan walletsession.ApprovalResult
	expiresAt   time.Time
}

// pairingLedger - реестр незавершенных пейрингов, живет только в памяти:
// оборванный рестартом пейринг не имеет смысла восстанавливать
type pairingLedger struct {
	mu      sync.Mutex
	entries map[string]*pendingPairing
}

func newPairingLedger() *pairingLedger {
	return &pairingLedger{entries: make(map[string]*pendingPairing)}
}

func (l *pairingLedger) put(p *pendingPairing) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[p.topic] = p
}

func (l *pairingLedger) get(topic string) (*pendingPairing, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.entries[topic]
	return p, ok
}

// take снимает пейринг с учета, выдавая его ровно одному вызвавшему.
// Ответ кошелька и сторож истечения соревнуются за один и тот же
// пейринг, доставить результат должен один из них.
func (l *pairingLedger) take(topic string) (*pendingPairing, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.entries[topic]
	if !ok {
		return nil, false
	}
	delete(l.entries, topic)
	return p, true
}

func (l *pairingLedger) expired(now time.Time) []*pendingPairing {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*pendingPairing
	for _, p := range l.entries {
		if now.After(p.expiresAt) {
			out = append(out, p)
		}
	}
	return out
}

func (l *pairingLedger) topics() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	topics := make([]string, 0, len(l.entries))
	for topic := range l.entries {
		topics = append(topics, topic)
	}
	return topics
}

// BuildPairingURI собирает wc-ссылку пейринга. Кошелек извлекает из нее
// топик и симметричный ключ и подписывается на тот же топик.
func BuildPairingURI(topic string, symKey []byte) string {
	query := url.Values{}
	query.Set("relay-protocol", uriRelayPayload)
	query.Set("symKey", hex.EncodeToString(symKey))

	return fmt.Sprintf("%s:%s@%s?%s", uriScheme, topic, uriVersion, query.Encode())
}

// ParsePairingURI разбирает wc-ссылку обратно в топик и ключ.
// Встречная сторона пейринга (и тесты) пользуются им для симметрии
// с BuildPairingURI.
func ParsePairingURI(uri string) (topic string, symKey []byte, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme+":")
	if !ok {
		return "", nil, fmt.Errorf("неизвестная схема ссылки: %s", uri)
	}

	addr, rawQuery, ok := strings.Cut(rest, "?")
	if !ok {
		return "", nil, fmt.Errorf("ссылка без параметров: %s", uri)
	}

	topic, version, ok := strings.Cut(addr, "@")
	if !ok || topic == "" {
		return "", nil, fmt.Errorf("ссылка без топика: %s", uri)
	}
	if version != uriVersion {
		return "", nil, fmt.Errorf("неподдерживаемая версия протокола: %s", version)
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("ошибка разбора параметров ссылки: %w", err)
	}

	symKey, err = hex.DecodeString(query.Get("symKey"))
	if err != nil {
		return "", nil, fmt.Errorf("ошибка разбора ключа из ссылки: %w", err)
	}
	if len(symKey) == 0 {
		return "", nil, fmt.Errorf("ссылка без ключа: %s", uri)
	}

	return topic, symKey, nil
}

// internal/infrastructure/api/relay/session.go
package relay

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"bsc-trading-assistant-bot/internal/core/walletsession"
)

// sessionEntry - установленная сессия в реестре клиента. Сериализованная
// форма лежит в Storage под ключом session:{topic} и восстанавливается
// при инициализации.
type sessionEntry struct {
	Topic    string   `json:"topic"`
	SymKey   string   `json:"sym_key"`
	Accounts []string `json:"accounts"`
	Expiry   int64    `json:"expiry"`
}

func (e *sessionEntry) key() ([]byte, error) {
	key, err := hex.DecodeString(e.SymKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора ключа сессии %s: %w", e.Topic, err)
	}
	return key, nil
}

func (e *sessionEntry) toSession() walletsession.Session {
	accounts := make([]string, len(e.Accounts))
	copy(accounts, e.Accounts)

	return walletsession.Session{
		Topic:    e.Topic,
		Accounts: accounts,
		Expiry:   time.Unix(e.Expiry, 0),
	}
}

func (e *sessionEntry) clone() *sessionEntry {
	cp := *e
	cp.Accounts = make([]string, len(e.Accounts))
	copy(cp.Accounts, e.Accounts)
	return &cp
}

// sessionLedger - потокобезопасный реестр установленных сессий
type sessionLedger struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

func newSessionLedger() *sessionLedger {
	return &sessionLedger{entries: make(map[string]*sessionEntry)}
}

func (l *sessionLedger) put(entry *sessionEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.Topic] = entry.clone()
}

func (l *sessionLedger) get(topic string) (*sessionEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[topic]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

func (l *sessionLedger) remove(topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[topic]; !ok {
		return false
	}
	delete(l.entries, topic)
	return true
}

func (l *sessionLedger) all() []*sessionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]*sessionEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		entries = append(entries, entry.clone())
	}
	return entries
}

func (l *sessionLedger) setExpiry(topic string, expiry int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[topic]
	if !ok {
		return false
	}
	entry.Expiry = expiry
	return true
}

func (l *sessionLedger) setAccounts(topic string, accounts []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[topic]
	if !ok {
		return false
	}
	entry.Accounts = make([]string, len(accounts))
	copy(entry.Accounts, accounts)
	return true
}

// expired отдает сессии с истекшим сроком на момент now
func (l *sessionLedger) expired(now time.Time) []*sessionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*sessionEntry
	for _, entry := range l.entries {
		if entry.Expiry > 0 && now.Unix() >= entry.Expiry {
			out = append(out, entry.clone())
		}
	}
	return out
}

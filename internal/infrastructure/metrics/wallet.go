// internal/infrastructure/metrics/wallet.go
package metrics

import (
	"bsc-trading-assistant-bot/internal/core/walletsession"
)

// WalletMetrics - адаптер счетчиков жизненного цикла сессий поверх Prometheus
type WalletMetrics struct{}

var _ walletsession.Metrics = (*WalletMetrics)(nil)

// NewWalletMetrics создает адаптер метрик сессий
func NewWalletMetrics() *WalletMetrics {
	return &WalletMetrics{}
}

// PairingResult записывает завершение пейринга
func (WalletMetrics) PairingResult(result string) {
	WalletPairingsTotal.WithLabelValues(result).Inc()
}

// SessionRestored записывает восстановленную при старте сессию
func (WalletMetrics) SessionRestored() {
	WalletSessionsRestored.Inc()
}

// SessionInvalidated записывает недействительную сессию
func (WalletMetrics) SessionInvalidated() {
	WalletSessionsInvalidated.Inc()
}

// KeepaliveFailure записывает неудачную проверку живости
func (WalletMetrics) KeepaliveFailure() {
	WalletKeepaliveFailures.Inc()
}

// SetActiveSessions обновляет число активных сессий
func (WalletMetrics) SetActiveSessions(count int) {
	WalletSessionsActive.Set(float64(count))
}

// internal/infrastructure/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики жизненного цикла кошельковых сессий
// ============================================================

// ============ Метрики сессий ============

// WalletSessionsActive - текущее количество активных сессий кошельков
var WalletSessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "bscbot",
		Subsystem: "wallet",
		Name:      "sessions_active",
		Help:      "Current number of active wallet sessions",
	},
)

// WalletPairingsTotal - завершенные процедуры пейринга по результату
var WalletPairingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bscbot",
		Subsystem: "wallet",
		Name:      "pairings_total",
		Help:      "Total number of completed pairing attempts",
	},
	[]string{"result"}, // approved, rejected, timeout, failed
)

// WalletSessionsRestored - сессии, восстановленные при старте
var WalletSessionsRestored = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "bscbot",
		Subsystem: "wallet",
		Name:      "sessions_restored_total",
		Help:      "Total number of wallet sessions restored on startup",
	},
)

// WalletSessionsInvalidated - сессии, признанные недействительными
var WalletSessionsInvalidated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "bscbot",
		Subsystem: "wallet",
		Name:      "sessions_invalidated_total",
		Help:      "Total number of wallet sessions invalidated",
	},
)

// WalletKeepaliveFailures - неудачные проверки живости сессий
var WalletKeepaliveFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "bscbot",
		Subsystem: "wallet",
		Name:      "keepalive_failures_total",
		Help:      "Total number of failed session keepalive probes",
	},
)

// ============ Метрики relay ============

// RelayReconnects - переподключения транспорта к relay-сети
var RelayReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "bscbot",
		Subsystem: "relay",
		Name:      "reconnects_total",
		Help:      "Total number of relay transport reconnects",
	},
)

// ============ Метрики Telegram ============

// TelegramCommandsTotal - обработанные команды по имени
var TelegramCommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bscbot",
		Subsystem: "telegram",
		Name:      "commands_total",
		Help:      "Total number of processed bot commands",
	},
	[]string{"command"},
)

// TelegramMessagesSent - отправленные сообщения по результату
var TelegramMessagesSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bscbot",
		Subsystem: "telegram",
		Name:      "messages_sent_total",
		Help:      "Total number of outgoing Telegram messages",
	},
	[]string{"result"}, // ok, error
)

// ============ Вспомогательные функции ============

// RecordRelayReconnect записывает переподключение relay-транспорта
func RecordRelayReconnect() {
	RelayReconnects.Inc()
}

// RecordCommand записывает обработанную команду бота
func RecordCommand(command string) {
	TelegramCommandsTotal.WithLabelValues(command).Inc()
}

// RecordMessageSent записывает результат отправки сообщения
func RecordMessageSent(err error) {
	if err != nil {
		TelegramMessagesSent.WithLabelValues("error").Inc()
		return
	}
	TelegramMessagesSent.WithLabelValues("ok").Inc()
}

// internal/core/walletsession/keepalive.go
package walletsession

import (
	"context"
	"sync"
	"time"

	"bsc-trading-assistant-bot/pkg/logger"
)

// keepaliveOpTimeout ограничивает сетевые вызовы одного тика
const keepaliveOpTimeout = 30 * time.Second

// keepaliveLoop - фоновый цикл поддержания одной установленной сессии.
// Привязан к конкретному топику: смена сессии пользователя останавливает
// старый цикл и запускает новый.
type keepaliveLoop struct {
	userID     int64
	topic      string
	address    string
	client     ProtocolClient
	interval   time.Duration
	warnWindow time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// stop останавливает цикл. Повторная остановка безопасна.
func (l *keepaliveLoop) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// startKeepaliveLocked запускает keepalive-цикл текущей сессии supervisor-а.
// Предыдущий цикл, если был, останавливается: на пользователя работает
// не более одного цикла.
func (s *Service) startKeepaliveLocked(sup *userSupervisor) {
	if sup.sess.keepalive != nil {
		sup.sess.keepalive.stop()
	}

	loop := &keepaliveLoop{
		userID:     sup.userID,
		topic:      sup.sess.Topic,
		address:    sup.sess.Address,
		client:     sup.sess.Client,
		interval:   s.cfg.KeepaliveInterval,
		warnWindow: s.cfg.ExpiryWarningWindow,
		stopCh:     make(chan struct{}),
	}
	s.writeSess(sup, func(sess *InMemorySession) { sess.keepalive = loop })

	s.wg.Add(1)
	go s.runKeepalive(loop)
}

// runKeepalive крутит тики до остановки цикла или всего сервиса
func (s *Service) runKeepalive(loop *keepaliveLoop) {
	defer s.wg.Done()

	ticker := time.NewTicker(loop.interval)
	defer ticker.Stop()

	logger.Debug("🔄 Keepalive пользователя %d запущен, интервал %v", loop.userID, loop.interval)

	for {
		select {
		case <-loop.stopCh:
			logger.Debug("🛑 Keepalive пользователя %d остановлен", loop.userID)
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.keepaliveTick(loop) {
				loop.stop()
				return
			}
		}
	}
}

// keepaliveTick выполняет один тик цикла; ложный результат завершает цикл.
// Сетевые вызовы идут вне блокировок supervisor-а, поэтому застрявший
// probe одного пользователя не задерживает операции остальных.
func (s *Service) keepaliveTick(loop *keepaliveLoop) bool {
	// Цикл, переживший снятие топика с учета, отработал свое:
	// очистку уже сделали без него, побочных эффектов не оставляем
	if !s.broker.IsTopicActive(loop.topic) {
		return false
	}

	live, ok := s.broker.SessionForTopic(loop.topic)
	if !ok {
		s.cleanupFromKeepalive(loop, "session missing from live set", false)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), keepaliveOpTimeout)
	defer cancel()

	if !live.Expiry.IsZero() {
		remaining := time.Until(live.Expiry)
		if remaining <= 0 {
			s.cleanupFromKeepalive(loop, "session expired", true)
			return false
		}
		if remaining < loop.warnWindow {
			s.markExpiring(loop)
			if err := loop.client.Extend(ctx, loop.topic); err != nil {
				// Неудача продления не фатальна: следующий тик попробует снова
				logger.Warn("⚠️ Продление сессии пользователя %d: %v", loop.userID, err)
				s.metrics.KeepaliveFailure()
			} else {
				logger.Info("🔄 Сессия пользователя %d продлена", loop.userID)
				s.refreshRecord(ctx, loop.userID, loop.topic, loop.address)
				s.markRenewed(loop)
			}
		}
	}

	if err := loop.client.Ping(ctx, loop.topic); err != nil {
		if IsTopicUnknown(err) {
			s.cleanupFromKeepalive(loop, "topic unknown on ping", false)
			return false
		}
		logger.Warn("⚠️ Ping сессии пользователя %d: %v", loop.userID, err)
		s.metrics.KeepaliveFailure()
	}

	return true
}

// cleanupFromKeepalive - терминальная очистка из тика. Сверяет, что цикл
// все еще принадлежит текущей сессии пользователя: цикл, переживший свою
// сессию, не имеет права трогать ее преемницу.
func (s *Service) cleanupFromKeepalive(loop *keepaliveLoop, reason string, expired bool) {
	sup := s.supervisor(loop.userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.sess.keepalive != loop || sup.sess.Topic != loop.topic {
		return
	}

	s.cleanupLocked(context.Background(), sup, reason)

	if expired {
		s.notifier.SessionExpired(loop.userID)
		logger.Session("expired", loop.userID, loop.topic)
	} else {
		s.notifier.SessionDisconnected(loop.userID, reason)
		logger.Session("disconnected", loop.userID, loop.topic)
	}
}

// markExpiring отмечает, что сессия вошла в окно продления
func (s *Service) markExpiring(loop *keepaliveLoop) {
	sup := s.supervisor(loop.userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.sess.keepalive != loop {
		return
	}
	if sup.sess.State == StateConnected {
		s.setStateLocked(sup, StateExpiring)
	}
}

// markRenewed возвращает продленную сессию в Connected
func (s *Service) markRenewed(loop *keepaliveLoop) {
	sup := s.supervisor(loop.userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.sess.keepalive != loop {
		return
	}
	if sup.sess.State == StateExpiring {
		s.setStateLocked(sup, StateConnected)
	}
}

// internal/core/walletsession/supervisor.go
package walletsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bsc-trading-assistant-bot/pkg/logger"
)

// Методы с суффиксом Locked вызываются строго под sup.mu.

// writeSess применяет мутацию сессии под s.mu, чтобы внешние читатели
// (статистика, снапшоты) видели согласованные поля
func (s *Service) writeSess(sup *userSupervisor, fn func(sess *InMemorySession)) {
	s.mu.Lock()
	fn(&sup.sess)
	s.mu.Unlock()
}

// setStateLocked переводит состояние сессии с проверкой допустимости перехода
func (s *Service) setStateLocked(sup *userSupervisor, to SessionState) {
	from := sup.sess.State
	if !canTransition(from, to) {
		logger.Warn("⚠️ Недопустимый переход состояния %s -> %s у пользователя %d", from, to, sup.userID)
	}
	s.writeSess(sup, func(sess *InMemorySession) { sess.State = to })
}

// initializeLocked выдает общий протокольный клиент и, если сохраненная
// запись проходит правило восстановления, прозрачно поднимает Connected.
// Иначе остается голое Disconnected-состояние с клиентом на руках.
func (s *Service) initializeLocked(ctx context.Context, sup *userSupervisor) (ProtocolClient, error) {
	if sup.sess.Client != nil {
		return sup.sess.Client, nil
	}

	client, err := s.broker.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Load(ctx, sup.userID)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			logger.Warn("⚠️ Чтение записи сессии пользователя %d: %v", sup.userID, err)
		}
		s.writeSess(sup, func(sess *InMemorySession) { sess.Client = client })
		return client, nil
	}

	if _, ok := s.trustRecord(record); !ok {
		logger.Info("🔌 Запись сессии пользователя %d не прошла проверку, вычищаем", sup.userID)
		s.discardRecord(ctx, record, "stale session record")
		s.writeSess(sup, func(sess *InMemorySession) { sess.Client = client })
		return client, nil
	}

	s.promoteLocked(ctx, sup, client, record)
	return client, nil
}

// trustRecord проверяет запись по правилу восстановления: топик присутствует
// в живом наборе сессий, у живой сессии непустой список аккаунтов и ее адрес
// совпадает с сохраненным без учета регистра. Истекший срок живой сессии
// отменяет доверие независимо от остальных условий.
func (s *Service) trustRecord(record *SessionRecord) (Session, bool) {
	if record.Topic == "" || record.Address == "" {
		return Session{}, false
	}

	live, ok := s.broker.SessionForTopic(record.Topic)
	if !ok {
		return Session{}, false
	}

	if !live.Expiry.IsZero() && time.Now().After(live.Expiry) {
		return Session{}, false
	}

	if len(live.Accounts) == 0 {
		return Session{}, false
	}

	liveAddr := live.Address(s.cfg.ChainID)
	if liveAddr == "" || !strings.EqualFold(liveAddr, record.Address) {
		return Session{}, false
	}

	return live, true
}

// promoteLocked поднимает Connected-состояние из проверенной записи:
// учет топика, слушатели, keepalive. Пейринг не проходится заново,
// поэтому состояние ставится напрямую, минуя цепочку переходов.
func (s *Service) promoteLocked(ctx context.Context, sup *userSupervisor, client ProtocolClient, record *SessionRecord) {
	s.broker.RegisterTopic(record.Topic)

	s.writeSess(sup, func(sess *InMemorySession) {
		sess.Client = client
		sess.Topic = record.Topic
		sess.Address = record.Address
		sess.PendingURI = ""
		sess.State = StateConnected
	})

	s.installListeners(sup.userID, record.Topic)
	s.startKeepaliveLocked(sup)
	s.refreshRecord(ctx, sup.userID, record.Topic, record.Address)
	s.updateActiveMetric()

	s.metrics.SessionRestored()
	s.notifier.SessionRestored(sup.userID, record.Address)
	logger.Session("restored", sup.userID, record.Topic)
}

// connectLocked запускает новый пейринг. Действующая сессия, если была,
// уступает место: остаться должно не более одной на пользователя.
func (s *Service) connectLocked(ctx context.Context, sup *userSupervisor) (string, error) {
	client, err := s.initializeLocked(ctx, sup)
	if err != nil {
		return "", err
	}

	if sup.sess.Topic != "" {
		logger.Info("🔄 Пользователь %d запускает пейринг поверх активной сессии", sup.userID)
		s.cleanupLocked(ctx, sup, "superseded by new pairing")
	}

	// Незавершенный пейринг, если был, отменяется: его итог не пройдет
	// сверку pendingUri и будет проигнорирован
	s.writeSess(sup, func(sess *InMemorySession) {
		sess.Client = client
		sess.PendingURI = ""
	})
	s.setStateLocked(sup, StatePairing)

	pending, err := client.Connect(ctx, Proposal{
		ChainID: s.cfg.ChainID,
		Methods: s.cfg.Methods,
		Events:  s.cfg.Events,
	})
	if err != nil {
		s.setStateLocked(sup, StateDisconnected)
		s.metrics.PairingResult("propose_failed")
		return "", fmt.Errorf("request pairing: %w", err)
	}

	s.writeSess(sup, func(sess *InMemorySession) { sess.PendingURI = pending.URI })
	s.setStateLocked(sup, StateAwaitingApproval)

	s.wg.Add(1)
	go s.awaitApproval(sup, pending)

	logger.Info("📡 Пейринг запущен для пользователя %d", sup.userID)
	return pending.URI, nil
}

// awaitApproval ждет итог пейринга в фоне, не блокируя других пользователей.
// Итог, пришедший после отмены или замены пейринга, игнорируется:
// pendingUri работает как токен поколения.
func (s *Service) awaitApproval(sup *userSupervisor, pending *PairingRequest) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.PairingTimeout)
	defer timer.Stop()

	var result ApprovalResult
	select {
	case result = <-pending.Approval:
	case <-timer.C:
		result = ApprovalResult{Err: ErrPairingTimeout}
	case <-s.stopCh:
		return
	}

	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.sess.PendingURI != pending.URI {
		logger.Debug("🔄 Итог пейринга пользователя %d пришел после отмены, игнорируем", sup.userID)
		return
	}

	s.writeSess(sup, func(sess *InMemorySession) { sess.PendingURI = "" })

	if result.Err != nil {
		s.setStateLocked(sup, StateDisconnected)
		if errors.Is(result.Err, ErrPairingTimeout) {
			logger.Warn("⚠️ Пейринг пользователя %d не подтвержден за %v", sup.userID, s.cfg.PairingTimeout)
			s.metrics.PairingResult("timeout")
			s.notifier.PairingFailed(sup.userID, "подтверждение не получено вовремя")
		} else {
			logger.Warn("⚠️ Пейринг пользователя %d отклонен: %v", sup.userID, result.Err)
			s.metrics.PairingResult("rejected")
			s.notifier.PairingFailed(sup.userID, result.Err.Error())
		}
		return
	}

	s.completePairingLocked(context.Background(), sup, result.Session)
}

// completePairingLocked фиксирует подтвержденную сессию: адрес контрагента,
// учет топика, запись в store, слушатели, keepalive, уведомления
func (s *Service) completePairingLocked(ctx context.Context, sup *userSupervisor, approved Session) {
	address := approved.Address(s.cfg.ChainID)
	if approved.Topic == "" || address == "" {
		logger.Error("❌ Подтвержденная сессия пользователя %d без топика или адреса", sup.userID)
		s.setStateLocked(sup, StateDisconnected)
		s.metrics.PairingResult("invalid")
		s.notifier.PairingFailed(sup.userID, "кошелек вернул неполную сессию")
		return
	}

	s.broker.RegisterTopic(approved.Topic)

	record := &SessionRecord{
		UserID:    sup.userID,
		Topic:     approved.Topic,
		Address:   address,
		UpdatedAt: time.Now(),
	}
	if blob, ok, err := s.broker.SessionBlob(approved.Topic); err == nil && ok {
		record.SessionData = blob
	}
	if err := s.store.Save(ctx, record); err != nil {
		// Сессия остается рабочей в памяти, но не переживет рестарт
		logger.Error("❌ Сохранение записи сессии пользователя %d: %v", sup.userID, err)
	}

	s.writeSess(sup, func(sess *InMemorySession) {
		sess.Topic = approved.Topic
		sess.Address = address
	})
	s.setStateLocked(sup, StateConnected)

	s.installListeners(sup.userID, approved.Topic)
	s.startKeepaliveLocked(sup)
	s.updateActiveMetric()

	s.metrics.PairingResult("approved")
	s.notifier.SessionConnected(sup.userID, address)
	logger.Session("connected", sup.userID, approved.Topic)
}

// cleanupLocked - идемпотентная терминальная очистка: останавливает keepalive,
// снимает топик с учета и слушателя, best-effort отключает сессию, вычищает
// хранилище клиента и запись store, сбрасывает сессию в памяти.
// Повторный вызов приходит к тому же терминальному состоянию.
func (s *Service) cleanupLocked(ctx context.Context, sup *userSupervisor, reason string) {
	if sup.sess.keepalive != nil {
		sup.sess.keepalive.stop()
	}

	topic := sup.sess.Topic
	if topic != "" {
		s.broker.UnregisterTopic(topic)
		s.broker.RemoveSessionListener(topic)
		if err := s.broker.DisconnectTopic(ctx, topic, reason); err != nil {
			logger.Warn("⚠️ Отключение сессии пользователя %d: %v", sup.userID, err)
		}
		s.broker.PurgeTopicStorage(topic)
	}

	if err := s.store.Delete(ctx, sup.userID); err != nil {
		logger.Warn("⚠️ Удаление записи сессии пользователя %d: %v", sup.userID, err)
	}

	s.writeSess(sup, func(sess *InMemorySession) {
		*sess = InMemorySession{UserID: sup.userID, State: StateDisconnected}
	})
	s.updateActiveMetric()
}

// discardRecord вычищает следы записи, которой не доверяем, без живой
// сессии в памяти: учет, сессия клиента, хранилище, сама запись
func (s *Service) discardRecord(ctx context.Context, record *SessionRecord, reason string) {
	s.broker.UnregisterTopic(record.Topic)
	s.broker.RemoveSessionListener(record.Topic)
	if err := s.broker.DisconnectTopic(ctx, record.Topic, reason); err != nil {
		logger.Warn("⚠️ Отключение устаревшей сессии пользователя %d: %v", record.UserID, err)
	}
	s.broker.PurgeTopicStorage(record.Topic)

	if err := s.store.Delete(ctx, record.UserID); err != nil {
		logger.Warn("⚠️ Удаление записи сессии пользователя %d: %v", record.UserID, err)
	}

	s.metrics.SessionInvalidated()
}

// refreshRecord переписывает запись пользователя свежими метаданными клиента.
// Вызывается при восстановлении и успешном продлении срока сессии.
func (s *Service) refreshRecord(ctx context.Context, userID int64, topic, address string) {
	record := &SessionRecord{
		UserID:    userID,
		Topic:     topic,
		Address:   address,
		UpdatedAt: time.Now(),
	}
	if blob, ok, err := s.broker.SessionBlob(topic); err == nil && ok {
		record.SessionData = blob
	}

	if err := s.store.Save(ctx, record); err != nil {
		logger.Warn("⚠️ Обновление записи сессии пользователя %d: %v", userID, err)
	}
}

// installListeners подписывает supervisor на события жизненного цикла по
// топику. Снимается слушатель при первом delete/expire или при отключении.
func (s *Service) installListeners(userID int64, topic string) {
	s.broker.AddSessionListener(topic, func(event Event) {
		s.onSessionEvent(userID, topic, event)
	})
}

// onSessionEvent обрабатывает событие протокола по топику пользователя.
// session_update только логируется: сроки перечитываются на следующем
// keepalive-тике, а не из push-события. delete и expire ведут к полной
// очистке, если топик все еще принадлежит текущей сессии пользователя.
func (s *Service) onSessionEvent(userID int64, topic string, event Event) {
	if event.Kind() == EventSessionUpdated {
		logger.Info("📋 Обновление сессии пользователя %d, топик %s", userID, shortTopic(topic))
		return
	}

	sup := s.supervisor(userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.sess.Topic != topic {
		// Событие пережило сессию: очистка уже прошла без него
		return
	}

	switch event.Kind() {
	case EventSessionDeleted:
		s.cleanupLocked(context.Background(), sup, "session deleted by peer")
		s.notifier.SessionDisconnected(userID, "кошелек завершил сессию")
		logger.Session("disconnected", userID, topic)
	case EventSessionExpired:
		s.cleanupLocked(context.Background(), sup, "session expired")
		s.notifier.SessionExpired(userID)
		logger.Session("expired", userID, topic)
	}
}

// shortTopic обрезает топик до читаемой в логах длины
func shortTopic(topic string) string {
	if len(topic) > 16 {
		return topic[:16] + "…"
	}
	return topic
}

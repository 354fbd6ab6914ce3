// internal/core/walletsession/restorer.go
package walletsession

import (
	"context"
	"fmt"
	"time"

	"bsc-trading-assistant-bot/pkg/logger"
)

// RestoreReport - итог восстановительного прохода при старте
type RestoreReport struct {
	Restored    int `json:"restored"`
	Invalidated int `json:"invalidated"`
	Orphans     int `json:"orphans"`
	Pruned      int `json:"pruned"`
	Errors      int `json:"errors"`
}

// RestoreAll восстанавливает сохраненные сессии при старте процесса.
// Запускается один раз, синхронно, до приема новых пейрингов.
// Сбой одной записи не прерывает проход: ошибки изолируются по записям
// и агрегируются в отчете.
func (s *Service) RestoreAll(ctx context.Context) (*RestoreReport, error) {
	report := &RestoreReport{}

	logger.Info("🔄 Восстановление кошелек-сессий...")

	// Гигиена хранилища: записи старше окна хранения вычищаются.
	// Неудача очистки восстановлению не мешает.
	cutoff := time.Now().Add(-s.cfg.RetentionWindow)
	if pruned, err := s.store.PruneOlderThan(ctx, cutoff); err != nil {
		logger.Warn("⚠️ Очистка старых записей сессий: %v", err)
	} else if pruned > 0 {
		report.Pruned = pruned
		logger.Info("🧹 Вычищено %d записей старше %v", pruned, s.cfg.RetentionWindow)
	}

	records, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session records: %w", err)
	}

	client, err := s.broker.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain protocol client: %w", err)
	}

	owned := make(map[string]int64, len(records))
	for _, record := range records {
		if record != nil && record.Topic != "" {
			owned[record.Topic] = record.UserID
		}
	}

	// Живая сессия без владеющей записи - утечка: ею никто не управляет
	for _, live := range client.Sessions() {
		if _, ok := owned[live.Topic]; ok {
			continue
		}
		logger.Warn("🧹 Орфанная сессия %s отключается", shortTopic(live.Topic))
		if err := s.broker.DisconnectTopic(ctx, live.Topic, "orphaned session"); err != nil {
			logger.Warn("⚠️ Отключение орфанной сессии: %v", err)
		}
		s.broker.PurgeTopicStorage(live.Topic)
		report.Orphans++
	}

	for _, record := range records {
		if record == nil || record.UserID == 0 || record.Topic == "" {
			report.Errors++
			continue
		}
		if s.restoreRecord(ctx, client, record) {
			report.Restored++
		} else {
			report.Invalidated++
		}
	}

	s.updateActiveMetric()
	logger.Info("✅ Восстановление завершено: %d восстановлено, %d инвалидировано, %d орфанов",
		report.Restored, report.Invalidated, report.Orphans)
	return report, nil
}

// restoreRecord применяет правило восстановления к одной записи.
// Истина - сессия поднята, ложь - запись вычищена или уступила.
func (s *Service) restoreRecord(ctx context.Context, client ProtocolClient, record *SessionRecord) bool {
	sup := s.supervisor(record.UserID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.sess.Topic != "" {
		if sup.sess.Topic == record.Topic {
			// Ленивое восстановление уже подняло эту сессию
			return true
		}
		// В памяти уже другая сессия этого пользователя: наша копия записи
		// устарела, store перезаписан при ее подключении - не трогаем
		logger.Debug("🔄 Запись пользователя %d устарела еще до восстановления", record.UserID)
		s.metrics.SessionInvalidated()
		return false
	}

	if s.broker.IsTopicActive(record.Topic) {
		// Топик уже принадлежит другой поднятой сессии: запись уступает,
		// но чужую живую сессию не трогаем
		logger.Warn("⚠️ Запись пользователя %d ссылается на занятый топик %s", record.UserID, shortTopic(record.Topic))
		if err := s.store.Delete(ctx, record.UserID); err != nil {
			logger.Warn("⚠️ Удаление записи сессии пользователя %d: %v", record.UserID, err)
		}
		s.metrics.SessionInvalidated()
		return false
	}

	if _, ok := s.trustRecord(record); !ok {
		logger.Info("🔌 Запись пользователя %d не прошла правило восстановления", record.UserID)
		s.discardRecord(ctx, record, "failed restoration rule")
		return false
	}

	s.promoteLocked(ctx, sup, client, record)
	return true
}

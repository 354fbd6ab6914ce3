// internal/core/walletsession/service.go
package walletsession

import (
	"context"
	"sync"

	"bsc-trading-assistant-bot/pkg/logger"
)

// Service - менеджер жизненного цикла кошелек-сессий: фасад над брокером,
// реестром топиков и store. Операции разных пользователей идут конкурентно,
// операции одного пользователя сериализуются его supervisor-ом.
//
// Дисциплина блокировок: sup.mu сериализует поток операций пользователя;
// запись полей sup.sess дополнительно берет s.mu, поэтому внешние читатели
// (статистика, снапшоты) обходятся одним s.mu. Порядок всегда sup.mu -> s.mu.
type Service struct {
	broker *Broker
	store  Store
	cfg    Config

	notifier Notifier
	metrics  Metrics

	mu          sync.Mutex
	supervisors map[int64]*userSupervisor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// userSupervisor - supervisor сессии одного пользователя.
// Владеет InMemorySession этого пользователя и ничьей больше.
type userSupervisor struct {
	userID int64
	mu     sync.Mutex
	sess   InMemorySession
}

// NewService создает менеджер сессий. Нулевые поля cfg получают
// production-значения по умолчанию.
func NewService(broker *Broker, store Store, cfg Config) *Service {
	return &Service{
		broker:      broker,
		store:       store,
		cfg:         cfg.withDefaults(),
		notifier:    noopNotifier{},
		metrics:     noopMetrics{},
		supervisors: make(map[int64]*userSupervisor),
		stopCh:      make(chan struct{}),
	}
}

// SetNotifier подключает получателя уведомлений о жизненном цикле сессий
func (s *Service) SetNotifier(notifier Notifier) {
	if notifier != nil {
		s.notifier = notifier
	}
}

// SetMetrics подключает счетчики жизненного цикла сессий
func (s *Service) SetMetrics(metrics Metrics) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// Broker возвращает брокер протокольного клиента
func (s *Service) Broker() *Broker {
	return s.broker
}

// supervisor возвращает supervisor пользователя, создавая его при первом обращении
func (s *Service) supervisor(userID int64) *userSupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.supervisors[userID]
	if !ok {
		sup = &userSupervisor{
			userID: userID,
			sess:   InMemorySession{UserID: userID, State: StateDisconnected},
		}
		s.supervisors[userID] = sup
	}
	return sup
}

// allSupervisors возвращает снимок всех supervisor-ов
func (s *Service) allSupervisors() []*userSupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()

	sups := make([]*userSupervisor, 0, len(s.supervisors))
	for _, sup := range s.supervisors {
		sups = append(sups, sup)
	}
	return sups
}

// ==================== Внешний интерфейс ====================

// InitializeConnection подготавливает supervisor пользователя: возвращает
// общий клиент и, если сохраненная запись проходит правило восстановления,
// прозрачно поднимает Connected-состояние
func (s *Service) InitializeConnection(ctx context.Context, userID int64) (ProtocolClient, error) {
	sup := s.supervisor(userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	return s.initializeLocked(ctx, sup)
}

// Connect запускает новый пейринг и возвращает URI для кошелька.
// Подтверждение ожидается асинхронно и не блокирует других пользователей.
func (s *Service) Connect(ctx context.Context, userID int64) (string, error) {
	sup := s.supervisor(userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	return s.connectLocked(ctx, sup)
}

// Disconnect разрывает сессию пользователя и вычищает все ее следы.
// Повторный вызов безопасен и оставляет то же терминальное состояние.
func (s *Service) Disconnect(ctx context.Context, userID int64) error {
	sup := s.supervisor(userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	hadTopic := sup.sess.Topic != ""
	topic := sup.sess.Topic

	s.cleanupLocked(ctx, sup, "user disconnect")

	if hadTopic {
		s.notifier.SessionDisconnected(userID, "user disconnect")
		logger.Session("disconnected", userID, topic)
	}
	return nil
}

// Reconnect разрывает текущую сессию и сразу запускает новый пейринг
func (s *Service) Reconnect(ctx context.Context, userID int64) (string, error) {
	sup := s.supervisor(userID)
	sup.mu.Lock()
	defer sup.mu.Unlock()

	s.cleanupLocked(ctx, sup, "reconnect")
	return s.connectLocked(ctx, sup)
}

// ValidateSession - истинно, если у пользователя есть клиент в памяти,
// сохраненная запись и живая сессия протокола с ее топиком
func (s *Service) ValidateSession(ctx context.Context, userID int64) bool {
	s.mu.Lock()
	sup := s.supervisors[userID]
	var hasClient bool
	if sup != nil {
		hasClient = sup.sess.Client != nil
	}
	s.mu.Unlock()

	if !hasClient {
		return false
	}

	record, err := s.store.Load(ctx, userID)
	if err != nil {
		return false
	}

	_, alive := s.broker.SessionForTopic(record.Topic)
	return alive
}

// GetActiveAddress возвращает адрес подключенного кошелька пользователя
func (s *Service) GetActiveAddress(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup := s.supervisors[userID]
	if sup == nil || sup.sess.Topic == "" || sup.sess.Address == "" {
		return "", false
	}
	return sup.sess.Address, true
}

// ActiveSession - срез установленной сессии для удаленных запросов к кошельку
type ActiveSession struct {
	Client  ProtocolClient
	Topic   string
	Address string
}

// Active возвращает клиент, топик и адрес установленной сессии пользователя.
// ErrNoSession, если сессия не установлена или еще ждет подтверждения.
func (s *Service) Active(userID int64) (ActiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup := s.supervisors[userID]
	if sup == nil || sup.sess.Client == nil || sup.sess.Topic == "" {
		return ActiveSession{}, ErrNoSession
	}
	if sup.sess.State != StateConnected && sup.sess.State != StateExpiring {
		return ActiveSession{}, ErrNoSession
	}

	return ActiveSession{
		Client:  sup.sess.Client,
		Topic:   sup.sess.Topic,
		Address: sup.sess.Address,
	}, nil
}

// SessionState возвращает текущее состояние сессии пользователя
func (s *Service) SessionState(userID int64) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup := s.supervisors[userID]
	if sup == nil {
		return StateDisconnected
	}
	return sup.sess.State
}

// Shutdown останавливает keepalive-циклы и ожидания подтверждений, не трогая
// сохраненные записи: валидные сессии восстановятся при следующем старте
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	for _, sup := range s.allSupervisors() {
		sup.mu.Lock()
		if sup.sess.keepalive != nil {
			sup.sess.keepalive.stop()
		}
		sup.mu.Unlock()
	}

	s.wg.Wait()
	logger.Info("🛑 Менеджер кошелек-сессий остановлен")
}

// ==================== Статистика ====================

// ServiceStats - снимок состояния менеджера сессий
type ServiceStats struct {
	Supervisors int         `json:"supervisors"`
	Connected   int         `json:"connected"`
	Pending     int         `json:"pending"`
	Broker      BrokerStats `json:"broker"`
}

// Stats возвращает снимок состояния менеджера
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	stats := ServiceStats{Supervisors: len(s.supervisors)}
	for _, sup := range s.supervisors {
		switch sup.sess.State {
		case StateConnected, StateExpiring:
			stats.Connected++
		case StatePairing, StateAwaitingApproval:
			stats.Pending++
		}
	}
	s.mu.Unlock()

	stats.Broker = s.broker.Stats()
	return stats
}

// connectedCount считает пользователей с установленной сессией
func (s *Service) connectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sup := range s.supervisors {
		if sup.sess.State == StateConnected || sup.sess.State == StateExpiring {
			count++
		}
	}
	return count
}

func (s *Service) updateActiveMetric() {
	s.metrics.SetActiveSessions(s.connectedCount())
}

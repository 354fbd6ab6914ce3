// application/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"bsc-trading-assistant-bot/internal/core/trading"
	"bsc-trading-assistant-bot/internal/core/users"
	"bsc-trading-assistant-bot/internal/core/walletsession"
	"bsc-trading-assistant-bot/internal/infrastructure/api/pricing"
	"bsc-trading-assistant-bot/internal/infrastructure/api/relay"
	rediscache "bsc-trading-assistant-bot/internal/infrastructure/cache/redis"
	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/internal/infrastructure/metrics"
	"bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres"
	userrepo "bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres/repository/users"
	events "bsc-trading-assistant-bot/internal/infrastructure/transport/event_bus"
	"bsc-trading-assistant-bot/internal/infrastructure/transport/httpserver"
	"bsc-trading-assistant-bot/internal/telegram"
	"bsc-trading-assistant-bot/pkg/logger"

	"github.com/jmoiron/sqlx"
)

const (
	// restoreTimeout ограничивает восстановительный проход при старте
	restoreTimeout = 2 * time.Minute

	// shutdownTimeout ограничивает graceful shutdown
	shutdownTimeout = 30 * time.Second
)

// Application - корень сборки приложения. Владеет всеми компонентами,
// порядком их запуска и обратным порядком остановки. Брокер протокольного
// клиента живет здесь, а не в глобальной переменной пакета.
type Application struct {
	config *config.Config

	mu          sync.RWMutex
	initialized bool
	running     bool
	startTime   time.Time
	stopChan    chan os.Signal

	testMode bool

	// Инфраструктура
	redis   *rediscache.RedisService
	db      *sqlx.DB
	bus     *events.EventBus
	httpSrv *httpserver.Server

	// Ядро
	broker    *walletsession.Broker
	walletSvc *walletsession.Service
	usersSvc  *users.Service
	prices    *pricing.Client
	signer    *trading.RemoteSigner

	bot *telegram.Bot
}

// NewApplication создает приложение. Подключения к внешним системам
// откладываются до Initialize.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	return &Application{
		config:   cfg,
		stopChan: make(chan os.Signal, 1),
	}, nil
}

// SetTestMode переключает тестовый режим: прием команд Telegram
// не запускается, остальные компоненты работают как обычно
func (app *Application) SetTestMode(enabled bool) {
	app.testMode = enabled
}

// Initialize собирает и соединяет компоненты. Postgres и Redis
// подключаются здесь; relay-клиент поднимается лениво брокером
// при первом обращении.
func (app *Application) Initialize() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.initialized {
		return nil
	}

	cfg := app.config

	// Записи сессий живут в Redis, профили пользователей в Postgres.
	// Без них менеджер сессий неработоспособен.
	if !cfg.Redis.Enabled {
		return errors.New("redis is required for the session store (REDIS_ENABLED)")
	}
	if !cfg.Database.Enabled {
		return errors.New("postgres is required for user records (DB_ENABLED)")
	}

	// 1. Redis: кэш, хранилище relay-клиента и store сессий
	app.redis = rediscache.NewRedisService(cfg)
	if err := app.redis.Start(); err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	cache := app.redis.GetCache()
	redisClient := app.redis.GetClient()

	// 2. Postgres: профили пользователей
	db, err := postgres.Connect(pgConfig(cfg))
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	app.db = db

	userRepo := userrepo.NewUserRepository(db, cache)
	app.usersSvc = users.NewService(userRepo, cache)

	// 3. Шина событий
	factory := &events.Factory{}
	app.bus = factory.NewEventBusFromConfig(cfg)

	// 4. Протокольный клиент и менеджер кошелек-сессий
	relayStorage := rediscache.NewRelayStorage(redisClient)
	relayCfg := relay.Config{
		URL:            cfg.Relay.URL,
		ProjectID:      cfg.Relay.ProjectID,
		AppName:        cfg.Relay.AppName,
		AppDescription: cfg.Relay.AppDescription,
		AppURL:         cfg.Relay.AppURL,
		DialTimeout:    cfg.Relay.DialTimeout,
		RequestTimeout: cfg.Relay.RequestTimeout,
		PingInterval:   cfg.Relay.PingInterval,
		PairingTTL:     cfg.Wallet.PairingTimeout,
		SessionTTL:     cfg.Wallet.SessionTTL,
	}
	app.broker = walletsession.NewBroker(func(ctx context.Context) (walletsession.ProtocolClient, error) {
		client := relay.New(relayCfg, relayStorage)
		client.SetReconnectHook(metrics.RecordRelayReconnect)
		if err := client.Init(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}, cfg.Wallet.InitTimeout)

	sessionStore := rediscache.NewSessionStore(redisClient, cfg.Wallet.RetentionWindow)
	app.walletSvc = walletsession.NewService(app.broker, sessionStore, walletsession.Config{
		ChainID:             cfg.Relay.ChainID,
		KeepaliveInterval:   cfg.Wallet.KeepaliveInterval,
		ExpiryWarningWindow: cfg.Wallet.ExpiryWarningWindow,
		PairingTimeout:      cfg.Wallet.PairingTimeout,
		RetentionWindow:     cfg.Wallet.RetentionWindow,
	})
	app.walletSvc.SetNotifier(events.NewWalletBridge(app.bus))
	app.walletSvc.SetMetrics(metrics.NewWalletMetrics())

	// 5. Торговые адаптеры
	app.prices = pricing.NewClient(cfg, cache)
	app.signer = trading.NewRemoteSigner(app.walletSvc)

	// 6. Привязка кошельков к профилям пользователей
	subscribe(app.bus, users.NewWalletLinkSubscriber(app.usersSvc))

	// 7. Telegram: команды и уведомления
	if cfg.Telegram.Enabled {
		app.bot = telegram.NewBot(cfg)
		handler := telegram.NewHandler(
			app.bot, app.walletSvc, app.usersSvc, app.prices,
			cfg.Telegram.BotUsername, cfg.Relay.ChainID,
		)
		app.bot.SetUpdateHandler(handler.HandleUpdate)

		subscribe(app.bus, telegram.NewNotifier(app.bot, app.usersSvc))
	}

	// 8. HTTP: health-чеки и метрики Prometheus
	if cfg.HTTP.Enabled {
		app.httpSrv = httpserver.New(cfg)
		app.httpSrv.RegisterHealthCheck(app.redis)
		app.httpSrv.RegisterHealthCheck(app.bus)
		app.httpSrv.RegisterHealthCheck(dbHealth{db: db})
		if app.bot != nil {
			app.httpSrv.RegisterHealthCheck(app.bot)
		}
	}

	app.initialized = true
	logger.Info("🔧 Компоненты приложения собраны")
	return nil
}

// Run запускает компоненты и блокируется до сигнала остановки
func (app *Application) Run() error {
	app.mu.Lock()
	if app.running {
		app.mu.Unlock()
		return errors.New("application is already running")
	}
	if !app.initialized {
		app.mu.Unlock()
		return errors.New("application is not initialized")
	}
	app.running = true
	app.startTime = time.Now()
	app.mu.Unlock()

	if err := app.startComponents(); err != nil {
		app.mu.Lock()
		app.running = false
		app.mu.Unlock()
		return err
	}

	logger.Info("✅ Приложение запущено")

	<-app.stopChan
	logger.Info("🛑 Получен сигнал завершения...")
	app.shutdownWithTimeout(shutdownTimeout)
	return nil
}

// startComponents поднимает компоненты в порядке зависимостей:
// шина событий, восстановление сессий, HTTP, прием команд Telegram
func (app *Application) startComponents() error {
	app.bus.Start()

	// Восстановление идет до приема команд: пользователи с живыми
	// сессиями видят connected-состояние с первого обращения
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	report, err := app.walletSvc.RestoreAll(ctx)
	cancel()
	if err != nil {
		// Relay может быть недоступен при старте. Бот продолжает работать,
		// клиент поднимется при первом /connect.
		logger.Warn("⚠️ Восстановление сессий: %v", err)
	} else {
		logger.Info("♻️ Сессии: восстановлено %d, инвалидировано %d, вычищено %d",
			report.Restored, report.Invalidated, report.Pruned)
	}

	if app.httpSrv != nil {
		if err := app.httpSrv.Start(); err != nil {
			return fmt.Errorf("http server start: %w", err)
		}
	}

	if app.bot != nil {
		if app.testMode {
			logger.Info("🧪 Тестовый режим: Telegram polling отключен")
		} else if err := app.bot.Start(); err != nil {
			return fmt.Errorf("telegram start: %w", err)
		}
	}

	return nil
}

// shutdownWithTimeout выполняет graceful shutdown не дольше timeout
func (app *Application) shutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		app.shutdown()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ Graceful shutdown завершен")
	case <-time.After(timeout):
		logger.Warn("⚠️ Таймаут graceful shutdown, принудительное завершение")
	}
}

// shutdown останавливает компоненты в обратном порядке запуска.
// Установленные сессии не разрываются: записи остаются в store
// и поднимаются восстановителем при следующем старте.
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if app.bot != nil {
		app.bot.Stop()
	}

	if app.walletSvc != nil {
		app.walletSvc.Shutdown()
	}
	if app.broker != nil {
		app.broker.Shutdown(ctx)
	}

	if app.httpSrv != nil {
		if err := app.httpSrv.Stop(ctx); err != nil {
			logger.Warn("⚠️ Остановка HTTP сервера: %v", err)
		}
	}

	if app.bus != nil {
		app.bus.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			logger.Warn("⚠️ Закрытие пула Postgres: %v", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Stop(); err != nil {
			logger.Warn("⚠️ Остановка Redis: %v", err)
		}
	}

	app.mu.Lock()
	app.running = false
	uptime := time.Since(app.startTime)
	app.mu.Unlock()

	logger.Info("✅ Приложение остановлено. Время работы: %v", uptime.Round(time.Second))
}

// Stop сигнализирует приложению о необходимости остановки
func (app *Application) Stop() error {
	select {
	case app.stopChan <- syscall.SIGTERM:
	default:
		// Сигнал уже отправлен
	}
	return nil
}

// IsRunning сообщает, запущено ли приложение
func (app *Application) IsRunning() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.running
}

// Status возвращает снимок состояния приложения
func (app *Application) Status() map[string]interface{} {
	app.mu.RLock()
	running := app.running
	startTime := app.startTime
	app.mu.RUnlock()

	status := map[string]interface{}{
		"running":     running,
		"environment": app.config.Environment,
		"version":     app.config.Version,
	}
	if running {
		status["uptime"] = time.Since(startTime).String()
	}
	if app.walletSvc != nil {
		status["sessions"] = app.walletSvc.Stats()
	}
	if app.bus != nil {
		status["event_bus"] = app.bus.GetMetricsMap()
	}
	return status
}

// ==================== Сервисы приложения ====================

// WalletSessions возвращает менеджер кошелек-сессий
func (app *Application) WalletSessions() *walletsession.Service {
	return app.walletSvc
}

// Signer возвращает удаленный подписыватель транзакций
func (app *Application) Signer() *trading.RemoteSigner {
	return app.signer
}

// Prices возвращает источник котировок
func (app *Application) Prices() trading.PriceProvider {
	return app.prices
}

// Users возвращает сервис пользователей
func (app *Application) Users() *users.Service {
	return app.usersSvc
}

// ==================== Вспомогательные ====================

// subscribe подписывает подписчика на все заявленные им события
func subscribe(bus *events.EventBus, sub events.EventSubscriber) {
	for _, eventType := range sub.GetSubscribedEvents() {
		bus.Subscribe(eventType, sub)
	}
}

// pgConfig переводит конфигурацию приложения в настройки подключения Postgres
func pgConfig(cfg *config.Config) *postgres.Config {
	pc := &postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxOpenConns,
		MaxIdle:         cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxConnIdleTime,
		MigrationsPath:  cfg.Database.MigrationsPath,
	}
	if !cfg.Database.EnableAutoMigrate {
		pc.MigrationsPath = ""
	}
	return pc
}

// dbHealth адаптирует пул Postgres к health-чеку HTTP сервера
type dbHealth struct {
	db *sqlx.DB
}

func (h dbHealth) Name() string {
	return "PostgreSQL"
}

func (h dbHealth) HealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.db.PingContext(ctx) == nil
}

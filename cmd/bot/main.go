// cmd/bot/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bsc-trading-assistant-bot/application/bootstrap"
	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/pkg/logger"
)

var (
	version   = "1.0.0"
	buildTime = "неизвестно"
)

func main() {
	var (
		env         string
		cfgPath     string
		logLevel    string
		testMode    bool
		showHelp    bool
		showVersion bool
	)

	flag.StringVar(&env, "env", "dev", "Окружение (dev/prod)")
	flag.StringVar(&cfgPath, "config", "", "Путь к файлу конфигурации (переопределяет env)")
	flag.StringVar(&logLevel, "log-level", "", "Уровень логирования: debug, info, warn, error (переопределяет .env)")
	flag.BoolVar(&testMode, "test", false, "Тестовый режим (без приема команд Telegram)")
	flag.BoolVar(&showHelp, "help", false, "Показать справку")
	flag.BoolVar(&showVersion, "version", false, "Показать версию")
	flag.Parse()

	if showVersion {
		printVersion()
		return
	}
	if showHelp {
		printHelp()
		return
	}

	// Окружение выставляется до загрузки конфигурации
	os.Setenv("APP_ENV", env)

	configFile := resolveConfigPath(env, cfgPath)
	if configFile == "" {
		fmt.Printf("❌ Файл конфигурации не найден: configs/%s/.env и .env отсутствуют\n", env)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Printf("❌ Не удалось загрузить конфигурацию: %v\n", err)
		os.Exit(1)
	}

	cfg.Environment = env
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if !testMode {
		testMode = strings.EqualFold(os.Getenv("TEST_MODE"), "true")
	}

	run(cfg, configFile, testMode)
}

func run(cfg *config.Config, configFile string, testMode bool) {
	logPath := cfg.Logging.File
	if logPath == "" {
		logPath = "logs/trading_assistant.log"
	}

	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Printf("❌ Не удалось создать директорию логов %s: %v\n", logDir, err)
		os.Exit(1)
	}

	if err := logger.InitGlobal(logPath, cfg.Logging.Level, cfg.Logging.DebugMode); err != nil {
		fmt.Printf("❌ Файловый логгер недоступен: %v. Переход на консольный...\n", err)
		if err := logger.InitGlobal("", cfg.Logging.Level, cfg.Logging.DebugMode); err != nil {
			fmt.Printf("❌ Не удалось инициализировать логгер: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Close()

	if err := validateConfig(cfg); err != nil {
		logger.Error("❌ Валидация конфигурации: %v", err)
		os.Exit(1)
	}

	logger.Info("🚀 BSC Trading Assistant v%s (сборка: %s)", version, buildTime)
	logger.Info("📁 Конфигурация: %s", configFile)
	logger.Info("📋 Окружение: %s, уровень логов: %s", cfg.Environment, cfg.Logging.Level)
	logger.Info("🌐 Relay: %s (%s)", cfg.Relay.URL, cfg.Relay.ChainID)
	logger.Info("💾 PostgreSQL: %s:%d/%s, Redis: %s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Name, cfg.GetRedisAddress())
	if testMode {
		logger.Info("🧪 Запуск в тестовом режиме")
	}

	app, err := bootstrap.NewAppBuilder().
		WithConfig(cfg).
		WithTestMode(testMode).
		Build()
	if err != nil {
		logger.Error("❌ Сборка приложения: %v", err)
		os.Exit(1)
	}

	if err := app.Initialize(); err != nil {
		logger.Error("❌ Инициализация приложения: %v", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	runDone := make(chan error, 1)
	go func() {
		runDone <- app.Run()
	}()

	// Даем компонентам подняться перед проверкой состояния
	time.Sleep(2 * time.Second)
	if !app.IsRunning() {
		select {
		case err := <-runDone:
			logger.Error("❌ Запуск приложения: %v", err)
		default:
			logger.Error("❌ Приложение не запустилось")
		}
		os.Exit(1)
	}

	logger.Info("✅ Приложение работает. Ctrl+C для остановки")

	select {
	case sig := <-sigChan:
		logger.Info("📶 Получен сигнал: %v", sig)
		if err := app.Stop(); err != nil {
			logger.Error("❌ Остановка приложения: %v", err)
		}
		logger.Info("⏳ Ожидание graceful shutdown...")
		if err := <-runDone; err != nil {
			logger.Error("❌ Завершение с ошибкой: %v", err)
		}
	case err := <-runDone:
		if err != nil {
			logger.Error("❌ Приложение завершилось: %v", err)
			os.Exit(1)
		}
	}
}

// resolveConfigPath находит файл конфигурации: явный путь, затем
// configs/<env>/.env, затем .env, затем configs/dev/.env
func resolveConfigPath(env, explicit string) string {
	if explicit != "" {
		return explicit
	}

	candidates := []string{
		filepath.Join("configs", env, ".env"),
		".env",
		filepath.Join("configs", "dev", ".env"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// validateConfig проверяет параметры запуска, которые загрузчик
// конфигурации не контролирует
func validateConfig(cfg *config.Config) error {
	validEnvs := map[string]bool{"dev": true, "prod": true, "test": true}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("недопустимое окружение: %s (должно быть dev, prod или test)", cfg.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("недопустимый уровень логирования: %s", cfg.Logging.Level)
	}

	return nil
}

func printVersion() {
	fmt.Printf("🤖 BSC Trading Assistant v%s\n", version)
	fmt.Printf("📅 Сборка: %s\n", buildTime)
	fmt.Println()
	fmt.Println("📊 Функции:")
	fmt.Println("  • Подключение кошелька через relay-пейринг")
	fmt.Println("  • Сессии переживают рестарт процесса")
	fmt.Println("  • Удаленная подпись транзакций в кошельке пользователя")
	fmt.Println("  • Котировки токенов BSC")
	fmt.Println("  • Управление через Telegram")
}

func printHelp() {
	fmt.Println("🤖 BSC Trading Assistant")
	fmt.Println("Telegram-бот для торговли на BSC с подписью транзакций в кошельке пользователя")
	fmt.Println()
	fmt.Println("Использование: bot [опции]")
	fmt.Println()
	fmt.Println("Опции:")
	fmt.Println("  --env string       Окружение (dev/prod) (по умолчанию: dev)")
	fmt.Println("  --config string    Путь к файлу конфигурации (переопределяет env)")
	fmt.Println("  --log-level string Уровень логирования: debug, info, warn, error")
	fmt.Println("  --test             Тестовый режим (без приема команд Telegram)")
	fmt.Println("  --version          Показать информацию о версии")
	fmt.Println("  --help             Показать это справочное сообщение")
	fmt.Println()
	fmt.Println("Ключевые переменные окружения (.env):")
	fmt.Println("  TG_API_KEY           Токен Telegram бота")
	fmt.Println("  RELAY_URL            Адрес relay-сети")
	fmt.Println("  RELAY_PROJECT_ID     Идентификатор проекта в relay-сети")
	fmt.Println("  DB_HOST, DB_NAME     Подключение PostgreSQL")
	fmt.Println("  REDIS_HOST           Подключение Redis")
	fmt.Println("  LOG_LEVEL, LOG_FILE  Логирование")
	fmt.Println()
	fmt.Println("Примеры:")
	fmt.Println("  go run cmd/bot/main.go --env=dev --log-level=debug")
	fmt.Println("  go run cmd/bot/main.go --env=prod")
	fmt.Println("  go run cmd/bot/main.go --config=configs/dev/.env --test")
}

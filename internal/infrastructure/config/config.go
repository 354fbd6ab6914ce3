// /internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================
// КОНФИГУРАЦИЯ БАЗЫ ДАННЫХ
// ============================================

// DatabaseConfig - конфигурация базы данных
type DatabaseConfig struct {
	// Основные параметры подключения
	Host     string `mapstructure:"DB_HOST"`
	Port     int    `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`

	// Включение/отключение БД
	Enabled bool `mapstructure:"DB_ENABLED"`

	// Настройки пула соединений
	MaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	MaxConnLifetime time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`

	// Настройки миграций
	MigrationsPath    string `mapstructure:"DB_MIGRATIONS_PATH"`
	EnableAutoMigrate bool   `mapstructure:"DB_ENABLE_AUTO_MIGRATE"`
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	// Основные настройки подключения
	Host     string `mapstructure:"REDIS_HOST"`     // localhost
	Port     int    `mapstructure:"REDIS_PORT"`     // 6379
	Password string `mapstructure:"REDIS_PASSWORD"` // пустой или пароль
	DB       int    `mapstructure:"REDIS_DB"`       // 0

	// Включение/отключение Redis
	Enabled bool `mapstructure:"REDIS_ENABLED"`

	// Настройки пула соединений
	PoolSize        int           `mapstructure:"REDIS_POOL_SIZE"`         // 10
	MinIdleConns    int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`    // 5
	MaxRetries      int           `mapstructure:"REDIS_MAX_RETRIES"`       // 3
	MinRetryBackoff time.Duration `mapstructure:"REDIS_MIN_RETRY_BACKOFF"` // 8ms
	MaxRetryBackoff time.Duration `mapstructure:"REDIS_MAX_RETRY_BACKOFF"` // 512ms
	DialTimeout     time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`      // 5s
	ReadTimeout     time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`      // 3s
	WriteTimeout    time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`     // 3s
	PoolTimeout     time.Duration `mapstructure:"REDIS_POOL_TIMEOUT"`      // 4s
	IdleTimeout     time.Duration `mapstructure:"REDIS_IDLE_TIMEOUT"`      // 5m

	// Настройки кэширования
	DefaultTTL time.Duration `mapstructure:"REDIS_DEFAULT_TTL"` // 1h
}

// ============================================
// КОНФИГУРАЦИЯ RELAY-ПРОТОКОЛА (удаленный кошелек)
// ============================================

// RelayConfig - подключение к relay-сети для пейринга с кошельком
type RelayConfig struct {
	URL       string `mapstructure:"RELAY_URL"`        // wss://relay.example.org
	ProjectID string `mapstructure:"RELAY_PROJECT_ID"` // идентификатор проекта в relay-сети

	// Метаданные приложения, которые видит кошелек при пейринге
	AppName        string `mapstructure:"RELAY_APP_NAME"`
	AppDescription string `mapstructure:"RELAY_APP_DESCRIPTION"`
	AppURL         string `mapstructure:"RELAY_APP_URL"`

	// Целевая сеть (BSC mainnet)
	ChainID string `mapstructure:"RELAY_CHAIN_ID"` // eip155:56

	// Таймауты транспорта
	DialTimeout    time.Duration `mapstructure:"RELAY_DIAL_TIMEOUT"`
	RequestTimeout time.Duration `mapstructure:"RELAY_REQUEST_TIMEOUT"`
	PingInterval   time.Duration `mapstructure:"RELAY_PING_INTERVAL"`
}

// WalletConfig - тюнинг жизненного цикла кошелек-сессий
type WalletConfig struct {
	KeepaliveInterval   time.Duration `mapstructure:"WALLET_KEEPALIVE_INTERVAL"`    // 5m
	ExpiryWarningWindow time.Duration `mapstructure:"WALLET_EXPIRY_WARNING_WINDOW"` // 1h
	PairingTimeout      time.Duration `mapstructure:"WALLET_PAIRING_TIMEOUT"`       // 5m
	InitTimeout         time.Duration `mapstructure:"WALLET_INIT_TIMEOUT"`          // 10s
	RetentionWindow     time.Duration `mapstructure:"WALLET_RETENTION_WINDOW"`      // 168h
	SessionTTL          time.Duration `mapstructure:"WALLET_SESSION_TTL"`           // 7 дней, срок новой сессии
}

// ============================================
// ОСНОВНАЯ КОНФИГУРАЦИЯ ПРИЛОЖЕНИЯ
// ============================================

// Config - основная структура конфигурации
type Config struct {
	// ======================
	// ОСНОВНЫЕ НАСТРОЙКИ
	// ======================
	Environment string `mapstructure:"ENVIRONMENT"`
	Version     string `mapstructure:"VERSION"`

	// ======================
	// БАЗА ДАННЫХ
	// ======================
	Database DatabaseConfig `mapstructure:"DATABASE"`

	// Redis конфигурация Redis
	Redis RedisConfig `mapstructure:",squash"`

	// ======================
	// RELAY И КОШЕЛЕК
	// ======================
	Relay  RelayConfig  `mapstructure:",squash"`
	Wallet WalletConfig `mapstructure:",squash"`

	// ======================
	// ШИНА СОБЫТИЙ
	// ======================
	EventBus struct {
		BufferSize    int  `mapstructure:"EVENT_BUS_BUFFER_SIZE"`
		WorkerCount   int  `mapstructure:"EVENT_BUS_WORKER_COUNT"`
		EnableMetrics bool `mapstructure:"EVENT_BUS_ENABLE_METRICS"`
		EnableLogging bool `mapstructure:"EVENT_BUS_ENABLE_LOGGING"`
	} `mapstructure:",squash"`

	// ======================
	// TELEGRAM
	// ======================
	Telegram struct {
		Enabled     bool   `mapstructure:"TELEGRAM_ENABLED"`
		BotToken    string `mapstructure:"TG_API_KEY"`
		BotUsername string `mapstructure:"TG_BOT_USERNAME"`
		AdminChatID string `mapstructure:"TG_ADMIN_CHAT_ID"`
	} `mapstructure:",squash"`

	// ======================
	// POLLING КОНФИГУРАЦИЯ
	// ======================
	Polling struct {
		Timeout       int `mapstructure:"POLLING_TIMEOUT"`        // timeout в секундах
		Limit         int `mapstructure:"POLLING_LIMIT"`          // лимит обновлений
		RetryInterval int `mapstructure:"POLLING_RETRY_INTERVAL"` // интервал переподключения
	} `mapstructure:",squash"`

	// ======================
	// ЦЕНОВОЙ API
	// ======================
	Pricing struct {
		BaseURL  string        `mapstructure:"PRICING_BASE_URL"`
		Timeout  time.Duration `mapstructure:"PRICING_TIMEOUT"`
		CacheTTL time.Duration `mapstructure:"PRICING_CACHE_TTL"`
	} `mapstructure:",squash"`

	// ======================
	// HTTP СЕРВЕР (health/metrics)
	// ======================
	HTTP struct {
		Enabled bool   `mapstructure:"HTTP_ENABLED"`
		Host    string `mapstructure:"HTTP_HOST"`
		Port    int    `mapstructure:"HTTP_PORT"`
	} `mapstructure:",squash"`

	// ======================
	// ЛОГИРОВАНИЕ
	// ======================
	Logging struct {
		Level     string `mapstructure:"LOG_LEVEL"`
		File      string `mapstructure:"LOG_FILE"`
		ToConsole bool   `mapstructure:"LOG_TO_CONSOLE,omitempty"`
		ToFile    bool   `mapstructure:"LOG_TO_FILE,omitempty"`
		DebugMode bool   `mapstructure:"DEBUG_MODE,omitempty"`
	} `mapstructure:",squash"`
}

// ============================================
// ЗАГРУЗКА КОНФИГУРАЦИИ
// ============================================

// LoadConfig загружает конфигурацию из .env файла
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("⚠️  Config file not found, using environment variables\n")
	}

	cfg := &Config{}

	// ======================
	// ОСНОВНЫЕ НАСТРОЙКИ
	// ======================
	cfg.Environment = getEnv("ENVIRONMENT", "production")
	cfg.Version = getEnv("VERSION", "1.0.0")

	// ======================
	// БАЗА ДАННЫХ
	// ======================
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE_TIME", 10*time.Minute)
	cfg.Database.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "./internal/infrastructure/persistence/postgres/migrations")
	cfg.Database.EnableAutoMigrate = getEnvBool("DB_ENABLE_AUTO_MIGRATE", true)
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", true)

	// ======================
	// REDIS
	// ======================
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", 5)
	cfg.Redis.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", 3)
	cfg.Redis.MinRetryBackoff = getEnvDuration("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond)
	cfg.Redis.MaxRetryBackoff = getEnvDuration("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.PoolTimeout = getEnvDuration("REDIS_POOL_TIMEOUT", 4*time.Second)
	cfg.Redis.IdleTimeout = getEnvDuration("REDIS_IDLE_TIMEOUT", 5*time.Minute)
	cfg.Redis.DefaultTTL = getEnvDuration("REDIS_DEFAULT_TTL", 1*time.Hour)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", true)

	// ======================
	// RELAY И КОШЕЛЕК
	// ======================
	cfg.Relay.URL = getEnv("RELAY_URL", "wss://relay.walletlink.example")
	cfg.Relay.ProjectID = getEnv("RELAY_PROJECT_ID", "")
	cfg.Relay.AppName = getEnv("RELAY_APP_NAME", "BSC Trading Assistant")
	cfg.Relay.AppDescription = getEnv("RELAY_APP_DESCRIPTION", "Торговый ассистент BSC с удаленной подписью")
	cfg.Relay.AppURL = getEnv("RELAY_APP_URL", "https://t.me/bsc_trading_assistant_bot")
	cfg.Relay.ChainID = getEnv("RELAY_CHAIN_ID", "eip155:56")
	cfg.Relay.DialTimeout = getEnvDuration("RELAY_DIAL_TIMEOUT", 10*time.Second)
	cfg.Relay.RequestTimeout = getEnvDuration("RELAY_REQUEST_TIMEOUT", 30*time.Second)
	cfg.Relay.PingInterval = getEnvDuration("RELAY_PING_INTERVAL", 20*time.Second)

	cfg.Wallet.KeepaliveInterval = getEnvDuration("WALLET_KEEPALIVE_INTERVAL", 5*time.Minute)
	cfg.Wallet.ExpiryWarningWindow = getEnvDuration("WALLET_EXPIRY_WARNING_WINDOW", 1*time.Hour)
	cfg.Wallet.PairingTimeout = getEnvDuration("WALLET_PAIRING_TIMEOUT", 5*time.Minute)
	cfg.Wallet.InitTimeout = getEnvDuration("WALLET_INIT_TIMEOUT", 10*time.Second)
	cfg.Wallet.RetentionWindow = getEnvDuration("WALLET_RETENTION_WINDOW", 7*24*time.Hour)
	cfg.Wallet.SessionTTL = getEnvDuration("WALLET_SESSION_TTL", 7*24*time.Hour)

	// ======================
	// ШИНА СОБЫТИЙ
	// ======================
	cfg.EventBus.BufferSize = getEnvInt("EVENT_BUS_BUFFER_SIZE", 1000)
	cfg.EventBus.WorkerCount = getEnvInt("EVENT_BUS_WORKER_COUNT", 5)
	cfg.EventBus.EnableMetrics = getEnvBool("EVENT_BUS_ENABLE_METRICS", true)
	cfg.EventBus.EnableLogging = getEnvBool("EVENT_BUS_ENABLE_LOGGING", true)

	// ======================
	// TELEGRAM
	// ======================
	cfg.Telegram.Enabled = getEnvBool("TELEGRAM_ENABLED", true)
	cfg.Telegram.BotToken = getEnv("TG_API_KEY", "")
	cfg.Telegram.BotUsername = getEnv("TG_BOT_USERNAME", "")
	cfg.Telegram.AdminChatID = getEnv("TG_ADMIN_CHAT_ID", "")

	// ======================
	// POLLING КОНФИГУРАЦИЯ
	// ======================
	cfg.Polling.Timeout = getEnvInt("POLLING_TIMEOUT", 30)
	cfg.Polling.Limit = getEnvInt("POLLING_LIMIT", 100)
	cfg.Polling.RetryInterval = getEnvInt("POLLING_RETRY_INTERVAL", 5)

	// ======================
	// ЦЕНОВОЙ API
	// ======================
	cfg.Pricing.BaseURL = getEnv("PRICING_BASE_URL", "https://api.dexscreener.com")
	cfg.Pricing.Timeout = getEnvDuration("PRICING_TIMEOUT", 10*time.Second)
	cfg.Pricing.CacheTTL = getEnvDuration("PRICING_CACHE_TTL", 30*time.Second)

	// ======================
	// HTTP СЕРВЕР
	// ======================
	cfg.HTTP.Enabled = getEnvBool("HTTP_ENABLED", true)
	cfg.HTTP.Host = getEnv("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvInt("HTTP_PORT", 8080)

	// ======================
	// ЛОГИРОВАНИЕ
	// ======================
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.File = getEnv("LOG_FILE", "logs/trading_assistant.log")
	cfg.Logging.ToConsole = getEnvBool("LOG_TO_CONSOLE", true)
	cfg.Logging.ToFile = getEnvBool("LOG_TO_FILE", true)
	cfg.Logging.DebugMode = getEnvBool("DEBUG_MODE", false)

	// ======================
	// ВАЛИДАЦИЯ КОНФИГУРАЦИИ
	// ======================
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ============================================
// ВАЛИДАЦИЯ
// ============================================

// validate проверяет обязательные параметры конфигурации
func (c *Config) validate() error {
	var validationErrors []string

	// Проверка Telegram если включен
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			validationErrors = append(validationErrors, "TG_API_KEY is required when Telegram is enabled")
		}
	}

	// Проверка relay-подключения
	if c.Relay.URL == "" {
		validationErrors = append(validationErrors, "RELAY_URL is required")
	}
	if c.Relay.ProjectID == "" {
		validationErrors = append(validationErrors, "RELAY_PROJECT_ID is required")
	}
	if !strings.HasPrefix(c.Relay.ChainID, "eip155:") {
		validationErrors = append(validationErrors, "RELAY_CHAIN_ID must use the eip155 namespace")
	}

	// Проверка тюнинга кошелек-сессий
	if c.Wallet.KeepaliveInterval <= 0 {
		validationErrors = append(validationErrors, "WALLET_KEEPALIVE_INTERVAL must be positive")
	}
	if c.Wallet.ExpiryWarningWindow <= 0 {
		validationErrors = append(validationErrors, "WALLET_EXPIRY_WARNING_WINDOW must be positive")
	}
	if c.Wallet.PairingTimeout <= 0 {
		validationErrors = append(validationErrors, "WALLET_PAIRING_TIMEOUT must be positive")
	}
	if c.Wallet.InitTimeout <= 0 {
		validationErrors = append(validationErrors, "WALLET_INIT_TIMEOUT must be positive")
	}
	if c.Wallet.RetentionWindow < c.Wallet.SessionTTL {
		validationErrors = append(validationErrors, "WALLET_RETENTION_WINDOW must not be shorter than WALLET_SESSION_TTL")
	}

	// Проверка настроек базы данных
	if c.Database.Enabled {
		if c.Database.Host == "" {
			validationErrors = append(validationErrors, "DB_HOST is required")
		}
		if c.Database.Port <= 0 {
			validationErrors = append(validationErrors, "DB_PORT must be positive")
		}
		if c.Database.User == "" {
			validationErrors = append(validationErrors, "DB_USER is required")
		}
		if c.Database.Password == "" {
			validationErrors = append(validationErrors, "DB_PASSWORD is required")
		}
		if c.Database.Name == "" {
			validationErrors = append(validationErrors, "DB_NAME is required")
		}
	}

	// Проверка HTTP сервера
	if c.HTTP.Enabled {
		if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
			validationErrors = append(validationErrors, "HTTP_PORT must be in range 1-65535")
		}
	}

	if len(validationErrors) > 0 {
		errMsg := strings.Join(validationErrors, "; ")
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ МЕТОДЫ
// ============================================

// GetDatabaseConfig возвращает конфигурацию базы данных
func (c *Config) GetDatabaseConfig() DatabaseConfig {
	return c.Database
}

// GetPostgresDSN возвращает DSN для подключения к PostgreSQL
func (c *Config) GetPostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddress возвращает адрес Redis
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetHTTPAddress возвращает адрес HTTP сервера
func (c *Config) GetHTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// PrintSummary выводит сводку конфигурации при старте
func (c *Config) PrintSummary() {
	log.Printf("📋 Конфигурация приложения:")
	log.Printf("   • Окружение: %s", c.Environment)
	log.Printf("   • Версия: %s", c.Version)
	log.Printf("   • Уровень логирования: %s", c.Logging.Level)
	log.Printf("   • Telegram включен: %v", c.Telegram.Enabled)

	if c.Telegram.Enabled {
		token := c.Telegram.BotToken
		if len(token) > 10 {
			token = token[:10] + "..." + token[len(token)-10:]
		}
		log.Printf("   • Telegram Token: %s", token)
		log.Printf("   • Polling timeout: %d сек", c.Polling.Timeout)
	}

	// Relay и кошелек
	log.Printf("   • Relay: %s (проект: %s)", c.Relay.URL, c.Relay.ProjectID)
	log.Printf("   • Целевая сеть: %s", c.Relay.ChainID)
	log.Printf("   • Keepalive сессий: %v", c.Wallet.KeepaliveInterval)
	log.Printf("   • Окно продления: %v", c.Wallet.ExpiryWarningWindow)
	log.Printf("   • Хранение записей: %v", c.Wallet.RetentionWindow)

	// База данных
	if c.Database.Enabled {
		log.Printf("   • PostgreSQL: %s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Name)
	}
	log.Printf("   • Redis: %s:%d (DB: %d, Pool: %d)",
		c.Redis.Host, c.Redis.Port, c.Redis.DB, c.Redis.PoolSize)

	log.Printf("   • HTTP сервер: %v (порт: %d)", c.HTTP.Enabled, c.HTTP.Port)
	log.Printf("   • Ценовой API: %s", c.Pricing.BaseURL)
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ
// ============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	// Используем встроенную валидацию
	return c.validate()
}

// IsDev возвращает true если текущее окружение — разработка
func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

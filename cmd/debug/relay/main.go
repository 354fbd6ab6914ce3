package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bsc-trading-assistant-bot/internal/core/walletsession"
	"bsc-trading-assistant-bot/internal/infrastructure/api/relay"
	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/pkg/logger"
)

// Диагностика relay-подключения: поднимает протокольный клиент на хранилище
// в памяти, запускает пейринг и печатает URI для кошелька. Redis и
// production-записи сессий не затрагиваются.
func main() {
	if err := logger.InitGlobal("logs/debug_relay.log", "debug", true); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Debug("🔬 ДИАГНОСТИКА RELAY-ПОДКЛЮЧЕНИЯ")
	logger.Debug(strings.Repeat("=", 70))

	// 1. Проверяем конфигурацию
	logger.Debug("\n1️⃣  ПРОВЕРКА КОНФИГУРАЦИИ")
	cfg := loadProbeConfig()
	printRelayConfig(cfg)

	// 2. Создаем клиент на изолированном хранилище
	logger.Debug("\n2️⃣  СОЗДАНИЕ КЛИЕНТА")
	client := relay.New(relay.Config{
		URL:            cfg.Relay.URL,
		ProjectID:      cfg.Relay.ProjectID,
		AppName:        cfg.Relay.AppName + " (проба)",
		AppDescription: cfg.Relay.AppDescription,
		AppURL:         cfg.Relay.AppURL,
		DialTimeout:    cfg.Relay.DialTimeout,
		RequestTimeout: cfg.Relay.RequestTimeout,
		PingInterval:   cfg.Relay.PingInterval,
		PairingTTL:     cfg.Wallet.PairingTimeout,
		SessionTTL:     cfg.Wallet.SessionTTL,
	}, relay.NewMemoryStorage())
	logger.Debug("   ✅ Клиент создан (хранилище в памяти)")

	// 3. Соединяемся с relay
	logger.Debug("\n3️⃣  СОЕДИНЕНИЕ С RELAY")
	ctx := context.Background()
	started := time.Now()
	if err := client.Init(ctx); err != nil {
		log.Fatalf("❌ Relay недоступен: %v", err)
	}
	fmt.Printf("   ✅ Соединение установлено за %v\n", time.Since(started).Round(time.Millisecond))

	// 4. Запускаем пейринг
	logger.Debug("\n4️⃣  ЗАПУСК ПЕЙРИНГА")
	req, err := client.Connect(ctx, walletsession.Proposal{
		ChainID: cfg.Relay.ChainID,
		Methods: []string{"eth_sendTransaction", "personal_sign", "eth_signTypedData_v4"},
		Events:  []string{"accountsChanged", "chainChanged"},
	})
	if err != nil {
		log.Fatalf("❌ Пейринг не запустился: %v", err)
	}
	fmt.Printf("   📋 URI для кошелька:\n\n      %s\n\n", req.URI)
	fmt.Printf("   ⏳ Ожидание подтверждения (%v), Ctrl+C для выхода\n", cfg.Wallet.PairingTimeout)

	// 5. Ждем подтверждения кошельком
	logger.Debug("\n5️⃣  ОЖИДАНИЕ КОШЕЛЬКА")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case result := <-req.Approval:
		if result.Err != nil {
			fmt.Printf("   ❌ Пейринг не подтвержден: %v\n", result.Err)
			break
		}
		reportSession(ctx, client, result.Session, cfg.Relay.ChainID)
	case sig := <-sigChan:
		fmt.Printf("   📶 Сигнал %v, выходим без подтверждения\n", sig)
	}

	logger.Debug("\n🧹 ОСТАНОВКА КЛИЕНТА")
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		fmt.Printf("   ⚠️  Остановка клиента: %v\n", err)
	}
	logger.Debug("✅ Готово")
}

func loadProbeConfig() *config.Config {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalf("❌ Конфигурация: %v", err)
	}
	return cfg
}

func printRelayConfig(cfg *config.Config) {
	logger.Debug("   ⚙️  Настройки relay:")
	fmt.Printf("      • URL: %s\n", cfg.Relay.URL)
	fmt.Printf("      • Проект: %s\n", cfg.Relay.ProjectID)
	fmt.Printf("      • Сеть: %s\n", cfg.Relay.ChainID)
	fmt.Printf("      • Приложение: %s\n", cfg.Relay.AppName)
	fmt.Printf("      • Таймаут пейринга: %v\n", cfg.Wallet.PairingTimeout)
}

func reportSession(ctx context.Context, client *relay.Client, session walletsession.Session, chainID string) {
	fmt.Printf("   ✅ Сессия установлена\n")
	fmt.Printf("      • Топик: %s\n", session.Topic)
	fmt.Printf("      • Адрес: %s\n", session.Address(chainID))
	if !session.Expiry.IsZero() {
		fmt.Printf("      • Истекает: %s\n", session.Expiry.Format("2006-01-02 15:04:05"))
	}

	started := time.Now()
	if err := client.Ping(ctx, session.Topic); err != nil {
		fmt.Printf("      ⚠️  Ping: %v\n", err)
	} else {
		fmt.Printf("      🏓 Ping: %v\n", time.Since(started).Round(time.Millisecond))
	}

	stats := client.Stats()
	fmt.Printf("      📊 Клиент: подключен=%v, сессий=%d\n", stats.Connected, stats.Sessions)

	// Пробная сессия после отчета не нужна
	if err := client.Disconnect(ctx, session.Topic, "диагностика завершена"); err != nil {
		fmt.Printf("      ⚠️  Отключение: %v\n", err)
	} else {
		fmt.Printf("      🔌 Пробная сессия закрыта\n")
	}
}

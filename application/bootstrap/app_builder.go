// application/bootstrap/app_builder.go
package bootstrap

import (
	"fmt"

	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/pkg/logger"
)

// AppOption - опция настройки приложения перед инициализацией
type AppOption func(*Application) error

// AppBuilder - пошаговая сборка приложения
type AppBuilder struct {
	config  *config.Config
	options []AppOption
}

// NewAppBuilder создает строитель приложения
func NewAppBuilder() *AppBuilder {
	return &AppBuilder{}
}

// WithConfig устанавливает готовую конфигурацию
func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	b.config = cfg
	return b
}

// WithConfigFile загружает конфигурацию из файла.
// При ошибке загрузки конфигурация остается прежней.
func (b *AppBuilder) WithConfigFile(path string) *AppBuilder {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Warn("⚠️ Загрузка конфигурации %s: %v", path, err)
		return b
	}
	b.config = cfg
	return b
}

// WithOption добавляет опцию настройки
func (b *AppBuilder) WithOption(option AppOption) *AppBuilder {
	b.options = append(b.options, option)
	return b
}

// WithTestMode включает тестовый режим
func (b *AppBuilder) WithTestMode(enabled bool) *AppBuilder {
	return b.WithOption(func(app *Application) error {
		app.SetTestMode(enabled)
		return nil
	})
}

// Build собирает приложение и применяет опции.
// Инициализацию компонентов запускает вызывающий через app.Initialize.
func (b *AppBuilder) Build() (*Application, error) {
	if b.config == nil {
		cfg, err := config.LoadConfig(".env")
		if err != nil {
			return nil, fmt.Errorf("load default config: %w", err)
		}
		b.config = cfg
	}

	app, err := NewApplication(b.config)
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	for _, option := range b.options {
		if err := option(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	return app, nil
}

// internal/telegram/bot.go
package telegram

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/internal/infrastructure/metrics"
	"bsc-trading-assistant-bot/pkg/logger"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ==================== Типы Bot API ====================

// Update - обновление от Telegram Bot API
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message - входящее сообщение
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
	Date      int64  `json:"date"`
}

// User - пользователь Telegram
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat - чат Telegram
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset"`
	Timeout        int      `json:"timeout"`
	Limit          int      `json:"limit,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// ==================== Ограничитель частоты ====================

// rateLimiter выдерживает минимальный интервал между сообщениями в один чат.
// Конкурентные отправители выстраиваются в очередь, а не отбрасываются.
type rateLimiter struct {
	mu       sync.Mutex
	lastSent map[int64]time.Time
	minDelay time.Duration
}

func newRateLimiter(minDelay time.Duration) *rateLimiter {
	return &rateLimiter{
		lastSent: make(map[int64]time.Time),
		minDelay: minDelay,
	}
}

func (rl *rateLimiter) wait(chatID int64) {
	rl.mu.Lock()
	now := time.Now()
	slot := rl.lastSent[chatID].Add(rl.minDelay)
	if slot.Before(now) {
		slot = now
	}
	rl.lastSent[chatID] = slot
	rl.mu.Unlock()

	if delay := time.Until(slot); delay > 0 {
		time.Sleep(delay)
	}
}

// ==================== Бот ====================

// Bot - клиент Telegram Bot API: длинный опрос getUpdates и отправка
// текстовых ответов с ограничением частоты
type Bot struct {
	config     *config.Config
	httpClient *http.Client
	baseURL    string
	handler    func(Update)
	limiter    *rateLimiter

	mu           sync.Mutex
	running      bool
	lastUpdateID int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBot создает клиент Bot API из конфигурации
func NewBot(cfg *config.Config) *Bot {
	pollTimeout := time.Duration(cfg.Polling.Timeout) * time.Second

	return &Bot{
		config:  cfg,
		baseURL: fmt.Sprintf("https://api.telegram.org/bot%s/", cfg.Telegram.BotToken),
		httpClient: &http.Client{
			// Клиент обязан переживать длинный опрос целиком
			Timeout: pollTimeout + 10*time.Second,
		},
		limiter: newRateLimiter(time.Second),
		stopCh:  make(chan struct{}),
	}
}

// SetUpdateHandler задает обработчик входящих обновлений.
// Выставляется до Start.
func (b *Bot) SetUpdateHandler(handler func(Update)) {
	b.handler = handler
}

// Start снимает webhook и запускает цикл длинного опроса
func (b *Bot) Start() error {
	if b.config.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is not configured")
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("telegram bot is already running")
	}
	b.running = true
	b.mu.Unlock()

	// Webhook и polling взаимоисключающие: сначала снимается старый webhook
	if err := b.deleteWebhook(); err != nil {
		logger.Warn("⚠️ Не удалось удалить webhook: %v", err)
	}

	b.wg.Add(1)
	go b.pollLoop()

	logger.Info("📨 Telegram polling запущен (timeout=%dс, limit=%d)",
		b.config.Polling.Timeout, b.config.Polling.Limit)
	return nil
}

// Stop останавливает опрос и дожидается завершения цикла
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopCh)
	b.wg.Wait()
	logger.Info("🛑 Telegram polling остановлен")
}

// IsRunning возвращает статус цикла опроса
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Name возвращает имя компонента
func (b *Bot) Name() string {
	return "TelegramBot"
}

// HealthCheck возвращает состояние компонента
func (b *Bot) HealthCheck() bool {
	return b.IsRunning()
}

// ==================== Цикл опроса ====================

func (b *Bot) pollLoop() {
	defer b.wg.Done()

	retryInterval := time.Duration(b.config.Polling.RetryInterval) * time.Second
	if retryInterval <= 0 {
		retryInterval = 5 * time.Second
	}

	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		updates, err := b.getUpdates()
		if err != nil {
			logger.Error("❌ Ошибка получения обновлений: %v", err)
			select {
			case <-b.stopCh:
				return
			case <-time.After(retryInterval):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= b.lastUpdateID {
				b.lastUpdateID = update.UpdateID + 1
			}
			if b.handler != nil {
				b.handler(update)
			}
		}
	}
}

// getUpdates запрашивает очередную порцию обновлений длинным опросом
func (b *Bot) getUpdates() ([]Update, error) {
	payload := getUpdatesRequest{
		Offset:         b.lastUpdateID,
		Timeout:        b.config.Polling.Timeout,
		Limit:          b.config.Polling.Limit,
		AllowedUpdates: []string{"message"},
	}

	body, err := b.call("getUpdates", payload)
	if err != nil {
		return nil, err
	}

	var response struct {
		OK          bool     `json:"ok"`
		Result      []Update `json:"result"`
		ErrorCode   int      `json:"error_code,omitempty"`
		Description string   `json:"description,omitempty"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse updates response: %w", err)
	}
	if !response.OK {
		return nil, fmt.Errorf("telegram API error %d: %s", response.ErrorCode, response.Description)
	}

	return response.Result, nil
}

// ==================== Отправка ====================

// SendMessage отправляет текстовое сообщение в чат
func (b *Bot) SendMessage(chatID int64, text string) error {
	err := b.sendMessage(chatID, text, false)
	metrics.RecordMessageSent(err)
	return err
}

func (b *Bot) sendMessage(chatID int64, text string, retried bool) error {
	b.limiter.wait(chatID)

	payload := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	}

	body, err := b.call("sendMessage", payload)
	if err != nil {
		return err
	}

	var response apiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("failed to parse send response: %w", err)
	}
	if response.OK {
		return nil
	}

	// На 429 ждем указанный API интервал и повторяем один раз
	if response.ErrorCode == 429 && !retried {
		retryAfter := 5
		if response.Parameters != nil && response.Parameters.RetryAfter > 0 {
			retryAfter = response.Parameters.RetryAfter
		}
		logger.Warn("⚠️ Лимит Telegram API, повтор через %dс", retryAfter)
		time.Sleep(time.Duration(retryAfter) * time.Second)
		return b.sendMessage(chatID, text, true)
	}

	return fmt.Errorf("telegram API error %d: %s", response.ErrorCode, response.Description)
}

// deleteWebhook снимает webhook и сбрасывает накопленную очередь обновлений
func (b *Bot) deleteWebhook() error {
	payload := map[string]interface{}{
		"drop_pending_updates": true,
	}

	body, err := b.call("deleteWebhook", payload)
	if err != nil {
		return err
	}

	var response apiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("failed to parse webhook response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("telegram API error %d: %s", response.ErrorCode, response.Description)
	}

	logger.Debug("🧹 Webhook снят, очередь обновлений сброшена")
	return nil
}

// call выполняет запрос к методу Bot API и возвращает сырое тело ответа.
// Логические ошибки API приходят в теле с ok=false и разбираются выше.
func (b *Bot) call(method string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	resp, err := b.httpClient.Post(b.baseURL+method, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	return body, nil
}

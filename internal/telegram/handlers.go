// internal/telegram/handlers.go
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bsc-trading-assistant-bot/internal/core/trading"
	"bsc-trading-assistant-bot/internal/core/users"
	"bsc-trading-assistant-bot/internal/core/walletsession"
	"bsc-trading-assistant-bot/internal/infrastructure/metrics"
	"bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres/models"
	"bsc-trading-assistant-bot/pkg/logger"
)

const (
	// commandTimeout ограничивает обработку одной команды
	commandTimeout = 15 * time.Second

	// maxUpdateAge отсекает обновления, накопившиеся за время простоя
	maxUpdateAge = 5 * time.Minute
)

// Sender отправляет текстовые сообщения в чат
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// WalletService - операции жизненного цикла сессии кошелька
type WalletService interface {
	Connect(ctx context.Context, userID int64) (string, error)
	Disconnect(ctx context.Context, userID int64) error
	Reconnect(ctx context.Context, userID int64) (string, error)
	SessionState(userID int64) walletsession.SessionState
	GetActiveAddress(userID int64) (string, bool)
}

// UserService - регистрация и поиск пользователей
type UserService interface {
	EnsureUser(ctx context.Context, profile users.Profile) (*models.User, error)
}

// PriceService отдает котировки токенов
type PriceService interface {
	TokenPrice(ctx context.Context, chainID, tokenAddress string) (*trading.TokenPrice, error)
}

// Handler маршрутизирует команды бота в сервисы кошелька и пользователей
type Handler struct {
	sender  Sender
	wallet  WalletService
	users   UserService
	prices  PriceService
	botName string
	chainID string
}

// NewHandler создает маршрутизатор команд.
// botName нужен для отсечения команд, адресованных другим ботам в группах.
func NewHandler(sender Sender, wallet WalletService, userSvc UserService, prices PriceService, botName, chainID string) *Handler {
	return &Handler{
		sender:  sender,
		wallet:  wallet,
		users:   userSvc,
		prices:  prices,
		botName: botName,
		chainID: chainID,
	}
}

// HandleUpdate обрабатывает одно обновление от Telegram
func (h *Handler) HandleUpdate(update Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil || msg.From.IsBot {
		return
	}

	if isOldMessage(msg) {
		logger.Debug("⏰ Пропускаем старое обновление %d", update.UpdateID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	profile := users.Profile{
		TelegramID: msg.From.ID,
		ChatID:     msg.Chat.ID,
		Username:   msg.From.Username,
		FirstName:  msg.From.FirstName,
		LastName:   msg.From.LastName,
		Language:   msg.From.LanguageCode,
	}
	if _, err := h.users.EnsureUser(ctx, profile); err != nil {
		logger.Warn("⚠️ Регистрация пользователя %d: %v", msg.From.ID, err)
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		h.reply(msg.Chat.ID, "Я понимаю только команды. Отправьте /start для списка.")
		return
	}

	command := parseCommand(text, h.botName)
	if command == "" {
		// Команда адресована другому боту
		return
	}

	logger.Info("⚡ Команда %s от пользователя %d", command, msg.From.ID)

	switch command {
	case "/start":
		metrics.RecordCommand("start")
		h.handleStart(msg)
	case "/connect":
		metrics.RecordCommand("connect")
		h.handleConnect(ctx, msg)
	case "/disconnect":
		metrics.RecordCommand("disconnect")
		h.handleDisconnect(ctx, msg)
	case "/reconnect":
		metrics.RecordCommand("reconnect")
		h.handleReconnect(ctx, msg)
	case "/status":
		metrics.RecordCommand("status")
		h.handleStatus(msg)
	case "/address":
		metrics.RecordCommand("address")
		h.handleAddress(msg)
	case "/price":
		metrics.RecordCommand("price")
		h.handlePrice(ctx, msg)
	default:
		metrics.RecordCommand("unknown")
		h.reply(msg.Chat.ID, fmt.Sprintf("❓ Неизвестная команда: %s. Используйте /start", command))
	}
}

// ==================== Команды ====================

func (h *Handler) handleStart(msg *Message) {
	welcome := "🤖 *BSC торговый ассистент*\n\n" +
		"Подключите кошелек и управляйте сессией:\n\n" +
		"/connect - подключить кошелек\n" +
		"/disconnect - отключить кошелек\n" +
		"/reconnect - пересоздать подключение\n" +
		"/status - состояние сессии\n" +
		"/address - адрес подключенного кошелька\n" +
		"/price <адрес> - котировка токена"

	h.reply(msg.Chat.ID, welcome)
}

func (h *Handler) handleConnect(ctx context.Context, msg *Message) {
	if address, ok := h.wallet.GetActiveAddress(msg.From.ID); ok {
		h.reply(msg.Chat.ID, fmt.Sprintf(
			"✅ Кошелек уже подключен: `%s`\nИспользуйте /reconnect для новой сессии.", address))
		return
	}

	uri, err := h.wallet.Connect(ctx, msg.From.ID)
	if err != nil {
		logger.Error("❌ Подключение пользователя %d: %v", msg.From.ID, err)
		h.reply(msg.Chat.ID, "❌ Не удалось начать подключение. Попробуйте позже.")
		return
	}

	h.replyPairingURI(msg.Chat.ID, uri)
}

func (h *Handler) handleDisconnect(ctx context.Context, msg *Message) {
	if h.wallet.SessionState(msg.From.ID) == walletsession.StateDisconnected {
		h.reply(msg.Chat.ID, "Кошелек не подключен.")
		return
	}

	if err := h.wallet.Disconnect(ctx, msg.From.ID); err != nil {
		logger.Error("❌ Отключение пользователя %d: %v", msg.From.ID, err)
		h.reply(msg.Chat.ID, "❌ Не удалось отключить кошелек. Попробуйте позже.")
		return
	}

	h.reply(msg.Chat.ID, "🔌 Отключаю кошелек...")
}

func (h *Handler) handleReconnect(ctx context.Context, msg *Message) {
	uri, err := h.wallet.Reconnect(ctx, msg.From.ID)
	if err != nil {
		logger.Error("❌ Переподключение пользователя %d: %v", msg.From.ID, err)
		h.reply(msg.Chat.ID, "❌ Не удалось пересоздать подключение. Попробуйте позже.")
		return
	}

	h.replyPairingURI(msg.Chat.ID, uri)
}

func (h *Handler) handleStatus(msg *Message) {
	switch h.wallet.SessionState(msg.From.ID) {
	case walletsession.StateConnected:
		address, _ := h.wallet.GetActiveAddress(msg.From.ID)
		h.reply(msg.Chat.ID, fmt.Sprintf("✅ Кошелек подключен\n📍 Адрес: `%s`", address))
	case walletsession.StateExpiring:
		address, _ := h.wallet.GetActiveAddress(msg.From.ID)
		h.reply(msg.Chat.ID, fmt.Sprintf(
			"✅ Кошелек подключен, сессия продлевается\n📍 Адрес: `%s`", address))
	case walletsession.StatePairing, walletsession.StateAwaitingApproval:
		h.reply(msg.Chat.ID, "⏳ Ожидаю подтверждение подключения в кошельке...")
	default:
		h.reply(msg.Chat.ID, "🔌 Кошелек не подключен. Отправьте /connect")
	}
}

func (h *Handler) handleAddress(msg *Message) {
	address, ok := h.wallet.GetActiveAddress(msg.From.ID)
	if !ok {
		h.reply(msg.Chat.ID, "🔌 Кошелек не подключен. Отправьте /connect")
		return
	}

	h.reply(msg.Chat.ID, fmt.Sprintf("📍 Адрес кошелька: `%s`", address))
}

func (h *Handler) handlePrice(ctx context.Context, msg *Message) {
	args := strings.Fields(msg.Text)
	if len(args) < 2 {
		h.reply(msg.Chat.ID, "Укажите адрес токена: /price 0x...")
		return
	}

	tokenAddress := args[1]
	if !isTokenAddress(tokenAddress) {
		h.reply(msg.Chat.ID, "❌ Некорректный адрес токена. Ожидаю адрес вида 0x...")
		return
	}

	price, err := h.prices.TokenPrice(ctx, h.chainID, tokenAddress)
	if err != nil {
		logger.Error("❌ Котировка %s: %v", tokenAddress, err)
		h.reply(msg.Chat.ID, "❌ Не удалось получить котировку. Попробуйте позже.")
		return
	}

	h.reply(msg.Chat.ID, formatPrice(price))
}

// ==================== Вспомогательные ====================

// replyPairingURI отправляет ссылку пейринга для вставки в кошелек
func (h *Handler) replyPairingURI(chatID int64, uri string) {
	h.reply(chatID, fmt.Sprintf(
		"🔗 Откройте кошелек и вставьте ссылку подключения:\n\n`%s`\n\n"+
			"Ожидаю подтверждение...", uri))
}

func (h *Handler) reply(chatID int64, text string) {
	if err := h.sender.SendMessage(chatID, text); err != nil {
		logger.Error("❌ Ошибка отправки ответа в чат %d: %v", chatID, err)
	}
}

// formatPrice собирает текст котировки
func formatPrice(p *trading.TokenPrice) string {
	symbol := p.Symbol
	if symbol == "" {
		symbol = p.Address
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s*\n", symbol)
	fmt.Fprintf(&b, "💵 Цена: $%s\n", formatAmount(p.PriceUSD))
	fmt.Fprintf(&b, "💧 Ликвидность: $%s\n", formatAmount(p.LiquidityUSD))
	fmt.Fprintf(&b, "📊 Объем 24ч: $%s\n", formatAmount(p.Volume24h))
	fmt.Fprintf(&b, "%s Изменение 24ч: %+.2f%%", changeEmoji(p.Change24h), p.Change24h)
	return b.String()
}

// formatAmount подбирает точность под величину числа
func formatAmount(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.0f", v)
	case v >= 1:
		return fmt.Sprintf("%.2f", v)
	case v >= 0.0001:
		return fmt.Sprintf("%.6f", v)
	default:
		return fmt.Sprintf("%.10f", v)
	}
}

func changeEmoji(change float64) string {
	if change < 0 {
		return "🔻"
	}
	return "🟢"
}

// isTokenAddress - грубая проверка формата EVM-адреса
func isTokenAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// parseCommand выделяет команду из текста и снимает @упоминание.
// Пустая строка означает команду для другого бота.
func parseCommand(text, botName string) string {
	command := strings.Fields(text)[0]

	if at := strings.Index(command, "@"); at > 0 {
		if botName != "" && !strings.EqualFold(command[at+1:], botName) {
			return ""
		}
		command = command[:at]
	}

	return strings.ToLower(command)
}

// isOldMessage - истинно для сообщений старше maxUpdateAge
func isOldMessage(msg *Message) bool {
	if msg.Date == 0 {
		return false
	}
	return time.Since(time.Unix(msg.Date, 0)) > maxUpdateAge
}

// internal/infrastructure/persistence/postgres/models/users.go
package models

import (
	"time"
)

// User - основная модель пользователя
type User struct {
	ID         int    `db:"id" json:"id"`
	TelegramID int64  `db:"telegram_id" json:"telegram_id"`
	ChatID     int64  `db:"chat_id" json:"chat_id"`
	Username   string `db:"username" json:"username"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name,omitempty"`
	Language   string `db:"language" json:"language"`

	// Привязка кошелька. Адрес фиксируется при подтверждении пейринга
	// и сверяется при восстановлении сессии после рестарта.
	WalletAddress  string    `db:"wallet_address" json:"wallet_address,omitempty"`
	WalletLinkedAt time.Time `db:"wallet_linked_at" json:"wallet_linked_at,omitempty"`

	// Торговые настройки
	SlippageBps        int  `db:"slippage_bps" json:"slippage_bps"` // проскальзывание в базисных пунктах
	TradeNotifications bool `db:"trade_notifications" json:"trade_notifications"`

	// Статус
	IsActive bool `db:"is_active" json:"is_active"`

	// Временные метки
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// Значения по умолчанию для новых пользователей
const (
	DefaultLanguage    = "ru"
	DefaultSlippageBps = 100
)

// HasWallet возвращает true, если к пользователю привязан кошелек
func (u *User) HasWallet() bool {
	return u.WalletAddress != ""
}

// DisplayName возвращает имя для отображения в сообщениях
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// ShortWallet возвращает сокращенный адрес кошелька для отображения
func (u *User) ShortWallet() string {
	if len(u.WalletAddress) <= 12 {
		return u.WalletAddress
	}
	return u.WalletAddress[:6] + "..." + u.WalletAddress[len(u.WalletAddress)-4:]
}

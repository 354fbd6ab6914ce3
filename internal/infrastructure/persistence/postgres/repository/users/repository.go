// internal/infrastructure/persistence/postgres/repository/users/repository.go
package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bsc-trading-assistant-bot/internal/infrastructure/cache/redis"
	"bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres/models"

	"github.com/jmoiron/sqlx"
)

// UserRepository интерфейс для работы с данными пользователей
type UserRepository interface {
	FindByID(id int) (*models.User, error)
	FindByTelegramID(telegramID int64) (*models.User, error)
	Create(user *models.User) error
	Update(user *models.User) error
	UpdateWalletLink(telegramID int64, address string) error
	ClearWalletLink(telegramID int64) error
	UpdateLastSeen(telegramID int64) error
	GetAllActive() ([]*models.User, error)
	GetTotalCount(ctx context.Context) (int, error)
}

// UserRepositoryImpl реализация репозитория пользователей
type UserRepositoryImpl struct {
	db    *sqlx.DB
	cache *redis.Cache
}

// NewUserRepository создает новый репозиторий пользователей.
// cache может быть nil, тогда инвалидация кэша пропускается.
func NewUserRepository(db *sqlx.DB, cache *redis.Cache) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db, cache: cache}
}

// Create создает нового пользователя
func (r *UserRepositoryImpl) Create(user *models.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO users (
			telegram_id, chat_id, username, first_name, last_name, language,
			wallet_address, wallet_linked_at,
			slippage_bps, trade_notifications,
			is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10,
			$11, $12, $13
		)
		RETURNING id
	`

	err = tx.QueryRow(
		query,
		user.TelegramID, user.ChatID, user.Username, user.FirstName, user.LastName, user.Language,
		getNullString(user.WalletAddress), getNullTime(user.WalletLinkedAt),
		user.SlippageBps, user.TradeNotifications,
		user.IsActive, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID находит пользователя по ID
func (r *UserRepositoryImpl) FindByID(id int) (*models.User, error) {
	query := `
		SELECT
			id, telegram_id, chat_id, username, first_name, last_name, language,
			wallet_address, wallet_linked_at,
			slippage_bps, trade_notifications,
			is_active, created_at, updated_at, last_seen_at
		FROM users
		WHERE id = $1
	`

	row := r.db.QueryRow(query, id)
	return r.scanUserRow(row)
}

// FindByTelegramID находит пользователя по Telegram ID
func (r *UserRepositoryImpl) FindByTelegramID(telegramID int64) (*models.User, error) {
	query := `
		SELECT
			id, telegram_id, chat_id, username, first_name, last_name, language,
			wallet_address, wallet_linked_at,
			slippage_bps, trade_notifications,
			is_active, created_at, updated_at, last_seen_at
		FROM users
		WHERE telegram_id = $1
	`

	row := r.db.QueryRow(query, telegramID)
	return r.scanUserRow(row)
}

// GetAllActive получает всех активных пользователей
func (r *UserRepositoryImpl) GetAllActive() ([]*models.User, error) {
	query := `
		SELECT
			id, telegram_id, chat_id, username, first_name, last_name, language,
			wallet_address, wallet_linked_at,
			slippage_bps, trade_notifications,
			is_active, created_at, updated_at, last_seen_at
		FROM users
		WHERE is_active = TRUE
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userList []*models.User

	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		userList = append(userList, user)
	}

	return userList, rows.Err()
}

// Update обновляет пользователя
func (r *UserRepositoryImpl) Update(user *models.User) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE users SET
			chat_id = $1,
			username = $2,
			first_name = $3,
			last_name = $4,
			language = $5,
			wallet_address = $6,
			wallet_linked_at = $7,
			slippage_bps = $8,
			trade_notifications = $9,
			is_active = $10,
			last_seen_at = $11,
			updated_at = $12
		WHERE telegram_id = $13
	`

	result, err := tx.Exec(query,
		user.ChatID, user.Username, user.FirstName, user.LastName, user.Language,
		getNullString(user.WalletAddress), getNullTime(user.WalletLinkedAt),
		user.SlippageBps, user.TradeNotifications,
		user.IsActive, getNullTime(user.LastSeenAt),
		time.Now(), user.TelegramID,
	)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.invalidateUserCache(user.TelegramID)

	return nil
}

// UpdateWalletLink привязывает адрес кошелька к пользователю
func (r *UserRepositoryImpl) UpdateWalletLink(telegramID int64, address string) error {
	query := `
		UPDATE users
		SET wallet_address = $1,
			wallet_linked_at = NOW(),
			updated_at = NOW()
		WHERE telegram_id = $2
	`

	result, err := r.db.Exec(query, address, telegramID)
	if err != nil {
		return fmt.Errorf("failed to link wallet: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	r.invalidateUserCache(telegramID)

	return nil
}

// ClearWalletLink отвязывает кошелек от пользователя
func (r *UserRepositoryImpl) ClearWalletLink(telegramID int64) error {
	query := `
		UPDATE users
		SET wallet_address = NULL,
			wallet_linked_at = NULL,
			updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.db.Exec(query, telegramID)
	if err != nil {
		return fmt.Errorf("failed to unlink wallet: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	r.invalidateUserCache(telegramID)

	return nil
}

// UpdateLastSeen обновляет время последней активности пользователя
func (r *UserRepositoryImpl) UpdateLastSeen(telegramID int64) error {
	query := `
		UPDATE users
		SET last_seen_at = NOW(),
			updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.db.Exec(query, telegramID)
	if err != nil {
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// GetTotalCount возвращает общее количество пользователей
func (r *UserRepositoryImpl) GetTotalCount(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM users`

	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Вспомогательные методы

// scanUser сканирует строку из rows в User
func (r *UserRepositoryImpl) scanUser(rows *sql.Rows) (*models.User, error) {
	var user models.User
	var walletAddress sql.NullString
	var walletLinkedAt, lastSeenAt sql.NullTime

	err := rows.Scan(
		&user.ID, &user.TelegramID, &user.ChatID, &user.Username,
		&user.FirstName, &user.LastName, &user.Language,
		&walletAddress, &walletLinkedAt,
		&user.SlippageBps, &user.TradeNotifications,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &lastSeenAt,
	)

	if err != nil {
		return nil, err
	}

	applyNullable(&user, walletAddress, walletLinkedAt, lastSeenAt)

	return &user, nil
}

// scanUserRow сканирует строку из row в User
func (r *UserRepositoryImpl) scanUserRow(row *sql.Row) (*models.User, error) {
	var user models.User
	var walletAddress sql.NullString
	var walletLinkedAt, lastSeenAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.TelegramID, &user.ChatID, &user.Username,
		&user.FirstName, &user.LastName, &user.Language,
		&walletAddress, &walletLinkedAt,
		&user.SlippageBps, &user.TradeNotifications,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &lastSeenAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	applyNullable(&user, walletAddress, walletLinkedAt, lastSeenAt)

	return &user, nil
}

// applyNullable переносит nullable-колонки в модель
func applyNullable(user *models.User, walletAddress sql.NullString, walletLinkedAt, lastSeenAt sql.NullTime) {
	if walletAddress.Valid {
		user.WalletAddress = walletAddress.String
	}
	if walletLinkedAt.Valid {
		user.WalletLinkedAt = walletLinkedAt.Time
	}
	if lastSeenAt.Valid {
		user.LastSeenAt = lastSeenAt.Time
	}
}

// invalidateUserCache инвалидирует кэш пользователя
func (r *UserRepositoryImpl) invalidateUserCache(telegramID int64) {
	if r.cache == nil {
		return
	}
	_ = r.cache.DeleteUserByTelegramID(context.Background(), telegramID)
}

// getNullTime преобразует время в NullTime
func getNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{
		Time:  t,
		Valid: true,
	}
}

// getNullString преобразует строку в NullString
func getNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{
		String: s,
		Valid:  true,
	}
}

// internal/core/users/service.go
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	rediscache "bsc-trading-assistant-bot/internal/infrastructure/cache/redis"
	"bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres/models"
	userrepo "bsc-trading-assistant-bot/internal/infrastructure/persistence/postgres/repository/users"
	"bsc-trading-assistant-bot/pkg/logger"
)

// userCacheTTL ограничивает жизнь профиля в кэше
const userCacheTTL = 5 * time.Minute

// Profile - данные пользователя из Telegram-обновления
type Profile struct {
	TelegramID int64
	ChatID     int64
	Username   string
	FirstName  string
	LastName   string
	Language   string
}

// Service - сервис пользователей: первый контакт, профиль, привязка кошелька
type Service struct {
	repo  userrepo.UserRepository
	cache *rediscache.Cache
}

// NewService создает сервис пользователей. cache может быть nil, тогда
// чтения всегда идут в базу.
func NewService(repo userrepo.UserRepository, cache *rediscache.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// EnsureUser возвращает пользователя, создавая запись при первом контакте.
// Известным пользователям обновляется профиль и время последней активности.
func (s *Service) EnsureUser(ctx context.Context, profile Profile) (*models.User, error) {
	user, err := s.repo.FindByTelegramID(profile.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", profile.TelegramID, err)
	}

	if user == nil {
		user = &models.User{
			TelegramID:         profile.TelegramID,
			ChatID:             profile.ChatID,
			Username:           profile.Username,
			FirstName:          profile.FirstName,
			LastName:           profile.LastName,
			Language:           profile.Language,
			SlippageBps:        models.DefaultSlippageBps,
			TradeNotifications: true,
			IsActive:           true,
		}
		if user.Language == "" {
			user.Language = models.DefaultLanguage
		}

		if err := s.repo.Create(user); err != nil {
			return nil, fmt.Errorf("failed to create user %d: %w", profile.TelegramID, err)
		}

		logger.Info("👤 Новый пользователь: %s (id=%d)", user.DisplayName(), user.TelegramID)
		s.cacheUser(ctx, user)
		return user, nil
	}

	if profileChanged(user, profile) {
		user.Username = profile.Username
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
		if profile.ChatID != 0 {
			user.ChatID = profile.ChatID
		}
		if err := s.repo.Update(user); err != nil {
			logger.Warn("⚠️ Не удалось обновить профиль пользователя %d: %v", user.TelegramID, err)
		}
	}

	if err := s.repo.UpdateLastSeen(user.TelegramID); err != nil {
		logger.Warn("⚠️ Не удалось обновить last_seen пользователя %d: %v", user.TelegramID, err)
	}

	s.cacheUser(ctx, user)
	return user, nil
}

// GetByTelegramID возвращает пользователя, сперва проверяя кэш.
// Неизвестный пользователь - nil без ошибки.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	if s.cache != nil {
		var cached models.User
		found, err := s.cache.GetUserByTelegramID(ctx, telegramID, &cached)
		if err != nil {
			logger.Warn("⚠️ Ошибка чтения пользователя %d из кэша: %v", telegramID, err)
		}
		if found {
			return &cached, nil
		}
	}

	user, err := s.repo.FindByTelegramID(telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", telegramID, err)
	}
	if user != nil {
		s.cacheUser(ctx, user)
	}
	return user, nil
}

// LinkWallet записывает адрес подключенного кошелька в профиль пользователя
func (s *Service) LinkWallet(ctx context.Context, telegramID int64, address string) error {
	if address == "" {
		return fmt.Errorf("wallet address is empty")
	}

	if err := s.repo.UpdateWalletLink(telegramID, address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %d not found", telegramID)
		}
		return fmt.Errorf("failed to link wallet: %w", err)
	}

	logger.Info("🔗 Кошелек %s привязан к пользователю %d", shortAddress(address), telegramID)
	return nil
}

// UnlinkWallet снимает привязку кошелька. Отсутствие пользователя не ошибка:
// снимать уже нечего.
func (s *Service) UnlinkWallet(ctx context.Context, telegramID int64) error {
	if err := s.repo.ClearWalletLink(telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Debug("Пользователь %d не найден при отвязке кошелька", telegramID)
			return nil
		}
		return fmt.Errorf("failed to unlink wallet: %w", err)
	}

	logger.Info("🔌 Кошелек отвязан от пользователя %d", telegramID)
	return nil
}

// ActiveUsers возвращает всех активных пользователей
func (s *Service) ActiveUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.GetAllActive()
}

// Count возвращает общее количество пользователей
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.GetTotalCount(ctx)
}

func (s *Service) cacheUser(ctx context.Context, user *models.User) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetUserByTelegramID(ctx, user, user.TelegramID, userCacheTTL); err != nil {
		logger.Warn("⚠️ Ошибка записи пользователя %d в кэш: %v", user.TelegramID, err)
	}
}

// profileChanged - истинно, если профиль из обновления разошелся с записью
func profileChanged(user *models.User, profile Profile) bool {
	if user.Username != profile.Username {
		return true
	}
	if user.FirstName != profile.FirstName || user.LastName != profile.LastName {
		return true
	}
	if profile.ChatID != 0 && user.ChatID != profile.ChatID {
		return true
	}
	return false
}

// shortAddress сокращает адрес кошелька для логов
func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

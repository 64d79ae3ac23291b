package service

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

const (
	userStatsCacheTTL   = 5 * time.Minute
	leaderboardCacheTTL = 1 * time.Minute
)

// UserStatsView - снимок статистики игрока для события userStats
type UserStatsView struct {
	UserID      uint   `json:"userId"`
	Username    string `json:"username"`
	GamesPlayed int64  `json:"gamesPlayed"`
	WinsCount   int64  `json:"winsCount"`
}

// UserService читает игроков и ведет их игровую статистику.
// Снимки статистики кешируются в Redis.
type UserService struct {
	userRepo  repository.UserRepository
	cacheRepo repository.CacheRepository
}

// NewUserService создает сервис пользователей
func NewUserService(userRepo repository.UserRepository, cacheRepo repository.CacheRepository) *UserService {
	return &UserService{
		userRepo:  userRepo,
		cacheRepo: cacheRepo,
	}
}

// GetByID возвращает пользователя по id
func (s *UserService) GetByID(id uint) (*entity.User, error) {
	return s.userRepo.GetByID(id)
}

// GetByPhoneNumber возвращает пользователя по номеру телефона
func (s *UserService) GetByPhoneNumber(phoneNumber string) (*entity.User, error) {
	return s.userRepo.GetByPhoneNumber(phoneNumber)
}

func statsCacheKey(id uint) string {
	return fmt.Sprintf("user:stats:%d", id)
}

// Stats возвращает снимок статистики игрока, по возможности из кеша
func (s *UserService) Stats(id uint) (*UserStatsView, error) {
	var cached UserStatsView
	if err := s.cacheRepo.GetJSON(statsCacheKey(id), &cached); err == nil {
		return &cached, nil
	}

	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	view := &UserStatsView{
		UserID:      user.ID,
		Username:    user.Username,
		GamesPlayed: user.GamesPlayed,
		WinsCount:   user.WinsCount,
	}
	if err := s.cacheRepo.SetJSON(statsCacheKey(id), view, userStatsCacheTTL); err != nil {
		log.Printf("[UserService] Кеш статистики пользователя #%d не записан: %v", id, err)
	}
	return view, nil
}

// LeaderboardPage - страница лидерборда с пагинацией
type LeaderboardPage struct {
	Players  []UserStatsView `json:"players"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// Leaderboard возвращает страницу игроков по убыванию побед.
// Страницы кешируются накоротко, инвалидация по TTL.
func (s *UserService) Leaderboard(page, pageSize int) (*LeaderboardPage, error) {
	cacheKey := fmt.Sprintf("leaderboard:%d:%d", page, pageSize)

	var cached LeaderboardPage
	if err := s.cacheRepo.GetJSON(cacheKey, &cached); err == nil {
		return &cached, nil
	}

	users, total, err := s.userRepo.Leaderboard(page, pageSize)
	if err != nil {
		return nil, err
	}

	result := &LeaderboardPage{
		Players:  make([]UserStatsView, 0, len(users)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, u := range users {
		result.Players = append(result.Players, UserStatsView{
			UserID:      u.ID,
			Username:    u.Username,
			GamesPlayed: u.GamesPlayed,
			WinsCount:   u.WinsCount,
		})
	}

	if err := s.cacheRepo.SetJSON(cacheKey, result, leaderboardCacheTTL); err != nil {
		log.Printf("[UserService] Кеш лидерборда не записан: %v", err)
	}
	return result, nil
}

// RecordWin начисляет победу игроку по идентификатору победителя:
// номер телефона либо строковый id
func (s *UserService) RecordWin(identifier string) error {
	user, err := s.resolveByIdentifier(identifier)
	if err != nil {
		return err
	}
	if err := s.userRepo.IncrementStats(user.ID, 1, 1); err != nil {
		return err
	}
	s.invalidateStats(user.ID)
	return nil
}

// RecordGame начисляет сыгранную игру без победы
func (s *UserService) RecordGame(id uint) error {
	if err := s.userRepo.IncrementStats(id, 1, 0); err != nil {
		return err
	}
	s.invalidateStats(id)
	return nil
}

func (s *UserService) resolveByIdentifier(identifier string) (*entity.User, error) {
	if user, err := s.userRepo.GetByPhoneNumber(identifier); err == nil {
		return user, nil
	}
	id, err := strconv.ParseUint(identifier, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown winner identifier %q", apperrors.ErrNotFound, identifier)
	}
	return s.userRepo.GetByID(uint(id))
}

func (s *UserService) invalidateStats(id uint) {
	if err := s.cacheRepo.Delete(statsCacheKey(id)); err != nil {
		log.Printf("[UserService] Кеш статистики пользователя #%d не сброшен: %v", id, err)
	}
}

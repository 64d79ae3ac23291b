package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create создает нового пользователя
func (r *UserRepo) Create(user *entity.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return apperrors.NewStorageError("create user", err)
	}
	return nil
}

// GetByID возвращает пользователя по ID
func (r *UserRepo) GetByID(id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("get user by id", err)
	}
	return &user, nil
}

// GetByPhoneNumber возвращает пользователя по номеру телефона
func (r *UserRepo) GetByPhoneNumber(phoneNumber string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("phone_number = ?", phoneNumber).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("get user by phone", err)
	}
	return &user, nil
}

// GetByUsername возвращает пользователя по имени
func (r *UserRepo) GetByUsername(username string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("get user by username", err)
	}
	return &user, nil
}

// Update обновляет пользователя
func (r *UserRepo) Update(user *entity.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return apperrors.NewStorageError("update user", err)
	}
	return nil
}

// Leaderboard возвращает страницу игроков, отсортированных по убыванию побед
func (r *UserRepo) Leaderboard(page, pageSize int) ([]entity.User, int64, error) {
	var total int64
	if err := r.db.Model(&entity.User{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.NewStorageError("count users", err)
	}

	var users []entity.User
	err := r.db.
		Order("wins_count DESC, games_played DESC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, 0, apperrors.NewStorageError("get leaderboard", err)
	}
	return users, total, nil
}

// IncrementStats атомарно увеличивает счетчики игр и побед
func (r *UserRepo) IncrementStats(id uint, gamesDelta, winsDelta int64) error {
	err := r.db.Model(&entity.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"games_played": gorm.Expr("games_played + ?", gamesDelta),
		"wins_count":   gorm.Expr("wins_count + ?", winsDelta),
	}).Error
	if err != nil {
		return apperrors.NewStorageError("increment user stats", err)
	}
	return nil
}

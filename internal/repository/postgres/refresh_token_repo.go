package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// RefreshTokenRepo реализует repository.RefreshTokenRepository
type RefreshTokenRepo struct {
	db *gorm.DB
}

// NewRefreshTokenRepo создает новый репозиторий refresh-токенов
func NewRefreshTokenRepo(db *gorm.DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

// Create сохраняет запись refresh-токена
func (r *RefreshTokenRepo) Create(token *entity.RefreshToken) error {
	if err := r.db.Create(token).Error; err != nil {
		return apperrors.NewStorageError("create refresh token", err)
	}
	return nil
}

// GetByHash возвращает запись по хешу токена
func (r *RefreshTokenRepo) GetByHash(tokenHash string) (*entity.RefreshToken, error) {
	var token entity.RefreshToken
	err := r.db.Where("token_hash = ?", tokenHash).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("get refresh token", err)
	}
	return &token, nil
}

// Revoke помечает токен отозванным
func (r *RefreshTokenRepo) Revoke(tokenHash, reason string) error {
	now := time.Now()
	err := r.db.Model(&entity.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Updates(map[string]interface{}{"revoked_at": now, "reason": reason}).Error
	if err != nil {
		return apperrors.NewStorageError("revoke refresh token", err)
	}
	return nil
}

// RevokeAllForUser отзывает все токены пользователя
func (r *RefreshTokenRepo) RevokeAllForUser(userID uint, reason string) error {
	now := time.Now()
	err := r.db.Model(&entity.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]interface{}{"revoked_at": now, "reason": reason}).Error
	if err != nil {
		return apperrors.NewStorageError("revoke user refresh tokens", err)
	}
	return nil
}

// DeleteExpired удаляет истекшие записи, возвращает число удаленных
func (r *RefreshTokenRepo) DeleteExpired() (int64, error) {
	res := r.db.Where("expires_at < ?", time.Now()).Delete(&entity.RefreshToken{})
	if res.Error != nil {
		return 0, apperrors.NewStorageError("delete expired refresh tokens", res.Error)
	}
	return res.RowsAffected, nil
}

package repository

import "github.com/yourusername/trivia-live/internal/domain/entity"

// RefreshTokenRepository определяет интерфейс хранилища refresh-токенов
type RefreshTokenRepository interface {
	Create(token *entity.RefreshToken) error
	GetByHash(tokenHash string) (*entity.RefreshToken, error)
	Revoke(tokenHash, reason string) error
	RevokeAllForUser(userID uint, reason string) error
	DeleteExpired() (int64, error)
}

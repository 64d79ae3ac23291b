package repository

import "github.com/yourusername/trivia-live/internal/domain/entity"

// OtpRepository определяет интерфейс хранилища одноразовых кодов
type OtpRepository interface {
	// Upsert заменяет активный код для номера телефона
	Upsert(code *entity.OtpCode) error
	GetActiveByPhone(phoneNumber string) (*entity.OtpCode, error)
	IncrementAttempts(id uint) error
	Consume(id uint) error
	DeleteExpired() (int64, error)
}

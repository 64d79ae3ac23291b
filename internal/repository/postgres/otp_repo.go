package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// OtpRepo реализует repository.OtpRepository
type OtpRepo struct {
	db *gorm.DB
}

// NewOtpRepo создает новый репозиторий одноразовых кодов
func NewOtpRepo(db *gorm.DB) *OtpRepo {
	return &OtpRepo{db: db}
}

// Upsert заменяет активный код для номера телефона
func (r *OtpRepo) Upsert(code *entity.OtpCode) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("phone_number = ?", code.PhoneNumber).Delete(&entity.OtpCode{}).Error; err != nil {
			return err
		}
		return tx.Create(code).Error
	})
	if err != nil {
		return apperrors.NewStorageError("upsert otp code", err)
	}
	return nil
}

// GetActiveByPhone возвращает непогашенный код для номера телефона
func (r *OtpRepo) GetActiveByPhone(phoneNumber string) (*entity.OtpCode, error) {
	var code entity.OtpCode
	err := r.db.
		Where("phone_number = ? AND consumed_at IS NULL", phoneNumber).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("get active otp code", err)
	}
	return &code, nil
}

// IncrementAttempts увеличивает счетчик попыток ввода
func (r *OtpRepo) IncrementAttempts(id uint) error {
	err := r.db.Model(&entity.OtpCode{}).Where("id = ?", id).
		UpdateColumn("attempt_count", gorm.Expr("attempt_count + 1")).Error
	if err != nil {
		return apperrors.NewStorageError("increment otp attempts", err)
	}
	return nil
}

// Consume помечает код погашенным
func (r *OtpRepo) Consume(id uint) error {
	now := time.Now()
	err := r.db.Model(&entity.OtpCode{}).Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", now).Error
	if err != nil {
		return apperrors.NewStorageError("consume otp code", err)
	}
	return nil
}

// DeleteExpired удаляет истекшие коды
func (r *OtpRepo) DeleteExpired() (int64, error) {
	res := r.db.Where("expires_at < ?", time.Now()).Delete(&entity.OtpCode{})
	if res.Error != nil {
		return 0, apperrors.NewStorageError("delete expired otp codes", res.Error)
	}
	return res.RowsAffected, nil
}

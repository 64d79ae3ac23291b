package entity

import "time"

// OtpCode хранит хешированный одноразовый код подтверждения номера телефона.
type OtpCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	PhoneNumber  string     `gorm:"size:20;not null;index" json:"phone_number"`
	CodeHash     string     `gorm:"size:100;not null" json:"-"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	AttemptCount int        `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts  int        `gorm:"not null;default:5" json:"max_attempts"`
	LastSentAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_sent_at"`
	ConsumedAt   *time.Time `gorm:"index" json:"consumed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (OtpCode) TableName() string {
	return "otp_codes"
}

func (o *OtpCode) IsConsumed() bool {
	return o.ConsumedAt != nil
}

func (o *OtpCode) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// CanAttempt проверяет, не исчерпан ли лимит попыток ввода кода.
func (o *OtpCode) CanAttempt() bool {
	return o.AttemptCount < o.MaxAttempts
}

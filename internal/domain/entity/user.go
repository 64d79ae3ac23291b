package entity

import "time"

// User представляет игрока. Для ядра реального времени пользователь
// доступен только на чтение: идентичность разрешается по id.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	PhoneNumber string    `gorm:"size:20;not null;uniqueIndex" json:"phone_number"`
	GamesPlayed int64     `gorm:"not null;default:0" json:"games_played"`
	WinsCount   int64     `gorm:"not null;default:0" json:"wins_count"`
	Role        string    `gorm:"size:20;not null;default:'user'" json:"-"` // "user" или "admin"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// IsAdmin проверяет административную роль
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

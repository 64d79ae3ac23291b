package repository

import "time"

// CacheRepository определяет методы для работы с кешем JSON-снимков
// (статистика игрока, страницы лидерборда)
type CacheRepository interface {
	SetJSON(key string, value interface{}, expiration time.Duration) error
	GetJSON(key string, dest interface{}) error
	Delete(key string) error
}

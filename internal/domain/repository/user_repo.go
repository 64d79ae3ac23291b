package repository

import "github.com/yourusername/trivia-live/internal/domain/entity"

// UserRepository определяет интерфейс хранилища пользователей (шлюз C3).
// Ядро читает пользователей только для разрешения идентичности.
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByPhoneNumber(phoneNumber string) (*entity.User, error)
	GetByUsername(username string) (*entity.User, error)
	Update(user *entity.User) error

	// IncrementStats атомарно увеличивает счетчики сыгранных игр и побед
	IncrementStats(id uint, gamesDelta, winsDelta int64) error

	// Leaderboard возвращает страницу игроков по убыванию побед и общее число игроков
	Leaderboard(page, pageSize int) ([]entity.User, int64, error)
}

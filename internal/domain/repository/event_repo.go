package repository

import (
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
)

// EventRepository определяет интерфейс хранилища событий (шлюз C1).
// Все выборки возвращают списки, отсортированные по startAt по возрастанию.
// Ошибки записи приходят как *errors.StorageError; ядро остается живым
// при временной недоступности хранилища.
type EventRepository interface {
	Create(event *entity.Event) error
	GetByID(id uint) (*entity.Event, error)

	// GetActiveOrdered возвращает незавершенные события
	GetActiveOrdered() ([]entity.Event, error)

	// GetUpcomingFromNow возвращает незавершенные события с startAt >= now
	GetUpcomingFromNow(now time.Time) ([]entity.Event, error)

	// GetInWindow возвращает незавершенные события с startAt в [from, to]
	GetInWindow(from, to time.Time) ([]entity.Event, error)

	// GetCompletedSince возвращает завершенные события с completedAt > since.
	// При missingNextFlag=true отбираются только события с nextEventCreated=false.
	GetCompletedSince(since time.Time, missingNextFlag bool) ([]entity.Event, error)

	// Update применяет частичное обновление к событию
	Update(id uint, patch map[string]interface{}) error

	Delete(id uint) error
	DeleteBulk(ids []uint) error
}

package postgres

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// EventRepo реализует repository.EventRepository поверх PostgreSQL.
// Выборки при ошибке хранилища возвращают пустой список и пишут лог:
// планировщик трактует это как пропущенный тик и повторит запрос сам.
type EventRepo struct {
	db *gorm.DB
}

// NewEventRepo создает новый репозиторий событий
func NewEventRepo(db *gorm.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Create создает новое событие
func (r *EventRepo) Create(event *entity.Event) error {
	if err := r.db.Create(event).Error; err != nil {
		return apperrors.NewStorageError("create event", err)
	}
	return nil
}

// GetByID возвращает событие по ID
func (r *EventRepo) GetByID(id uint) (*entity.Event, error) {
	var event entity.Event
	err := r.db.First(&event, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("get event by id", err)
	}
	return &event, nil
}

// GetActiveOrdered возвращает незавершенные события по возрастанию startAt
func (r *EventRepo) GetActiveOrdered() ([]entity.Event, error) {
	var events []entity.Event
	err := r.db.
		Where("is_completed = ?", false).
		Order("start_at ASC").
		Find(&events).Error
	if err != nil {
		log.Printf("[EventRepo] Ошибка выборки активных событий: %v", err)
		return []entity.Event{}, nil
	}
	return events, nil
}

// GetUpcomingFromNow возвращает незавершенные события с startAt >= now
func (r *EventRepo) GetUpcomingFromNow(now time.Time) ([]entity.Event, error) {
	var events []entity.Event
	err := r.db.
		Where("is_completed = ? AND start_at >= ?", false, now).
		Order("start_at ASC").
		Find(&events).Error
	if err != nil {
		log.Printf("[EventRepo] Ошибка выборки предстоящих событий: %v", err)
		return []entity.Event{}, nil
	}
	return events, nil
}

// GetInWindow возвращает незавершенные события с startAt в [from, to]
func (r *EventRepo) GetInWindow(from, to time.Time) ([]entity.Event, error) {
	var events []entity.Event
	err := r.db.
		Where("is_completed = ? AND start_at >= ? AND start_at <= ?", false, from, to).
		Order("start_at ASC").
		Find(&events).Error
	if err != nil {
		log.Printf("[EventRepo] Ошибка выборки событий в окне [%v, %v]: %v", from, to, err)
		return []entity.Event{}, nil
	}
	return events, nil
}

// GetCompletedSince возвращает завершенные события с completedAt > since.
// При missingNextFlag=true отбираются только события без созданного преемника.
func (r *EventRepo) GetCompletedSince(since time.Time, missingNextFlag bool) ([]entity.Event, error) {
	var events []entity.Event
	q := r.db.Where("is_completed = ? AND completed_at > ?", true, since)
	if missingNextFlag {
		q = q.Where("next_event_created = ?", false)
	}
	err := q.Order("start_at ASC").Find(&events).Error
	if err != nil {
		log.Printf("[EventRepo] Ошибка выборки завершенных событий: %v", err)
		return []entity.Event{}, nil
	}
	return events, nil
}

// Update применяет частичное обновление к событию
func (r *EventRepo) Update(id uint, patch map[string]interface{}) error {
	res := r.db.Model(&entity.Event{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return apperrors.NewStorageError("update event", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete удаляет событие
func (r *EventRepo) Delete(id uint) error {
	if err := r.db.Delete(&entity.Event{}, id).Error; err != nil {
		return apperrors.NewStorageError("delete event", err)
	}
	return nil
}

// DeleteBulk удаляет пакет событий
func (r *EventRepo) DeleteBulk(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.Delete(&entity.Event{}, ids).Error; err != nil {
		return apperrors.NewStorageError("delete events bulk", err)
	}
	return nil
}

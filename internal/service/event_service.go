package service

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// WinnerStats фиксирует результат раунда в статистике игрока
type WinnerStats interface {
	RecordWin(identifier string) error
}

// EventService реализует операции над событиями: атомарное создание по
// минутной корзине, отметки жизненного цикла, завершение с фиксацией
// победителя. Изменения записей доставляются подписчикам через явный
// реестр post-save колбэков, зарегистрированных при старте.
type EventService struct {
	eventRepo repository.EventRepository
	stats     WinnerStats

	spacing              time.Duration
	defaultQuestionCount int
	defaultMinPlayers    int

	// Сериализация find-or-create: единственный процесс-владелец расписания
	createMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []func(event *entity.Event)
}

// NewEventService создает сервис событий
func NewEventService(eventRepo repository.EventRepository, stats WinnerStats, defaultQuestionCount, defaultMinPlayers int) *EventService {
	if defaultQuestionCount < 1 {
		defaultQuestionCount = 5
	}
	if defaultMinPlayers < 1 {
		defaultMinPlayers = entity.DefaultMinPlayers
	}
	return &EventService{
		eventRepo:            eventRepo,
		stats:                stats,
		spacing:              time.Minute,
		defaultQuestionCount: defaultQuestionCount,
		defaultMinPlayers:    defaultMinPlayers,
	}
}

// RegisterPostSaveHook регистрирует колбэк, вызываемый после изменения
// записи события
func (s *EventService) RegisterPostSaveHook(fn func(event *entity.Event)) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hooksMu.Unlock()
}

func (s *EventService) notifySaved(event *entity.Event) {
	s.hooksMu.RLock()
	hooks := s.hooks
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(event)
	}
}

// FindOrCreateAt находит незавершенное событие в минутной корзине startAt
// или создает новое. Конфликтом считается незавершенное событие со startAt
// строго ближе одного шага. Второе значение true, если событие создано.
func (s *EventService) FindOrCreateAt(startAt time.Time) (*entity.Event, bool, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	candidates, err := s.eventRepo.GetInWindow(startAt.Add(-s.spacing), startAt.Add(s.spacing))
	if err != nil {
		return nil, false, err
	}
	for i := range candidates {
		diff := candidates[i].StartAt.Sub(startAt)
		if diff < 0 {
			diff = -diff
		}
		if diff < s.spacing {
			return &candidates[i], false, nil
		}
	}

	event := &entity.Event{
		Name:          "Auto Event - " + startAt.Format("15:04"),
		StartAt:       startAt,
		QuestionCount: s.defaultQuestionCount,
		MinPlayers:    s.defaultMinPlayers,
	}
	if err := s.eventRepo.Create(event); err != nil {
		return nil, false, err
	}
	return event, true, nil
}

// CreateEvent создает событие по явному запросу администратора.
// Занятая минутная корзина - конфликт.
func (s *EventService) CreateEvent(theme string, startAt time.Time, questionCount, minPlayers int) (*entity.Event, error) {
	if startAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: start date must be in the future", apperrors.ErrValidation)
	}
	if questionCount < 1 {
		questionCount = s.defaultQuestionCount
	}
	if minPlayers < 1 {
		minPlayers = s.defaultMinPlayers
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	candidates, err := s.eventRepo.GetInWindow(startAt.Add(-s.spacing), startAt.Add(s.spacing))
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		diff := candidates[i].StartAt.Sub(startAt)
		if diff < 0 {
			diff = -diff
		}
		if diff < s.spacing {
			return nil, fmt.Errorf("%w: another event already occupies this minute", apperrors.ErrConflict)
		}
	}

	event := &entity.Event{
		Name:          "Auto Event - " + startAt.Format("15:04"),
		Theme:         theme,
		StartAt:       startAt,
		QuestionCount: questionCount,
		MinPlayers:    minPlayers,
	}
	if err := s.eventRepo.Create(event); err != nil {
		return nil, err
	}
	return event, nil
}

// GetByID возвращает событие по id
func (s *EventService) GetByID(id uint) (*entity.Event, error) {
	return s.eventRepo.GetByID(id)
}

// GetNext возвращает ближайшее предстоящее событие
func (s *EventService) GetNext() (*entity.Event, error) {
	events, err := s.eventRepo.GetUpcomingFromNow(time.Now())
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return &events[0], nil
}

// GetActive возвращает незавершенные события по возрастанию startAt
func (s *EventService) GetActive() ([]entity.Event, error) {
	return s.eventRepo.GetActiveOrdered()
}

// ReadyForLobby возвращает события, чей startAt попал в окно открытия лобби
func (s *EventService) ReadyForLobby(window time.Duration) ([]entity.Event, error) {
	now := time.Now()
	events, err := s.eventRepo.GetInWindow(now, now.Add(window))
	if err != nil {
		return nil, err
	}
	ready := make([]entity.Event, 0, len(events))
	for i := range events {
		if !events[i].LobbyOpen {
			ready = append(ready, events[i])
		}
	}
	return ready, nil
}

// UpdateEvent применяет частичное обновление и уведомляет подписчиков.
// Лобби, открытое для этого события, пересоздается или закрывается.
func (s *EventService) UpdateEvent(id uint, patch map[string]interface{}) (*entity.Event, error) {
	if err := s.eventRepo.Update(id, patch); err != nil {
		return nil, err
	}
	event, err := s.eventRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	s.notifySaved(event)
	return event, nil
}

// ForceNotify перечитывает событие и уведомляет подписчиков без изменения
// записи (админский force-update)
func (s *EventService) ForceNotify(id uint) (*entity.Event, error) {
	event, err := s.eventRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	s.notifySaved(event)
	return event, nil
}

// MarkLobbyOpen отмечает открытие лобби события
func (s *EventService) MarkLobbyOpen(id uint) error {
	return s.eventRepo.Update(id, map[string]interface{}{"lobby_open": true})
}

// MarkStarted отмечает запуск раунда события
func (s *EventService) MarkStarted(id uint) error {
	return s.eventRepo.Update(id, map[string]interface{}{"is_started": true})
}

// MarkNextEventCreated отмечает, что преемник события создан
func (s *EventService) MarkNextEventCreated(id uint) error {
	return s.eventRepo.Update(id, map[string]interface{}{"next_event_created": true})
}

// CompleteEvent завершает событие и фиксирует победителя. Победитель,
// отличный от сентинела, получает прибавку к статистике.
func (s *EventService) CompleteEvent(id uint, winner string) error {
	if winner == "" {
		winner = entity.WinnerNone
	}
	now := time.Now()
	patch := map[string]interface{}{
		"is_completed":       true,
		"completed_at":       now,
		"winner":             winner,
		"next_event_created": false,
	}
	if err := s.eventRepo.Update(id, patch); err != nil {
		return err
	}

	if winner != entity.WinnerNone && s.stats != nil {
		if err := s.stats.RecordWin(winner); err != nil {
			log.Printf("[EventService] Статистика победителя %q события #%d не записана: %v", winner, id, err)
		}
	}
	return nil
}

// DeleteEvent удаляет событие
func (s *EventService) DeleteEvent(id uint) error {
	return s.eventRepo.Delete(id)
}

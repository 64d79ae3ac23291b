package realtime

import (
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/domain/repository"
)

// Config содержит настройки всех компонентов realtime-ядра
type Config struct {
	// Интервалы циклов планировщика
	FillInterval        time.Duration // период цикла заполнения расписания
	MaintenanceInterval time.Duration // период циклов открытия лобби, ролловера и экспирации

	// Параметры расписания
	FillHorizon  time.Duration // горизонт заполнения от текущего момента
	EventSpacing time.Duration // шаг между событиями и окно конфликта минутной корзины
	LobbyWindow  time.Duration // окно открытия лобби перед startAt

	RolloverLookback time.Duration // глубина поиска завершенных событий без преемника
	SuccessorDelay   time.Duration // отступ преемника от completedAt

	DefaultQuestionCount int
	DefaultMinPlayers    int

	// Параметры лобби
	LobbyTickInterval time.Duration // внутреннее разрешение тикера отсчета
	CountdownThrottle time.Duration // троттлинг eventCountdown (per-client и глобальный)

	// Параметры раунда
	PerQuestionDuration time.Duration
	AdBreakDuration     time.Duration
	PostRoundGrace      time.Duration
	PrimingDelay        time.Duration // задержка перед каждой фазой вопроса
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		FillInterval:         60 * time.Second,
		MaintenanceInterval:  30 * time.Second,
		FillHorizon:          2 * time.Hour,
		EventSpacing:         time.Minute,
		LobbyWindow:          60 * time.Second,
		RolloverLookback:     2 * time.Minute,
		SuccessorDelay:       60 * time.Second,
		DefaultQuestionCount: 5,
		DefaultMinPlayers:    entity.DefaultMinPlayers,
		LobbyTickInterval:    100 * time.Millisecond,
		CountdownThrottle:    500 * time.Millisecond,
		PerQuestionDuration:  15 * time.Second,
		AdBreakDuration:      15 * time.Second,
		PostRoundGrace:       5 * time.Second,
		PrimingDelay:         time.Second,
	}
}

// Broadcaster определяет примитивы отправки, необходимые ядру от хаба
type Broadcaster interface {
	EmitTo(connectionID, event string, data interface{}) bool
	Broadcast(event string, data interface{})
	BroadcastIf(event string, data interface{}, predicate func(connectionID string) bool)
	BroadcastThrottled(event string, data interface{}, perClientWindow time.Duration)
}

// SessionDirectory определяет методы реестра сессий, необходимые ядру
type SessionDirectory interface {
	Identity(connectionID string) (userID, username, phoneNumber string, authenticated bool)
	SetParticipationMode(connectionID, mode string)
}

// EventServicePort определяет операции сервиса событий, необходимые ядру.
// Полный сервис живет в пакете service; порт разрывает циклическую
// зависимость между планировщиком и движком.
type EventServicePort interface {
	// FindOrCreateAt атомарно находит или создает событие в минутной корзине
	// startAt. Второе значение true, если событие было создано.
	FindOrCreateAt(startAt time.Time) (*entity.Event, bool, error)

	MarkLobbyOpen(id uint) error
	MarkStarted(id uint) error
	MarkNextEventCreated(id uint) error

	// CompleteEvent завершает событие и фиксирует победителя
	CompleteEvent(id uint, winner string) error
}

// Dependencies содержит зависимости realtime-ядра
type Dependencies struct {
	EventService EventServicePort
	EventRepo    repository.EventRepository
	QuestionRepo repository.QuestionRepository
	Sessions     SessionDirectory
	Hub          Broadcaster
	Config       *Config
}

package entity

import "time"

// WinnerNone - сентинел для завершенных событий без победителя.
const WinnerNone = "no-winner"

// DefaultMinPlayers - минимальное число игроков по умолчанию.
const DefaultMinPlayers = 2

// Event представляет запланированное событие викторины.
// Жизненный цикл монотонный: created -> lobbyOpen? -> isStarted? -> isCompleted.
// Два незавершенных события никогда не делят одну минутную корзину startAt.
type Event struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"size:100;not null;default:''" json:"name"`
	Theme            string     `gorm:"size:100;not null;default:'';index" json:"theme"` // пустая строка = случайная тема
	StartAt          time.Time  `gorm:"not null;index" json:"start_at"`
	QuestionCount    int        `gorm:"not null;default:1" json:"question_count"`
	MinPlayers       int        `gorm:"not null;default:2" json:"min_players"`
	LobbyOpen        bool       `gorm:"not null;default:false" json:"lobby_open"`
	IsStarted        bool       `gorm:"not null;default:false" json:"is_started"`
	IsCompleted      bool       `gorm:"not null;default:false;index" json:"is_completed"`
	CompletedAt      *time.Time `gorm:"index" json:"completed_at,omitempty"`
	Winner           *string    `gorm:"size:100" json:"winner,omitempty"`
	NextEventCreated bool       `gorm:"not null;default:false" json:"next_event_created"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Event) TableName() string {
	return "events"
}

// IsUpcoming проверяет, предстоит ли событие
func (e *Event) IsUpcoming(now time.Time) bool {
	return !e.IsCompleted && e.StartAt.After(now)
}

// InLobbyWindow проверяет, попадает ли startAt в окно открытия лобби [now, now+window]
func (e *Event) InLobbyWindow(now time.Time, window time.Duration) bool {
	return !e.IsCompleted && !e.StartAt.Before(now) && !e.StartAt.After(now.Add(window))
}

// MinuteBucket возвращает ключ минутной корзины для дедупликации
func (e *Event) MinuteBucket() int64 {
	return e.StartAt.Unix() / 60
}

// SameMinuteBucket проверяет, делят ли два события одну минутную корзину
func (e *Event) SameMinuteBucket(other *Event) bool {
	return e.MinuteBucket() == other.MinuteBucket()
}

// WinnerOrNone возвращает идентификатор победителя либо сентинел
func (e *Event) WinnerOrNone() string {
	if e.Winner == nil || *e.Winner == "" {
		return WinnerNone
	}
	return *e.Winner
}

package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
)

// roundProbe сообщает планировщику, идет ли сейчас раунд
type roundProbe interface {
	IsRoundLive() bool
}

// Scheduler ведет расписание событий четырьмя кооперативными циклами:
// заполнение горизонта, открытие лобби, ролловер завершенных и экспирация
// просроченных. Все циклы однопоточны через общий мьютекс: конкурентный
// тик пропускается, а не ставится в очередь.
type Scheduler struct {
	config *Config
	deps   *Dependencies

	lobby  *LobbyManager
	engine roundProbe

	// Мьютекс планирования: single-flight для всех циклов
	mu sync.Mutex
}

// NewScheduler создает планировщик событий
func NewScheduler(config *Config, deps *Dependencies, lobby *LobbyManager, engine roundProbe) *Scheduler {
	return &Scheduler{
		config: config,
		deps:   deps,
		lobby:  lobby,
		engine: engine,
	}
}

// Run выполняет стартовую дедупликацию и запускает периодические циклы.
// Блокируется до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	s.runStartupPass()

	fill := time.NewTicker(s.config.FillInterval)
	defer fill.Stop()
	maintenance := time.NewTicker(s.config.MaintenanceInterval)
	defer maintenance.Stop()

	log.Printf("[Scheduler] Запущен: заполнение каждые %v, обслуживание каждые %v", s.config.FillInterval, s.config.MaintenanceInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[Scheduler] Остановка циклов")
			return
		case <-fill.C:
			s.tick(s.runFill)
		case <-maintenance.C:
			s.tick(func(now time.Time) {
				s.runLobbyOpen(now)
				s.runExpiry(now)
				s.runRollover(now)
			})
		}
	}
}

// CheckNow выполняет внеочередной проход всех циклов (админский re-scan)
func (s *Scheduler) CheckNow() {
	log.Println("[Scheduler] Внеочередная проверка расписания")
	s.tick(func(now time.Time) {
		s.runFill(now)
		s.runLobbyOpen(now)
		s.runExpiry(now)
		s.runRollover(now)
	})
}

// tick выполняет проход под мьютексом планирования; занятый мьютекс
// означает незавершенный предыдущий тик, и проход пропускается
func (s *Scheduler) tick(pass func(now time.Time)) {
	if !s.mu.TryLock() {
		log.Println("[Scheduler] Предыдущий тик не завершен, пропуск")
		return
	}
	defer s.mu.Unlock()
	pass(time.Now())
}

// runStartupPass дедуплицирует предстоящие события и заполняет горизонт
func (s *Scheduler) runStartupPass() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.dedupUpcoming(now)
	s.runFill(now)
	s.runLobbyOpen(now)
}

// dedupUpcoming оставляет в каждой минутной корзине самое раннее событие
// и удаляет остальные
func (s *Scheduler) dedupUpcoming(now time.Time) {
	events, err := s.deps.EventRepo.GetUpcomingFromNow(now)
	if err != nil {
		log.Printf("[Scheduler] Дедупликация: ошибка чтения событий: %v", err)
		return
	}

	seen := make(map[int64]bool)
	var duplicates []uint
	// Список отсортирован по startAt, первое событие корзины - самое раннее
	for i := range events {
		bucket := events[i].MinuteBucket()
		if seen[bucket] {
			duplicates = append(duplicates, events[i].ID)
			continue
		}
		seen[bucket] = true
	}

	if len(duplicates) == 0 {
		return
	}
	if err := s.deps.EventRepo.DeleteBulk(duplicates); err != nil {
		log.Printf("[Scheduler] Дедупликация: ошибка удаления %d дублей: %v", len(duplicates), err)
		return
	}
	log.Printf("[Scheduler] Дедупликация: удалено %d дублирующих событий", len(duplicates))
}

// runFill обеспечивает непрерывную последовательность событий от now до
// now + FillHorizon с шагом EventSpacing. Создание атомарно по минутной
// корзине: конфликт возвращает существующее событие.
func (s *Scheduler) runFill(now time.Time) {
	if s.engine.IsRoundLive() {
		return
	}

	created := 0
	slot := now.Truncate(time.Minute).Add(s.config.EventSpacing)
	horizon := now.Add(s.config.FillHorizon)

	for !slot.After(horizon) {
		event, isNew, err := s.deps.EventService.FindOrCreateAt(slot)
		if err != nil {
			log.Printf("[Scheduler] Заполнение: ошибка для слота %v: %v", slot.Format("15:04"), err)
			return
		}
		if isNew {
			created++
		}
		// Следующий слот отсчитывается от фактического события корзины
		slot = event.StartAt.Add(s.config.EventSpacing)
	}

	if created > 0 {
		log.Printf("[Scheduler] Заполнение: создано %d событий до %v", created, horizon.Format("15:04"))
	}
}

// runLobbyOpen открывает лобби для событий, чей startAt попал в окно
// [now, now + LobbyWindow]
func (s *Scheduler) runLobbyOpen(now time.Time) {
	events, err := s.deps.EventRepo.GetInWindow(now, now.Add(s.config.LobbyWindow))
	if err != nil {
		log.Printf("[Scheduler] Открытие лобби: ошибка чтения событий: %v", err)
		return
	}

	for i := range events {
		event := &events[i]
		if event.LobbyOpen {
			continue
		}
		if err := s.deps.EventService.MarkLobbyOpen(event.ID); err != nil {
			log.Printf("[Scheduler] Открытие лобби: ошибка отметки события #%d: %v", event.ID, err)
			continue
		}
		event.LobbyOpen = true
		s.lobby.OpenLobby(event)
	}
}

// runRollover создает преемника для недавно завершенных событий без
// флага nextEventCreated. Пропускается целиком, пока идет раунд.
func (s *Scheduler) runRollover(now time.Time) {
	if s.engine.IsRoundLive() {
		return
	}

	events, err := s.deps.EventRepo.GetCompletedSince(now.Add(-s.config.RolloverLookback), true)
	if err != nil {
		log.Printf("[Scheduler] Ролловер: ошибка чтения событий: %v", err)
		return
	}

	for i := range events {
		event := &events[i]
		if event.CompletedAt == nil {
			continue
		}

		successorAt := event.CompletedAt.Add(s.config.SuccessorDelay)
		if earliest := now.Add(s.config.SuccessorDelay); successorAt.Before(earliest) {
			successorAt = earliest
		}

		successor, _, err := s.deps.EventService.FindOrCreateAt(successorAt)
		if err != nil {
			log.Printf("[Scheduler] Ролловер: ошибка создания преемника для #%d: %v", event.ID, err)
			continue
		}
		if err := s.deps.EventService.MarkNextEventCreated(event.ID); err != nil {
			log.Printf("[Scheduler] Ролловер: ошибка отметки события #%d: %v", event.ID, err)
			continue
		}
		log.Printf("[Scheduler] Ролловер: событие #%d получило преемника #%d на %v", event.ID, successor.ID, successor.StartAt.Format("15:04"))
	}
}

// runExpiry помечает просроченные незавершенные события завершенными.
// Ролловер затем создаст для них преемников. Событие текущего лобби
// и запущенные события не трогаются.
func (s *Scheduler) runExpiry(now time.Time) {
	if s.engine.IsRoundLive() {
		return
	}

	events, err := s.deps.EventRepo.GetActiveOrdered()
	if err != nil {
		log.Printf("[Scheduler] Экспирация: ошибка чтения событий: %v", err)
		return
	}

	lobbyEventID, lobbyActive := s.lobby.CurrentEventID()

	for i := range events {
		event := &events[i]
		if event.StartAt.After(now) {
			break
		}
		if event.IsStarted {
			continue
		}
		if lobbyActive && event.ID == lobbyEventID {
			continue
		}

		patch := map[string]interface{}{
			"is_completed":       true,
			"completed_at":       now,
			"next_event_created": false,
		}
		if err := s.deps.EventRepo.Update(event.ID, patch); err != nil {
			log.Printf("[Scheduler] Экспирация: ошибка завершения события #%d: %v", event.ID, err)
			continue
		}
		log.Printf("[Scheduler] Экспирация: событие #%d (%v) помечено завершенным", event.ID, event.StartAt.Format("15:04"))
	}
}

// ensureMinPlayers нормализует значение minPlayers события
func ensureMinPlayers(event *entity.Event) int {
	if event.MinPlayers >= 1 {
		return event.MinPlayers
	}
	return entity.DefaultMinPlayers
}

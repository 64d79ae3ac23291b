package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/websocket"
)

// roundStarter принимает участников лобби при старте раунда
type roundStarter interface {
	IsRoundLive() bool
	StartRound(event *entity.Event, participants []string)
}

// LobbyManager владеет единственным открытым лобби: набором участников
// и тикером предстартового отсчета. Лобби уничтожается при передаче
// участников движку раунда или при отмене события.
type LobbyManager struct {
	config *Config
	deps   *Dependencies
	engine roundStarter

	mu           sync.Mutex
	event        *entity.Event
	participants map[string]struct{}
	cancel       context.CancelFunc
}

// NewLobbyManager создает менеджер лобби
func NewLobbyManager(config *Config, deps *Dependencies, engine roundStarter) *LobbyManager {
	return &LobbyManager{
		config: config,
		deps:   deps,
		engine: engine,
	}
}

// OpenLobby открывает лобби для события. Предусловия: нет текущего лобби,
// нет живого раунда, startAt в будущем и не дальше LobbyWindow.
// Нарушение предусловий - no-op с логом.
func (m *LobbyManager) OpenLobby(event *entity.Event) {
	now := time.Now()

	m.mu.Lock()
	switch {
	case m.event != nil:
		m.mu.Unlock()
		log.Printf("[LobbyManager] Лобби для события #%d уже открыто, событие #%d пропущено", m.currentIDLocked(), event.ID)
		return
	case m.engine.IsRoundLive():
		m.mu.Unlock()
		log.Printf("[LobbyManager] Идет раунд, лобби для события #%d не открыто", event.ID)
		return
	case !now.Before(event.StartAt):
		m.mu.Unlock()
		log.Printf("[LobbyManager] Событие #%d уже должно было начаться, лобби не открыто", event.ID)
		return
	case now.Before(event.StartAt.Add(-m.config.LobbyWindow)):
		m.mu.Unlock()
		log.Printf("[LobbyManager] До события #%d больше %v, лобби не открыто", event.ID, m.config.LobbyWindow)
		return
	}
	m.installLocked(event, nil)
	m.mu.Unlock()

	log.Printf("[LobbyManager] Лобби открыто для события #%d (%v, тема %q)", event.ID, event.StartAt.Format("15:04"), event.Theme)

	m.deps.Hub.Broadcast(websocket.EvtLobbyOpened, map[string]interface{}{
		"eventId":    event.ID,
		"name":       event.Name,
		"theme":      event.Theme,
		"startAt":    event.StartAt,
		"minPlayers": ensureMinPlayers(event),
	})
}

// installLocked устанавливает состояние лобби и запускает отсчет.
// Вызывается под m.mu.
func (m *LobbyManager) installLocked(event *entity.Event, participants map[string]struct{}) {
	if participants == nil {
		participants = make(map[string]struct{})
	}
	m.event = event
	m.participants = participants

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.runCountdown(ctx, event)
}

func (m *LobbyManager) currentIDLocked() uint {
	if m.event == nil {
		return 0
	}
	return m.event.ID
}

// runCountdown тикает с внутренним разрешением LobbyTickInterval, но
// исходящий eventCountdown троттлится до CountdownThrottle на клиента
// и глобально. Каждый тик перечитывает состояние и самоустраняется,
// если лобби было заменено.
func (m *LobbyManager) runCountdown(ctx context.Context, event *entity.Event) {
	ticker := time.NewTicker(m.config.LobbyTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.event == nil || m.event.ID != event.ID {
				m.mu.Unlock()
				return
			}
			timeLeft := time.Until(m.event.StartAt)
			if timeLeft <= 0 {
				m.finishCountdownLocked()
				m.mu.Unlock()
				return
			}
			count := len(m.participants)
			minPlayers := ensureMinPlayers(m.event)
			m.mu.Unlock()

			m.deps.Hub.BroadcastThrottled(websocket.EvtEventCountdown, map[string]interface{}{
				"eventId":      event.ID,
				"timeLeft":     int(timeLeft.Round(time.Second).Seconds()),
				"participants": count,
				"minPlayers":   minPlayers,
			}, m.config.CountdownThrottle)
		}
	}
}

// finishCountdownLocked завершает отсчет: непустое лобби передается
// движку раунда, пустое событие отменяется с победителем-сентинелом.
// Вызывается под m.mu.
func (m *LobbyManager) finishCountdownLocked() {
	event := m.event
	snapshot := make([]string, 0, len(m.participants))
	for cid := range m.participants {
		snapshot = append(snapshot, cid)
	}
	m.clearLocked()

	if len(snapshot) == 0 {
		log.Printf("[LobbyManager] Лобби события #%d пустое, событие отменено", event.ID)
		if err := m.deps.EventService.CompleteEvent(event.ID, entity.WinnerNone); err != nil {
			log.Printf("[LobbyManager] Ошибка завершения отмененного события #%d: %v", event.ID, err)
		}
		m.deps.Hub.Broadcast(websocket.EvtEventCancelled, map[string]interface{}{
			"eventId":  event.ID,
			"required": ensureMinPlayers(event),
			"actual":   0,
		})
		return
	}

	log.Printf("[LobbyManager] Отсчет события #%d завершен, передача %d участников в раунд", event.ID, len(snapshot))
	m.engine.StartRound(event, snapshot)
}

// clearLocked снимает тикер и очищает состояние лобби. Вызывается под m.mu.
func (m *LobbyManager) clearLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.event = nil
	m.participants = nil
}

// Join идемпотентно добавляет подключение в лобби. Требуется
// аутентифицированная сессия.
func (m *LobbyManager) Join(connectionID string) error {
	_, _, _, authenticated := m.deps.Sessions.Identity(connectionID)
	if !authenticated {
		return &websocket.WireError{
			Code:           websocket.CodeAuthRequiredOnline,
			Message:        "authentication required to join the lobby",
			RequiredAction: "LOGIN",
		}
	}

	m.mu.Lock()
	if m.event == nil {
		m.mu.Unlock()
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "no lobby is currently open"}
	}
	event := m.event
	m.participants[connectionID] = struct{}{}
	count := len(m.participants)
	m.mu.Unlock()

	log.Printf("[LobbyManager] Подключение %s вошло в лобби события #%d (участников: %d)", connectionID, event.ID, count)

	m.deps.Hub.EmitTo(connectionID, websocket.EvtLobbyJoined, map[string]interface{}{
		"eventId":    event.ID,
		"theme":      event.Theme,
		"startAt":    event.StartAt,
		"minPlayers": ensureMinPlayers(event),
	})
	m.broadcastUpdate(event, count)
	return nil
}

// Leave убирает подключение из лобби
func (m *LobbyManager) Leave(connectionID string) {
	m.mu.Lock()
	if m.event == nil {
		m.mu.Unlock()
		return
	}
	if _, ok := m.participants[connectionID]; !ok {
		m.mu.Unlock()
		return
	}
	event := m.event
	delete(m.participants, connectionID)
	count := len(m.participants)
	m.mu.Unlock()

	log.Printf("[LobbyManager] Подключение %s покинуло лобби события #%d (участников: %d)", connectionID, event.ID, count)

	m.deps.Hub.EmitTo(connectionID, websocket.EvtLobbyLeft, map[string]interface{}{
		"eventId": event.ID,
	})
	m.broadcastUpdate(event, count)
}

// RemoveConnection чистит лобби при отключении клиента
func (m *LobbyManager) RemoveConnection(connectionID string) {
	m.Leave(connectionID)
}

func (m *LobbyManager) broadcastUpdate(event *entity.Event, count int) {
	m.deps.Hub.Broadcast(websocket.EvtLobbyUpdate, map[string]interface{}{
		"eventId":      event.ID,
		"participants": count,
		"minPlayers":   ensureMinPlayers(event),
	})
}

// OnEventUpdated реагирует на изменение записи события во время открытого
// лобби: текущее лобби уничтожается, и если новое расписание еще в окне
// [startAt - LobbyWindow, startAt + 2*LobbyWindow], лобби пересоздается
// с сохранением участников.
func (m *LobbyManager) OnEventUpdated(event *entity.Event) {
	m.mu.Lock()
	if m.event == nil || m.event.ID != event.ID {
		m.mu.Unlock()
		return
	}

	preserved := m.participants
	m.clearLocked()

	now := time.Now()
	within := !now.Before(event.StartAt.Add(-m.config.LobbyWindow)) &&
		!now.After(event.StartAt.Add(2*m.config.LobbyWindow))

	if event.IsCompleted || !within {
		m.mu.Unlock()
		log.Printf("[LobbyManager] Событие #%d изменено и вышло из окна лобби, лобби закрыто", event.ID)
		m.deps.Hub.Broadcast(websocket.EvtLobbyClosed, map[string]interface{}{
			"eventId": event.ID,
			"reason":  "event schedule changed",
		})
		return
	}

	m.installLocked(event, preserved)
	m.mu.Unlock()

	log.Printf("[LobbyManager] Событие #%d изменено, лобби пересоздано с %d участниками", event.ID, len(preserved))
	m.deps.Hub.Broadcast(websocket.EvtLobbyClosed, map[string]interface{}{
		"eventId": event.ID,
		"reason":  "event schedule changed",
	})
	m.deps.Hub.Broadcast(websocket.EvtLobbyOpened, map[string]interface{}{
		"eventId":    event.ID,
		"name":       event.Name,
		"theme":      event.Theme,
		"startAt":    event.StartAt,
		"minPlayers": ensureMinPlayers(event),
	})
}

// CurrentEventID возвращает событие текущего лобби
func (m *LobbyManager) CurrentEventID() (uint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.event == nil {
		return 0, false
	}
	return m.event.ID, true
}

// Status возвращает снимок состояния лобби для начального снапшота клиента
func (m *LobbyManager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.event == nil {
		return map[string]interface{}{"open": false}
	}
	return map[string]interface{}{
		"open":         true,
		"eventId":      m.event.ID,
		"theme":        m.event.Theme,
		"startAt":      m.event.StartAt,
		"participants": len(m.participants),
		"minPlayers":   ensureMinPlayers(m.event),
	}
}

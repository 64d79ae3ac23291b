package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/websocket"
)

type lobbyFixture struct {
	lobby    *LobbyManager
	hub      *fakeHub
	sessions *fakeSessions
	port     *fakeEventPort
	engine   *stubEngine
}

func newLobbyFixture() *lobbyFixture {
	hub := newFakeHub()
	sessions := newFakeSessions()
	port := newFakeEventPort()
	engine := &stubEngine{}
	deps := testDeps(hub, sessions, port, newFakeEventRepo(), &fakeQuestionRepo{})
	return &lobbyFixture{
		lobby:    NewLobbyManager(testConfig(), deps, engine),
		hub:      hub,
		sessions: sessions,
		port:     port,
		engine:   engine,
	}
}

// install подменяет состояние лобби напрямую, без тикера отсчета
func (f *lobbyFixture) install(event *entity.Event, cids ...string) {
	participants := make(map[string]struct{}, len(cids))
	for _, cid := range cids {
		participants[cid] = struct{}{}
	}
	f.lobby.mu.Lock()
	f.lobby.event = event
	f.lobby.participants = participants
	f.lobby.mu.Unlock()
}

// ============================================================================
// Предусловия открытия лобби
// ============================================================================

func TestOpenLobbyHappyPath(t *testing.T) {
	f := newLobbyFixture()
	event := &entity.Event{ID: 1, StartAt: time.Now().Add(30 * time.Second)}

	f.lobby.OpenLobby(event)

	id, open := f.lobby.CurrentEventID()
	require.True(t, open)
	assert.Equal(t, uint(1), id)
	assert.Equal(t, 1, f.hub.count(websocket.EvtLobbyOpened))
}

func TestOpenLobbyRejectsPastEvent(t *testing.T) {
	f := newLobbyFixture()
	event := &entity.Event{ID: 1, StartAt: time.Now().Add(-time.Second)}

	f.lobby.OpenLobby(event)

	_, open := f.lobby.CurrentEventID()
	assert.False(t, open)
	assert.Zero(t, f.hub.count(websocket.EvtLobbyOpened))
}

func TestOpenLobbyRejectsEventOutsideWindow(t *testing.T) {
	f := newLobbyFixture()
	event := &entity.Event{ID: 1, StartAt: time.Now().Add(10 * time.Minute)}

	f.lobby.OpenLobby(event)

	_, open := f.lobby.CurrentEventID()
	assert.False(t, open)
}

func TestOpenLobbyRejectsWhenLobbyExists(t *testing.T) {
	f := newLobbyFixture()
	f.install(&entity.Event{ID: 1, StartAt: time.Now().Add(30 * time.Second)})

	f.lobby.OpenLobby(&entity.Event{ID: 2, StartAt: time.Now().Add(40 * time.Second)})

	id, open := f.lobby.CurrentEventID()
	require.True(t, open)
	assert.Equal(t, uint(1), id)
}

func TestOpenLobbyRejectsDuringRound(t *testing.T) {
	f := newLobbyFixture()
	f.engine.live = true

	f.lobby.OpenLobby(&entity.Event{ID: 1, StartAt: time.Now().Add(30 * time.Second)})

	_, open := f.lobby.CurrentEventID()
	assert.False(t, open)
}

// ============================================================================
// Вход и выход участников
// ============================================================================

func TestJoinRequiresAuthentication(t *testing.T) {
	f := newLobbyFixture()
	f.sessions.addGuest("guest-1")
	f.install(&entity.Event{ID: 1, StartAt: time.Now().Add(30 * time.Second)})

	err := f.lobby.Join("guest-1")

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, websocket.CodeAuthRequiredOnline, wireErr.Code)
	assert.Equal(t, "LOGIN", wireErr.RequiredAction)
}

func TestJoinWithoutOpenLobby(t *testing.T) {
	f := newLobbyFixture()
	f.sessions.addUser("conn-1", "5", "alice", "+33600000001")

	err := f.lobby.Join("conn-1")

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, websocket.CodeInvalidContextPayload, wireErr.Code)
}

func TestJoinAndLeaveUpdateCount(t *testing.T) {
	f := newLobbyFixture()
	f.sessions.addUser("conn-1", "5", "alice", "+33600000001")
	f.sessions.addUser("conn-2", "6", "bob", "+33600000002")
	f.install(&entity.Event{ID: 1, StartAt: time.Now().Add(30 * time.Second)})

	require.NoError(t, f.lobby.Join("conn-1"))
	require.NoError(t, f.lobby.Join("conn-2"))
	assert.Equal(t, 2, f.lobby.Status()["participants"])

	f.lobby.Leave("conn-1")
	assert.Equal(t, 1, f.lobby.Status()["participants"])

	// Повторный вход идемпотентен
	require.NoError(t, f.lobby.Join("conn-2"))
	assert.Equal(t, 1, f.lobby.Status()["participants"])

	assert.Equal(t, 1, f.hub.count(websocket.EvtLobbyLeft))
	assert.Equal(t, 3, f.hub.count(websocket.EvtLobbyJoined))
}

// ============================================================================
// Завершение отсчета
// ============================================================================

func TestEmptyLobbyCancelsEvent(t *testing.T) {
	f := newLobbyFixture()
	event := &entity.Event{ID: 4, StartAt: time.Now(), MinPlayers: 3}
	f.install(event)

	f.lobby.mu.Lock()
	f.lobby.finishCountdownLocked()
	f.lobby.mu.Unlock()

	winner, ok := f.port.completedWinner(4)
	require.True(t, ok)
	assert.Equal(t, entity.WinnerNone, winner)

	cancelled := f.hub.byEvent(websocket.EvtEventCancelled)
	require.Len(t, cancelled, 1)
	data := cancelled[0].Data.(map[string]interface{})
	assert.Equal(t, 3, data["required"])
	assert.Equal(t, 0, data["actual"])

	_, open := f.lobby.CurrentEventID()
	assert.False(t, open)
	assert.Empty(t, f.engine.started)
}

func TestCountdownHandsParticipantsToEngine(t *testing.T) {
	f := newLobbyFixture()
	event := &entity.Event{ID: 4, StartAt: time.Now()}
	f.install(event, "conn-1", "conn-2")

	f.lobby.mu.Lock()
	f.lobby.finishCountdownLocked()
	f.lobby.mu.Unlock()

	require.Len(t, f.engine.started, 1)
	assert.Equal(t, uint(4), f.engine.started[0].ID)
	require.Len(t, f.engine.handoffs, 1)
	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, f.engine.handoffs[0])

	// Лобби очищено до передачи участников
	_, open := f.lobby.CurrentEventID()
	assert.False(t, open)
	_, ok := f.port.completedWinner(4)
	assert.False(t, ok)
}

// ============================================================================
// Реакция на изменение события
// ============================================================================

func TestEventUpdateRecreatesLobbyWithinWindow(t *testing.T) {
	f := newLobbyFixture()
	f.install(&entity.Event{ID: 5, StartAt: time.Now().Add(30 * time.Second)}, "conn-1")

	updated := &entity.Event{ID: 5, StartAt: time.Now().Add(45 * time.Second)}
	f.lobby.OnEventUpdated(updated)

	id, open := f.lobby.CurrentEventID()
	require.True(t, open)
	assert.Equal(t, uint(5), id)
	assert.Equal(t, 1, f.lobby.Status()["participants"])
	assert.Equal(t, 1, f.hub.count(websocket.EvtLobbyClosed))
	assert.Equal(t, 1, f.hub.count(websocket.EvtLobbyOpened))
}

func TestEventUpdateOutsideWindowClosesLobby(t *testing.T) {
	f := newLobbyFixture()
	f.install(&entity.Event{ID: 5, StartAt: time.Now().Add(30 * time.Second)}, "conn-1")

	updated := &entity.Event{ID: 5, StartAt: time.Now().Add(30 * time.Minute)}
	f.lobby.OnEventUpdated(updated)

	_, open := f.lobby.CurrentEventID()
	assert.False(t, open)
	assert.Equal(t, 1, f.hub.count(websocket.EvtLobbyClosed))
	assert.Zero(t, f.hub.count(websocket.EvtLobbyOpened))
}

func TestEventUpdateIgnoredForOtherEvent(t *testing.T) {
	f := newLobbyFixture()
	f.install(&entity.Event{ID: 5, StartAt: time.Now().Add(30 * time.Second)}, "conn-1")

	f.lobby.OnEventUpdated(&entity.Event{ID: 6, StartAt: time.Now().Add(30 * time.Minute)})

	id, open := f.lobby.CurrentEventID()
	require.True(t, open)
	assert.Equal(t, uint(5), id)
}

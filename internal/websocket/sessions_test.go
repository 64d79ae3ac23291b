package websocket

import (
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmitter записывает адресные отправки и закрытия подключений
type fakeEmitter struct {
	mu     sync.Mutex
	emits  []emittedTo
	closed []string
}

type emittedTo struct {
	ConnectionID string
	Event        string
	Data         interface{}
}

func (f *fakeEmitter) EmitTo(connectionID, event string, data interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emittedTo{connectionID, event, data})
	return true
}

func (f *fakeEmitter) Broadcast(event string, data interface{}) {}

func (f *fakeEmitter) CloseConnection(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, connectionID)
}

func (f *fakeEmitter) emitsOf(event string) []emittedTo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedTo
	for _, e := range f.emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeEmitter) closedConnections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

func newRegistryFixture() (*SessionRegistry, *fakeEmitter) {
	emitter := &fakeEmitter{}
	return NewSessionRegistry(emitter, 25, 60, 10, 0.8), emitter
}

// bearerToken собирает трехсегментный токен с нужной идентичностью.
// Подпись не проверяется: реестр читает только payload.
func bearerToken(payloadJSON string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payloadJSON))
	return "header." + encoded + ".signature"
}

// ============================================================================
// Привязка сессии к идентичности
// ============================================================================

func TestAuthenticatePromotesGuestSession(t *testing.T) {
	registry, emitter := newRegistryFixture()
	registry.OnConnect("c1")

	err := registry.Authenticate("c1", bearerToken(`{"sub":"1","username":"alice","phoneNumber":"+33600000001"}`))
	require.NoError(t, err)

	session, ok := registry.Get("c1")
	require.True(t, ok)
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, UserTypeAuthenticated, session.UserType)
	assert.Equal(t, "1", session.UserID)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, "+33600000001", session.PhoneNumber)

	cid, bound := registry.ConnectionForUser("1")
	require.True(t, bound)
	assert.Equal(t, "c1", cid)

	confirmed := emitter.emitsOf(EvtAuthConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "c1", confirmed[0].ConnectionID)
	assert.Empty(t, emitter.emitsOf(EvtForceLogout))
}

func TestAuthenticateRejectsBadInput(t *testing.T) {
	registry, _ := newRegistryFixture()
	registry.OnConnect("c1")

	var wireErr *WireError

	require.ErrorAs(t, registry.Authenticate("c1", ""), &wireErr)
	assert.Equal(t, CodeMissingToken, wireErr.Code)

	require.ErrorAs(t, registry.Authenticate("c1", "not-a-token"), &wireErr)
	assert.Equal(t, CodeInvalidToken, wireErr.Code)

	token := bearerToken(`{"sub":"1"}`)
	require.ErrorAs(t, registry.Authenticate("ghost", token), &wireErr)
	assert.Equal(t, CodeSessionNotFound, wireErr.Code)
}

// ============================================================================
// Единственное подключение на пользователя
// ============================================================================

func TestAuthenticateEvictsOldConnectionOnNewToken(t *testing.T) {
	registry, emitter := newRegistryFixture()
	registry.OnConnect("c1")
	registry.OnConnect("c2")

	require.NoError(t, registry.Authenticate("c1", bearerToken(`{"sub":"1","username":"alice","iat":1}`)))
	require.NoError(t, registry.Authenticate("c2", bearerToken(`{"sub":"1","username":"alice","iat":2}`)))

	// Индекс перепривязан на новое подключение
	cid, bound := registry.ConnectionForUser("1")
	require.True(t, bound)
	assert.Equal(t, "c2", cid)

	// Старое подключение получило forceLogout и закрывается с задержкой
	logouts := emitter.emitsOf(EvtForceLogout)
	require.Len(t, logouts, 1)
	assert.Equal(t, "c1", logouts[0].ConnectionID)
	payload, ok := logouts[0].Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Nouvelle connexion détectée avec votre compte. Cette session va être fermée.", payload["reason"])

	require.Eventually(t, func() bool {
		return len(emitter.closedConnections()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"c1"}, emitter.closedConnections())
}

func TestAuthenticateSameTokenRebindsWithoutEviction(t *testing.T) {
	registry, emitter := newRegistryFixture()
	registry.OnConnect("c1")
	registry.OnConnect("c2")

	token := bearerToken(`{"sub":"1","username":"alice"}`)
	require.NoError(t, registry.Authenticate("c1", token))
	require.NoError(t, registry.Authenticate("c2", token))

	cid, bound := registry.ConnectionForUser("1")
	require.True(t, bound)
	assert.Equal(t, "c2", cid)

	// Переподключение с тем же токеном не вытесняет старую сессию
	assert.Empty(t, emitter.emitsOf(EvtForceLogout))
	assert.Empty(t, emitter.closedConnections())
	_, stillThere := registry.Get("c1")
	assert.True(t, stillThere)
}

// ============================================================================
// Каскад отключения
// ============================================================================

func TestDisconnectOfEvictedKeepsNewBinding(t *testing.T) {
	registry, _ := newRegistryFixture()
	registry.OnConnect("c1")
	registry.OnConnect("c2")

	var cascaded []string
	registry.OnDisconnect(func(connectionID string) {
		cascaded = append(cascaded, connectionID)
	})

	require.NoError(t, registry.Authenticate("c1", bearerToken(`{"sub":"1","iat":1}`)))
	require.NoError(t, registry.Authenticate("c2", bearerToken(`{"sub":"1","iat":2}`)))

	// Закрытие вытесненного подключения не снимает привязку нового
	registry.OnDisconnectCascade("c1")
	cid, bound := registry.ConnectionForUser("1")
	require.True(t, bound)
	assert.Equal(t, "c2", cid)
	assert.Equal(t, []string{"c1"}, cascaded)

	registry.OnDisconnectCascade("c2")
	_, bound = registry.ConnectionForUser("1")
	assert.False(t, bound)
	assert.Equal(t, []string{"c1", "c2"}, cascaded)
}

func TestDisconnectCascadeIgnoresUnknownConnection(t *testing.T) {
	registry, _ := newRegistryFixture()

	fired := 0
	registry.OnDisconnect(func(string) { fired++ })

	registry.OnDisconnectCascade("ghost")
	assert.Zero(t, fired)
}

// ============================================================================
// Вытеснение простаивающих сессий
// ============================================================================

func TestSystemCheckEvictsIdleSessions(t *testing.T) {
	emitter := &fakeEmitter{}
	// Порог загрузки кучи 0: проверка простоя срабатывает всегда
	registry := NewSessionRegistry(emitter, 25, 60, 10, 0)
	registry.OnConnect("idle")
	registry.OnConnect("fresh")

	registry.mu.Lock()
	registry.sessions["idle"].LastActivityAt = time.Now().Add(-time.Hour)
	registry.mu.Unlock()

	registry.runSystemCheck()

	assert.Equal(t, []string{"idle"}, emitter.closedConnections())
}

func TestSystemCheckSkipsUnderHeapThreshold(t *testing.T) {
	emitter := &fakeEmitter{}
	// Порог выше единицы недостижим: вытеснения не происходит
	registry := NewSessionRegistry(emitter, 25, 60, 10, 2.0)
	registry.OnConnect("idle")

	registry.mu.Lock()
	registry.sessions["idle"].LastActivityAt = time.Now().Add(-time.Hour)
	registry.mu.Unlock()

	registry.runSystemCheck()

	assert.Empty(t, emitter.closedConnections())
}

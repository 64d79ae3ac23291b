package websocket

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/yourusername/trivia-live/pkg/auth"
)

// Типы пользователей сессии
const (
	UserTypeGuest         = "guest"
	UserTypeAuthenticated = "authenticated"
)

// Режимы участия
const (
	ParticipationNone  = "none"
	ParticipationPlay  = "play"
	ParticipationWatch = "watch"
)

// WireError - ошибка, доставляемая клиенту событием error
type WireError struct {
	Code           string
	Message        string
	RequiredAction string
}

func (e *WireError) Error() string {
	return e.Code + ": " + e.Message
}

// Session - состояние одного подключения. Владелец - SessionRegistry;
// лобби и раунд ссылаются на сессию только по connectionId.
type Session struct {
	ConnectionID      string
	UserID            string
	Username          string
	PhoneNumber       string
	Token             string
	IsAuthenticated   bool
	UserType          string
	ConnectedAt       time.Time
	LastActivityAt    time.Time
	ParticipationMode string
	Context           *ClientContext

	// Метка последней отправки eventCountdown (per-client throttle)
	lastCountdownAt time.Time
}

// sessionEmitter - минимальный интерфейс хаба, нужный реестру сессий
type sessionEmitter interface {
	EmitTo(connectionID, event string, data interface{}) bool
	Broadcast(event string, data interface{})
	CloseConnection(connectionID string)
}

// SessionRegistry владеет таблицей сессий и индексом user -> connection.
// Инвариант: на аутентифицированного пользователя приходится ровно одно
// подключение; конфликтующая старая сессия вытесняется синхронно.
type SessionRegistry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	userIndex map[string]string // userID -> connectionID

	hub sessionEmitter

	heartbeatInterval time.Duration
	systemCheckPeriod time.Duration
	idleTimeout       time.Duration
	heapThreshold     float64

	// snapshot отправляет клиенту начальный снимок состояния
	snapshot func(connectionID string)

	// contextCleanup освобождает ресурсы предыдущего контекста перед установкой нового
	contextCleanup func(connectionID string, old *ClientContext)

	// onDisconnect - каскад очистки по всем структурам, держащим connectionId
	onDisconnect []func(connectionID string)
}

// NewSessionRegistry создает реестр сессий
func NewSessionRegistry(hub sessionEmitter, heartbeatSec, systemCheckSec, idleTimeoutMin int, heapThreshold float64) *SessionRegistry {
	return &SessionRegistry{
		sessions:          make(map[string]*Session),
		userIndex:         make(map[string]string),
		hub:               hub,
		heartbeatInterval: time.Duration(heartbeatSec) * time.Second,
		systemCheckPeriod: time.Duration(systemCheckSec) * time.Second,
		idleTimeout:       time.Duration(idleTimeoutMin) * time.Minute,
		heapThreshold:     heapThreshold,
	}
}

// SetSnapshotFunc устанавливает отправителя начального снимка
func (r *SessionRegistry) SetSnapshotFunc(fn func(connectionID string)) {
	r.snapshot = fn
}

// SetContextCleanup устанавливает колбэк очистки предыдущего контекста
func (r *SessionRegistry) SetContextCleanup(fn func(connectionID string, old *ClientContext)) {
	r.contextCleanup = fn
}

// OnDisconnect регистрирует колбэк каскадной очистки при отключении
func (r *SessionRegistry) OnDisconnect(fn func(connectionID string)) {
	r.onDisconnect = append(r.onDisconnect, fn)
}

// OnConnect создает гостевую сессию и отправляет начальный снимок
func (r *SessionRegistry) OnConnect(connectionID string) {
	now := time.Now()
	session := &Session{
		ConnectionID:      connectionID,
		UserType:          UserTypeGuest,
		ConnectedAt:       now,
		LastActivityAt:    now,
		ParticipationMode: ParticipationNone,
		Context:           NewClientContext(ModeHome, false, false, false),
	}

	r.mu.Lock()
	r.sessions[connectionID] = session
	total := len(r.sessions)
	r.mu.Unlock()

	log.Printf("[SessionRegistry] Подключение %s установлено (всего сессий: %d)", connectionID, total)

	r.hub.EmitTo(connectionID, EvtConnectionEstablished, map[string]interface{}{
		"connectionId": connectionID,
		"userType":     UserTypeGuest,
	})
	if r.snapshot != nil {
		r.snapshot(connectionID)
	}
}

// Authenticate привязывает сессию к идентичности из bearer-токена.
// При конфликте с другим подключением того же пользователя и другим токеном
// старое подключение принудительно закрывается через 500 мс.
func (r *SessionRegistry) Authenticate(connectionID, token string) error {
	if token == "" {
		return &WireError{Code: CodeMissingToken, Message: "token is required"}
	}

	payload, err := auth.ExtractUnverifiedPayload(token)
	if err != nil {
		log.Printf("[SessionRegistry] Подключение %s: невалидный токен: %v", connectionID, err)
		return &WireError{Code: CodeInvalidToken, Message: "token payload could not be parsed"}
	}

	var evicted string

	r.mu.Lock()
	session, ok := r.sessions[connectionID]
	if !ok {
		r.mu.Unlock()
		return &WireError{Code: CodeSessionNotFound, Message: "session not found for connection"}
	}

	if oldCid, bound := r.userIndex[payload.UserID]; bound && oldCid != connectionID {
		old := r.sessions[oldCid]
		if old != nil && old.Token != token {
			evicted = oldCid
		}
		// При совпадении токена просто перепривязываем без вытеснения
	}

	session.UserID = payload.UserID
	session.Username = payload.Username
	session.PhoneNumber = payload.PhoneNumber
	session.Token = token
	session.IsAuthenticated = true
	session.UserType = UserTypeAuthenticated
	session.LastActivityAt = time.Now()
	r.userIndex[payload.UserID] = connectionID
	r.mu.Unlock()

	if evicted != "" {
		log.Printf("[SessionRegistry] Пользователь %s: вытеснение старого подключения %s", payload.UserID, evicted)
		r.hub.EmitTo(evicted, EvtForceLogout, map[string]interface{}{
			"reason": "Nouvelle connexion détectée avec votre compte. Cette session va être fermée.",
		})
		go func(cid string) {
			time.Sleep(500 * time.Millisecond)
			r.hub.CloseConnection(cid)
		}(evicted)
	}

	log.Printf("[SessionRegistry] Подключение %s аутентифицировано как пользователь %s", connectionID, payload.UserID)

	r.hub.EmitTo(connectionID, EvtAuthConfirmed, map[string]interface{}{
		"userId":   payload.UserID,
		"username": payload.Username,
	})
	if r.snapshot != nil {
		r.snapshot(connectionID)
	}
	return nil
}

// SetContext проверяет и устанавливает клиентский контекст.
// Предыдущий контекст очищается до установки нового.
func (r *SessionRegistry) SetContext(connectionID, mode string, isSolo, isInLobby, isInQuiz bool) error {
	if !ValidMode(mode) {
		return &WireError{Code: CodeInvalidMode, Message: "unknown context mode: " + mode}
	}

	r.mu.Lock()
	session, ok := r.sessions[connectionID]
	if !ok {
		r.mu.Unlock()
		return &WireError{Code: CodeSessionNotFound, Message: "session not found for connection"}
	}

	if code := AuthErrorForMode(mode, isSolo); code != "" && !session.IsAuthenticated {
		r.mu.Unlock()
		return &WireError{Code: code, Message: "authentication required for mode " + mode, RequiredAction: "LOGIN"}
	}

	old := session.Context
	session.Context = NewClientContext(mode, isSolo, isInLobby, isInQuiz)
	session.LastActivityAt = time.Now()
	r.mu.Unlock()

	if r.contextCleanup != nil && old != nil {
		r.contextCleanup(connectionID, old)
	}
	return nil
}

// OnDisconnectCascade удаляет сессию и каскадно чистит все структуры,
// держащие connectionId (лобби, раунд, индекс пользователя, троттлинг).
func (r *SessionRegistry) OnDisconnectCascade(connectionID string) {
	r.mu.Lock()
	session, ok := r.sessions[connectionID]
	if ok {
		if session.UserID != "" && r.userIndex[session.UserID] == connectionID {
			delete(r.userIndex, session.UserID)
		}
		delete(r.sessions, connectionID)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}

	log.Printf("[SessionRegistry] Подключение %s закрыто (всего сессий: %d)", connectionID, total)
	for _, fn := range r.onDisconnect {
		fn(connectionID)
	}
}

// TouchActivity обновляет метку активности (heartbeat_ack)
func (r *SessionRegistry) TouchActivity(connectionID string) {
	r.mu.Lock()
	if session, ok := r.sessions[connectionID]; ok {
		session.LastActivityAt = time.Now()
	}
	r.mu.Unlock()
}

// Get возвращает копию сессии
func (r *SessionRegistry) Get(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// ConnectionForUser возвращает подключение, привязанное к пользователю
func (r *SessionRegistry) ConnectionForUser(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.userIndex[userID]
	return cid, ok
}

// Identity возвращает идентичность сессии для выбора победителя
func (r *SessionRegistry) Identity(connectionID string) (userID, username, phoneNumber string, authenticated bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[connectionID]
	if !ok {
		return "", "", "", false
	}
	return session.UserID, session.Username, session.PhoneNumber, session.IsAuthenticated
}

// SetParticipationMode переключает режим участия (play/watch)
func (r *SessionRegistry) SetParticipationMode(connectionID, mode string) {
	r.mu.Lock()
	if session, ok := r.sessions[connectionID]; ok {
		session.ParticipationMode = mode
	}
	r.mu.Unlock()
}

// CanReceive решает, доставлять ли событие подключению. Таблица подписок
// контекста - единственный авторитет; для гостей дополнительно действует
// жесткий whitelist информационных событий.
func (r *SessionRegistry) CanReceive(connectionID, event string) bool {
	if IsBaseline(event) {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[connectionID]
	if !ok {
		return false
	}
	if !session.Context.Allows(event) {
		return false
	}
	if !session.IsAuthenticated && !GuestAllowed(event) {
		return false
	}
	return true
}

// AllowCountdown реализует per-client троттлинг eventCountdown.
// Возвращает true, если с последней отправки прошло не меньше window.
func (r *SessionRegistry) AllowCountdown(connectionID string, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[connectionID]
	if !ok {
		return false
	}
	now := time.Now()
	if now.Sub(session.lastCountdownAt) < window {
		return false
	}
	session.lastCountdownAt = now
	return true
}

// Run запускает heartbeat и системную проверку. Блокируется до отмены ctx.
func (r *SessionRegistry) Run(ctx context.Context) {
	heartbeat := time.NewTicker(r.heartbeatInterval)
	defer heartbeat.Stop()
	systemCheck := time.NewTicker(r.systemCheckPeriod)
	defer systemCheck.Stop()

	log.Printf("[SessionRegistry] Запущены heartbeat (%v) и системная проверка (%v)", r.heartbeatInterval, r.systemCheckPeriod)

	for {
		select {
		case <-ctx.Done():
			log.Println("[SessionRegistry] Остановка фоновых циклов")
			return
		case <-heartbeat.C:
			r.hub.Broadcast(EvtHeartbeat, map[string]interface{}{
				"serverTime": time.Now().UnixMilli(),
			})
		case <-systemCheck.C:
			r.runSystemCheck()
		}
	}
}

// runSystemCheck вытесняет простаивающие сессии при высокой загрузке кучи
func (r *SessionRegistry) runSystemCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return
	}
	utilization := float64(m.HeapAlloc) / float64(m.HeapSys)
	if utilization <= r.heapThreshold {
		return
	}

	cutoff := time.Now().Add(-r.idleTimeout)
	var idle []string

	r.mu.RLock()
	for cid, session := range r.sessions {
		if session.LastActivityAt.Before(cutoff) {
			idle = append(idle, cid)
		}
	}
	r.mu.RUnlock()

	if len(idle) == 0 {
		return
	}

	log.Printf("[SessionRegistry] Загрузка кучи %.0f%%: вытеснение %d простаивающих сессий", utilization*100, len(idle))
	for _, cid := range idle {
		r.hub.CloseConnection(cid)
	}
}

// Count возвращает число активных сессий
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

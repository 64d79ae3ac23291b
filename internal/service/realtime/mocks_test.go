package realtime

import (
	"sync"
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
)

// ============================================================================
// Тестовые фейки зависимостей ядра
// ============================================================================

// emittedEvent - запись одной отправки через фейковый хаб
type emittedEvent struct {
	Target string // пустая строка для broadcast
	Event  string
	Data   interface{}
}

// fakeHub записывает все отправки вместо реальной доставки
type fakeHub struct {
	mu     sync.Mutex
	events []emittedEvent
}

func newFakeHub() *fakeHub {
	return &fakeHub{}
}

func (h *fakeHub) EmitTo(connectionID, event string, data interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, emittedEvent{Target: connectionID, Event: event, Data: data})
	return true
}

func (h *fakeHub) Broadcast(event string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, emittedEvent{Event: event, Data: data})
}

func (h *fakeHub) BroadcastIf(event string, data interface{}, predicate func(connectionID string) bool) {
	h.Broadcast(event, data)
}

func (h *fakeHub) BroadcastThrottled(event string, data interface{}, perClientWindow time.Duration) {
	h.Broadcast(event, data)
}

// byEvent возвращает все отправки с данным типом события
func (h *fakeHub) byEvent(event string) []emittedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []emittedEvent
	for _, e := range h.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// count возвращает число отправок с данным типом события
func (h *fakeHub) count(event string) int {
	return len(h.byEvent(event))
}

// fakeIdentity - идентичность одной сессии в фейковом реестре
type fakeIdentity struct {
	UserID        string
	Username      string
	PhoneNumber   string
	Authenticated bool
}

// fakeSessions реализует SessionDirectory поверх статической карты
type fakeSessions struct {
	mu         sync.Mutex
	identities map[string]fakeIdentity
	modes      map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		identities: make(map[string]fakeIdentity),
		modes:      make(map[string]string),
	}
}

func (s *fakeSessions) addUser(cid, userID, username, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[cid] = fakeIdentity{UserID: userID, Username: username, PhoneNumber: phone, Authenticated: true}
}

func (s *fakeSessions) addGuest(cid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[cid] = fakeIdentity{}
}

func (s *fakeSessions) Identity(connectionID string) (string, string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.identities[connectionID]
	return id.UserID, id.Username, id.PhoneNumber, id.Authenticated
}

func (s *fakeSessions) SetParticipationMode(connectionID, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[connectionID] = mode
}

func (s *fakeSessions) modeOf(connectionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[connectionID]
}

// fakeEventPort реализует EventServicePort с записью вызовов
type fakeEventPort struct {
	mu sync.Mutex

	findOrCreateFn func(startAt time.Time) (*entity.Event, bool, error)

	findOrCreateCalls []time.Time
	lobbyOpened       []uint
	started           []uint
	nextCreated       []uint
	completed         map[uint]string
}

func newFakeEventPort() *fakeEventPort {
	return &fakeEventPort{completed: make(map[uint]string)}
}

func (p *fakeEventPort) FindOrCreateAt(startAt time.Time) (*entity.Event, bool, error) {
	p.mu.Lock()
	p.findOrCreateCalls = append(p.findOrCreateCalls, startAt)
	fn := p.findOrCreateFn
	p.mu.Unlock()
	if fn != nil {
		return fn(startAt)
	}
	return &entity.Event{ID: uint(len(p.findOrCreateCalls)), StartAt: startAt}, true, nil
}

func (p *fakeEventPort) MarkLobbyOpen(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lobbyOpened = append(p.lobbyOpened, id)
	return nil
}

func (p *fakeEventPort) MarkStarted(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, id)
	return nil
}

func (p *fakeEventPort) MarkNextEventCreated(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextCreated = append(p.nextCreated, id)
	return nil
}

func (p *fakeEventPort) CompleteEvent(id uint, winner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[id] = winner
	return nil
}

func (p *fakeEventPort) completedWinner(id uint) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.completed[id]
	return w, ok
}

// fakeEventRepo реализует repository.EventRepository поверх срезов
type fakeEventRepo struct {
	mu sync.Mutex

	upcoming  []entity.Event
	inWindow  []entity.Event
	completed []entity.Event
	active    []entity.Event

	deleted []uint
	updates map[uint]map[string]interface{}
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{updates: make(map[uint]map[string]interface{})}
}

func (r *fakeEventRepo) Create(event *entity.Event) error { return nil }

func (r *fakeEventRepo) GetByID(id uint) (*entity.Event, error) {
	return &entity.Event{ID: id}, nil
}

func (r *fakeEventRepo) GetActiveOrdered() ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, nil
}

func (r *fakeEventRepo) GetUpcomingFromNow(now time.Time) ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upcoming, nil
}

func (r *fakeEventRepo) GetInWindow(from, to time.Time) ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inWindow, nil
}

func (r *fakeEventRepo) GetCompletedSince(since time.Time, missingNextFlag bool) ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed, nil
}

func (r *fakeEventRepo) Update(id uint, patch map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = patch
	return nil
}

func (r *fakeEventRepo) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeEventRepo) DeleteBulk(ids []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return nil
}

func (r *fakeEventRepo) updateFor(id uint) map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[id]
}

// fakeQuestionRepo реализует repository.QuestionRepository поверх среза
type fakeQuestionRepo struct {
	questions []entity.Question
}

func (r *fakeQuestionRepo) Create(question *entity.Question) error       { return nil }
func (r *fakeQuestionRepo) CreateBatch(questions []entity.Question) error { return nil }

func (r *fakeQuestionRepo) GetByID(id uint) (*entity.Question, error) {
	return nil, nil
}

func (r *fakeQuestionRepo) List(limit, offset int) ([]entity.Question, error) {
	return r.questions, nil
}

func (r *fakeQuestionRepo) GetRandom(limit int) ([]entity.Question, error) {
	if limit > len(r.questions) {
		limit = len(r.questions)
	}
	return r.questions[:limit], nil
}

func (r *fakeQuestionRepo) GetByTheme(theme string, limit int) ([]entity.Question, error) {
	var out []entity.Question
	for _, q := range r.questions {
		if q.Theme == theme {
			out = append(out, q)
		}
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQuestionRepo) Update(question *entity.Question) error { return nil }
func (r *fakeQuestionRepo) Delete(id uint) error                   { return nil }

// stubEngine подменяет движок раунда для тестов планировщика и лобби
type stubEngine struct {
	mu       sync.Mutex
	live     bool
	started  []*entity.Event
	handoffs [][]string
}

func (e *stubEngine) IsRoundLive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

func (e *stubEngine) StartRound(event *entity.Event, participants []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, event)
	e.handoffs = append(e.handoffs, participants)
}

// testConfig возвращает конфигурацию с инертными тикерами для тестов
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.LobbyTickInterval = time.Hour
	cfg.PrimingDelay = time.Millisecond
	cfg.PostRoundGrace = 10 * time.Millisecond
	return cfg
}

// testDeps собирает зависимости ядра из фейков
func testDeps(hub *fakeHub, sessions *fakeSessions, port *fakeEventPort, eventRepo *fakeEventRepo, questionRepo *fakeQuestionRepo) *Dependencies {
	return &Dependencies{
		EventService: port,
		EventRepo:    eventRepo,
		QuestionRepo: questionRepo,
		Sessions:     sessions,
		Hub:          hub,
	}
}

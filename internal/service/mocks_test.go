package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// ============================================================================
// Фейковые хранилища в памяти для тестов сервисного слоя
// ============================================================================

// memEventRepo хранит события в памяти с фильтрацией по окнам
type memEventRepo struct {
	mu     sync.Mutex
	nextID uint
	events map[uint]*entity.Event

	patches map[uint]map[string]interface{}
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{
		nextID:  1,
		events:  make(map[uint]*entity.Event),
		patches: make(map[uint]map[string]interface{}),
	}
}

func (r *memEventRepo) Create(event *entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = r.nextID
	r.nextID++
	copied := *event
	r.events[event.ID] = &copied
	return nil
}

func (r *memEventRepo) GetByID(id uint) (*entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (r *memEventRepo) GetActiveOrdered() ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Event
	for _, e := range r.events {
		if !e.IsCompleted {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memEventRepo) GetUpcomingFromNow(now time.Time) ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Event
	for _, e := range r.events {
		if !e.IsCompleted && !e.StartAt.Before(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memEventRepo) GetInWindow(from, to time.Time) ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Event
	for _, e := range r.events {
		if !e.IsCompleted && !e.StartAt.Before(from) && !e.StartAt.After(to) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memEventRepo) GetCompletedSince(since time.Time, missingNextFlag bool) ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Event
	for _, e := range r.events {
		if !e.IsCompleted || e.CompletedAt == nil || !e.CompletedAt.After(since) {
			continue
		}
		if missingNextFlag && e.NextEventCreated {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *memEventRepo) Update(id uint, patch map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.patches[id] = patch
	if v, ok := patch["is_completed"].(bool); ok {
		event.IsCompleted = v
	}
	if v, ok := patch["lobby_open"].(bool); ok {
		event.LobbyOpen = v
	}
	if v, ok := patch["is_started"].(bool); ok {
		event.IsStarted = v
	}
	if v, ok := patch["next_event_created"].(bool); ok {
		event.NextEventCreated = v
	}
	if v, ok := patch["start_at"].(time.Time); ok {
		event.StartAt = v
	}
	if v, ok := patch["completed_at"].(time.Time); ok {
		event.CompletedAt = &v
	}
	if v, ok := patch["winner"].(string); ok {
		event.Winner = &v
	}
	return nil
}

func (r *memEventRepo) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}

func (r *memEventRepo) DeleteBulk(ids []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.events, id)
	}
	return nil
}

func (r *memEventRepo) patchFor(id uint) map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.patches[id]
}

// memUserRepo хранит пользователей в памяти
type memUserRepo struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*entity.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: make(map[uint]*entity.User)}
}

func (r *memUserRepo) Create(user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.nextID
	r.nextID++
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) GetByID(id uint) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *memUserRepo) GetByPhoneNumber(phoneNumber string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.PhoneNumber == phoneNumber {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memUserRepo) GetByUsername(username string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memUserRepo) Update(user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) IncrementStats(id uint, gamesDelta, winsDelta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	user.GamesPlayed += gamesDelta
	user.WinsCount += winsDelta
	return nil
}

func (r *memUserRepo) Leaderboard(page, pageSize int) ([]entity.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

// memOtpRepo хранит один активный код на номер
type memOtpRepo struct {
	mu     sync.Mutex
	nextID uint
	codes  map[string]*entity.OtpCode
}

func newMemOtpRepo() *memOtpRepo {
	return &memOtpRepo{nextID: 1, codes: make(map[string]*entity.OtpCode)}
}

func (r *memOtpRepo) Upsert(code *entity.OtpCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code.ID = r.nextID
	r.nextID++
	copied := *code
	r.codes[code.PhoneNumber] = &copied
	return nil
}

func (r *memOtpRepo) GetActiveByPhone(phoneNumber string) (*entity.OtpCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[phoneNumber]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *code
	return &copied, nil
}

func (r *memOtpRepo) IncrementAttempts(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range r.codes {
		if code.ID == id {
			code.AttemptCount++
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (r *memOtpRepo) Consume(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range r.codes {
		if code.ID == id {
			now := time.Now()
			code.ConsumedAt = &now
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (r *memOtpRepo) DeleteExpired() (int64, error) { return 0, nil }

// memRefreshRepo хранит refresh-токены по хешу
type memRefreshRepo struct {
	mu     sync.Mutex
	nextID uint
	tokens map[string]*entity.RefreshToken
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{nextID: 1, tokens: make(map[string]*entity.RefreshToken)}
}

func (r *memRefreshRepo) Create(token *entity.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.ID = r.nextID
	r.nextID++
	copied := *token
	r.tokens[token.TokenHash] = &copied
	return nil
}

func (r *memRefreshRepo) GetByHash(tokenHash string) (*entity.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

func (r *memRefreshRepo) Revoke(tokenHash, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok {
		return apperrors.ErrNotFound
	}
	token.Revoke(reason)
	return nil
}

func (r *memRefreshRepo) RevokeAllForUser(userID uint, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			token.Revoke(reason)
		}
	}
	return nil
}

func (r *memRefreshRepo) DeleteExpired() (int64, error) { return 0, nil }

func (r *memRefreshRepo) activeCountForUser(userID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, token := range r.tokens {
		if token.UserID == userID && token.IsValid() {
			count++
		}
	}
	return count
}

// memCacheRepo реализует repository.CacheRepository поверх карты
type memCacheRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{values: make(map[string]string)}
}

func (r *memCacheRepo) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}

func (r *memCacheRepo) SetJSON(key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = string(raw)
	return nil
}

func (r *memCacheRepo) GetJSON(key string, dest interface{}) error {
	r.mu.Lock()
	raw, ok := r.values[key]
	r.mu.Unlock()
	if !ok {
		return apperrors.ErrNotFound
	}
	return json.Unmarshal([]byte(raw), dest)
}

// recordingStats реализует WinnerStats с записью вызовов
type recordingStats struct {
	mu      sync.Mutex
	winners []string
	fail    error
}

func (s *recordingStats) RecordWin(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.winners = append(s.winners, identifier)
	return nil
}

// recordingSender реализует OtpSender с записью отправленных кодов
type recordingSender struct {
	mu    sync.Mutex
	codes map[string]string
	fail  error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{codes: make(map[string]string)}
}

func (s *recordingSender) Send(phoneNumber, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.codes[phoneNumber] = code
	return nil
}

func (s *recordingSender) codeFor(phoneNumber string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phoneNumber]
}

package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/websocket"
)

type engineFixture struct {
	engine   *QuizEngine
	hub      *fakeHub
	sessions *fakeSessions
	port     *fakeEventPort
	repo     *fakeQuestionRepo
}

func newEngineFixture() *engineFixture {
	hub := newFakeHub()
	sessions := newFakeSessions()
	port := newFakeEventPort()
	repo := &fakeQuestionRepo{}
	deps := testDeps(hub, sessions, port, newFakeEventRepo(), repo)
	return &engineFixture{
		engine:   NewQuizEngine(testConfig(), deps),
		hub:      hub,
		sessions: sessions,
		port:     port,
		repo:     repo,
	}
}

func fourChoiceQuestion(id uint, correct int) entity.Question {
	return entity.Question{
		ID:              id,
		Text:            "q",
		Responses:       entity.StringArray{"a", "b", "c", "d"},
		CorrectResponse: correct,
	}
}

// installRound подменяет состояние раунда напрямую, без цикла фаз
func (f *engineFixture) installRound(event *entity.Event, questions []entity.Question, cids ...string) *round {
	_, cancel := context.WithCancel(context.Background())
	r := &round{
		event:        event,
		questions:    questions,
		participants: make(map[string]*Participant, len(cids)),
		deadline:     time.Now().Add(10 * time.Second),
		cancel:       cancel,
	}
	for _, cid := range cids {
		r.participants[cid] = &Participant{}
	}
	f.engine.mu.Lock()
	f.engine.round = r
	f.engine.mu.Unlock()
	return r
}

// ============================================================================
// Прием ответов
// ============================================================================

func TestSubmitAnswerWithoutRound(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.SubmitAnswer("conn-1", 1, 2)

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, websocket.CodeInvalidContextPayload, wireErr.Code)
}

func TestSubmitAnswerWatcherLockedOut(t *testing.T) {
	f := newEngineFixture()
	r := f.installRound(&entity.Event{ID: 1}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")
	r.participants["conn-1"].IsWatching = true

	err := f.engine.SubmitAnswer("conn-1", 1, 2)

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, "Vous êtes en mode surveillance et ne pouvez plus soumettre de réponses.", wireErr.Message)
}

func TestSubmitAnswerStaleQuestion(t *testing.T) {
	f := newEngineFixture()
	f.installRound(&entity.Event{ID: 1}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")

	err := f.engine.SubmitAnswer("conn-1", 99, 2)

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, "question is no longer active", wireErr.Message)
}

func TestSubmitAnswerOutOfRange(t *testing.T) {
	f := newEngineFixture()
	f.installRound(&entity.Event{ID: 1}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")

	err := f.engine.SubmitAnswer("conn-1", 1, 5)

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, "answer is out of range", wireErr.Message)
}

func TestSubmitAnswerAfterDeadline(t *testing.T) {
	f := newEngineFixture()
	r := f.installRound(&entity.Event{ID: 1}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")
	r.deadline = time.Now().Add(-time.Second)

	err := f.engine.SubmitAnswer("conn-1", 1, 2)

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, "time is up for this question", wireErr.Message)
}

func TestSubmitAnswerBuffersUntilTally(t *testing.T) {
	f := newEngineFixture()
	questions := []entity.Question{fourChoiceQuestion(1, 2), fourChoiceQuestion(2, 3)}
	r := f.installRound(&entity.Event{ID: 1}, questions, "conn-1")

	require.NoError(t, f.engine.SubmitAnswer("conn-1", 1, 2))

	// Ответ буферизован, счет не начислен до подведения итога
	f.engine.mu.Lock()
	p := r.participants["conn-1"]
	require.NotNil(t, p.pending)
	assert.Equal(t, uint(1), p.pending.questionID)
	assert.Equal(t, 2, p.pending.answer)
	assert.Zero(t, p.Score)
	f.engine.mu.Unlock()

	queued := f.hub.byEvent(websocket.EvtAnswerQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, "conn-1", queued[0].Target)
}

// ============================================================================
// Подведение итога фазы вопроса
// ============================================================================

func TestTallyScoresAndDemotes(t *testing.T) {
	f := newEngineFixture()
	questions := []entity.Question{fourChoiceQuestion(1, 2), fourChoiceQuestion(2, 3)}
	r := f.installRound(&entity.Event{ID: 1}, questions, "right", "wrong", "silent")

	now := time.Now()
	r.participants["right"].pending = &pendingAnswer{questionID: 1, answer: 2, submittedAt: now}
	r.participants["wrong"].pending = &pendingAnswer{questionID: 1, answer: 1, submittedAt: now}

	proceed, adBreak := f.engine.tallyAndAdvance(r)

	require.True(t, proceed)
	// Следующий вопрос финальный, перед ним рекламная пауза
	assert.True(t, adBreak)

	f.engine.mu.Lock()
	assert.Equal(t, 1, r.participants["right"].Score)
	assert.False(t, r.participants["right"].IsWatching)
	assert.True(t, r.participants["wrong"].IsWatching)
	assert.True(t, r.participants["silent"].IsWatching)
	assert.Equal(t, 1, r.currentIndex)
	f.engine.mu.Unlock()

	assert.Equal(t, websocket.ParticipationWatch, f.sessions.modeOf("wrong"))
	assert.Equal(t, websocket.ParticipationWatch, f.sessions.modeOf("silent"))
	assert.Empty(t, f.sessions.modeOf("right"))

	assert.Equal(t, 3, f.hub.count(websocket.EvtAnswerResult))
}

func TestTallyFinalQuestionFinishesRound(t *testing.T) {
	f := newEngineFixture()
	f.sessions.addUser("conn-1", "5", "alice", "+33600000001")
	r := f.installRound(&entity.Event{ID: 2}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")
	r.participants["conn-1"].pending = &pendingAnswer{questionID: 1, answer: 2, submittedAt: time.Now()}

	proceed, _ := f.engine.tallyAndAdvance(r)
	require.False(t, proceed)

	// Победитель идентифицирован телефоном и записан в хранилище
	winner, ok := f.port.completedWinner(2)
	require.True(t, ok)
	assert.Equal(t, "+33600000001", winner)

	completed := f.hub.byEvent(websocket.EvtEventCompleted)
	require.Len(t, completed, 1)
	data := completed[0].Data.(map[string]interface{})
	assert.Equal(t, "+33600000001", data["winner"])
	assert.Equal(t, 1, data["winnerScore"])

	quizDone := f.hub.byEvent(websocket.EvtQuizCompleted)
	require.Len(t, quizDone, 1)
	payload := quizDone[0].Data.(map[string]interface{})
	assert.Equal(t, true, payload["isWinner"])
	assert.NotContains(t, payload, "immediateWin")

	// Состояние раунда очищается после льготного периода
	require.Eventually(t, func() bool {
		return !f.engine.IsRoundLive()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, websocket.ParticipationNone, f.sessions.modeOf("conn-1"))
}

func TestTallyNoCorrectAnswersCompletesWithoutWinner(t *testing.T) {
	f := newEngineFixture()
	r := f.installRound(&entity.Event{ID: 3}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")

	proceed, _ := f.engine.tallyAndAdvance(r)
	require.False(t, proceed)

	winner, ok := f.port.completedWinner(3)
	require.True(t, ok)
	assert.Equal(t, entity.WinnerNone, winner)
}

// ============================================================================
// Мгновенная победа
// ============================================================================

func TestImmediateWinOnFinalQuestion(t *testing.T) {
	f := newEngineFixture()
	f.sessions.addUser("conn-1", "5", "alice", "+33600000001")
	f.installRound(&entity.Event{ID: 4}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1", "conn-2")

	require.NoError(t, f.engine.SubmitAnswer("conn-1", 1, 2))

	winner, ok := f.port.completedWinner(4)
	require.True(t, ok)
	assert.Equal(t, "+33600000001", winner)

	immediate := f.hub.byEvent(websocket.EvtImmediateWinner)
	require.Len(t, immediate, 1)
	data := immediate[0].Data.(map[string]interface{})
	assert.Equal(t, "+33600000001", data["winner"])
	assert.Equal(t, 1, data["winnerScore"])

	assert.Equal(t, 1, f.hub.count(websocket.EvtEventCompleted))

	quizDone := f.hub.byEvent(websocket.EvtQuizCompleted)
	require.Len(t, quizDone, 2)
	for _, e := range quizDone {
		payload := e.Data.(map[string]interface{})
		assert.Equal(t, true, payload["immediateWin"])
		assert.Equal(t, e.Target == "conn-1", payload["isWinner"])
	}

	require.Eventually(t, func() bool {
		return !f.engine.IsRoundLive()
	}, time.Second, 5*time.Millisecond)
}

func TestWrongAnswerOnFinalQuestionIsBuffered(t *testing.T) {
	f := newEngineFixture()
	r := f.installRound(&entity.Event{ID: 4}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")

	require.NoError(t, f.engine.SubmitAnswer("conn-1", 1, 1))

	f.engine.mu.Lock()
	assert.False(t, r.finished)
	assert.NotNil(t, r.participants["conn-1"].pending)
	f.engine.mu.Unlock()
	assert.Empty(t, f.hub.byEvent(websocket.EvtImmediateWinner))
}

// ============================================================================
// Выбор победителя
// ============================================================================

func TestSelectWinnerByScoreThenEarliestCorrect(t *testing.T) {
	f := newEngineFixture()
	r := f.installRound(&entity.Event{ID: 5}, []entity.Question{fourChoiceQuestion(1, 2)})

	early := time.Now().Add(-2 * time.Second)
	late := time.Now().Add(-1 * time.Second)
	r.participants["low"] = &Participant{Score: 1, LastCorrectAt: &late}
	r.participants["high"] = &Participant{Score: 3, LastCorrectAt: &late}
	r.participants["fast"] = &Participant{Score: 3, LastCorrectAt: &early}
	r.participants["zero"] = &Participant{}

	f.engine.mu.Lock()
	winner := f.engine.selectWinnerLocked(r)
	f.engine.mu.Unlock()

	// Равный счет решается более ранним правильным ответом
	assert.Equal(t, "fast", winner)
}

func TestSelectWinnerNoCandidates(t *testing.T) {
	f := newEngineFixture()
	r := f.installRound(&entity.Event{ID: 5}, []entity.Question{fourChoiceQuestion(1, 2)}, "conn-1")

	f.engine.mu.Lock()
	winner := f.engine.selectWinnerLocked(r)
	f.engine.mu.Unlock()

	assert.Equal(t, "", winner)
}

func TestWinnerIdentifierFallbacks(t *testing.T) {
	f := newEngineFixture()
	f.sessions.addUser("with-phone", "5", "alice", "+33600000001")
	f.sessions.identities["id-only"] = fakeIdentity{UserID: "7", Authenticated: true}

	assert.Equal(t, "+33600000001", f.engine.winnerIdentifier("with-phone"))
	assert.Equal(t, "7", f.engine.winnerIdentifier("id-only"))
	assert.Equal(t, "anon-conn", f.engine.winnerIdentifier("anon-conn"))
}

// ============================================================================
// Запуск раунда
// ============================================================================

func TestStartRoundWithoutQuestionsCancelsEvent(t *testing.T) {
	f := newEngineFixture()

	f.engine.StartRound(&entity.Event{ID: 6, QuestionCount: 3}, []string{"conn-1"})

	assert.False(t, f.engine.IsRoundLive())
	winner, ok := f.port.completedWinner(6)
	require.True(t, ok)
	assert.Equal(t, entity.WinnerNone, winner)
	assert.Equal(t, 1, f.hub.count(websocket.EvtEventCancelled))
}

func TestStartRoundAnnouncesAndMarksStarted(t *testing.T) {
	f := newEngineFixture()
	f.sessions.addUser("conn-1", "5", "alice", "+33600000001")
	f.repo.questions = []entity.Question{fourChoiceQuestion(1, 2), fourChoiceQuestion(2, 3)}

	f.engine.StartRound(&entity.Event{ID: 7, QuestionCount: 2}, []string{"conn-1"})

	assert.True(t, f.engine.IsRoundLive())
	assert.Equal(t, []uint{7}, f.port.started)
	assert.Equal(t, 1, f.hub.count(websocket.EvtEventStarted))

	auto := f.hub.byEvent(websocket.EvtAutoStartQuiz)
	require.Len(t, auto, 1)
	assert.Equal(t, "conn-1", auto[0].Target)
	assert.Equal(t, websocket.ParticipationPlay, f.sessions.modeOf("conn-1"))

	// Останавливаем цикл фаз
	f.engine.mu.Lock()
	f.engine.round.cancel()
	f.engine.round = nil
	f.engine.mu.Unlock()
}

// ============================================================================
// Подключение к идущему раунду
// ============================================================================

func TestJoinInProgressOnFirstQuestionPlays(t *testing.T) {
	f := newEngineFixture()
	f.sessions.addUser("late", "5", "alice", "+33600000001")
	f.installRound(&entity.Event{ID: 8}, []entity.Question{fourChoiceQuestion(1, 2), fourChoiceQuestion(2, 3)})

	require.NoError(t, f.engine.JoinInProgress("late"))

	assert.Equal(t, websocket.ParticipationPlay, f.sessions.modeOf("late"))
	questions := f.hub.byEvent(websocket.EvtQuizQuestion)
	require.Len(t, questions, 1)
	assert.Equal(t, "late", questions[0].Target)
}

func TestJoinInProgressMidRoundWatches(t *testing.T) {
	f := newEngineFixture()
	f.sessions.addUser("late", "5", "alice", "+33600000001")
	r := f.installRound(&entity.Event{ID: 8}, []entity.Question{fourChoiceQuestion(1, 2), fourChoiceQuestion(2, 3)})
	r.currentIndex = 1

	require.NoError(t, f.engine.JoinInProgress("late"))

	assert.Equal(t, websocket.ParticipationWatch, f.sessions.modeOf("late"))
}

func TestJoinInProgressGuestWatches(t *testing.T) {
	f := newEngineFixture()
	f.sessions.addGuest("guest")
	f.installRound(&entity.Event{ID: 8}, []entity.Question{fourChoiceQuestion(1, 2), fourChoiceQuestion(2, 3)})

	require.NoError(t, f.engine.JoinInProgress("guest"))

	assert.Equal(t, websocket.ParticipationWatch, f.sessions.modeOf("guest"))
}

// ============================================================================
// Одиночная игра
// ============================================================================

func TestStartSoloQuizIncludesCorrectResponse(t *testing.T) {
	f := newEngineFixture()
	f.repo.questions = []entity.Question{fourChoiceQuestion(1, 2)}

	require.NoError(t, f.engine.StartSoloQuiz("conn-1", ""))

	solo := f.hub.byEvent(websocket.EvtSoloQuestions)
	require.Len(t, solo, 1)
	assert.Equal(t, "conn-1", solo[0].Target)
	data := solo[0].Data.(map[string]interface{})
	views := data["questions"].([]map[string]interface{})
	require.Len(t, views, 1)
	assert.Equal(t, 2, views[0]["correctResponse"])
}

func TestStartSoloQuizNoQuestions(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.StartSoloQuiz("conn-1", "")

	var wireErr *websocket.WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Empty(t, f.hub.byEvent(websocket.EvtSoloQuestions))
}

package realtime

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/websocket"
)

// AnswerRecord - запись журнала ответов участника
type AnswerRecord struct {
	QuestionID  uint      `json:"questionId"`
	UserAnswer  int       `json:"userAnswer"` // 0, если ответа не было
	Correct     bool      `json:"correct"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// pendingAnswer буферизует отправленный ответ до истечения таймера вопроса
type pendingAnswer struct {
	questionID  uint
	answer      int
	submittedAt time.Time
}

// Participant - состояние участника раунда. Переход в наблюдатели
// необратим до конца раунда.
type Participant struct {
	Score         int
	IsWatching    bool
	Answers       []AnswerRecord
	FinishedAt    *time.Time
	LastCorrectAt *time.Time

	pending *pendingAnswer
}

// round - состояние единственного активного раунда
type round struct {
	event        *entity.Event
	questions    []entity.Question
	currentIndex int
	deadline     time.Time
	participants map[string]*Participant
	cancel       context.CancelFunc
	finished     bool
}

func (r *round) currentQuestion() *entity.Question {
	return &r.questions[r.currentIndex]
}

func (r *round) isFinalQuestion() bool {
	return r.currentIndex == len(r.questions)-1
}

// QuizEngine ведет один глобальный синхронный раунд: фазы вопросов,
// таймеры, подсчет буферизованных ответов, рекламную паузу, мгновенную
// победу и выбор победителя. Каждый колбэк таймера перечитывает состояние
// под мьютексом и самоустраняется, если раунд был заменен.
type QuizEngine struct {
	config *Config
	deps   *Dependencies

	mu    sync.Mutex
	round *round
}

// NewQuizEngine создает движок раунда
func NewQuizEngine(config *Config, deps *Dependencies) *QuizEngine {
	return &QuizEngine{
		config: config,
		deps:   deps,
	}
}

// IsRoundLive сообщает, идет ли сейчас раунд
func (e *QuizEngine) IsRoundLive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round != nil
}

// StartRound принимает событие и снимок участников лобби и запускает раунд
func (e *QuizEngine) StartRound(event *entity.Event, participants []string) {
	questions, err := e.fetchQuestions(event.Theme, event.QuestionCount)
	if err != nil || len(questions) == 0 {
		log.Printf("[QuizEngine] Событие #%d: вопросы недоступны (%v), событие отменено", event.ID, err)
		if err := e.deps.EventService.CompleteEvent(event.ID, entity.WinnerNone); err != nil {
			log.Printf("[QuizEngine] Ошибка завершения события #%d без вопросов: %v", event.ID, err)
		}
		e.deps.Hub.Broadcast(websocket.EvtEventCancelled, map[string]interface{}{
			"eventId": event.ID,
			"reason":  "no questions available",
		})
		return
	}

	e.mu.Lock()
	if e.round != nil {
		e.mu.Unlock()
		log.Printf("[QuizEngine] Раунд события #%d уже идет, событие #%d пропущено", e.round.event.ID, event.ID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &round{
		event:        event,
		questions:    questions,
		participants: make(map[string]*Participant, len(participants)),
		cancel:       cancel,
	}
	for _, cid := range participants {
		r.participants[cid] = &Participant{}
	}
	e.round = r
	e.mu.Unlock()

	if err := e.deps.EventService.MarkStarted(event.ID); err != nil {
		log.Printf("[QuizEngine] Ошибка отметки старта события #%d: %v", event.ID, err)
	}

	log.Printf("[QuizEngine] Раунд события #%d запущен: %d вопросов, %d участников", event.ID, len(questions), len(participants))

	e.deps.Hub.Broadcast(websocket.EvtEventStarted, map[string]interface{}{
		"eventId":       event.ID,
		"theme":         event.Theme,
		"questionCount": len(questions),
	})
	for _, cid := range participants {
		e.deps.Sessions.SetParticipationMode(cid, websocket.ParticipationPlay)
		e.deps.Hub.EmitTo(cid, websocket.EvtAutoStartQuiz, map[string]interface{}{
			"eventId": event.ID,
		})
	}

	go e.runRound(ctx, r)
}

// fetchQuestions выбирает вопросы: сперва по теме события, при нехватке -
// случайные
func (e *QuizEngine) fetchQuestions(theme string, count int) ([]entity.Question, error) {
	if count < 1 {
		count = e.config.DefaultQuestionCount
	}
	if theme != "" {
		questions, err := e.deps.QuestionRepo.GetByTheme(theme, count)
		if err == nil && len(questions) >= count {
			return questions, nil
		}
		log.Printf("[QuizEngine] По теме %q доступно меньше %d вопросов, беру случайные", theme, count)
	}
	return e.deps.QuestionRepo.GetRandom(count)
}

// runRound выполняет цикл фаз вопросов до завершения раунда
func (e *QuizEngine) runRound(ctx context.Context, r *round) {
	for {
		if !sleepCtx(ctx, e.config.PrimingDelay) {
			return
		}
		if !e.beginQuestion(r) {
			return
		}
		if !e.tickQuestion(ctx, r) {
			return
		}
		proceed, adBreak := e.tallyAndAdvance(r)
		if !proceed {
			return
		}
		if adBreak {
			if !e.runAdBreak(ctx, r) {
				return
			}
		}
	}
}

// beginQuestion открывает фазу текущего вопроса и рассылает quizQuestion
// каждому участнику с аннотацией корректности его предыдущего ответа
func (e *QuizEngine) beginQuestion(r *round) bool {
	e.mu.Lock()
	if e.round != r || r.finished {
		e.mu.Unlock()
		return false
	}
	r.deadline = time.Now().Add(e.config.PerQuestionDuration)
	payloads := make(map[string]map[string]interface{}, len(r.participants))
	for cid, p := range r.participants {
		payloads[cid] = e.questionPayloadLocked(r, p)
	}
	index := r.currentIndex
	e.mu.Unlock()

	log.Printf("[QuizEngine] Событие #%d: вопрос %d/%d", r.event.ID, index+1, len(r.questions))
	for cid, payload := range payloads {
		e.deps.Hub.EmitTo(cid, websocket.EvtQuizQuestion, payload)
	}
	return true
}

// questionPayloadLocked строит полезную нагрузку quizQuestion для участника.
// Вызывается под e.mu.
func (e *QuizEngine) questionPayloadLocked(r *round, p *Participant) map[string]interface{} {
	question := r.currentQuestion()
	payload := map[string]interface{}{
		"eventId":        r.event.ID,
		"questionNumber": r.currentIndex + 1,
		"totalQuestions": len(r.questions),
		"question":       question,
		"timeLeft":       int(time.Until(r.deadline).Round(time.Second).Seconds()),
		"isWatching":     p.IsWatching,
	}
	if r.currentIndex > 0 && len(p.Answers) > 0 {
		last := p.Answers[len(p.Answers)-1]
		payload["lastAnswer"] = last.UserAnswer
		payload["lastAnswerCorrect"] = last.Correct
	}
	return payload
}

// tickQuestion ведет секундный таймер фазы вопроса и рассылает timerUpdate.
// Возвращает false, если раунд был отменен или заменен.
func (e *QuizEngine) tickQuestion(ctx context.Context, r *round) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			e.mu.Lock()
			if e.round != r || r.finished {
				e.mu.Unlock()
				return false
			}
			timeLeft := int(time.Until(r.deadline).Round(time.Second).Seconds())
			stats := e.playerStatsLocked(r)
			e.mu.Unlock()

			if timeLeft <= 0 {
				return true
			}
			e.deps.Hub.Broadcast(websocket.EvtTimerUpdate, map[string]interface{}{
				"eventId":     r.event.ID,
				"timeLeft":    timeLeft,
				"playerStats": stats,
			})
		}
	}
}

// playerStatsLocked строит снимок статистики участников. Вызывается под e.mu.
func (e *QuizEngine) playerStatsLocked(r *round) []map[string]interface{} {
	stats := make([]map[string]interface{}, 0, len(r.participants))
	for cid, p := range r.participants {
		_, username, _, _ := e.deps.Sessions.Identity(cid)
		stats = append(stats, map[string]interface{}{
			"connectionId": cid,
			"username":     username,
			"score":        p.Score,
			"isWatching":   p.IsWatching,
		})
	}
	return stats
}

// tallyAndAdvance подводит итог фазы вопроса и переходит к следующему.
// Возвращает (продолжать ли цикл, нужна ли рекламная пауза перед
// следующим вопросом).
func (e *QuizEngine) tallyAndAdvance(r *round) (bool, bool) {
	now := time.Now()

	e.mu.Lock()
	if e.round != r || r.finished {
		e.mu.Unlock()
		return false, false
	}

	question := r.currentQuestion()
	results := make(map[string]map[string]interface{}, len(r.participants))
	var demoted []string

	for cid, p := range r.participants {
		if p.FinishedAt != nil {
			continue
		}
		userAnswer := 0
		correct := false
		submittedAt := now

		if !p.IsWatching && p.pending != nil && p.pending.questionID == question.ID {
			userAnswer = p.pending.answer
			submittedAt = p.pending.submittedAt
			correct = question.IsCorrect(userAnswer)
			if correct {
				p.Score++
				t := now
				p.LastCorrectAt = &t
			} else {
				p.IsWatching = true
				demoted = append(demoted, cid)
			}
		} else if !p.IsWatching {
			p.IsWatching = true
			demoted = append(demoted, cid)
		}

		p.pending = nil
		p.Answers = append(p.Answers, AnswerRecord{
			QuestionID:  question.ID,
			UserAnswer:  userAnswer,
			Correct:     correct,
			SubmittedAt: submittedAt,
		})
		results[cid] = map[string]interface{}{
			"questionId":      question.ID,
			"yourAnswer":      userAnswer,
			"correct":         correct,
			"correctResponse": question.CorrectResponse,
			"score":           p.Score,
			"isWatching":      p.IsWatching,
		}
	}

	r.currentIndex++
	pastLast := r.currentIndex >= len(r.questions)
	adBreakNext := !pastLast && r.isFinalQuestion()
	e.mu.Unlock()

	for _, cid := range demoted {
		e.deps.Sessions.SetParticipationMode(cid, websocket.ParticipationWatch)
	}
	for cid, result := range results {
		e.deps.Hub.EmitTo(cid, websocket.EvtAnswerResult, result)
	}

	if pastLast {
		e.finishByTally(r)
		return false, false
	}
	return true, adBreakNext
}

// runAdBreak проводит рекламную паузу перед финальным вопросом
func (e *QuizEngine) runAdBreak(ctx context.Context, r *round) bool {
	duration := int(e.config.AdBreakDuration.Seconds())
	log.Printf("[QuizEngine] Событие #%d: рекламная пауза %d с перед финальным вопросом", r.event.ID, duration)

	e.deps.Hub.Broadcast(websocket.EvtAdBreakStarted, map[string]interface{}{
		"eventId":         r.event.ID,
		"duration":        duration,
		"isFinalQuestion": true,
	})

	for left := duration; left > 0; left-- {
		e.deps.Hub.Broadcast(websocket.EvtAdBreakCountdown, map[string]interface{}{
			"eventId":  r.event.ID,
			"timeLeft": left,
		})
		if !sleepCtx(ctx, time.Second) {
			return false
		}
		e.mu.Lock()
		alive := e.round == r && !r.finished
		e.mu.Unlock()
		if !alive {
			return false
		}
	}

	e.deps.Hub.Broadcast(websocket.EvtAdBreakEnded, map[string]interface{}{
		"eventId": r.event.ID,
	})
	return true
}

// SubmitAnswer принимает ответ участника. Ответ буферизуется до истечения
// таймера; правильный ответ на финальном вопросе завершает раунд немедленно.
func (e *QuizEngine) SubmitAnswer(connectionID string, questionID uint, answer int) error {
	e.mu.Lock()
	r := e.round
	if r == nil || r.finished {
		e.mu.Unlock()
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "no quiz round is currently running"}
	}
	p, ok := r.participants[connectionID]
	if !ok {
		e.mu.Unlock()
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "you are not part of the current round"}
	}
	if p.IsWatching {
		e.mu.Unlock()
		return &websocket.WireError{
			Code:    websocket.CodeInvalidContextPayload,
			Message: "Vous êtes en mode surveillance et ne pouvez plus soumettre de réponses.",
		}
	}

	question := r.currentQuestion()
	switch {
	case questionID != question.ID:
		e.mu.Unlock()
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "question is no longer active"}
	case !question.IsValidAnswer(answer):
		e.mu.Unlock()
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "answer is out of range"}
	case !time.Now().Before(r.deadline):
		e.mu.Unlock()
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "time is up for this question"}
	}

	if r.isFinalQuestion() && question.IsCorrect(answer) {
		e.resolveImmediateWinLocked(r, connectionID, p, question)
		return nil
	}

	p.pending = &pendingAnswer{
		questionID:  questionID,
		answer:      answer,
		submittedAt: time.Now(),
	}
	e.mu.Unlock()

	e.deps.Hub.EmitTo(connectionID, websocket.EvtAnswerQueued, map[string]interface{}{
		"questionId": questionID,
	})
	return nil
}

// resolveImmediateWinLocked завершает раунд мгновенной победой: первый
// правильный ответ на финальном вопросе. Вызывается под e.mu и освобождает
// мьютекс сам.
func (e *QuizEngine) resolveImmediateWinLocked(r *round, winnerCid string, winner *Participant, question *entity.Question) {
	now := time.Now()
	r.finished = true
	r.cancel()

	winner.Score++
	winner.LastCorrectAt = &now
	winner.FinishedAt = &now
	winner.Answers = append(winner.Answers, AnswerRecord{
		QuestionID:  question.ID,
		UserAnswer:  question.CorrectResponse,
		Correct:     true,
		SubmittedAt: now,
	})

	event := r.event
	winnerScore := winner.Score
	total := len(r.participants)
	completions := e.completionPayloadsLocked(r, winnerCid, true)
	e.mu.Unlock()

	identifier := e.winnerIdentifier(winnerCid)
	log.Printf("[QuizEngine] Событие #%d: мгновенная победа %s (счет %d)", event.ID, identifier, winnerScore)

	e.persistWinner(event.ID, identifier, winnerCid)

	e.deps.Hub.Broadcast(websocket.EvtImmediateWinner, map[string]interface{}{
		"eventId":     event.ID,
		"winner":      identifier,
		"winnerScore": winnerScore,
	})
	e.deps.Hub.Broadcast(websocket.EvtEventCompleted, map[string]interface{}{
		"eventId":           event.ID,
		"winner":            identifier,
		"winnerScore":       winnerScore,
		"totalParticipants": total,
	})
	for cid, payload := range completions {
		e.deps.Hub.EmitTo(cid, websocket.EvtQuizCompleted, payload)
	}

	e.scheduleTeardown(r)
}

// finishByTally завершает раунд по истечении таймера последнего вопроса
func (e *QuizEngine) finishByTally(r *round) {
	e.mu.Lock()
	if e.round != r || r.finished {
		e.mu.Unlock()
		return
	}
	r.finished = true
	r.cancel()

	winnerCid := e.selectWinnerLocked(r)
	event := r.event
	total := len(r.participants)
	winnerScore := 0
	if winnerCid != "" {
		winnerScore = r.participants[winnerCid].Score
	}
	completions := e.completionPayloadsLocked(r, winnerCid, false)
	e.mu.Unlock()

	identifier := entity.WinnerNone
	if winnerCid != "" {
		identifier = e.winnerIdentifier(winnerCid)
	}
	log.Printf("[QuizEngine] Событие #%d завершено, победитель: %s", event.ID, identifier)

	e.persistWinner(event.ID, identifier, winnerCid)

	e.deps.Hub.Broadcast(websocket.EvtEventCompleted, map[string]interface{}{
		"eventId":           event.ID,
		"winner":            identifier,
		"winnerScore":       winnerScore,
		"totalParticipants": total,
	})
	for cid, payload := range completions {
		e.deps.Hub.EmitTo(cid, websocket.EvtQuizCompleted, payload)
	}

	e.scheduleTeardown(r)
}

// selectWinnerLocked выбирает победителя: счет по убыванию, затем более
// ранний lastCorrectAt. Участники без очков не претендуют. Пустая строка
// означает отсутствие победителя. Вызывается под e.mu.
func (e *QuizEngine) selectWinnerLocked(r *round) string {
	type candidate struct {
		cid           string
		score         int
		lastCorrectAt time.Time
	}
	var candidates []candidate
	for cid, p := range r.participants {
		if p.Score <= 0 || p.LastCorrectAt == nil {
			continue
		}
		candidates = append(candidates, candidate{cid, p.Score, *p.LastCorrectAt})
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].lastCorrectAt.Before(candidates[j].lastCorrectAt)
	})
	return candidates[0].cid
}

// completionPayloadsLocked строит quizCompleted для каждого участника.
// Вызывается под e.mu.
func (e *QuizEngine) completionPayloadsLocked(r *round, winnerCid string, immediate bool) map[string]map[string]interface{} {
	payloads := make(map[string]map[string]interface{}, len(r.participants))
	for cid, p := range r.participants {
		payload := map[string]interface{}{
			"eventId":  r.event.ID,
			"score":    p.Score,
			"answers":  p.Answers,
			"isWinner": cid == winnerCid,
		}
		if immediate {
			payload["immediateWin"] = true
		}
		payloads[cid] = payload
	}
	return payloads
}

// winnerIdentifier выбирает идентификатор победителя: телефон, затем
// userId, затем connectionId
func (e *QuizEngine) winnerIdentifier(connectionID string) string {
	userID, _, phone, _ := e.deps.Sessions.Identity(connectionID)
	if phone != "" {
		return phone
	}
	if userID != "" {
		return userID
	}
	return connectionID
}

// persistWinner фиксирует победителя в хранилище с одной повторной
// попыткой на connectionId. Обе неудачи логируются, раунд продолжает
// завершение: рассылка состоялась в памяти.
func (e *QuizEngine) persistWinner(eventID uint, identifier, fallbackCid string) {
	err := e.deps.EventService.CompleteEvent(eventID, identifier)
	if err == nil {
		return
	}
	log.Printf("[QuizEngine] Ошибка записи победителя события #%d: %v", eventID, err)

	if fallbackCid == "" {
		fallbackCid = entity.WinnerNone
	}
	if err := e.deps.EventService.CompleteEvent(eventID, fallbackCid); err != nil {
		log.Printf("[QuizEngine] Повторная запись победителя события #%d не удалась: %v", eventID, err)
	}
}

// scheduleTeardown очищает состояние раунда после льготного периода
func (e *QuizEngine) scheduleTeardown(r *round) {
	go func() {
		time.Sleep(e.config.PostRoundGrace)

		e.mu.Lock()
		if e.round != r {
			e.mu.Unlock()
			return
		}
		cids := make([]string, 0, len(r.participants))
		for cid := range r.participants {
			cids = append(cids, cid)
		}
		e.round = nil
		e.mu.Unlock()

		for _, cid := range cids {
			e.deps.Sessions.SetParticipationMode(cid, websocket.ParticipationNone)
		}
		log.Printf("[QuizEngine] Состояние раунда события #%d очищено", r.event.ID)
	}()
}

// JoinInProgress подключает клиента к идущему раунду. Клиент входит
// наблюдателем, если раунд уже продвинулся дальше первого вопроса или
// сессия не аутентифицирована.
func (e *QuizEngine) JoinInProgress(connectionID string) error {
	_, _, _, authenticated := e.deps.Sessions.Identity(connectionID)

	e.mu.Lock()
	r := e.round
	if r == nil || r.finished {
		e.mu.Unlock()
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "no quiz round is currently running"}
	}

	p, exists := r.participants[connectionID]
	if !exists {
		p = &Participant{IsWatching: r.currentIndex > 0 || !authenticated}
		r.participants[connectionID] = p
	}
	watching := p.IsWatching
	payload := e.questionPayloadLocked(r, p)
	eventID := r.event.ID
	e.mu.Unlock()

	mode := websocket.ParticipationPlay
	if watching {
		mode = websocket.ParticipationWatch
	}
	e.deps.Sessions.SetParticipationMode(connectionID, mode)
	log.Printf("[QuizEngine] Подключение %s вошло в раунд события #%d (режим %s)", connectionID, eventID, mode)

	e.deps.Hub.EmitTo(connectionID, websocket.EvtQuizQuestion, payload)
	return nil
}

// StartSoloQuiz отправляет клиенту подборку вопросов для одиночной игры.
// Состояние раунда не создается; клиент ведет игру сам.
func (e *QuizEngine) StartSoloQuiz(connectionID, theme string) error {
	questions, err := e.fetchQuestions(theme, e.config.DefaultQuestionCount)
	if err != nil || len(questions) == 0 {
		log.Printf("[QuizEngine] Одиночная игра для %s: вопросы недоступны: %v", connectionID, err)
		return &websocket.WireError{Code: websocket.CodeInvalidContextPayload, Message: "no questions available"}
	}

	views := make([]map[string]interface{}, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		views = append(views, map[string]interface{}{
			"id":              q.ID,
			"theme":           q.Theme,
			"text":            q.Text,
			"responses":       q.Responses,
			"correctResponse": q.CorrectResponse,
		})
	}

	e.deps.Hub.EmitTo(connectionID, websocket.EvtSoloQuestions, map[string]interface{}{
		"theme":     theme,
		"questions": views,
	})
	return nil
}

// RemoveConnection чистит участника раунда при отключении клиента
func (e *QuizEngine) RemoveConnection(connectionID string) {
	e.mu.Lock()
	if e.round != nil {
		delete(e.round.participants, connectionID)
	}
	e.mu.Unlock()
}

// sleepCtx ждет d или отмены контекста. Возвращает false при отмене.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

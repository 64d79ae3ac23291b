package websocket

// Режимы клиентского контекста
const (
	ModeHome   = "home"
	ModeSolo   = "solo"
	ModeOnline = "online"
	ModeQuiz   = "quiz"
)

// ClientContext - объявленный клиентом контекст. Таблица подписок выводится
// из (mode, isSolo, isInLobby, isInQuiz) и является единственным источником
// истины для исходящей доставки.
type ClientContext struct {
	Mode          string          `json:"mode"`
	IsSolo        bool            `json:"isSolo"`
	IsInLobby     bool            `json:"isInLobby"`
	IsInQuiz      bool            `json:"isInQuiz"`
	Subscriptions map[string]bool `json:"-"`
}

// baselineEvents всегда доставляются независимо от контекста
var baselineEvents = map[string]struct{}{
	EvtConnectionStatus:    {},
	EvtError:               {},
	EvtForceLogout:         {},
	EvtHeartbeat:           {},
	EvtConnectionError:     {},
	EvtConnectionRecovered: {},
}

// guestWhitelist - информационные события home-режима, разрешенные
// неаутентифицированным клиентам. Все игровые события для гостей
// блокируются жестко, независимо от подписок.
var guestWhitelist = map[string]struct{}{
	EvtUserStats:      {},
	EvtLobbyStatus:    {},
	EvtNextEvent:      {},
	EvtLobbyOpened:    {},
	EvtEventCountdown: {},
	EvtLobbyClosed:    {},
	EvtHeartbeat:      {},
}

// lobbyFlowEvents доставляются во всех online/quiz подконтекстах
var lobbyFlowEvents = []string{
	EvtLobbyJoined,
	EvtLobbyUpdate,
	EvtLobbyLeft,
	EvtEventCancelled,
	EvtAutoStartQuiz,
	EvtEventStarted,
	EvtEventCompleted,
}

// quizEvents доставляются только при isInQuiz
var quizEvents = []string{
	EvtQuizQuestion,
	EvtTimerUpdate,
	EvtAnswerQueued,
	EvtPlayerStats,
	EvtAdBreakStarted,
	EvtAdBreakCountdown,
	EvtAdBreakEnded,
	EvtImmediateWinner,
	EvtAnswerResult,
	EvtQuizCompleted,
}

// ValidMode проверяет имя режима
func ValidMode(mode string) bool {
	switch mode {
	case ModeHome, ModeSolo, ModeOnline, ModeQuiz:
		return true
	}
	return false
}

// AuthErrorForMode возвращает код ошибки, если режим требует аутентификации.
// Пустая строка означает, что режим доступен гостю.
func AuthErrorForMode(mode string, isSolo bool) string {
	switch mode {
	case ModeOnline:
		return CodeAuthRequiredOnline
	case ModeQuiz:
		if !isSolo {
			return CodeAuthRequiredMulti
		}
	}
	return ""
}

// DeriveSubscriptions строит таблицу подписок из декларативных правил.
// Повторный вызов с тем же входом дает идентичную таблицу.
func DeriveSubscriptions(mode string, isSolo, isInLobby, isInQuiz bool) map[string]bool {
	subs := make(map[string]bool)
	enable := func(events ...string) {
		for _, ev := range events {
			subs[ev] = true
		}
	}

	switch mode {
	case ModeHome:
		// eventCountdown в home-режиме сознательно выключен
		enable(EvtUserStats, EvtNextEvent, EvtLobbyStatus, EvtLobbyOpened)

	case ModeSolo:
		enable(EvtSoloQuestions)

	case ModeOnline, ModeQuiz:
		enable(EvtUserStats)
		enable(lobbyFlowEvents...)
		if isInLobby {
			enable(EvtEventCountdown, EvtLobbyClosed)
		}
		if isInQuiz {
			enable(quizEvents...)
		}
	}

	return subs
}

// NewClientContext создает контекст с выведенной таблицей подписок
func NewClientContext(mode string, isSolo, isInLobby, isInQuiz bool) *ClientContext {
	return &ClientContext{
		Mode:          mode,
		IsSolo:        isSolo,
		IsInLobby:     isInLobby,
		IsInQuiz:      isInQuiz,
		Subscriptions: DeriveSubscriptions(mode, isSolo, isInLobby, isInQuiz),
	}
}

// Allows проверяет, разрешено ли событие таблицей подписок контекста
func (c *ClientContext) Allows(event string) bool {
	if _, ok := baselineEvents[event]; ok {
		return true
	}
	if c == nil {
		return false
	}
	return c.Subscriptions[event]
}

// IsBaseline сообщает, принадлежит ли событие базовому набору
func IsBaseline(event string) bool {
	_, ok := baselineEvents[event]
	return ok
}

// GuestAllowed сообщает, входит ли событие в гостевой whitelist
func GuestAllowed(event string) bool {
	_, ok := guestWhitelist[event]
	return ok
}

package websocket

// Входящие типы сообщений (ингресс ядра)
const (
	InAuthenticate   = "authenticate"
	InSetContext     = "setContext"
	InJoinLobby      = "joinLobby"
	InLeaveLobby     = "leaveLobby"
	InJoinInProgress = "joinInProgress"
	InSubmitAnswer   = "submitAnswer"
	InStartSoloQuiz  = "startSoloQuiz"
	InCheckEvents    = "checkEvents"
	InHeartbeatAck   = "heartbeat_ack"
)

// Служебные исходящие события (базовый набор, разрешен в любом контексте)
const (
	EvtConnectionStatus      = "connectionStatus"
	EvtConnectionEstablished = "connectionEstablished"
	EvtAuthConfirmed         = "authenticationConfirmed"
	EvtError                 = "error"
	EvtForceLogout           = "forceLogout"
	EvtHeartbeat             = "heartbeat"
	EvtConnectionError       = "connectionError"
	EvtConnectionRecovered   = "connectionRecovered"
)

// Информационные события главного экрана
const (
	EvtUserStats   = "userStats"
	EvtNextEvent   = "nextEvent"
	EvtLobbyStatus = "lobbyStatus"
	EvtLobbyOpened = "lobbyOpened"
)

// События лобби
const (
	EvtEventCountdown = "eventCountdown"
	EvtLobbyClosed    = "lobbyClosed"
	EvtLobbyJoined    = "lobbyJoined"
	EvtLobbyUpdate    = "lobbyUpdate"
	EvtLobbyLeft      = "lobbyLeft"
	EvtEventCancelled = "eventCancelled"
	EvtAutoStartQuiz  = "autoStartQuiz"
	EvtEventStarted   = "eventStarted"
	EvtEventCompleted = "eventCompleted"
)

// События раунда
const (
	EvtQuizQuestion     = "quizQuestion"
	EvtTimerUpdate      = "timerUpdate"
	EvtAnswerQueued     = "answerQueued"
	EvtPlayerStats      = "playerStats"
	EvtAdBreakStarted   = "adBreakStarted"
	EvtAdBreakCountdown = "adBreakCountdown"
	EvtAdBreakEnded     = "adBreakEnded"
	EvtImmediateWinner  = "immediateWinner"
	EvtAnswerResult     = "answerResult"
	EvtQuizCompleted    = "quizCompleted"
	EvtSoloQuestions    = "soloQuestions"
)

// Коды ошибок realtime-канала
const (
	CodeMissingToken          = "MISSING_TOKEN"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeInvalidContextPayload = "INVALID_CONTEXT_PAYLOAD"
	CodeInvalidMode           = "INVALID_MODE"
	CodeAuthRequiredOnline    = "AUTH_REQUIRED_FOR_ONLINE"
	CodeAuthRequiredMulti     = "AUTH_REQUIRED_FOR_MULTIPLAYER"
)

// Event представляет структуру WebSocket-сообщения
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ErrorData - полезная нагрузка события error
type ErrorData struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	RequiredAction string `json:"requiredAction,omitempty"`
}

package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/trivia-live/internal/service"
	"github.com/yourusername/trivia-live/internal/service/realtime"
	ws "github.com/yourusername/trivia-live/internal/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Доступ ограничивается на уровне CORS и аутентификации канала
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler поднимает WebSocket-соединения и привязывает входящие
// сообщения к компонентам ядра. Обработчики сообщений не содержат
// логики: только разбор полезной нагрузки и вызов компонента.
type WSHandler struct {
	hub          *ws.Hub
	manager      *ws.Manager
	registry     *ws.SessionRegistry
	core         *realtime.CoreContext
	userService  *service.UserService
	eventService *service.EventService
	sendBuffer   int
}

// NewWSHandler создает обработчик WebSocket и регистрирует ингресс ядра
func NewWSHandler(
	hub *ws.Hub,
	manager *ws.Manager,
	registry *ws.SessionRegistry,
	core *realtime.CoreContext,
	userService *service.UserService,
	eventService *service.EventService,
	sendBuffer int,
) *WSHandler {
	h := &WSHandler{
		hub:          hub,
		manager:      manager,
		registry:     registry,
		core:         core,
		userService:  userService,
		eventService: eventService,
		sendBuffer:   sendBuffer,
	}
	h.registerIngress()
	registry.SetSnapshotFunc(h.sendSnapshot)
	return h
}

// HandleConnection обрабатывает GET /ws: апгрейд соединения и запуск
// насосов чтения и записи
func (h *WSHandler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WSHandler] Ошибка апгрейда соединения: %v", err)
		return
	}

	client := ws.NewClient(h.hub, h.manager, conn, h.sendBuffer)
	h.hub.RegisterClient(client)
	h.registry.OnConnect(client.ConnectionID)

	go client.WritePump()
	go client.ReadPump()
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type setContextPayload struct {
	Mode      string `json:"mode"`
	IsSolo    bool   `json:"isSolo"`
	IsInLobby bool   `json:"isInLobby"`
	IsInQuiz  bool   `json:"isInQuiz"`
}

type submitAnswerPayload struct {
	QuestionID uint `json:"questionId"`
	Answer     int  `json:"answer"`
}

type startSoloPayload struct {
	Theme string `json:"theme"`
}

// registerIngress привязывает типы входящих сообщений к компонентам ядра
func (h *WSHandler) registerIngress() {
	h.manager.RegisterHandler(ws.InAuthenticate, func(data json.RawMessage, client *ws.Client) error {
		var payload authenticatePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return &ws.WireError{Code: ws.CodeInvalidContextPayload, Message: "authenticate payload must carry a token"}
		}
		return h.registry.Authenticate(client.ConnectionID, payload.Token)
	})

	h.manager.RegisterHandler(ws.InSetContext, func(data json.RawMessage, client *ws.Client) error {
		var payload setContextPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return &ws.WireError{Code: ws.CodeInvalidContextPayload, Message: "setContext payload is malformed"}
		}
		return h.registry.SetContext(client.ConnectionID, payload.Mode, payload.IsSolo, payload.IsInLobby, payload.IsInQuiz)
	})

	h.manager.RegisterHandler(ws.InJoinLobby, func(_ json.RawMessage, client *ws.Client) error {
		return h.core.Lobby.Join(client.ConnectionID)
	})

	h.manager.RegisterHandler(ws.InLeaveLobby, func(_ json.RawMessage, client *ws.Client) error {
		h.core.Lobby.Leave(client.ConnectionID)
		return nil
	})

	h.manager.RegisterHandler(ws.InJoinInProgress, func(_ json.RawMessage, client *ws.Client) error {
		return h.core.Engine.JoinInProgress(client.ConnectionID)
	})

	h.manager.RegisterHandler(ws.InSubmitAnswer, func(data json.RawMessage, client *ws.Client) error {
		var payload submitAnswerPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return &ws.WireError{Code: ws.CodeInvalidContextPayload, Message: "submitAnswer payload is malformed"}
		}
		return h.core.Engine.SubmitAnswer(client.ConnectionID, payload.QuestionID, payload.Answer)
	})

	h.manager.RegisterHandler(ws.InStartSoloQuiz, func(data json.RawMessage, client *ws.Client) error {
		var payload startSoloPayload
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				return &ws.WireError{Code: ws.CodeInvalidContextPayload, Message: "startSoloQuiz payload is malformed"}
			}
		}
		return h.core.Engine.StartSoloQuiz(client.ConnectionID, payload.Theme)
	})

	h.manager.RegisterHandler(ws.InCheckEvents, func(_ json.RawMessage, client *ws.Client) error {
		h.core.Scheduler.CheckNow()
		return nil
	})

	h.manager.RegisterHandler(ws.InHeartbeatAck, func(_ json.RawMessage, client *ws.Client) error {
		h.registry.TouchActivity(client.ConnectionID)
		return nil
	})
}

// sendSnapshot отправляет клиенту начальный снимок: статистику игрока,
// состояние лобби и ближайшее событие. Каждая часть проходит проверку
// таблицы подписок, поскольку адресная отправка ее минует.
func (h *WSHandler) sendSnapshot(connectionID string) {
	if h.registry.CanReceive(connectionID, ws.EvtUserStats) {
		h.hub.EmitTo(connectionID, ws.EvtUserStats, h.userStats(connectionID))
	}

	if h.registry.CanReceive(connectionID, ws.EvtLobbyStatus) {
		h.hub.EmitTo(connectionID, ws.EvtLobbyStatus, h.core.Lobby.Status())
	}

	if h.registry.CanReceive(connectionID, ws.EvtNextEvent) {
		if event, err := h.eventService.GetNext(); err == nil {
			h.hub.EmitTo(connectionID, ws.EvtNextEvent, event)
		}
	}
}

func (h *WSHandler) userStats(connectionID string) interface{} {
	userID, _, _, authenticated := h.registry.Identity(connectionID)
	if !authenticated {
		return map[string]interface{}{"guest": true}
	}
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil {
		return map[string]interface{}{"guest": true}
	}
	stats, err := h.userService.Stats(uint(id))
	if err != nil {
		log.Printf("[WSHandler] Статистика пользователя %s недоступна: %v", userID, err)
		return map[string]interface{}{"guest": false}
	}
	return stats
}

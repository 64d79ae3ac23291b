package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
	"github.com/yourusername/trivia-live/internal/service"
	"github.com/yourusername/trivia-live/internal/service/realtime"
)

// EventHandler обрабатывает HTTP-запросы, связанные с событиями
type EventHandler struct {
	eventService *service.EventService
	core         *realtime.CoreContext
	lobbyWindow  time.Duration
}

// NewEventHandler создает обработчик событий
func NewEventHandler(eventService *service.EventService, core *realtime.CoreContext, lobbyWindow time.Duration) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		core:         core,
		lobbyWindow:  lobbyWindow,
	}
}

// GetNext обрабатывает GET /events/next
func (h *EventHandler) GetNext(c *gin.Context) {
	event, err := h.eventService.GetNext()
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetActive обрабатывает GET /events/active
func (h *EventHandler) GetActive(c *gin.Context) {
	events, err := h.eventService.GetActive()
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// CreateEventRequest представляет запрос на создание события
type CreateEventRequest struct {
	Theme             string    `json:"theme"`
	StartDate         time.Time `json:"startDate" binding:"required"`
	NumberOfQuestions int       `json:"numberOfQuestions" binding:"required,min=1"`
	MinPlayers        int       `json:"minPlayers"`
}

// Create обрабатывает POST /events
func (h *EventHandler) Create(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
		return
	}

	event, err := h.eventService.CreateEvent(req.Theme, req.StartDate, req.NumberOfQuestions, req.MinPlayers)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// OpenLobby обрабатывает POST /events/:id/open-lobby: принудительное
// открытие лобби, минуя цикл планировщика
func (h *EventHandler) OpenLobby(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	event, err := h.eventService.GetByID(id)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	if err := h.eventService.MarkLobbyOpen(event.ID); err != nil {
		h.handleEventError(c, err)
		return
	}
	event.LobbyOpen = true
	h.core.Lobby.OpenLobby(event)

	c.JSON(http.StatusOK, gin.H{"message": "lobby open requested", "event": event})
}

// ReadyForLobby обрабатывает GET /events/ready-for-lobby
func (h *EventHandler) ReadyForLobby(c *gin.Context) {
	events, err := h.eventService.ReadyForLobby(h.lobbyWindow)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// UpdateEventRequest представляет частичное обновление события
type UpdateEventRequest struct {
	Theme             *string    `json:"theme"`
	StartDate         *time.Time `json:"startDate"`
	NumberOfQuestions *int       `json:"numberOfQuestions"`
	MinPlayers        *int       `json:"minPlayers"`
}

// Update обрабатывает PUT /events/:id. Открытое лобби события будет
// пересоздано или закрыто по новому расписанию.
func (h *EventHandler) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
		return
	}

	patch := map[string]interface{}{}
	if req.Theme != nil {
		patch["theme"] = *req.Theme
	}
	if req.StartDate != nil {
		patch["start_at"] = *req.StartDate
	}
	if req.NumberOfQuestions != nil {
		if *req.NumberOfQuestions < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "numberOfQuestions must be at least 1", "code": "VALIDATION_ERROR"})
			return
		}
		patch["question_count"] = *req.NumberOfQuestions
	}
	if req.MinPlayers != nil {
		if *req.MinPlayers < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "minPlayers must be at least 1", "code": "VALIDATION_ERROR"})
			return
		}
		patch["min_players"] = *req.MinPlayers
	}
	if len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no fields to update", "code": "VALIDATION_ERROR"})
		return
	}

	event, err := h.eventService.UpdateEvent(id, patch)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// ForceUpdate обрабатывает POST /events/:id/force-update: повторно
// уведомляет подписчиков о текущем состоянии записи
func (h *EventHandler) ForceUpdate(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	event, err := h.eventService.ForceNotify(id)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subscribers notified", "event": event})
}

// ForceLobbyCheck обрабатывает POST /events/force-lobby-check:
// внеочередной проход всех циклов планировщика
func (h *EventHandler) ForceLobbyCheck(c *gin.Context) {
	h.core.Scheduler.CheckNow()
	c.JSON(http.StatusOK, gin.H{"message": "scheduler pass triggered"})
}

func (h *EventHandler) parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid event id", "code": "VALIDATION_ERROR"})
		return 0, false
	}
	return uint(id), true
}

func (h *EventHandler) handleEventError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "event not found", "code": "NOT_FOUND"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error(), "code": "CONFLICT"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error", "code": "INTERNAL_ERROR"})
	}
}

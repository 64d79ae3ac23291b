package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
	"github.com/yourusername/trivia-live/internal/service"
)

// UserHandler обрабатывает запросы, связанные с пользователями
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler создает новый обработчик пользователей
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetMe возвращает профиль и игровую статистику текущего пользователя
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := c.GetUint("userID")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Authentication required", "code": "MISSING_TOKEN"})
		return
	}

	stats, err := h.userService.Stats(userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found", "code": "NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetLeaderboard возвращает страницу лидерборда по убыванию побед
func (h *UserHandler) GetLeaderboard(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if err != nil || pageSize < 1 {
		pageSize = 10
	} else if pageSize > 100 {
		pageSize = 100
	}

	leaderboard, err := h.userService.Leaderboard(page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error getting leaderboard", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, leaderboard)
}

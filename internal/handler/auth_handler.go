package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
	"github.com/yourusername/trivia-live/internal/service"
)

const refreshCookieName = "refresh_token"

// AuthHandler обрабатывает запросы аутентификации по одноразовому коду
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler создает обработчик аутентификации
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRequest представляет запрос на отправку кода
type RegisterRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

// Register обрабатывает POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
		return
	}

	if err := h.authService.Register(req.PhoneNumber); err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// VerifyOtpRequest представляет запрос на проверку кода
type VerifyOtpRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Otp         string `json:"otp" binding:"required,len=6"`
	Username    string `json:"username"`
}

// VerifyOtp обрабатывает POST /auth/verify-otp: проверяет код, выпускает
// access-токен и ставит refresh-токен в HTTPOnly cookie
func (h *AuthHandler) VerifyOtp(c *gin.Context) {
	var req VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
		return
	}

	user, pair, err := h.authService.VerifyOtp(req.PhoneNumber, req.Otp, req.Username)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"player":      user,
		"accessToken": pair.AccessToken,
	})
}

// Refresh обрабатывает POST /auth/refresh: ротирует refresh-токен из cookie
// и выпускает новый access-токен
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookieName)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "refresh token cookie is missing", "code": "MISSING_TOKEN"})
		return
	}

	_, pair, err := h.authService.Refresh(refreshToken)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken})
}

// Logout обрабатывает POST /auth/logout: отзывает refresh-токены и чистит cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	if err := h.authService.Logout(userID); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(refreshCookieName, "", -1, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	maxAge := int(h.authService.RefreshLifetime().Seconds())
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(refreshCookieName, token, maxAge, "/", "", true, true)
}

func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": err.Error(), "code": "UNAUTHORIZED"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error(), "code": "NOT_FOUND"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error", "code": "INTERNAL_ERROR"})
	}
}

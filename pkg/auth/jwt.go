package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// JWTCustomClaims определяет полезную нагрузку access-токена
type JWTCustomClaims struct {
	UserID      uint   `json:"userId"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phoneNumber"`
	jwt.RegisteredClaims
}

// TokenPayload - идентичность, извлеченная из bearer-токена без проверки
// подписи. Realtime-канал доверяет токену, выданному HTTP-слоем: подпись
// уже была проверена при выдаче, здесь извлекается только идентичность.
type TokenPayload struct {
	UserID      string
	Username    string
	PhoneNumber string
}

// JWTService выпускает и проверяет access-токены
type JWTService struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTService создает новый сервис JWT
func NewJWTService(secret string, expirationHrs int) *JWTService {
	return &JWTService{
		secret:     []byte(secret),
		expiration: time.Duration(expirationHrs) * time.Hour,
	}
}

// GenerateToken выпускает подписанный access-токен для пользователя
func (s *JWTService) GenerateToken(user *entity.User) (string, error) {
	now := time.Now()
	claims := &JWTCustomClaims{
		UserID:      user.ID,
		Username:    user.Username,
		PhoneNumber: user.PhoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{"trivia-user"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken проверяет подпись и срок действия access-токена
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.ErrExpiredToken
		}
		return nil, apperrors.ErrUnauthorized
	}
	if !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}
	return claims, nil
}

// ExtractUnverifiedPayload извлекает идентичность из средней (payload) части
// трехсегментного JWT без проверки подписи. userId берется из sub, затем
// userId, затем id - первое непустое значение.
func ExtractUnverifiedPayload(tokenString string) (*TokenPayload, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token: expected 3 segments, got %d", len(parts))
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("malformed token payload: %w", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("malformed token payload: %w", err)
	}

	payload := &TokenPayload{}
	for _, key := range []string{"sub", "userId", "id"} {
		if v := stringClaim(body[key]); v != "" {
			payload.UserID = v
			break
		}
	}
	payload.Username = stringClaim(body["username"])
	payload.PhoneNumber = stringClaim(body["phoneNumber"])

	if payload.UserID == "" {
		return nil, fmt.Errorf("token payload carries no user identity")
	}
	return payload, nil
}

// stringClaim приводит значение клейма к строке (числовые id встречаются)
func stringClaim(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return ""
	}
}

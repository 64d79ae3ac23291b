package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
	"github.com/yourusername/trivia-live/pkg/auth"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// TokenPair - access-токен и сырой refresh-токен для cookie
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService реализует парольную регистрацию без пароля: одноразовый код
// на номер телефона, затем выпуск access-токена и ротация refresh-токена.
// Refresh-токены хранятся только хешем.
type AuthService struct {
	userRepo    repository.UserRepository
	otpRepo     repository.OtpRepository
	refreshRepo repository.RefreshTokenRepository

	jwtService *auth.JWTService
	otpSender  OtpSender

	otpExpiry       time.Duration
	otpMaxAttempts  int
	refreshLifetime time.Duration
}

// NewAuthService создает сервис аутентификации
func NewAuthService(
	userRepo repository.UserRepository,
	otpRepo repository.OtpRepository,
	refreshRepo repository.RefreshTokenRepository,
	jwtService *auth.JWTService,
	otpSender OtpSender,
	otpExpiryMinutes, otpMaxAttempts, refreshLifetimeHrs int,
) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		otpRepo:         otpRepo,
		refreshRepo:     refreshRepo,
		jwtService:      jwtService,
		otpSender:       otpSender,
		otpExpiry:       time.Duration(otpExpiryMinutes) * time.Minute,
		otpMaxAttempts:  otpMaxAttempts,
		refreshLifetime: time.Duration(refreshLifetimeHrs) * time.Hour,
	}
}

// RefreshLifetime возвращает срок жизни refresh-токена (для maxAge cookie)
func (s *AuthService) RefreshLifetime() time.Duration {
	return s.refreshLifetime
}

func normalizePhone(phoneNumber string) (string, error) {
	phone := strings.TrimSpace(phoneNumber)
	phone = strings.ReplaceAll(phone, " ", "")
	if !phonePattern.MatchString(phone) {
		return "", fmt.Errorf("%w: invalid phone number", apperrors.ErrValidation)
	}
	return phone, nil
}

// generateOtp возвращает шестизначный код
func generateOtp() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Register выпускает одноразовый код для номера телефона и отправляет его
// через настроенный канал доставки
func (s *AuthService) Register(phoneNumber string) error {
	phone, err := normalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	code, err := generateOtp()
	if err != nil {
		return fmt.Errorf("otp generation failed: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("otp hashing failed: %w", err)
	}

	record := &entity.OtpCode{
		PhoneNumber: phone,
		CodeHash:    string(hash),
		ExpiresAt:   time.Now().Add(s.otpExpiry),
		MaxAttempts: s.otpMaxAttempts,
		LastSentAt:  time.Now(),
	}
	if err := s.otpRepo.Upsert(record); err != nil {
		return err
	}

	if err := s.otpSender.Send(phone, code); err != nil {
		log.Printf("[AuthService] Доставка кода на %s не удалась: %v", phone, err)
		return fmt.Errorf("otp delivery failed: %w", err)
	}
	return nil
}

// VerifyOtp проверяет код, находит или создает игрока и выпускает токены
func (s *AuthService) VerifyOtp(phoneNumber, otp, username string) (*entity.User, *TokenPair, error) {
	phone, err := normalizePhone(phoneNumber)
	if err != nil {
		return nil, nil, err
	}

	record, err := s.otpRepo.GetActiveByPhone(phone)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no active code for this phone", apperrors.ErrUnauthorized)
	}

	now := time.Now()
	switch {
	case record.IsConsumed():
		return nil, nil, fmt.Errorf("%w: code already used", apperrors.ErrUnauthorized)
	case record.IsExpired(now):
		return nil, nil, fmt.Errorf("%w: code expired", apperrors.ErrUnauthorized)
	case !record.CanAttempt():
		return nil, nil, fmt.Errorf("%w: attempt limit reached", apperrors.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(otp)); err != nil {
		if err := s.otpRepo.IncrementAttempts(record.ID); err != nil {
			log.Printf("[AuthService] Счетчик попыток кода #%d не обновлен: %v", record.ID, err)
		}
		return nil, nil, fmt.Errorf("%w: wrong code", apperrors.ErrUnauthorized)
	}

	if err := s.otpRepo.Consume(record.ID); err != nil {
		log.Printf("[AuthService] Код #%d не помечен использованным: %v", record.ID, err)
	}

	user, err := s.findOrCreateUser(phone, username)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *AuthService) findOrCreateUser(phone, username string) (*entity.User, error) {
	user, err := s.userRepo.GetByPhoneNumber(phone)
	if err == nil {
		return user, nil
	}

	name := strings.TrimSpace(username)
	if name == "" {
		suffix, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return nil, err
		}
		name = fmt.Sprintf("player_%06d", suffix.Int64())
	}

	user = &entity.User{
		Username:    name,
		PhoneNumber: phone,
		Role:        "user",
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	log.Printf("[AuthService] Создан игрок #%d (%s)", user.ID, user.Username)
	return user, nil
}

// issueTokens выпускает access-токен и новый refresh-токен
func (s *AuthService) issueTokens(user *entity.User) (*TokenPair, error) {
	accessToken, err := s.jwtService.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("access token generation failed: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("refresh token generation failed: %w", err)
	}
	refreshToken := hex.EncodeToString(raw)

	record := entity.NewRefreshToken(user.ID, hashToken(refreshToken), time.Now().Add(s.refreshLifetime))
	if err := s.refreshRepo.Create(record); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh ротирует refresh-токен и выпускает новую пару токенов
func (s *AuthService) Refresh(refreshToken string) (*entity.User, *TokenPair, error) {
	if refreshToken == "" {
		return nil, nil, fmt.Errorf("%w: refresh token is missing", apperrors.ErrUnauthorized)
	}

	hash := hashToken(refreshToken)
	record, err := s.refreshRepo.GetByHash(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown refresh token", apperrors.ErrUnauthorized)
	}
	if !record.IsValid() {
		return nil, nil, fmt.Errorf("%w: refresh token expired or revoked", apperrors.ErrUnauthorized)
	}

	if err := s.refreshRepo.Revoke(hash, "rotated"); err != nil {
		log.Printf("[AuthService] Refresh-токен пользователя #%d не отозван: %v", record.UserID, err)
	}

	user, err := s.userRepo.GetByID(record.UserID)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Logout отзывает все refresh-токены пользователя
func (s *AuthService) Logout(userID uint) error {
	return s.refreshRepo.RevokeAllForUser(userID, "logout")
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

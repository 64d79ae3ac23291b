package errors

import (
	"errors"
	"fmt"
)

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный токен, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken используется, когда токен (например, refresh) истек.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict используется для конфликтов состояния (например, два события в одной минуте).
	ErrConflict = errors.New("resource state conflict")
)

// StorageError оборачивает ошибку хранилища. Ядро обязано оставаться живым
// при временной недоступности БД: вызывающий код трактует такую ошибку как
// пропущенный тик и повторяет операцию на следующем.
type StorageError struct {
	Op  string // операция ("create event", "update event", ...)
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError создает типизированную ошибку хранилища.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError сообщает, является ли ошибка (в цепочке) ошибкой хранилища.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

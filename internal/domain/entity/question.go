package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
func (o *StringArray) Scan(value interface{}) error {
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Question представляет вопрос викторины с четырьмя вариантами ответа.
// Для ядра вопрос неизменяем; correctResponse нумеруется с 1.
type Question struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Theme           string      `gorm:"size:100;not null;default:'';index" json:"theme"`
	Text            string      `gorm:"size:500;not null" json:"text"`
	Responses       StringArray `gorm:"type:jsonb;not null" json:"responses"`
	CorrectResponse int         `gorm:"not null" json:"-"` // Скрыто от клиента
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// IsCorrect проверяет, является ли выбранный вариант правильным (1..4)
func (q *Question) IsCorrect(answer int) bool {
	return answer == q.CorrectResponse
}

// IsValidAnswer проверяет, что номер ответа лежит в диапазоне 1..4
func (q *Question) IsValidAnswer(answer int) bool {
	return answer >= 1 && answer <= len(q.Responses)
}

package repository

import "github.com/yourusername/trivia-live/internal/domain/entity"

// QuestionRepository определяет интерфейс хранилища вопросов (шлюз C2)
type QuestionRepository interface {
	Create(question *entity.Question) error
	CreateBatch(questions []entity.Question) error
	GetByID(id uint) (*entity.Question, error)
	List(limit, offset int) ([]entity.Question, error)

	// GetRandom возвращает случайную выборку вопросов
	GetRandom(limit int) ([]entity.Question, error)

	// GetByTheme возвращает случайную выборку вопросов заданной темы
	GetByTheme(theme string, limit int) ([]entity.Question, error)

	Update(question *entity.Question) error
	Delete(id uint) error
}

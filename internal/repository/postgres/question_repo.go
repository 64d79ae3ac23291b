package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// QuestionRepo реализует repository.QuestionRepository
type QuestionRepo struct {
	db *gorm.DB
}

// NewQuestionRepo создает новый репозиторий вопросов
func NewQuestionRepo(db *gorm.DB) *QuestionRepo {
	return &QuestionRepo{db: db}
}

// Create создает новый вопрос
func (r *QuestionRepo) Create(question *entity.Question) error {
	if err := r.db.Create(question).Error; err != nil {
		return apperrors.NewStorageError("create question", err)
	}
	return nil
}

// CreateBatch создает пакет вопросов в одной транзакции
func (r *QuestionRepo) CreateBatch(questions []entity.Question) error {
	if len(questions) == 0 {
		return nil
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Устанавливаем кодировку UTF-8 внутри транзакции
		if err := tx.Exec("SET CLIENT_ENCODING TO 'UTF8'").Error; err != nil {
			return err
		}
		return tx.Create(&questions).Error
	})
	if err != nil {
		return apperrors.NewStorageError("create questions batch", err)
	}
	return nil
}

// GetByID возвращает вопрос по ID
func (r *QuestionRepo) GetByID(id uint) (*entity.Question, error) {
	var question entity.Question
	err := r.db.First(&question, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("get question by id", err)
	}
	return &question, nil
}

// List возвращает страницу вопросов
func (r *QuestionRepo) List(limit, offset int) ([]entity.Question, error) {
	var questions []entity.Question
	err := r.db.Order("id").Limit(limit).Offset(offset).Find(&questions).Error
	if err != nil {
		return nil, apperrors.NewStorageError("list questions", err)
	}
	return questions, nil
}

// GetRandom возвращает случайные вопросы из базы данных.
// ORDER BY RANDOM() достаточен для объёмов банка вопросов этой системы.
func (r *QuestionRepo) GetRandom(limit int) ([]entity.Question, error) {
	var questions []entity.Question
	err := r.db.Order("RANDOM()").Limit(limit).Find(&questions).Error
	if err != nil {
		return nil, apperrors.NewStorageError("get random questions", err)
	}
	return questions, nil
}

// GetByTheme возвращает случайные вопросы заданной темы
func (r *QuestionRepo) GetByTheme(theme string, limit int) ([]entity.Question, error) {
	var questions []entity.Question
	err := r.db.Where("theme = ?", theme).Order("RANDOM()").Limit(limit).Find(&questions).Error
	if err != nil {
		return nil, apperrors.NewStorageError("get questions by theme", err)
	}
	return questions, nil
}

// Update обновляет вопрос
func (r *QuestionRepo) Update(question *entity.Question) error {
	if err := r.db.Save(question).Error; err != nil {
		return apperrors.NewStorageError("update question", err)
	}
	return nil
}

// Delete удаляет вопрос
func (r *QuestionRepo) Delete(id uint) error {
	res := r.db.Delete(&entity.Question{}, id)
	if res.Error != nil {
		return apperrors.NewStorageError("delete question", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

package service

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	"github.com/yourusername/trivia-live/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
)

// QuestionService реализует операции над вопросами викторины
type QuestionService struct {
	questionRepo repository.QuestionRepository
}

// NewQuestionService создает сервис вопросов
func NewQuestionService(questionRepo repository.QuestionRepository) *QuestionService {
	return &QuestionService{questionRepo: questionRepo}
}

func validateQuestion(q *entity.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", apperrors.ErrValidation)
	}
	if len(q.Responses) != 4 {
		return fmt.Errorf("%w: exactly 4 responses are required", apperrors.ErrValidation)
	}
	for i, r := range q.Responses {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: response %d is empty", apperrors.ErrValidation, i+1)
		}
	}
	if q.CorrectResponse < 1 || q.CorrectResponse > len(q.Responses) {
		return fmt.Errorf("%w: correctResponse must be between 1 and %d", apperrors.ErrValidation, len(q.Responses))
	}
	return nil
}

// Create создает вопрос
func (s *QuestionService) Create(question *entity.Question) error {
	if err := validateQuestion(question); err != nil {
		return err
	}
	return s.questionRepo.Create(question)
}

// GetByID возвращает вопрос по id
func (s *QuestionService) GetByID(id uint) (*entity.Question, error) {
	return s.questionRepo.GetByID(id)
}

// List возвращает страницу вопросов
func (s *QuestionService) List(limit, offset int) ([]entity.Question, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.questionRepo.List(limit, offset)
}

// GetRandom возвращает случайную выборку вопросов
func (s *QuestionService) GetRandom(limit int) ([]entity.Question, error) {
	if limit < 1 {
		limit = 1
	}
	return s.questionRepo.GetRandom(limit)
}

// GetByTheme возвращает случайную выборку вопросов заданной темы
func (s *QuestionService) GetByTheme(theme string, limit int) ([]entity.Question, error) {
	if limit < 1 {
		limit = 1
	}
	return s.questionRepo.GetByTheme(theme, limit)
}

// Update обновляет вопрос
func (s *QuestionService) Update(question *entity.Question) error {
	if err := validateQuestion(question); err != nil {
		return err
	}
	return s.questionRepo.Update(question)
}

// Delete удаляет вопрос
func (s *QuestionService) Delete(id uint) error {
	return s.questionRepo.Delete(id)
}

// ImportXLSX импортирует вопросы из xlsx-файла. Ожидаемые колонки:
// тема, текст вопроса, четыре варианта, номер правильного (1..4).
// Первая строка считается заголовком. Возвращает число импортированных.
func (s *QuestionService) ImportXLSX(r io.Reader) (int, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read xlsx file: %v", apperrors.ErrValidation, err)
	}
	defer file.Close()

	sheet := file.GetSheetName(0)
	if sheet == "" {
		return 0, fmt.Errorf("%w: workbook has no sheets", apperrors.ErrValidation)
	}
	rows, err := file.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read sheet %q: %v", apperrors.ErrValidation, sheet, err)
	}

	var questions []entity.Question
	for i, row := range rows {
		if i == 0 {
			continue // заголовок
		}
		if len(row) < 7 {
			return 0, fmt.Errorf("%w: row %d has %d columns, expected 7", apperrors.ErrValidation, i+1, len(row))
		}

		correct, err := strconv.Atoi(strings.TrimSpace(row[6]))
		if err != nil {
			return 0, fmt.Errorf("%w: row %d has invalid correctResponse %q", apperrors.ErrValidation, i+1, row[6])
		}

		question := entity.Question{
			Theme:           strings.TrimSpace(row[0]),
			Text:            strings.TrimSpace(row[1]),
			Responses:       entity.StringArray{row[2], row[3], row[4], row[5]},
			CorrectResponse: correct,
		}
		if err := validateQuestion(&question); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		questions = append(questions, question)
	}

	if len(questions) == 0 {
		return 0, fmt.Errorf("%w: file contains no questions", apperrors.ErrValidation)
	}
	if err := s.questionRepo.CreateBatch(questions); err != nil {
		return 0, err
	}
	return len(questions), nil
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/trivia-live/internal/domain/entity"
	apperrors "github.com/yourusername/trivia-live/internal/pkg/errors"
	"github.com/yourusername/trivia-live/internal/service"
)

// QuestionHandler обрабатывает HTTP-запросы, связанные с вопросами
type QuestionHandler struct {
	questionService *service.QuestionService
}

// NewQuestionHandler создает обработчик вопросов
func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// QuestionRequest представляет запрос на создание вопроса
type QuestionRequest struct {
	Theme           string   `json:"theme"`
	Text            string   `json:"text" binding:"required,min=3,max=500"`
	Responses       []string `json:"responses" binding:"required,len=4"`
	CorrectResponse int      `json:"correctResponse" binding:"required,min=1,max=4"`
}

// Create обрабатывает POST /questions
func (h *QuestionHandler) Create(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
		return
	}

	question := &entity.Question{
		Theme:           req.Theme,
		Text:            req.Text,
		Responses:       entity.StringArray(req.Responses),
		CorrectResponse: req.CorrectResponse,
	}
	if err := h.questionService.Create(question); err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// List обрабатывает GET /questions
func (h *QuestionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	questions, err := h.questionService.List(limit, offset)
	if err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// Get обрабатывает GET /questions/:id
func (h *QuestionHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	question, err := h.questionService.GetByID(id)
	if err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// GetRandom обрабатывает GET /questions/random/:limit
func (h *QuestionHandler) GetRandom(c *gin.Context) {
	limit, err := strconv.Atoi(c.Param("limit"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be between 1 and 100", "code": "VALIDATION_ERROR"})
		return
	}

	questions, err := h.questionService.GetRandom(limit)
	if err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// GetByTheme обрабатывает GET /questions/theme/:theme
func (h *QuestionHandler) GetByTheme(c *gin.Context) {
	theme := c.Param("theme")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	questions, err := h.questionService.GetByTheme(theme, limit)
	if err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// PatchQuestionRequest представляет частичное обновление вопроса
type PatchQuestionRequest struct {
	Theme           *string   `json:"theme"`
	Text            *string   `json:"text"`
	Responses       *[]string `json:"responses"`
	CorrectResponse *int      `json:"correctResponse"`
}

// Patch обрабатывает PATCH /questions/:id
func (h *QuestionHandler) Patch(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req PatchQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
		return
	}

	question, err := h.questionService.GetByID(id)
	if err != nil {
		h.handleQuestionError(c, err)
		return
	}

	if req.Theme != nil {
		question.Theme = *req.Theme
	}
	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.Responses != nil {
		question.Responses = entity.StringArray(*req.Responses)
	}
	if req.CorrectResponse != nil {
		question.CorrectResponse = *req.CorrectResponse
	}

	if err := h.questionService.Update(question); err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// Delete обрабатывает DELETE /questions/:id
func (h *QuestionHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.questionService.Delete(id); err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "question deleted"})
}

// Import обрабатывает POST /questions/import: загрузка вопросов из xlsx
func (h *QuestionHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "multipart field 'file' is required", "code": "VALIDATION_ERROR"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "cannot open uploaded file", "code": "VALIDATION_ERROR"})
		return
	}
	defer file.Close()

	imported, err := h.questionService.ImportXLSX(file)
	if err != nil {
		h.handleQuestionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": imported})
}

func (h *QuestionHandler) parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid question id", "code": "VALIDATION_ERROR"})
		return 0, false
	}
	return uint(id), true
}

func (h *QuestionHandler) handleQuestionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "question not found", "code": "NOT_FOUND"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error", "code": "INTERNAL_ERROR"})
	}
}

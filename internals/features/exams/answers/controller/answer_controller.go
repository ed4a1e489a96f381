// file: internals/features/exams/answers/controller/answer_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"examproctor_backend/internals/features/exams/answers/dto"
	"examproctor_backend/internals/features/exams/answers/service"
	sessmodel "examproctor_backend/internals/features/sessions/sessions/model"
	helper "examproctor_backend/internals/helpers"
)

type AnswerController struct {
	DB        *gorm.DB
	Answers   *service.AnswerStoreService
	Validator *validator.Validate
}

func NewAnswerController(db *gorm.DB, answers *service.AnswerStoreService) *AnswerController {
	return &AnswerController{DB: db, Answers: answers, Validator: validator.New()}
}

// PUT /answers; upsert, so autosave can fire the same call repeatedly
func (ctl *AnswerController) Save(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	var req dto.SaveAnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	var session sessmodel.ExamSessionModel
	if err := ctl.DB.WithContext(c.UserContext()).
		First(&session, "exam_session_id = ?", req.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.Error(c, http.StatusNotFound, "Session not found")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to load session")
	}
	if session.ExamSessionUserID != userID {
		return helper.Error(c, http.StatusForbidden, "Session belongs to another user")
	}

	answer, err := ctl.Answers.SaveAnswer(c.UserContext(), service.SaveAnswerInput{
		SessionID:      req.SessionID,
		QuestionID:     req.QuestionID,
		SelectedOption: req.SelectedOption,
		AnswerText:     req.AnswerText,
	})
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.Success(c, "Answer saved", answer)
}

// file: internals/features/exams/questions/controller/question_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	exmodel "examproctor_backend/internals/features/exams/exams/model"
	"examproctor_backend/internals/features/exams/questions/dto"
	"examproctor_backend/internals/features/exams/questions/model"
	helper "examproctor_backend/internals/helpers"
)

type QuestionController struct {
	DB        *gorm.DB
	Validator *validator.Validate
}

func NewQuestionController(db *gorm.DB) *QuestionController {
	return &QuestionController{DB: db, Validator: validator.New()}
}

// POST /questions; admin, only while the exam is still DRAFT
func (ctl *QuestionController) Create(c *fiber.Ctx) error {
	adminID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	var req dto.CreateQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	if req.QuestionType == model.ExamQuestionTypeMCQ {
		if len(req.Options) == 0 {
			return helper.Error(c, http.StatusBadRequest, "MCQ questions require options")
		}
		if req.CorrectOption == nil {
			return helper.Error(c, http.StatusBadRequest, "MCQ questions require a correct_option")
		}
	}

	var exam exmodel.ExamModel
	if err := ctl.DB.WithContext(c.UserContext()).First(&exam, "exam_id = ?", req.ExamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.Error(c, http.StatusNotFound, "Exam not found")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to load exam")
	}
	if exam.ExamCreatedBy != adminID {
		return helper.Error(c, http.StatusForbidden, "You can only add questions to your own exam")
	}
	if exam.ExamStatus != exmodel.ExamStatusDraft {
		return helper.Error(c, http.StatusConflict, "Questions can only be added while the exam is in DRAFT")
	}

	question := model.ExamQuestionModel{
		ExamQuestionExamID:        req.ExamID,
		ExamQuestionType:          req.QuestionType,
		ExamQuestionText:          req.QuestionText,
		ExamQuestionOptions:       req.Options,
		ExamQuestionCorrectOption: req.CorrectOption,
		ExamQuestionMarks:         req.Marks,
	}
	if err := ctl.DB.WithContext(c.UserContext()).Create(&question).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to create question")
	}
	return helper.SuccessWithCode(c, http.StatusCreated, "Question created", question)
}

// GET /exams/:id/questions; student paper view. The correct option never
// serializes (json:"-"), so this payload is safe to hand to candidates.
func (ctl *QuestionController) ListByExam(c *fiber.Ctx) error {
	examID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid exam id")
	}

	var questions []model.ExamQuestionModel
	if err := ctl.DB.WithContext(c.UserContext()).
		Where("exam_question_exam_id = ?", examID).
		Order("exam_question_created_at ASC").
		Find(&questions).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to list questions")
	}
	return helper.Success(c, "OK", questions)
}

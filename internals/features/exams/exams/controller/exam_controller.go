// file: internals/features/exams/exams/controller/exam_controller.go
package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"examproctor_backend/internals/features/exams/exams/dto"
	"examproctor_backend/internals/features/exams/exams/model"
	helper "examproctor_backend/internals/helpers"
)

// Exam authoring is a thin wrapper around the catalog; the interesting
// status transitions live in the scheduler.
type ExamController struct {
	DB        *gorm.DB
	Validator *validator.Validate
}

func NewExamController(db *gorm.DB) *ExamController {
	return &ExamController{DB: db, Validator: validator.New()}
}

// POST /exams
func (ctl *ExamController) Create(c *fiber.Ctx) error {
	adminID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	var req dto.CreateExamRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	startTime, err := time.Parse(time.RFC3339, req.ExamStartTime)
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "exam_start_time must be RFC3339")
	}
	endTime, err := time.Parse(time.RFC3339, req.ExamEndTime)
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "exam_end_time must be RFC3339")
	}
	if !endTime.After(startTime) {
		return helper.Error(c, http.StatusBadRequest, "exam_end_time must be after exam_start_time")
	}
	if req.ExamPassingMarks > req.ExamTotalMarks {
		return helper.Error(c, http.StatusBadRequest, "exam_passing_marks cannot exceed exam_total_marks")
	}

	exam := model.ExamModel{
		ExamTitle:                req.ExamTitle,
		ExamDescription:          req.ExamDescription,
		ExamStartTime:            startTime.UTC(),
		ExamEndTime:              endTime.UTC(),
		ExamDurationMinutes:      req.ExamDurationMinutes,
		ExamTotalMarks:           req.ExamTotalMarks,
		ExamPassingMarks:         req.ExamPassingMarks,
		ExamNegativeMarkPerWrong: req.ExamNegativeMarkPerWrong,
		ExamCreatedBy:            adminID,
	}
	if err := ctl.DB.WithContext(c.UserContext()).Create(&exam).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to create exam")
	}

	resp := dto.ToExamResponse(&exam)
	return helper.SuccessWithCode(c, http.StatusCreated, "Exam created", resp)
}

// POST /exams/:id/publish
func (ctl *ExamController) Publish(c *fiber.Ctx) error {
	examID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid exam id")
	}

	res := ctl.DB.WithContext(c.UserContext()).Model(&model.ExamModel{}).
		Where("exam_id = ? AND exam_status = ?", examID, model.ExamStatusDraft).
		Update("exam_status", model.ExamStatusPublished)
	if res.Error != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to publish exam")
	}
	if res.RowsAffected == 0 {
		return helper.Error(c, http.StatusConflict, "Exam is not in DRAFT state")
	}
	return helper.Success(c, "Exam published", fiber.Map{"exam_id": examID})
}

// GET /exams
func (ctl *ExamController) List(c *fiber.Ctx) error {
	p := helper.ParseFiber(c, "created_at", "desc", helper.DefaultOpts)

	allowedSort := map[string]string{
		"created_at": "exam_created_at",
		"start_time": "exam_start_time",
		"title":      "exam_title",
	}
	col, ok := allowedSort[p.SortBy]
	if !ok {
		col = allowedSort["created_at"]
	}
	dir := "DESC"
	if p.SortOrder == "asc" {
		dir = "ASC"
	}

	q := ctl.DB.WithContext(c.UserContext()).Model(&model.ExamModel{})
	if status := c.Query("status"); status != "" {
		q = q.Where("exam_status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to count exams")
	}

	var exams []model.ExamModel
	if err := q.Order(col + " " + dir).
		Limit(p.Limit()).Offset(p.Offset()).
		Find(&exams).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to list exams")
	}

	items := make([]dto.ExamResponse, 0, len(exams))
	for i := range exams {
		items = append(items, dto.ToExamResponse(&exams[i]))
	}
	return helper.Success(c, "OK", fiber.Map{
		"items": items,
		"meta":  helper.BuildMeta(total, p),
	})
}

// GET /exams/:id
func (ctl *ExamController) GetByID(c *fiber.Ctx) error {
	examID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid exam id")
	}

	var exam model.ExamModel
	if err := ctl.DB.WithContext(c.UserContext()).First(&exam, "exam_id = ?", examID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.Error(c, http.StatusNotFound, "Exam not found")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to load exam")
	}
	return helper.Success(c, "OK", dto.ToExamResponse(&exam))
}

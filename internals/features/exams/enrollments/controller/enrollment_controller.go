// file: internals/features/exams/enrollments/controller/enrollment_controller.go
package controller

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"examproctor_backend/internals/features/exams/enrollments/dto"
	"examproctor_backend/internals/features/exams/enrollments/model"
	exmodel "examproctor_backend/internals/features/exams/exams/model"
	aggsvc "examproctor_backend/internals/features/proctoring/aggregator/service"
	sessmodel "examproctor_backend/internals/features/sessions/sessions/model"
	helper "examproctor_backend/internals/helpers"
)

type EnrollmentController struct {
	DB         *gorm.DB
	Aggregator *aggsvc.ViolationAggregatorService
	Validator  *validator.Validate
}

func NewEnrollmentController(db *gorm.DB, aggregator *aggsvc.ViolationAggregatorService) *EnrollmentController {
	return &EnrollmentController{DB: db, Aggregator: aggregator, Validator: validator.New()}
}

// POST /enrollments; student enrolls themselves
func (ctl *EnrollmentController) Enroll(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	var req dto.EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	var exam exmodel.ExamModel
	if err := ctl.DB.WithContext(c.UserContext()).First(&exam, "exam_id = ?", req.ExamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.Error(c, http.StatusNotFound, "Exam not found")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to load exam")
	}
	if exam.ExamStatus == exmodel.ExamStatusDraft {
		return helper.Error(c, http.StatusConflict, "Exam is not open for enrollment")
	}
	if exam.ExamStatus == exmodel.ExamStatusCompleted {
		return helper.Error(c, http.StatusConflict, "Exam has already ended")
	}

	enrollment := model.ExamEnrollmentModel{
		ExamEnrollmentExamID: req.ExamID,
		ExamEnrollmentUserID: userID,
		ExamEnrollmentStatus: model.EnrollmentStatusRegistered,
	}
	if err := ctl.DB.WithContext(c.UserContext()).Create(&enrollment).Error; err != nil {
		if isDuplicateKey(err) {
			return helper.Error(c, http.StatusConflict, "Already enrolled in this exam")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to enroll")
	}

	log.Printf("[ENROLLMENT] user=%s enrolled exam=%s", userID, req.ExamID)
	return helper.SuccessWithCode(c, http.StatusCreated, "Enrolled", dto.ToEnrollmentResponse(&enrollment))
}

// POST /enrollments/bulk; admin enrolls a batch of users into their own exam.
// Existing pairs are skipped, not errors: the call is idempotent per user.
func (ctl *EnrollmentController) BulkEnroll(c *fiber.Ctx) error {
	adminID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	var req dto.BulkEnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	var exam exmodel.ExamModel
	if err := ctl.DB.WithContext(c.UserContext()).First(&exam, "exam_id = ?", req.ExamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.Error(c, http.StatusNotFound, "Exam not found")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to load exam")
	}
	if exam.ExamCreatedBy != adminID {
		return helper.Error(c, http.StatusForbidden, "You can only enroll users into your own exam")
	}

	resp := dto.BulkEnrollResponse{EnrollmentIDs: make([]uuid.UUID, 0, len(req.UserIDs))}
	err = ctl.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var existing []model.ExamEnrollmentModel
		if err := tx.
			Where("exam_enrollment_exam_id = ? AND exam_enrollment_user_id IN ?", req.ExamID, req.UserIDs).
			Find(&existing).Error; err != nil {
			return err
		}
		enrolled := make(map[uuid.UUID]struct{}, len(existing))
		for _, e := range existing {
			enrolled[e.ExamEnrollmentUserID] = struct{}{}
		}

		for _, userID := range req.UserIDs {
			if _, ok := enrolled[userID]; ok {
				resp.AlreadyExists++
				continue
			}
			enrollment := model.ExamEnrollmentModel{
				ExamEnrollmentExamID: req.ExamID,
				ExamEnrollmentUserID: userID,
				ExamEnrollmentStatus: model.EnrollmentStatusRegistered,
			}
			if err := tx.Create(&enrollment).Error; err != nil {
				if isDuplicateKey(err) {
					resp.AlreadyExists++
					continue
				}
				return err
			}
			enrolled[userID] = struct{}{} // tolerate repeated ids in the payload
			resp.Enrolled++
			resp.EnrollmentIDs = append(resp.EnrollmentIDs, enrollment.ExamEnrollmentID)
		}
		return nil
	})
	if err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to bulk enroll")
	}

	log.Printf("[ENROLLMENT] admin=%s exam=%s bulk enrolled=%d skipped=%d",
		adminID, req.ExamID, resp.Enrolled, resp.AlreadyExists)
	return helper.SuccessWithCode(c, http.StatusCreated, "Bulk enrollment processed", resp)
}

// GET /exams/:id/enrollments; proctor/admin roster with session outcome and
// risk profile per candidate. Summaries come back in one IN query.
func (ctl *EnrollmentController) ListByExam(c *fiber.Ctx) error {
	examID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid exam id")
	}
	p := helper.ParseFiber(c, "created_at", "asc", helper.AdminOpts)

	q := ctl.DB.WithContext(c.UserContext()).Model(&model.ExamEnrollmentModel{}).
		Where("exam_enrollment_exam_id = ?", examID)
	if status := c.Query("status"); status != "" {
		q = q.Where("exam_enrollment_status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to count enrollments")
	}

	var enrollments []model.ExamEnrollmentModel
	if err := q.Order("exam_enrollment_created_at ASC").
		Limit(p.Limit()).Offset(p.Offset()).
		Find(&enrollments).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to list enrollments")
	}

	enrollmentIDs := make([]uuid.UUID, 0, len(enrollments))
	for _, e := range enrollments {
		enrollmentIDs = append(enrollmentIDs, e.ExamEnrollmentID)
	}

	sessionByEnrollment := make(map[uuid.UUID]sessmodel.ExamSessionModel, len(enrollmentIDs))
	sessionIDs := make([]uuid.UUID, 0, len(enrollmentIDs))
	if len(enrollmentIDs) > 0 {
		var sessions []sessmodel.ExamSessionModel
		if err := ctl.DB.WithContext(c.UserContext()).
			Where("exam_session_enrollment_id IN ?", enrollmentIDs).
			Find(&sessions).Error; err != nil {
			return helper.Error(c, http.StatusInternalServerError, "Failed to load sessions")
		}
		for _, s := range sessions {
			sessionByEnrollment[s.ExamSessionEnrollmentID] = s
			sessionIDs = append(sessionIDs, s.ExamSessionID)
		}
	}

	summaries, err := ctl.Aggregator.BulkBySessionIDs(c.UserContext(), sessionIDs)
	if err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to load violation summaries")
	}

	items := make([]dto.EnrollmentWithRiskResponse, 0, len(enrollments))
	for i := range enrollments {
		row := dto.EnrollmentWithRiskResponse{
			EnrollmentResponse: dto.ToEnrollmentResponse(&enrollments[i]),
		}
		if session, ok := sessionByEnrollment[enrollments[i].ExamEnrollmentID]; ok {
			sid := session.ExamSessionID
			row.SessionID = &sid
			row.Score = session.ExamSessionScore
			row.IsPassed = session.ExamSessionIsPassed
			if summary, ok := summaries[sid]; ok {
				row.RiskScore = summary.ViolationSummaryRiskScore
				row.ProctorFlag = summary.ViolationSummaryProctorFlag
			}
		}
		items = append(items, row)
	}

	return helper.Success(c, "OK", fiber.Map{
		"items": items,
		"meta":  helper.BuildMeta(total, p),
	})
}

// GET /enrollments/me; student's own enrollments
func (ctl *EnrollmentController) ListMine(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	var enrollments []model.ExamEnrollmentModel
	if err := ctl.DB.WithContext(c.UserContext()).
		Where("exam_enrollment_user_id = ?", userID).
		Order("exam_enrollment_created_at DESC").
		Find(&enrollments).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to list enrollments")
	}

	items := make([]dto.EnrollmentResponse, 0, len(enrollments))
	for i := range enrollments {
		items = append(items, dto.ToEnrollmentResponse(&enrollments[i]))
	}
	return helper.Success(c, "OK", items)
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "23505")
}

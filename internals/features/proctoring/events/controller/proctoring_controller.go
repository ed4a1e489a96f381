// file: internals/features/proctoring/events/controller/proctoring_controller.go
package controller

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	enrmodel "examproctor_backend/internals/features/exams/enrollments/model"
	aggsvc "examproctor_backend/internals/features/proctoring/aggregator/service"
	"examproctor_backend/internals/features/proctoring/events/dto"
	"examproctor_backend/internals/features/proctoring/events/model"
	sessmodel "examproctor_backend/internals/features/sessions/sessions/model"
	helper "examproctor_backend/internals/helpers"
)

type ProctoringController struct {
	DB         *gorm.DB
	Aggregator *aggsvc.ViolationAggregatorService
	Validator  *validator.Validate
}

func NewProctoringController(db *gorm.DB, aggregator *aggsvc.ViolationAggregatorService) *ProctoringController {
	return &ProctoringController{DB: db, Aggregator: aggregator, Validator: validator.New()}
}

// POST /violations; classification results from AI workers. The websocket
// gateway never calls this: it goes through the aggregator service directly.
func (ctl *ProctoringController) RecordViolation(c *fiber.Ctx) error {
	var req dto.RecordViolationRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	if req.Source == "" {
		req.Source = model.SourceAI
	}

	summary, err := ctl.Aggregator.RecordViolation(c.UserContext(), aggsvc.RecordViolationInput{
		SessionID:   req.SessionID,
		EventType:   req.EventType,
		Severity:    req.Severity,
		Source:      req.Source,
		Confidence:  req.Confidence,
		SnapshotRef: req.SnapshotRef,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.SuccessWithCode(c, http.StatusCreated, "Violation recorded", summary)
}

// POST /sessions/:id/flag; proctor verdict. Flagging also records a
// MANUAL_FLAG event (so it shows in the audit log and the counters) and
// moves the enrollment to FLAGGED; unflagging restores the status the
// session state implies.
func (ctl *ProctoringController) SetManualFlag(c *fiber.Ctx) error {
	proctorID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid session id")
	}

	var req dto.ManualFlagRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	var session sessmodel.ExamSessionModel
	if err := ctl.DB.WithContext(c.UserContext()).
		First(&session, "exam_session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.Error(c, http.StatusNotFound, "Session not found")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to load session")
	}

	if req.Flagged {
		if _, err := ctl.Aggregator.RecordViolation(c.UserContext(), aggsvc.RecordViolationInput{
			SessionID: sessionID,
			EventType: model.EventManualFlag,
			Source:    model.SourceManual,
		}); err != nil {
			return helper.FromFiberError(c, err)
		}
	}

	summary, err := ctl.Aggregator.SetManualFlag(c.UserContext(), sessionID, req.Flagged, req.Note)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	newStatus := enrmodel.EnrollmentStatusFlagged
	if !req.Flagged {
		newStatus = enrmodel.EnrollmentStatusOngoing
		if session.ExamSessionSubmittedAt != nil {
			newStatus = enrmodel.EnrollmentStatusCompleted
		}
	}
	if err := ctl.DB.WithContext(c.UserContext()).Model(&enrmodel.ExamEnrollmentModel{}).
		Where("exam_enrollment_id = ?", session.ExamSessionEnrollmentID).
		Update("exam_enrollment_status", newStatus).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to update enrollment status")
	}

	log.Printf("[PROCTORING] proctor=%s session=%s flagged=%v", proctorID, sessionID, req.Flagged)
	return helper.Success(c, "Flag updated", summary)
}

// GET /sessions/:id/summary
func (ctl *ProctoringController) GetSummary(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid session id")
	}
	summary, err := ctl.Aggregator.GetSummary(c.UserContext(), sessionID)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.Success(c, "OK", summary)
}

// GET /sessions/:id/events; audit log, newest first
func (ctl *ProctoringController) ListEvents(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid session id")
	}
	p := helper.ParseFiber(c, "created_at", "desc", helper.AdminOpts)

	q := ctl.DB.WithContext(c.UserContext()).Model(&model.ProctoringEventModel{}).
		Where("proctoring_event_session_id = ?", sessionID)
	if t := c.Query("event_type"); t != "" {
		q = q.Where("proctoring_event_type = ?", t)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to count events")
	}

	var events []model.ProctoringEventModel
	if err := q.Order("proctoring_event_created_at DESC").
		Limit(p.Limit()).Offset(p.Offset()).
		Find(&events).Error; err != nil {
		return helper.Error(c, http.StatusInternalServerError, "Failed to list events")
	}

	return helper.Success(c, "OK", fiber.Map{
		"items": events,
		"meta":  helper.BuildMeta(total, p),
	})
}

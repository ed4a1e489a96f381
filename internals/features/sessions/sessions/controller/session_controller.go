// file: internals/features/sessions/sessions/controller/session_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	enrmodel "examproctor_backend/internals/features/exams/enrollments/model"
	"examproctor_backend/internals/features/sessions/sessions/dto"
	"examproctor_backend/internals/features/sessions/sessions/service"
	helper "examproctor_backend/internals/helpers"
)

// Transitions themselves live in the lifecycle service; the controller only
// authenticates, checks ownership and translates errors.
type SessionController struct {
	DB        *gorm.DB
	Lifecycle *service.SessionLifecycleService
	Validator *validator.Validate
}

func NewSessionController(db *gorm.DB, lifecycle *service.SessionLifecycleService) *SessionController {
	return &SessionController{DB: db, Lifecycle: lifecycle, Validator: validator.New()}
}

// POST /sessions/start
func (ctl *SessionController) Start(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}

	var req dto.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	var enrollment enrmodel.ExamEnrollmentModel
	if err := ctl.DB.WithContext(c.UserContext()).
		First(&enrollment, "exam_enrollment_id = ?", req.EnrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.Error(c, http.StatusNotFound, "Enrollment not found")
		}
		return helper.Error(c, http.StatusInternalServerError, "Failed to load enrollment")
	}
	if enrollment.ExamEnrollmentUserID != userID {
		return helper.Error(c, http.StatusForbidden, "Enrollment belongs to another user")
	}

	session, err := ctl.Lifecycle.Start(c.UserContext(), req.EnrollmentID)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.SuccessWithCode(c, http.StatusCreated, "Session started", session)
}

// POST /sessions/:id/heartbeat; REST fallback for clients whose websocket
// is down; the usual path is the ingest channel.
func (ctl *SessionController) Heartbeat(c *fiber.Ctx) error {
	sessionID, err := ctl.ownedSessionID(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	if err := ctl.Lifecycle.Heartbeat(c.UserContext(), sessionID); err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.Success(c, "OK", nil)
}

// POST /sessions/:id/submit
func (ctl *SessionController) Submit(c *fiber.Ctx) error {
	sessionID, err := ctl.ownedSessionID(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	session, err := ctl.Lifecycle.Submit(c.UserContext(), sessionID)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.Success(c, "Session submitted", session)
}

// GET /sessions/:id
func (ctl *SessionController) GetState(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid session id")
	}
	state, err := ctl.Lifecycle.GetState(c.UserContext(), sessionID)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.Success(c, "OK", state)
}

// POST /sessions/:id/suspend; proctor only (route-level role check)
func (ctl *SessionController) Suspend(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid session id")
	}

	var req dto.SuspendSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.Validator.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	session, err := ctl.Lifecycle.Suspend(c.UserContext(), sessionID, req.Reason)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.Success(c, "Session suspended", session)
}

// POST /sessions/:id/reinstate; proctor only
func (ctl *SessionController) Reinstate(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.Error(c, http.StatusBadRequest, "Invalid session id")
	}
	session, err := ctl.Lifecycle.Reinstate(c.UserContext(), sessionID)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	return helper.Success(c, "Session reinstated", session)
}

// ownedSessionID parses :id and verifies the session belongs to the caller.
func (ctl *SessionController) ownedSessionID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return uuid.Nil, err
	}
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}
	state, err := ctl.Lifecycle.GetState(c.UserContext(), sessionID)
	if err != nil {
		return uuid.Nil, err
	}
	if state.Session.ExamSessionUserID != userID {
		return uuid.Nil, fiber.NewError(fiber.StatusForbidden, "session belongs to another user")
	}
	return sessionID, nil
}

// file: internals/features/sessions/sessions/service/session_lifecycle_service.go
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	enrmodel "examproctor_backend/internals/features/exams/enrollments/model"
	exmodel "examproctor_backend/internals/features/exams/exams/model"
	"examproctor_backend/internals/features/sessions/sessions/model"
)

/* =========================================================
   SESSION LIFECYCLE CONTROLLER
   State machine over {NOT_STARTED, ACTIVE, SUSPENDED, SUBMITTED}
   (SUBMITTED terminal).

   Every mutating write goes through a version CAS: a stale
   write fails with a retryable 409, it never overwrites a
   concurrent change. Each transition is one transaction;
   notifications happen after commit and are best-effort.
========================================================= */

// AnswerStore: submit-time scoring reads, consumed inside the submit
// transaction so score and submitted_at commit together.
type AnswerStore interface {
	SumAwardedMarks(tx *gorm.DB, sessionID uuid.UUID) (float64, error)
	CountAnswered(tx *gorm.DB, sessionID uuid.UUID) (int64, error)
}

// LifecycleNotifier: delivery only, never part of the transactional outcome.
type LifecycleNotifier interface {
	SuspendStudent(sessionID uuid.UUID, reason string)
	ReinstateStudent(sessionID uuid.UUID, payload interface{})
	PushSessionUpdate(sessionID uuid.UUID, payload interface{})
	BroadcastProctorAlert(examID, sessionID uuid.UUID, payload interface{})
}

type SessionLifecycleService struct {
	DB       *gorm.DB
	Answers  AnswerStore
	Notifier LifecycleNotifier

	now func() time.Time
}

func NewSessionLifecycleService(db *gorm.DB, answers AnswerStore, notifier LifecycleNotifier) *SessionLifecycleService {
	return &SessionLifecycleService{
		DB:       db,
		Answers:  answers,
		Notifier: notifier,
		now:      time.Now,
	}
}

/* =========================
   Start
   ========================= */

// Start creates the one-and-only session for an enrollment. The unique
// constraint on enrollment_id is the authoritative dedup; the existence
// check above it is only a fast path. A lost race surfaces as 409.
func (s *SessionLifecycleService) Start(ctx context.Context, enrollmentID uuid.UUID) (*model.ExamSessionModel, error) {
	var enrollment enrmodel.ExamEnrollmentModel
	if err := s.DB.WithContext(ctx).
		First(&enrollment, "exam_enrollment_id = ?", enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "enrollment not found")
		}
		return nil, err
	}

	switch enrollment.ExamEnrollmentStatus {
	case enrmodel.EnrollmentStatusRegistered:
		// eligible
	case enrmodel.EnrollmentStatusOngoing, enrmodel.EnrollmentStatusCompleted:
		return nil, fiber.NewError(fiber.StatusConflict, "exam already started for this enrollment")
	default:
		return nil, fiber.NewError(fiber.StatusConflict, "enrollment is not eligible to start")
	}

	var exam exmodel.ExamModel
	if err := s.DB.WithContext(ctx).
		First(&exam, "exam_id = ?", enrollment.ExamEnrollmentExamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "exam not found")
		}
		return nil, err
	}

	now := s.now().UTC()
	if exam.ExamStatus == exmodel.ExamStatusDraft {
		return nil, fiber.NewError(fiber.StatusBadRequest, "exam is not published")
	}
	if !exam.WindowOpen(now) {
		if now.Before(exam.ExamStartTime) {
			return nil, fiber.NewError(fiber.StatusBadRequest, "exam window has not opened yet")
		}
		return nil, fiber.NewError(fiber.StatusBadRequest, "exam window has closed")
	}

	// Fast path only; the unique index is what actually prevents duplicates.
	var existing int64
	if err := s.DB.WithContext(ctx).Model(&model.ExamSessionModel{}).
		Where("exam_session_enrollment_id = ?", enrollmentID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fiber.NewError(fiber.StatusConflict, "exam already started for this enrollment")
	}

	session := model.ExamSessionModel{
		ExamSessionEnrollmentID:    enrollmentID,
		ExamSessionExamID:          enrollment.ExamEnrollmentExamID,
		ExamSessionUserID:          enrollment.ExamEnrollmentUserID,
		ExamSessionStartedAt:       now,
		ExamSessionLastHeartbeatAt: now,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		return tx.Model(&enrmodel.ExamEnrollmentModel{}).
			Where("exam_enrollment_id = ?", enrollmentID).
			Update("exam_enrollment_status", enrmodel.EnrollmentStatusOngoing).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			// two concurrent starts: exactly one session row exists, the
			// loser gets a normal "already started" outcome
			return nil, fiber.NewError(fiber.StatusConflict, "exam already started for this enrollment")
		}
		return nil, err
	}

	log.Printf("[SESSION] started session=%s enrollment=%s exam=%s", session.ExamSessionID, enrollmentID, exam.ExamID)
	return &session, nil
}

/* =========================
   Suspend / Reinstate
   ========================= */

// Suspend is valid from ACTIVE; suspending an already-suspended session is a
// no-op, not an error.
func (s *SessionLifecycleService) Suspend(ctx context.Context, sessionID uuid.UUID, reason string) (*model.ExamSessionModel, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ExamSessionSubmittedAt != nil {
		return nil, fiber.NewError(fiber.StatusConflict, "session already submitted")
	}
	if session.ExamSessionIsSuspended {
		return session, nil
	}

	now := s.now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.casUpdate(tx, session, map[string]interface{}{
			"exam_session_is_suspended": true,
			"exam_session_suspended_at": now,
		})
	})
	if err != nil {
		return nil, err
	}
	session.ExamSessionIsSuspended = true
	session.ExamSessionSuspendedAt = &now

	if s.Notifier != nil {
		s.Notifier.SuspendStudent(sessionID, reason)
		s.Notifier.BroadcastProctorAlert(session.ExamSessionExamID, sessionID, map[string]interface{}{
			"action": "SUSPENDED",
			"reason": reason,
		})
	}
	log.Printf("[SESSION] suspended session=%s reason=%q", sessionID, reason)
	return session, nil
}

// Reinstate is valid only from SUSPENDED. The student is compensated for
// exactly the suspended duration: new deadline = previous effective deadline
// + elapsed (clamped to >= 0). Repeated cycles never double-count because
// each cycle extends from the deadline the previous cycle produced.
func (s *SessionLifecycleService) Reinstate(ctx context.Context, sessionID uuid.UUID) (*model.ExamSessionModel, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ExamSessionSubmittedAt != nil {
		return nil, fiber.NewError(fiber.StatusConflict, "session already submitted")
	}
	if !session.ExamSessionIsSuspended || session.ExamSessionSuspendedAt == nil {
		return nil, fiber.NewError(fiber.StatusConflict, "session is not suspended")
	}

	var exam exmodel.ExamModel
	if err := s.DB.WithContext(ctx).First(&exam, "exam_id = ?", session.ExamSessionExamID).Error; err != nil {
		return nil, err
	}

	now := s.now().UTC()
	elapsed := now.Sub(*session.ExamSessionSuspendedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	newDeadline := session.EffectiveDeadline(exam.ExamDurationMinutes).Add(elapsed)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.casUpdate(tx, session, map[string]interface{}{
			"exam_session_is_suspended":    false,
			"exam_session_suspended_at":    nil,
			"exam_session_extended_end_at": newDeadline,
		})
	})
	if err != nil {
		return nil, err
	}
	session.ExamSessionIsSuspended = false
	session.ExamSessionSuspendedAt = nil
	session.ExamSessionExtendedEndAt = &newDeadline

	if s.Notifier != nil {
		s.Notifier.ReinstateStudent(sessionID, map[string]interface{}{
			"extended_end_at":      newDeadline,
			"compensated_duration": elapsed.String(),
		})
		s.Notifier.BroadcastProctorAlert(session.ExamSessionExamID, sessionID, map[string]interface{}{
			"action": "REINSTATED",
		})
	}
	log.Printf("[SESSION] reinstated session=%s compensated=%s new_deadline=%s", sessionID, elapsed, newDeadline)
	return session, nil
}

/* =========================
   Submit
   ========================= */

// Submit finishes the session from ACTIVE or SUSPENDED (voluntary or forced).
// Idempotent: a second call sees submitted_at != NULL and is a no-op; the
// session is never double-scored.
func (s *SessionLifecycleService) Submit(ctx context.Context, sessionID uuid.UUID) (*model.ExamSessionModel, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ExamSessionSubmittedAt != nil {
		return session, nil
	}

	var exam exmodel.ExamModel
	if err := s.DB.WithContext(ctx).First(&exam, "exam_id = ?", session.ExamSessionExamID).Error; err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var score float64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		score, err = s.Answers.SumAwardedMarks(tx, sessionID)
		if err != nil {
			return err
		}
		isPassed := score >= exam.ExamPassingMarks

		if err := s.casUpdate(tx, session, map[string]interface{}{
			"exam_session_submitted_at": now,
			"exam_session_score":        score,
			"exam_session_is_passed":    isPassed,
			"exam_session_is_suspended": false,
			"exam_session_suspended_at": nil,
		}); err != nil {
			return err
		}
		session.ExamSessionSubmittedAt = &now
		session.ExamSessionScore = &score
		session.ExamSessionIsPassed = &isPassed
		session.ExamSessionIsSuspended = false
		session.ExamSessionSuspendedAt = nil

		// FLAGGED enrollments keep their flag through submission
		return tx.Model(&enrmodel.ExamEnrollmentModel{}).
			Where("exam_enrollment_id = ? AND exam_enrollment_status <> ?", session.ExamSessionEnrollmentID, enrmodel.EnrollmentStatusFlagged).
			Update("exam_enrollment_status", enrmodel.EnrollmentStatusCompleted).Error
	})
	if err != nil {
		return nil, err
	}

	if s.Notifier != nil {
		s.Notifier.PushSessionUpdate(sessionID, map[string]interface{}{
			"status": model.SessionStatusSubmitted,
			"score":  score,
		})
	}
	log.Printf("[SESSION] submitted session=%s score=%.2f", sessionID, score)
	return session, nil
}

/* =========================
   Heartbeat
   ========================= */

// Heartbeat refreshes last_heartbeat_at. The CAS makes a heartbeat racing a
// suspend lose cleanly; it must never resurrect eligibility.
func (s *SessionLifecycleService) Heartbeat(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.ExamSessionSubmittedAt != nil {
		return fiber.NewError(fiber.StatusConflict, "session already submitted")
	}
	if session.ExamSessionIsSuspended {
		return fiber.NewError(fiber.StatusConflict, "session is suspended")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.casUpdate(tx, session, map[string]interface{}{
			"exam_session_last_heartbeat_at": s.now().UTC(),
		})
	})
}

/* =========================
   Eligibility / reads
   ========================= */

type RejectReason string

const (
	RejectNone      RejectReason = ""
	RejectNotFound  RejectReason = "not_found"
	RejectSubmitted RejectReason = "submitted"
	RejectSuspended RejectReason = "suspended"
)

// Eligibility is the typed result consumed uniformly by all gateway payload
// handlers. Always re-derived from the current row, never cached.
type Eligibility struct {
	Eligible bool
	Reason   RejectReason
	Session  *model.ExamSessionModel
}

func (s *SessionLifecycleService) CheckEligibility(ctx context.Context, sessionID uuid.UUID) (Eligibility, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) && fe.Code == fiber.StatusNotFound {
			return Eligibility{Eligible: false, Reason: RejectNotFound}, nil
		}
		return Eligibility{}, err
	}
	switch {
	case session.ExamSessionSubmittedAt != nil:
		return Eligibility{Eligible: false, Reason: RejectSubmitted, Session: session}, nil
	case session.ExamSessionIsSuspended:
		return Eligibility{Eligible: false, Reason: RejectSuspended, Session: session}, nil
	default:
		return Eligibility{Eligible: true, Session: session}, nil
	}
}

// SessionState: session row + derived effective deadline for the UI timer.
type SessionState struct {
	Session           *model.ExamSessionModel `json:"session"`
	EffectiveDeadline time.Time               `json:"effective_deadline"`
	Status            model.SessionStatus     `json:"status"`
}

func (s *SessionLifecycleService) GetState(ctx context.Context, sessionID uuid.UUID) (*SessionState, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var exam exmodel.ExamModel
	if err := s.DB.WithContext(ctx).First(&exam, "exam_id = ?", session.ExamSessionExamID).Error; err != nil {
		return nil, err
	}
	return &SessionState{
		Session:           session,
		EffectiveDeadline: session.EffectiveDeadline(exam.ExamDurationMinutes),
		Status:            session.Status(),
	}, nil
}

/* =========================
   Internals
   ========================= */

func (s *SessionLifecycleService) load(ctx context.Context, sessionID uuid.UUID) (*model.ExamSessionModel, error) {
	var session model.ExamSessionModel
	if err := s.DB.WithContext(ctx).First(&session, "exam_session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return nil, err
	}
	return &session, nil
}

// casUpdate: conditional write on the version column. Zero rows affected
// means a concurrent writer won; the caller surfaces a retryable conflict.
func (s *SessionLifecycleService) casUpdate(tx *gorm.DB, session *model.ExamSessionModel, updates map[string]interface{}) error {
	updates["exam_session_version"] = session.ExamSessionVersion + 1
	res := tx.Model(&model.ExamSessionModel{}).
		Where("exam_session_id = ? AND exam_session_version = ?", session.ExamSessionID, session.ExamSessionVersion).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusConflict, "session was modified concurrently, retry")
	}
	session.ExamSessionVersion++
	return nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "23505")
}

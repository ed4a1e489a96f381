// file: internals/features/sessions/sessions/model/exam_session_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* =========================================================
   EXAM SESSION
   1 row = 1 enrollment attempt (unique on enrollment_id)
   - submitted_at != NULL is terminal, no further mutation
   - is_suspended blocks answers + proctoring ingest
   - extended_end_at: compensated deadline after reinstatement
   - version: optimistic concurrency token, bumped on every write
========================================================= */

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusSuspended SessionStatus = "SUSPENDED"
	SessionStatusSubmitted SessionStatus = "SUBMITTED"
)

type ExamSessionModel struct {
	ExamSessionID uuid.UUID `gorm:"type:uuid;primaryKey;column:exam_session_id" json:"exam_session_id"`

	ExamSessionEnrollmentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_session_enrollment;column:exam_session_enrollment_id" json:"exam_session_enrollment_id"`
	ExamSessionExamID       uuid.UUID `gorm:"type:uuid;not null;index;column:exam_session_exam_id" json:"exam_session_exam_id"`
	ExamSessionUserID       uuid.UUID `gorm:"type:uuid;not null;index;column:exam_session_user_id" json:"exam_session_user_id"`

	ExamSessionStartedAt       time.Time  `gorm:"not null;column:exam_session_started_at" json:"exam_session_started_at"`
	ExamSessionLastHeartbeatAt time.Time  `gorm:"not null;column:exam_session_last_heartbeat_at" json:"exam_session_last_heartbeat_at"`
	ExamSessionSubmittedAt     *time.Time `gorm:"column:exam_session_submitted_at" json:"exam_session_submitted_at,omitempty"`
	ExamSessionSuspendedAt     *time.Time `gorm:"column:exam_session_suspended_at" json:"exam_session_suspended_at,omitempty"`

	// Compensated deadline after reinstatement; >= started_at + duration when set
	ExamSessionExtendedEndAt *time.Time `gorm:"column:exam_session_extended_end_at" json:"exam_session_extended_end_at,omitempty"`

	ExamSessionScore       *float64 `gorm:"type:numeric(7,2);column:exam_session_score" json:"exam_session_score,omitempty"`
	ExamSessionIsPassed    *bool    `gorm:"column:exam_session_is_passed" json:"exam_session_is_passed,omitempty"`
	ExamSessionIsSuspended bool     `gorm:"not null;default:false;column:exam_session_is_suspended" json:"exam_session_is_suspended"`

	ExamSessionVersion int64 `gorm:"not null;default:1;column:exam_session_version" json:"exam_session_version"`

	ExamSessionCreatedAt time.Time `gorm:"not null;autoCreateTime;column:exam_session_created_at" json:"exam_session_created_at"`
	ExamSessionUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:exam_session_updated_at" json:"exam_session_updated_at"`
}

func (m *ExamSessionModel) BeforeCreate(tx *gorm.DB) error {
	if m.ExamSessionID == uuid.Nil {
		m.ExamSessionID = uuid.New()
	}
	if m.ExamSessionVersion == 0 {
		m.ExamSessionVersion = 1
	}
	return nil
}

func (m *ExamSessionModel) Status() SessionStatus {
	switch {
	case m.ExamSessionSubmittedAt != nil:
		return SessionStatusSubmitted
	case m.ExamSessionIsSuspended:
		return SessionStatusSuspended
	default:
		return SessionStatusActive
	}
}

// EffectiveDeadline: extended_end_at when set, else started_at + duration.
func (m *ExamSessionModel) EffectiveDeadline(durationMinutes int) time.Time {
	if m.ExamSessionExtendedEndAt != nil {
		return *m.ExamSessionExtendedEndAt
	}
	return m.ExamSessionStartedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

func (ExamSessionModel) TableName() string {
	return "exam_sessions"
}

// file: internals/features/exams/enrollments/model/enrollment_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* =========================================================
   EXAM ENROLLMENT
   1 row = 1 user × 1 exam (unique pair)
   Status is driven by session lifecycle events:
   started → ONGOING, submitted → COMPLETED, proctor → FLAGGED
========================================================= */

type ExamEnrollmentStatus string

const (
	EnrollmentStatusRegistered ExamEnrollmentStatus = "REGISTERED"
	EnrollmentStatusOngoing    ExamEnrollmentStatus = "ONGOING"
	EnrollmentStatusCompleted  ExamEnrollmentStatus = "COMPLETED"
	EnrollmentStatusFlagged    ExamEnrollmentStatus = "FLAGGED"
	EnrollmentStatusAbsent     ExamEnrollmentStatus = "ABSENT"
)

type ExamEnrollmentModel struct {
	ExamEnrollmentID uuid.UUID `gorm:"type:uuid;primaryKey;column:exam_enrollment_id" json:"exam_enrollment_id"`

	ExamEnrollmentExamID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_enrollment_exam_user;column:exam_enrollment_exam_id" json:"exam_enrollment_exam_id"`
	ExamEnrollmentUserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_enrollment_exam_user;column:exam_enrollment_user_id" json:"exam_enrollment_user_id"`

	ExamEnrollmentStatus ExamEnrollmentStatus `gorm:"type:varchar(20);not null;default:'REGISTERED';column:exam_enrollment_status" json:"exam_enrollment_status"`

	ExamEnrollmentCreatedAt time.Time `gorm:"not null;autoCreateTime;column:exam_enrollment_created_at" json:"exam_enrollment_created_at"`
	ExamEnrollmentUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:exam_enrollment_updated_at" json:"exam_enrollment_updated_at"`
}

func (m *ExamEnrollmentModel) BeforeCreate(tx *gorm.DB) error {
	if m.ExamEnrollmentID == uuid.Nil {
		m.ExamEnrollmentID = uuid.New()
	}
	return nil
}

func (ExamEnrollmentModel) TableName() string {
	return "exam_enrollments"
}

// file: internals/features/exams/exams/model/exam_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* =========================================================
   EXAM (catalog)
   - window (start/end), duration, marks, negative marking
   - status moved by the periodic scheduler:
     DRAFT → PUBLISHED → ONGOING → COMPLETED
========================================================= */

type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusOngoing   ExamStatus = "ONGOING"
	ExamStatusCompleted ExamStatus = "COMPLETED"
)

type ExamModel struct {
	ExamID uuid.UUID `gorm:"type:uuid;primaryKey;column:exam_id" json:"exam_id"`

	ExamTitle       string  `gorm:"type:varchar(150);not null;column:exam_title" json:"exam_title"`
	ExamDescription *string `gorm:"type:text;column:exam_description" json:"exam_description,omitempty"`

	ExamStatus ExamStatus `gorm:"type:varchar(20);not null;default:'DRAFT';column:exam_status" json:"exam_status"`

	// Attempt window + per-student duration
	ExamStartTime       time.Time `gorm:"not null;column:exam_start_time" json:"exam_start_time"`
	ExamEndTime         time.Time `gorm:"not null;column:exam_end_time" json:"exam_end_time"`
	ExamDurationMinutes int       `gorm:"not null;column:exam_duration_minutes" json:"exam_duration_minutes"`

	ExamTotalMarks   float64 `gorm:"type:numeric(7,2);not null;column:exam_total_marks" json:"exam_total_marks"`
	ExamPassingMarks float64 `gorm:"type:numeric(7,2);not null;column:exam_passing_marks" json:"exam_passing_marks"`

	// Deducted per wrong MCQ selection (0 = no negative marking)
	ExamNegativeMarkPerWrong float64 `gorm:"type:numeric(5,2);not null;default:0;column:exam_negative_mark_per_wrong" json:"exam_negative_mark_per_wrong"`

	ExamCreatedBy uuid.UUID `gorm:"type:uuid;not null;column:exam_created_by" json:"exam_created_by"`

	ExamCreatedAt time.Time `gorm:"not null;autoCreateTime;column:exam_created_at" json:"exam_created_at"`
	ExamUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:exam_updated_at" json:"exam_updated_at"`
}

func (m *ExamModel) BeforeCreate(tx *gorm.DB) error {
	if m.ExamID == uuid.Nil {
		m.ExamID = uuid.New()
	}
	return nil
}

// WindowOpen: the attempt window is open at t.
func (m *ExamModel) WindowOpen(t time.Time) bool {
	return !t.Before(m.ExamStartTime) && t.Before(m.ExamEndTime)
}

func (ExamModel) TableName() string {
	return "exams"
}

// file: internals/features/exams/enrollments/dto/enrollment_dto.go
package dto

import (
	"time"

	"github.com/google/uuid"

	"examproctor_backend/internals/features/exams/enrollments/model"
)

type EnrollRequest struct {
	ExamID uuid.UUID `json:"exam_id" validate:"required"`
}

type BulkEnrollRequest struct {
	ExamID  uuid.UUID   `json:"exam_id" validate:"required"`
	UserIDs []uuid.UUID `json:"user_ids" validate:"required,min=1,max=500,dive,required"`
}

type BulkEnrollResponse struct {
	Enrolled      int         `json:"enrolled"`
	AlreadyExists int         `json:"already_exists"`
	EnrollmentIDs []uuid.UUID `json:"enrollment_ids"`
}

type EnrollmentResponse struct {
	ExamEnrollmentID     uuid.UUID                  `json:"exam_enrollment_id"`
	ExamEnrollmentExamID uuid.UUID                  `json:"exam_enrollment_exam_id"`
	ExamEnrollmentUserID uuid.UUID                  `json:"exam_enrollment_user_id"`
	ExamEnrollmentStatus model.ExamEnrollmentStatus `json:"exam_enrollment_status"`
	CreatedAt            time.Time                  `json:"created_at"`
}

func ToEnrollmentResponse(m *model.ExamEnrollmentModel) EnrollmentResponse {
	return EnrollmentResponse{
		ExamEnrollmentID:     m.ExamEnrollmentID,
		ExamEnrollmentExamID: m.ExamEnrollmentExamID,
		ExamEnrollmentUserID: m.ExamEnrollmentUserID,
		ExamEnrollmentStatus: m.ExamEnrollmentStatus,
		CreatedAt:            m.ExamEnrollmentCreatedAt,
	}
}

// EnrollmentWithRiskResponse: enrollment + session outcome + violation
// profile in one row, for the proctor/admin list view.
type EnrollmentWithRiskResponse struct {
	EnrollmentResponse
	SessionID   *uuid.UUID `json:"session_id,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	IsPassed    *bool      `json:"is_passed,omitempty"`
	RiskScore   float64    `json:"risk_score"`
	ProctorFlag bool       `json:"proctor_flag"`
}

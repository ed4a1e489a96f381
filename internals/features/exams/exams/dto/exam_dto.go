// file: internals/features/exams/exams/dto/exam_dto.go
package dto

import (
	"time"

	"github.com/google/uuid"

	"examproctor_backend/internals/features/exams/exams/model"
)

type CreateExamRequest struct {
	ExamTitle                string  `json:"exam_title" validate:"required,min=3,max=150"`
	ExamDescription          *string `json:"exam_description,omitempty"`
	ExamStartTime            string  `json:"exam_start_time" validate:"required"`
	ExamEndTime              string  `json:"exam_end_time" validate:"required"`
	ExamDurationMinutes      int     `json:"exam_duration_minutes" validate:"required,min=1,max=600"`
	ExamTotalMarks           float64 `json:"exam_total_marks" validate:"required,gt=0"`
	ExamPassingMarks         float64 `json:"exam_passing_marks" validate:"required,gte=0"`
	ExamNegativeMarkPerWrong float64 `json:"exam_negative_mark_per_wrong" validate:"gte=0"`
}

type ExamResponse struct {
	ExamID                   uuid.UUID        `json:"exam_id"`
	ExamTitle                string           `json:"exam_title"`
	ExamDescription          *string          `json:"exam_description,omitempty"`
	ExamStatus               model.ExamStatus `json:"exam_status"`
	ExamStartTime            time.Time        `json:"exam_start_time"`
	ExamEndTime              time.Time        `json:"exam_end_time"`
	ExamDurationMinutes      int              `json:"exam_duration_minutes"`
	ExamTotalMarks           float64          `json:"exam_total_marks"`
	ExamPassingMarks         float64          `json:"exam_passing_marks"`
	ExamNegativeMarkPerWrong float64          `json:"exam_negative_mark_per_wrong"`
	ExamCreatedAt            time.Time        `json:"exam_created_at"`
}

func ToExamResponse(m *model.ExamModel) ExamResponse {
	return ExamResponse{
		ExamID:                   m.ExamID,
		ExamTitle:                m.ExamTitle,
		ExamDescription:          m.ExamDescription,
		ExamStatus:               m.ExamStatus,
		ExamStartTime:            m.ExamStartTime,
		ExamEndTime:              m.ExamEndTime,
		ExamDurationMinutes:      m.ExamDurationMinutes,
		ExamTotalMarks:           m.ExamTotalMarks,
		ExamPassingMarks:         m.ExamPassingMarks,
		ExamNegativeMarkPerWrong: m.ExamNegativeMarkPerWrong,
		ExamCreatedAt:            m.ExamCreatedAt,
	}
}

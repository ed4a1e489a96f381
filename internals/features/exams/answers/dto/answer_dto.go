// file: internals/features/exams/answers/dto/answer_dto.go
package dto

import (
	"github.com/google/uuid"
)

type SaveAnswerRequest struct {
	SessionID      uuid.UUID `json:"session_id" validate:"required"`
	QuestionID     uuid.UUID `json:"question_id" validate:"required"`
	SelectedOption *string   `json:"selected_option,omitempty" validate:"omitempty,max=255"`
	AnswerText     *string   `json:"answer_text,omitempty" validate:"omitempty,max=10000"`
}

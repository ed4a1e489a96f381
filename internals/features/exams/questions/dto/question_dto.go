// file: internals/features/exams/questions/dto/question_dto.go
package dto

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"examproctor_backend/internals/features/exams/questions/model"
)

type CreateQuestionRequest struct {
	ExamID        uuid.UUID              `json:"exam_id" validate:"required"`
	QuestionType  model.ExamQuestionType `json:"question_type" validate:"required,oneof=MCQ SHORT_ANSWER"`
	QuestionText  string                 `json:"question_text" validate:"required,min=3"`
	Options       datatypes.JSON         `json:"options,omitempty"`
	CorrectOption *string                `json:"correct_option,omitempty" validate:"omitempty,max=5"`
	Marks         float64                `json:"marks" validate:"required,gt=0"`
}

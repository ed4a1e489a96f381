// file: internals/features/exams/questions/model/question_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExamQuestionType string

const (
	ExamQuestionTypeMCQ         ExamQuestionType = "MCQ"
	ExamQuestionTypeShortAnswer ExamQuestionType = "SHORT_ANSWER"
)

// Question authoring is out of this core's scope; the model exists because
// answer auto-grading at submit time needs marks + correct option.
type ExamQuestionModel struct {
	ExamQuestionID     uuid.UUID `gorm:"type:uuid;primaryKey;column:exam_question_id" json:"exam_question_id"`
	ExamQuestionExamID uuid.UUID `gorm:"type:uuid;not null;index;column:exam_question_exam_id" json:"exam_question_exam_id"`

	ExamQuestionType ExamQuestionType `gorm:"type:varchar(20);not null;column:exam_question_type" json:"exam_question_type"`
	ExamQuestionText string           `gorm:"type:text;not null;column:exam_question_text" json:"exam_question_text"`

	// MCQ options as JSON: {"A":"...","B":"..."}; null for short answers
	ExamQuestionOptions datatypes.JSON `gorm:"column:exam_question_options" json:"exam_question_options,omitempty"`

	// Correct option key for MCQ ("A".."D"); null for short answers
	ExamQuestionCorrectOption *string `gorm:"type:varchar(5);column:exam_question_correct_option" json:"-"`

	ExamQuestionMarks float64 `gorm:"type:numeric(5,2);not null;column:exam_question_marks" json:"exam_question_marks"`

	ExamQuestionCreatedAt time.Time `gorm:"not null;autoCreateTime;column:exam_question_created_at" json:"exam_question_created_at"`
	ExamQuestionUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:exam_question_updated_at" json:"exam_question_updated_at"`
}

func (m *ExamQuestionModel) BeforeCreate(tx *gorm.DB) error {
	if m.ExamQuestionID == uuid.Nil {
		m.ExamQuestionID = uuid.New()
	}
	return nil
}

func (ExamQuestionModel) TableName() string {
	return "exam_questions"
}

// file: internals/features/exams/answers/model/answer_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// One answer per (session, question). MCQ answers are graded on write,
// short answers stay ungraded (marks_awarded NULL) until a manual pass.
type SessionAnswerModel struct {
	SessionAnswerID uuid.UUID `gorm:"type:uuid;primaryKey;column:session_answer_id" json:"session_answer_id"`

	SessionAnswerSessionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_answer_session_question;column:session_answer_session_id" json:"session_answer_session_id"`
	SessionAnswerQuestionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_answer_session_question;column:session_answer_question_id" json:"session_answer_question_id"`

	SessionAnswerSelectedOption *string `gorm:"type:varchar(5);column:session_answer_selected_option" json:"session_answer_selected_option,omitempty"`
	SessionAnswerText           *string `gorm:"type:text;column:session_answer_text" json:"session_answer_text,omitempty"`

	SessionAnswerIsCorrect    *bool    `gorm:"column:session_answer_is_correct" json:"session_answer_is_correct,omitempty"`
	SessionAnswerMarksAwarded *float64 `gorm:"type:numeric(6,2);column:session_answer_marks_awarded" json:"session_answer_marks_awarded,omitempty"`

	SessionAnswerCreatedAt time.Time `gorm:"not null;autoCreateTime;column:session_answer_created_at" json:"session_answer_created_at"`
	SessionAnswerUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:session_answer_updated_at" json:"session_answer_updated_at"`
}

func (m *SessionAnswerModel) BeforeCreate(tx *gorm.DB) error {
	if m.SessionAnswerID == uuid.Nil {
		m.SessionAnswerID = uuid.New()
	}
	return nil
}

func (SessionAnswerModel) TableName() string {
	return "session_answers"
}

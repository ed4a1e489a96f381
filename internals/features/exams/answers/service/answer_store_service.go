// file: internals/features/exams/answers/service/answer_store_service.go
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	ansmodel "examproctor_backend/internals/features/exams/answers/model"
	exmodel "examproctor_backend/internals/features/exams/exams/model"
	qmodel "examproctor_backend/internals/features/exams/questions/model"
	sessmodel "examproctor_backend/internals/features/sessions/sessions/model"
)

/* =========================================================
   ANSWER STORE
   MCQ answers are graded on write (marks, or minus the exam's
   negative mark for a wrong selection). Short answers stay
   ungraded until a manual pass, so SumAwardedMarks naturally
   excludes them (NULL marks_awarded).
========================================================= */

type AnswerStoreService struct {
	DB *gorm.DB
}

func NewAnswerStoreService(db *gorm.DB) *AnswerStoreService {
	return &AnswerStoreService{DB: db}
}

type SaveAnswerInput struct {
	SessionID      uuid.UUID
	QuestionID     uuid.UUID
	SelectedOption *string
	AnswerText     *string
}

// SaveAnswer upserts the (session, question) answer. Rejected when the
// session is submitted or suspended; answer acceptance follows the same
// eligibility rules as proctoring ingest.
func (s *AnswerStoreService) SaveAnswer(ctx context.Context, in SaveAnswerInput) (*ansmodel.SessionAnswerModel, error) {
	var session sessmodel.ExamSessionModel
	if err := s.DB.WithContext(ctx).First(&session, "exam_session_id = ?", in.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return nil, err
	}
	if session.ExamSessionSubmittedAt != nil {
		return nil, fiber.NewError(fiber.StatusConflict, "session already submitted")
	}
	if session.ExamSessionIsSuspended {
		return nil, fiber.NewError(fiber.StatusConflict, "session is suspended")
	}

	var question qmodel.ExamQuestionModel
	if err := s.DB.WithContext(ctx).First(&question, "exam_question_id = ?", in.QuestionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "question not found")
		}
		return nil, err
	}
	if question.ExamQuestionExamID != session.ExamSessionExamID {
		return nil, fiber.NewError(fiber.StatusBadRequest, "question does not belong to this exam")
	}

	answer := ansmodel.SessionAnswerModel{
		SessionAnswerSessionID:      in.SessionID,
		SessionAnswerQuestionID:     in.QuestionID,
		SessionAnswerSelectedOption: in.SelectedOption,
		SessionAnswerText:           in.AnswerText,
	}

	if question.ExamQuestionType == qmodel.ExamQuestionTypeMCQ {
		if err := s.gradeMCQ(ctx, &answer, &question, session.ExamSessionExamID); err != nil {
			return nil, err
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ansmodel.SessionAnswerModel
		err := tx.First(&existing, "session_answer_session_id = ? AND session_answer_question_id = ?", in.SessionID, in.QuestionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&answer).Error
		}
		if err != nil {
			return err
		}
		answer.SessionAnswerID = existing.SessionAnswerID
		return tx.Model(&ansmodel.SessionAnswerModel{}).
			Where("session_answer_id = ?", existing.SessionAnswerID).
			Updates(map[string]interface{}{
				"session_answer_selected_option": answer.SessionAnswerSelectedOption,
				"session_answer_text":            answer.SessionAnswerText,
				"session_answer_is_correct":      answer.SessionAnswerIsCorrect,
				"session_answer_marks_awarded":   answer.SessionAnswerMarksAwarded,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

func (s *AnswerStoreService) gradeMCQ(ctx context.Context, answer *ansmodel.SessionAnswerModel, question *qmodel.ExamQuestionModel, examID uuid.UUID) error {
	if answer.SessionAnswerSelectedOption == nil || strings.TrimSpace(*answer.SessionAnswerSelectedOption) == "" {
		return nil // unanswered: neither marks nor penalty
	}
	if question.ExamQuestionCorrectOption == nil {
		return nil
	}

	var exam exmodel.ExamModel
	if err := s.DB.WithContext(ctx).First(&exam, "exam_id = ?", examID).Error; err != nil {
		return err
	}

	correct := strings.EqualFold(strings.TrimSpace(*answer.SessionAnswerSelectedOption), strings.TrimSpace(*question.ExamQuestionCorrectOption))
	answer.SessionAnswerIsCorrect = &correct

	marks := question.ExamQuestionMarks
	if !correct {
		marks = -exam.ExamNegativeMarkPerWrong
	}
	answer.SessionAnswerMarksAwarded = &marks
	return nil
}

// SumAwardedMarks: total awarded marks across graded answers. Ungraded short
// answers (NULL) contribute nothing. Runs on the caller's transaction so it
// shares the submit boundary.
func (s *AnswerStoreService) SumAwardedMarks(tx *gorm.DB, sessionID uuid.UUID) (float64, error) {
	var sum float64
	err := tx.Model(&ansmodel.SessionAnswerModel{}).
		Where("session_answer_session_id = ?", sessionID).
		Select("COALESCE(SUM(session_answer_marks_awarded), 0)").
		Scan(&sum).Error
	return sum, err
}

func (s *AnswerStoreService) CountAnswered(tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := tx.Model(&ansmodel.SessionAnswerModel{}).
		Where("session_answer_session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

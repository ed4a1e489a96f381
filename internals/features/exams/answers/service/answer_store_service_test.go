// file: internals/features/exams/answers/service/answer_store_service_test.go
package service

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ansmodel "examproctor_backend/internals/features/exams/answers/model"
	exmodel "examproctor_backend/internals/features/exams/exams/model"
	qmodel "examproctor_backend/internals/features/exams/questions/model"
	sessmodel "examproctor_backend/internals/features/sessions/sessions/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&exmodel.ExamModel{},
		&qmodel.ExamQuestionModel{},
		&sessmodel.ExamSessionModel{},
		&ansmodel.SessionAnswerModel{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fixture struct {
	exam    exmodel.ExamModel
	session sessmodel.ExamSessionModel
}

func seedFixture(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	now := time.Now().UTC()
	exam := exmodel.ExamModel{
		ExamTitle:                "Data Structures Quiz",
		ExamStatus:               exmodel.ExamStatusOngoing,
		ExamStartTime:            now.Add(-time.Hour),
		ExamEndTime:              now.Add(time.Hour),
		ExamDurationMinutes:      60,
		ExamTotalMarks:           10,
		ExamPassingMarks:         5,
		ExamNegativeMarkPerWrong: 0.5,
		ExamCreatedBy:            uuid.New(),
	}
	if err := db.Create(&exam).Error; err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	session := sessmodel.ExamSessionModel{
		ExamSessionEnrollmentID:    uuid.New(),
		ExamSessionExamID:          exam.ExamID,
		ExamSessionUserID:          uuid.New(),
		ExamSessionStartedAt:       now,
		ExamSessionLastHeartbeatAt: now,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return fixture{exam: exam, session: session}
}

func seedMCQ(t *testing.T, db *gorm.DB, examID uuid.UUID, correct string, marks float64) qmodel.ExamQuestionModel {
	t.Helper()
	question := qmodel.ExamQuestionModel{
		ExamQuestionExamID:        examID,
		ExamQuestionType:          qmodel.ExamQuestionTypeMCQ,
		ExamQuestionText:          "Which structure gives O(1) amortized push and pop?",
		ExamQuestionOptions:       datatypes.JSON([]byte(`{"A":"stack","B":"btree","C":"heap","D":"trie"}`)),
		ExamQuestionCorrectOption: &correct,
		ExamQuestionMarks:         marks,
	}
	if err := db.Create(&question).Error; err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return question
}

func seedShortAnswer(t *testing.T, db *gorm.DB, examID uuid.UUID, marks float64) qmodel.ExamQuestionModel {
	t.Helper()
	question := qmodel.ExamQuestionModel{
		ExamQuestionExamID: examID,
		ExamQuestionType:   qmodel.ExamQuestionTypeShortAnswer,
		ExamQuestionText:   "Explain amortized analysis.",
		ExamQuestionMarks:  marks,
	}
	if err := db.Create(&question).Error; err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return question
}

func strptr(s string) *string { return &s }

func TestMCQGradedOnWrite(t *testing.T) {
	db := newTestDB(t)
	svc := NewAnswerStoreService(db)
	fx := seedFixture(t, db)
	question := seedMCQ(t, db, fx.exam.ExamID, "A", 2)

	answer, err := svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:      fx.session.ExamSessionID,
		QuestionID:     question.ExamQuestionID,
		SelectedOption: strptr("a"), // compared case-insensitively
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if answer.SessionAnswerIsCorrect == nil || !*answer.SessionAnswerIsCorrect {
		t.Errorf("is_correct = %v, want true", answer.SessionAnswerIsCorrect)
	}
	if answer.SessionAnswerMarksAwarded == nil || *answer.SessionAnswerMarksAwarded != 2 {
		t.Errorf("marks = %v, want 2", answer.SessionAnswerMarksAwarded)
	}
}

func TestWrongMCQTakesNegativeMark(t *testing.T) {
	db := newTestDB(t)
	svc := NewAnswerStoreService(db)
	fx := seedFixture(t, db)
	question := seedMCQ(t, db, fx.exam.ExamID, "A", 2)

	answer, err := svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:      fx.session.ExamSessionID,
		QuestionID:     question.ExamQuestionID,
		SelectedOption: strptr("B"),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if answer.SessionAnswerIsCorrect == nil || *answer.SessionAnswerIsCorrect {
		t.Errorf("is_correct = %v, want false", answer.SessionAnswerIsCorrect)
	}
	if answer.SessionAnswerMarksAwarded == nil || *answer.SessionAnswerMarksAwarded != -0.5 {
		t.Errorf("marks = %v, want -0.5", answer.SessionAnswerMarksAwarded)
	}
}

func TestShortAnswerStaysUngraded(t *testing.T) {
	db := newTestDB(t)
	svc := NewAnswerStoreService(db)
	fx := seedFixture(t, db)
	question := seedShortAnswer(t, db, fx.exam.ExamID, 3)

	answer, err := svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:  fx.session.ExamSessionID,
		QuestionID: question.ExamQuestionID,
		AnswerText: strptr("Average cost over a worst-case sequence of operations."),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if answer.SessionAnswerMarksAwarded != nil {
		t.Errorf("marks = %v, want nil until manual grading", answer.SessionAnswerMarksAwarded)
	}
}

func TestSaveAnswerUpserts(t *testing.T) {
	db := newTestDB(t)
	svc := NewAnswerStoreService(db)
	fx := seedFixture(t, db)
	question := seedMCQ(t, db, fx.exam.ExamID, "A", 2)

	if _, err := svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:      fx.session.ExamSessionID,
		QuestionID:     question.ExamQuestionID,
		SelectedOption: strptr("B"),
	}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second, err := svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:      fx.session.ExamSessionID,
		QuestionID:     question.ExamQuestionID,
		SelectedOption: strptr("A"),
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.SessionAnswerMarksAwarded == nil || *second.SessionAnswerMarksAwarded != 2 {
		t.Errorf("regrade after change: marks = %v, want 2", second.SessionAnswerMarksAwarded)
	}

	var count int64
	db.Model(&ansmodel.SessionAnswerModel{}).
		Where("session_answer_session_id = ?", fx.session.ExamSessionID).
		Count(&count)
	if count != 1 {
		t.Errorf("answer rows = %d, want 1 (upsert)", count)
	}
}

func TestSaveAnswerRejectedWhenIneligible(t *testing.T) {
	db := newTestDB(t)
	svc := NewAnswerStoreService(db)
	fx := seedFixture(t, db)
	question := seedMCQ(t, db, fx.exam.ExamID, "A", 2)

	if err := db.Model(&sessmodel.ExamSessionModel{}).
		Where("exam_session_id = ?", fx.session.ExamSessionID).
		Update("exam_session_is_suspended", true).Error; err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, err := svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:      fx.session.ExamSessionID,
		QuestionID:     question.ExamQuestionID,
		SelectedOption: strptr("A"),
	})
	fe, ok := err.(*fiber.Error)
	if !ok || fe.Code != fiber.StatusConflict {
		t.Errorf("suspended save: err = %v, want 409", err)
	}

	now := time.Now().UTC()
	if err := db.Model(&sessmodel.ExamSessionModel{}).
		Where("exam_session_id = ?", fx.session.ExamSessionID).
		Updates(map[string]interface{}{
			"exam_session_is_suspended": false,
			"exam_session_submitted_at": now,
		}).Error; err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:      fx.session.ExamSessionID,
		QuestionID:     question.ExamQuestionID,
		SelectedOption: strptr("A"),
	})
	fe, ok = err.(*fiber.Error)
	if !ok || fe.Code != fiber.StatusConflict {
		t.Errorf("submitted save: err = %v, want 409", err)
	}
}

func TestQuestionMustBelongToExam(t *testing.T) {
	db := newTestDB(t)
	svc := NewAnswerStoreService(db)
	fx := seedFixture(t, db)
	other := seedFixture(t, db)
	foreign := seedMCQ(t, db, other.exam.ExamID, "A", 2)

	_, err := svc.SaveAnswer(context.Background(), SaveAnswerInput{
		SessionID:      fx.session.ExamSessionID,
		QuestionID:     foreign.ExamQuestionID,
		SelectedOption: strptr("A"),
	})
	fe, ok := err.(*fiber.Error)
	if !ok || fe.Code != fiber.StatusBadRequest {
		t.Errorf("foreign question: err = %v, want 400", err)
	}
}

func TestSumAwardedMarksSkipsUngraded(t *testing.T) {
	db := newTestDB(t)
	svc := NewAnswerStoreService(db)
	fx := seedFixture(t, db)

	q1 := seedMCQ(t, db, fx.exam.ExamID, "A", 2)
	q2 := seedMCQ(t, db, fx.exam.ExamID, "C", 3)
	q3 := seedMCQ(t, db, fx.exam.ExamID, "B", 1)
	q4 := seedShortAnswer(t, db, fx.exam.ExamID, 4)

	saves := []SaveAnswerInput{
		{SessionID: fx.session.ExamSessionID, QuestionID: q1.ExamQuestionID, SelectedOption: strptr("A")}, // +2
		{SessionID: fx.session.ExamSessionID, QuestionID: q2.ExamQuestionID, SelectedOption: strptr("C")}, // +3
		{SessionID: fx.session.ExamSessionID, QuestionID: q3.ExamQuestionID, SelectedOption: strptr("D")}, // -0.5
		{SessionID: fx.session.ExamSessionID, QuestionID: q4.ExamQuestionID, AnswerText: strptr("...")},   // ungraded
	}
	for _, in := range saves {
		if _, err := svc.SaveAnswer(context.Background(), in); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	sum, err := svc.SumAwardedMarks(db, fx.session.ExamSessionID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 4.5 {
		t.Errorf("sum = %v, want 4.5", sum)
	}

	answered, err := svc.CountAnswered(db, fx.session.ExamSessionID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if answered != 4 {
		t.Errorf("answered = %d, want 4", answered)
	}
}

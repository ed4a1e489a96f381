// file: internals/features/sessions/sessions/service/session_lifecycle_service_test.go
package service

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	enrmodel "examproctor_backend/internals/features/exams/enrollments/model"
	exmodel "examproctor_backend/internals/features/exams/exams/model"
	"examproctor_backend/internals/features/sessions/sessions/model"
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
		&enrmodel.ExamEnrollmentModel{},
		&model.ExamSessionModel{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeAnswers lets submit tests control the score and observe call counts.
type fakeAnswers struct {
	sum      float64
	sumErr   error
	sumCalls int
}

func (f *fakeAnswers) SumAwardedMarks(tx *gorm.DB, sessionID uuid.UUID) (float64, error) {
	f.sumCalls++
	return f.sum, f.sumErr
}

func (f *fakeAnswers) CountAnswered(tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	return 0, nil
}

type fakeNotifier struct {
	suspends   int
	reinstates int
	updates    int
	alerts     int
}

func (f *fakeNotifier) SuspendStudent(sessionID uuid.UUID, reason string)    { f.suspends++ }
func (f *fakeNotifier) ReinstateStudent(sessionID uuid.UUID, p interface{})  { f.reinstates++ }
func (f *fakeNotifier) PushSessionUpdate(sessionID uuid.UUID, p interface{}) { f.updates++ }
func (f *fakeNotifier) BroadcastProctorAlert(e, s uuid.UUID, p interface{})  { f.alerts++ }

func newLifecycle(t *testing.T, db *gorm.DB, answers *fakeAnswers) (*SessionLifecycleService, *fakeNotifier, *time.Time) {
	t.Helper()
	notifier := &fakeNotifier{}
	svc := NewSessionLifecycleService(db, answers, notifier)
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, notifier, &clock
}

func seedExam(t *testing.T, db *gorm.DB, status exmodel.ExamStatus, durationMinutes int) exmodel.ExamModel {
	t.Helper()
	exam := exmodel.ExamModel{
		ExamTitle:           "Discrete Mathematics Final",
		ExamStatus:          status,
		ExamStartTime:       time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		ExamEndTime:         time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		ExamDurationMinutes: durationMinutes,
		ExamTotalMarks:      10,
		ExamPassingMarks:    5,
		ExamCreatedBy:       uuid.New(),
	}
	if err := db.Create(&exam).Error; err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return exam
}

func seedEnrollment(t *testing.T, db *gorm.DB, examID uuid.UUID, status enrmodel.ExamEnrollmentStatus) enrmodel.ExamEnrollmentModel {
	t.Helper()
	enr := enrmodel.ExamEnrollmentModel{
		ExamEnrollmentExamID: examID,
		ExamEnrollmentUserID: uuid.New(),
		ExamEnrollmentStatus: status,
	}
	if err := db.Create(&enr).Error; err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	return enr
}

func fiberCode(t *testing.T, err error) int {
	t.Helper()
	fe, ok := err.(*fiber.Error)
	if !ok {
		t.Fatalf("expected *fiber.Error, got %T: %v", err, err)
	}
	return fe.Code
}

func TestStartCreatesSessionAndMarksEnrollmentOngoing(t *testing.T) {
	db := newTestDB(t)
	svc, _, clock := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !session.ExamSessionStartedAt.Equal(clock.UTC()) {
		t.Errorf("started_at = %v, want %v", session.ExamSessionStartedAt, clock.UTC())
	}
	if !session.ExamSessionLastHeartbeatAt.Equal(session.ExamSessionStartedAt) {
		t.Errorf("first heartbeat should equal started_at")
	}
	if session.Status() != model.SessionStatusActive {
		t.Errorf("status = %s, want ACTIVE", session.Status())
	}

	var reloaded enrmodel.ExamEnrollmentModel
	if err := db.First(&reloaded, "exam_enrollment_id = ?", enr.ExamEnrollmentID).Error; err != nil {
		t.Fatalf("reload enrollment: %v", err)
	}
	if reloaded.ExamEnrollmentStatus != enrmodel.EnrollmentStatusOngoing {
		t.Errorf("enrollment status = %s, want ONGOING", reloaded.ExamEnrollmentStatus)
	}
}

func TestStartTwiceConflicts(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	if _, err := svc.Start(context.Background(), enr.ExamEnrollmentID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if code := fiberCode(t, err); code != fiber.StatusConflict {
		t.Errorf("second start code = %d, want 409", code)
	}

	var count int64
	db.Model(&model.ExamSessionModel{}).Where("exam_session_enrollment_id = ?", enr.ExamEnrollmentID).Count(&count)
	if count != 1 {
		t.Errorf("session rows = %d, want exactly 1", count)
	}
}

func TestStartRejectsDraftExam(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusDraft, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	_, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if code := fiberCode(t, err); code != fiber.StatusBadRequest {
		t.Errorf("code = %d, want 400", code)
	}
}

func TestStartRejectsClosedWindow(t *testing.T) {
	db := newTestDB(t)
	svc, _, clock := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	*clock = exam.ExamEndTime.Add(time.Minute)
	_, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if code := fiberCode(t, err); code != fiber.StatusBadRequest {
		t.Errorf("code = %d, want 400", code)
	}
}

func TestSuspendIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc, notifier, _ := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)
	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := svc.Suspend(context.Background(), session.ExamSessionID, "multiple persons detected")
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if first.Status() != model.SessionStatusSuspended {
		t.Errorf("status = %s, want SUSPENDED", first.Status())
	}

	second, err := svc.Suspend(context.Background(), session.ExamSessionID, "again")
	if err != nil {
		t.Fatalf("second suspend should be a no-op, got: %v", err)
	}
	if second.Status() != model.SessionStatusSuspended {
		t.Errorf("second suspend status = %s, want SUSPENDED", second.Status())
	}
	if notifier.suspends != 1 {
		t.Errorf("suspend notifications = %d, want 1", notifier.suspends)
	}
}

func TestReinstateCompensatesExactlySuspendedDuration(t *testing.T) {
	db := newTestDB(t)
	svc, notifier, clock := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	start := *clock
	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// suspended at T+50, reinstated at T+65: the original deadline (T+60)
	// passes while suspended, yet the session comes back with 10 minutes left
	*clock = start.Add(50 * time.Minute)
	if _, err := svc.Suspend(context.Background(), session.ExamSessionID, "phone detected"); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	*clock = start.Add(65 * time.Minute)
	reinstated, err := svc.Reinstate(context.Background(), session.ExamSessionID)
	if err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if reinstated.Status() != model.SessionStatusActive {
		t.Errorf("status = %s, want ACTIVE", reinstated.Status())
	}

	wantDeadline := start.Add(75 * time.Minute) // 60m duration + 15m suspended
	got := reinstated.EffectiveDeadline(exam.ExamDurationMinutes)
	if !got.Equal(wantDeadline) {
		t.Errorf("effective deadline = %v, want %v", got, wantDeadline)
	}
	if notifier.reinstates != 1 {
		t.Errorf("reinstate notifications = %d, want 1", notifier.reinstates)
	}
}

func TestReinstateTwiceDoesNotDoubleCount(t *testing.T) {
	db := newTestDB(t)
	svc, _, clock := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	start := *clock
	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	*clock = start.Add(10 * time.Minute)
	if _, err := svc.Suspend(context.Background(), session.ExamSessionID, "r1"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	*clock = start.Add(15 * time.Minute)
	if _, err := svc.Reinstate(context.Background(), session.ExamSessionID); err != nil {
		t.Fatalf("reinstate: %v", err)
	}

	*clock = start.Add(20 * time.Minute)
	if _, err := svc.Suspend(context.Background(), session.ExamSessionID, "r2"); err != nil {
		t.Fatalf("second suspend: %v", err)
	}
	*clock = start.Add(30 * time.Minute)
	reinstated, err := svc.Reinstate(context.Background(), session.ExamSessionID)
	if err != nil {
		t.Fatalf("second reinstate: %v", err)
	}

	// 60m + 5m + 10m; each cycle extends from the previous cycle's deadline
	want := start.Add(75 * time.Minute)
	got := reinstated.EffectiveDeadline(exam.ExamDurationMinutes)
	if !got.Equal(want) {
		t.Errorf("effective deadline = %v, want %v", got, want)
	}
}

func TestReinstateRequiresSuspendedState(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)
	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = svc.Reinstate(context.Background(), session.ExamSessionID)
	if code := fiberCode(t, err); code != fiber.StatusConflict {
		t.Errorf("code = %d, want 409", code)
	}
}

func TestSubmitScoresOnceAndIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	answers := &fakeAnswers{sum: 7.5}
	svc, _, _ := newLifecycle(t, db, answers)
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)
	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	submitted, err := svc.Submit(context.Background(), session.ExamSessionID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status() != model.SessionStatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", submitted.Status())
	}
	if submitted.ExamSessionScore == nil || *submitted.ExamSessionScore != 7.5 {
		t.Errorf("score = %v, want 7.5", submitted.ExamSessionScore)
	}
	if submitted.ExamSessionIsPassed == nil || !*submitted.ExamSessionIsPassed {
		t.Errorf("is_passed = %v, want true (7.5 >= 5)", submitted.ExamSessionIsPassed)
	}

	again, err := svc.Submit(context.Background(), session.ExamSessionID)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if again.Status() != model.SessionStatusSubmitted {
		t.Errorf("second submit status = %s, want SUBMITTED", again.Status())
	}
	if answers.sumCalls != 1 {
		t.Errorf("scoring ran %d times, want exactly 1", answers.sumCalls)
	}

	var reloaded enrmodel.ExamEnrollmentModel
	if err := db.First(&reloaded, "exam_enrollment_id = ?", enr.ExamEnrollmentID).Error; err != nil {
		t.Fatalf("reload enrollment: %v", err)
	}
	if reloaded.ExamEnrollmentStatus != enrmodel.EnrollmentStatusCompleted {
		t.Errorf("enrollment status = %s, want COMPLETED", reloaded.ExamEnrollmentStatus)
	}
}

func TestSubmitFromSuspendedClearsSuspension(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newLifecycle(t, db, &fakeAnswers{sum: 2})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)
	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Suspend(context.Background(), session.ExamSessionID, "x"); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	submitted, err := svc.Submit(context.Background(), session.ExamSessionID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status() != model.SessionStatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", submitted.Status())
	}
	if submitted.ExamSessionIsPassed == nil || *submitted.ExamSessionIsPassed {
		t.Errorf("is_passed = %v, want false (2 < 5)", submitted.ExamSessionIsPassed)
	}
}

func TestHeartbeatRejectedForSuspendedAndSubmitted(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)
	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.Heartbeat(context.Background(), session.ExamSessionID); err != nil {
		t.Fatalf("heartbeat on active session: %v", err)
	}

	if _, err := svc.Suspend(context.Background(), session.ExamSessionID, "x"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	err = svc.Heartbeat(context.Background(), session.ExamSessionID)
	if code := fiberCode(t, err); code != fiber.StatusConflict {
		t.Errorf("suspended heartbeat code = %d, want 409", code)
	}

	if _, err := svc.Submit(context.Background(), session.ExamSessionID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err = svc.Heartbeat(context.Background(), session.ExamSessionID)
	if code := fiberCode(t, err); code != fiber.StatusConflict {
		t.Errorf("submitted heartbeat code = %d, want 409", code)
	}
}

func TestCheckEligibilityReasons(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	elig, err := svc.CheckEligibility(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("eligibility (missing): %v", err)
	}
	if elig.Eligible || elig.Reason != RejectNotFound {
		t.Errorf("missing session: eligible=%v reason=%s, want ineligible/not_found", elig.Eligible, elig.Reason)
	}

	session, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	elig, _ = svc.CheckEligibility(context.Background(), session.ExamSessionID)
	if !elig.Eligible {
		t.Errorf("active session should be eligible, reason=%s", elig.Reason)
	}

	if _, err := svc.Suspend(context.Background(), session.ExamSessionID, "x"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	elig, _ = svc.CheckEligibility(context.Background(), session.ExamSessionID)
	if elig.Eligible || elig.Reason != RejectSuspended {
		t.Errorf("suspended: eligible=%v reason=%s, want ineligible/suspended", elig.Eligible, elig.Reason)
	}

	if _, err := svc.Submit(context.Background(), session.ExamSessionID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	elig, _ = svc.CheckEligibility(context.Background(), session.ExamSessionID)
	if elig.Eligible || elig.Reason != RejectSubmitted {
		t.Errorf("submitted: eligible=%v reason=%s, want ineligible/submitted", elig.Eligible, elig.Reason)
	}
}

func TestStartRejectsUnopenedWindow(t *testing.T) {
	db := newTestDB(t)
	svc, _, clock := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusPublished, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	*clock = exam.ExamStartTime.Add(-time.Minute)
	_, err := svc.Start(context.Background(), enr.ExamEnrollmentID)
	if code := fiberCode(t, err); code != fiber.StatusBadRequest {
		t.Errorf("code = %d, want 400", code)
	}
}

// Two starts racing past the existence check: the loser's insert hits the
// unique index on enrollment_id and surfaces as an ordinary 409. A one-shot
// create hook plays the rival, committing its row on a second connection
// right before the loser's insert runs.
func TestStartLosingRaceResolvedByUniqueIndex(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:start_race?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(2) // the rival needs its own connection
	if err := db.AutoMigrate(
		&exmodel.ExamModel{},
		&enrmodel.ExamEnrollmentModel{},
		&model.ExamSessionModel{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc, _, _ := newLifecycle(t, db, &fakeAnswers{})
	exam := seedExam(t, db, exmodel.ExamStatusOngoing, 60)
	enr := seedEnrollment(t, db, exam.ExamID, enrmodel.EnrollmentStatusRegistered)

	raced := false
	err = db.Callback().Create().Before("gorm:create").Register("rival_start", func(tx *gorm.DB) {
		if raced {
			return
		}
		if _, ok := tx.Statement.Dest.(*model.ExamSessionModel); !ok {
			return
		}
		raced = true
		rival := model.ExamSessionModel{
			ExamSessionEnrollmentID:    enr.ExamEnrollmentID,
			ExamSessionExamID:          exam.ExamID,
			ExamSessionUserID:          enr.ExamEnrollmentUserID,
			ExamSessionStartedAt:       time.Now().UTC(),
			ExamSessionLastHeartbeatAt: time.Now().UTC(),
		}
		if err := db.Create(&rival).Error; err != nil {
			t.Errorf("rival start: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register hook: %v", err)
	}

	_, err = svc.Start(context.Background(), enr.ExamEnrollmentID)
	if code := fiberCode(t, err); code != fiber.StatusConflict {
		t.Errorf("losing start code = %d, want 409", code)
	}
	if !raced {
		t.Fatal("rival insert never ran")
	}

	var count int64
	db.Model(&model.ExamSessionModel{}).Where("exam_session_enrollment_id = ?", enr.ExamEnrollmentID).Count(&count)
	if count != 1 {
		t.Errorf("session rows = %d, want exactly 1", count)
	}
}

// file: internals/features/proctoring/aggregator/service/violation_aggregator_service_test.go
package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	sumodel "examproctor_backend/internals/features/proctoring/aggregator/model"
	evmodel "examproctor_backend/internals/features/proctoring/events/model"
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
		&sessmodel.ExamSessionModel{},
		&evmodel.ProctoringEventModel{},
		&sumodel.ViolationSummaryModel{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts int
}

func (r *recordingNotifier) BroadcastProctorAlert(examID, sessionID uuid.UUID, payload interface{}) {
	r.mu.Lock()
	r.alerts++
	r.mu.Unlock()
}

func seedSession(t *testing.T, db *gorm.DB, submitted bool) sessmodel.ExamSessionModel {
	t.Helper()
	now := time.Now().UTC()
	session := sessmodel.ExamSessionModel{
		ExamSessionEnrollmentID:    uuid.New(),
		ExamSessionExamID:          uuid.New(),
		ExamSessionUserID:          uuid.New(),
		ExamSessionStartedAt:       now,
		ExamSessionLastHeartbeatAt: now,
	}
	if submitted {
		session.ExamSessionSubmittedAt = &now
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

func newAggregator(t *testing.T, db *gorm.DB) (*ViolationAggregatorService, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	svc, err := NewViolationAggregatorService(db, notifier, DefaultRiskWeights())
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return svc, notifier
}

func TestEveryEventTypeIncrementsExactlyOneCounter(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newAggregator(t, db)

	for _, eventType := range evmodel.AllEventTypes {
		session := seedSession(t, db, false)

		summary, err := svc.RecordViolation(context.Background(), RecordViolationInput{
			SessionID: session.ExamSessionID,
			EventType: eventType,
		})
		if err != nil {
			t.Fatalf("%s: record: %v", eventType, err)
		}

		var totalBumped int
		for counted, n := range summary.Counters() {
			if n == 0 {
				continue
			}
			totalBumped += n
			if counted != eventType {
				t.Errorf("%s bumped counter for %s", eventType, counted)
			}
		}
		if totalBumped != 1 {
			t.Errorf("%s: total increments = %d, want 1", eventType, totalBumped)
		}
	}
}

func TestRiskScoreIsMonotoneAndBounded(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newAggregator(t, db)
	session := seedSession(t, db, false)

	prev := 0.0
	for i := 0; i < 12; i++ {
		summary, err := svc.RecordViolation(context.Background(), RecordViolationInput{
			SessionID: session.ExamSessionID,
			EventType: evmodel.EventPhoneDetected,
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		score := summary.ViolationSummaryRiskScore
		if score < prev {
			t.Errorf("risk score decreased: %f -> %f", prev, score)
		}
		if score < 0 || score > 1 {
			t.Errorf("risk score out of [0,1]: %f", score)
		}
		prev = score
	}
	if prev != 1 {
		t.Errorf("12 phone detections should saturate the score, got %f", prev)
	}
}

func TestConcurrentIncrementsAreLossless(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newAggregator(t, db)
	session := seedSession(t, db, false)

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := svc.RecordViolation(context.Background(), RecordViolationInput{
					SessionID: session.ExamSessionID,
					EventType: evmodel.EventTabSwitch,
				}); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent record: %v", err)
	}

	summary, err := svc.GetSummary(context.Background(), session.ExamSessionID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.TabSwitchCount != workers*perWorker {
		t.Errorf("tab_switch_count = %d, want %d (no lost increments)", summary.TabSwitchCount, workers*perWorker)
	}

	var events int64
	db.Model(&evmodel.ProctoringEventModel{}).
		Where("proctoring_event_session_id = ?", session.ExamSessionID).
		Count(&events)
	if events != workers*perWorker {
		t.Errorf("event rows = %d, want %d", events, workers*perWorker)
	}
}

func TestUnknownEventTypeRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newAggregator(t, db)
	session := seedSession(t, db, false)

	_, err := svc.RecordViolation(context.Background(), RecordViolationInput{
		SessionID: session.ExamSessionID,
		EventType: "YAWNING",
	})
	fe, ok := err.(*fiber.Error)
	if !ok || fe.Code != fiber.StatusBadRequest {
		t.Errorf("unknown type: err = %v, want 400", err)
	}
}

func TestConfidenceBoundsValidated(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newAggregator(t, db)
	session := seedSession(t, db, false)

	bad := 1.2
	_, err := svc.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:  session.ExamSessionID,
		EventType:  evmodel.EventFaceAway,
		Confidence: &bad,
	})
	fe, ok := err.(*fiber.Error)
	if !ok || fe.Code != fiber.StatusBadRequest {
		t.Errorf("confidence 1.2: err = %v, want 400", err)
	}
}

func TestLateEventOnSubmittedSessionRecordsWithoutAlert(t *testing.T) {
	db := newTestDB(t)
	svc, notifier := newAggregator(t, db)
	session := seedSession(t, db, true)

	summary, err := svc.RecordViolation(context.Background(), RecordViolationInput{
		SessionID: session.ExamSessionID,
		EventType: evmodel.EventIdentityMismatch,
	})
	if err != nil {
		t.Fatalf("late record: %v", err)
	}
	if summary.IdentityMismatchCount != 1 {
		t.Errorf("identity_mismatch_count = %d, want 1 (audit trail)", summary.IdentityMismatchCount)
	}
	if notifier.alerts != 0 {
		t.Errorf("alerts = %d, want 0 for a submitted session", notifier.alerts)
	}
}

func TestManualFlagDoesNotTouchRiskScore(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newAggregator(t, db)
	session := seedSession(t, db, false)

	before, err := svc.RecordViolation(context.Background(), RecordViolationInput{
		SessionID: session.ExamSessionID,
		EventType: evmodel.EventGazeAway,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	flagged, err := svc.SetManualFlag(context.Background(), session.ExamSessionID, true, "talking to someone off camera")
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if !flagged.ViolationSummaryProctorFlag {
		t.Errorf("proctor_flag not set")
	}
	if flagged.ViolationSummaryProctorNote == nil || *flagged.ViolationSummaryProctorNote == "" {
		t.Errorf("proctor_note not stored")
	}
	if flagged.ViolationSummaryRiskScore != before.ViolationSummaryRiskScore {
		t.Errorf("risk score changed by manual flag: %f -> %f",
			before.ViolationSummaryRiskScore, flagged.ViolationSummaryRiskScore)
	}
}

func TestRiskWeightsMustCoverWholeEnum(t *testing.T) {
	w := DefaultRiskWeights()
	delete(w.Weights, evmodel.EventManualFlag)
	if err := w.Validate(); err == nil {
		t.Error("validation should fail when a type has no weight")
	}

	if _, err := NewViolationAggregatorService(nil, nil, w); err == nil {
		t.Error("constructor should reject incomplete weights")
	}
}

func TestGetSummaryZeroValueWhenNoEvents(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newAggregator(t, db)
	sessionID := uuid.New()

	summary, err := svc.GetSummary(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.ViolationSummarySessionID != sessionID {
		t.Errorf("session id = %s, want %s", summary.ViolationSummarySessionID, sessionID)
	}
	if summary.ViolationSummaryRiskScore != 0 {
		t.Errorf("risk score = %f, want 0", summary.ViolationSummaryRiskScore)
	}
}

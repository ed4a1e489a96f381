// file: internals/features/proctoring/aggregator/service/violation_aggregator_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	sumodel "examproctor_backend/internals/features/proctoring/aggregator/model"
	evmodel "examproctor_backend/internals/features/proctoring/events/model"
	sessmodel "examproctor_backend/internals/features/sessions/sessions/model"
)

/* =========================================================
   VIOLATION AGGREGATOR
   Appends the immutable event row, then bumps exactly one
   summary counter and recomputes the risk score.

   Concurrency: a striped per-session mutex serializes writers
   in this process; the summary row additionally carries a
   version token so a CAS retry covers concurrent instances.
   Lost increments are a correctness bug, not a perf nuisance.
========================================================= */

const lockStripes = 64

type ProctorNotifier interface {
	BroadcastProctorAlert(examID, sessionID uuid.UUID, payload interface{})
}

type RiskWeights struct {
	Weights map[evmodel.ProctoringEventType]float64
	// Saturation is the weighted sum at which the risk score reaches 1.0.
	Saturation float64
}

// DefaultRiskWeights: severity-tiered defaults; every enumerated type has a
// weight so the scoring function is total.
func DefaultRiskWeights() RiskWeights {
	w := map[evmodel.ProctoringEventType]float64{
		evmodel.EventFaceAway:           0.2,
		evmodel.EventGazeAway:           0.2,
		evmodel.EventMouthOpen:          0.1,
		evmodel.EventMultipleFace:       1.5,
		evmodel.EventMultiplePersons:    2.0,
		evmodel.EventPhoneDetected:      2.5,
		evmodel.EventAudioViolation:     0.8,
		evmodel.EventTabSwitch:          0.4,
		evmodel.EventFullscreenExit:     0.6,
		evmodel.EventCopyPaste:          0.8,
		evmodel.EventSuspiciousBehavior: 0.6,
		evmodel.EventNotesDetected:      1.5,
		evmodel.EventIdentityMismatch:   2.5,
		evmodel.EventManualFlag:         1.0,
	}
	return RiskWeights{Weights: w, Saturation: 10}
}

// Validate rejects a weight table that does not cover the whole enum.
func (rw RiskWeights) Validate() error {
	if rw.Saturation <= 0 {
		return errors.New("risk weight saturation must be > 0")
	}
	for _, t := range evmodel.AllEventTypes {
		if _, ok := rw.Weights[t]; !ok {
			return fmt.Errorf("risk weight missing for event type %q", t)
		}
	}
	return nil
}

// Score: weighted sum of counters normalized to [0,1], monotone in every counter.
func (rw RiskWeights) Score(counters map[evmodel.ProctoringEventType]int) float64 {
	var sum float64
	for t, n := range counters {
		sum += rw.Weights[t] * float64(n)
	}
	score := sum / rw.Saturation
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

type ViolationAggregatorService struct {
	DB       *gorm.DB
	Notifier ProctorNotifier
	Weights  RiskWeights

	locks [lockStripes]sync.Mutex
}

func NewViolationAggregatorService(db *gorm.DB, notifier ProctorNotifier, weights RiskWeights) (*ViolationAggregatorService, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &ViolationAggregatorService{DB: db, Notifier: notifier, Weights: weights}, nil
}

func (s *ViolationAggregatorService) lockFor(sessionID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(sessionID[:])
	return &s.locks[h.Sum32()%lockStripes]
}

type RecordViolationInput struct {
	SessionID   uuid.UUID
	EventType   evmodel.ProctoringEventType
	Severity    evmodel.EventSeverity
	Source      evmodel.EventSource
	Confidence  *float64
	SnapshotRef *string
	Metadata    datatypes.JSON
}

// RecordViolation appends the event and updates the summary atomically.
// Late classifications for an already-submitted session are still recorded
// (audit trail), but never re-trigger proctor alerts.
func (s *ViolationAggregatorService) RecordViolation(ctx context.Context, in RecordViolationInput) (*sumodel.ViolationSummaryModel, error) {
	if !in.EventType.Valid() {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown event type %q", in.EventType))
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "confidence must be within [0,1]")
	}
	if in.Severity == "" {
		in.Severity = evmodel.DefaultSeverity(in.EventType)
	}
	if in.Source == "" {
		in.Source = evmodel.SourceSystem
	}

	var session sessmodel.ExamSessionModel
	if err := s.DB.WithContext(ctx).
		First(&session, "exam_session_id = ?", in.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return nil, err
	}

	mu := s.lockFor(in.SessionID)
	mu.Lock()
	defer mu.Unlock()

	var summary sumodel.ViolationSummaryModel
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := evmodel.ProctoringEventModel{
			ProctoringEventSessionID:   in.SessionID,
			ProctoringEventType:        in.EventType,
			ProctoringEventSeverity:    in.Severity,
			ProctoringEventSource:      in.Source,
			ProctoringEventConfidence:  in.Confidence,
			ProctoringEventSnapshotRef: in.SnapshotRef,
			ProctoringEventMetadata:    in.Metadata,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		return s.bumpSummary(tx, in.SessionID, in.EventType, &summary)
	})
	if err != nil {
		return nil, err
	}

	// Best-effort live update; a submitted session gets the audit row only.
	if session.ExamSessionSubmittedAt == nil && s.Notifier != nil {
		s.Notifier.BroadcastProctorAlert(session.ExamSessionExamID, in.SessionID, map[string]interface{}{
			"event_type": in.EventType,
			"severity":   in.Severity,
			"source":     in.Source,
			"risk_score": summary.ViolationSummaryRiskScore,
		})
	}

	return &summary, nil
}

// bumpSummary: load-or-create the summary row, increment the one counter,
// recompute risk, then CAS on the version column. Retries cover concurrent
// writers from other instances that slipped past the striped lock.
func (s *ViolationAggregatorService) bumpSummary(tx *gorm.DB, sessionID uuid.UUID, t evmodel.ProctoringEventType, out *sumodel.ViolationSummaryModel) error {
	for attempt := 0; attempt < 5; attempt++ {
		var summary sumodel.ViolationSummaryModel
		err := tx.First(&summary, "violation_summary_session_id = ?", sessionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			summary = sumodel.ViolationSummaryModel{ViolationSummarySessionID: sessionID}
			if cerr := tx.Create(&summary).Error; cerr != nil {
				if isDuplicateKey(cerr) {
					continue // lost the creation race, reload
				}
				return cerr
			}
		} else if err != nil {
			return err
		}

		if err := summary.Increment(t); err != nil {
			return err
		}
		summary.ViolationSummaryRiskScore = s.Weights.Score(summary.Counters())

		res := tx.Model(&sumodel.ViolationSummaryModel{}).
			Where("violation_summary_id = ? AND violation_summary_version = ?", summary.ViolationSummaryID, summary.ViolationSummaryVersion).
			Updates(map[string]interface{}{
				columnFor(t):                        gorm.Expr(columnFor(t)+" + 1"),
				"violation_summary_risk_score":      summary.ViolationSummaryRiskScore,
				"violation_summary_version":         summary.ViolationSummaryVersion + 1,
				"violation_summary_last_updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			summary.ViolationSummaryVersion++
			*out = summary
			return nil
		}
		// version moved under us; reload and retry
	}
	return fiber.NewError(fiber.StatusConflict, "violation summary contended, retry")
}

// columnFor mirrors ViolationSummaryModel.counterRef at the SQL layer.
func columnFor(t evmodel.ProctoringEventType) string {
	switch t {
	case evmodel.EventFaceAway:
		return "face_away_count"
	case evmodel.EventGazeAway:
		return "gaze_away_count"
	case evmodel.EventMouthOpen:
		return "mouth_open_count"
	case evmodel.EventMultipleFace:
		return "multiple_face_count"
	case evmodel.EventMultiplePersons:
		return "multiple_persons_count"
	case evmodel.EventPhoneDetected:
		return "phone_detected_count"
	case evmodel.EventAudioViolation:
		return "audio_violation_count"
	case evmodel.EventTabSwitch:
		return "tab_switch_count"
	case evmodel.EventFullscreenExit:
		return "fullscreen_exit_count"
	case evmodel.EventCopyPaste:
		return "copy_paste_count"
	case evmodel.EventSuspiciousBehavior:
		return "suspicious_behavior_count"
	case evmodel.EventNotesDetected:
		return "notes_detected_count"
	case evmodel.EventIdentityMismatch:
		return "identity_mismatch_count"
	case evmodel.EventManualFlag:
		return "manual_flag_count"
	}
	return ""
}

// SetManualFlag: proctor override. Independent of the automatic counters and
// deliberately does not touch the risk score.
func (s *ViolationAggregatorService) SetManualFlag(ctx context.Context, sessionID uuid.UUID, flagged bool, note string) (*sumodel.ViolationSummaryModel, error) {
	var session sessmodel.ExamSessionModel
	if err := s.DB.WithContext(ctx).First(&session, "exam_session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return nil, err
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	var summary sumodel.ViolationSummaryModel
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&summary, "violation_summary_session_id = ?", sessionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			summary = sumodel.ViolationSummaryModel{ViolationSummarySessionID: sessionID}
			if cerr := tx.Create(&summary).Error; cerr != nil && !isDuplicateKey(cerr) {
				return cerr
			}
			if err := tx.First(&summary, "violation_summary_session_id = ?", sessionID).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"violation_summary_proctor_flag": flagged,
			"violation_summary_version":      gorm.Expr("violation_summary_version + 1"),
		}
		if note != "" {
			updates["violation_summary_proctor_note"] = note
		}
		if err := tx.Model(&sumodel.ViolationSummaryModel{}).
			Where("violation_summary_id = ?", summary.ViolationSummaryID).
			Updates(updates).Error; err != nil {
			return err
		}
		summary.ViolationSummaryProctorFlag = flagged
		if note != "" {
			summary.ViolationSummaryProctorNote = &note
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if flagged {
		log.Printf("[AGGREGATOR] session=%s manually flagged by proctor", sessionID)
	}
	return &summary, nil
}

// GetSummary returns the summary for one session (zero-valued when no event
// has been recorded yet).
func (s *ViolationAggregatorService) GetSummary(ctx context.Context, sessionID uuid.UUID) (*sumodel.ViolationSummaryModel, error) {
	var summary sumodel.ViolationSummaryModel
	err := s.DB.WithContext(ctx).First(&summary, "violation_summary_session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &sumodel.ViolationSummaryModel{ViolationSummarySessionID: sessionID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// BulkBySessionIDs: one query for the enrollment list endpoint (no N+1).
func (s *ViolationAggregatorService) BulkBySessionIDs(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]sumodel.ViolationSummaryModel, error) {
	out := make(map[uuid.UUID]sumodel.ViolationSummaryModel, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	var rows []sumodel.ViolationSummaryModel
	if err := s.DB.WithContext(ctx).
		Where("violation_summary_session_id IN ?", sessionIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ViolationSummarySessionID] = r
	}
	return out, nil
}

// Postgres unique violation (SQLSTATE 23505); substring check keeps this
// portable across drivers.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "23505")
}

// file: internals/features/proctoring/aggregator/model/violation_summary_model.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	evmodel "examproctor_backend/internals/features/proctoring/events/model"
)

/* =========================================================
   VIOLATION SUMMARY
   1 row = 1 session (created lazily on first event)
   - one monotonic counter per proctoring event type
   - risk_score ∈ [0,1], recomputed on every update
   - version: CAS token so concurrent increments never lose writes
========================================================= */

type ViolationSummaryModel struct {
	ViolationSummaryID uuid.UUID `gorm:"type:uuid;primaryKey;column:violation_summary_id" json:"violation_summary_id"`

	ViolationSummarySessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_violation_summary_session;column:violation_summary_session_id" json:"violation_summary_session_id"`

	FaceAwayCount           int `gorm:"not null;default:0;column:face_away_count" json:"face_away_count"`
	GazeAwayCount           int `gorm:"not null;default:0;column:gaze_away_count" json:"gaze_away_count"`
	MouthOpenCount          int `gorm:"not null;default:0;column:mouth_open_count" json:"mouth_open_count"`
	MultipleFaceCount       int `gorm:"not null;default:0;column:multiple_face_count" json:"multiple_face_count"`
	MultiplePersonsCount    int `gorm:"not null;default:0;column:multiple_persons_count" json:"multiple_persons_count"`
	PhoneDetectedCount      int `gorm:"not null;default:0;column:phone_detected_count" json:"phone_detected_count"`
	AudioViolationCount     int `gorm:"not null;default:0;column:audio_violation_count" json:"audio_violation_count"`
	TabSwitchCount          int `gorm:"not null;default:0;column:tab_switch_count" json:"tab_switch_count"`
	FullscreenExitCount     int `gorm:"not null;default:0;column:fullscreen_exit_count" json:"fullscreen_exit_count"`
	CopyPasteCount          int `gorm:"not null;default:0;column:copy_paste_count" json:"copy_paste_count"`
	SuspiciousBehaviorCount int `gorm:"not null;default:0;column:suspicious_behavior_count" json:"suspicious_behavior_count"`
	NotesDetectedCount      int `gorm:"not null;default:0;column:notes_detected_count" json:"notes_detected_count"`
	IdentityMismatchCount   int `gorm:"not null;default:0;column:identity_mismatch_count" json:"identity_mismatch_count"`
	ManualFlagCount         int `gorm:"not null;default:0;column:manual_flag_count" json:"manual_flag_count"`

	ViolationSummaryRiskScore float64 `gorm:"type:numeric(4,3);not null;default:0;column:violation_summary_risk_score" json:"violation_summary_risk_score"`

	// Proctor override, independent of automatic counters
	ViolationSummaryProctorFlag bool    `gorm:"not null;default:false;column:violation_summary_proctor_flag" json:"violation_summary_proctor_flag"`
	ViolationSummaryProctorNote *string `gorm:"type:text;column:violation_summary_proctor_note" json:"violation_summary_proctor_note,omitempty"`

	ViolationSummaryVersion int64 `gorm:"not null;default:1;column:violation_summary_version" json:"-"`

	ViolationSummaryLastUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:violation_summary_last_updated_at" json:"violation_summary_last_updated_at"`
	ViolationSummaryCreatedAt     time.Time `gorm:"not null;autoCreateTime;column:violation_summary_created_at" json:"violation_summary_created_at"`
}

func (m *ViolationSummaryModel) BeforeCreate(tx *gorm.DB) error {
	if m.ViolationSummaryID == uuid.Nil {
		m.ViolationSummaryID = uuid.New()
	}
	if m.ViolationSummaryVersion == 0 {
		m.ViolationSummaryVersion = 1
	}
	return nil
}

// counterRef: pointer to the counter cell for an event type. No default
// branch; an event type outside the enum is an error, never a silent drop.
func (m *ViolationSummaryModel) counterRef(t evmodel.ProctoringEventType) (*int, error) {
	switch t {
	case evmodel.EventFaceAway:
		return &m.FaceAwayCount, nil
	case evmodel.EventGazeAway:
		return &m.GazeAwayCount, nil
	case evmodel.EventMouthOpen:
		return &m.MouthOpenCount, nil
	case evmodel.EventMultipleFace:
		return &m.MultipleFaceCount, nil
	case evmodel.EventMultiplePersons:
		return &m.MultiplePersonsCount, nil
	case evmodel.EventPhoneDetected:
		return &m.PhoneDetectedCount, nil
	case evmodel.EventAudioViolation:
		return &m.AudioViolationCount, nil
	case evmodel.EventTabSwitch:
		return &m.TabSwitchCount, nil
	case evmodel.EventFullscreenExit:
		return &m.FullscreenExitCount, nil
	case evmodel.EventCopyPaste:
		return &m.CopyPasteCount, nil
	case evmodel.EventSuspiciousBehavior:
		return &m.SuspiciousBehaviorCount, nil
	case evmodel.EventNotesDetected:
		return &m.NotesDetectedCount, nil
	case evmodel.EventIdentityMismatch:
		return &m.IdentityMismatchCount, nil
	case evmodel.EventManualFlag:
		return &m.ManualFlagCount, nil
	}
	return nil, fmt.Errorf("no counter mapped for event type %q", t)
}

// Increment bumps exactly one counter for the given event type.
func (m *ViolationSummaryModel) Increment(t evmodel.ProctoringEventType) error {
	ref, err := m.counterRef(t)
	if err != nil {
		return err
	}
	*ref++
	return nil
}

// Count returns the counter value for an event type.
func (m *ViolationSummaryModel) Count(t evmodel.ProctoringEventType) (int, error) {
	ref, err := m.counterRef(t)
	if err != nil {
		return 0, err
	}
	return *ref, nil
}

// Counters: dense snapshot over the whole enum.
func (m *ViolationSummaryModel) Counters() map[evmodel.ProctoringEventType]int {
	out := make(map[evmodel.ProctoringEventType]int, len(evmodel.AllEventTypes))
	for _, t := range evmodel.AllEventTypes {
		ref, _ := m.counterRef(t)
		out[t] = *ref
	}
	return out
}

func (ViolationSummaryModel) TableName() string {
	return "violation_summaries"
}

// file: internals/features/proctoring/events/model/proctoring_event_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =========================================================
   PROCTORING EVENT (append-only log)
   Immutable once written; the sole source of truth for the
   violation aggregator.
========================================================= */

type ProctoringEventType string

const (
	EventFaceAway           ProctoringEventType = "FACE_AWAY"
	EventGazeAway           ProctoringEventType = "GAZE_AWAY"
	EventMouthOpen          ProctoringEventType = "MOUTH_OPEN"
	EventMultipleFace       ProctoringEventType = "MULTIPLE_FACE"
	EventMultiplePersons    ProctoringEventType = "MULTIPLE_PERSONS"
	EventPhoneDetected      ProctoringEventType = "PHONE_DETECTED"
	EventAudioViolation     ProctoringEventType = "AUDIO_VIOLATION"
	EventTabSwitch          ProctoringEventType = "TAB_SWITCH"
	EventFullscreenExit     ProctoringEventType = "FULLSCREEN_EXIT"
	EventCopyPaste          ProctoringEventType = "COPY_PASTE"
	EventSuspiciousBehavior ProctoringEventType = "SUSPICIOUS_BEHAVIOR"
	EventNotesDetected      ProctoringEventType = "NOTES_DETECTED"
	EventIdentityMismatch   ProctoringEventType = "IDENTITY_MISMATCH"
	EventManualFlag         ProctoringEventType = "MANUAL_FLAG"
)

// AllEventTypes: the whole enum. The aggregator's counter mapping and the
// risk weight table are both checked against this list, so a new type added
// here without a counter fails loudly instead of being silently dropped.
var AllEventTypes = []ProctoringEventType{
	EventFaceAway,
	EventGazeAway,
	EventMouthOpen,
	EventMultipleFace,
	EventMultiplePersons,
	EventPhoneDetected,
	EventAudioViolation,
	EventTabSwitch,
	EventFullscreenExit,
	EventCopyPaste,
	EventSuspiciousBehavior,
	EventNotesDetected,
	EventIdentityMismatch,
	EventManualFlag,
}

func (t ProctoringEventType) Valid() bool {
	for _, k := range AllEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

type EventSeverity string

const (
	SeverityLow      EventSeverity = "LOW"
	SeverityMedium   EventSeverity = "MEDIUM"
	SeverityHigh     EventSeverity = "HIGH"
	SeverityCritical EventSeverity = "CRITICAL"
)

type EventSource string

const (
	SourceAI      EventSource = "AI"
	SourceBrowser EventSource = "BROWSER"
	SourceSystem  EventSource = "SYSTEM"
	SourceManual  EventSource = "MANUAL"
)

type ProctoringEventModel struct {
	ProctoringEventID uuid.UUID `gorm:"type:uuid;primaryKey;column:proctoring_event_id" json:"proctoring_event_id"`

	ProctoringEventSessionID uuid.UUID `gorm:"type:uuid;not null;index;column:proctoring_event_session_id" json:"proctoring_event_session_id"`

	ProctoringEventType     ProctoringEventType `gorm:"type:varchar(30);not null;column:proctoring_event_type" json:"proctoring_event_type"`
	ProctoringEventSeverity EventSeverity       `gorm:"type:varchar(10);not null;column:proctoring_event_severity" json:"proctoring_event_severity"`
	ProctoringEventSource   EventSource         `gorm:"type:varchar(10);not null;column:proctoring_event_source" json:"proctoring_event_source"`

	// Classifier confidence, 0.0–1.0; null for browser/manual events
	ProctoringEventConfidence *float64 `gorm:"type:numeric(4,3);column:proctoring_event_confidence" json:"proctoring_event_confidence,omitempty"`

	// Reference into the durable media store (written by AI workers)
	ProctoringEventSnapshotRef *string `gorm:"type:varchar(255);column:proctoring_event_snapshot_ref" json:"proctoring_event_snapshot_ref,omitempty"`

	ProctoringEventMetadata datatypes.JSON `gorm:"column:proctoring_event_metadata" json:"proctoring_event_metadata,omitempty"`

	ProctoringEventCreatedAt time.Time `gorm:"not null;autoCreateTime;column:proctoring_event_created_at" json:"proctoring_event_created_at"`
}

func (m *ProctoringEventModel) BeforeCreate(tx *gorm.DB) error {
	if m.ProctoringEventID == uuid.Nil {
		m.ProctoringEventID = uuid.New()
	}
	return nil
}

func (ProctoringEventModel) TableName() string {
	return "proctoring_events"
}

// DefaultSeverity: used when the producer does not supply one.
func DefaultSeverity(t ProctoringEventType) EventSeverity {
	switch t {
	case EventPhoneDetected, EventIdentityMismatch, EventMultiplePersons:
		return SeverityCritical
	case EventMultipleFace, EventNotesDetected, EventManualFlag:
		return SeverityHigh
	case EventAudioViolation, EventSuspiciousBehavior, EventCopyPaste, EventFullscreenExit:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// file: internals/features/proctoring/events/model/behavior_event_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =========================================================
   BEHAVIOR EVENT (raw browser telemetry)
   Persisted verbatim before rule evaluation; append-only.
========================================================= */

type BehaviorEventType string

const (
	BehaviorTabSwitch      BehaviorEventType = "TAB_SWITCH"
	BehaviorFocusLost      BehaviorEventType = "FOCUS_LOST"
	BehaviorFullscreenExit BehaviorEventType = "FULLSCREEN_EXIT"
	BehaviorCopyAttempt    BehaviorEventType = "COPY_ATTEMPT"
	BehaviorPasteAttempt   BehaviorEventType = "PASTE_ATTEMPT"
	BehaviorRightClick     BehaviorEventType = "RIGHT_CLICK"
	BehaviorDevtoolsOpen   BehaviorEventType = "DEVTOOLS_OPEN"
	BehaviorWindowResize   BehaviorEventType = "WINDOW_RESIZE"
)

type BehaviorEventModel struct {
	BehaviorEventID uuid.UUID `gorm:"type:uuid;primaryKey;column:behavior_event_id" json:"behavior_event_id"`

	BehaviorEventSessionID uuid.UUID `gorm:"type:uuid;not null;index:idx_behavior_session_time;column:behavior_event_session_id" json:"behavior_event_session_id"`

	BehaviorEventType BehaviorEventType `gorm:"type:varchar(30);not null;column:behavior_event_type" json:"behavior_event_type"`

	// Client-reported time; falls back to receipt time when malformed
	BehaviorEventOccurredAt time.Time `gorm:"not null;index:idx_behavior_session_time;column:behavior_event_occurred_at" json:"behavior_event_occurred_at"`

	BehaviorEventPayload datatypes.JSON `gorm:"column:behavior_event_payload" json:"behavior_event_payload,omitempty"`

	BehaviorEventCreatedAt time.Time `gorm:"not null;autoCreateTime;column:behavior_event_created_at" json:"behavior_event_created_at"`
}

func (m *BehaviorEventModel) BeforeCreate(tx *gorm.DB) error {
	if m.BehaviorEventID == uuid.Nil {
		m.BehaviorEventID = uuid.New()
	}
	return nil
}

func (BehaviorEventModel) TableName() string {
	return "behavior_events"
}

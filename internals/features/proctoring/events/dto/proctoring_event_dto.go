// file: internals/features/proctoring/events/dto/proctoring_event_dto.go
package dto

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"examproctor_backend/internals/features/proctoring/events/model"
)

// RecordViolationRequest: classification result posted by an AI worker (or
// a manual proctor flag via the dedicated endpoint).
type RecordViolationRequest struct {
	SessionID   uuid.UUID                 `json:"session_id" validate:"required"`
	EventType   model.ProctoringEventType `json:"event_type" validate:"required"`
	Severity    model.EventSeverity       `json:"severity,omitempty"`
	Source      model.EventSource         `json:"source,omitempty"`
	Confidence  *float64                  `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	SnapshotRef *string                   `json:"snapshot_ref,omitempty" validate:"omitempty,max=255"`
	Metadata    datatypes.JSON            `json:"metadata,omitempty"`
}

type ManualFlagRequest struct {
	Flagged bool   `json:"flagged"`
	Note    string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// file: internals/features/sessions/sessions/dto/session_dto.go
package dto

import (
	"github.com/google/uuid"
)

type StartSessionRequest struct {
	EnrollmentID uuid.UUID `json:"enrollment_id" validate:"required"`
}

type SuspendSessionRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

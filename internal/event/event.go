package event

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is carried on every envelope so downstream consumers can
// evolve; the envelope itself is append-only.
const SchemaVersion = 1

const (
	TypeAppointmentCreated     = "APPOINTMENT_CREATED"
	TypeAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	TypeAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	TypeAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	TypeAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	TypeAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

// Envelope is the immutable domain event generated exactly once per accepted
// appointment state transition. It is written to the outbox inside the same
// transaction as the transition, so no envelope ever describes a state that
// did not commit.
type Envelope struct {
	Type           string    `json:"type"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	SchemaVersion  int       `json:"schema_version"`
}

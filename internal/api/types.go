package api

import (
	"time"

	"github.com/google/uuid"
)

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AvailabilityResponse struct {
	ProfessionalID uuid.UUID      `json:"professional_id"`
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	Slots          []SlotResponse `json:"slots"`
}

type ReserveRequest struct {
	ProfessionalID string    `json:"professional_id"`
	PatientID      string    `json:"patient_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

type TransitionRequest struct {
	TargetStatus string `json:"target_status"`
	Version      int64  `json:"version"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProfessionalID uuid.UUID  `json:"professional_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	Status         string     `json:"status"`
	Version        int64      `json:"version"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type TemplateRequest struct {
	Weekdays        []string `json:"weekdays"` // e.g. ["monday", "tuesday"]
	DayStart        string   `json:"day_start"`
	DayEnd          string   `json:"day_end"` // "HH:MM" local clock
	SlotDurationMin int      `json:"slot_duration_min"`
	GapMin          int      `json:"gap_min"`
	BufferBeforeMin int      `json:"buffer_before_min"`
	BufferAfterMin  int      `json:"buffer_after_min"`
	Timezone        string   `json:"timezone"`
}

type TemplateResponse struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	EffectiveFrom  time.Time `json:"effective_from"`
}

type ExceptionRequest struct {
	Kind   string    `json:"kind"` // "block" or "add"
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

type ExceptionResponse struct {
	ID   uuid.UUID `json:"id"`
	Kind string    `json:"kind"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

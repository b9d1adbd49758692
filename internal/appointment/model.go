package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling-core/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Blocks reports whether an appointment in this status holds its time span
// against new reservations.
func (s Status) Blocks() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ParseStatus maps a wire string onto a known status.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return Status(raw), true
	}
	return "", false
}

// Appointment is the durable unit of truth for a booked slot. Rows are never
// deleted; cancellation is a status transition so the audit trail survives.
// Version is the optimistic concurrency token, bumped on every transition.
type Appointment struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	PatientID      uuid.UUID
	Start          time.Time
	End            time.Time
	Status         Status
	Version        int64
	IdempotencyKey *string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Appointment) Interval() schedule.Interval {
	return schedule.Interval{Start: a.Start, End: a.End}
}

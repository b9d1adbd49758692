package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling-core/internal/event"
	"github.com/medbook/scheduling-core/internal/schedule"
)

var (
	ErrTemplateNotFound    = errors.New("availability template not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrIdempotencyConflict means an appointment with the same idempotency
	// key landed first; the caller should fetch and return the original.
	ErrIdempotencyConflict = errors.New("idempotency key already used")
)

// Repository contains all storage interactions needed by the service.
// CreateAppointment and TransitionStatus persist the appointment change and
// its outbox envelope in one atomic unit.
type Repository interface {
	GetTemplate(ctx context.Context, professionalID uuid.UUID) (*schedule.Template, error)
	SaveTemplate(ctx context.Context, tpl *schedule.Template) error
	ListExceptions(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]schedule.Exception, error)
	CreateException(ctx context.Context, ex *schedule.Exception) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByIdempotencyKey(ctx context.Context, key string) (*Appointment, error)

	// ListBlocking returns appointments whose status still holds their span
	// (pending or confirmed) overlapping [from, to).
	ListBlocking(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	CreateAppointment(ctx context.Context, appt *Appointment, env event.Envelope) (*Appointment, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to Status, env event.Envelope) (*Appointment, error)

	// Expiry worker
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)
}

package appointment

import (
	"errors"
	"time"
)

var (
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrCancellationWindow    = errors.New("cancellation window has closed")
	ErrAppointmentInProgress = errors.New("appointment has not ended yet")
	ErrStaleVersion          = errors.New("appointment was modified concurrently")
)

// validTransitions is the static edge set of the appointment lifecycle.
// Rescheduling is deliberately absent: it is modelled as cancel + reserve,
// never an in-place time mutation.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCancelled: true,
		StatusCompleted: true,
		StatusNoShow:    true,
	},
}

// CanTransition reports whether the edge exists, ignoring time guards.
func CanTransition(from, to Status) bool {
	return validTransitions[from][to]
}

// CheckTransition applies the full guard set for a caller-requested
// transition at the given instant:
//
//   - the edge must exist in the lifecycle graph,
//   - cancellation requires now < start - cancelWindow,
//   - completed / no-show require the appointment to have ended.
func CheckTransition(a *Appointment, target Status, now time.Time, cancelWindow time.Duration) error {
	if !CanTransition(a.Status, target) {
		return ErrInvalidTransition
	}

	switch target {
	case StatusCancelled:
		if !now.Before(a.Start.Add(-cancelWindow)) {
			return ErrCancellationWindow
		}
	case StatusCompleted, StatusNoShow:
		if now.Before(a.End) {
			return ErrAppointmentInProgress
		}
	}

	return nil
}

package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionTable(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusNoShow, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusNoShow, StatusConfirmed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCheckTransitionCancellationWindow(t *testing.T) {
	window := 24 * time.Hour
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	early := &Appointment{
		Status: StatusConfirmed,
		Start:  now.Add(48 * time.Hour),
		End:    now.Add(48*time.Hour + 30*time.Minute),
	}
	require.NoError(t, CheckTransition(early, StatusCancelled, now, window))

	late := &Appointment{
		Status: StatusConfirmed,
		Start:  now.Add(2 * time.Hour),
		End:    now.Add(2*time.Hour + 30*time.Minute),
	}
	require.ErrorIs(t, CheckTransition(late, StatusCancelled, now, window), ErrCancellationWindow)

	// Exactly on the boundary counts as too late.
	boundary := &Appointment{
		Status: StatusConfirmed,
		Start:  now.Add(window),
		End:    now.Add(window + 30*time.Minute),
	}
	require.ErrorIs(t, CheckTransition(boundary, StatusCancelled, now, window), ErrCancellationWindow)
}

func TestCheckTransitionCompletionRequiresEnd(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	running := &Appointment{
		Status: StatusConfirmed,
		Start:  now.Add(-20 * time.Minute),
		End:    now.Add(10 * time.Minute),
	}
	require.ErrorIs(t, CheckTransition(running, StatusCompleted, now, time.Hour), ErrAppointmentInProgress)
	require.ErrorIs(t, CheckTransition(running, StatusNoShow, now, time.Hour), ErrAppointmentInProgress)

	ended := &Appointment{
		Status: StatusConfirmed,
		Start:  now.Add(-time.Hour),
		End:    now.Add(-30 * time.Minute),
	}
	require.NoError(t, CheckTransition(ended, StatusCompleted, now, time.Hour))
	require.NoError(t, CheckTransition(ended, StatusNoShow, now, time.Hour))
}

func TestCheckTransitionInvalidEdge(t *testing.T) {
	now := time.Now()
	appt := &Appointment{Status: StatusCancelled, Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
	require.ErrorIs(t, CheckTransition(appt, StatusConfirmed, now, time.Hour), ErrInvalidTransition)
}

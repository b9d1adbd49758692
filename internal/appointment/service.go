package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/scheduling-core/internal/config"
	"github.com/medbook/scheduling-core/internal/event"
	"github.com/medbook/scheduling-core/internal/metrics"
	redisclient "github.com/medbook/scheduling-core/internal/redis"
	"github.com/medbook/scheduling-core/internal/schedule"
)

var (
	ErrSlotTaken           = errors.New("slot is no longer free")
	ErrProfessionalBusy    = errors.New("professional calendar is busy, please retry")
	ErrSlotNotCandidate    = errors.New("requested slot is not a bookable candidate")
	ErrInvalidRequest      = errors.New("invalid reservation request")
	ErrIdempotencyMismatch = errors.New("idempotency key was already used for a different slot")
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	logger  zerolog.Logger
	metrics *metrics.SchedulingMetrics

	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger, m *metrics.SchedulingMetrics) *Service {
	return &Service{
		repo:    repo,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// ReserveRequest is a client's attempt to book one concrete slot. The
// IdempotencyKey is optional; a retried request carrying the same key and
// slot returns the original appointment instead of creating a duplicate.
type ReserveRequest struct {
	ProfessionalID uuid.UUID
	PatientID      uuid.UUID
	Start          time.Time
	End            time.Time
	IdempotencyKey string
}

func (r ReserveRequest) validate() error {
	if r.ProfessionalID == uuid.Nil || r.PatientID == uuid.Nil {
		return ErrInvalidRequest
	}
	if r.Start.IsZero() || r.End.IsZero() || !r.Start.Before(r.End) {
		return ErrInvalidRequest
	}
	return nil
}

// Availability expands the professional's rules over [from, to) and returns
// the currently free slots. Slots are derived on every call and never stored,
// so the result can go stale the moment a concurrent reservation commits;
// Reserve re-validates under the lock.
func (s *Service) Availability(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]schedule.Slot, error) {
	if err := schedule.ValidateRange(from, to, s.cfg.MaxRange); err != nil {
		return nil, err
	}

	slots, _, err := s.computeSlots(ctx, professionalID, from, to)
	if err != nil {
		return nil, err
	}

	return schedule.FreeSlots(slots), nil
}

// Reserve atomically turns a free slot into an appointment. The per-
// professional lock plus the in-lock recomputation guarantee that two
// concurrent attempts for overlapping slots can never both succeed; the
// database exclusion constraint is the final backstop.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	appt, err := s.reserve(ctx, req)
	s.metrics.ObserveReservation(reserveOutcome(err))
	return appt, err
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if original, err := s.replayedReservation(ctx, req); err != nil || original != nil {
			return original, err
		}
	}

	var created *Appointment

	err := s.locker.WithProfessionalLock(ctx, req.ProfessionalID, func(lockCtx context.Context) error {
		tpl, err := s.repo.GetTemplate(lockCtx, req.ProfessionalID)
		if err != nil {
			return err
		}

		// Fresh re-validation inside the critical section: the slot the
		// client picked from a stale listing must still be a generated,
		// free candidate right now.
		from, to, err := reservationWindow(*tpl, req.Start)
		if err != nil {
			return err
		}

		slots, _, err := s.computeSlotsWithTemplate(lockCtx, *tpl, req.ProfessionalID, from, to)
		if err != nil {
			return err
		}

		slot, ok := findSlot(slots, req.Start, req.End)
		if !ok {
			return ErrSlotNotCandidate
		}
		if !slot.Free {
			return ErrSlotTaken
		}

		appt := &Appointment{
			ID:             uuid.New(),
			ProfessionalID: req.ProfessionalID,
			PatientID:      req.PatientID,
			Start:          req.Start,
			End:            req.End,
			Status:         StatusConfirmed,
			Version:        0,
		}
		if !s.cfg.AutoConfirm {
			appt.Status = StatusPending
			expires := s.now().Add(s.cfg.PendingTTL)
			appt.ExpiresAt = &expires
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			appt.IdempotencyKey = &key
		}

		env := event.Envelope{
			Type:           event.TypeAppointmentCreated,
			AppointmentID:  appt.ID,
			ProfessionalID: appt.ProfessionalID,
			PatientID:      appt.PatientID,
			Start:          appt.Start,
			End:            appt.End,
			NewStatus:      string(appt.Status),
			OccurredAt:     s.now().UTC(),
		}

		created, err = s.repo.CreateAppointment(lockCtx, appt, env)
		return err
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrProfessionalBusy
		}
		if errors.Is(err, ErrIdempotencyConflict) && req.IdempotencyKey != "" {
			// A concurrent retry with the same key won the insert.
			if original, replayErr := s.replayedReservation(ctx, req); replayErr == nil && original != nil {
				return original, nil
			}
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("professional_id", created.ProfessionalID.String()).
		Time("start", created.Start).
		Str("status", string(created.Status)).
		Msg("slot reserved")

	return created, nil
}

// replayedReservation returns the original appointment for a repeated
// idempotency key, or nil when the key is unused.
func (s *Service) replayedReservation(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	original, err := s.repo.GetAppointmentByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if original.ProfessionalID != req.ProfessionalID || !original.Start.Equal(req.Start) || !original.End.Equal(req.End) {
		return nil, ErrIdempotencyMismatch
	}
	return original, nil
}

// Transition applies one state machine edge with optimistic concurrency. The
// caller's version must match the stored one; on success the version
// increments and exactly one domain event is generated.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, version int64, target Status) (*Appointment, error) {
	appt, err := s.transition(ctx, id, version, target)
	s.metrics.ObserveTransition(string(target), transitionOutcome(err))
	return appt, err
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, version int64, target Status) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, ErrStaleVersion
	}

	if err := CheckTransition(current, target, s.now(), s.cfg.CancellationWindow); err != nil {
		return nil, err
	}

	var updated *Appointment

	err = s.locker.WithProfessionalLock(ctx, current.ProfessionalID, func(lockCtx context.Context) error {
		env := transitionEnvelope(current, target, s.now())
		updated, err = s.repo.TransitionStatus(lockCtx, id, version, target, env)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrProfessionalBusy
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(current.Status)).
		Str("to", string(updated.Status)).
		Int64("version", updated.Version).
		Msg("appointment transitioned")

	return updated, nil
}

// ExpirePending sweeps pending reservations that outlived their TTL and
// cancels them so they stop blocking slots. This is a system cancellation:
// the caller-facing cancellation window does not apply.
func (s *Service) ExpirePending(ctx context.Context) error {
	now := s.now()
	candidates, err := s.repo.FindExpiredPending(ctx, now)
	if err != nil {
		return fmt.Errorf("find expired pending appointments: %w", err)
	}

	for _, appt := range candidates {
		env := transitionEnvelope(&appt, StatusCancelled, now)
		env.Reason = "pending_expired"

		_, err := s.repo.TransitionStatus(ctx, appt.ID, appt.Version, StatusCancelled, env)
		if err != nil {
			// A concurrent confirm or cancel got there first; nothing to do.
			if errors.Is(err, ErrStaleVersion) || errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			continue
		}

		s.logger.Info().Str("appointment_id", appt.ID.String()).Msg("pending appointment expired")
	}

	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// UpsertTemplate publishes a professional's weekly template. Revisions apply
// prospectively only: an existing template keeps governing time already
// offered, the new rules take effect from now.
func (s *Service) UpsertTemplate(ctx context.Context, tpl schedule.Template) (*schedule.Template, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetTemplate(ctx, tpl.ProfessionalID)
	switch {
	case err == nil:
		tpl.ID = existing.ID
		if tpl.EffectiveFrom.Before(s.now()) {
			tpl.EffectiveFrom = s.now()
		}
	case errors.Is(err, ErrTemplateNotFound):
		// first publication applies from the beginning of time
	default:
		return nil, err
	}

	if err := s.repo.SaveTemplate(ctx, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *Service) AddException(ctx context.Context, ex schedule.Exception) (*schedule.Exception, error) {
	if err := ex.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateException(ctx, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

// Helpers

func (s *Service) computeSlots(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]schedule.Slot, *schedule.Template, error) {
	tpl, err := s.repo.GetTemplate(ctx, professionalID)
	if err != nil {
		return nil, nil, err
	}
	slots, tplCopy, err := s.computeSlotsWithTemplate(ctx, *tpl, professionalID, from, to)
	return slots, tplCopy, err
}

func (s *Service) computeSlotsWithTemplate(ctx context.Context, tpl schedule.Template, professionalID uuid.UUID, from, to time.Time) ([]schedule.Slot, *schedule.Template, error) {
	exceptions, err := s.repo.ListExceptions(ctx, professionalID, from, to)
	if err != nil {
		return nil, nil, err
	}

	intervals, err := schedule.Expand(tpl, exceptions, from, to)
	if err != nil {
		return nil, nil, err
	}

	// Pull appointments slightly wider than the window so buffer inflation
	// at the edges still sees its neighbours.
	slack := tpl.BufferBefore + tpl.BufferAfter + tpl.SlotDuration
	existing, err := s.repo.ListBlocking(ctx, professionalID, from.Add(-slack), to.Add(slack))
	if err != nil {
		return nil, nil, err
	}

	busy := make([]schedule.Interval, len(existing))
	for i := range existing {
		busy[i] = existing[i].Interval()
	}

	slots := schedule.Allocate(intervals, busy, tpl)
	return schedule.SlotsWithin(slots, from, to), &tpl, nil
}

// reservationWindow brackets the requested slot with a full local day on
// each side, enough for any daily template span or neighbouring exception to
// participate in the re-validation.
func reservationWindow(tpl schedule.Template, slotStart time.Time) (time.Time, time.Time, error) {
	loc, err := tpl.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	local := slotStart.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return dayStart.AddDate(0, 0, -1), dayStart.AddDate(0, 0, 2), nil
}

func findSlot(slots []schedule.Slot, start, end time.Time) (schedule.Slot, bool) {
	for _, s := range slots {
		if s.Start.Equal(start) && s.End.Equal(end) {
			return s, true
		}
	}
	return schedule.Slot{}, false
}

func transitionEnvelope(a *Appointment, target Status, occurredAt time.Time) event.Envelope {
	var eventType string
	switch target {
	case StatusConfirmed:
		eventType = event.TypeAppointmentConfirmed
	case StatusCancelled:
		eventType = event.TypeAppointmentCancelled
	case StatusCompleted:
		eventType = event.TypeAppointmentCompleted
	case StatusNoShow:
		eventType = event.TypeAppointmentNoShow
	}

	return event.Envelope{
		Type:           eventType,
		AppointmentID:  a.ID,
		ProfessionalID: a.ProfessionalID,
		PatientID:      a.PatientID,
		Start:          a.Start,
		End:            a.End,
		PreviousStatus: string(a.Status),
		NewStatus:      string(target),
		OccurredAt:     occurredAt.UTC(),
	}
}

func reserveOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotTaken):
		return "conflict"
	case errors.Is(err, ErrProfessionalBusy):
		return "busy"
	case errors.Is(err, ErrSlotNotCandidate), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrIdempotencyMismatch):
		return "validation"
	default:
		return "error"
	}
}

func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrStaleVersion):
		return "stale_version"
	case errors.Is(err, ErrCancellationWindow), errors.Is(err, ErrAppointmentInProgress):
		return "policy_violation"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}

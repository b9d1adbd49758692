package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling-core/internal/event"
	"github.com/medbook/scheduling-core/internal/schedule"
)

// MemoryRepository is an in-process Repository used by tests and local
// tooling. It enforces the same invariants the Postgres schema does: the
// overlap exclusion for blocking statuses, the unique idempotency key, and
// the version check on transitions. Generated envelopes are retained in
// insertion order for inspection.
type MemoryRepository struct {
	mu           sync.Mutex
	templates    map[uuid.UUID]schedule.Template
	exceptions   []schedule.Exception
	appointments map[uuid.UUID]Appointment
	Events       []event.Envelope
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		templates:    make(map[uuid.UUID]schedule.Template),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *MemoryRepository) GetTemplate(_ context.Context, professionalID uuid.UUID) (*schedule.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tpl, ok := r.templates[professionalID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &tpl, nil
}

func (r *MemoryRepository) SaveTemplate(_ context.Context, tpl *schedule.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	r.templates[tpl.ProfessionalID] = *tpl
	return nil
}

func (r *MemoryRepository) ListExceptions(_ context.Context, professionalID uuid.UUID, from, to time.Time) ([]schedule.Exception, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []schedule.Exception
	for _, ex := range r.exceptions {
		if ex.ProfessionalID == professionalID && ex.Start.Before(to) && ex.End.After(from) {
			out = append(out, ex)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *MemoryRepository) CreateException(_ context.Context, ex *schedule.Exception) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	ex.CreatedAt = time.Now()
	r.exceptions = append(r.exceptions, *ex)
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentByIdempotencyKey(_ context.Context, key string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appointments {
		if a.IdempotencyKey != nil && *a.IdempotencyKey == key {
			out := a
			return &out, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) ListBlocking(_ context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.ProfessionalID == professionalID && a.Status.Blocks() && a.Start.Before(to) && a.End.After(from) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.After(all[j].Start) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, appt *Appointment, env event.Envelope) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	for _, existing := range r.appointments {
		if appt.IdempotencyKey != nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *appt.IdempotencyKey {
			return nil, ErrIdempotencyConflict
		}
		if existing.ProfessionalID == appt.ProfessionalID && existing.Status.Blocks() &&
			existing.Interval().Overlaps(appt.Interval()) {
			return nil, ErrSlotTaken
		}
	}

	now := time.Now()
	stored := *appt
	stored.Version = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.appointments[stored.ID] = stored
	r.Events = append(r.Events, env)

	out := stored
	return &out, nil
}

func (r *MemoryRepository) TransitionStatus(_ context.Context, id uuid.UUID, expectedVersion int64, to Status, env event.Envelope) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Version != expectedVersion {
		return nil, ErrStaleVersion
	}

	a.Status = to
	a.Version++
	a.ExpiresAt = nil
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	r.Events = append(r.Events, env)

	out := a
	return &out, nil
}

func (r *MemoryRepository) FindExpiredPending(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusPending && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

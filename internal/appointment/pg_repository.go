package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/scheduling-core/internal/event"
	"github.com/medbook/scheduling-core/internal/schedule"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanTemplate(row pgx.Row) (*schedule.Template, error) {
	var t schedule.Template
	var weekdays int16
	var slotDurationSec, gapSec, bufBeforeSec, bufAfterSec int64

	err := row.Scan(
		&t.ID,
		&t.ProfessionalID,
		&weekdays,
		&t.DayStartMin,
		&t.DayEndMin,
		&slotDurationSec,
		&gapSec,
		&bufBeforeSec,
		&bufAfterSec,
		&t.Timezone,
		&t.EffectiveFrom,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Weekdays = schedule.Weekmask(weekdays)
	t.SlotDuration = time.Duration(slotDurationSec) * time.Second
	t.Gap = time.Duration(gapSec) * time.Second
	t.BufferBefore = time.Duration(bufBeforeSec) * time.Second
	t.BufferAfter = time.Duration(bufAfterSec) * time.Second
	return &t, nil
}

const appointmentColumns = `id, professional_id, patient_id, start_time, end_time, status, version, idempotency_key, expires_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var idemKey *string
	var expiresAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.ProfessionalID,
		&a.PatientID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Version,
		&idemKey,
		&expiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.IdempotencyKey = idemKey
	a.ExpiresAt = expiresAt
	return &a, nil
}

// Interface methods

func (r *PgRepository) GetTemplate(ctx context.Context, professionalID uuid.UUID) (*schedule.Template, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, professional_id, weekdays, day_start_min, day_end_min,
		       slot_duration_sec, gap_sec, buffer_before_sec, buffer_after_sec,
		       timezone, effective_from, created_at, updated_at
		FROM availability_templates
		WHERE professional_id = $1
	`, professionalID)
	return scanTemplate(row)
}

func (r *PgRepository) SaveTemplate(ctx context.Context, tpl *schedule.Template) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_templates
			(id, professional_id, weekdays, day_start_min, day_end_min,
			 slot_duration_sec, gap_sec, buffer_before_sec, buffer_after_sec,
			 timezone, effective_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (professional_id) DO UPDATE SET
			weekdays = EXCLUDED.weekdays,
			day_start_min = EXCLUDED.day_start_min,
			day_end_min = EXCLUDED.day_end_min,
			slot_duration_sec = EXCLUDED.slot_duration_sec,
			gap_sec = EXCLUDED.gap_sec,
			buffer_before_sec = EXCLUDED.buffer_before_sec,
			buffer_after_sec = EXCLUDED.buffer_after_sec,
			timezone = EXCLUDED.timezone,
			effective_from = EXCLUDED.effective_from,
			updated_at = now()
	`,
		tpl.ID, tpl.ProfessionalID, int16(tpl.Weekdays), tpl.DayStartMin, tpl.DayEndMin,
		int64(tpl.SlotDuration/time.Second), int64(tpl.Gap/time.Second),
		int64(tpl.BufferBefore/time.Second), int64(tpl.BufferAfter/time.Second),
		tpl.Timezone, tpl.EffectiveFrom,
	)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (r *PgRepository) ListExceptions(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]schedule.Exception, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, kind, start_time, end_time, reason, created_at
		FROM availability_exceptions
		WHERE professional_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time, id
	`, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Exception
	for rows.Next() {
		var ex schedule.Exception
		var kind string
		if err := rows.Scan(&ex.ID, &ex.ProfessionalID, &kind, &ex.Start, &ex.End, &ex.Reason, &ex.CreatedAt); err != nil {
			return nil, err
		}
		ex.Kind = schedule.ExceptionKind(kind)
		result = append(result, ex)
	}

	return result, rows.Err()
}

func (r *PgRepository) CreateException(ctx context.Context, ex *schedule.Exception) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_exceptions (id, professional_id, kind, start_time, end_time, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, ex.ID, ex.ProfessionalID, string(ex.Kind), ex.Start, ex.End, ex.Reason)
	if err != nil {
		return fmt.Errorf("create exception: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE idempotency_key = $1
	`, key)
	return scanAppointment(row)
}

func (r *PgRepository) ListBlocking(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time, id
	`, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC, id
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// CreateAppointment inserts the row and its outbox envelope in one
// transaction. The exclusion constraint on (professional_id, span) for
// blocking statuses backs up the in-lock overlap check, so even a lock
// failure cannot double-book.
func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment, env event.Envelope) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, professional_id, patient_id, start_time, end_time, status, version, idempotency_key, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.ProfessionalID, appt.PatientID, appt.Start, appt.End, appt.Status, appt.IdempotencyKey, appt.ExpiresAt)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgExclusionViolation:
				return nil, ErrSlotTaken
			case pgUniqueViolation:
				return nil, ErrIdempotencyConflict
			}
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := event.InsertTx(ctx, tx, env); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}

	return created, nil
}

// TransitionStatus performs the guarded optimistic update together with its
// outbox envelope. A version mismatch on an existing row maps to
// ErrStaleVersion.
func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to Status, env event.Envelope) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    version = version + 1,
		    expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+appointmentColumns+`
	`, id, expectedVersion, to)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			var exists bool
			if checkErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
				return nil, fmt.Errorf("check appointment exists: %w", checkErr)
			}
			if exists {
				return nil, ErrStaleVersion
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	if err := event.InsertTx(ctx, tx, env); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}

	return updated, nil
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		ORDER BY expires_at, id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTemplate  = errors.New("invalid availability template")
	ErrInvalidTimezone  = errors.New("unknown timezone")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrRangeTooLarge    = errors.New("date range exceeds the maximum window")
	ErrInvalidException = errors.New("invalid availability exception")
)

// Weekmask is a bitmask of working weekdays, bit n = time.Weekday(n).
type Weekmask uint8

func NewWeekmask(days ...time.Weekday) Weekmask {
	var m Weekmask
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

func (m Weekmask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

func (m Weekmask) IsEmpty() bool {
	return m == 0
}

// Template is a professional's recurring weekly availability rule. Edits apply
// prospectively only: a published template row is never rewritten in place for
// periods already booked against it, EffectiveFrom marks when a revision
// starts applying.
type Template struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	Weekdays       Weekmask
	DayStartMin    int // minutes from local midnight
	DayEndMin      int
	SlotDuration   time.Duration
	Gap            time.Duration
	BufferBefore   time.Duration
	BufferAfter    time.Duration
	Timezone       string
	EffectiveFrom  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t Template) Validate() error {
	if t.ProfessionalID == uuid.Nil {
		return ErrInvalidTemplate
	}
	if t.DayStartMin < 0 || t.DayEndMin > 24*60 || t.DayStartMin >= t.DayEndMin {
		return ErrInvalidTemplate
	}
	if t.SlotDuration <= 0 {
		return ErrInvalidTemplate
	}
	if t.Gap < 0 || t.BufferBefore < 0 || t.BufferAfter < 0 {
		return ErrInvalidTemplate
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		return ErrInvalidTimezone
	}
	return nil
}

// Location resolves the template timezone. Validate must have passed.
func (t Template) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	return loc, nil
}

type ExceptionKind string

const (
	ExceptionBlock ExceptionKind = "block"
	ExceptionAdd   ExceptionKind = "add"
)

// Exception is a dated override of the weekly template: a BLOCK removes the
// covered span from availability, an ADD contributes an extra working span.
// Exceptions always beat the template for overlapping time.
type Exception struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	Kind           ExceptionKind
	Start          time.Time
	End            time.Time
	Reason         string
	CreatedAt      time.Time
}

func (e Exception) Validate() error {
	if e.ProfessionalID == uuid.Nil {
		return ErrInvalidException
	}
	if e.Kind != ExceptionBlock && e.Kind != ExceptionAdd {
		return ErrInvalidException
	}
	if !e.Start.Before(e.End) {
		return ErrInvalidException
	}
	return nil
}

// ValidateRange checks the query window shared by availability queries and
// rule expansion. Unbounded expansion is disallowed, so to-from must not
// exceed max.
func ValidateRange(from, to time.Time, max time.Duration) error {
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return ErrInvalidRange
	}
	if to.Sub(from) > max {
		return ErrRangeTooLarge
	}
	return nil
}

package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func weekdayTemplate(professionalID uuid.UUID) Template {
	return Template{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		Weekdays:       NewWeekmask(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
		DayStartMin:    9 * 60,
		DayEndMin:      17 * 60,
		SlotDuration:   30 * time.Minute,
		Timezone:       "UTC",
	}
}

func TestExpandBlockSplitsWorkingDay(t *testing.T) {
	professionalID := uuid.New()
	tpl := weekdayTemplate(professionalID)

	// 2024-06-10 is a Monday.
	block := Exception{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		Kind:           ExceptionBlock,
		Start:          time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC),
	}

	from := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, []Exception{block}, from, to)
	require.NoError(t, err)

	// The working day is emitted whole, split around the block; the piece
	// past the window stays so slot grids anchor identically everywhere.
	want := []Interval{
		{
			Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			Start: time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC),
		},
	}
	assertIntervals(t, got, want)
}

func TestExpandDoesNotClipToMidGridWindow(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())

	// Query starting 15 minutes into the working day must not shift the
	// interval start off the 09:00 anchor.
	from := time.Date(2024, 6, 10, 9, 15, 0, 0, time.UTC)
	to := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, nil, from, to)
	require.NoError(t, err)

	want := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC),
	}}
	assertIntervals(t, got, want)
}

func TestExpandDSTTransitionDayKeepsWallClock(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.Weekdays = NewWeekmask(time.Sunday)
	tpl.Timezone = "Europe/Berlin"

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 2024-03-31 is the Sunday Berlin springs forward 02:00 -> 03:00.
	from := time.Date(2024, 3, 31, 0, 0, 0, 0, berlin)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, berlin)

	got, err := Expand(tpl, nil, from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Equal(t, 9, got[0].Start.In(berlin).Hour())
	require.Equal(t, 17, got[0].End.In(berlin).Hour())
	// 09:00 CEST (UTC+2 after the shift) is 07:00 UTC.
	require.Equal(t, time.Date(2024, 3, 31, 7, 0, 0, 0, time.UTC), got[0].Start.UTC())
}

func TestExpandSkipsNonWorkingDays(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())

	// Saturday + Sunday window.
	from := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, nil, from, to)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestExpandEmptyWeekmaskYieldsNothing(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.Weekdays = 0

	from := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, nil, from, to)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestExpandMergesOverlappingAdds(t *testing.T) {
	professionalID := uuid.New()
	tpl := weekdayTemplate(professionalID)

	// Two overlapping extra shifts on a Saturday.
	adds := []Exception{
		{
			ID: uuid.New(), ProfessionalID: professionalID, Kind: ExceptionAdd,
			Start: time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC),
		},
		{
			ID: uuid.New(), ProfessionalID: professionalID, Kind: ExceptionAdd,
			Start: time.Date(2024, 6, 8, 11, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 8, 14, 0, 0, 0, time.UTC),
		},
	}

	from := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, adds, from, to)
	require.NoError(t, err)

	want := []Interval{{
		Start: time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 8, 14, 0, 0, 0, time.UTC),
	}}
	assertIntervals(t, got, want)
}

func TestExpandBlockCancelsCoveredAdd(t *testing.T) {
	professionalID := uuid.New()
	tpl := weekdayTemplate(professionalID)
	// Saturday is not a working day, so only the exceptions are in play.

	exceptions := []Exception{
		{
			ID: uuid.New(), ProfessionalID: professionalID, Kind: ExceptionAdd,
			Start: time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC),
		},
		{
			ID: uuid.New(), ProfessionalID: professionalID, Kind: ExceptionBlock,
			Start: time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 8, 13, 0, 0, 0, time.UTC),
		},
	}

	from := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, exceptions, from, to)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestExpandIgnoresOtherProfessionalsExceptions(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())

	foreign := Exception{
		ID: uuid.New(), ProfessionalID: uuid.New(), Kind: ExceptionBlock,
		Start: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC),
	}

	from := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, []Exception{foreign}, from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExpandRespectsEffectiveFrom(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.EffectiveFrom = time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)

	from := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, nil, from, to)
	require.NoError(t, err)

	// Monday and Tuesday precede the revision, Wednesday and Thursday remain.
	require.Len(t, got, 2)
	require.Equal(t, time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC), got[0].Start)
}

func TestExpandTimezoneAware(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.Timezone = "America/Sao_Paulo"

	from := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC)

	got, err := Expand(tpl, nil, from, to)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	// 09:00 in Sao Paulo (UTC-3, no DST in June) is 12:00 UTC.
	require.Equal(t, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), got[0].Start.UTC())
}

func TestExpandDeterministic(t *testing.T) {
	professionalID := uuid.New()
	tpl := weekdayTemplate(professionalID)
	exceptions := []Exception{
		{
			ID: uuid.New(), ProfessionalID: professionalID, Kind: ExceptionBlock,
			Start: time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 11, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: uuid.New(), ProfessionalID: professionalID, Kind: ExceptionAdd,
			Start: time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC),
		},
	}

	from := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	first, err := Expand(tpl, exceptions, from, to)
	require.NoError(t, err)
	second, err := Expand(tpl, exceptions, from, to)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestValidateRange(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	max := 90 * 24 * time.Hour

	if err := ValidateRange(now, now.AddDate(0, 0, 7), max); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	if err := ValidateRange(now, now, max); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if err := ValidateRange(now.Add(time.Hour), now, max); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if err := ValidateRange(now, now.AddDate(0, 0, 91), max); err != ErrRangeTooLarge {
		t.Fatalf("expected ErrRangeTooLarge, got %v", err)
	}
}

func TestTemplateValidate(t *testing.T) {
	base := weekdayTemplate(uuid.New())

	tests := []struct {
		name   string
		mutate func(*Template)
		want   error
	}{
		{"valid", func(*Template) {}, nil},
		{"start after end", func(tpl *Template) { tpl.DayStartMin = 18 * 60 }, ErrInvalidTemplate},
		{"zero duration", func(tpl *Template) { tpl.SlotDuration = 0 }, ErrInvalidTemplate},
		{"negative gap", func(tpl *Template) { tpl.Gap = -time.Minute }, ErrInvalidTemplate},
		{"negative buffer", func(tpl *Template) { tpl.BufferBefore = -time.Minute }, ErrInvalidTemplate},
		{"bad timezone", func(tpl *Template) { tpl.Timezone = "Mars/Olympus" }, ErrInvalidTimezone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := base
			tt.mutate(&tpl)
			if tt.want == nil {
				require.NoError(t, tpl.Validate())
				return
			}
			require.ErrorIs(t, tpl.Validate(), tt.want)
		})
	}
}

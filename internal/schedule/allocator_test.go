package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAllocateSpecScenario(t *testing.T) {
	// Mon-Fri 09:00-17:00, 30-minute slots, no gap, UTC, with 12:00-13:00
	// blocked on Monday 2024-06-10. Querying 09:00-13:00 must yield
	// 09:00 .. 11:30 starts and nothing over the lunch block.
	professionalID := uuid.New()
	tpl := weekdayTemplate(professionalID)
	block := Exception{
		ID: uuid.New(), ProfessionalID: professionalID, Kind: ExceptionBlock,
		Start: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC),
	}

	from := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)

	intervals, err := Expand(tpl, []Exception{block}, from, to)
	require.NoError(t, err)

	slots := SlotsWithin(Allocate(intervals, nil, tpl), from, to)
	require.Len(t, slots, 6)

	for i, s := range slots {
		wantStart := from.Add(time.Duration(i) * 30 * time.Minute)
		require.True(t, s.Start.Equal(wantStart), "slot %d start %v, want %v", i, s.Start, wantStart)
		require.True(t, s.Free)
	}
	require.True(t, slots[5].End.Equal(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)))
}

func TestAllocateDropsTrailingRemainder(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.SlotDuration = 45 * time.Minute

	candidates := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
	}}

	slots := Allocate(candidates, nil, tpl)

	// 09:00-09:45 and 09:45-10:30 fit, the trailing 30 minutes do not.
	require.Len(t, slots, 2)
}

func TestAllocateStepsByDurationPlusGap(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.Gap = 15 * time.Minute

	candidates := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
	}}

	slots := Allocate(candidates, nil, tpl)

	require.Len(t, slots, 3)
	require.True(t, slots[1].Start.Equal(time.Date(2024, 6, 10, 9, 45, 0, 0, time.UTC)))
	require.True(t, slots[2].Start.Equal(time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC)))
}

func TestAllocateMarksBusyOverlaps(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())

	candidates := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
	}}
	busy := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC),
	}}

	slots := Allocate(candidates, busy, tpl)
	require.Len(t, slots, 4)

	free := []bool{true, false, true, true}
	for i, s := range slots {
		require.Equal(t, free[i], s.Free, "slot %d (%v)", i, s.Start)
	}
}

func TestAllocateBuffersAffectAdjacencyOnly(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.BufferBefore = 10 * time.Minute
	tpl.BufferAfter = 10 * time.Minute

	candidates := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
	}}
	busy := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC),
	}}

	slots := Allocate(candidates, busy, tpl)
	require.Len(t, slots, 4)

	// The buffers push the busy span into the neighbouring slots, so only the
	// first and last slots stay free, and the reported bounds are unchanged.
	free := []bool{true, false, false, true}
	for i, s := range slots {
		require.Equal(t, free[i], s.Free, "slot %d (%v)", i, s.Start)
		require.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
	}
}

func TestAllocateNoFreeSlotPairOverlaps(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	tpl.BufferBefore = 5 * time.Minute
	tpl.BufferAfter = 5 * time.Minute

	from := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	intervals, err := Expand(tpl, nil, from, to)
	require.NoError(t, err)

	busy := []Interval{{
		Start: time.Date(2024, 6, 11, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 11, 10, 30, 0, 0, time.UTC),
	}}

	free := FreeSlots(Allocate(intervals, busy, tpl))
	require.NotEmpty(t, free)

	for i := 0; i < len(free); i++ {
		for j := i + 1; j < len(free); j++ {
			require.False(t, free[i].Interval().Overlaps(free[j].Interval()),
				"slots %d and %d overlap", i, j)
		}
	}

	// No free slot may touch a booked appointment's buffer-inflated span.
	booked := busy[0].Inflate(tpl.BufferBefore, tpl.BufferAfter)
	for i, s := range free {
		require.False(t, s.Interval().Inflate(tpl.BufferBefore, tpl.BufferAfter).Overlaps(booked),
			"slot %d intersects the booked span", i)
	}
}

func TestSlotsWithinDropsStraddlers(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())

	candidates := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC),
	}}

	from := time.Date(2024, 6, 10, 9, 15, 0, 0, time.UTC)
	to := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)

	slots := SlotsWithin(Allocate(candidates, nil, tpl), from, to)

	// The 09:00 slot straddles from, the 10:30 grid continues past to; what
	// remains stays on the 09:00 anchor.
	require.Len(t, slots, 3)
	require.True(t, slots[0].Start.Equal(time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)))
	require.True(t, slots[2].End.Equal(time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)))
}

func TestAllocateDeterministic(t *testing.T) {
	tpl := weekdayTemplate(uuid.New())
	candidates := []Interval{{
		Start: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC),
	}}
	busy := []Interval{{
		Start: time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC),
	}}

	first := Allocate(candidates, busy, tpl)
	second := Allocate(candidates, busy, tpl)
	require.Equal(t, first, second)
}

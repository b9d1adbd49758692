package schedule

import "time"

// Slot is a derived candidate appointment interval. Slots are recomputed on
// every query and never persisted; Free is relative to the appointments the
// allocator was shown at computation time.
type Slot struct {
	Start time.Time
	End   time.Time
	Free  bool
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Allocate partitions the candidate intervals into fixed-duration slots
// stepped by duration+gap, dropping any trailing remainder shorter than the
// duration. A slot is free iff its buffer-inflated span does not intersect
// the buffer-inflated span of any busy interval. Buffers affect adjacency
// only: the reported Start/End stay the bare slot bounds.
func Allocate(candidates []Interval, busy []Interval, tpl Template) []Slot {
	step := tpl.SlotDuration + tpl.Gap
	if step <= 0 {
		return nil
	}

	inflated := make([]Interval, len(busy))
	for i, b := range busy {
		inflated[i] = b.Inflate(tpl.BufferBefore, tpl.BufferAfter)
	}

	var out []Slot
	for _, iv := range candidates {
		for start := iv.Start; !start.Add(tpl.SlotDuration).After(iv.End); start = start.Add(step) {
			slot := Slot{Start: start, End: start.Add(tpl.SlotDuration), Free: true}
			span := slot.Interval().Inflate(tpl.BufferBefore, tpl.BufferAfter)
			for _, b := range inflated {
				if span.Overlaps(b) {
					slot.Free = false
					break
				}
			}
			out = append(out, slot)
		}
	}

	return out
}

// SlotsWithin keeps the slots lying fully inside [from, to). Expand emits
// whole working intervals past the window's edges so the grid anchor never
// moves; this trims the resulting slots back to what the caller asked for.
func SlotsWithin(slots []Slot, from, to time.Time) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if !s.Start.Before(from) && !s.End.After(to) {
			out = append(out, s)
		}
	}
	return out
}

// FreeSlots filters an allocation down to the bookable slots.
func FreeSlots(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Free {
			out = append(out, s)
		}
	}
	return out
}

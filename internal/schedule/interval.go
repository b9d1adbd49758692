package schedule

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies fully inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Clip trims iv to the bounds [start, end), returning a zero Interval when
// nothing remains.
func (iv Interval) Clip(start, end time.Time) Interval {
	s, e := iv.Start, iv.End
	if s.Before(start) {
		s = start
	}
	if e.After(end) {
		e = end
	}
	if !s.Before(e) {
		return Interval{}
	}
	return Interval{Start: s, End: e}
}

// Inflate widens the interval by before/after padding.
func (iv Interval) Inflate(before, after time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-before), End: iv.End.Add(after)}
}

// Normalize sorts intervals by start time and merges any that touch or
// overlap, dropping empty ones. The input slice is not modified.
func Normalize(intervals []Interval) []Interval {
	in := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Start.Before(iv.End) {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}

	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := make([]Interval, 0, len(in))
	cur := in[0]
	for _, iv := range in[1:] {
		if iv.Start.After(cur.End) {
			out = append(out, cur)
			cur = iv
			continue
		}
		if iv.End.After(cur.End) {
			cur.End = iv.End
		}
	}
	out = append(out, cur)

	return out
}

// Subtract removes every span in blocks from the normalized base set,
// splitting an interval when a block falls strictly inside it. Both inputs
// must already be normalized.
func Subtract(base, blocks []Interval) []Interval {
	if len(blocks) == 0 {
		return base
	}

	out := make([]Interval, 0, len(base))
	for _, iv := range base {
		remaining := []Interval{iv}
		for _, b := range blocks {
			if b.Start.After(iv.End) {
				break
			}
			next := remaining[:0:0]
			for _, r := range remaining {
				if !r.Overlaps(b) {
					next = append(next, r)
					continue
				}
				if r.Start.Before(b.Start) {
					next = append(next, Interval{Start: r.Start, End: b.Start})
				}
				if b.End.Before(r.End) {
					next = append(next, Interval{Start: b.End, End: r.End})
				}
			}
			remaining = next
		}
		out = append(out, remaining...)
	}

	return out
}

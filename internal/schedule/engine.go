package schedule

import (
	"time"
)

// Expand turns a weekly template plus dated exceptions into the disjoint,
// time-ordered working intervals touching [from, to). It is a pure function:
// identical inputs always produce the identical interval sequence, and no
// future calendar is ever materialized beyond the days the window touches.
//
// Intervals are emitted whole, never clipped to the window: the slot grid
// cut from them must anchor at the rule's own start so that every caller,
// whatever window it asked with, sees the same grid. Intervals at the
// window's edges may therefore extend past from or to; callers discard the
// slots that fall outside.
//
// ADD exceptions union with the template (overlapping ADDs merge), BLOCK
// exceptions are subtracted last, so a BLOCK fully covering an ADD cancels
// it. A template with no working days yields an empty result, not an error.
func Expand(tpl Template, exceptions []Exception, from, to time.Time) ([]Interval, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}

	loc, err := tpl.Location()
	if err != nil {
		return nil, err
	}

	base := expandTemplate(tpl, loc, from, to)
	window := Interval{Start: from, End: to}

	var adds, blocks []Interval
	for _, ex := range exceptions {
		if ex.ProfessionalID != tpl.ProfessionalID {
			continue
		}
		span := Interval{Start: ex.Start, End: ex.End}
		if !span.Overlaps(window) {
			continue
		}
		switch ex.Kind {
		case ExceptionAdd:
			adds = append(adds, span)
		case ExceptionBlock:
			blocks = append(blocks, span)
		}
	}

	working := Normalize(append(base, adds...))
	return Subtract(working, Normalize(blocks)), nil
}

// expandTemplate walks each local calendar day touched by [from, to) and
// emits the template's full daily span for working weekdays. Day bounds are
// built as local wall-clock times, so a span stays 09:00-17:00 on DST
// transition days instead of drifting by the shift.
func expandTemplate(tpl Template, loc *time.Location, from, to time.Time) []Interval {
	if tpl.Weekdays.IsEmpty() {
		return nil
	}

	var out []Interval
	window := Interval{Start: from, End: to}

	day := startOfDay(from.In(loc))
	for day.Before(to) {
		next := day.AddDate(0, 0, 1)

		if tpl.Weekdays.Has(day.Weekday()) && !beforeEffective(tpl, day) {
			iv := Interval{
				Start: clockTime(day, tpl.DayStartMin),
				End:   clockTime(day, tpl.DayEndMin),
			}
			if iv.Overlaps(window) {
				out = append(out, iv)
			}
		}

		day = next
	}

	return out
}

// clockTime returns the given wall-clock minute of day's local date.
func clockTime(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

func beforeEffective(tpl Template, day time.Time) bool {
	return !tpl.EffectiveFrom.IsZero() && day.Before(tpl.EffectiveFrom)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

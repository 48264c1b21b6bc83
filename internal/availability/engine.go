// Package availability computes, for one staff member and one calendar day,
// the free time ranges and the bookable slots cut from them. The engine is a
// pure function of its inputs: it never reads storage and never locks, so
// the read path can be called speculatively and concurrently.
package availability

import (
	"fmt"
	"time"

	"github.com/irodionov/slotbook/internal/interval"
	"github.com/irodionov/slotbook/internal/model"
)

// Engine slices free time into grid-aligned slots. loc fixes the wall-clock
// interpretation of working-hour templates, step fixes the slot grid.
type Engine struct {
	loc  *time.Location
	step time.Duration
}

func New(loc *time.Location, step time.Duration) (*Engine, error) {
	if loc == nil {
		return nil, fmt.Errorf("availability: location is required")
	}
	if step <= 0 {
		return nil, fmt.Errorf("availability: step must be positive, got %s", step)
	}
	return &Engine{loc: loc, step: step}, nil
}

func (e *Engine) Step() time.Duration { return e.step }

// DayInput bundles everything the engine needs for one (staff, day) pair.
// Now cuts off ranges in the past; a zero Now disables the cut. HoldsAsOf is
// the instant hold expiry is judged against; when zero, every active hold
// still blocks, which is what callers want when the store already filtered on
// expires_at. The two instants are distinct because the read path shifts Now
// forward by the lead time while expiry remains a real-clock question: a hold
// lapsing inside the lead window has not lapsed yet.
type DayInput struct {
	WorkingHours []model.WorkingHours
	TimeOff      []model.TimeOff
	Bookings     []model.Booking
	Now          time.Time
	HoldsAsOf    time.Time
}

// WorkingRangesOn expands the weekly template into absolute ranges for the
// given calendar day: weekday match, overnight wrap, break subtraction,
// merge. Exposed separately because booking validation checks a candidate
// interval against exactly these ranges.
func (e *Engine) WorkingRangesOn(day time.Time, rows []model.WorkingHours) []interval.Range {
	dayStart := e.midnight(day)
	weekday := model.WeekdayIndex(dayStart)

	var ranges []interval.Range
	for _, row := range rows {
		if !row.IsActive || row.Weekday != weekday {
			continue
		}
		start := dayStart.Add(time.Duration(row.StartMinute) * time.Minute)
		end := dayStart.Add(time.Duration(row.EndMinute) * time.Minute)
		if row.Overnight() {
			end = end.Add(24 * time.Hour)
		}
		shift := interval.Range{Start: start, End: end}

		if row.HasBreak() {
			bs := dayStart.Add(time.Duration(row.BreakStartMinute) * time.Minute)
			be := dayStart.Add(time.Duration(row.BreakEndMinute) * time.Minute)
			if bs.Before(start) {
				// Break belongs to the post-midnight part of an
				// overnight shift.
				bs = bs.Add(24 * time.Hour)
				be = be.Add(24 * time.Hour)
			}
			ranges = append(ranges, interval.Subtract(shift, interval.Range{Start: bs, End: be})...)
			continue
		}
		ranges = append(ranges, shift)
	}
	return interval.Merge(ranges)
}

// FreeRanges returns the staff member's free time for the day: working
// ranges minus time off, minus blocking bookings, minus the past.
func (e *Engine) FreeRanges(day time.Time, in DayInput) []interval.Range {
	working := e.WorkingRangesOn(day, in.WorkingHours)
	if len(working) == 0 {
		return nil
	}

	// Blocks are clipped to the span the working ranges can actually
	// occupy, which runs past midnight for overnight shifts.
	dayStart := e.midnight(day)
	windowEnd := dayStart.Add(24 * time.Hour)
	if last := working[len(working)-1].End; last.After(windowEnd) {
		windowEnd = last
	}
	window := interval.Range{Start: dayStart, End: windowEnd}

	var blocked []interval.Range
	for _, off := range in.TimeOff {
		if !off.IsActive {
			continue
		}
		if r, ok := interval.Clip(interval.Range{Start: off.Start, End: off.End}, window); ok {
			blocked = append(blocked, r)
		}
	}
	for _, b := range in.Bookings {
		if !e.blocks(b, in.HoldsAsOf) {
			continue
		}
		if r, ok := interval.Clip(interval.Range{Start: b.Start, End: b.End}, window); ok {
			blocked = append(blocked, r)
		}
	}

	free := interval.SubtractMany(working, interval.Merge(blocked))
	if !in.Now.IsZero() {
		free = cutPast(free, in.Now)
	}
	return interval.Merge(free)
}

// Slots cuts each free range into grid-aligned slots of the given duration.
// With alignToWorkStart the grid anchors at each range's own start, so the
// first slot always begins exactly when the staff member becomes free;
// otherwise the grid anchors at midnight.
func (e *Engine) Slots(day time.Time, in DayInput, duration time.Duration, alignToWorkStart bool) ([]interval.Range, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("availability: slot duration must be positive, got %s", duration)
	}
	dayStart := e.midnight(day)

	var slots []interval.Range
	for _, free := range e.FreeRanges(day, in) {
		anchor := free.Start
		if !alignToWorkStart {
			anchor = dayStart
		}
		for t := interval.CeilToGrid(free.Start, anchor, e.step); !t.Add(duration).After(free.End); t = t.Add(e.step) {
			slots = append(slots, interval.Range{Start: t, End: t.Add(duration)})
		}
	}
	return slots, nil
}

func (e *Engine) blocks(b model.Booking, holdsAsOf time.Time) bool {
	if holdsAsOf.IsZero() {
		// No reference instant: expiry cannot be judged here, so any
		// active hold still counts. Stores that filter on expires_at
		// already dropped the expired ones.
		return b.IsActive && (b.Status == model.StatusConfirmed || b.Status == model.StatusHold)
	}
	return b.BlocksAt(holdsAsOf)
}

func (e *Engine) midnight(day time.Time) time.Time {
	y, m, d := day.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

func cutPast(ranges []interval.Range, now time.Time) []interval.Range {
	var out []interval.Range
	for _, r := range ranges {
		if !r.End.After(now) {
			continue
		}
		if r.Start.Before(now) {
			r.Start = now
		}
		out = append(out, r)
	}
	return out
}

// Package interval implements the half-open time-range algebra the
// availability engine is built on. All ranges are [Start, End): a range
// ending at 12:00 and one starting at 12:00 touch but do not overlap.
package interval

import (
	"fmt"
	"sort"
	"time"
)

// Range is a half-open time interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a Range, rejecting empty and inverted intervals.
func New(start, end time.Time) (Range, error) {
	if !end.After(start) {
		return Range{}, fmt.Errorf("interval: end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Range{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether r and other share any instant.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether t lies within r.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Merge sorts the ranges by start and coalesces every overlapping or
// touching pair, so [10:00,11:00) and [11:00,12:00) become [10:00,12:00).
// The input is not modified; empty input yields nil.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Subtract removes cut from r. The result has zero ranges when cut covers r,
// one when cut clips an edge or misses entirely, and two when cut splits the
// middle of r.
func Subtract(r, cut Range) []Range {
	if !r.Overlaps(cut) {
		return []Range{r}
	}
	var out []Range
	if cut.Start.After(r.Start) {
		out = append(out, Range{Start: r.Start, End: cut.Start})
	}
	if cut.End.Before(r.End) {
		out = append(out, Range{Start: cut.End, End: r.End})
	}
	return out
}

// SubtractMany removes every cut from every range, keeping the result sorted
// and non-overlapping when the input ranges are.
func SubtractMany(ranges []Range, cuts []Range) []Range {
	out := ranges
	for _, cut := range cuts {
		var next []Range
		for _, r := range out {
			next = append(next, Subtract(r, cut)...)
		}
		out = next
		if len(out) == 0 {
			break
		}
	}
	return out
}

// Clip intersects r with window. ok is false when they do not overlap.
func Clip(r, window Range) (Range, bool) {
	start := r.Start
	if window.Start.After(start) {
		start = window.Start
	}
	end := r.End
	if window.End.Before(end) {
		end = window.End
	}
	if !end.After(start) {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// CeilToGrid rounds t up to the next point of the grid anchor + k*step,
// k >= 0. Values at or before the anchor snap to the anchor itself; values
// already on the grid are returned unchanged.
func CeilToGrid(t, anchor time.Time, step time.Duration) time.Time {
	if step <= 0 {
		return t
	}
	if !t.After(anchor) {
		return anchor
	}
	offset := t.Sub(anchor)
	k := offset / step
	if offset%step != 0 {
		k++
	}
	return anchor.Add(k * step)
}

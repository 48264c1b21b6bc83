// Package schedule resolves a (staff, service, day) query into bookable
// slots. It is the read path: it gathers inputs from the stores, hands them
// to the availability engine, and never takes a lock. A slot it returns may
// already be taken by the time a caller tries to book it; the write path in
// the booking package resolves that race.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/irodionov/slotbook/internal/availability"
	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/interval"
	"github.com/irodionov/slotbook/internal/model"
)

type StaffDirectory interface {
	StaffByID(ctx context.Context, tenantID, staffID string) (model.Staff, error)
}

type StaffServiceReader interface {
	ActiveStaffService(ctx context.Context, tenantID, staffID, serviceID string) (model.StaffService, error)
}

type ScheduleReader interface {
	WorkingHoursFor(ctx context.Context, tenantID, staffID string, weekday int) ([]model.WorkingHours, error)
	TimeOffOverlapping(ctx context.Context, tenantID, staffID string, r interval.Range) ([]model.TimeOff, error)
}

// BlockingBookingsReader returns bookings that occupy the staff member's
// time within the window: confirmed, or hold with expires_at still ahead of
// now. Expired holds are filtered by the store, not here.
type BlockingBookingsReader interface {
	BlockingBookings(ctx context.Context, tenantID, staffID string, window interval.Range, now time.Time) ([]model.Booking, error)
}

// Orchestrator glues the stores to the availability engine. The lead time is
// folded into the engine's past cut: shifting the effective "now" forward by
// MinLeadTime makes one truncation serve both "not in the past" and
// "not too soon", so same-day queries never offer a slot the write path
// would reject for lead time.
type Orchestrator struct {
	staff    StaffDirectory
	links    StaffServiceReader
	schedule ScheduleReader
	bookings BlockingBookingsReader
	avail    *availability.Engine
	policy   booking.Policy
	loc      *time.Location

	// AlignToWorkStart anchors the slot grid at each free range's start
	// instead of midnight.
	AlignToWorkStart bool
}

func NewOrchestrator(
	staff StaffDirectory,
	links StaffServiceReader,
	scheduleReader ScheduleReader,
	bookings BlockingBookingsReader,
	avail *availability.Engine,
	policy booking.Policy,
	loc *time.Location,
) *Orchestrator {
	return &Orchestrator{
		staff:            staff,
		links:            links,
		schedule:         scheduleReader,
		bookings:         bookings,
		avail:            avail,
		policy:           policy,
		loc:              loc,
		AlignToWorkStart: true,
	}
}

// SlotsForDay returns the bookable slots for one staff member, one service
// and one calendar day. Days beyond the booking horizon return an empty
// list, not an error, so a calendar UI can render them as unavailable.
func (o *Orchestrator) SlotsForDay(ctx context.Context, tenantID, staffID, serviceID string, day, now time.Time) ([]interval.Range, error) {
	if _, err := o.staff.StaffByID(ctx, tenantID, staffID); err != nil {
		return nil, err
	}
	link, err := o.links.ActiveStaffService(ctx, tenantID, staffID, serviceID)
	if err != nil {
		return nil, err
	}
	if link.DurationMin <= 0 {
		return nil, fmt.Errorf("%w: staff service %s has non-positive duration %d", booking.ErrValidation, link.ID, link.DurationMin)
	}

	dayStart := o.midnight(day)
	effectiveNow := now
	if !now.IsZero() {
		if dayStart.After(now.Add(o.policy.Horizon)) {
			return nil, nil
		}
		effectiveNow = now.Add(o.policy.MinLeadTime)
	}

	rows, err := o.schedule.WorkingHoursFor(ctx, tenantID, staffID, model.WeekdayIndex(dayStart))
	if err != nil {
		return nil, err
	}
	// Overnight shifts run past midnight, so blocks are fetched for a
	// window wider than the day itself and clipped by the engine.
	window := interval.Range{Start: dayStart, End: dayStart.Add(48 * time.Hour)}
	off, err := o.schedule.TimeOffOverlapping(ctx, tenantID, staffID, window)
	if err != nil {
		return nil, err
	}
	blocking, err := o.bookings.BlockingBookings(ctx, tenantID, staffID, window, now)
	if err != nil {
		return nil, err
	}

	// Hold expiry is judged against the real clock: the store filtered on
	// expires_at > now, and the engine must not drop a hold just because
	// it lapses inside the lead window.
	in := availability.DayInput{
		WorkingHours: rows,
		TimeOff:      off,
		Bookings:     blocking,
		Now:          effectiveNow,
		HoldsAsOf:    now,
	}
	duration := time.Duration(link.DurationMin) * time.Minute
	return o.avail.Slots(dayStart, in, duration, o.AlignToWorkStart)
}

func (o *Orchestrator) midnight(day time.Time) time.Time {
	y, m, d := day.In(o.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, o.loc)
}

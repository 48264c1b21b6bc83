// Package booking implements the booking lifecycle: hold, confirm, cancel,
// and lazy hold expiry, with conflict-safe creation under concurrent
// requests for the same staff member.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/irodionov/slotbook/internal/availability"
	"github.com/irodionov/slotbook/internal/interval"
	"github.com/irodionov/slotbook/internal/model"
)

// StaffDirectory resolves staff within a tenant. A miss, including a
// cross-tenant id, returns an error matching ErrNotFound.
type StaffDirectory interface {
	StaffByID(ctx context.Context, tenantID, staffID string) (model.Staff, error)
}

// StaffServiceReader resolves the active duration/price link for a
// (staff, service) pair within a tenant.
type StaffServiceReader interface {
	ActiveStaffService(ctx context.Context, tenantID, staffID, serviceID string) (model.StaffService, error)
}

// ScheduleReader supplies the weekly template and absence records the
// creation rules validate against.
type ScheduleReader interface {
	WorkingHoursFor(ctx context.Context, tenantID, staffID string, weekday int) ([]model.WorkingHours, error)
	TimeOffOverlapping(ctx context.Context, tenantID, staffID string, r interval.Range) ([]model.TimeOff, error)
}

// CustomerStore resolves a customer by (tenant, phone), creating the record
// when absent and refreshing name/email when the caller supplies new values.
type CustomerStore interface {
	GetByPhoneOrCreate(ctx context.Context, c model.Customer) (model.Customer, error)
}

// Store is the booking write/read surface. CreateIfFree must re-run the
// overlap check and insert atomically under the store's own exclusion
// primitive, returning an error matching ErrSlotUnavailable on conflict.
// Transition must apply the status change only when the row still carries
// the expected current status.
type Store interface {
	Get(ctx context.Context, tenantID, id string) (model.Booking, error)
	CreateIfFree(ctx context.Context, b model.Booking, now time.Time) error
	Transition(ctx context.Context, b model.Booking, from model.Status) error
}

// CreateInput is one booking request. Confirm skips the hold phase and
// creates the booking directly confirmed.
type CreateInput struct {
	StaffID       string
	ServiceID     string
	Start         time.Time
	Confirm       bool
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Comment       string
}

// Engine drives the booking state machine. The read-only creation rules run
// unlocked; only the overlap re-check and the write itself happen inside the
// per-staff critical section, so the lock is held for the shortest span that
// still prevents the double-booking race.
type Engine struct {
	staff     StaffDirectory
	links     StaffServiceReader
	schedule  ScheduleReader
	customers CustomerStore
	store     Store
	avail     *availability.Engine
	policy    Policy
	loc       *time.Location
	locks     *staffLocks
	logger    *slog.Logger
	clock     func() time.Time
}

func NewEngine(
	staff StaffDirectory,
	links StaffServiceReader,
	schedule ScheduleReader,
	customers CustomerStore,
	store Store,
	avail *availability.Engine,
	policy Policy,
	loc *time.Location,
	logger *slog.Logger,
) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("booking policy: %w", err)
	}
	return &Engine{
		staff:     staff,
		links:     links,
		schedule:  schedule,
		customers: customers,
		store:     store,
		avail:     avail,
		policy:    policy,
		loc:       loc,
		locks:     newStaffLocks(),
		logger:    logger,
		clock:     time.Now,
	}, nil
}

// WithClock overrides the time source. Tests only.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// Create validates the request against the temporal rules, resolves the
// customer, then inserts the booking under the per-staff lock. The loser of
// a race over the same interval gets ErrSlotUnavailable and no state change.
func (e *Engine) Create(ctx context.Context, tenantID string, in CreateInput) (model.Booking, error) {
	now := e.clock()

	if _, err := e.staff.StaffByID(ctx, tenantID, in.StaffID); err != nil {
		return model.Booking{}, err
	}
	link, err := e.links.ActiveStaffService(ctx, tenantID, in.StaffID, in.ServiceID)
	if err != nil {
		return model.Booking{}, err
	}
	if link.DurationMin <= 0 {
		return model.Booking{}, fmt.Errorf("%w: staff service %s has non-positive duration %d", ErrValidation, link.ID, link.DurationMin)
	}

	start := in.Start.In(e.loc)
	end := start.Add(time.Duration(link.DurationMin) * time.Minute)
	if err := e.validateWindow(ctx, tenantID, in.StaffID, start, end, now); err != nil {
		return model.Booking{}, err
	}

	customer, err := e.customers.GetByPhoneOrCreate(ctx, model.Customer{
		TenantID: tenantID,
		Phone:    in.CustomerPhone,
		Name:     in.CustomerName,
		Email:    in.CustomerEmail,
	})
	if err != nil {
		return model.Booking{}, err
	}

	b := model.Booking{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		StaffID:        in.StaffID,
		StaffServiceID: link.ID,
		CustomerID:     customer.ID,
		Start:          start,
		End:            end,
		DurationMin:    link.DurationMin,
		PriceCents:     link.PriceCents,
		Status:         model.StatusHold,
		Comment:        in.Comment,
		IsActive:       true,
		CreatedAt:      now,
	}
	if in.Confirm {
		b.Status = model.StatusConfirmed
	} else {
		expires := now.Add(e.policy.HoldTTL)
		b.ExpiresAt = &expires
	}

	mu := e.locks.forStaff(in.StaffID)
	mu.Lock()
	defer mu.Unlock()
	if err := e.store.CreateIfFree(ctx, b, now); err != nil {
		return model.Booking{}, err
	}

	e.logger.Info("booking created",
		"booking_id", b.ID,
		"tenant_id", tenantID,
		"staff_id", b.StaffID,
		"status", string(b.Status),
		"start_at", b.Start,
	)
	return b, nil
}

// Confirm flips a hold to confirmed. An expired hold is first repaired to
// expired, then reported as a state error; a second confirm attempt keeps
// reporting the state error, never a not-found.
func (e *Engine) Confirm(ctx context.Context, tenantID, id string) (model.Booking, error) {
	now := e.clock()
	b, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return model.Booking{}, err
	}

	if b.Status != model.StatusHold {
		return model.Booking{}, statef("cannot confirm booking %s in status %s", b.ID, b.Status)
	}

	if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
		if err := e.expire(ctx, b); err != nil {
			return model.Booking{}, err
		}
		return model.Booking{}, statef("hold %s expired at %s", b.ID, b.ExpiresAt.Format(time.RFC3339))
	}

	mu := e.locks.forStaff(b.StaffID)
	mu.Lock()
	defer mu.Unlock()

	updated := b
	updated.Status = model.StatusConfirmed
	updated.ExpiresAt = nil
	if err := e.store.Transition(ctx, updated, model.StatusHold); err != nil {
		return model.Booking{}, err
	}

	e.logger.Info("booking confirmed", "booking_id", b.ID, "tenant_id", tenantID)
	return updated, nil
}

// Cancel is allowed from hold and confirmed only.
func (e *Engine) Cancel(ctx context.Context, tenantID, id string) (model.Booking, error) {
	b, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return model.Booking{}, err
	}

	switch b.Status {
	case model.StatusHold, model.StatusConfirmed:
	default:
		return model.Booking{}, statef("cannot cancel booking %s in status %s", b.ID, b.Status)
	}

	mu := e.locks.forStaff(b.StaffID)
	mu.Lock()
	defer mu.Unlock()

	updated := b
	from := b.Status
	updated.Status = model.StatusCancelled
	updated.ExpiresAt = nil
	if err := e.store.Transition(ctx, updated, from); err != nil {
		return model.Booking{}, err
	}

	e.logger.Info("booking cancelled", "booking_id", b.ID, "tenant_id", tenantID, "was", string(from))
	return updated, nil
}

// Get returns a booking, repairing an expired hold on the way out so a read
// is enough to flip the persisted status.
func (e *Engine) Get(ctx context.Context, tenantID, id string) (model.Booking, error) {
	b, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.StatusHold && b.ExpiresAt != nil && !b.ExpiresAt.After(e.clock()) {
		if err := e.expire(ctx, b); err != nil {
			return model.Booking{}, err
		}
		b.Status = model.StatusExpired
		b.ExpiresAt = nil
	}
	return b, nil
}

func (e *Engine) expire(ctx context.Context, b model.Booking) error {
	updated := b
	updated.Status = model.StatusExpired
	updated.ExpiresAt = nil
	if err := e.store.Transition(ctx, updated, model.StatusHold); err != nil {
		return fmt.Errorf("expire hold %s: %w", b.ID, err)
	}
	e.logger.Info("hold expired", "booking_id", b.ID, "tenant_id", b.TenantID)
	return nil
}

// validateWindow runs the ordered, read-only creation rules. All six must
// pass before anything is written; rule failures surface as
// ErrSlotUnavailable with the violated rule in the message.
func (e *Engine) validateWindow(ctx context.Context, tenantID, staffID string, start, end, now time.Time) error {
	if !start.After(now) {
		return unavailablef("start %s is in the past", start.Format(time.RFC3339))
	}
	if start.Before(now.Add(e.policy.MinLeadTime)) {
		return unavailablef("start %s is within the %s lead time", start.Format(time.RFC3339), e.policy.MinLeadTime)
	}
	if start.After(now.Add(e.policy.Horizon)) {
		return unavailablef("start %s is beyond the %s booking horizon", start.Format(time.RFC3339), e.policy.Horizon)
	}
	if !onGrid(start, e.policy.Step) {
		return unavailablef("start %s is not aligned to the %s grid", start.Format(time.RFC3339), e.policy.Step)
	}

	ok, err := e.fitsWorkingHours(ctx, tenantID, staffID, start, end)
	if err != nil {
		return err
	}
	if !ok {
		return unavailablef("interval %s-%s is outside working hours", start.Format("15:04"), end.Format("15:04"))
	}

	off, err := e.schedule.TimeOffOverlapping(ctx, tenantID, staffID, interval.Range{Start: start, End: end})
	if err != nil {
		return err
	}
	for _, t := range off {
		if t.IsActive {
			return unavailablef("staff member is off from %s to %s", t.Start.Format(time.RFC3339), t.End.Format(time.RFC3339))
		}
	}
	return nil
}

// fitsWorkingHours checks the candidate against the working ranges of the
// start's day and, for intervals early in the day, the previous day's
// overnight tail.
func (e *Engine) fitsWorkingHours(ctx context.Context, tenantID, staffID string, start, end time.Time) (bool, error) {
	candidate := interval.Range{Start: start, End: end}
	for _, day := range []time.Time{start, start.AddDate(0, 0, -1)} {
		rows, err := e.schedule.WorkingHoursFor(ctx, tenantID, staffID, model.WeekdayIndex(day.In(e.loc)))
		if err != nil {
			return false, err
		}
		for _, r := range e.avail.WorkingRangesOn(day, rows) {
			if !candidate.Start.Before(r.Start) && !candidate.End.After(r.End) {
				return true, nil
			}
		}
	}
	return false, nil
}

func onGrid(t time.Time, step time.Duration) bool {
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight)%step == 0
}

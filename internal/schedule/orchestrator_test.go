package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/irodionov/slotbook/internal/availability"
	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/memstore"
	"github.com/irodionov/slotbook/internal/model"
)

const tenant = "tenant-1"

// 2025-06-02 is a Monday.
var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	orch    *Orchestrator
	store   *memstore.Store
	staffID string
	svcID   string
}

func newFixture(t *testing.T, durationMin int) *fixture {
	t.Helper()
	store := memstore.New()
	staff := store.AddStaff(model.Staff{TenantID: tenant, Name: "Alice", IsActive: true})
	svc := store.AddService(model.Service{TenantID: tenant, Name: "Haircut", IsActive: true})
	store.AddStaffService(model.StaffService{
		TenantID:    tenant,
		StaffID:     staff.ID,
		ServiceID:   svc.ID,
		DurationMin: durationMin,
		PriceCents:  2500,
		IsActive:    true,
	})
	store.AddWorkingHours(model.WorkingHours{
		TenantID:    tenant,
		StaffID:     staff.ID,
		Weekday:     0,
		StartMinute: 10 * 60,
		EndMinute:   12 * 60,
		IsActive:    true,
	})

	avail, err := availability.New(time.UTC, 30*time.Minute)
	if err != nil {
		t.Fatalf("availability engine: %v", err)
	}
	orch := NewOrchestrator(store, store, store, store, avail, booking.DefaultPolicy(), time.UTC)
	return &fixture{orch: orch, store: store, staffID: staff.ID, svcID: svc.ID}
}

func TestSlotsForDay(t *testing.T) {
	f := newFixture(t, 30)
	now := monday.Add(-24 * time.Hour) // Sunday, day is within horizon

	slots, err := f.orch.SlotsForDay(context.Background(), tenant, f.staffID, f.svcID, monday, now)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d: %v", len(slots), slots)
	}
	if !slots[0].Start.Equal(monday.Add(10 * time.Hour)) {
		t.Fatalf("first slot wrong: %v", slots[0])
	}
}

func TestSlotsForDayLeadTimeFoldedIntoNow(t *testing.T) {
	f := newFixture(t, 30)
	// 09:30 the same morning: the 60-minute lead pushes the effective
	// cutoff to 10:30, dropping the 10:00 slot.
	now := monday.Add(9*time.Hour + 30*time.Minute)

	slots, err := f.orch.SlotsForDay(context.Background(), tenant, f.staffID, f.svcID, monday, now)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %v", slots)
	}
	if !slots[0].Start.Equal(monday.Add(10*time.Hour + 30*time.Minute)) {
		t.Fatalf("first slot must be 10:30, got %v", slots[0].Start)
	}
}

func TestSlotsForDayBeyondHorizonIsEmpty(t *testing.T) {
	f := newFixture(t, 30)
	// From 45 days out the Monday sits past the 30-day horizon.
	far, err := f.orch.SlotsForDay(context.Background(), tenant, f.staffID, f.svcID, monday, monday.Add(-45*24*time.Hour))
	if err != nil {
		t.Fatalf("far-future query must not error: %v", err)
	}
	if len(far) != 0 {
		t.Fatalf("beyond-horizon day must yield no slots, got %v", far)
	}
}

func TestSlotsForDayExcludesUnexpiredHold(t *testing.T) {
	f := newFixture(t, 30)
	now := monday.Add(8 * time.Hour)
	expires := now.Add(4 * time.Hour)
	if err := f.store.CreateIfFree(context.Background(), model.Booking{
		ID:        "hold-1",
		TenantID:  tenant,
		StaffID:   f.staffID,
		Start:     monday.Add(11 * time.Hour),
		End:       monday.Add(12 * time.Hour),
		Status:    model.StatusHold,
		ExpiresAt: &expires,
		IsActive:  true,
	}, now); err != nil {
		t.Fatalf("seed hold: %v", err)
	}

	slots, err := f.orch.SlotsForDay(context.Background(), tenant, f.staffID, f.svcID, monday, now)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 10:00 and 10:30 only, got %v", slots)
	}
}

func TestSlotsForDayHoldLapsingInsideLeadWindowStillBlocks(t *testing.T) {
	f := newFixture(t, 30)
	// At 08:00 the lead time pushes the effective cutoff to 09:00, past
	// this hold's 08:30 expiry. The hold has not lapsed on the real clock,
	// so its 11:00-12:00 span must stay off the slot list; a create there
	// would be rejected as taken.
	now := monday.Add(8 * time.Hour)
	expires := now.Add(30 * time.Minute)
	if err := f.store.CreateIfFree(context.Background(), model.Booking{
		ID:        "hold-1",
		TenantID:  tenant,
		StaffID:   f.staffID,
		Start:     monday.Add(11 * time.Hour),
		End:       monday.Add(12 * time.Hour),
		Status:    model.StatusHold,
		ExpiresAt: &expires,
		IsActive:  true,
	}, now); err != nil {
		t.Fatalf("seed hold: %v", err)
	}

	slots, err := f.orch.SlotsForDay(context.Background(), tenant, f.staffID, f.svcID, monday, now)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 10:00 and 10:30 only, got %v", slots)
	}
	for _, s := range slots {
		if s.End.After(monday.Add(11 * time.Hour)) {
			t.Fatalf("slot %v overlaps the held interval", s)
		}
	}
}

func TestSlotsForDayUnknownStaffOrService(t *testing.T) {
	f := newFixture(t, 30)
	now := monday.Add(-24 * time.Hour)

	if _, err := f.orch.SlotsForDay(context.Background(), tenant, "missing", f.svcID, monday, now); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found for unknown staff, got %v", err)
	}
	if _, err := f.orch.SlotsForDay(context.Background(), tenant, f.staffID, "missing", monday, now); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found for unknown service, got %v", err)
	}
	if _, err := f.orch.SlotsForDay(context.Background(), "other-tenant", f.staffID, f.svcID, monday, now); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found for cross-tenant staff, got %v", err)
	}
}

func TestSlotsForDayBadDurationFailsLoudly(t *testing.T) {
	f := newFixture(t, 0)
	now := monday.Add(-24 * time.Hour)

	if _, err := f.orch.SlotsForDay(context.Background(), tenant, f.staffID, f.svcID, monday, now); !errors.Is(err, booking.ErrValidation) {
		t.Fatalf("non-positive duration must be a validation error, got %v", err)
	}
}

package booking_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/irodionov/slotbook/internal/availability"
	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/memstore"
	"github.com/irodionov/slotbook/internal/model"
)

const tenant = "tenant-1"

// 2025-06-02 is a Monday; the fixed clock sits at 08:00 that morning.
var testNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	engine  *booking.Engine
	store   *memstore.Store
	staffID string
	svcID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	staff := store.AddStaff(model.Staff{TenantID: tenant, Name: "Alice", IsActive: true})
	svc := store.AddService(model.Service{TenantID: tenant, Name: "Haircut", IsActive: true})
	store.AddStaffService(model.StaffService{
		TenantID:    tenant,
		StaffID:     staff.ID,
		ServiceID:   svc.ID,
		DurationMin: 30,
		PriceCents:  2500,
		IsActive:    true,
	})
	// Monday 09:00-18:00.
	store.AddWorkingHours(model.WorkingHours{
		TenantID:    tenant,
		StaffID:     staff.ID,
		Weekday:     0,
		StartMinute: 9 * 60,
		EndMinute:   18 * 60,
		IsActive:    true,
	})

	avail, err := availability.New(time.UTC, 15*time.Minute)
	if err != nil {
		t.Fatalf("availability engine: %v", err)
	}
	engine, err := booking.NewEngine(store, store, store, store, store, avail, booking.DefaultPolicy(), time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("booking engine: %v", err)
	}
	engine.WithClock(func() time.Time { return testNow })

	return &fixture{engine: engine, store: store, staffID: staff.ID, svcID: svc.ID}
}

func (f *fixture) input(start time.Time) booking.CreateInput {
	return booking.CreateInput{
		StaffID:       f.staffID,
		ServiceID:     f.svcID,
		Start:         start,
		CustomerName:  "Bob",
		CustomerPhone: "+15551234567",
	}
}

func TestCreateHold(t *testing.T) {
	f := newFixture(t)
	start := testNow.Add(2 * time.Hour) // 10:00, on grid, inside hours

	b, err := f.engine.Create(context.Background(), tenant, f.input(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.StatusHold {
		t.Fatalf("expected hold, got %s", b.Status)
	}
	if b.ExpiresAt == nil || !b.ExpiresAt.Equal(testNow.Add(10*time.Minute)) {
		t.Fatalf("expected expiry 10m out, got %v", b.ExpiresAt)
	}
	if b.DurationMin != 30 || b.PriceCents != 2500 {
		t.Fatalf("snapshot wrong: %d min, %d cents", b.DurationMin, b.PriceCents)
	}
	if !b.End.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("end not derived from snapshot duration: %v", b.End)
	}
}

func TestCreateConfirmedDirectly(t *testing.T) {
	f := newFixture(t)
	in := f.input(testNow.Add(2 * time.Hour))
	in.Confirm = true

	b, err := f.engine.Create(context.Background(), tenant, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", b.Status)
	}
	if b.ExpiresAt != nil {
		t.Fatalf("confirmed booking must carry no expiry, got %v", b.ExpiresAt)
	}
}

func TestCreateValidationOrder(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		start time.Time
	}{
		{"in the past", testNow.Add(-time.Hour)},
		{"within lead time", testNow.Add(5 * time.Minute)},
		{"beyond horizon", testNow.Add(31 * 24 * time.Hour)},
		{"off grid minutes", testNow.Add(2*time.Hour + 7*time.Minute)},
		{"off grid seconds", testNow.Add(2*time.Hour + 30*time.Second)},
		{"outside working hours", time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if _, err := f.engine.Create(context.Background(), tenant, f.input(tc.start)); !errors.Is(err, booking.ErrSlotUnavailable) {
			t.Fatalf("%s: expected booking.ErrSlotUnavailable, got %v", tc.name, err)
		}
	}
}

func TestCreateRejectsTimeOff(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.AddTimeOff(context.Background(), model.TimeOff{
		TenantID: tenant,
		StaffID:  f.staffID,
		Start:    time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
		IsActive: true,
	}); err != nil {
		t.Fatalf("add time off: %v", err)
	}

	_, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour)))
	if !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("expected booking.ErrSlotUnavailable for time off, got %v", err)
	}
}

func TestCreateUnknownStaffAndCrossTenant(t *testing.T) {
	f := newFixture(t)
	in := f.input(testNow.Add(2 * time.Hour))

	in.StaffID = "missing"
	if _, err := f.engine.Create(context.Background(), tenant, in); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected booking.ErrNotFound for unknown staff, got %v", err)
	}

	in.StaffID = f.staffID
	if _, err := f.engine.Create(context.Background(), "other-tenant", in); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected booking.ErrNotFound for cross-tenant staff, got %v", err)
	}
}

func TestCreateOverlapConflict(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour))); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Partially overlapping interval 10:15-10:45.
	_, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour+15*time.Minute)))
	if !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("expected booking.ErrSlotUnavailable for overlap, got %v", err)
	}
}

func TestConcurrentCreatesSingleWinner(t *testing.T) {
	f := newFixture(t)
	const n = 16
	start := testNow.Add(2 * time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Create(context.Background(), tenant, f.input(start))
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, booking.ErrSlotUnavailable):
			losses++
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 || losses != n-1 {
		t.Fatalf("expected exactly 1 winner and %d losers, got %d/%d", n-1, wins, losses)
	}
}

func TestConfirmHold(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	confirmed, err := f.engine.Confirm(context.Background(), tenant, b.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.StatusConfirmed || confirmed.ExpiresAt != nil {
		t.Fatalf("confirm result wrong: %s %v", confirmed.Status, confirmed.ExpiresAt)
	}

	if _, err := f.engine.Confirm(context.Background(), tenant, b.ID); !errors.Is(err, booking.ErrState) {
		t.Fatalf("double confirm must fail with booking.ErrState, got %v", err)
	}
}

func TestConfirmExpiredHoldRepairsThenFails(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Move the clock past the hold TTL.
	f.engine.WithClock(func() time.Time { return testNow.Add(20 * time.Minute) })

	if _, err := f.engine.Confirm(context.Background(), tenant, b.ID); !errors.Is(err, booking.ErrState) {
		t.Fatalf("expected booking.ErrState for expired hold, got %v", err)
	}
	stored, err := f.store.Get(context.Background(), tenant, b.ID)
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if stored.Status != model.StatusExpired {
		t.Fatalf("expiry must be persisted, got %s", stored.Status)
	}

	// A second attempt keeps failing with a state error, not a not-found.
	if _, err := f.engine.Confirm(context.Background(), tenant, b.ID); !errors.Is(err, booking.ErrState) {
		t.Fatalf("second confirm must still fail with booking.ErrState, got %v", err)
	}
}

func TestExpiredHoldFreesTheSlot(t *testing.T) {
	f := newFixture(t)
	start := testNow.Add(2 * time.Hour)
	if _, err := f.engine.Create(context.Background(), tenant, f.input(start)); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 20 minutes later the hold has lapsed and the same slot is takeable.
	f.engine.WithClock(func() time.Time { return testNow.Add(20 * time.Minute) })
	if _, err := f.engine.Create(context.Background(), tenant, f.input(start)); err != nil {
		t.Fatalf("create over lapsed hold: %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := f.engine.Cancel(context.Background(), tenant, b.ID)
	if err != nil {
		t.Fatalf("cancel hold: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.ExpiresAt != nil {
		t.Fatalf("cancel result wrong: %s %v", cancelled.Status, cancelled.ExpiresAt)
	}

	if _, err := f.engine.Cancel(context.Background(), tenant, b.ID); !errors.Is(err, booking.ErrState) {
		t.Fatalf("cancel of cancelled must fail with booking.ErrState, got %v", err)
	}

	in := f.input(testNow.Add(3 * time.Hour))
	in.Confirm = true
	b2, err := f.engine.Create(context.Background(), tenant, in)
	if err != nil {
		t.Fatalf("create confirmed: %v", err)
	}
	if _, err := f.engine.Cancel(context.Background(), tenant, b2.ID); err != nil {
		t.Fatalf("cancel confirmed: %v", err)
	}
}

func TestGetRepairsExpiredHold(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.engine.WithClock(func() time.Time { return testNow.Add(time.Hour) })
	got, err := f.engine.Get(context.Background(), tenant, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusExpired {
		t.Fatalf("read must repair lapsed hold, got %s", got.Status)
	}
}

func TestRepeatCustomerMatchedByPhone(t *testing.T) {
	f := newFixture(t)
	b1, err := f.engine.Create(context.Background(), tenant, f.input(testNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	in := f.input(testNow.Add(3 * time.Hour))
	in.CustomerName = "Robert"
	b2, err := f.engine.Create(context.Background(), tenant, in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if b1.CustomerID != b2.CustomerID {
		t.Fatalf("same phone must resolve to the same customer: %s vs %s", b1.CustomerID, b2.CustomerID)
	}
}

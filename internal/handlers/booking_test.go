package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/irodionov/slotbook/internal/availability"
	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/memstore"
	"github.com/irodionov/slotbook/internal/model"
	"github.com/irodionov/slotbook/internal/schedule"
)

const tenant = "tenant-1"

// 2025-06-02 is a Monday; the engine clock is pinned to 08:00 that morning.
var testNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	handler *BookingHandler
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
		TenantID: tenant, StaffID: staff.ID, ServiceID: svc.ID,
		DurationMin: 30, PriceCents: 2500, IsActive: true,
	})
	for weekday := 0; weekday < 7; weekday++ {
		store.AddWorkingHours(model.WorkingHours{
			TenantID: tenant, StaffID: staff.ID, Weekday: weekday,
			StartMinute: 9 * 60, EndMinute: 18 * 60, IsActive: true,
		})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	avail, err := availability.New(time.UTC, 15*time.Minute)
	if err != nil {
		t.Fatalf("availability engine: %v", err)
	}
	engine, err := booking.NewEngine(store, store, store, store, store, avail, booking.DefaultPolicy(), time.UTC, logger)
	if err != nil {
		t.Fatalf("booking engine: %v", err)
	}
	engine.WithClock(func() time.Time { return testNow })
	orch := schedule.NewOrchestrator(store, store, store, store, avail, booking.DefaultPolicy(), time.UTC)

	return &fixture{
		handler: NewBookingHandler(engine, orch, logger),
		store:   store,
		staffID: staff.ID,
		svcID:   svc.ID,
	}
}

func (f *fixture) createBody(start time.Time) string {
	return `{"tenant_id":"` + tenant + `","staff_id":"` + f.staffID + `","service_id":"` + f.svcID +
		`","start_at":"` + start.Format(time.RFC3339) + `","customer_name":"Bob","customer_phone":"+15551234567"}`
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCreateBookingEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := postJSON(t, f.handler.Create, f.createBody(testNow.Add(2*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BookingID == "" || resp.Status != "hold" || resp.ExpiresAt == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateBookingConflictMapsTo409(t *testing.T) {
	f := newFixture(t)
	if rec := postJSON(t, f.handler.Create, f.createBody(testNow.Add(2*time.Hour))); rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rec.Code)
	}
	if rec := postJSON(t, f.handler.Create, f.createBody(testNow.Add(2*time.Hour))); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for conflict, got %d", rec.Code)
	}
}

func TestCreateBookingLeadTimeMapsTo409(t *testing.T) {
	f := newFixture(t)
	rec := postJSON(t, f.handler.Create, f.createBody(testNow.Add(15*time.Minute)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for lead-time violation, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateBookingUnknownStaffMapsTo404(t *testing.T) {
	f := newFixture(t)
	body := strings.Replace(f.createBody(testNow.Add(2*time.Hour)), f.staffID, "00000000-0000-0000-0000-000000000000", 1)
	if rec := postJSON(t, f.handler.Create, body); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateBookingRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	if rec := postJSON(t, f.handler.Create, "{not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
	if rec := postJSON(t, f.handler.Create, `{"tenant_id":"`+tenant+`"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestConfirmAndCancelEndpoints(t *testing.T) {
	f := newFixture(t)
	rec := postJSON(t, f.handler.Create, f.createBody(testNow.Add(2*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	var created struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	body := `{"tenant_id":"` + tenant + `","booking_id":"` + created.BookingID + `"}`
	if rec := postJSON(t, f.handler.Confirm, body); rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := postJSON(t, f.handler.Confirm, body); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double confirm: expected 422, got %d", rec.Code)
	}
	if rec := postJSON(t, f.handler.Cancel, body); rec.Code != http.StatusOK {
		t.Fatalf("cancel confirmed: expected 200, got %d", rec.Code)
	}
	if rec := postJSON(t, f.handler.Cancel, body); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("cancel cancelled: expected 422, got %d", rec.Code)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/?tenant_id="+tenant+"&staff_id="+f.staffID+
		"&service_id="+f.svcID+"&date="+time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02"), nil)
	rec := httptest.NewRecorder()
	f.handler.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var slots []struct {
		StartAt string `json:"start_at"`
		EndAt   string `json:"end_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected slots for a working day two days out")
	}

	req = httptest.NewRequest(http.MethodGet, "/?tenant_id="+tenant, nil)
	rec = httptest.NewRecorder()
	f.handler.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing params, got %d", rec.Code)
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/model"
)

type ScheduleAdminStore interface {
	ReplaceWorkingHours(ctx context.Context, tenantID, staffID string, weekday int, rows []model.WorkingHours) error
	AddTimeOff(ctx context.Context, off model.TimeOff) (model.TimeOff, error)
	DeactivateTimeOff(ctx context.Context, tenantID, id string) error
}

type StaffServicesReader interface {
	StaffServicesFor(ctx context.Context, tenantID, staffID string) ([]model.StaffService, error)
}

type BookingLister interface {
	ListBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error)
}

// AdminHandler is the tenant-facing management surface: weekly templates,
// absences, and a booking calendar view. Every request runs behind
// WithTenantAuth, so the tenant id always comes from the verified token.
type AdminHandler struct {
	schedule ScheduleAdminStore
	links    StaffServicesReader
	bookings BookingLister
	logger   *slog.Logger
}

func NewAdminHandler(schedule ScheduleAdminStore, links StaffServicesReader, bookings BookingLister, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{schedule: schedule, links: links, bookings: bookings, logger: logger}
}

type workingHoursRow struct {
	StartMinute      int `json:"start_minute"`
	EndMinute        int `json:"end_minute"`
	BreakStartMinute int `json:"break_start_minute"`
	BreakEndMinute   int `json:"break_end_minute"`
}

type putWorkingHoursRequest struct {
	StaffID string            `json:"staff_id"`
	Weekday int               `json:"weekday"`
	Rows    []workingHoursRow `json:"rows"`
}

func (h *AdminHandler) PutWorkingHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantFromContext(r.Context())

	var req putWorkingHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		http.Error(w, "staff_id required", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be 0 (Monday) through 6 (Sunday)", http.StatusBadRequest)
		return
	}
	rows := make([]model.WorkingHours, 0, len(req.Rows))
	for _, row := range req.Rows {
		if row.StartMinute < 0 || row.StartMinute >= 24*60 || row.EndMinute < 0 || row.EndMinute > 24*60 {
			http.Error(w, "minutes must fall within a day", http.StatusBadRequest)
			return
		}
		rows = append(rows, model.WorkingHours{
			StartMinute:      row.StartMinute,
			EndMinute:        row.EndMinute,
			BreakStartMinute: row.BreakStartMinute,
			BreakEndMinute:   row.BreakEndMinute,
			IsActive:         true,
		})
	}

	if err := h.schedule.ReplaceWorkingHours(r.Context(), tenantID, req.StaffID, req.Weekday, rows); err != nil {
		h.writeError(w, err, "failed to store working hours")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff_id": req.StaffID, "weekday": req.Weekday, "rows": len(rows)})
}

type addTimeOffRequest struct {
	StaffID string `json:"staff_id"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Reason  string `json:"reason"`
}

func (h *AdminHandler) AddTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantFromContext(r.Context())

	var req addTimeOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		http.Error(w, "staff_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "invalid start_at", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		http.Error(w, "invalid end_at", http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end_at must be after start_at", http.StatusBadRequest)
		return
	}

	off, err := h.schedule.AddTimeOff(r.Context(), model.TimeOff{
		TenantID: tenantID,
		StaffID:  req.StaffID,
		Start:    start,
		End:      end,
		Reason:   strings.TrimSpace(req.Reason),
		IsActive: true,
	})
	if err != nil {
		h.writeError(w, err, "failed to store time off")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"time_off_id": off.ID})
}

func (h *AdminHandler) RemoveTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantFromContext(r.Context())
	id := strings.TrimSpace(r.URL.Query().Get("time_off_id"))
	if id == "" {
		http.Error(w, "time_off_id required", http.StatusBadRequest)
		return
	}

	if err := h.schedule.DeactivateTimeOff(r.Context(), tenantID, id); err != nil {
		h.writeError(w, err, "failed to remove time off")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) StaffServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantFromContext(r.Context())
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID == "" {
		http.Error(w, "staff_id required", http.StatusBadRequest)
		return
	}

	links, err := h.links.StaffServicesFor(r.Context(), tenantID, staffID)
	if err != nil {
		h.writeError(w, err, "failed to list staff services")
		return
	}
	type item struct {
		ID          string `json:"id"`
		ServiceID   string `json:"service_id"`
		DurationMin int    `json:"duration_min"`
		PriceCents  int64  `json:"price_cents"`
	}
	out := make([]item, 0, len(links))
	for _, l := range links {
		out = append(out, item{ID: l.ID, ServiceID: l.ServiceID, DurationMin: l.DurationMin, PriceCents: l.PriceCents})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantFromContext(r.Context())

	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("from")))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("to")))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	bookings, err := h.bookings.ListBookings(r.Context(), tenantID, from, to)
	if err != nil {
		h.writeError(w, err, "failed to list bookings")
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

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
	"github.com/irodionov/slotbook/internal/interval"
	"github.com/irodionov/slotbook/internal/model"
	"github.com/irodionov/slotbook/internal/schedule"
)

// BookingHandler is the public booking surface: the endpoints a tenant's
// booking widget calls on behalf of anonymous customers. The tenant comes
// from the request itself; staff and service ids are public knowledge within
// a tenant's widget, so no auth is required here.
type BookingHandler struct {
	engine *booking.Engine
	slots  *schedule.Orchestrator
	logger *slog.Logger
}

func NewBookingHandler(engine *booking.Engine, slots *schedule.Orchestrator, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, slots: slots, logger: logger}
}

type createBookingRequest struct {
	TenantID      string `json:"tenant_id"`
	StaffID       string `json:"staff_id"`
	ServiceID     string `json:"service_id"`
	StartAt       string `json:"start_at"`
	Confirm       bool   `json:"confirm"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	Comment       string `json:"comment"`
}

type bookingResponse struct {
	BookingID   string `json:"booking_id"`
	StaffID     string `json:"staff_id"`
	StartAt     string `json:"start_at"`
	EndAt       string `json:"end_at"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	DurationMin int    `json:"duration_min"`
}

type transitionRequest struct {
	TenantID  string `json:"tenant_id"`
	BookingID string `json:"booking_id"`
}

type slotItem struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	tenantID := strings.TrimSpace(q.Get("tenant_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if tenantID == "" || staffID == "" || serviceID == "" || dateStr == "" {
		http.Error(w, "tenant_id, staff_id, service_id, and date are required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.slots.SlotsForDay(r.Context(), tenantID, staffID, serviceID, day, time.Now().UTC())
	if err != nil {
		h.writeError(w, err, "failed to compute slots")
		return
	}
	writeJSON(w, http.StatusOK, slotItems(slots))
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.TenantID == "" || req.StaffID == "" || req.ServiceID == "" || req.CustomerPhone == "" {
		http.Error(w, "tenant_id, staff_id, service_id, and customer_phone are required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "invalid start_at", http.StatusBadRequest)
		return
	}

	b, err := h.engine.Create(r.Context(), req.TenantID, booking.CreateInput{
		StaffID:       req.StaffID,
		ServiceID:     req.ServiceID,
		Start:         start,
		Confirm:       req.Confirm,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Comment:       strings.TrimSpace(req.Comment),
	})
	if err != nil {
		h.writeError(w, err, "failed to create booking")
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Confirm)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Cancel)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	bookingID := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if tenantID == "" || bookingID == "" {
		http.Error(w, "tenant_id and booking_id are required", http.StatusBadRequest)
		return
	}

	b, err := h.engine.Get(r.Context(), tenantID, bookingID)
	if err != nil {
		h.writeError(w, err, "failed to load booking")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, tenantID, id string) (model.Booking, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.TenantID == "" || req.BookingID == "" {
		http.Error(w, "tenant_id and booking_id are required", http.StatusBadRequest)
		return
	}

	b, err := apply(r.Context(), req.TenantID, req.BookingID)
	if err != nil {
		h.writeError(w, err, "failed to apply transition")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// writeError maps the engine's failure kinds onto HTTP statuses: validation
// 400, not found 404, slot conflicts 409, illegal transitions 422.
func (h *BookingHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrSlotUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrState):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func toBookingResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:   b.ID,
		StaffID:     b.StaffID,
		StartAt:     b.Start.UTC().Format(time.RFC3339),
		EndAt:       b.End.UTC().Format(time.RFC3339),
		Status:      string(b.Status),
		PriceCents:  b.PriceCents,
		DurationMin: b.DurationMin,
	}
	if b.ExpiresAt != nil {
		resp.ExpiresAt = b.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func slotItems(slots []interval.Range) []slotItem {
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{
			StartAt: s.Start.UTC().Format(time.RFC3339),
			EndAt:   s.End.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

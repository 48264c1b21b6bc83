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

	"github.com/irodionov/slotbook/internal/memstore"
	"github.com/irodionov/slotbook/internal/model"
	"github.com/irodionov/slotbook/libs/auth"
)

const adminSecret = "test-secret"

func adminToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:      "admin-1",
		TenantID: tenantID,
		Role:     "admin",
		Exp:      time.Now().Add(time.Hour).Unix(),
		Iat:      time.Now().Unix(),
	}, adminSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func adminServer(t *testing.T, store *memstore.Store) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAdminHandler(store, store, store, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/working-hours", h.PutWorkingHours)
	mux.HandleFunc("/time-off", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			h.RemoveTimeOff(w, r)
			return
		}
		h.AddTimeOff(w, r)
	})
	return WithTenantAuth(adminSecret, logger)(mux)
}

func TestAdminRequiresToken(t *testing.T) {
	srv := adminServer(t, memstore.New())

	req := httptest.NewRequest(http.MethodPut, "/working-hours", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/working-hours", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestAdminPutWorkingHours(t *testing.T) {
	store := memstore.New()
	srv := adminServer(t, store)
	staff := store.AddStaff(model.Staff{TenantID: tenant, Name: "Alice", IsActive: true})

	body := `{"staff_id":"` + staff.ID + `","weekday":0,"rows":[{"start_minute":540,"end_minute":1080,"break_start_minute":780,"break_end_minute":840}]}`
	req := httptest.NewRequest(http.MethodPut, "/working-hours", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, tenant))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rows, err := store.WorkingHoursFor(req.Context(), tenant, staff.ID, 0)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 1 || rows[0].StartMinute != 540 || !rows[0].HasBreak() {
		t.Fatalf("stored template wrong: %+v", rows)
	}
}

func TestAdminTimeOffScopedToTokenTenant(t *testing.T) {
	store := memstore.New()
	srv := adminServer(t, store)
	staff := store.AddStaff(model.Staff{TenantID: tenant, Name: "Alice", IsActive: true})

	body := `{"staff_id":"` + staff.ID + `","start_at":"2025-07-01T09:00:00Z","end_at":"2025-07-01T17:00:00Z","reason":"vacation"}`
	req := httptest.NewRequest(http.MethodPost, "/time-off", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, tenant))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Deleting with a token for another tenant must miss.
	var created struct {
		TimeOffID string `json:"time_off_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	req = httptest.NewRequest(http.MethodDelete, "/time-off?time_off_id="+created.TimeOffID, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "other-tenant"))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant delete must 404, got %d", rec.Code)
	}
}

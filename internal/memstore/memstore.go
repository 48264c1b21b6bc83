// Package memstore is an in-memory implementation of every store interface
// the engines consume. It backs the test suites and the dev mode of the
// server binary, where no database is configured. A single store-wide
// RWMutex gives writers the same at-most-one-committed-write guarantee the
// database store gets from its transaction plus advisory lock.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/interval"
	"github.com/irodionov/slotbook/internal/model"
)

type Store struct {
	mu            sync.RWMutex
	staff         map[string]model.Staff
	services      map[string]model.Service
	staffServices map[string]model.StaffService
	workingHours  []model.WorkingHours
	timeOff       map[string]model.TimeOff
	customers     map[string]model.Customer
	bookings      map[string]model.Booking
}

func New() *Store {
	return &Store{
		staff:         make(map[string]model.Staff),
		services:      make(map[string]model.Service),
		staffServices: make(map[string]model.StaffService),
		timeOff:       make(map[string]model.TimeOff),
		customers:     make(map[string]model.Customer),
		bookings:      make(map[string]model.Booking),
	}
}

// --- seeding / admin writes ---

func (s *Store) AddStaff(st model.Staff) model.Staff {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	s.staff[st.ID] = st
	return st
}

func (s *Store) AddService(sv model.Service) model.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sv.ID == "" {
		sv.ID = uuid.NewString()
	}
	s.services[sv.ID] = sv
	return sv
}

func (s *Store) AddStaffService(link model.StaffService) model.StaffService {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	s.staffServices[link.ID] = link
	return link
}

func (s *Store) AddWorkingHours(wh model.WorkingHours) model.WorkingHours {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wh.ID == "" {
		wh.ID = uuid.NewString()
	}
	s.workingHours = append(s.workingHours, wh)
	return wh
}

// ReplaceWorkingHours swaps the whole weekday template for one staff member.
func (s *Store) ReplaceWorkingHours(ctx context.Context, tenantID, staffID string, weekday int, rows []model.WorkingHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.workingHours[:0]
	for _, wh := range s.workingHours {
		if wh.TenantID == tenantID && wh.StaffID == staffID && wh.Weekday == weekday {
			continue
		}
		kept = append(kept, wh)
	}
	s.workingHours = kept
	for _, wh := range rows {
		if wh.ID == "" {
			wh.ID = uuid.NewString()
		}
		wh.TenantID, wh.StaffID, wh.Weekday = tenantID, staffID, weekday
		s.workingHours = append(s.workingHours, wh)
	}
	return nil
}

func (s *Store) AddTimeOff(ctx context.Context, off model.TimeOff) (model.TimeOff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off.ID == "" {
		off.ID = uuid.NewString()
	}
	s.timeOff[off.ID] = off
	return off, nil
}

func (s *Store) DeactivateTimeOff(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, ok := s.timeOff[id]
	if !ok || off.TenantID != tenantID {
		return fmt.Errorf("%w: time off %s", booking.ErrNotFound, id)
	}
	off.IsActive = false
	s.timeOff[id] = off
	return nil
}

// --- read side ---

func (s *Store) StaffByID(ctx context.Context, tenantID, staffID string) (model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.staff[staffID]
	if !ok || st.TenantID != tenantID || !st.IsActive {
		return model.Staff{}, fmt.Errorf("%w: staff %s", booking.ErrNotFound, staffID)
	}
	return st, nil
}

func (s *Store) ActiveStaffService(ctx context.Context, tenantID, staffID, serviceID string) (model.StaffService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, link := range s.staffServices {
		if link.TenantID == tenantID && link.StaffID == staffID && link.ServiceID == serviceID && link.IsActive {
			return link, nil
		}
	}
	return model.StaffService{}, fmt.Errorf("%w: no active service %s for staff %s", booking.ErrNotFound, serviceID, staffID)
}

func (s *Store) StaffServicesFor(ctx context.Context, tenantID, staffID string) ([]model.StaffService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StaffService
	for _, link := range s.staffServices {
		if link.TenantID == tenantID && link.StaffID == staffID && link.IsActive {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) WorkingHoursFor(ctx context.Context, tenantID, staffID string, weekday int) ([]model.WorkingHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.WorkingHours
	for _, wh := range s.workingHours {
		if wh.TenantID == tenantID && wh.StaffID == staffID && wh.Weekday == weekday && wh.IsActive {
			out = append(out, wh)
		}
	}
	return out, nil
}

func (s *Store) TimeOffOverlapping(ctx context.Context, tenantID, staffID string, r interval.Range) ([]model.TimeOff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TimeOff
	for _, off := range s.timeOff {
		if off.TenantID != tenantID || off.StaffID != staffID || !off.IsActive {
			continue
		}
		if off.Start.Before(r.End) && r.Start.Before(off.End) {
			out = append(out, off)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) BlockingBookings(ctx context.Context, tenantID, staffID string, window interval.Range, now time.Time) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID != tenantID || b.StaffID != staffID {
			continue
		}
		if !blocksAt(b, now) {
			continue
		}
		if b.Start.Before(window.End) && window.Start.Before(b.End) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) ListBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID != tenantID || !b.IsActive {
			continue
		}
		if b.Start.Before(to) && from.Before(b.End) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// --- customers ---

func (s *Store) GetByPhoneOrCreate(ctx context.Context, c model.Customer) (model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.customers {
		if existing.TenantID == c.TenantID && existing.Phone == c.Phone {
			if c.Name != "" {
				existing.Name = c.Name
			}
			if c.Email != "" {
				existing.Email = c.Email
			}
			s.customers[id] = existing
			return existing, nil
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	s.customers[c.ID] = c
	return c, nil
}

// --- bookings ---

func (s *Store) Get(ctx context.Context, tenantID, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok || b.TenantID != tenantID || !b.IsActive {
		return model.Booking{}, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	return b, nil
}

// CreateIfFree re-runs the overlap check and inserts under the store-wide
// write lock, so two racing creates serialize here and the second one sees
// the first one's row.
func (s *Store) CreateIfFree(ctx context.Context, b model.Booking, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.bookings {
		if other.TenantID != b.TenantID || other.StaffID != b.StaffID {
			continue
		}
		if !blocksAt(other, now) {
			continue
		}
		if other.Start.Before(b.End) && b.Start.Before(other.End) {
			return fmt.Errorf("%w: interval %s-%s is already booked",
				booking.ErrSlotUnavailable, b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
		}
	}
	s.bookings[b.ID] = b
	return nil
}

func (s *Store) Transition(ctx context.Context, b model.Booking, from model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.bookings[b.ID]
	if !ok || current.TenantID != b.TenantID || !current.IsActive {
		return fmt.Errorf("%w: booking %s", booking.ErrNotFound, b.ID)
	}
	if current.Status != from {
		return fmt.Errorf("%w: booking %s is %s, expected %s", booking.ErrState, b.ID, current.Status, from)
	}
	s.bookings[b.ID] = b
	return nil
}

func blocksAt(b model.Booking, now time.Time) bool {
	if now.IsZero() {
		return b.IsActive && (b.Status == model.StatusConfirmed || b.Status == model.StatusHold)
	}
	return b.BlocksAt(now)
}

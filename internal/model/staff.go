package model

import "time"

// Staff is a bookable resource (a person or a chair) owned by a tenant.
type Staff struct {
	ID        string
	TenantID  string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// Service is a tenant's catalog entry. Duration and price live on the
// staff-service link, not here: the same service can take a different time
// and cost with different people.
type Service struct {
	ID        string
	TenantID  string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// StaffService links a staff member to a service they perform, carrying the
// per-staff duration and price that get snapshotted onto bookings.
type StaffService struct {
	ID          string
	TenantID    string
	StaffID     string
	ServiceID   string
	DurationMin int
	PriceCents  int64
	IsActive    bool
}

package model

import "time"

// Customer is identified within a tenant by phone number. Name and email are
// refreshed on every booking so the latest contact details win.
type Customer struct {
	ID        string
	TenantID  string
	Phone     string
	Name      string
	Email     string
	CreatedAt time.Time
}

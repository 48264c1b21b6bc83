package model

import (
	"fmt"
	"time"
)

// Status is the booking lifecycle state. The set is closed: anything else is
// rejected at the edges by ParseStatus, so switches over Status can be
// exhaustive.
type Status string

const (
	// StatusHold is a short-lived reservation awaiting confirmation. It has
	// an expiry and blocks the slot only until that expiry passes.
	StatusHold Status = "hold"
	// StatusConfirmed is a committed booking. Terminal except for cancellation.
	StatusConfirmed Status = "confirmed"
	// StatusCancelled is terminal and never blocks availability.
	StatusCancelled Status = "cancelled"
	// StatusExpired is a hold whose expiry passed. Terminal, never blocks.
	StatusExpired Status = "expired"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusHold, StatusConfirmed, StatusCancelled, StatusExpired:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// Terminal reports whether no further transition is allowed from s,
// other than confirmed → cancelled.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusExpired:
		return true
	case StatusHold, StatusConfirmed:
		return false
	}
	return false
}

// Booking is the only core entity with a state machine. Duration and price
// are snapshots taken from the staff-service link at creation time; later
// catalog edits never move an existing booking.
type Booking struct {
	ID             string
	TenantID       string
	StaffID        string
	StaffServiceID string
	CustomerID     string
	Start          time.Time
	End            time.Time
	DurationMin    int
	PriceCents     int64
	Status         Status
	ExpiresAt      *time.Time // set only while Status == StatusHold
	Comment        string
	IsActive       bool
	CreatedAt      time.Time
}

// BlocksAt reports whether the booking occupies its staff member's time at
// the given instant: confirmed, or an unexpired hold. Cancelled and expired
// bookings, and logically deleted rows, never block.
func (b Booking) BlocksAt(now time.Time) bool {
	if !b.IsActive {
		return false
	}
	switch b.Status {
	case StatusConfirmed:
		return true
	case StatusHold:
		return b.ExpiresAt != nil && b.ExpiresAt.After(now)
	case StatusCancelled, StatusExpired:
		return false
	}
	return false
}

package booking

import "time"

// Policy carries the tenant-wide temporal rules for booking creation. All
// fields must be positive; Validate runs once at wiring time.
type Policy struct {
	// HoldTTL is how long an unconfirmed hold keeps blocking its slot.
	HoldTTL time.Duration
	// MinLeadTime is the minimum gap between now and a bookable start.
	MinLeadTime time.Duration
	// Horizon is how far into the future a booking may be placed.
	Horizon time.Duration
	// Step is the slot grid: booking starts must land on whole multiples
	// of it from midnight, with no seconds component.
	Step time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		HoldTTL:     10 * time.Minute,
		MinLeadTime: 60 * time.Minute,
		Horizon:     30 * 24 * time.Hour,
		Step:        15 * time.Minute,
	}
}

func (p Policy) Validate() error {
	if p.HoldTTL <= 0 || p.MinLeadTime <= 0 || p.Horizon <= 0 {
		return ErrValidation
	}
	if p.Step < time.Minute || p.Step%time.Minute != 0 {
		return ErrValidation
	}
	return nil
}

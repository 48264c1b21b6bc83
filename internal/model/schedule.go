package model

import "time"

// WorkingHours is a staff member's weekly template for one weekday. Times
// are minutes from midnight; EndMinute <= StartMinute means the shift wraps
// past midnight into the next day. A break is present when
// BreakEndMinute > BreakStartMinute.
type WorkingHours struct {
	ID               string
	TenantID         string
	StaffID          string
	Weekday          int // 0 = Monday .. 6 = Sunday
	StartMinute      int
	EndMinute        int
	BreakStartMinute int
	BreakEndMinute   int
	IsActive         bool
}

// HasBreak reports whether the template carries a mid-shift break.
func (w WorkingHours) HasBreak() bool {
	return w.BreakEndMinute > w.BreakStartMinute
}

// Overnight reports whether the shift wraps past midnight.
func (w WorkingHours) Overnight() bool {
	return w.EndMinute <= w.StartMinute
}

// TimeOff is an absolute absence interval (vacation, sick leave) that
// overrides the weekly template.
type TimeOff struct {
	ID       string
	TenantID string
	StaffID  string
	Start    time.Time
	End      time.Time
	Reason   string
	IsActive bool
}

// WeekdayIndex maps a time to the Monday-based weekday used by the weekly
// template, in t's own location.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

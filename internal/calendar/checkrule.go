package calendar

import "time"

// CheckPolicy fixes the measurement-check scheduling rules.
//
// Two historical policies existed for the buffer day (always add one extra
// business day vs. add it only when the sale happened today) and for the
// allowed weekday set ({Mon,Wed,Fri} vs {Wed,Fri,Sat}). The policy in force
// is a process constant; both remain expressible here.
type CheckPolicy struct {
	// Weekdays a measurement check may land on. Must be non-empty.
	Weekdays []time.Weekday

	// AlwaysBuffer adds one extra business day unconditionally.
	// When false the extra day is added only if the sale date is "today"
	// at evaluation time.
	AlwaysBuffer bool
}

// DefaultCheckPolicy is the policy in force: buffer always, checks on
// Monday, Wednesday or Friday.
var DefaultCheckPolicy = CheckPolicy{
	Weekdays:     []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	AlwaysBuffer: true,
}

// SlotWeekdays is the day filter for measurement-check appointment slots.
var SlotWeekdays = []time.Weekday{time.Wednesday, time.Friday, time.Saturday}

func (p CheckPolicy) allows(wd time.Weekday) bool {
	for _, w := range p.Weekdays {
		if w == wd {
			return true
		}
	}
	return false
}

// CheckDeadline computes the measurement-check deadline for a sale date.
//
// The tentative date is minDays business days after the sale (plus the
// buffer day per policy); if its weekday is not allowed it advances one
// calendar day at a time until an allowed weekday is reached. At most six
// steps are ever needed. The result is end-of-day in the calendar's
// location, as a UTC instant.
func (c *Calendar) CheckDeadline(saleDate time.Time, minDays int, pol CheckPolicy, now time.Time) time.Time {
	days := minDays
	if pol.AlwaysBuffer || c.SameDay(saleDate, now) {
		days++
	}

	d := c.AddBusinessDays(saleDate, days).In(c.loc)
	for !pol.allows(d.Weekday()) {
		d = d.AddDate(0, 0, 1)
	}
	return c.EndOfDay(d)
}

// NextAllowedDay returns the first calendar date strictly after t whose
// weekday is in allowed. The search is bounded by window days; ok is false
// when no allowed weekday exists inside the window.
func (c *Calendar) NextAllowedDay(t time.Time, allowed []time.Weekday, window int) (time.Time, bool) {
	d := t.In(c.loc)
	for i := 0; i < window; i++ {
		d = d.AddDate(0, 0, 1)
		for _, w := range allowed {
			if d.Weekday() == w {
				return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc), true
			}
		}
	}
	return time.Time{}, false
}

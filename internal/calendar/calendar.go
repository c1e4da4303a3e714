package calendar

import "time"

// Calendar does business-day arithmetic in one fixed-offset location.
//
// All returned instants are normalized to UTC; the location only decides
// where "end of day" and weekday boundaries fall.
type Calendar struct {
	loc *time.Location
}

func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

func (c *Calendar) Location() *time.Location { return c.loc }

// IsBusinessDay reports whether t falls on Monday..Friday in the calendar's location.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// AddBusinessDays advances t by n business days, counting from the NEXT
// calendar day (the starting day's own weekday never counts), and returns
// the result normalized to 23:59:59.999 local time as a UTC instant.
//
// n = 0 adds nothing but still normalizes the time of day.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	d := t.In(c.loc)
	added := 0
	for added < n {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd >= time.Monday && wd <= time.Friday {
			added++
		}
	}
	return c.EndOfDay(d)
}

// EndOfDay normalizes t to 23:59:59.999 in the calendar's location,
// returned as the equivalent UTC instant.
func (c *Calendar) EndOfDay(t time.Time) time.Time {
	d := t.In(c.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 999*int(time.Millisecond), c.loc).UTC()
}

// SameDay reports whether a and b fall on the same calendar date in the
// calendar's location, ignoring time of day.
func (c *Calendar) SameDay(a, b time.Time) bool {
	al, bl := a.In(c.loc), b.In(c.loc)
	ay, am, ad := al.Date()
	by, bm, bd := bl.Date()
	return ay == by && am == bm && ad == bd
}

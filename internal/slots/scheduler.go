// Package slots packs measurement-check appointments into per-designer,
// per-day 90-minute slots inside the 09:00-17:00 working window. When a
// day's window is exhausted the booking moves to the next valid check day
// (Wednesday, Friday or Saturday). The next-available time per (designer,
// day) lives in the relational store and every booking is one transaction,
// so two overlapping runs can never hand out the same slot.
package slots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ordersched/internal/calendar"
	"ordersched/internal/storage"
	logx "ordersched/pkg/logx"
)

// ErrNoSlot means no bookable day was found inside the search window.
var ErrNoSlot = errors.New("slots: no free slot inside the search window")

const (
	slotDuration = 90 * time.Minute
	windowStart  = "09:00"
	windowEndMin = 17 * 60 // 17:00 as minutes since midnight

	// searchWindow bounds the day-overflow loop. The slot weekday set
	// repeats within any 7 calendar days, so each hop always finds a
	// candidate day; the bound guards against a pathological ledger where
	// every candidate day is already full.
	searchWindow = 7
)

// Slot is one booked appointment, all instants in UTC.
// Alert fires one hour before the slot ends.
type Slot struct {
	Start time.Time
	End   time.Time
	Alert time.Time
	Day   string // local calendar date, YYYY-MM-DD
}

type Scheduler struct {
	db  *storage.DB
	cal *calendar.Calendar
	log logx.Logger
}

func New(db *storage.DB, cal *calendar.Calendar, log logx.Logger) *Scheduler {
	return &Scheduler{db: db, cal: cal, log: log.With(logx.String("comp", "slots"))}
}

// NextSlot books the next free 90-minute slot for a designer, starting on
// the given date and overflowing to later check days as needed.
func (s *Scheduler) NextSlot(ctx context.Context, designerID string, date time.Time) (Slot, error) {
	day := date
	for hop := 0; hop < searchWindow; hop++ {
		slot, full, err := s.tryBook(ctx, designerID, day)
		if err != nil {
			return Slot{}, err
		}
		if !full {
			return slot, nil
		}

		next, ok := s.cal.NextAllowedDay(day, calendar.SlotWeekdays, searchWindow)
		if !ok {
			break
		}
		s.log.Debug("day window exhausted; moving booking",
			logx.String("designer", designerID),
			logx.Time("from", day),
			logx.Time("to", next))
		day = next
	}
	return Slot{}, fmt.Errorf("designer %s from %s: %w", designerID, date.Format("2006-01-02"), ErrNoSlot)
}

// tryBook attempts one atomic read-modify-write booking on a single day.
// full=true means the day's window cannot fit another slot.
func (s *Scheduler) tryBook(ctx context.Context, designerID string, day time.Time) (Slot, bool, error) {
	loc := s.cal.Location()
	local := day.In(loc)
	dayKey := local.Format("2006-01-02")

	tx, err := s.db.BeginTx(ctx, s.db.TxOptions())
	if err != nil {
		return Slot{}, false, fmt.Errorf("slot book: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var nextStart string
	err = tx.QueryRowContext(ctx,
		s.db.Rebind(`SELECT next_start FROM day_slots WHERE designer_id = ? AND day = ?`+s.db.ForUpdate()),
		designerID, dayKey,
	).Scan(&nextStart)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		nextStart = windowStart
		if _, err := tx.ExecContext(ctx,
			s.db.Rebind(`INSERT INTO day_slots (designer_id, day, next_start) VALUES (?, ?, ?)`),
			designerID, dayKey, nextStart); err != nil {
			return Slot{}, false, fmt.Errorf("slot book insert: %w", err)
		}
	case err != nil:
		return Slot{}, false, fmt.Errorf("slot book read: %w", err)
	}

	startMin, err := parseHHMM(nextStart)
	if err != nil {
		return Slot{}, false, fmt.Errorf("slot ledger %s/%s: %w", designerID, dayKey, err)
	}
	endMin := startMin + int(slotDuration.Minutes())
	if endMin > windowEndMin {
		// Window exhausted; leave the ledger row untouched.
		return Slot{}, true, nil
	}

	if _, err := tx.ExecContext(ctx,
		s.db.Rebind(`UPDATE day_slots SET next_start = ?, updated_at = CURRENT_TIMESTAMP WHERE designer_id = ? AND day = ?`),
		formatHHMM(endMin), designerID, dayKey); err != nil {
		return Slot{}, false, fmt.Errorf("slot book update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Slot{}, false, fmt.Errorf("slot book commit: %w", err)
	}

	start := time.Date(local.Year(), local.Month(), local.Day(), startMin/60, startMin%60, 0, 0, loc).UTC()
	end := start.Add(slotDuration)
	slot := Slot{Start: start, End: end, Alert: end.Add(-time.Hour), Day: dayKey}

	s.log.Debug("slot booked",
		logx.String("designer", designerID),
		logx.String("day", dayKey),
		logx.Time("start", slot.Start),
		logx.Time("end", slot.End))
	return slot, false, nil
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

func formatHHMM(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

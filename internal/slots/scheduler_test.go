package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"ordersched/internal/calendar"
	"ordersched/internal/storage"
	logx "ordersched/pkg/logx"
)

var manaus = time.FixedZone("-04", -4*60*60)

func newTestScheduler(t *testing.T) (*Scheduler, *storage.DB) {
	t.Helper()
	db, err := storage.Open(storage.Config{Driver: "sqlite", DSN: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, calendar.New(manaus), logx.Nop()), db
}

func TestNextSlotPacksDay(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, manaus) // Wednesday

	// Five 90-minute slots fit in 09:00-17:00: the last starts 15:00.
	wantStarts := []string{"09:00", "10:30", "12:00", "13:30", "15:00"}
	for i, want := range wantStarts {
		slot, err := s.NextSlot(ctx, "a", day)
		if err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
		if got := slot.Start.In(manaus).Format("15:04"); got != want {
			t.Fatalf("slot %d start = %s, want %s", i, got, want)
		}
		if slot.Day != "2026-03-04" {
			t.Fatalf("slot %d day = %s, want 2026-03-04", i, slot.Day)
		}
		if got := slot.End.Sub(slot.Start); got != 90*time.Minute {
			t.Fatalf("slot %d length = %v", i, got)
		}
		if got := slot.End.Sub(slot.Alert); got != time.Hour {
			t.Fatalf("slot %d alert offset = %v, want 1h before end", i, got)
		}
	}
}

func TestNextSlotOverflowsToNextCheckDay(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, manaus) // Wednesday
	for i := 0; i < 5; i++ {
		if _, err := s.NextSlot(ctx, "a", day); err != nil {
			t.Fatalf("fill slot %d: %v", i, err)
		}
	}

	// Sixth booking lands on Friday 09:00.
	slot, err := s.NextSlot(ctx, "a", day)
	if err != nil {
		t.Fatalf("overflow slot: %v", err)
	}
	if slot.Day != "2026-03-06" {
		t.Fatalf("overflow day = %s, want 2026-03-06", slot.Day)
	}
	if got := slot.Start.In(manaus).Format("15:04"); got != "09:00" {
		t.Fatalf("overflow start = %s, want 09:00", got)
	}
}

func TestNextSlotPerDesignerLedgers(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, manaus)
	if _, err := s.NextSlot(ctx, "a", day); err != nil {
		t.Fatalf("designer a: %v", err)
	}

	// Another designer's day starts fresh at 09:00.
	slot, err := s.NextSlot(ctx, "b", day)
	if err != nil {
		t.Fatalf("designer b: %v", err)
	}
	if got := slot.Start.In(manaus).Format("15:04"); got != "09:00" {
		t.Fatalf("designer b start = %s, want 09:00", got)
	}
}

func TestNextSlotExhaustedWindow(t *testing.T) {
	t.Parallel()
	s, db := newTestScheduler(t)
	ctx := context.Background()

	// Mark every candidate day inside the search window as full.
	full := []string{
		"2026-03-04", // Wed (start)
		"2026-03-06", // Fri
		"2026-03-07", // Sat
		"2026-03-11", "2026-03-13", "2026-03-14", "2026-03-18",
	}
	for _, d := range full {
		if _, err := db.ExecContext(ctx,
			db.Rebind(`INSERT INTO day_slots (designer_id, day, next_start) VALUES (?, ?, ?)`),
			"a", d, "16:00"); err != nil {
			t.Fatalf("seed %s: %v", d, err)
		}
	}

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, manaus)
	if _, err := s.NextSlot(ctx, "a", day); !errors.Is(err, ErrNoSlot) {
		t.Fatalf("expected ErrNoSlot, got %v", err)
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	min, err := parseHHMM("10:30")
	if err != nil {
		t.Fatalf("parseHHMM: %v", err)
	}
	if min != 10*60+30 {
		t.Fatalf("parseHHMM = %d", min)
	}
	if _, err := parseHHMM("25:00"); err == nil {
		t.Fatal("expected error for invalid hour")
	}
	if got := formatHHMM(16*60 + 30); got != "16:30" {
		t.Fatalf("formatHHMM = %s", got)
	}
}

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ordersched/internal/calendar"
	"ordersched/internal/config"
	"ordersched/internal/planner"
	"ordersched/internal/pontta"
	logx "ordersched/pkg/logx"
)

var manaus = time.FixedZone("-04", -4*60*60)

func TestTaskCreatorConversion(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/SALES_ORDER/order-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	client, err := pontta.New(pontta.Config{
		BaseURL: srv.URL, Email: "u@example.com", Password: "pw", RatePerSec: 1000,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	alert := time.Date(2026, 3, 6, 13, 30, 0, 0, time.UTC)
	tc := &taskCreator{client: client, token: "tok"}
	err = tc.CreateTask(context.Background(), "order-1", planner.Task{
		Title:      "01 - Sala Checagem de medida",
		AssigneeID: "designer-1",
		Deadline:   alert.Add(time.Hour),
		Alert:      &alert,
		Minutes:    90,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if got["responsible"] != "designer-1" {
		t.Errorf("responsible = %v", got["responsible"])
	}
	if got["type"] != "OTHER" {
		t.Errorf("type = %v", got["type"])
	}
	if got["time"] != "90" {
		t.Errorf("time = %v, want the string \"90\"", got["time"])
	}
	if got["alert"] == nil {
		t.Error("alert missing")
	}
}

func TestTaskCreatorLeavesTimeNull(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	t.Cleanup(srv.Close)

	client, err := pontta.New(pontta.Config{
		BaseURL: srv.URL, Email: "u@example.com", Password: "pw", RatePerSec: 1000,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	tc := &taskCreator{client: client, token: "tok"}
	if err := tc.CreateTask(context.Background(), "o", planner.Task{Title: "x", Deadline: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if v, ok := got["time"]; !ok || v != nil {
		t.Errorf("time should serialize as null, got present=%v value=%v", ok, v)
	}
	if v, ok := got["alert"]; !ok || v != nil {
		t.Errorf("alert should serialize as null, got present=%v value=%v", ok, v)
	}
}

func TestQueryWindowPinned(t *testing.T) {
	t.Parallel()
	a := &App{cal: calendar.New(manaus)}
	cfg := &config.Config{}
	cfg.Pontta.Start = "2026-03-02T00:00:00-04:00"
	cfg.Pontta.End = "2026-03-02T23:59:59-04:00"

	start, end, err := a.queryWindow(cfg)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !start.Equal(time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(time.Date(2026, 3, 3, 3, 59, 59, 0, time.UTC)) {
		t.Fatalf("end = %v", end)
	}
}

func TestQueryWindowToday(t *testing.T) {
	t.Parallel()
	a := &App{cal: calendar.New(manaus)}

	start, end, err := a.queryWindow(&config.Config{})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !start.Before(end) {
		t.Fatalf("start %v not before end %v", start, end)
	}
	// The window covers exactly one local day.
	if got := end.Sub(start); got != 24*time.Hour-time.Millisecond {
		t.Fatalf("window length = %v", got)
	}
	if lt := start.In(manaus); lt.Hour() != 0 || lt.Minute() != 0 {
		t.Fatalf("start not at local midnight: %v", lt)
	}
}

package pontta

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "ordersched/pkg/logx"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:      srv.URL,
		Email:        "user@example.com",
		Password:     "secret",
		BusinessUnit: "bu-1",
		RatePerSec:   1000, // don't throttle tests
	}, logx.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/authenticate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["email"] != "user@example.com" || req["password"] != "secret" {
			t.Errorf("unexpected credentials: %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": "tok-123"})
	}))

	token, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if token != "tok-123" {
		t.Fatalf("token = %q", token)
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))

	if _, err := c.Authenticate(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestListOrders(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sales-orders/summary" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("businessunit"); got != "bu-1" {
			t.Errorf("businessunit = %q", got)
		}
		q := r.URL.Query()
		if q.Get("start") != "2026-03-02T04:00:00.000Z" {
			t.Errorf("start = %q", q.Get("start"))
		}
		if q.Get("end") != "2026-03-03T03:59:59.999Z" {
			t.Errorf("end = %q", q.Get("end"))
		}
		_ = json.NewEncoder(w).Encode([]OrderSummary{{ID: "1", Code: "PED-1"}})
	}))

	start := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 3, 3, 59, 59, 999*int(time.Millisecond), time.UTC)
	orders, err := c.ListOrders(context.Background(), "tok", start, end)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || orders[0].Code != "PED-1" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestOrderDetailsShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "single object", body: `{"id":"1","code":"PED-1","items":[{"name":"Sala"}]}`, want: 1},
		{name: "array", body: `[{"id":"1","code":"PED-1"},{"id":"2","code":"PED-1"}]`, want: 2},
		{name: "null", body: `null`, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("code"); got != "PED-1" {
					t.Errorf("code = %q", got)
				}
				_, _ = io.WriteString(w, tt.body)
			}))

			orders, err := c.OrderDetails(context.Background(), "tok", "PED-1")
			if err != nil {
				t.Fatalf("order details: %v", err)
			}
			if len(orders) != tt.want {
				t.Fatalf("got %d orders, want %d", len(orders), tt.want)
			}
		})
	}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks/SALES_ORDER/order-9" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var got map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if got["title"] != "01 - Sala Checagem de medida" {
			t.Errorf("title = %v", got["title"])
		}
		if got["type"] != "OTHER" {
			t.Errorf("type = %v", got["type"])
		}
		// Unset optionals must serialize as null, not be omitted.
		for _, k := range []string{"id", "comment", "alert", "time", "workflowPositionId", "note"} {
			if v, ok := got[k]; !ok || v != nil {
				t.Errorf("field %s: present=%v value=%v", k, ok, v)
			}
		}
		w.WriteHeader(http.StatusCreated)
	}))

	err := c.CreateTask(context.Background(), "tok", "order-9", Task{
		Title:       "01 - Sala Checagem de medida",
		Responsible: "designer-1",
		Deadline:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func TestErrorStatusNotRetried(t *testing.T) {
	t.Parallel()
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	c.cfg.Retries = 3

	if _, err := c.ListOrders(context.Background(), "tok", time.Now(), time.Now()); err == nil {
		t.Fatal("expected error for 502")
	}
	if calls != 1 {
		t.Fatalf("HTTP error status retried %d times", calls)
	}
}

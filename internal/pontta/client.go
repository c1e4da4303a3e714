// Package pontta is the HTTP client for the order-management API.
// It handles authentication, the order summary/detail reads and task
// creation; every call is throttled through a shared rate limiter to
// respect the API's limits.
package pontta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "ordersched/pkg/logx"
)

// ErrAuth means the API rejected the configured credentials or the token
// response had no id_token.
var ErrAuth = errors.New("pontta: authentication failed")

type Config struct {
	BaseURL      string
	Email        string
	Password     string
	BusinessUnit string

	Timeout    time.Duration // per attempt; 0 means 15s
	Retries    int           // transport-level retries per call
	RatePerSec int           // outbound request budget; 0 means 2/s
}

type Client struct {
	baseURL string
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("pontta: base url is required")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errors.New("pontta: credentials are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		baseURL: base,
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.With(logx.String("comp", "pontta")),
	}, nil
}

// Authenticate exchanges the configured credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{Email: c.cfg.Email, Password: c.cfg.Password})
	if err != nil {
		return "", fmt.Errorf("pontta auth marshal: %w", err)
	}

	var auth authResponse
	if err := c.do(ctx, http.MethodPost, "/api/authenticate", "", body, &auth); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if strings.TrimSpace(auth.IDToken) == "" {
		return "", fmt.Errorf("%w: no id_token in response", ErrAuth)
	}
	c.log.Debug("authenticated")
	return auth.IDToken, nil
}

// ListOrders returns the order summaries inside [start, end].
func (c *Client) ListOrders(ctx context.Context, token string, start, end time.Time) ([]OrderSummary, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format("2006-01-02T15:04:05.000Z"))
	q.Set("end", end.UTC().Format("2006-01-02T15:04:05.000Z"))

	var out []OrderSummary
	if err := c.do(ctx, http.MethodGet, "/api/sales-orders/summary?"+q.Encode(), token, nil, &out); err != nil {
		return nil, fmt.Errorf("pontta list orders: %w", err)
	}
	return out, nil
}

// OrderDetails fetches the full order (items included) for a code.
// The API may answer with a single object or an array; both are accepted.
func (c *Client) OrderDetails(ctx context.Context, token, code string) ([]Order, error) {
	var raw json.RawMessage
	path := "/api/sales-orders?code=" + url.QueryEscape(code)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &raw); err != nil {
		return nil, fmt.Errorf("pontta order details %s: %w", code, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var many []Order
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, fmt.Errorf("pontta order details %s decode: %w", code, err)
		}
		return many, nil
	}
	var one Order
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("pontta order details %s decode: %w", code, err)
	}
	return []Order{one}, nil
}

// CreateTask posts one follow-up task onto a sales order.
func (c *Client) CreateTask(ctx context.Context, token, orderID string, t Task) error {
	if t.Type == "" {
		t.Type = "OTHER"
	}
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("pontta task marshal: %w", err)
	}
	path := "/api/tasks/SALES_ORDER/" + url.PathEscape(orderID)
	if err := c.do(ctx, http.MethodPost, path, token, body, nil); err != nil {
		return fmt.Errorf("pontta create task %q: %w", t.Title, err)
	}
	return nil
}

// do runs one throttled request with transport-level retries.
// HTTP error statuses are not retried; the caller decides per item.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte, out any) error {
	attempts := c.cfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if c.cfg.BusinessUnit != "" {
			req.Header.Set("businessunit", c.cfg.BusinessUnit)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if i < attempts-1 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
				}
				continue
			}
			break
		}

		err = decode(resp, out)
		_ = resp.Body.Close()
		return err
	}
	return fmt.Errorf("%s %s: %w", method, path, lastErr)
}

func decode(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

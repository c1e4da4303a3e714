package pontta

import "time"

// OrderSummary is one row of GET /api/sales-orders/summary.
type OrderSummary struct {
	ID       string    `json:"id"`
	Code     string    `json:"code"`
	SaleDate time.Time `json:"saleDate"`
}

// Order is the detail payload of GET /api/sales-orders?code=.
// Items at the first level are the order's environments (rooms).
type Order struct {
	ID       string    `json:"id"`
	Code     string    `json:"code"`
	SaleDate time.Time `json:"saleDate"`
	Items    []Item    `json:"items"`
}

type Item struct {
	Name string `json:"name"`
}

// Task is the payload of POST /api/tasks/SALES_ORDER/{orderID}.
// Optional fields stay null on the wire when unset, matching what the
// API expects for plain deadline tasks.
type Task struct {
	ID                 *string    `json:"id"`
	Title              string     `json:"title"`
	Responsible        string     `json:"responsible"`
	Comment            *string    `json:"comment"`
	Alert              *time.Time `json:"alert"`
	Deadline           time.Time  `json:"deadline"`
	Time               *string    `json:"time"`
	Type               string     `json:"type"`
	WorkflowPositionID *string    `json:"workflowPositionId"`
	Note               *string    `json:"note"`
}

type authRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type authResponse struct {
	IDToken string `json:"id_token"`
}

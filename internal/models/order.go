package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Order statuses. An order is created in StatusPendingPayment and only ever
// moves forward; Completed and Cancelled are terminal.
const (
	StatusPendingPayment = "pending_payment"
	StatusQueued         = "queued"
	StatusInProgress     = "in_progress"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       string `bun:"order_id,pk" json:"order_id"`
	CustomerName  string `bun:"customer_name,notnull" json:"customer_name"`
	CustomerEmail string `bun:"customer_email,notnull" json:"customer_email"`
	CustomerPhone string `bun:"customer_phone,nullzero" json:"customer_phone,omitempty"`
	Status        string `bun:"status,notnull" json:"status"`

	// QueuePosition and EstimatedWaitMinutes are cached values refreshed by the
	// global position recompute. status != queued means they are void regardless
	// of what the columns hold.
	QueuePosition        *int `bun:"queue_position,nullzero" json:"queue_position,omitempty"`
	EstimatedWaitMinutes *int `bun:"estimated_wait_minutes,nullzero" json:"estimated_wait_minutes,omitempty"`

	ReadingContent string `bun:"reading_content,nullzero" json:"reading_content,omitempty"`
	ReadingNotes   string `bun:"reading_notes,nullzero" json:"reading_notes,omitempty"`

	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	StartedAt   *time.Time `bun:"started_at,nullzero" json:"started_at,omitempty"`
	CompletedAt *time.Time `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the order can never change state again.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

type OrderRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

type OrderResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

// QueueStats is the public snapshot of the queue over a UTC calendar day.
type QueueStats struct {
	TotalInQueue       int  `json:"total_in_queue"`
	EstimatedWaitTime  int  `json:"estimated_wait_time"`
	DailyLimit         int  `json:"daily_limit"`
	DailyOrders        int  `json:"daily_orders"`
	CanAcceptNewOrders bool `json:"can_accept_new_orders"`
}

// QueuePosition is the live position of a single order, recomputed on read.
type QueuePosition struct {
	OrderID           string `json:"order_id"`
	Position          int    `json:"position"`
	EstimatedWaitTime int    `json:"estimated_wait_time"`
	Status            string `json:"status"`
}

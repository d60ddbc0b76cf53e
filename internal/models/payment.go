package models

import "time"

// PaymentEvent is the gateway-agnostic payment notification delivered by
// webhook or over the payment-success Kafka topic. Signature verification
// happens upstream of this service.
type PaymentEvent struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"` // success, failed, refunded
	OccurredAt    time.Time `json:"occurred_at"`
}

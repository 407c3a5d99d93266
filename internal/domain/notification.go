package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification outcome statuses surfaced to the user.
const (
	NotificationStatusConfirmed = "CONFIRMED"
	NotificationStatusRejected  = "REJECTED"
)

// NotificationPayload is the user-facing body built once per reconciled
// transfer event. Timestamps are millisecond epoch values, matching what the
// web client already renders.
type NotificationPayload struct {
	Dest        string            `json:"dest"`
	Source      string            `json:"source"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata"`
	Currency    string            `json:"currency"`
	Amount      int64             `json:"amount"`
	CreatedAt   int64             `json:"createdAt"`
	ConfirmedAt int64             `json:"confirmedAt"`
	OrderRef    string            `json:"orderRef"`
	Status      string            `json:"status"`
}

// Notification is the persisted notification entity. This struct maps to the
// `notifications` table; Payload is stored as JSONB.
type Notification struct {
	ID        uuid.UUID           `json:"id"`
	UserID    uuid.UUID           `json:"user_id"`
	Payload   NotificationPayload `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
}

// OrderSettledEvent is the message published to RabbitMQ when an order
// leaves the pending state, for downstream services (accounting, email).
type OrderSettledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	Ref        string    `json:"ref"`
	UserID     uuid.UUID `json:"user_id"`
	Status     string    `json:"status"`
	Amount     int64     `json:"amount"`
	TxHash     string    `json:"tx_hash"`
	OccurredAt time.Time `json:"occurred_at"`
}

package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCancelled = "OrderCancelled"
	EventOrderDeleted   = "OrderDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderPlacedPayload struct {
	OrderID      string    `json:"order_id"`
	TrackingCode string    `json:"tracking_code"`
	UserID       string    `json:"user_id"`
	Items        []ItemQty `json:"items"`
	TotalPrice   string    `json:"total_price"`
}

type OrderCancelledPayload struct {
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id"`
	Items   []ItemQty `json:"items"`
}

type OrderDeletedPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
	// RefundFailed marks deletions whose stock refund did not go through:
	// the counters were left untouched and need manual reconciliation.
	RefundFailed bool `json:"refund_failed,omitempty"`
}

package inventory

import "time"

// Action labels one kind of stock mutation in the audit ledger.
type Action string

const (
	ActionReserved   Action = "reserved"
	ActionUnreserved Action = "unreserved"
	ActionDeducted   Action = "deducted"
	ActionRefunded   Action = "refunded"
)

const (
	ReasonCheckoutHold   = "Reserved during checkout"
	ReasonOrderConfirmed = "Order confirmed and paid"
	ReasonCancelled      = "Order cancelled by customer"
	ReasonDeleted        = "Order deleted/cancelled"
	ReasonAbandoned      = "Checkout abandoned"
	ReasonHoldConsumed   = "Checkout hold consumed by order"
)

// Entry is one immutable audit row. Summing deducted minus refunded for a
// product rebuilds its stock_remaining delta; reserved minus unreserved
// rebuilds stock_reserved.
type Entry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Action    Action    `json:"action"`
	Quantity  int       `json:"quantity"`
	OrderID   string    `json:"orderId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// LineRequest is one requested product/quantity pair.
type LineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Shortfall describes one line that cannot be satisfied.
type Shortfall struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
	Reason      string `json:"error"`
}

// History is the stock-history query result: current counters plus the
// full ledger, newest first.
type History struct {
	ProductID      string  `json:"productId"`
	ProductName    string  `json:"productName"`
	CurrentStock   int     `json:"currentStock"`
	ReservedStock  int     `json:"reservedStock"`
	AvailableStock int     `json:"availableStock"`
	Entries        []Entry `json:"history"`
}

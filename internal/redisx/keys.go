package redisx

import "time"

const (
	// Cache of order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Cache of stock_remaining per product: stock:levels:{product_id} -> int
	KeyStockLevel = "stock:levels:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLStockCache  = 1 * time.Minute
	TTLDedup       = 48 * time.Hour
)

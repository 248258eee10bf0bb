package orders

const (
	TopicOrderPlaced    = "storefront.order.placed"
	TopicOrderCancelled = "storefront.order.cancelled"
	TopicOrderDeleted   = "storefront.order.deleted"
)

// Topics lists everything stockwatch subscribes to.
func Topics() []string {
	return []string{TopicOrderPlaced, TopicOrderCancelled, TopicOrderDeleted}
}

// Partition key = order id, so all events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

package orders

type Status string

const (
	StatusInTransit Status = "In Transit"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
	StatusReturned  Status = "Returned"
)

var validNext = map[Status]map[Status]bool{
	StatusInTransit: {StatusShipped: true, StatusCancelled: true, StatusReturned: true},
	StatusShipped:   {StatusDelivered: true, StatusReturned: true},
	StatusDelivered: {StatusReturned: true},
	StatusCancelled: {},
	StatusReturned:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Cancellable reports whether a customer may still cancel. Only an order
// still in transit qualifies: shipped goods can only be returned, and a
// cancelled order must not be cancelled (and refunded) a second time.
func (s Status) Cancellable() bool {
	return CanTransition(s, StatusCancelled)
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

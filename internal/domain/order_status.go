package domain

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every placed order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed means the order has been acknowledged for fulfilment.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing means the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped means the order has left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCompleted means the order was delivered and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is a terminal state reached before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded is a terminal state reached after payment reversal.
	OrderStatusRefunded OrderStatus = "refunded"
)

// OrderStatuses lists every valid status value.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// ValidOrderStatus reports whether s is a member of the status enum.
func ValidOrderStatus(s OrderStatus) bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CancelLike reports whether s is one of the terminal states that credit
// stock back to the catalog on first entry.
func (s OrderStatus) CancelLike() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s.CancelLike()
}

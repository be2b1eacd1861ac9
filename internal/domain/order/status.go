package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusOnTheWay  Status = "on-the-way"
	StatusDelivered Status = "delivered"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusPreparing, StatusOnTheWay, StatusDelivered}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusOnTheWay, StatusDelivered:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered
}

// CanTransition reports whether an order in status from may be moved to to.
// Only the terminal guard is enforced; states may be skipped or revisited.
func CanTransition(from, to Status) bool {
	return !from.Terminal() && to.Valid()
}

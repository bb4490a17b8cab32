package models

// Status is a booking lifecycle state as named by the backend.
type Status string

const (
	StatusPending         Status = "Pending"
	StatusDriverAssigned  Status = "Driver Assigned"
	StatusEnRouteToPickup Status = "En Route to Pickup"
	StatusGoodsCollected  Status = "Goods Collected"
	StatusInTransit       Status = "In Transit"
	StatusDelivered       Status = "Delivered"
	StatusCompleted       Status = "Completed"

	// StatusRejected is a side exit from Pending and has no rank.
	StatusRejected Status = "Rejected"
)

var lifecycle = []Status{
	StatusPending,
	StatusDriverAssigned,
	StatusEnRouteToPickup,
	StatusGoodsCollected,
	StatusInTransit,
	StatusDelivered,
	StatusCompleted,
}

// Lifecycle returns the forward transition order.
func Lifecycle() []Status {
	out := make([]Status, len(lifecycle))
	copy(out, lifecycle)
	return out
}

// Rank is the position of s in the forward order, or -1 when s is not part of it.
func (s Status) Rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Rank() >= 0 || s == StatusRejected }

// Next returns the single status that may follow s.
func (s Status) Next() (Status, bool) {
	r := s.Rank()
	if r < 0 || r == len(lifecycle)-1 {
		return "", false
	}
	return lifecycle[r+1], true
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusRejected }

// CanAdvance reports whether to is exactly one step after s.
func (s Status) CanAdvance(to Status) bool {
	next, ok := s.Next()
	return ok && next == to
}

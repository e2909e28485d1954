package stage

import "fmt"

// Stage is the order's position in the delivery lifecycle.
type Stage string

const (
	Initial            Stage = "initial"
	Ordering           Stage = "ordering"
	AddressCapture     Stage = "address_capture"
	PaymentPending     Stage = "payment_pending"
	PaymentConfirmed   Stage = "payment_confirmed"
	RestaurantNotified Stage = "restaurant_notified"
	DriverAssigned     Stage = "driver_assigned"
	Preparing          Stage = "preparing"
	PickedUp           Stage = "picked_up"
	OnTheWay           Stage = "on_the_way"
	AlmostThere        Stage = "almost_there"
	Delivered          Stage = "delivered"
	Completed          Stage = "completed"
	Cancelled          Stage = "cancelled"
)

var next = map[Stage]Stage{
	Initial:            Ordering,
	Ordering:           AddressCapture,
	AddressCapture:     PaymentPending,
	PaymentPending:     PaymentConfirmed,
	PaymentConfirmed:   RestaurantNotified,
	RestaurantNotified: DriverAssigned,
	DriverAssigned:     Preparing,
	Preparing:          PickedUp,
	PickedUp:           OnTheWay,
	OnTheWay:           AlmostThere,
	AlmostThere:        Delivered,
	Delivered:          Completed,
}

// Next returns the stage that follows s on the happy path.
func Next(s Stage) (Stage, bool) {
	n, ok := next[s]
	return n, ok
}

// Cancellable reports whether an order in s may still be cancelled.
func Cancellable(s Stage) bool {
	return s == Ordering || s == AddressCapture || s == PaymentPending
}

// Tracking reports whether s is one of the delivery sub-stages driven by
// status requests.
func Tracking(s Stage) bool {
	switch s {
	case DriverAssigned, Preparing, PickedUp, OnTheWay, AlmostThere:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func Terminal(s Stage) bool { return s == Completed || s == Cancelled }

// Valid reports whether s is a known stage.
func Valid(s Stage) bool {
	if s == Completed || s == Cancelled {
		return true
	}
	_, ok := next[s]
	return ok
}

// Advance moves from to the requested stage. Only single forward steps and
// cancellation from a cancellable stage are allowed; re-entering the current
// stage is a no-op.
func Advance(from, to Stage) (Stage, error) {
	if from == to {
		return from, nil
	}
	if to == Cancelled {
		if Cancellable(from) {
			return to, nil
		}
		return from, fmt.Errorf("stage: cannot cancel from %s", from)
	}
	if n, ok := next[from]; ok && n == to {
		return to, nil
	}
	return from, fmt.Errorf("stage: invalid transition %s -> %s", from, to)
}

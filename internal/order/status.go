package order

import (
	"fmt"
)

// Status represents the lifecycle state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusReadyToShip    Status = "ready_to_ship"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusReturned       Status = "returned"
	StatusInvalidAddress Status = "invalid_address"
)

// transitions is the authoritative edge set of the order state machine.
// A status absent from the map has no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled, StatusInvalidAddress},
	StatusConfirmed:      {StatusReadyToShip, StatusCancelled},
	StatusReadyToShip:    {StatusInTransit, StatusCancelled},
	StatusInTransit:      {StatusOutForDelivery, StatusReturned},
	StatusOutForDelivery: {StatusDelivered, StatusReturned},
}

// validStatuses covers every status an order can legitimately hold.
var validStatuses = map[Status]struct{}{
	StatusPending:        {},
	StatusConfirmed:      {},
	StatusReadyToShip:    {},
	StatusInTransit:      {},
	StatusOutForDelivery: {},
	StatusDelivered:      {},
	StatusCancelled:      {},
	StatusReturned:       {},
	StatusInvalidAddress: {},
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := validStatuses[s]
	return ok
}

// Terminal reports whether s is a terminal state. Terminal orders are
// retained as history and accept no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s
// to target. A self-transition is always allowed; it is the note-attach
// path and changes nothing.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// InvalidTransitionError is returned when a requested status move has no
// edge in the state machine.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

// UnknownStatusError is returned when a transition names a status that is
// not part of the enumeration.
type UnknownStatusError struct {
	Status Status
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown order status: %q", string(e.Status))
}

package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// OrderID is a process-wide unique handle: the creating node's identity
// concatenated with a monotonic local counter. Equality governs all lookup
// and completion matching, per spec §3.
type OrderID string

var orderSeq uint64

// NewOrderID mints a fresh id for an order created at node name. The
// generation scheme is left unspecified by the source material (spec §9
// open questions); this is the decision recorded in SPEC_FULL.md §5.
func NewOrderID(nodeName string) OrderID {
	seq := atomic.AddUint64(&orderSeq, 1)
	return OrderID(fmt.Sprintf("%s-%d", nodeName, seq))
}

// Order is the unit of work circulated through the auction pipeline.
type Order struct {
	ID         OrderID    `json:"id"`
	Floor      Floor      `json:"floor"`
	ButtonType ButtonType `json:"button_type"`
	Node       string     `json:"node"`      // node responsible for serving the order
	WatchDog   string     `json:"watch_dog"` // node holding the deadline timer
	Time       time.Time  `json:"time"`      // creation timestamp
}

// NewCabOrder creates a cab order; its Node never changes (spec §3
// invariant: "A cab order's node equals its creator forever").
func NewCabOrder(id OrderID, floor Floor, node string, now time.Time) Order {
	return Order{
		ID:         id,
		Floor:      floor,
		ButtonType: ButtonCab,
		Node:       node,
		WatchDog:   node,
		Time:       now,
	}
}

// NewHallOrder creates a hall order at the creating node; Node is
// reassigned by the auction winner.
func NewHallOrder(id OrderID, floor Floor, buttonType ButtonType, creator string, now time.Time) Order {
	return Order{
		ID:         id,
		Floor:      floor,
		ButtonType: buttonType,
		Node:       creator,
		WatchDog:   creator,
		Time:       now,
	}
}

// IsLegalButton rejects a button that cannot exist at the given floor:
// ErrFloorOutOfRange when floor falls outside the fleet's floor count,
// ErrIllegalButton when hall_up is pressed at the top floor or hall_down at
// the bottom floor (spec §3). Returns nil when the press is legal.
func IsLegalButton(buttonType ButtonType, floor Floor, floorCount int) error {
	if floor.Value() < 0 || floor.Value() >= floorCount {
		return ErrFloorOutOfRange
	}
	if buttonType == ButtonHallUp && floor.Value() == floorCount-1 {
		return ErrIllegalButton
	}
	if buttonType == ButtonHallDown && floor.Value() == 0 {
		return ErrIllegalButton
	}
	return nil
}

// QueueKey identifies an order's slot in the Order Server's queue: a
// floor×button_type key, additionally scoped by node for cab orders so each
// cab has its own column (spec §3).
type QueueKey struct {
	Floor      int
	ButtonType ButtonType
	Node       string // only meaningful when ButtonType == ButtonCab
}

// KeyFor returns the queue key an order occupies.
func KeyFor(o Order) QueueKey {
	k := QueueKey{Floor: o.Floor.Value(), ButtonType: o.ButtonType}
	if o.ButtonType == ButtonCab {
		k.Node = o.Node
	}
	return k
}

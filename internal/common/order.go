package common

import "fmt"

// Order is a working order inside the engine. IDs are assigned by the
// portal and are unique for the process lifetime. Remaining is mutated
// only by the matching step that consumes the order and by later matches
// against it while it rests.
type Order struct {
	ID         uint64
	Investor   uint64
	Ticker     string
	Side       Side
	Kind       OrderKind
	TIF        TimeInForce
	LimitPrice float32 // meaningful for limit orders only
	Size       uint32  // original size
	Remaining  uint32
	Arrival    uint64 // per-book arrival sequence, assigned on submit
}

func (o Order) String() string {
	return fmt.Sprintf("order %d: %s %s %s %s %d/%d @ %g (investor %d)",
		o.ID, o.Side, o.Kind, o.TIF, o.Ticker, o.Remaining, o.Size, o.LimitPrice, o.Investor)
}

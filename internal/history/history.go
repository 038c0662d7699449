// Package history keeps the append-only ledger of public book events and
// fans them out to market-data subscribers. A new subscriber gets the
// ledger as it stood at attach time followed by every later event, with no
// gap and no duplicate at the seam: both the snapshot and the registration
// happen on the portal writer, so nothing can slip between them.
package history

import "github.com/Miloris/stock-exchange-simulation/internal/common"

// EventHistory is the append-only ledger. Sequence numbers are dense and
// monotone, assigned at append. Written only by the portal writer.
type EventHistory struct {
	events []common.MarketEvent
}

func NewEventHistory() *EventHistory {
	return &EventHistory{}
}

// Append stamps the event with the next sequence number and stores it.
func (h *EventHistory) Append(ev common.MarketEvent) common.MarketEvent {
	ev.Seq = uint64(len(h.events))
	h.events = append(h.events, ev)
	return ev
}

// Snapshot returns a copy of the ledger and the watermark: the next unused
// sequence number. Every event with Seq >= watermark is a live event from
// the snapshot holder's point of view.
func (h *EventHistory) Snapshot() ([]common.MarketEvent, uint64) {
	snapshot := make([]common.MarketEvent, len(h.events))
	copy(snapshot, h.events)
	return snapshot, uint64(len(h.events))
}

// Len returns the number of events appended so far.
func (h *EventHistory) Len() int {
	return len(h.events)
}

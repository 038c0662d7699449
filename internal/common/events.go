package common

// EventType tags a public market-data event.
type EventType uint8

const (
	EventOrderAdded EventType = iota + 1
	EventOrderExecuted
	EventOrderRemoved
)

func (t EventType) String() string {
	switch t {
	case EventOrderAdded:
		return "added"
	case EventOrderExecuted:
		return "executed"
	case EventOrderRemoved:
		return "removed"
	}
	return "unknown"
}

// MarketEvent is the public projection of a book mutation. One flat struct
// with a type tag rather than a type per event; unused fields are zero and
// omitted from the JSON feed. Executions carry the resting order's id only:
// aggressor identity is private to the order-entry stream.
type MarketEvent struct {
	Seq    uint64    `json:"seq"`
	Type   EventType `json:"-"`
	Kind   string    `json:"type"` // Type as a string for the wire
	ID     uint64    `json:"order_id"`
	Ticker string    `json:"ticker,omitempty"`
	Side   string    `json:"side,omitempty"`
	Price  float32   `json:"price,omitempty"`
	Size   uint32    `json:"size,omitempty"`
}

// AddedEvent builds the public record of an order resting on the book.
func AddedEvent(id uint64, ticker string, side Side, price float32, size uint32) MarketEvent {
	return MarketEvent{
		Type:   EventOrderAdded,
		Kind:   EventOrderAdded.String(),
		ID:     id,
		Ticker: ticker,
		Side:   side.String(),
		Price:  price,
		Size:   size,
	}
}

// ExecutedEvent builds the public record of a fill against resting order id.
func ExecutedEvent(restingID uint64, ticker string, price float32, size uint32) MarketEvent {
	return MarketEvent{
		Type:   EventOrderExecuted,
		Kind:   EventOrderExecuted.String(),
		ID:     restingID,
		Ticker: ticker,
		Price:  price,
		Size:   size,
	}
}

// RemovedEvent builds the public record of a resting order leaving the book.
func RemovedEvent(id uint64) MarketEvent {
	return MarketEvent{
		Type: EventOrderRemoved,
		Kind: EventOrderRemoved.String(),
		ID:   id,
	}
}

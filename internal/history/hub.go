package history

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Miloris/stock-exchange-simulation/internal/common"
)

// Subscriber is one market-data listener. The transport pump first drains
// Snapshot, then ranges over Live until it closes. Live closing with
// Lagged() true means the subscriber fell too far behind and was dropped.
type Subscriber struct {
	id        uuid.UUID
	snapshot  []common.MarketEvent
	live      chan common.MarketEvent
	ready     chan struct{} // closed by Attach once the snapshot is set
	lagged    bool          // written by the hub before closing live
	watermark uint64
}

func NewSubscriber(queueSize int) *Subscriber {
	return &Subscriber{
		id:    uuid.New(),
		live:  make(chan common.MarketEvent, queueSize),
		ready: make(chan struct{}),
	}
}

func (s *Subscriber) ID() uuid.UUID { return s.id }

// Ready closes once the hub has attached this subscriber. The transport
// pump must wait on it before touching Snapshot.
func (s *Subscriber) Ready() <-chan struct{} { return s.ready }

// Snapshot is the historical prefix captured at attach time.
func (s *Subscriber) Snapshot() []common.MarketEvent { return s.snapshot }

// Live yields events appended after the snapshot watermark, in order.
func (s *Subscriber) Live() <-chan common.MarketEvent { return s.live }

// Lagged reports whether the hub dropped this subscriber for falling
// behind. Only meaningful after Live has closed.
func (s *Subscriber) Lagged() bool { return s.lagged }

// Hub delivers live events to attached subscribers. All methods run on the
// portal writer; the only cross-thread handoff is each subscriber's
// bounded live channel.
type Hub struct {
	subscribers map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]struct{})}
}

// Attach captures the ledger snapshot into the subscriber and registers it
// for live delivery starting at the watermark.
func (h *Hub) Attach(sub *Subscriber, ledger *EventHistory) {
	sub.snapshot, sub.watermark = ledger.Snapshot()
	h.subscribers[sub] = struct{}{}
	close(sub.ready)
	log.Info().
		Str("subscriber", sub.id.String()).
		Uint64("watermark", sub.watermark).
		Int("snapshotEvents", len(sub.snapshot)).
		Msg("market data subscriber attached")
}

// Detach unregisters a subscriber and closes its live stream. Safe to call
// for subscribers the hub has already dropped.
func (h *Hub) Detach(sub *Subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.live)
}

// Publish hands the event to every subscriber without blocking. A
// subscriber whose queue is full is dropped on the spot: the engine never
// stalls on a slow consumer.
func (h *Hub) Publish(ev common.MarketEvent) {
	for sub := range h.subscribers {
		select {
		case sub.live <- ev:
		default:
			sub.lagged = true
			delete(h.subscribers, sub)
			close(sub.live)
			log.Warn().
				Str("subscriber", sub.id.String()).
				Uint64("seq", ev.Seq).
				Msg("subscriber lagged out")
		}
	}
}

// Close drops every remaining subscriber, ending their live streams.
func (h *Hub) Close() {
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.live)
	}
}

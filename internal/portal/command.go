package portal

import (
	"github.com/Miloris/stock-exchange-simulation/internal/common"
	"github.com/Miloris/stock-exchange-simulation/internal/history"
)

// Commands are the portal's inbound queue entries. Transports produce
// them in arrival order; the writer consumes them strictly sequentially.
type Command interface {
	isCommand()
}

type LoginCmd struct {
	Session  *Session
	SeqNum   uint32
	Investor uint64
	Password string
}

type NewOrderCmd struct {
	Session *Session
	SeqNum  uint32
	Ticker  string
	Side    common.Side
	Kind    common.OrderKind
	TIF     common.TimeInForce
	Price   float32
	Size    uint32
}

type CancelOrderCmd struct {
	Session *Session
	SeqNum  uint32
	OrderID uint64
}

// DisconnectCmd is synthesized by the transport when a connection dies.
// In-flight requests already queued for the session are still processed;
// their responses land on a closed queue and are dropped.
type DisconnectCmd struct {
	Session *Session
}

// SubscribeCmd attaches a market-data subscriber. Snapshot capture and
// registration happen inside the writer, which is what makes the
// historical-to-live seam gap-free.
type SubscribeCmd struct {
	Subscriber *history.Subscriber
}

type UnsubscribeCmd struct {
	Subscriber *history.Subscriber
}

func (LoginCmd) isCommand()       {}
func (NewOrderCmd) isCommand()    {}
func (CancelOrderCmd) isCommand() {}
func (DisconnectCmd) isCommand()  {}
func (SubscribeCmd) isCommand()   {}
func (UnsubscribeCmd) isCommand() {}

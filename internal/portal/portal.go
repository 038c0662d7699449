// Package portal is the serialization point of the exchange. One writer
// goroutine drains the command queue and is the only mutator of books,
// accounts, order ownership and event history, which makes every mutation
// totally ordered without locks on the hot path. Transports on either side
// talk to it through bounded queues only.
package portal

import (
	"math"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"github.com/Miloris/stock-exchange-simulation/internal/book"
	"github.com/Miloris/stock-exchange-simulation/internal/common"
	"github.com/Miloris/stock-exchange-simulation/internal/history"
	"github.com/Miloris/stock-exchange-simulation/internal/registry"
)

type Portal struct {
	commands chan Command

	stocks   *registry.StockRegistry
	accounts *registry.AccountRegistry
	orders   *registry.OrderInfoIndex
	books    map[string]*book.OrderBook
	ledger   *history.EventHistory
	hub      *history.Hub

	// Sessions of logged-in investors, for counterparty fill delivery.
	sessions map[uint64]*Session

	nextOrderID uint64
}

func New(stocks *registry.StockRegistry, accounts *registry.AccountRegistry, queueSize int) *Portal {
	books := make(map[string]*book.OrderBook)
	for _, ticker := range stocks.Tickers() {
		books[ticker] = book.New(ticker)
	}
	return &Portal{
		commands: make(chan Command, queueSize),
		stocks:   stocks,
		accounts: accounts,
		orders:   registry.NewOrderInfoIndex(),
		books:    books,
		ledger:   history.NewEventHistory(),
		hub:      history.NewHub(),
		sessions: make(map[uint64]*Session),
	}
}

// Enqueue places a command on the inbound queue, blocking when the queue
// is full. Safe for concurrent use by transports.
func (p *Portal) Enqueue(cmd Command) {
	p.commands <- cmd
}

// TryEnqueue is Enqueue with an abort channel, for producers that must
// not hang on a full queue once shutdown has started.
func (p *Portal) TryEnqueue(cmd Command, abort <-chan struct{}) bool {
	select {
	case p.commands <- cmd:
		return true
	case <-abort:
		return false
	}
}

// Run drains the command queue until the tomb starts dying.
func (p *Portal) Run(t *tomb.Tomb) error {
	log.Info().Msg("portal writer running")
	for {
		select {
		case <-t.Dying():
			p.hub.Close()
			return nil
		case cmd := <-p.commands:
			p.dispatch(cmd)
		}
	}
}

func (p *Portal) dispatch(cmd Command) {
	switch c := cmd.(type) {
	case LoginCmd:
		p.handleLogin(c)
	case NewOrderCmd:
		p.handleNewOrder(c)
	case CancelOrderCmd:
		p.handleCancel(c)
	case DisconnectCmd:
		p.handleDisconnect(c)
	case SubscribeCmd:
		p.hub.Attach(c.Subscriber, p.ledger)
	case UnsubscribeCmd:
		p.hub.Detach(c.Subscriber)
	default:
		log.Error().Any("command", cmd).Msg("unknown portal command")
	}
}

func (p *Portal) handleLogin(c LoginCmd) {
	if c.Session.loggedIn {
		c.Session.send(Response{Type: RespLoginRej, SeqNum: c.SeqNum, Reason: common.RejectAlreadyLoggedIn})
		return
	}

	if err := p.accounts.AcquireSession(c.Investor, c.Password); err != nil {
		reason := common.RejectUnknownInvestor
		switch err {
		case registry.ErrBadPassword:
			reason = common.RejectBadPassword
		case registry.ErrAlreadyLoggedIn:
			reason = common.RejectAlreadyLoggedIn
		}
		log.Info().Uint64("investor", c.Investor).Err(err).Msg("login rejected")
		c.Session.send(Response{Type: RespLoginRej, SeqNum: c.SeqNum, Reason: reason})
		return
	}

	c.Session.investor = c.Investor
	c.Session.loggedIn = true
	p.sessions[c.Investor] = c.Session
	log.Info().
		Uint64("investor", c.Investor).
		Str("session", c.Session.id.String()).
		Msg("investor logged in")
	c.Session.send(Response{Type: RespLoginAck, SeqNum: c.SeqNum})
}

func (p *Portal) handleNewOrder(c NewOrderCmd) {
	reject := func(reason common.RejectReason) {
		c.Session.send(Response{Type: RespOrderRej, SeqNum: c.SeqNum, Reason: reason})
	}

	if !c.Session.loggedIn {
		reject(common.RejectNotLoggedIn)
		return
	}
	if !p.stocks.Has(c.Ticker) {
		reject(common.RejectUnknownTicker)
		return
	}
	b := p.books[c.Ticker]
	if c.Size == 0 {
		reject(common.RejectBadSize)
		return
	}
	if c.Kind == common.LimitOrder && !validPrice(c.Price) {
		reject(common.RejectBadPrice)
		return
	}
	if reason := p.preTradeCheck(c, b); reason != common.RejectNone {
		reject(reason)
		return
	}

	p.nextOrderID++
	order := &common.Order{
		ID:         p.nextOrderID,
		Investor:   c.Session.investor,
		Ticker:     c.Ticker,
		Side:       c.Side,
		Kind:       c.Kind,
		TIF:        c.TIF,
		LimitPrice: c.Price,
		Size:       c.Size,
	}
	p.orders.Put(order.ID, registry.OrderInfo{
		Investor: order.Investor,
		Ticker:   order.Ticker,
		Side:     order.Side,
	})

	// The ack always precedes any fill or dead for the same order on
	// this session.
	c.Session.send(Response{Type: RespOrderAck, SeqNum: c.SeqNum, OrderID: order.ID})

	changes := b.Submit(order)
	p.applyLog(b.Ticker(), changes)
}

// preTradeCheck gates buys on cash and sells on position before anything
// touches the book.
func (p *Portal) preTradeCheck(c NewOrderCmd, b *book.OrderBook) common.RejectReason {
	investor := c.Session.investor
	if c.Side == common.Buy {
		cost := notional(c.Price, c.Size)
		if c.Kind == common.MarketOrder {
			// Price the sweep against what is actually on offer.
			cost, _ = b.DepthCost(common.Buy, c.Size)
		}
		if p.accounts.Cash(investor).LessThan(cost) {
			return common.RejectInsufficientCash
		}
		return common.RejectNone
	}
	if p.accounts.Position(investor, c.Ticker) < int64(c.Size) {
		return common.RejectInsufficientPosition
	}
	return common.RejectNone
}

// applyLog turns the book's change log into account mutations, private
// responses and public events, in mutation order.
func (p *Portal) applyLog(ticker string, changes []book.LogEntry) {
	for _, entry := range changes {
		switch entry.Kind {
		case book.LogAdded:
			info, ok := p.orders.Get(entry.OrderID)
			if !ok {
				log.Panic().Uint64("orderID", entry.OrderID).Msg("added order has no ownership record")
			}
			info.Resting = true
			p.publish(common.AddedEvent(entry.OrderID, ticker, entry.Side, entry.Price, entry.Size))

		case book.LogExecuted:
			p.settle(ticker, entry)
			p.publish(common.ExecutedEvent(entry.OrderID, ticker, entry.Price, entry.Size))

		case book.LogRemoved:
			info, ok := p.orders.Get(entry.OrderID)
			if !ok {
				log.Panic().Uint64("orderID", entry.OrderID).Msg("removed order has no ownership record")
			}
			p.sendToInvestor(info.Investor, Response{Type: RespOrderDead, OrderID: entry.OrderID})
			if info.Resting {
				p.publish(common.RemovedEvent(entry.OrderID))
			}
			p.orders.Release(entry.OrderID)
		}
	}
}

// settle applies one fill to both counterparties and notifies each with
// its own order id. The resting side of the entry names the trade side.
func (p *Portal) settle(ticker string, entry book.LogEntry) {
	restingInfo, ok := p.orders.Get(entry.OrderID)
	if !ok {
		log.Panic().Uint64("orderID", entry.OrderID).Msg("resting order has no ownership record")
	}
	takerInfo, ok := p.orders.Get(entry.TakerID)
	if !ok {
		log.Panic().Uint64("orderID", entry.TakerID).Msg("aggressing order has no ownership record")
	}

	p.accounts.ApplyFill(restingInfo.Investor, ticker, entry.Side, entry.Price, entry.Size)
	p.accounts.ApplyFill(takerInfo.Investor, ticker, entry.Side.Opposite(), entry.Price, entry.Size)

	p.sendToInvestor(restingInfo.Investor, Response{
		Type:    RespOrderFill,
		OrderID: entry.OrderID,
		Price:   entry.Price,
		Size:    entry.Size,
	})
	p.sendToInvestor(takerInfo.Investor, Response{
		Type:    RespOrderFill,
		OrderID: entry.TakerID,
		Price:   entry.Price,
		Size:    entry.Size,
	})
}

func (p *Portal) handleCancel(c CancelOrderCmd) {
	if !c.Session.loggedIn {
		c.Session.send(Response{Type: RespCancelRej, SeqNum: c.SeqNum, Reason: common.RejectNotLoggedIn})
		return
	}
	info, ok := p.orders.Get(c.OrderID)
	if !ok {
		c.Session.send(Response{Type: RespCancelRej, SeqNum: c.SeqNum, Reason: common.RejectUnknownOrTerminal})
		return
	}
	if info.Investor != c.Session.investor {
		c.Session.send(Response{Type: RespCancelRej, SeqNum: c.SeqNum, Reason: common.RejectNotYours})
		return
	}

	b := p.books[info.Ticker]
	entry, ok := b.Cancel(c.OrderID)
	if !ok {
		// The ownership record is released on the same writer step that
		// removes the order, so a live record always has a resident order.
		log.Panic().Uint64("orderID", c.OrderID).Msg("tracked order not resident in book")
	}
	p.applyLog(info.Ticker, []book.LogEntry{entry})
}

func (p *Portal) handleDisconnect(c DisconnectCmd) {
	if c.Session.loggedIn {
		p.accounts.ReleaseSession(c.Session.investor)
		if p.sessions[c.Session.investor] == c.Session {
			delete(p.sessions, c.Session.investor)
		}
		log.Info().
			Uint64("investor", c.Session.investor).
			Str("session", c.Session.id.String()).
			Msg("session disconnected")
		c.Session.loggedIn = false
	}
	c.Session.close()
}

// publish appends to the ledger (stamping the sequence number) and fans
// the stamped event out to live subscribers.
func (p *Portal) publish(ev common.MarketEvent) {
	p.hub.Publish(p.ledger.Append(ev))
}

func (p *Portal) sendToInvestor(investor uint64, resp Response) {
	if session, ok := p.sessions[investor]; ok {
		session.send(resp)
	}
}

// Ledger exposes the event history for tests.
func (p *Portal) Ledger() *history.EventHistory { return p.ledger }

// Book returns the book for a ticker, or nil.
func (p *Portal) Book(ticker string) *book.OrderBook { return p.books[ticker] }

func notional(price float32, size uint32) decimal.Decimal {
	return decimal.NewFromFloat32(price).Mul(decimal.NewFromInt(int64(size)))
}

func validPrice(price float32) bool {
	f := float64(price)
	return price > 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

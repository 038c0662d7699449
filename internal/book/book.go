// Package book implements the per-ticker order book: price-time priority
// matching with limit/market semantics, day/IOC time in force and
// cancellation. The book owns resting orders and nothing else; account and
// market-data side effects are derived from the emitted change log by the
// caller.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/Miloris/stock-exchange-simulation/internal/common"
)

// priceLevel holds the FIFO queue of resting orders at one price. Orders
// are appended at the tail and consumed from the head.
type priceLevel struct {
	price  float32
	orders []*common.Order
}

type priceLevels = btree.BTreeG[*priceLevel]

// residentRef locates a resting order for O(level) cancellation.
type residentRef struct {
	side  common.Side
	level *priceLevel
	order *common.Order
}

// OrderBook is a single ticker's book. Every resident order is a limit
// order with remaining > 0; bids and asks never cross between operations.
// Not safe for concurrent use: all mutation happens on the portal writer.
type OrderBook struct {
	ticker string

	// Price levels, best first: bids descending, asks ascending.
	bids *priceLevels
	asks *priceLevels

	// Side index from order id to its level for cancels.
	resident map[uint64]residentRef

	arrivals uint64
}

func New(ticker string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price > b.price
	})
	asks := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price < b.price
	})
	return &OrderBook{
		ticker:   ticker,
		bids:     bids,
		asks:     asks,
		resident: make(map[uint64]residentRef),
	}
}

func (b *OrderBook) Ticker() string { return b.ticker }

// Submit matches the order against the opposite side and, for day limit
// orders, rests any remainder. It returns the ordered change log of the
// whole step. Size and price validation is the caller's job; the book
// assumes Size > 0 and, for limits, a positive finite price.
func (b *OrderBook) Submit(order *common.Order) []LogEntry {
	b.arrivals++
	order.Arrival = b.arrivals
	order.Remaining = order.Size

	log := b.match(order)

	switch {
	case order.Remaining == 0:
		log = append(log, LogEntry{
			Kind:    LogRemoved,
			OrderID: order.ID,
			Side:    order.Side,
			Reason:  RemoveFullyFilled,
		})
	case order.Kind == common.LimitOrder && order.TIF == common.Day:
		b.rest(order)
		log = append(log, LogEntry{
			Kind:    LogAdded,
			OrderID: order.ID,
			Side:    order.Side,
			Price:   order.LimitPrice,
			Size:    order.Remaining,
		})
	default:
		// IOC leftovers and market leftovers never rest.
		log = append(log, LogEntry{
			Kind:    LogRemoved,
			OrderID: order.ID,
			Side:    order.Side,
			Size:    order.Remaining,
			Reason:  RemoveIOCLeftover,
		})
	}
	return log
}

// match sweeps the opposite side from the best price while the order still
// crosses, consuming resting orders FIFO within each level. Trades print at
// the resting order's price.
func (b *OrderBook) match(order *common.Order) []LogEntry {
	var log []LogEntry

	opposite := b.asks
	if order.Side == common.Sell {
		opposite = b.bids
	}

	for order.Remaining > 0 {
		level, ok := opposite.MinMut()
		if !ok || !crosses(order, level.price) {
			break
		}

		var consumed int
		for _, resting := range level.orders {
			matchQty := min(order.Remaining, resting.Remaining)
			order.Remaining -= matchQty
			resting.Remaining -= matchQty

			log = append(log, LogEntry{
				Kind:    LogExecuted,
				OrderID: resting.ID,
				TakerID: order.ID,
				Side:    resting.Side,
				Price:   level.price,
				Size:    matchQty,
			})

			if resting.Remaining == 0 {
				consumed++
				delete(b.resident, resting.ID)
				log = append(log, LogEntry{
					Kind:    LogRemoved,
					OrderID: resting.ID,
					Side:    resting.Side,
					Reason:  RemoveFullyFilled,
				})
			}
			if order.Remaining == 0 {
				break
			}
		}

		if consumed > 0 {
			level.orders = level.orders[consumed:]
		}
		if len(level.orders) == 0 {
			opposite.Delete(level)
		}
	}
	return log
}

// crosses reports whether the aggressor may trade at the given opposite
// price. Market orders take any price.
func crosses(order *common.Order, oppositePrice float32) bool {
	if order.Kind == common.MarketOrder {
		return true
	}
	if order.Side == common.Buy {
		return oppositePrice <= order.LimitPrice
	}
	return oppositePrice >= order.LimitPrice
}

// rest places the remainder of a day limit order at the tail of its level.
func (b *OrderBook) rest(order *common.Order) {
	levels := b.bids
	if order.Side == common.Sell {
		levels = b.asks
	}

	probe := &priceLevel{price: order.LimitPrice}
	level, ok := levels.GetMut(probe)
	if !ok {
		level = probe
		levels.Set(level)
	}
	level.orders = append(level.orders, order)
	b.resident[order.ID] = residentRef{side: order.Side, level: level, order: order}
}

// Cancel removes a resident order. The bool reports whether the id was
// resident; callers decide how to surface a miss.
func (b *OrderBook) Cancel(orderID uint64) (LogEntry, bool) {
	ref, ok := b.resident[orderID]
	if !ok {
		return LogEntry{}, false
	}
	delete(b.resident, orderID)

	for i, o := range ref.level.orders {
		if o.ID == orderID {
			ref.level.orders = append(ref.level.orders[:i], ref.level.orders[i+1:]...)
			break
		}
	}
	if len(ref.level.orders) == 0 {
		levels := b.bids
		if ref.side == common.Sell {
			levels = b.asks
		}
		levels.Delete(ref.level)
	}

	return LogEntry{
		Kind:    LogRemoved,
		OrderID: orderID,
		Side:    ref.side,
		Size:    ref.order.Remaining,
		Reason:  RemoveCancelled,
	}, true
}

// Resident reports whether an order currently rests on the book.
func (b *OrderBook) Resident(orderID uint64) bool {
	_, ok := b.resident[orderID]
	return ok
}

// BestBid returns the top bid price, or false when the side is empty.
func (b *OrderBook) BestBid() (float32, bool) {
	level, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// BestAsk returns the top ask price, or false when the side is empty.
func (b *OrderBook) BestAsk() (float32, bool) {
	level, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// DepthCost walks the liquidity opposing an aggressor of the given side,
// best price first, and returns the notional cost of lifting up to size
// units together with the quantity actually available. The portal prices
// market buys against the ask walk before accepting them.
func (b *OrderBook) DepthCost(side common.Side, size uint32) (decimal.Decimal, uint32) {
	levels := b.asks
	if side == common.Sell {
		levels = b.bids
	}

	cost := decimal.Zero
	var filled uint32
	levels.Scan(func(level *priceLevel) bool {
		price := decimal.NewFromFloat32(level.price)
		for _, o := range level.orders {
			qty := min(size-filled, o.Remaining)
			cost = cost.Add(price.Mul(decimal.NewFromInt(int64(qty))))
			filled += qty
			if filled == size {
				return false
			}
		}
		return true
	})
	return cost, filled
}

// Depth returns the total resting quantity on a side.
func (b *OrderBook) Depth(side common.Side) uint64 {
	levels := b.bids
	if side == common.Sell {
		levels = b.asks
	}
	var total uint64
	levels.Scan(func(level *priceLevel) bool {
		for _, o := range level.orders {
			total += uint64(o.Remaining)
		}
		return true
	})
	return total
}

// Levels returns (price, quantity) pairs for a side, best price first.
// Used by tests.
func (b *OrderBook) Levels(side common.Side) [][2]float64 {
	levels := b.bids
	if side == common.Sell {
		levels = b.asks
	}
	var out [][2]float64
	levels.Scan(func(level *priceLevel) bool {
		var qty uint64
		for _, o := range level.orders {
			qty += uint64(o.Remaining)
		}
		out = append(out, [2]float64{float64(level.price), float64(qty)})
		return true
	})
	return out
}

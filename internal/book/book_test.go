package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miloris/stock-exchange-simulation/internal/common"
)

// --- Setup & Helpers --------------------------------------------------------

var nextID uint64

func newOrder(side common.Side, kind common.OrderKind, tif common.TimeInForce, price float32, size uint32) *common.Order {
	nextID++
	return &common.Order{
		ID:         nextID,
		Investor:   1,
		Ticker:     "AAPL",
		Side:       side,
		Kind:       kind,
		TIF:        tif,
		LimitPrice: price,
		Size:       size,
	}
}

func limit(side common.Side, price float32, size uint32) *common.Order {
	return newOrder(side, common.LimitOrder, common.Day, price, size)
}

// placeOrders inserts a batch of day limit orders at one price and side.
func placeOrders(b *OrderBook, side common.Side, price float32, sizes ...uint32) []*common.Order {
	orders := make([]*common.Order, 0, len(sizes))
	for _, size := range sizes {
		o := limit(side, price, size)
		b.Submit(o)
		orders = append(orders, o)
	}
	return orders
}

// executions filters the log down to fills.
func executions(log []LogEntry) []LogEntry {
	var out []LogEntry
	for _, e := range log {
		if e.Kind == LogExecuted {
			out = append(out, e)
		}
	}
	return out
}

// assertUncrossed checks the standing top-of-book invariant.
func assertUncrossed(t *testing.T, b *OrderBook) {
	t.Helper()
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if bidOk && askOk {
		assert.Less(t, bid, ask, "book must not be crossed")
	}
}

// --- Tests ------------------------------------------------------------------

func TestSubmit_LimitRests(t *testing.T) {
	b := New("AAPL")

	placeOrders(b, common.Buy, 99.0, 100, 90, 80)
	placeOrders(b, common.Sell, 100.0, 100, 90, 80)

	assert.Equal(t, [][2]float64{{99.0, 270}}, b.Levels(common.Buy))
	assert.Equal(t, [][2]float64{{100.0, 270}}, b.Levels(common.Sell))
	assert.Equal(t, uint64(270), b.Depth(common.Buy))
	assert.Equal(t, uint64(270), b.Depth(common.Sell))
	assertUncrossed(t, b)
}

func TestSubmit_LevelOrdering(t *testing.T) {
	b := New("AAPL")

	// Insert out of price order on both sides.
	placeOrders(b, common.Buy, 98.0, 50)
	placeOrders(b, common.Buy, 99.0, 100)
	placeOrders(b, common.Sell, 101.0, 20)
	placeOrders(b, common.Sell, 100.0, 100)

	assert.Equal(t, [][2]float64{{99.0, 100}, {98.0, 50}}, b.Levels(common.Buy),
		"bids should be sorted high -> low")
	assert.Equal(t, [][2]float64{{100.0, 100}, {101.0, 20}}, b.Levels(common.Sell),
		"asks should be sorted low -> high")
}

func TestSubmit_AddedLogForRestingOrder(t *testing.T) {
	b := New("AAPL")

	o := limit(common.Buy, 99.0, 100)
	log := b.Submit(o)

	require.Len(t, log, 1)
	assert.Equal(t, LogEntry{
		Kind:    LogAdded,
		OrderID: o.ID,
		Side:    common.Buy,
		Price:   99.0,
		Size:    100,
	}, log[0])
	assert.True(t, b.Resident(o.ID))
}

func TestSubmit_SimpleCross(t *testing.T) {
	b := New("AAPL")

	sell := limit(common.Sell, 150.0, 10)
	b.Submit(sell)

	buy := limit(common.Buy, 151.0, 4)
	log := b.Submit(buy)

	// One fill at the resting price, then the aggressor dies fully filled.
	require.Len(t, log, 2)
	assert.Equal(t, LogEntry{
		Kind:    LogExecuted,
		OrderID: sell.ID,
		TakerID: buy.ID,
		Side:    common.Sell,
		Price:   150.0,
		Size:    4,
	}, log[0])
	assert.Equal(t, LogEntry{
		Kind:    LogRemoved,
		OrderID: buy.ID,
		Side:    common.Buy,
		Reason:  RemoveFullyFilled,
	}, log[1])

	assert.Equal(t, [][2]float64{{150.0, 6}}, b.Levels(common.Sell))
	assert.Empty(t, b.Levels(common.Buy))
	assertUncrossed(t, b)
}

func TestSubmit_PriceTimePriority(t *testing.T) {
	b := New("AAPL")

	resting := placeOrders(b, common.Sell, 100.0, 30, 30)
	buy := limit(common.Buy, 100.0, 40)
	log := b.Submit(buy)

	fills := executions(log)
	require.Len(t, fills, 2)
	assert.Equal(t, resting[0].ID, fills[0].OrderID, "earlier order at a level fills first")
	assert.Equal(t, uint32(30), fills[0].Size)
	assert.Equal(t, resting[1].ID, fills[1].OrderID)
	assert.Equal(t, uint32(10), fills[1].Size)

	// The partially filled second order keeps its place.
	assert.Equal(t, [][2]float64{{100.0, 20}}, b.Levels(common.Sell))
	assert.Equal(t, uint32(20), resting[1].Remaining)
}

func TestSubmit_MultiLevelSweep(t *testing.T) {
	b := New("AAPL")

	placeOrders(b, common.Sell, 100.0, 100, 90)
	placeOrders(b, common.Sell, 101.0, 20)

	// Deep buy sweeps the first level and part of the second.
	buy := limit(common.Buy, 103.0, 200)
	log := b.Submit(buy)

	fills := executions(log)
	require.Len(t, fills, 3)
	assert.Equal(t, float32(100.0), fills[0].Price)
	assert.Equal(t, float32(100.0), fills[1].Price)
	assert.Equal(t, float32(101.0), fills[2].Price, "sweep trades at each resting level's price")
	assert.Equal(t, uint32(10), fills[2].Size)

	assert.Equal(t, [][2]float64{{101.0, 10}}, b.Levels(common.Sell))
	assert.Empty(t, b.Levels(common.Buy), "aggressor fully filled, nothing rests")
	assertUncrossed(t, b)
}

func TestSubmit_PartialFillRests(t *testing.T) {
	b := New("AAPL")

	placeOrders(b, common.Sell, 100.0, 30)
	buy := limit(common.Buy, 100.0, 50)
	log := b.Submit(buy)

	last := log[len(log)-1]
	assert.Equal(t, LogAdded, last.Kind)
	assert.Equal(t, uint32(20), last.Size, "only the remainder rests")
	assert.Equal(t, [][2]float64{{100.0, 20}}, b.Levels(common.Buy))
	assert.Empty(t, b.Levels(common.Sell))
}

func TestSubmit_IOCLeftoverNeverRests(t *testing.T) {
	b := New("AAPL")

	placeOrders(b, common.Sell, 150.0, 10)

	// Does not cross at all: dies for its full size.
	ioc := newOrder(common.Buy, common.LimitOrder, common.IOC, 149.0, 5)
	log := b.Submit(ioc)
	require.Len(t, log, 1)
	assert.Equal(t, LogEntry{
		Kind:    LogRemoved,
		OrderID: ioc.ID,
		Side:    common.Buy,
		Size:    5,
		Reason:  RemoveIOCLeftover,
	}, log[0])
	assert.False(t, b.Resident(ioc.ID))
	assert.Empty(t, b.Levels(common.Buy))

	// Crosses partially: fills what it can, the rest dies.
	ioc2 := newOrder(common.Buy, common.LimitOrder, common.IOC, 150.0, 25)
	log = b.Submit(ioc2)
	fills := executions(log)
	require.Len(t, fills, 1)
	assert.Equal(t, uint32(10), fills[0].Size)
	last := log[len(log)-1]
	assert.Equal(t, RemoveIOCLeftover, last.Reason)
	assert.Equal(t, uint32(15), last.Size)
}

func TestSubmit_MarketWithPartialDepth(t *testing.T) {
	b := New("AAPL")

	placeOrders(b, common.Sell, 150.0, 6)

	market := newOrder(common.Buy, common.MarketOrder, common.Day, 0, 100)
	log := b.Submit(market)

	fills := executions(log)
	require.Len(t, fills, 1)
	assert.Equal(t, uint32(6), fills[0].Size)
	assert.Equal(t, float32(150.0), fills[0].Price)

	last := log[len(log)-1]
	assert.Equal(t, RemoveIOCLeftover, last.Reason, "market leftovers never rest, day TIF or not")
	assert.Equal(t, uint32(94), last.Size)
	assert.Empty(t, b.Levels(common.Buy))
	assert.Empty(t, b.Levels(common.Sell))
}

func TestSubmit_MarketNoLiquidity(t *testing.T) {
	b := New("AAPL")

	market := newOrder(common.Buy, common.MarketOrder, common.Day, 0, 100)
	log := b.Submit(market)

	require.Len(t, log, 1)
	assert.Equal(t, RemoveIOCLeftover, log[0].Reason)
	assert.Equal(t, uint32(100), log[0].Size)
}

func TestCancel(t *testing.T) {
	b := New("AAPL")

	orders := placeOrders(b, common.Sell, 160.0, 10, 20)

	entry, ok := b.Cancel(orders[0].ID)
	require.True(t, ok)
	assert.Equal(t, LogEntry{
		Kind:    LogRemoved,
		OrderID: orders[0].ID,
		Side:    common.Sell,
		Size:    10,
		Reason:  RemoveCancelled,
	}, entry)
	assert.False(t, b.Resident(orders[0].ID))
	assert.Equal(t, [][2]float64{{160.0, 20}}, b.Levels(common.Sell))

	// Cancelling again reports a miss.
	_, ok = b.Cancel(orders[0].ID)
	assert.False(t, ok)

	// Cancelling the last order clears the level entirely.
	_, ok = b.Cancel(orders[1].ID)
	require.True(t, ok)
	assert.Empty(t, b.Levels(common.Sell))
}

func TestConservationOverLog(t *testing.T) {
	b := New("AAPL")

	placeOrders(b, common.Sell, 100.0, 30, 30)
	buy := newOrder(common.Buy, common.LimitOrder, common.IOC, 100.0, 100)
	log := b.Submit(buy)

	var executed, leftover uint32
	var terminals int
	for _, e := range log {
		switch {
		case e.Kind == LogExecuted:
			executed += e.Size
		case e.Kind == LogRemoved && e.OrderID == buy.ID:
			leftover += e.Size
			terminals++
		}
	}
	assert.Equal(t, buy.Size, executed+leftover, "original = executed + dead remainder")
	assert.Equal(t, 1, terminals, "exactly one terminal entry for the aggressor")
}

func TestDepthCost(t *testing.T) {
	b := New("AAPL")

	placeOrders(b, common.Sell, 100.0, 10)
	placeOrders(b, common.Sell, 101.0, 10)

	// Full fill across two levels: 10*100 + 5*101.
	cost, filled := b.DepthCost(common.Buy, 15)
	assert.Equal(t, uint32(15), filled)
	assert.True(t, decimal.NewFromInt(1505).Equal(cost), "got %s", cost)

	// More than available depth prices only what is there.
	cost, filled = b.DepthCost(common.Buy, 50)
	assert.Equal(t, uint32(20), filled)
	assert.True(t, decimal.NewFromInt(2010).Equal(cost), "got %s", cost)

	// Empty opposite side.
	cost, filled = b.DepthCost(common.Sell, 5)
	assert.Equal(t, uint32(0), filled)
	assert.True(t, cost.IsZero())
}

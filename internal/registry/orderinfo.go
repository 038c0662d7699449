package registry

import "github.com/Miloris/stock-exchange-simulation/internal/common"

// OrderInfo identifies a live order: who owns it and where it trades. The
// record exists from acceptance until the order's terminal log entry.
type OrderInfo struct {
	Investor uint64
	Ticker   string
	Side     common.Side
	// Resting is set once the order has publicly rested on the book; it
	// decides whether a removal is announced on the market-data stream.
	Resting bool
}

// OrderInfoIndex is the authoritative map from engine-assigned order id to
// its identifying metadata.
type OrderInfoIndex struct {
	orders map[uint64]*OrderInfo
}

func NewOrderInfoIndex() *OrderInfoIndex {
	return &OrderInfoIndex{orders: make(map[uint64]*OrderInfo)}
}

func (idx *OrderInfoIndex) Put(id uint64, info OrderInfo) {
	idx.orders[id] = &info
}

func (idx *OrderInfoIndex) Get(id uint64) (*OrderInfo, bool) {
	info, ok := idx.orders[id]
	return info, ok
}

// Release drops the record when the order becomes terminal.
func (idx *OrderInfoIndex) Release(id uint64) {
	delete(idx.orders, id)
}

// Live returns the number of orders currently tracked.
func (idx *OrderInfoIndex) Live() int {
	return len(idx.orders)
}

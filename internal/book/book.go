// Package book implements a per-symbol limit order book with strict
// price-time priority matching. Resting orders queue FIFO within a price
// level; better prices match first, and fills always execute at the resting
// order's price.
package book

import (
	"fmt"
	"sort"
	"time"

	"prism/internal/model"
)

type level struct {
	price float64
	queue []*model.Order
}

func (l *level) totalQuantity() float64 {
	var total float64
	for _, o := range l.queue {
		total += o.RemainingQuantity()
	}
	return total
}

// Book holds the resting limit orders for a single symbol. It is not safe
// for concurrent use; the owning engine serializes access per symbol.
type Book struct {
	symbol string

	bids map[float64]*level
	asks map[float64]*level

	// price ladders kept sorted best-first: bids descending, asks ascending
	bidPrices []float64
	askPrices []float64

	lastPrice float64
	fillSeq   uint64

	snapshot *model.BookSnapshot // cached until the next mutation
}

// New creates an empty book for the given symbol.
func New(symbol string, initialPrice float64) *Book {
	return &Book{
		symbol:    symbol,
		bids:      make(map[float64]*level),
		asks:      make(map[float64]*level),
		lastPrice: initialPrice,
	}
}

// Symbol returns the symbol this book trades.
func (b *Book) Symbol() string {
	return b.symbol
}

// LastPrice returns the price of the most recent trade.
func (b *Book) LastPrice() float64 {
	return b.lastPrice
}

// SetLastPrice overrides the last trade price. Price discovery uses this to
// seed quiet books.
func (b *Book) SetLastPrice(price float64) {
	b.lastPrice = price
}

// Add rests a limit order at the tail of its price level queue.
func (b *Book) Add(o *model.Order) error {
	if o.Price <= 0 {
		return model.ErrMissingLimitPrice
	}
	side, prices := b.sideFor(o.Side)
	if side == nil {
		return model.ErrUnknownSide
	}

	lvl, ok := side[o.Price]
	if !ok {
		lvl = &level{price: o.Price}
		side[o.Price] = lvl
		*prices = insertPrice(*prices, o.Price, o.Side == model.SideBuy)
	}
	lvl.queue = append(lvl.queue, o)
	if o.Status == model.StatusPending {
		o.Status = model.StatusOpen
	}
	b.invalidate()
	return nil
}

// Remove deletes a resting order from its price level, dropping the level
// when it empties. It reports whether the order was found.
func (b *Book) Remove(o *model.Order) bool {
	side, prices := b.sideFor(o.Side)
	if side == nil {
		return false
	}
	lvl, ok := side[o.Price]
	if !ok {
		return false
	}
	for i, resting := range lvl.queue {
		if resting.ID != o.ID {
			continue
		}
		lvl.queue = append(lvl.queue[:i], lvl.queue[i+1:]...)
		if len(lvl.queue) == 0 {
			delete(side, o.Price)
			*prices = removePrice(*prices, o.Price)
		}
		b.invalidate()
		return true
	}
	return false
}

// Match executes the incoming order against the opposite side of the book.
// It walks price levels best-first and consumes resting orders in time
// priority, emitting one fill per (incoming, resting) pair at the resting
// order's price. The incoming order's status becomes filled or
// partially-filled; resting the remainder is the caller's decision.
func (b *Book) Match(incoming *model.Order) []model.Fill {
	if incoming.RemainingQuantity() <= 0 {
		return nil
	}

	var fills []model.Fill
	now := time.Now().UTC()

	for incoming.RemainingQuantity() > 0 {
		lvl, ok := b.bestOpposite(incoming.Side)
		if !ok {
			break
		}
		if incoming.Kind == model.KindLimit && !priceCrosses(incoming, lvl.price) {
			break
		}

		for len(lvl.queue) > 0 && incoming.RemainingQuantity() > 0 {
			resting := lvl.queue[0]
			qty := incoming.RemainingQuantity()
			if available := resting.RemainingQuantity(); available < qty {
				qty = available
			}

			resting.ApplyFill(qty, lvl.price)
			incoming.ApplyFill(qty, lvl.price)
			b.lastPrice = lvl.price

			fills = append(fills, model.Fill{
				ID:           b.nextFillID(),
				OrderID:      incoming.ID,
				MakerOrderID: resting.ID,
				Symbol:       b.symbol,
				Side:         incoming.Side,
				Quantity:     qty,
				Price:        lvl.price,
				Timestamp:    now,
				Liquidity:    model.LiquidityTaker,
			})

			if resting.RemainingQuantity() <= 0 {
				lvl.queue = lvl.queue[1:]
			}
		}

		if len(lvl.queue) == 0 {
			b.dropLevel(incoming.Side.Opposite(), lvl.price)
		}
	}

	if len(fills) > 0 {
		b.invalidate()
	}
	return fills
}

// BestBid returns the highest resting bid price.
func (b *Book) BestBid() (float64, bool) {
	if len(b.bidPrices) == 0 {
		return 0, false
	}
	return b.bidPrices[0], true
}

// BestAsk returns the lowest resting ask price.
func (b *Book) BestAsk() (float64, bool) {
	if len(b.askPrices) == 0 {
		return 0, false
	}
	return b.askPrices[0], true
}

// MidPrice returns the midpoint of the best bid and ask. A one-sided book
// yields the present side's best price; an empty book yields nothing.
func (b *Book) MidPrice() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	switch {
	case okBid && okAsk:
		return (bid + ask) / 2, true
	case okBid:
		return bid, true
	case okAsk:
		return ask, true
	default:
		return 0, false
	}
}

// Snapshot returns up to depth aggregated levels per side. The level
// sequences are rebuilt lazily after mutations and cached between calls, so
// repeated queries over a quiescent book are identical.
func (b *Book) Snapshot(depth int) model.BookSnapshot {
	if b.snapshot == nil {
		b.snapshot = &model.BookSnapshot{
			Symbol:    b.symbol,
			Timestamp: time.Now().UTC(),
			Bids:      b.aggregate(b.bids, b.bidPrices),
			Asks:      b.aggregate(b.asks, b.askPrices),
		}
	}
	snap := model.BookSnapshot{
		Symbol:    b.snapshot.Symbol,
		Timestamp: b.snapshot.Timestamp,
		LastPrice: b.lastPrice,
	}
	snap.Bids = copyLevels(b.snapshot.Bids, depth)
	snap.Asks = copyLevels(b.snapshot.Asks, depth)
	return snap
}

func (b *Book) aggregate(side map[float64]*level, prices []float64) []model.BookLevel {
	levels := make([]model.BookLevel, 0, len(prices))
	for _, price := range prices {
		lvl := side[price]
		levels = append(levels, model.BookLevel{
			Price:    price,
			Quantity: lvl.totalQuantity(),
			Orders:   len(lvl.queue),
		})
	}
	return levels
}

func (b *Book) bestOpposite(side model.Side) (*level, bool) {
	switch side {
	case model.SideBuy:
		if len(b.askPrices) == 0 {
			return nil, false
		}
		return b.asks[b.askPrices[0]], true
	case model.SideSell:
		if len(b.bidPrices) == 0 {
			return nil, false
		}
		return b.bids[b.bidPrices[0]], true
	default:
		return nil, false
	}
}

func (b *Book) sideFor(side model.Side) (map[float64]*level, *[]float64) {
	switch side {
	case model.SideBuy:
		return b.bids, &b.bidPrices
	case model.SideSell:
		return b.asks, &b.askPrices
	default:
		return nil, nil
	}
}

func (b *Book) dropLevel(side model.Side, price float64) {
	levels, prices := b.sideFor(side)
	if levels == nil {
		return
	}
	delete(levels, price)
	*prices = removePrice(*prices, price)
}

func (b *Book) invalidate() {
	b.snapshot = nil
}

func (b *Book) nextFillID() string {
	b.fillSeq++
	return fmt.Sprintf("%s-f%d", b.symbol, b.fillSeq)
}

func priceCrosses(incoming *model.Order, levelPrice float64) bool {
	if incoming.Side == model.SideBuy {
		return incoming.Price >= levelPrice
	}
	return incoming.Price <= levelPrice
}

// insertPrice keeps the ladder sorted best-first. Bids descend, asks ascend.
func insertPrice(prices []float64, price float64, descending bool) []float64 {
	idx := sort.Search(len(prices), func(i int) bool {
		if descending {
			return prices[i] < price
		}
		return prices[i] > price
	})
	prices = append(prices, 0)
	copy(prices[idx+1:], prices[idx:])
	prices[idx] = price
	return prices
}

func removePrice(prices []float64, price float64) []float64 {
	for i, p := range prices {
		if p == price {
			return append(prices[:i], prices[i+1:]...)
		}
	}
	return prices
}

func copyLevels(levels []model.BookLevel, depth int) []model.BookLevel {
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}
	out := make([]model.BookLevel, depth)
	copy(out, levels[:depth])
	return out
}

package model

import "time"

// BookLevel aggregates the resting quantity at one price. Levels are always
// recomputed from the underlying order queues, never patched field by field.
type BookLevel struct {
	Price    float64
	Quantity float64
	Orders   int
}

// BookSnapshot is a point-in-time view of one symbol's book. Bids are sorted
// by descending price, asks by ascending price.
type BookSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Bids      []BookLevel
	Asks      []BookLevel
	LastPrice float64
}

// BestBid returns the highest bid level.
func (s BookSnapshot) BestBid() (BookLevel, bool) {
	if len(s.Bids) == 0 {
		return BookLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask level.
func (s BookSnapshot) BestAsk() (BookLevel, bool) {
	if len(s.Asks) == 0 {
		return BookLevel{}, false
	}
	return s.Asks[0], true
}

// Spread returns the best ask minus the best bid, when both sides exist.
func (s BookSnapshot) Spread() (float64, bool) {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// MarketState is the per-symbol simulation state. One instance exists per
// registered symbol for the lifetime of the process.
type MarketState struct {
	Symbol     string
	LastPrice  float64
	Volume     float64
	Volatility float64
	Momentum   float64
	Liquidity  float64
}

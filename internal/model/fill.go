package model

import "time"

// Liquidity marks the role an order played in an execution.
type Liquidity uint8

const (
	LiquidityUnknown Liquidity = iota
	LiquidityMaker
	LiquidityTaker
)

func (l Liquidity) String() string {
	switch l {
	case LiquidityMaker:
		return "maker"
	case LiquidityTaker:
		return "taker"
	default:
		return "unknown"
	}
}

// Fill is a single execution against one resting order. Fills are append-only
// and never mutated after the matching pass that created them.
type Fill struct {
	ID           string
	OrderID      string
	MakerOrderID string
	Symbol       string
	Side         Side
	Quantity     float64
	Price        float64
	Timestamp    time.Time
	Liquidity    Liquidity
}

package model

import (
	"time"

	"github.com/yanun0323/errors"
)

var (
	ErrMissingSymbol     = errors.New("order symbol is empty")
	ErrInvalidQuantity   = errors.New("order quantity must be > 0")
	ErrMissingLimitPrice = errors.New("limit order price must be > 0")
	ErrUnknownSide       = errors.New("order side is unknown")
	ErrUnknownKind       = errors.New("order kind is unknown")
)

// Side is the direction of an order.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

// Kind is the execution style of an order.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMarket
	KindLimit
	KindStop
	KindStopLimit
)

func (k Kind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindLimit:
		return "limit"
	case KindStop:
		return "stop"
	case KindStopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// Status tracks the lifecycle of an order.
type Status uint8

const (
	StatusPending Status = iota
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOpen:
		return "open"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the order can no longer be matched.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Order is a request to trade a symbol. Matching mutates FilledQuantity,
// AvgFillPrice and Status in place until the order reaches a terminal status.
type Order struct {
	ID             string
	Symbol         string
	Side           Side
	Kind           Kind
	Quantity       float64
	Price          float64 // 0 means no limit price
	FilledQuantity float64
	AvgFillPrice   float64
	Status         Status
	SubmittedAt    time.Time
	AgentID        string
	Metadata       map[string]string
}

// Validate checks the fields a caller must provide before submission.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return ErrMissingSymbol
	}
	if o.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ErrUnknownSide
	}
	if o.Kind == KindUnknown {
		return ErrUnknownKind
	}
	if o.Kind == KindLimit && o.Price <= 0 {
		return ErrMissingLimitPrice
	}
	return nil
}

// RemainingQuantity returns the unfilled portion of the order.
func (o *Order) RemainingQuantity() float64 {
	remaining := o.Quantity - o.FilledQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ApplyFill records an execution against the order, maintaining the
// volume-weighted average fill price and the fill-driven status transition.
func (o *Order) ApplyFill(quantity, price float64) {
	if quantity <= 0 {
		return
	}
	filled := o.FilledQuantity + quantity
	o.AvgFillPrice = (o.AvgFillPrice*o.FilledQuantity + price*quantity) / filled
	o.FilledQuantity = filled
	if o.FilledQuantity >= o.Quantity {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

// Clone returns a deep copy safe to hand to external callers.
func (o *Order) Clone() Order {
	cp := *o
	if o.Metadata != nil {
		cp.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Package price advances a stochastic reference price per symbol. When the
// book is two-sided the mid price anchors the target; otherwise the target
// comes from a gaussian shock plus mean reversion toward the anchor price
// plus a momentum drift, and the actual price only moves a fraction of the
// way there each tick.
package price

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"prism/internal/model"
)

var ErrUnknownSymbol = errors.New("symbol not registered for price discovery")

const (
	momentumWindow   = 4
	volatilityWindow = 20
)

// Quoter exposes the top of book to price discovery.
type Quoter interface {
	BestBid() (float64, bool)
	BestAsk() (float64, bool)
}

// Config defines the stochastic price process parameters.
type Config struct {
	Volatility float64 `json:"volatility"` // per-tick gaussian shock scale

	// MeanReversion and MomentumWeight are pointers because zero is a
	// meaningful setting (a pure random walk); nil means "use the default".
	MeanReversion  *float64 `json:"meanReversion"`  // pull toward the anchor price
	MomentumWeight *float64 `json:"momentumWeight"` // drift from trailing returns

	AdjustSpeed float64 `json:"adjustSpeed"` // fraction moved toward target per tick
	HistoryCap  int     `json:"historyCap"`
	Seed        int64   `json:"seed"`
}

func f64(v float64) *float64 { return &v }

func (c Config) withDefaults() Config {
	if c.Volatility == 0 {
		c.Volatility = 0.002
	}
	if c.MeanReversion == nil {
		c.MeanReversion = f64(0.05)
	}
	if c.MomentumWeight == nil {
		c.MomentumWeight = f64(0.3)
	}
	if c.AdjustSpeed == 0 {
		c.AdjustSpeed = 0.3
	}
	if c.HistoryCap == 0 {
		c.HistoryCap = 256
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UTC().UnixNano()
	}
	return c
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.Volatility < 0 {
		return errors.New("volatility must be >= 0")
	}
	if c.MeanReversion != nil && (*c.MeanReversion < 0 || *c.MeanReversion > 1) {
		return errors.New("meanReversion must be between 0 and 1")
	}
	if c.AdjustSpeed < 0 || c.AdjustSpeed > 1 {
		return errors.New("adjustSpeed must be between 0 and 1")
	}
	if c.HistoryCap < 0 {
		return errors.New("historyCap must be >= 0")
	}
	return nil
}

type history struct {
	anchor float64
	prices []float64
}

func (h *history) push(price float64, cap int) {
	h.prices = append(h.prices, price)
	if len(h.prices) > cap {
		h.prices = h.prices[len(h.prices)-cap:]
	}
}

func (h *history) last() float64 {
	return h.prices[len(h.prices)-1]
}

// returns yields up to n trailing one-step returns, newest last.
func (h *history) returns(n int) []float64 {
	if len(h.prices) < 2 {
		return nil
	}
	start := len(h.prices) - n - 1
	if start < 0 {
		start = 0
	}
	window := h.prices[start:]
	out := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		out = append(out, window[i]/window[i-1]-1)
	}
	return out
}

// Discovery owns the price histories for all registered symbols.
type Discovery struct {
	cfg Config

	mu   sync.Mutex
	rng  *rand.Rand
	hist map[string]*history
}

// New creates a price discovery engine with a seeded RNG.
func New(cfg Config) (*Discovery, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "price config")
	}
	return &Discovery{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		hist: make(map[string]*history),
	}, nil
}

// Register seeds a symbol's history with its anchor price.
func (d *Discovery) Register(symbol string, initialPrice float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hist[symbol] = &history{
		anchor: initialPrice,
		prices: []float64{initialPrice},
	}
}

// Update advances the symbol's reference price by one tick and writes the
// new price, momentum and volatility estimates back to the market state.
func (d *Discovery) Update(symbol string, quotes Quoter, state *model.MarketState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.hist[symbol]
	if !ok {
		return ErrUnknownSymbol
	}

	current := h.last()
	target := current

	bid, okBid := quotes.BestBid()
	ask, okAsk := quotes.BestAsk()
	if okBid && okAsk {
		target = (bid + ask) / 2
	} else {
		shock := d.rng.NormFloat64() * d.cfg.Volatility * current
		reversion := *d.cfg.MeanReversion * (h.anchor - current)
		drift := *d.cfg.MomentumWeight * d.momentum(h) * current
		target = current + shock + reversion + drift
	}

	next := current + d.cfg.AdjustSpeed*(target-current)
	if floor := current / 2; next < floor {
		next = floor
	}
	h.push(next, d.cfg.HistoryCap)

	state.LastPrice = next
	state.Momentum = d.momentum(h)
	state.Volatility = d.volatility(h)
	return nil
}

// Momentum returns the trailing short-window mean return for a symbol.
func (d *Discovery) Momentum(symbol string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.hist[symbol]
	if !ok {
		return 0
	}
	return d.momentum(h)
}

// Volatility returns the trailing sample deviation of one-step returns,
// falling back to the configured baseline when history is insufficient.
func (d *Discovery) Volatility(symbol string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.hist[symbol]
	if !ok {
		return d.cfg.Volatility
	}
	return d.volatility(h)
}

func (d *Discovery) momentum(h *history) float64 {
	returns := h.returns(momentumWindow)
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	return sum / float64(len(returns))
}

func (d *Discovery) volatility(h *history) float64 {
	returns := h.returns(volatilityWindow)
	if len(returns) < 2 {
		return d.cfg.Volatility
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}

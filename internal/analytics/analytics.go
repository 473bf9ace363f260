// Package analytics computes point-in-time and trailing microstructure
// metrics per symbol. Metrics are advisory snapshots; the aggregator never
// mutates book or market state.
package analytics

import (
	"math"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"prism/internal/book"
	"prism/internal/model"
)

const bookDepth = 5

// Config controls the trailing windows and the refresh cadence.
type Config struct {
	FillWindow        int `json:"fillWindow"`        // trailing fills kept per symbol
	ReturnWindow      int `json:"returnWindow"`      // trailing returns for realized volatility
	RefreshEveryFills int `json:"refreshEveryFills"` // recompute after this many new fills
}

func (c Config) withDefaults() Config {
	if c.FillWindow == 0 {
		c.FillWindow = 100
	}
	if c.ReturnWindow == 0 {
		c.ReturnWindow = 50
	}
	if c.RefreshEveryFills == 0 {
		c.RefreshEveryFills = 10
	}
	return c
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.FillWindow < 0 || c.ReturnWindow < 0 || c.RefreshEveryFills < 0 {
		return errors.New("analytics windows must be >= 0")
	}
	return nil
}

// Metrics is one symbol's computed microstructure view.
type Metrics struct {
	Symbol    string
	Timestamp time.Time

	// order book
	Spread    float64
	MidPrice  float64
	Imbalance float64
	BidDepth  float64
	AskDepth  float64

	// trailing fills
	EffectiveSpread    float64
	PriceImpact        float64
	RealizedVolatility float64
	FillCount          int

	// market state passthrough
	Volume     float64
	Volatility float64
	Momentum   float64
	Liquidity  float64
}

type window struct {
	fills       []model.Fill
	tradePrices []float64
	fillsSeen   int
	computedAt  int // fillsSeen value at the last recompute
	metrics     Metrics
	hasMetrics  bool
}

// Aggregator maintains the per-symbol trailing windows and metric cache.
type Aggregator struct {
	cfg Config

	mu      sync.Mutex
	windows map[string]*window
}

// New creates an analytics aggregator.
func New(cfg Config) (*Aggregator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "analytics config")
	}
	return &Aggregator{
		cfg:     cfg,
		windows: make(map[string]*window),
	}, nil
}

// RecordFill appends a fill to the symbol's trailing window.
func (a *Aggregator) RecordFill(f model.Fill) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.windowFor(f.Symbol)
	w.fillsSeen++
	w.fills = append(w.fills, f)
	if len(w.fills) > a.cfg.FillWindow {
		w.fills = w.fills[len(w.fills)-a.cfg.FillWindow:]
	}
	w.tradePrices = append(w.tradePrices, f.Price)
	if limit := a.cfg.ReturnWindow + 1; len(w.tradePrices) > limit {
		w.tradePrices = w.tradePrices[len(w.tradePrices)-limit:]
	}
}

// Update recomputes the symbol's metrics when enough new fills arrived
// since the last computation. Passthrough fields refresh on every call.
func (a *Aggregator) Update(symbol string, b *book.Book, state *model.MarketState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.windowFor(symbol)
	if !w.hasMetrics || w.fillsSeen-w.computedAt >= a.cfg.RefreshEveryFills {
		w.metrics = a.compute(symbol, w, b)
		w.computedAt = w.fillsSeen
		w.hasMetrics = true
	}

	w.metrics.Volume = state.Volume
	w.metrics.Volatility = state.Volatility
	w.metrics.Momentum = state.Momentum
	w.metrics.Liquidity = state.Liquidity
}

// Metrics returns the cached metrics for a symbol.
func (a *Aggregator) Metrics(symbol string) (Metrics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.windows[symbol]
	if !ok || !w.hasMetrics {
		return Metrics{}, false
	}
	return w.metrics, true
}

func (a *Aggregator) windowFor(symbol string) *window {
	w, ok := a.windows[symbol]
	if !ok {
		w = &window{}
		a.windows[symbol] = w
	}
	return w
}

func (a *Aggregator) compute(symbol string, w *window, b *book.Book) Metrics {
	m := Metrics{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		FillCount: len(w.fills),
	}

	snap := b.Snapshot(bookDepth)
	if spread, ok := snap.Spread(); ok {
		m.Spread = spread
	}
	if mid, ok := b.MidPrice(); ok {
		m.MidPrice = mid
	}

	var bidVol, askVol float64
	for _, lvl := range snap.Bids {
		bidVol += lvl.Quantity
	}
	for _, lvl := range snap.Asks {
		askVol += lvl.Quantity
	}
	m.BidDepth = bidVol
	m.AskDepth = askVol
	if total := bidVol + askVol; total > 0 {
		m.Imbalance = (bidVol - askVol) / total
	}

	m.EffectiveSpread = effectiveSpread(w.fills, m.MidPrice)
	m.PriceImpact = priceImpact(w.fills)
	m.RealizedVolatility = realizedVolatility(w.tradePrices)
	return m
}

// effectiveSpread averages 2*|trade - mid| over the trailing fills.
func effectiveSpread(fills []model.Fill, mid float64) float64 {
	if len(fills) == 0 || mid <= 0 {
		return 0
	}
	var sum float64
	for _, f := range fills {
		sum += 2 * math.Abs(f.Price-mid)
	}
	return sum / float64(len(fills))
}

// priceImpact averages the absolute price change between consecutive trades.
func priceImpact(fills []model.Fill) float64 {
	if len(fills) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(fills); i++ {
		sum += math.Abs(fills[i].Price - fills[i-1].Price)
	}
	return sum / float64(len(fills)-1)
}

// realizedVolatility is the sample deviation of trailing one-step trade
// returns.
func realizedVolatility(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
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

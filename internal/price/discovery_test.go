package price

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/model"
)

type stubQuotes struct {
	bid, ask       float64
	hasBid, hasAsk bool
}

func (q stubQuotes) BestBid() (float64, bool) { return q.bid, q.hasBid }
func (q stubQuotes) BestAsk() (float64, bool) { return q.ask, q.hasAsk }

func newDiscovery(t *testing.T, cfg Config) *Discovery {
	t.Helper()
	d, err := New(cfg)
	require.NoError(t, err)
	return d
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{AdjustSpeed: 2})
	assert.Error(t, err)
	_, err = New(Config{MeanReversion: f64(-0.1)})
	assert.Error(t, err)
	_, err = New(Config{Seed: 1})
	assert.NoError(t, err)
}

func TestUpdateUnknownSymbol(t *testing.T) {
	d := newDiscovery(t, Config{Seed: 1})
	err := d.Update("nope", stubQuotes{}, &model.MarketState{})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

// With zero momentum weight and zero reversion pull, the trajectory is a
// bounded random walk with no systematic drift.
func TestPureRandomWalkHasNoDrift(t *testing.T) {
	d := newDiscovery(t, Config{
		Volatility:     0.002,
		MeanReversion:  f64(0),
		MomentumWeight: f64(0),
		AdjustSpeed:    1,
		Seed:           42,
	})
	d.Register("X", 100)

	state := &model.MarketState{Symbol: "X"}
	var sumReturn float64
	prev := 100.0
	const ticks = 2_000
	for i := 0; i < ticks; i++ {
		require.NoError(t, d.Update("X", stubQuotes{}, state))
		sumReturn += state.LastPrice/prev - 1
		assert.Greater(t, state.LastPrice, 0.0)
		prev = state.LastPrice
	}

	meanReturn := sumReturn / ticks
	// mean one-step return should be statistically indistinguishable from 0:
	// bound it by a few standard errors of the configured shock scale
	assert.Less(t, math.Abs(meanReturn), 4*0.002/math.Sqrt(ticks))
}

func TestMidPriceAnchorsTargetWhenTwoSided(t *testing.T) {
	d := newDiscovery(t, Config{Seed: 7, AdjustSpeed: 0.5})
	d.Register("X", 100)

	state := &model.MarketState{Symbol: "X"}
	quotes := stubQuotes{bid: 109, ask: 111, hasBid: true, hasAsk: true}
	require.NoError(t, d.Update("X", quotes, state))

	// halfway from 100 toward the 110 mid
	assert.InDelta(t, 105.0, state.LastPrice, 1e-9)
}

func TestOneSidedBookUsesStochasticTarget(t *testing.T) {
	d := newDiscovery(t, Config{
		Seed:           7,
		Volatility:     1e-12,
		MeanReversion:  f64(0.5),
		MomentumWeight: f64(0),
		AdjustSpeed:    1,
	})
	d.Register("X", 80)

	// walk the price away from the 80 anchor through a two-sided book
	state := &model.MarketState{Symbol: "X"}
	require.NoError(t, d.Update("X", stubQuotes{bid: 159, ask: 161, hasBid: true, hasAsk: true}, state))
	require.InDelta(t, 160.0, state.LastPrice, 1e-9)

	// one-sided book: mean reversion pulls halfway back toward the anchor,
	// ignoring the lone bid
	require.NoError(t, d.Update("X", stubQuotes{bid: 200, hasBid: true}, state))
	assert.InDelta(t, 120.0, state.LastPrice, 0.01)
}

func TestPriceFloorsAtHalfPrevious(t *testing.T) {
	d := newDiscovery(t, Config{Seed: 3, AdjustSpeed: 1})
	d.Register("X", 100)

	state := &model.MarketState{Symbol: "X"}
	// a crashed two-sided market targeting far below half the current price
	quotes := stubQuotes{bid: 1, ask: 2, hasBid: true, hasAsk: true}
	require.NoError(t, d.Update("X", quotes, state))
	assert.InDelta(t, 50.0, state.LastPrice, 1e-9)
}

func TestMomentumIsMeanOfTrailingReturns(t *testing.T) {
	d := newDiscovery(t, Config{Seed: 1, AdjustSpeed: 1})
	d.Register("X", 100)

	// drive the price deterministically through two-sided quotes
	state := &model.MarketState{Symbol: "X"}
	for _, mid := range []float64{101, 102, 103, 104} {
		quotes := stubQuotes{bid: mid - 1, ask: mid + 1, hasBid: true, hasAsk: true}
		require.NoError(t, d.Update("X", quotes, state))
	}

	want := (101.0/100 + 102.0/101 + 103.0/102 + 104.0/103 - 4) / 4
	assert.InDelta(t, want, d.Momentum("X"), 1e-12)
	assert.InDelta(t, want, state.Momentum, 1e-12)
}

func TestVolatilityFallsBackToBaseline(t *testing.T) {
	d := newDiscovery(t, Config{Seed: 1, Volatility: 0.005})
	d.Register("X", 100)
	assert.InDelta(t, 0.005, d.Volatility("X"), 1e-12, "no history yet")
	assert.InDelta(t, 0.005, d.Volatility("unregistered"), 1e-12)
}

func TestHistoryIsBounded(t *testing.T) {
	d := newDiscovery(t, Config{Seed: 5, HistoryCap: 16})
	d.Register("X", 100)

	state := &model.MarketState{Symbol: "X"}
	for i := 0; i < 200; i++ {
		require.NoError(t, d.Update("X", stubQuotes{}, state))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.LessOrEqual(t, len(d.hist["X"].prices), 16)
}

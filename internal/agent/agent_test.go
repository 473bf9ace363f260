package agent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/model"
)

func twoSidedView() MarketView {
	return MarketView{
		Symbol:    "X",
		LastPrice: 100,
		MidPrice:  100,
		BestBid:   99.9,
		BestAsk:   100.1,
		HasBid:    true,
		HasAsk:    true,
	}
}

func TestMarketMakerQuotesSymmetricPair(t *testing.T) {
	mm := NewMarketMaker("mm-1", MarketMakerConfig{Spread: 0.01, QuoteSize: 5})
	orders := mm.GenerateOrders(twoSidedView())

	require.Len(t, orders, 2)
	bid, ask := orders[0], orders[1]
	assert.Equal(t, model.SideBuy, bid.Side)
	assert.Equal(t, model.SideSell, ask.Side)
	assert.Equal(t, model.KindLimit, bid.Kind)
	assert.InDelta(t, 99.5, bid.Price, 1e-9)
	assert.InDelta(t, 100.5, ask.Price, 1e-9)
	assert.InDelta(t, 5.0, bid.Quantity, 1e-9)
	assert.Equal(t, "mm-1", bid.AgentID)
}

func TestMarketMakerSkipsUnpricedMarket(t *testing.T) {
	mm := NewMarketMaker("mm-1", MarketMakerConfig{})
	assert.Empty(t, mm.GenerateOrders(MarketView{Symbol: "X"}))
}

func TestNoiseTraderProbabilityGate(t *testing.T) {
	never := NewNoiseTrader("noise-1", NoiseConfig{Probability: 1e-12}, rand.New(rand.NewSource(1)))
	for i := 0; i < 100; i++ {
		assert.Empty(t, never.GenerateOrders(twoSidedView()))
	}

	always := NewNoiseTrader("noise-2", NoiseConfig{Probability: 1}, rand.New(rand.NewSource(1)))
	var market, limit int
	for i := 0; i < 500; i++ {
		orders := always.GenerateOrders(twoSidedView())
		require.Len(t, orders, 1)
		o := orders[0]
		require.NoError(t, o.Validate())
		assert.GreaterOrEqual(t, o.Quantity, 1.0)
		assert.LessOrEqual(t, o.Quantity, 20.0)
		switch o.Kind {
		case model.KindMarket:
			market++
		case model.KindLimit:
			limit++
			assert.InDelta(t, 100.0, o.Price, 1.0, "limit prices scatter within 1%%")
		}
	}
	assert.Greater(t, market, limit, "roughly 70%% of noise flow is market orders")
	assert.Greater(t, limit, 0)
}

func TestInformedTraderFollowsMomentum(t *testing.T) {
	it := NewInformedTrader("informed-1", InformedConfig{Probability: 1, Threshold: 0.001, Size: 25}, rand.New(rand.NewSource(1)))

	flat := twoSidedView()
	assert.Empty(t, it.GenerateOrders(flat), "momentum below threshold")

	up := flat
	up.Momentum = 0.01
	orders := it.GenerateOrders(up)
	require.Len(t, orders, 1)
	assert.Equal(t, model.SideBuy, orders[0].Side)
	assert.Equal(t, model.KindMarket, orders[0].Kind)

	down := flat
	down.Momentum = -0.01
	orders = it.GenerateOrders(down)
	require.Len(t, orders, 1)
	assert.Equal(t, model.SideSell, orders[0].Side)
}

func TestMomentumTraderPricesThroughMarket(t *testing.T) {
	mt := NewMomentumTrader("momentum-1", MomentumConfig{Probability: 1, Threshold: 0.0005, Size: 15, Aggressiveness: 0.001}, rand.New(rand.NewSource(1)))

	view := twoSidedView()
	view.Momentum = 0.01
	orders := mt.GenerateOrders(view)
	require.Len(t, orders, 1)
	assert.Equal(t, model.SideBuy, orders[0].Side)
	assert.Equal(t, model.KindLimit, orders[0].Kind)
	assert.Greater(t, orders[0].Price, view.MidPrice)

	view.Momentum = -0.01
	orders = mt.GenerateOrders(view)
	require.Len(t, orders, 1)
	assert.Equal(t, model.SideSell, orders[0].Side)
	assert.Less(t, orders[0].Price, view.MidPrice)
}

type panickingAgent struct{}

func (panickingAgent) Name() string                          { return "boom" }
func (panickingAgent) GenerateOrders(MarketView) []model.Order { panic("boom") }

func TestSimulatorIsolatesAgentFaults(t *testing.T) {
	sim, err := NewSimulator(Config{Seed: 1, MarketMakers: count(1)}, nil)
	require.NoError(t, err)

	var faults int
	sim.onFault = func() { faults++ }
	sim.agents = append([]Agent{panickingAgent{}}, sim.agents...)

	orders := sim.Update(twoSidedView())
	assert.Equal(t, 1, faults)
	assert.NotEmpty(t, orders, "healthy agents still produce orders")
}

func TestSimulatorPopulation(t *testing.T) {
	sim, err := NewSimulator(Config{Seed: 1, MarketMakers: count(2), NoiseTraders: count(3), InformedTraders: count(1), MomentumTraders: count(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, sim.Agents())

	_, err = NewSimulator(Config{Seed: 1, MarketMakers: count(-1)}, nil)
	assert.Error(t, err)
}

// An explicit zero is a configuration, not a request for the default.
func TestSimulatorHonorsZeroCounts(t *testing.T) {
	sim, err := NewSimulator(Config{Seed: 1, NoiseTraders: count(0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sim.Agents(), "defaulted mm, informed and momentum only")

	empty, err := NewSimulator(Config{
		Seed:            1,
		MarketMakers:    count(0),
		NoiseTraders:    count(0),
		InformedTraders: count(0),
		MomentumTraders: count(0),
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Agents())
	assert.Empty(t, empty.Update(twoSidedView()))
}

func TestSimulatorOrderingIsDeterministic(t *testing.T) {
	view := twoSidedView()
	a, err := NewSimulator(Config{Seed: 99}, nil)
	require.NoError(t, err)
	b, err := NewSimulator(Config{Seed: 99}, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Update(view), b.Update(view))
	}
}

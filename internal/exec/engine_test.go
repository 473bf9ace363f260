package exec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/book"
	"prism/internal/liquidity"
	"prism/internal/model"
)

type testShard struct {
	mu    sync.Mutex
	book  *book.Book
	state *model.MarketState
}

func (s *testShard) Lock()                     { s.mu.Lock() }
func (s *testShard) Unlock()                   { s.mu.Unlock() }
func (s *testShard) Book() *book.Book          { return s.book }
func (s *testShard) State() *model.MarketState { return s.state }

type captureSink struct {
	fills []model.Fill
}

func (c *captureSink) RecordFills(fills []model.Fill) {
	c.fills = append(c.fills, fills...)
}

func newTestEngine(t *testing.T) (*Engine, *testShard, *captureSink) {
	t.Helper()
	liq, err := liquidity.New(liquidity.Config{
		BaseCapacity:      10_000,
		ImpactCoefficient: 0.001,
		RecoveryRate:      0.1,
		DepletionFactor:   1,
	})
	require.NoError(t, err)

	sink := &captureSink{}
	e, err := New(Config{Seed: 1}, liq, sink)
	require.NoError(t, err)

	shard := &testShard{
		book:  book.New("X", 100),
		state: &model.MarketState{Symbol: "X", LastPrice: 100, Liquidity: 10_000},
	}
	return e, shard, sink
}

func TestNewFailsFastOnMissingWiring(t *testing.T) {
	liq, err := liquidity.New(liquidity.Config{})
	require.NoError(t, err)

	_, err = New(Config{}, nil, &captureSink{})
	assert.ErrorIs(t, err, ErrMissingLiquidityModel)
	_, err = New(Config{}, liq, nil)
	assert.ErrorIs(t, err, ErrMissingSink)
	_, err = New(Config{BaseLatency: -time.Second}, liq, &captureSink{})
	assert.Error(t, err)
}

func TestMarketOrderAgainstEmptyBookIsRejected(t *testing.T) {
	e, shard, sink := newTestEngine(t)
	o := &model.Order{ID: "m1", Symbol: "X", Side: model.SideSell, Kind: model.KindMarket, Quantity: 10}

	fills, err := e.Process(context.Background(), o, shard)
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, model.StatusRejected, o.Status)
	assert.Empty(t, sink.fills)
	assert.Zero(t, shard.state.Volume, "rejection must not mutate market state")
	assert.InDelta(t, 100.0, shard.state.LastPrice, 1e-9)
}

func TestMarketOrderSettlesStateAndLiquidity(t *testing.T) {
	e, shard, sink := newTestEngine(t)
	resting := &model.Order{ID: "s1", Symbol: "X", Side: model.SideSell, Kind: model.KindLimit, Quantity: 100, Price: 101}
	require.NoError(t, shard.book.Add(resting))

	o := &model.Order{ID: "b1", Symbol: "X", Side: model.SideBuy, Kind: model.KindMarket, Quantity: 60}
	fills, err := e.Process(context.Background(), o, shard)
	require.NoError(t, err)

	require.Len(t, fills, 1)
	assert.Equal(t, model.StatusFilled, o.Status)
	assert.InDelta(t, 101.0, shard.state.LastPrice, 1e-9)
	assert.InDelta(t, 60.0, shard.state.Volume, 1e-9)
	assert.InDelta(t, 10_000-60, shard.state.Liquidity, 1e-9)
	assert.Len(t, sink.fills, 1)
}

func TestMarketOrderRemainderIsDropped(t *testing.T) {
	e, shard, _ := newTestEngine(t)
	resting := &model.Order{ID: "s1", Symbol: "X", Side: model.SideSell, Kind: model.KindLimit, Quantity: 20, Price: 101}
	require.NoError(t, shard.book.Add(resting))

	o := &model.Order{ID: "b1", Symbol: "X", Side: model.SideBuy, Kind: model.KindMarket, Quantity: 50}
	_, err := e.Process(context.Background(), o, shard)
	require.NoError(t, err)

	assert.Equal(t, model.StatusPartiallyFilled, o.Status)
	// nothing rested on the bid side
	_, hasBid := shard.book.BestBid()
	assert.False(t, hasBid)
}

func TestLimitOrderMatchesThenRests(t *testing.T) {
	e, shard, _ := newTestEngine(t)
	resting := &model.Order{ID: "s1", Symbol: "X", Side: model.SideSell, Kind: model.KindLimit, Quantity: 30, Price: 100}
	require.NoError(t, shard.book.Add(resting))

	o := &model.Order{ID: "b1", Symbol: "X", Side: model.SideBuy, Kind: model.KindLimit, Quantity: 50, Price: 100}
	fills, err := e.Process(context.Background(), o, shard)
	require.NoError(t, err)

	require.Len(t, fills, 1)
	assert.Equal(t, model.StatusPartiallyFilled, o.Status)
	bid, hasBid := shard.book.BestBid()
	require.True(t, hasBid)
	assert.InDelta(t, 100.0, bid, 1e-9)

	snap := shard.book.Snapshot(1)
	require.Len(t, snap.Bids, 1)
	assert.InDelta(t, 20.0, snap.Bids[0].Quantity, 1e-9)
}

func TestUnsupportedKindIsRejected(t *testing.T) {
	e, shard, _ := newTestEngine(t)
	o := &model.Order{ID: "x1", Symbol: "X", Side: model.SideBuy, Kind: model.KindStop, Quantity: 10, Price: 90}

	fills, err := e.Process(context.Background(), o, shard)
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, model.StatusRejected, o.Status)
}

func TestLatencyRespectsContextCancellation(t *testing.T) {
	liq, err := liquidity.New(liquidity.Config{})
	require.NoError(t, err)
	e, err := New(Config{BaseLatency: time.Minute, Seed: 1}, liq, &captureSink{})
	require.NoError(t, err)

	shard := &testShard{book: book.New("X", 100), state: &model.MarketState{Symbol: "X"}}
	o := &model.Order{ID: "b1", Symbol: "X", Side: model.SideBuy, Kind: model.KindMarket, Quantity: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Process(ctx, o, shard)
	assert.Error(t, err)
	assert.Equal(t, model.StatusRejected, o.Status)
}

func TestSlippageEstimate(t *testing.T) {
	e, _, _ := newTestEngine(t)
	o := &model.Order{Symbol: "X", Side: model.SideSell, Quantity: 100}

	impact := 0.001 * 0.1 // coefficient * sqrt(100/10000)
	assert.InDelta(t, 100*impact, e.Slippage(o, 100), 1e-12)
}

// Package exec is the single entry point for order processing. It applies
// a simulated network latency, dispatches market and limit handling against
// the book, and settles liquidity depletion and market-state updates for
// whatever filled.
package exec

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"prism/internal/book"
	"prism/internal/liquidity"
	"prism/internal/model"
)

var (
	ErrMissingLiquidityModel = errors.New("execution engine requires a liquidity model")
	ErrMissingSink           = errors.New("execution engine requires a fill sink")
)

// Shard grants exclusive access to one symbol's book and market state for
// the duration of a matching pass.
type Shard interface {
	Lock()
	Unlock()
	Book() *book.Book
	State() *model.MarketState
}

// Sink receives the fills of each completed matching pass. Implementations
// must not block the matching path.
type Sink interface {
	RecordFills(fills []model.Fill)
}

// Config defines the simulated execution latency.
type Config struct {
	BaseLatency   time.Duration `json:"baseLatency"`
	LatencyJitter time.Duration `json:"latencyJitter"`
	Seed          int64         `json:"seed"`
}

func (c Config) withDefaults() Config {
	if c.Seed == 0 {
		c.Seed = time.Now().UTC().UnixNano()
	}
	return c
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.BaseLatency < 0 {
		return errors.New("baseLatency must be >= 0")
	}
	if c.LatencyJitter < 0 {
		return errors.New("latencyJitter must be >= 0")
	}
	return nil
}

// Engine processes orders against per-symbol shards.
type Engine struct {
	cfg       Config
	liquidity *liquidity.Model
	sink      Sink

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an execution engine, failing fast on missing collaborators.
func New(cfg Config, liq *liquidity.Model, sink Sink) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "exec config")
	}
	if liq == nil {
		return nil, ErrMissingLiquidityModel
	}
	if sink == nil {
		return nil, ErrMissingSink
	}
	return &Engine{
		cfg:       cfg,
		liquidity: liq,
		sink:      sink,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Process runs one order to a terminal or resting status. The simulated
// latency elapses before the shard lock is taken, so a delayed order holds
// nothing while it waits. Rejection is reported through the order status,
// not as an error; the returned error covers cancellation only.
func (e *Engine) Process(ctx context.Context, o *model.Order, shard Shard) ([]model.Fill, error) {
	if err := e.delay(ctx); err != nil {
		// the order may already be visible to queries; status writes happen
		// under the shard lock only
		shard.Lock()
		o.Status = model.StatusRejected
		shard.Unlock()
		return nil, errors.Wrap(err, "order latency interrupted")
	}

	shard.Lock()
	defer shard.Unlock()

	switch o.Kind {
	case model.KindMarket:
		return e.processMarket(o, shard), nil
	case model.KindLimit:
		return e.processLimit(o, shard)
	default:
		// stop and stop-limit orders are not implemented
		o.Status = model.StatusRejected
		return nil, nil
	}
}

func (e *Engine) processMarket(o *model.Order, shard Shard) []model.Fill {
	fills := shard.Book().Match(o)
	if len(fills) == 0 {
		o.Status = model.StatusRejected
		return nil
	}
	// market orders never rest: any remainder is dropped and the status
	// stays partially-filled
	e.settle(o, fills, shard.State())
	return fills
}

func (e *Engine) processLimit(o *model.Order, shard Shard) ([]model.Fill, error) {
	fills := shard.Book().Match(o)
	e.settle(o, fills, shard.State())
	if o.RemainingQuantity() > 0 {
		if err := shard.Book().Add(o); err != nil {
			o.Status = model.StatusRejected
			return fills, errors.Wrap(err, "rest limit remainder")
		}
	}
	return fills, nil
}

func (e *Engine) settle(o *model.Order, fills []model.Fill, state *model.MarketState) {
	if len(fills) == 0 {
		return
	}
	var executed float64
	for _, f := range fills {
		executed += f.Quantity
	}
	e.liquidity.ApplyDepletion(o, executed)

	last := fills[len(fills)-1]
	state.LastPrice = last.Price
	state.Volume += executed
	state.Liquidity = e.liquidity.Available(o.Symbol)

	e.sink.RecordFills(fills)
}

// Slippage estimates the absolute price cost of executing the order at the
// current liquidity. Used for reporting only, never for matching.
func (e *Engine) Slippage(o *model.Order, lastPrice float64) float64 {
	return lastPrice * math.Abs(e.liquidity.MarketImpact(o))
}

func (e *Engine) delay(ctx context.Context) error {
	d := e.cfg.BaseLatency
	if jitter := e.cfg.LatencyJitter; jitter > 0 {
		e.rngMu.Lock()
		d += time.Duration(e.rng.Int63n(int64(jitter) + 1))
		e.rngMu.Unlock()
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package agent owns the population of synthetic market participants. Each
// variant produces orders from a read-only view of the market; the simulator
// collects every agent's orders for the tick, isolating per-agent failures,
// and hands the combined list back to the engine for sequential submission.
package agent

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"prism/internal/model"
)

// MarketView is the read-only snapshot agents trade on. It is a value copy:
// nothing an agent does can touch live engine state.
type MarketView struct {
	Symbol     string
	LastPrice  float64
	MidPrice   float64
	BestBid    float64
	BestAsk    float64
	HasBid     bool
	HasAsk     bool
	Momentum   float64
	Volatility float64
	Liquidity  float64
}

// ReferencePrice is the mid when the book is two-sided, the last trade
// price otherwise.
func (v MarketView) ReferencePrice() float64 {
	if v.HasBid && v.HasAsk {
		return v.MidPrice
	}
	return v.LastPrice
}

// Agent produces zero or more orders for a symbol each tick.
type Agent interface {
	Name() string
	GenerateOrders(view MarketView) []model.Order
}

// Config sizes and parameterizes the agent population. The counts are
// pointers because zero is a meaningful population size; nil means "use the
// default".
type Config struct {
	Seed            int64             `json:"seed"`
	MarketMakers    *int              `json:"marketMakers"`
	NoiseTraders    *int              `json:"noiseTraders"`
	InformedTraders *int              `json:"informedTraders"`
	MomentumTraders *int              `json:"momentumTraders"`
	MarketMaker     MarketMakerConfig `json:"marketMaker"`
	Noise           NoiseConfig       `json:"noise"`
	Informed        InformedConfig    `json:"informed"`
	Momentum        MomentumConfig    `json:"momentum"`
}

func count(n int) *int { return &n }

func (c Config) withDefaults() Config {
	if c.MarketMakers == nil {
		c.MarketMakers = count(1)
	}
	if c.NoiseTraders == nil {
		c.NoiseTraders = count(3)
	}
	if c.InformedTraders == nil {
		c.InformedTraders = count(1)
	}
	if c.MomentumTraders == nil {
		c.MomentumTraders = count(1)
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UTC().UnixNano()
	}
	c.MarketMaker = c.MarketMaker.withDefaults()
	c.Noise = c.Noise.withDefaults()
	c.Informed = c.Informed.withDefaults()
	c.Momentum = c.Momentum.withDefaults()
	return c
}

// Validate ensures the population config is within supported ranges.
func (c Config) Validate() error {
	for _, n := range []*int{c.MarketMakers, c.NoiseTraders, c.InformedTraders, c.MomentumTraders} {
		if n != nil && *n < 0 {
			return errors.New("agent counts must be >= 0")
		}
	}
	if err := c.Noise.Validate(); err != nil {
		return err
	}
	return nil
}

// Simulator holds the fixed agent population.
type Simulator struct {
	agents  []Agent
	onFault func()
}

// NewSimulator builds the population from config. onFault is invoked once
// per isolated agent failure; nil disables the callback.
func NewSimulator(cfg Config, onFault func()) (*Simulator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "agent config")
	}

	seed := cfg.Seed
	nextRand := func() *rand.Rand {
		seed++
		return rand.New(rand.NewSource(seed))
	}

	var agents []Agent
	for i := 0; i < *cfg.MarketMakers; i++ {
		agents = append(agents, NewMarketMaker(fmt.Sprintf("mm-%d", i+1), cfg.MarketMaker))
	}
	for i := 0; i < *cfg.NoiseTraders; i++ {
		agents = append(agents, NewNoiseTrader(fmt.Sprintf("noise-%d", i+1), cfg.Noise, nextRand()))
	}
	for i := 0; i < *cfg.InformedTraders; i++ {
		agents = append(agents, NewInformedTrader(fmt.Sprintf("informed-%d", i+1), cfg.Informed, nextRand()))
	}
	for i := 0; i < *cfg.MomentumTraders; i++ {
		agents = append(agents, NewMomentumTrader(fmt.Sprintf("momentum-%d", i+1), cfg.Momentum, nextRand()))
	}

	return &Simulator{agents: agents, onFault: onFault}, nil
}

// Agents returns the population size.
func (s *Simulator) Agents() int {
	return len(s.agents)
}

// Update collects every agent's generated orders for the tick, in agent
// then generation order. A failing agent is logged and skipped; it cannot
// halt the tick for the others.
func (s *Simulator) Update(view MarketView) []model.Order {
	var orders []model.Order
	for _, a := range s.agents {
		orders = append(orders, s.generate(a, view)...)
	}
	return orders
}

func (s *Simulator) generate(a Agent, view MarketView) (orders []model.Order) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("agent %s failed on %s: %+v", a.Name(), view.Symbol, r)
			if s.onFault != nil {
				s.onFault()
			}
			orders = nil
		}
	}()
	return a.GenerateOrders(view)
}

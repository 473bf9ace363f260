package agent

import (
	"math"
	"math/rand"

	"prism/internal/model"
)

// InformedConfig parameterizes the directional-signal agent.
type InformedConfig struct {
	Probability float64 `json:"probability"`
	Threshold   float64 `json:"threshold"` // minimum |momentum| to act on
	Size        float64 `json:"size"`
}

func (c InformedConfig) withDefaults() InformedConfig {
	if c.Probability == 0 {
		c.Probability = 0.05
	}
	if c.Threshold == 0 {
		c.Threshold = 0.001
	}
	if c.Size == 0 {
		c.Size = 25
	}
	return c
}

// InformedTrader takes liquidity in the direction of strong momentum,
// mimicking a participant trading on a signal.
type InformedTrader struct {
	name string
	cfg  InformedConfig
	rng  *rand.Rand
}

// NewInformedTrader creates an informed trader with its own RNG stream.
func NewInformedTrader(name string, cfg InformedConfig, rng *rand.Rand) *InformedTrader {
	return &InformedTrader{name: name, cfg: cfg.withDefaults(), rng: rng}
}

func (i *InformedTrader) Name() string {
	return i.name
}

func (i *InformedTrader) GenerateOrders(view MarketView) []model.Order {
	if i.rng.Float64() >= i.cfg.Probability {
		return nil
	}
	if math.Abs(view.Momentum) <= i.cfg.Threshold {
		return nil
	}

	side := model.SideBuy
	if view.Momentum < 0 {
		side = model.SideSell
	}
	return []model.Order{{
		Symbol:   view.Symbol,
		Side:     side,
		Kind:     model.KindMarket,
		Quantity: i.cfg.Size,
		AgentID:  i.name,
	}}
}

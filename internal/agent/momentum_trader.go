package agent

import (
	"math"
	"math/rand"

	"prism/internal/model"
)

// MomentumConfig parameterizes the trend-following agent.
type MomentumConfig struct {
	Probability    float64 `json:"probability"`
	Threshold      float64 `json:"threshold"`      // smaller than the informed threshold
	Size           float64 `json:"size"`
	Aggressiveness float64 `json:"aggressiveness"` // how far through the price the limit goes
}

func (c MomentumConfig) withDefaults() MomentumConfig {
	if c.Probability == 0 {
		c.Probability = 0.08
	}
	if c.Threshold == 0 {
		c.Threshold = 0.0005
	}
	if c.Size == 0 {
		c.Size = 15
	}
	if c.Aggressiveness == 0 {
		c.Aggressiveness = 0.001
	}
	return c
}

// MomentumTrader chases trends with limit orders priced slightly through
// the current price in the direction of momentum, so they cross when the
// far side has liquidity but still cap the execution price.
type MomentumTrader struct {
	name string
	cfg  MomentumConfig
	rng  *rand.Rand
}

// NewMomentumTrader creates a momentum trader with its own RNG stream.
func NewMomentumTrader(name string, cfg MomentumConfig, rng *rand.Rand) *MomentumTrader {
	return &MomentumTrader{name: name, cfg: cfg.withDefaults(), rng: rng}
}

func (m *MomentumTrader) Name() string {
	return m.name
}

func (m *MomentumTrader) GenerateOrders(view MarketView) []model.Order {
	if m.rng.Float64() >= m.cfg.Probability {
		return nil
	}
	if math.Abs(view.Momentum) <= m.cfg.Threshold {
		return nil
	}
	ref := view.ReferencePrice()
	if ref <= 0 {
		return nil
	}

	side := model.SideBuy
	price := ref * (1 + m.cfg.Aggressiveness)
	if view.Momentum < 0 {
		side = model.SideSell
		price = ref * (1 - m.cfg.Aggressiveness)
	}
	return []model.Order{{
		Symbol:   view.Symbol,
		Side:     side,
		Kind:     model.KindLimit,
		Quantity: m.cfg.Size,
		Price:    price,
		AgentID:  m.name,
	}}
}

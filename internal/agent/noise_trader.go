package agent

import (
	"math/rand"

	"github.com/yanun0323/errors"

	"prism/internal/model"
)

// NoiseConfig parameterizes the uninformed random-flow agent.
type NoiseConfig struct {
	Probability float64 `json:"probability"` // chance of trading each tick
	MinSize     float64 `json:"minSize"`
	MaxSize     float64 `json:"maxSize"`
	MarketRatio float64 `json:"marketRatio"` // share of orders sent as market
	PriceOffset float64 `json:"priceOffset"` // limit price scatter around the reference
}

func (c NoiseConfig) withDefaults() NoiseConfig {
	if c.Probability == 0 {
		c.Probability = 0.1
	}
	if c.MinSize == 0 {
		c.MinSize = 1
	}
	if c.MaxSize == 0 {
		c.MaxSize = 20
	}
	if c.MarketRatio == 0 {
		c.MarketRatio = 0.7
	}
	if c.PriceOffset == 0 {
		c.PriceOffset = 0.01
	}
	return c
}

// Validate ensures the noise config is within supported ranges.
func (c NoiseConfig) Validate() error {
	if c.Probability < 0 || c.Probability > 1 {
		return errors.New("noise probability must be between 0 and 1")
	}
	if c.MarketRatio < 0 || c.MarketRatio > 1 {
		return errors.New("noise marketRatio must be between 0 and 1")
	}
	if c.MinSize < 0 || c.MaxSize < c.MinSize {
		return errors.New("noise sizes must satisfy 0 <= minSize <= maxSize")
	}
	return nil
}

// NoiseTrader submits a random-side order of random size with small
// probability each tick. Most of its flow is market orders; the rest are
// limits scattered around the reference price.
type NoiseTrader struct {
	name string
	cfg  NoiseConfig
	rng  *rand.Rand
}

// NewNoiseTrader creates a noise trader with its own RNG stream.
func NewNoiseTrader(name string, cfg NoiseConfig, rng *rand.Rand) *NoiseTrader {
	return &NoiseTrader{name: name, cfg: cfg.withDefaults(), rng: rng}
}

func (n *NoiseTrader) Name() string {
	return n.name
}

func (n *NoiseTrader) GenerateOrders(view MarketView) []model.Order {
	if n.rng.Float64() >= n.cfg.Probability {
		return nil
	}
	ref := view.ReferencePrice()
	if ref <= 0 {
		return nil
	}

	side := model.SideBuy
	if n.rng.Float64() < 0.5 {
		side = model.SideSell
	}
	order := model.Order{
		Symbol:   view.Symbol,
		Side:     side,
		Kind:     model.KindMarket,
		Quantity: n.cfg.MinSize + n.rng.Float64()*(n.cfg.MaxSize-n.cfg.MinSize),
		AgentID:  n.name,
	}
	if n.rng.Float64() >= n.cfg.MarketRatio {
		offset := (n.rng.Float64()*2 - 1) * n.cfg.PriceOffset
		order.Kind = model.KindLimit
		order.Price = ref * (1 + offset)
	}
	return []model.Order{order}
}

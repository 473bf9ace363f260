package agent

import "prism/internal/model"

// MarketMakerConfig parameterizes the passive quoting agent.
type MarketMakerConfig struct {
	Spread    float64 `json:"spread"`    // full bid/ask spread as a price fraction
	QuoteSize float64 `json:"quoteSize"` // quantity per quote
}

func (c MarketMakerConfig) withDefaults() MarketMakerConfig {
	if c.Spread == 0 {
		c.Spread = 0.002
	}
	if c.QuoteSize == 0 {
		c.QuoteSize = 10
	}
	return c
}

// MarketMaker quotes a symmetric bid/ask pair around the reference price
// every tick.
type MarketMaker struct {
	name string
	cfg  MarketMakerConfig
}

// NewMarketMaker creates a market maker agent.
func NewMarketMaker(name string, cfg MarketMakerConfig) *MarketMaker {
	return &MarketMaker{name: name, cfg: cfg.withDefaults()}
}

func (m *MarketMaker) Name() string {
	return m.name
}

func (m *MarketMaker) GenerateOrders(view MarketView) []model.Order {
	ref := view.ReferencePrice()
	if ref <= 0 {
		return nil
	}
	half := m.cfg.Spread / 2
	return []model.Order{
		{
			Symbol:   view.Symbol,
			Side:     model.SideBuy,
			Kind:     model.KindLimit,
			Quantity: m.cfg.QuoteSize,
			Price:    ref * (1 - half),
			AgentID:  m.name,
		},
		{
			Symbol:   view.Symbol,
			Side:     model.SideSell,
			Kind:     model.KindLimit,
			Quantity: m.cfg.QuoteSize,
			Price:    ref * (1 + half),
			AgentID:  m.name,
		},
	}
}

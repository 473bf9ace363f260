// Package liquidity models temporary market impact. Executed volume depletes
// a per-symbol liquidity pool and a per-tick geometric recovery restores it,
// so large trades cause short-lived, self-healing illiquidity.
package liquidity

import (
	"math"
	"sync"

	"github.com/yanun0323/errors"

	"prism/internal/model"
)

// Config defines the impact model parameters.
type Config struct {
	BaseCapacity      float64 `json:"baseCapacity"`
	ImpactCoefficient float64 `json:"impactCoefficient"`
	RecoveryRate      float64 `json:"recoveryRate"`
	DepletionFactor   float64 `json:"depletionFactor"`
}

func (c Config) withDefaults() Config {
	if c.BaseCapacity == 0 {
		c.BaseCapacity = 10_000
	}
	if c.ImpactCoefficient == 0 {
		c.ImpactCoefficient = 0.001
	}
	if c.RecoveryRate == 0 {
		c.RecoveryRate = 0.1
	}
	if c.DepletionFactor == 0 {
		c.DepletionFactor = 0.5
	}
	return c
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.BaseCapacity < 0 {
		return errors.New("baseCapacity must be >= 0")
	}
	if c.ImpactCoefficient < 0 {
		return errors.New("impactCoefficient must be >= 0")
	}
	if c.RecoveryRate < 0 || c.RecoveryRate > 1 {
		return errors.New("recoveryRate must be between 0 and 1")
	}
	if c.DepletionFactor < 0 {
		return errors.New("depletionFactor must be >= 0")
	}
	return nil
}

// Model tracks liquidity depletion per symbol.
type Model struct {
	cfg Config

	mu        sync.Mutex
	depletion map[string]float64
}

// New creates a liquidity model.
func New(cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "liquidity config")
	}
	return &Model{
		cfg:       cfg,
		depletion: make(map[string]float64),
	}, nil
}

// Update recovers a fraction of the outstanding depletion. Called once per
// tick per symbol; recovery never pushes depletion below zero.
func (m *Model) Update(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.depletion[symbol]
	if d <= 0 {
		return
	}
	d -= d * m.cfg.RecoveryRate
	if d < 0 {
		d = 0
	}
	m.depletion[symbol] = d
}

// Available returns the current liquidity capacity for a symbol.
func (m *Model) Available(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked(symbol)
}

func (m *Model) availableLocked(symbol string) float64 {
	available := m.cfg.BaseCapacity - m.depletion[symbol]
	if available < 0 {
		return 0
	}
	return available
}

// MarketImpact estimates the signed fractional price pressure of executing
// the order against current liquidity: positive for buys, negative for
// sells, zero when liquidity is exhausted.
func (m *Model) MarketImpact(o *model.Order) float64 {
	m.mu.Lock()
	available := m.availableLocked(o.Symbol)
	m.mu.Unlock()

	if available <= 0 || o.Quantity <= 0 {
		return 0
	}
	impact := m.cfg.ImpactCoefficient * math.Sqrt(o.Quantity/available)
	if o.Side == model.SideSell {
		return -impact
	}
	return impact
}

// ApplyDepletion consumes liquidity proportional to the executed quantity.
// Called once per order after its matching pass completes. Depletion is
// capped at the base capacity so recovery time stays bounded.
func (m *Model) ApplyDepletion(o *model.Order, filledQuantity float64) {
	if filledQuantity <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.depletion[o.Symbol] + filledQuantity*m.cfg.DepletionFactor
	if d > m.cfg.BaseCapacity {
		d = m.cfg.BaseCapacity
	}
	m.depletion[o.Symbol] = d
}

// Depletion returns the current depletion accumulator for a symbol.
func (m *Model) Depletion(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depletion[symbol]
}

// Package ops loads and resolves runtime configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"prism/internal/agent"
	"prism/internal/analytics"
	"prism/internal/exec"
	"prism/internal/liquidity"
	"prism/internal/persist"
	"prism/internal/price"
)

const (
	defaultTickInterval  = 100 * time.Millisecond
	defaultFlushInterval = 5 * time.Second
)

// FileConfig mirrors the JSON config layout. Component sections are passed
// through as-is; each component applies its own defaults and validation.
type FileConfig struct {
	Symbols       []SymbolConfig   `json:"symbols"`
	TickInterval  time.Duration    `json:"tickInterval"`  // nanoseconds
	FlushInterval time.Duration    `json:"flushInterval"` // nanoseconds
	Liquidity     liquidity.Config `json:"liquidity"`
	Price         price.Config     `json:"price"`
	Execution     exec.Config      `json:"execution"`
	Agents        agent.Config     `json:"agents"`
	Analytics     analytics.Config `json:"analytics"`
	Persist       persist.Config   `json:"persist"`
}

// SymbolConfig describes one simulated instrument.
type SymbolConfig struct {
	Name         string  `json:"name"`
	InitialPrice float64 `json:"initialPrice"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Symbols       []SymbolSpec
	TickInterval  time.Duration
	FlushInterval time.Duration
	Liquidity     liquidity.Config
	Price         price.Config
	Execution     exec.Config
	Agents        agent.Config
	Analytics     analytics.Config
	Persist       persist.Config
}

// SymbolSpec is a validated symbol entry.
type SymbolSpec struct {
	Name         string
	InitialPrice float64
}

// Default returns a single-symbol configuration with component defaults.
func Default() Loaded {
	return Loaded{
		Symbols:       []SymbolSpec{{Name: "PRISM", InitialPrice: 100}},
		TickInterval:  defaultTickInterval,
		FlushInterval: defaultFlushInterval,
	}
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a FileConfig and fills top-level defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	symbols, err := resolveSymbols(cfg.Symbols)
	if err != nil {
		return Loaded{}, err
	}
	tick := cfg.TickInterval
	if tick == 0 {
		tick = defaultTickInterval
	}
	if tick < 0 {
		return Loaded{}, fmt.Errorf("tickInterval must be > 0")
	}
	flush := cfg.FlushInterval
	if flush == 0 {
		flush = defaultFlushInterval
	}
	if flush < 0 {
		return Loaded{}, fmt.Errorf("flushInterval must be > 0")
	}
	return Loaded{
		Symbols:       symbols,
		TickInterval:  tick,
		FlushInterval: flush,
		Liquidity:     cfg.Liquidity,
		Price:         cfg.Price,
		Execution:     cfg.Execution,
		Agents:        cfg.Agents,
		Analytics:     cfg.Analytics,
		Persist:       cfg.Persist,
	}, nil
}

func resolveSymbols(cfgs []SymbolConfig) ([]SymbolSpec, error) {
	if len(cfgs) == 0 {
		return Default().Symbols, nil
	}
	seen := make(map[string]struct{}, len(cfgs))
	specs := make([]SymbolSpec, 0, len(cfgs))
	for _, sym := range cfgs {
		if sym.Name == "" {
			return nil, fmt.Errorf("symbol name is empty")
		}
		if _, ok := seen[sym.Name]; ok {
			return nil, fmt.Errorf("duplicate symbol: %s", sym.Name)
		}
		if sym.InitialPrice <= 0 {
			return nil, fmt.Errorf("initialPrice must be > 0 for %s", sym.Name)
		}
		seen[sym.Name] = struct{}{}
		specs = append(specs, SymbolSpec{Name: sym.Name, InitialPrice: sym.InitialPrice})
	}
	return specs, nil
}

// Package persist is the outbound persistence collaborator. Stores are
// fire-and-forget: the simulation never blocks matching on storage success,
// and in-memory state stays authoritative when a store fails.
package persist

import (
	"github.com/yanun0323/errors"

	"prism/internal/analytics"
	"prism/internal/model"
	"prism/pkg/conn"
)

var (
	ErrQueueFull = errors.New("persist queue full")
	ErrClosed    = errors.New("persist store closed")
)

// Store receives durable copies of simulation output.
type Store interface {
	StoreFill(f model.Fill) error
	StoreMarketState(state model.MarketState, spread float64) error
	StoreAnalytics(symbol string, m analytics.Metrics, state model.MarketState) error
	Close() error
}

// Config controls the persistence collaborator.
type Config struct {
	Enabled   bool        `json:"enabled"`
	QueueSize int         `json:"queueSize"`
	Postgres  conn.Option `json:"postgres"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = 4096
	}
	return c
}

// NopStore discards everything. Used when persistence is disabled.
type NopStore struct{}

func (NopStore) StoreFill(model.Fill) error                                        { return nil }
func (NopStore) StoreMarketState(model.MarketState, float64) error                 { return nil }
func (NopStore) StoreAnalytics(string, analytics.Metrics, model.MarketState) error { return nil }
func (NopStore) Close() error                                                      { return nil }

// Package engine orchestrates the simulation: it owns the per-symbol shards,
// drives the tick loop through price discovery, liquidity recovery, agent
// order flow and analytics, and exposes the query surface.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"prism/internal/agent"
	"prism/internal/analytics"
	"prism/internal/book"
	"prism/internal/exec"
	"prism/internal/liquidity"
	"prism/internal/model"
	"prism/internal/obs"
	"prism/internal/persist"
	"prism/internal/price"
)

var (
	ErrSymbolExists   = errors.New("symbol already registered")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrUnknownOrder   = errors.New("unknown order")
	ErrOrderTerminal  = errors.New("order already terminal")
	ErrMissingStore   = errors.New("engine requires a persistence store")
	ErrAlreadyRunning = errors.New("engine already running")
)

// ledgerCap bounds the in-memory fill ledger per engine.
const ledgerCap = 10_000

// Config wires the component configurations together.
type Config struct {
	TickInterval  time.Duration    `json:"tickInterval"`
	FlushInterval time.Duration    `json:"flushInterval"`
	Liquidity     liquidity.Config `json:"liquidity"`
	Price         price.Config     `json:"price"`
	Execution     exec.Config      `json:"execution"`
	Agents        agent.Config     `json:"agents"`
	Analytics     analytics.Config `json:"analytics"`
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 5 * time.Second
	}
	return c
}

// Validate ensures the top-level config is within supported ranges.
func (c Config) Validate() error {
	if c.TickInterval < 0 {
		return errors.New("tickInterval must be > 0")
	}
	if c.FlushInterval < 0 {
		return errors.New("flushInterval must be > 0")
	}
	return nil
}

// shard is one symbol's book and market state behind a single mutex. The
// tick loop is the only steady-state writer; submissions and queries lock
// the same mutex.
type shard struct {
	mu    sync.Mutex
	book  *book.Book
	state *model.MarketState
}

func (s *shard) Lock()                     { s.mu.Lock() }
func (s *shard) Unlock()                   { s.mu.Unlock() }
func (s *shard) Book() *book.Book          { return s.book }
func (s *shard) State() *model.MarketState { return s.state }

// Health is a point-in-time liveness report covering every subsystem.
type Health struct {
	Running bool
	Symbols int
	Agents  int
	Ticks   uint64

	BooksReady         bool
	LiquidityReady     bool
	PriceReady         bool
	ExecutionReady     bool
	AgentsReady        bool
	AnalyticsReady     bool
	PersistenceEnabled bool
}

// Engine is the top-level simulation coordinator.
type Engine struct {
	cfg       Config
	exec      *exec.Engine
	liquidity *liquidity.Model
	price     *price.Discovery
	agents    *agent.Simulator
	analytics *analytics.Aggregator
	store     persist.Store
	metrics   *obs.Metrics

	persistEnabled bool

	mu      sync.RWMutex
	shards  map[string]*shard
	symbols []string // registration order, drives tick order
	orders  map[string]*model.Order

	ledgerMu sync.Mutex
	ledger   []model.Fill

	orderSeq uint64
	running  uint32
}

// New builds a fully wired engine, failing fast on nil collaborators and
// invalid config.
func New(cfg Config, store persist.Store, metrics *obs.Metrics) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine config")
	}
	if store == nil {
		return nil, ErrMissingStore
	}

	liq, err := liquidity.New(cfg.Liquidity)
	if err != nil {
		return nil, err
	}
	discovery, err := price.New(cfg.Price)
	if err != nil {
		return nil, err
	}
	aggregator, err := analytics.New(cfg.Analytics)
	if err != nil {
		return nil, err
	}
	agents, err := agent.NewSimulator(cfg.Agents, metrics.IncAgentFault)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		liquidity: liq,
		price:     discovery,
		agents:    agents,
		analytics: aggregator,
		store:     store,
		metrics:   metrics,
		shards:    make(map[string]*shard),
		orders:    make(map[string]*model.Order),
	}
	if _, nop := store.(persist.NopStore); !nop {
		e.persistEnabled = true
	}
	e.exec, err = exec.New(cfg.Execution, liq, e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// AddSymbol registers a new instrument with an empty book.
func (e *Engine) AddSymbol(symbol string, initialPrice float64) error {
	if symbol == "" {
		return model.ErrMissingSymbol
	}
	if initialPrice <= 0 {
		return errors.New("initial price must be > 0")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.shards[symbol]; ok {
		return ErrSymbolExists
	}

	e.shards[symbol] = &shard{
		book: book.New(symbol, initialPrice),
		state: &model.MarketState{
			Symbol:    symbol,
			LastPrice: initialPrice,
			Liquidity: e.liquidity.Available(symbol),
		},
	}
	e.symbols = append(e.symbols, symbol)
	e.price.Register(symbol, initialPrice)

	logs.Infof("symbol registered: %s, initial price: %.4f", symbol, initialPrice)
	return nil
}

// SubmitOrder validates and processes one order, returning its assigned id.
// Rejection is reported through the order status, observable via GetOrder;
// the error covers validation, unknown symbols and cancellation only.
func (e *Engine) SubmitOrder(ctx context.Context, o model.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}

	e.mu.Lock()
	s, ok := e.shards[o.Symbol]
	if !ok {
		e.mu.Unlock()
		return "", ErrUnknownSymbol
	}
	o.ID = fmt.Sprintf("ord-%d", atomic.AddUint64(&e.orderSeq, 1))
	o.Status = model.StatusPending
	o.SubmittedAt = time.Now().UTC()
	record := &o
	e.orders[o.ID] = record
	e.mu.Unlock()

	start := time.Now()
	_, err := e.exec.Process(ctx, record, s)

	// once processing releases the shard lock the record can keep mutating:
	// a later submission may match against it while it rests. Observe the
	// outcome under the shard lock.
	s.mu.Lock()
	status := record.Status
	s.mu.Unlock()
	e.metrics.ObserveOrder(status, time.Since(start))
	if err != nil {
		return record.ID, err
	}
	return record.ID, nil
}

// CancelOrder removes a resting order from its book and marks it cancelled.
func (e *Engine) CancelOrder(ctx context.Context, id string) error {
	e.mu.RLock()
	record, ok := e.orders[id]
	if !ok {
		e.mu.RUnlock()
		return ErrUnknownOrder
	}
	s := e.shards[record.Symbol]
	e.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Status.Terminal() {
		return ErrOrderTerminal
	}
	s.book.Remove(record)
	record.Status = model.StatusCancelled
	e.metrics.IncCancelled()
	return nil
}

// GetOrder returns a deep copy of a submitted order.
func (e *Engine) GetOrder(id string) (model.Order, error) {
	e.mu.RLock()
	record, ok := e.orders[id]
	if !ok {
		e.mu.RUnlock()
		return model.Order{}, ErrUnknownOrder
	}
	s := e.shards[record.Symbol]
	e.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return record.Clone(), nil
}

// BookSnapshot returns up to depth aggregated levels per side.
func (e *Engine) BookSnapshot(symbol string, depth int) (model.BookSnapshot, error) {
	s, err := e.shard(symbol)
	if err != nil {
		return model.BookSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Snapshot(depth), nil
}

// MarketSnapshot returns a copy of the symbol's market state.
func (e *Engine) MarketSnapshot(symbol string) (model.MarketState, error) {
	s, err := e.shard(symbol)
	if err != nil {
		return model.MarketState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.state, nil
}

// Metrics returns the symbol's latest analytics snapshot.
func (e *Engine) Metrics(symbol string) (analytics.Metrics, error) {
	if _, err := e.shard(symbol); err != nil {
		return analytics.Metrics{}, err
	}
	m, _ := e.analytics.Metrics(symbol)
	return m, nil
}

// Fills returns up to limit most recent fills for a symbol, oldest first.
func (e *Engine) Fills(symbol string, limit int) []model.Fill {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()

	var out []model.Fill
	for _, f := range e.ledger {
		if f.Symbol == symbol {
			out = append(out, f)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Symbols returns the registered symbols in registration order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// Stats returns the engine's operational counters.
func (e *Engine) Stats() obs.Snapshot {
	return e.metrics.Snapshot()
}

// Health reports liveness.
func (e *Engine) Health() Health {
	e.mu.RLock()
	symbols := len(e.symbols)
	e.mu.RUnlock()
	return Health{
		Running:            atomic.LoadUint32(&e.running) == 1,
		Symbols:            symbols,
		Agents:             e.agents.Agents(),
		Ticks:              e.metrics.Ticks(),
		BooksReady:         symbols > 0,
		LiquidityReady:     e.liquidity != nil,
		PriceReady:         e.price != nil,
		ExecutionReady:     e.exec != nil,
		AgentsReady:        e.agents != nil,
		AnalyticsReady:     e.analytics != nil,
		PersistenceEnabled: e.persistEnabled,
	}
}

// RecordFills implements exec.Sink. It runs on the matching path while the
// shard lock is held, so it must never touch shard state; it feeds the
// ledger, the analytics windows and the persistence queue.
func (e *Engine) RecordFills(fills []model.Fill) {
	if len(fills) == 0 {
		return
	}
	e.metrics.AddFills(len(fills))

	e.ledgerMu.Lock()
	e.ledger = append(e.ledger, fills...)
	if len(e.ledger) > ledgerCap {
		e.ledger = e.ledger[len(e.ledger)-ledgerCap:]
	}
	e.ledgerMu.Unlock()

	for _, f := range fills {
		e.analytics.RecordFill(f)
		if err := e.store.StoreFill(f); err != nil {
			e.persistFault("fill", f.Symbol, err)
		}
	}
}

// Run drives the tick and flush loops until the context is cancelled, then
// flushes once more and returns.
func (e *Engine) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&e.running, 0, 1) {
		return ErrAlreadyRunning
	}
	defer atomic.StoreUint32(&e.running, 0)

	logs.Infof("engine running, symbols: %d, agents: %d, tick interval: %s",
		len(e.Symbols()), e.agents.Agents(), e.cfg.TickInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.flushLoop(ctx)
	}()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			e.flush()
			logs.Info("engine stopped")
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick advances every symbol by one simulation step. A panicking tick is
// recovered and logged; the next tick proceeds normally.
func (e *Engine) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("tick failed: %+v", r)
		}
	}()

	start := time.Now()
	for _, symbol := range e.Symbols() {
		if ctx.Err() != nil {
			return
		}
		e.advance(ctx, symbol)
	}
	e.metrics.ObserveTick(time.Since(start))
}

// advance runs one symbol through the fixed tick order: price discovery,
// liquidity recovery, agent order flow, analytics.
func (e *Engine) advance(ctx context.Context, symbol string) {
	s, err := e.shard(symbol)
	if err != nil {
		return
	}

	s.mu.Lock()
	if err := e.price.Update(symbol, s.book, s.state); err != nil {
		s.mu.Unlock()
		logs.Warnf("price update failed for %s, err: %+v", symbol, err)
		return
	}
	e.liquidity.Update(symbol)
	s.state.Liquidity = e.liquidity.Available(symbol)
	s.book.SetLastPrice(s.state.LastPrice)
	view := e.marketView(s)
	s.mu.Unlock()

	// agents trade on a value snapshot; submissions are sequential so each
	// matching pass completes before the next order arrives
	for _, o := range e.agents.Update(view) {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.SubmitOrder(ctx, o); err != nil {
			logs.Warnf("agent order from %s dropped, err: %+v", o.AgentID, err)
		}
	}

	s.mu.Lock()
	e.analytics.Update(symbol, s.book, s.state)
	s.mu.Unlock()
}

// marketView builds the read-only agent view. Caller holds the shard lock.
func (e *Engine) marketView(s *shard) agent.MarketView {
	view := agent.MarketView{
		Symbol:     s.state.Symbol,
		LastPrice:  s.state.LastPrice,
		Momentum:   s.state.Momentum,
		Volatility: s.state.Volatility,
		Liquidity:  s.state.Liquidity,
	}
	view.BestBid, view.HasBid = s.book.BestBid()
	view.BestAsk, view.HasAsk = s.book.BestAsk()
	if mid, ok := s.book.MidPrice(); ok {
		view.MidPrice = mid
	}
	return view
}

func (e *Engine) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.flush()
		}
	}
}

// flush hands each symbol's market state and analytics to the store.
func (e *Engine) flush() {
	for _, symbol := range e.Symbols() {
		s, err := e.shard(symbol)
		if err != nil {
			continue
		}

		s.mu.Lock()
		state := *s.state
		snap := s.book.Snapshot(1)
		s.mu.Unlock()

		spread, _ := snap.Spread()
		if err := e.store.StoreMarketState(state, spread); err != nil {
			e.persistFault("market state", symbol, err)
		}
		if m, ok := e.analytics.Metrics(symbol); ok {
			if err := e.store.StoreAnalytics(symbol, m, state); err != nil {
				e.persistFault("analytics", symbol, err)
			}
		}
	}
}

func (e *Engine) persistFault(kind, symbol string, err error) {
	if stderrors.Is(err, persist.ErrQueueFull) {
		e.metrics.IncPersistDrop()
	} else {
		e.metrics.IncPersistFailure()
	}
	logs.Warnf("persist %s failed for %s, err: %+v", kind, symbol, err)
}

func (e *Engine) shard(symbol string) (*shard, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.shards[symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}
	return s, nil
}

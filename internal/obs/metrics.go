package obs

import (
	"sync/atomic"
	"time"

	"prism/internal/model"
)

// Metrics collects lightweight simulation counters and latency stats.
type Metrics struct {
	ordersSubmitted uint64
	ordersOpen      uint64
	ordersFilled    uint64
	ordersPartial   uint64
	ordersRejected  uint64
	ordersCancelled uint64
	fills           uint64
	ticks           uint64
	agentFaults     uint64
	persistFailures uint64
	persistDrops    uint64

	orderLatency LatencyStats
	tickLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	OrdersSubmitted uint64
	OrdersOpen      uint64
	OrdersFilled    uint64
	OrdersPartial   uint64
	OrdersRejected  uint64
	OrdersCancelled uint64
	Fills           uint64
	Ticks           uint64
	AgentFaults     uint64
	PersistFailures uint64
	PersistDrops    uint64
	OrderLatency    LatencySnapshot
	TickLatency     LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveOrder records the outcome of one processed order.
func (m *Metrics) ObserveOrder(status model.Status, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersSubmitted, 1)
	switch status {
	case model.StatusOpen:
		atomic.AddUint64(&m.ordersOpen, 1)
	case model.StatusFilled:
		atomic.AddUint64(&m.ordersFilled, 1)
	case model.StatusPartiallyFilled:
		atomic.AddUint64(&m.ordersPartial, 1)
	case model.StatusRejected:
		atomic.AddUint64(&m.ordersRejected, 1)
	case model.StatusCancelled:
		atomic.AddUint64(&m.ordersCancelled, 1)
	}
	m.orderLatency.Observe(d)
}

// IncCancelled records a cancellation after submission.
func (m *Metrics) IncCancelled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersCancelled, 1)
}

// AddFills records executed fills.
func (m *Metrics) AddFills(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.fills, uint64(n))
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticks, 1)
	m.tickLatency.Observe(d)
}

// IncAgentFault records an isolated agent failure.
func (m *Metrics) IncAgentFault() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.agentFaults, 1)
}

// IncPersistFailure records a failed persistence call.
func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.persistFailures, 1)
}

// IncPersistDrop records a record dropped by a full persistence queue.
func (m *Metrics) IncPersistDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.persistDrops, 1)
}

// Ticks returns the number of completed ticks.
func (m *Metrics) Ticks() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.ticks)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		OrdersSubmitted: atomic.LoadUint64(&m.ordersSubmitted),
		OrdersOpen:      atomic.LoadUint64(&m.ordersOpen),
		OrdersFilled:    atomic.LoadUint64(&m.ordersFilled),
		OrdersPartial:   atomic.LoadUint64(&m.ordersPartial),
		OrdersRejected:  atomic.LoadUint64(&m.ordersRejected),
		OrdersCancelled: atomic.LoadUint64(&m.ordersCancelled),
		Fills:           atomic.LoadUint64(&m.fills),
		Ticks:           atomic.LoadUint64(&m.ticks),
		AgentFaults:     atomic.LoadUint64(&m.agentFaults),
		PersistFailures: atomic.LoadUint64(&m.persistFailures),
		PersistDrops:    atomic.LoadUint64(&m.persistDrops),
		OrderLatency:    m.orderLatency.Snapshot(),
		TickLatency:     m.tickLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

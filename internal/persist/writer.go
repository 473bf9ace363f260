package persist

import (
	"sync"
	"sync/atomic"

	"github.com/yanun0323/logs"
)

// applyFunc persists one record. The postgres store binds this to a gorm
// insert; tests bind a capture function.
type applyFunc func(record any) error

// writer drains a bounded queue of records on its own goroutine so callers
// never block on storage. A full queue drops the record and reports
// ErrQueueFull; the caller decides whether that matters.
type writer struct {
	ch     chan any
	apply  applyFunc
	wg     sync.WaitGroup
	closed uint32
}

func newWriter(queueSize int, apply applyFunc) *writer {
	if queueSize <= 0 {
		queueSize = 1
	}
	w := &writer{
		ch:    make(chan any, queueSize),
		apply: apply,
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
	return w
}

func (w *writer) tryEnqueue(record any) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	select {
	case w.ch <- record:
		return nil
	default:
		return ErrQueueFull
	}
}

// close stops intake and flushes whatever is already queued.
func (w *writer) close() {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
}

func (w *writer) run() {
	for record := range w.ch {
		if err := w.apply(record); err != nil {
			logs.Warnf("persist record %T failed, err: %+v", record, err)
		}
	}
}

// Package parallel runs independent pieces of a CPU pass on a fixed set of
// goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines fed from one shared queue.
//
// Thread safety: WorkerPool is safe for concurrent use. After Close, work is
// executed inline on the calling goroutine.
type WorkerPool struct {
	workers int

	// mu orders sends on work against Close.
	mu      sync.RWMutex
	work    chan func()
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		work:    make(chan func(), workers*2),
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for range workers {
		go func() {
			defer p.wg.Done()
			for fn := range p.work {
				fn()
			}
		}()
	}
	return p
}

// ExecuteAll runs every item and waits for all of them.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}

	p.mu.RLock()
	if !p.running.Load() {
		p.mu.RUnlock()
		for _, fn := range work {
			fn()
		}
		return
	}

	var done sync.WaitGroup
	done.Add(len(work))
	for _, fn := range work {
		p.work <- func() {
			defer done.Done()
			fn()
		}
	}
	p.mu.RUnlock()
	done.Wait()
}

// ForEachBand splits [0, rows) into at most Workers() contiguous bands of at
// least minRows rows and calls fn once per band, in parallel.
func (p *WorkerPool) ForEachBand(rows, minRows int, fn func(lo, hi int)) {
	bands := Bands(rows, p.workers, minRows)
	if len(bands) == 1 {
		fn(bands[0][0], bands[0][1])
		return
	}
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b[0], b[1]) }
	}
	p.ExecuteAll(work)
}

// Close waits for queued work and stops the workers. Safe to call repeatedly.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.work)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool still dispatches to its workers.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }

// Bands divides [0, rows) into at most parts contiguous [lo, hi) ranges of
// at least minRows rows each. A single band covers everything when rows is
// below minRows. Band sizes differ by at most one row.
func Bands(rows, parts, minRows int) [][2]int {
	if rows <= 0 {
		return [][2]int{{0, 0}}
	}
	minRows = max(minRows, 1)
	parts = max(min(parts, rows/minRows), 1)

	out := make([][2]int, parts)
	base, extra := rows/parts, rows%parts
	lo := 0
	for i := range out {
		hi := lo + base
		if i < extra {
			hi++
		}
		out[i] = [2]int{lo, hi}
		lo = hi
	}
	return out
}

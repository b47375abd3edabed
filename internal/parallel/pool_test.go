package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolCreate(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPoolDefaultWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if want := runtime.GOMAXPROCS(0); pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), want)
	}
}

func TestExecuteAllRunsEverything(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	var count atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { count.Add(1) }
	}
	pool.ExecuteAll(work)
	if got := count.Load(); got != 100 {
		t.Errorf("executed %d items, want 100", got)
	}
}

func TestExecuteAllAfterCloseRunsInline(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
	ran := 0
	pool.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
}

func TestBands(t *testing.T) {
	tests := []struct {
		rows, parts, minRows int
		want                 [][2]int
	}{
		{32, 4, 1, [][2]int{{0, 8}, {8, 16}, {16, 24}, {24, 32}}},
		{10, 3, 1, [][2]int{{0, 4}, {4, 7}, {7, 10}}},
		{32, 8, 16, [][2]int{{0, 16}, {16, 32}}},
		{8, 8, 16, [][2]int{{0, 8}}},
		{0, 4, 1, [][2]int{{0, 0}}},
	}
	for _, tt := range tests {
		got := Bands(tt.rows, tt.parts, tt.minRows)
		if len(got) != len(tt.want) {
			t.Errorf("Bands(%d, %d, %d) = %v, want %v", tt.rows, tt.parts, tt.minRows, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Bands(%d, %d, %d) = %v, want %v", tt.rows, tt.parts, tt.minRows, got, tt.want)
				break
			}
		}
	}
}

func TestForEachBandCoversRowsOnce(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	const rows = 128
	var mu sync.Mutex
	seen := make([]int, rows)
	pool.ForEachBand(rows, 16, func(lo, hi int) {
		mu.Lock()
		defer mu.Unlock()
		for r := lo; r < hi; r++ {
			seen[r]++
		}
	})
	for r, n := range seen {
		if n != 1 {
			t.Fatalf("row %d visited %d times", r, n)
		}
	}
}

func TestConcurrentExecuteAndClose(t *testing.T) {
	pool := NewWorkerPool(2)
	var wg sync.WaitGroup
	var count atomic.Int64
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.ExecuteAll([]func(){func() { count.Add(1) }})
		}()
	}
	pool.Close()
	wg.Wait()
	if got := count.Load(); got != 8 {
		t.Errorf("executed %d items, want 8", got)
	}
}

// Package parallel splits index ranges across goroutines for elementwise kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a range is split. The zero value runs sequentially.
type Config struct {
	Workers  int // Goroutines to use; <= 1 disables splitting.
	MinChunk int // Smallest range handed to one goroutine.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		MinChunk: 4096,
	}
}

// chunk returns the range size per goroutine, or n when the range should not be split.
func (c Config) chunk(n int) int {
	if c.Workers <= 1 || n < 2*max(c.MinChunk, 1) {
		return n
	}
	return max((n+c.Workers-1)/c.Workers, c.MinChunk)
}

// For calls f(i) for every i in [0, n). Calls for different i may run concurrently,
// so f must only write state owned by index i.
func For(n int, f func(i int), cfg Config) {
	Range(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	}, cfg)
}

// Range calls f on disjoint half-open subranges covering [0, n) and waits for all of them.
func Range(n int, f func(lo, hi int), cfg Config) {
	if n <= 0 {
		return
	}
	size := cfg.chunk(n)
	if size >= n {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(lo, hi)
		}()
	}
	wg.Wait()
}

package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := Config{Workers: 4, MinChunk: 16}

	seen := make([]int32, 1000)
	For(len(seen), func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestRange_Chunks(t *testing.T) {
	cfg := Config{Workers: 4, MinChunk: 10}

	var calls, total int64
	Range(100, func(lo, hi int) {
		atomic.AddInt64(&calls, 1)
		atomic.AddInt64(&total, int64(hi-lo))
	}, cfg)

	if total != 100 {
		t.Errorf("covered %d indices, want 100", total)
	}
	if calls != 4 {
		t.Errorf("got %d chunks, want 4", calls)
	}
}

func TestRange_Sequential(t *testing.T) {
	for _, cfg := range []Config{{}, {Workers: 8, MinChunk: 64}} {
		var calls int
		Range(100, func(lo, hi int) {
			calls++
			if lo != 0 || hi != 100 {
				t.Errorf("got range [%d, %d), want [0, 100)", lo, hi)
			}
		}, cfg)
		if calls != 1 {
			t.Errorf("%+v: got %d calls, want 1", cfg, calls)
		}
	}
}

func TestRange_Empty(t *testing.T) {
	Range(0, func(_, _ int) {
		t.Error("f called for an empty range")
	}, DefaultConfig())
}

package webgpu

import (
	"math/bits"
	"sync"
)

// sizeClass groups pooled buffers so large allocations do not crowd out small ones.
type sizeClass int

const (
	smallBuffer sizeClass = iota
	mediumBuffer
	largeBuffer
	numClasses
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 32          // Max buffers per class
)

func classify(size uint64) sizeClass {
	switch {
	case size < smallThreshold:
		return smallBuffer
	case size < mediumThreshold:
		return mediumBuffer
	default:
		return largeBuffer
	}
}

// roundSize rounds a request up to a power of two so nearby sizes share buffers.
func roundSize(size uint64) uint64 {
	if size <= 4 {
		return 4
	}
	return 1 << bits.Len64(size-1)
}

type releasable interface {
	Release()
}

type pooled[B releasable] struct {
	buffer B
	size   uint64
}

// bufferPool recycles device buffers between kernel launches.
type bufferPool[B releasable] struct {
	create func(size uint64) B

	mu      sync.Mutex
	classes [numClasses][]pooled[B]

	hits, misses uint64
}

func newBufferPool[B releasable](create func(size uint64) B) *bufferPool[B] {
	return &bufferPool[B]{create: create}
}

// acquire returns a buffer of at least size bytes and its actual size.
func (p *bufferPool[B]) acquire(size uint64) (B, uint64) {
	size = roundSize(size)
	p.mu.Lock()
	defer p.mu.Unlock()

	c := classify(size)
	for i, pb := range p.classes[c] {
		if pb.size == size {
			p.classes[c] = append(p.classes[c][:i], p.classes[c][i+1:]...)
			p.hits++
			return pb.buffer, size
		}
	}
	p.misses++
	return p.create(size), size
}

// release returns a buffer for reuse, or frees it when its class is full.
func (p *bufferPool[B]) release(buffer B, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := classify(size)
	if len(p.classes[c]) >= maxPoolSize {
		buffer.Release()
		return
	}
	p.classes[c] = append(p.classes[c], pooled[B]{buffer: buffer, size: size})
}

// clear frees every pooled buffer.
func (p *bufferPool[B]) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.classes {
		for _, pb := range p.classes[c] {
			pb.buffer.Release()
		}
		p.classes[c] = nil
	}
}

// stats reports pool hits, misses and the number of idle buffers.
func (p *bufferPool[B]) stats() (hits, misses uint64, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.classes {
		idle += len(c)
	}
	return p.hits, p.misses, idle
}

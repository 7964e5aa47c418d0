// Package webgpu runs fused programs as single WGSL compute kernels on a WebGPU device.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"errors"
	"sync"

	"github.com/born-ml/prims/internal/fusion"
)

// ErrUnavailable is returned when no WebGPU adapter can be opened.
var ErrUnavailable = errors.New("webgpu: no adapter available")

// Engine is a fusion engine backed by a WebGPU device. The device is opened
// lazily on first use and shared by every kernel compiled afterwards.
type Engine struct {
	once   sync.Once
	opened bool
	dev    *device
	err    error
}

// NewEngine creates an engine. No device is opened until Available or Compile is called.
func NewEngine() *Engine {
	return &Engine{}
}

// Name returns "webgpu".
func (e *Engine) Name() string {
	return "webgpu"
}

// Available reports whether a WebGPU device could be opened.
func (e *Engine) Available() bool {
	_, err := e.open()
	return err == nil
}

// Supports reports true for Float only; kernels exchange f32 storage buffers.
func (e *Engine) Supports(dtype fusion.DType) bool {
	return dtype == fusion.Float
}

// Compile generates the WGSL for p and builds a compute pipeline on the device.
func (e *Engine) Compile(p *fusion.Program) (fusion.Kernel, error) {
	dev, err := e.open()
	if err != nil {
		return nil, err
	}
	shader, err := Generate(p)
	if err != nil {
		return nil, err
	}
	return dev.compile(p, shader)
}

// Release frees the device if one was opened. An engine released before first use
// never opens one and reports unavailable. Kernels compiled by e must not be used
// afterwards.
func (e *Engine) Release() {
	e.once.Do(func() {
		e.err = ErrUnavailable
	})
	if e.opened && e.err == nil {
		e.dev.release()
	}
}

func (e *Engine) open() (*device, error) {
	e.once.Do(func() {
		e.opened = true
		e.dev, e.err = openDevice()
	})
	return e.dev, e.err
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU fusion engine.
//
// Each fused program is compiled to one WGSL compute shader. The engine is
// available on Windows when the wgpu native library and a compatible adapter
// are present; elsewhere it reports unavailable and the fusion executor fails
// with a BackendUnavailableError.
//
// Example:
//
//	engine := webgpu.NewEngine()
//	if !engine.Available() {
//	    log.Fatal("no GPU")
//	}
//	defer engine.Release()
//	out, err := fn.Call(ctx, args, nil, traced.WithExecutor("fusion"), traced.WithEngine(engine))
package webgpu

import (
	internalwebgpu "github.com/born-ml/prims/internal/backend/webgpu"
)

// Engine is the WebGPU fusion engine.
type Engine = internalwebgpu.Engine

// ErrUnavailable is returned when no WebGPU adapter can be opened.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// NewEngine creates an engine. The device is opened on first use.
func NewEngine() *Engine {
	return internalwebgpu.NewEngine()
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	e := NewEngine()
	defer e.Release()
	return e.Available()
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go backend the direct executor runs primitives on.
package cpu

import (
	internalcpu "github.com/born-ml/prims/internal/backend/cpu"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// New creates a new CPU backend.
//
// Example:
//
//	out, err := fn.Call(ctx, args, nil, traced.WithBackend(cpu.New()))
func New() *Backend {
	return internalcpu.New()
}

// Package cpu implements the direct CPU kernels that replay primitive operations eagerly.
package cpu

import (
	"github.com/born-ml/prims/internal/tensor"
)

// CPUBackend evaluates primitive operations on host memory.
// Kernels return errors instead of panicking so a failing node aborts the replay cleanly.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

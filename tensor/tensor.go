// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/prims/internal/tensor"
)

// RawTensor is the concrete tensor representation.
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
//	data := raw.AsFloat32()  // Type-safe access
//	clone := raw.Clone()     // Deep, contiguous copy
type RawTensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Device is where a tensor's result was computed.
type Device = tensor.Device

// Meta is a tensor's shape and element type without data.
type Meta = tensor.Meta

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Float16 = tensor.Float16
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Bool    = tensor.Bool
)

// Devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
	Host   = tensor.Host
)

// NewRaw allocates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromFloat32s creates a Float32 tensor from data.
func FromFloat32s(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32s(data, shape)
}

// FromFloat64s creates a Float64 tensor from data.
func FromFloat64s(data []float64, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat64s(data, shape)
}

// FromInt64s creates an Int64 tensor from data.
func FromInt64s(data []int64, shape Shape) (*RawTensor, error) {
	return tensor.FromInt64s(data, shape)
}

// FromValues creates a tensor of any dtype, converting each float64 value.
func FromValues(data []float64, shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.FromValues(data, shape, dtype)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float64, dtype DataType) (*RawTensor, error) {
	return tensor.Full(shape, value, dtype)
}

// ParseDataType converts a name such as "float32" or "f32" to a DataType.
func ParseDataType(name string) (DataType, error) {
	return tensor.ParseDataType(name)
}

// PromoteTypes returns the common type of a and b.
func PromoteTypes(a, b DataType) DataType {
	return tensor.PromoteTypes(a, b)
}

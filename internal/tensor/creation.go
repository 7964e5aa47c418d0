package tensor

import "fmt"

// FromFloat32s creates a Float32 tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromFloat32s(data []float32, shape Shape) (*RawTensor, error) {
	r, err := newFor(len(data), shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat32(), data)
	return r, nil
}

// FromFloat64s creates a Float64 tensor from a Go slice.
func FromFloat64s(data []float64, shape Shape) (*RawTensor, error) {
	r, err := newFor(len(data), shape, Float64)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat64(), data)
	return r, nil
}

// FromInt64s creates an Int64 tensor from a Go slice.
func FromInt64s(data []int64, shape Shape) (*RawTensor, error) {
	r, err := newFor(len(data), shape, Int64)
	if err != nil {
		return nil, err
	}
	copy(r.AsInt64(), data)
	return r, nil
}

// FromValues creates a tensor of any dtype from float64 values, converting each element.
func FromValues(data []float64, shape Shape, dtype DataType) (*RawTensor, error) {
	r, err := newFor(len(data), shape, dtype)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		r.SetFloat64(i, v)
	}
	return r, nil
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float64, dtype DataType) (*RawTensor, error) {
	r, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		return nil, err
	}
	for i := 0; i < r.NumElements(); i++ {
		r.SetFloat64(i, value)
	}
	return r, nil
}

func newFor(n int, shape Shape, dtype DataType) (*RawTensor, error) {
	if shape.NumElements() != n {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), n)
	}
	return NewRaw(shape, dtype, CPU)
}

package cpu

import (
	"fmt"

	"github.com/born-ml/prims/internal/tensor"
)

// ReducedShape returns the shape left after summing over dims.
func ReducedShape(shape tensor.Shape, dims []int) (tensor.Shape, error) {
	reduce := make([]bool, len(shape))
	for _, d := range dims {
		if d < 0 || d >= len(shape) {
			return nil, fmt.Errorf("sum: dimension %d out of range for %dD tensor", d, len(shape))
		}
		if reduce[d] {
			return nil, fmt.Errorf("sum: dimension %d listed twice", d)
		}
		reduce[d] = true
	}
	out := make(tensor.Shape, 0, len(shape))
	for i, n := range shape {
		if !reduce[i] {
			out = append(out, n)
		}
	}
	return out, nil
}

// Sum reduces x over dims, dropping the reduced dimensions.
//
// Example:
//
//	x shape [2, 3, 4]
//	Sum(x, []int{2})    → shape [2, 3]
//	Sum(x, []int{0, 2}) → shape [3]
func (cpu *CPUBackend) Sum(x *tensor.RawTensor, dims []int) (*tensor.RawTensor, error) {
	if x.DType() == tensor.Bool {
		return nil, fmt.Errorf("sum: unsupported dtype %s", x.DType())
	}
	outShape, err := ReducedShape(x.Shape(), dims)
	if err != nil {
		return nil, err
	}
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}

	kept := make([]bool, len(x.Shape()))
	for i := range kept {
		kept[i] = true
	}
	for _, d := range dims {
		kept[d] = false
	}

	inCoords := make([]int, len(x.Shape()))
	outCoords := make([]int, len(outShape))
	outStrides := outShape.ComputeStrides()
	// target maps input element i to its output element.
	target := func(i int) int {
		x.Shape().Unravel(i, inCoords)
		k := 0
		for d, c := range inCoords {
			if kept[d] {
				outCoords[k] = c
				k++
			}
		}
		return tensor.StridedOffset(outCoords, outStrides)
	}

	if x.DType().IsInteger() {
		acc := make([]int64, result.NumElements())
		for i := 0; i < x.NumElements(); i++ {
			acc[target(i)] += x.Int64At(i)
		}
		for i, v := range acc {
			result.SetInt64(i, v)
		}
		return result, nil
	}
	acc := make([]float64, result.NumElements())
	for i := 0; i < x.NumElements(); i++ {
		acc[target(i)] += x.Float64At(i)
	}
	for i, v := range acc {
		result.SetFloat64(i, v)
	}
	return result, nil
}

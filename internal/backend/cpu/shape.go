package cpu

import (
	"fmt"
	"slices"

	"github.com/born-ml/prims/internal/tensor"
)

// CheckBroadcastInDim validates a broadcast_in_dim request.
// dims[i] names the output dimension that input dimension i maps to; dims must be
// strictly increasing and every input dimension must be 1 or equal to its target.
func CheckBroadcastInDim(in, shape tensor.Shape, dims []int) error {
	if len(dims) != len(in) {
		return fmt.Errorf("broadcast_in_dim: %d broadcast dimensions for a %dD input", len(dims), len(in))
	}
	for i, d := range dims {
		if d < 0 || d >= len(shape) {
			return fmt.Errorf("broadcast_in_dim: dimension %d out of range for %dD output", d, len(shape))
		}
		if i > 0 && d <= dims[i-1] {
			return fmt.Errorf("broadcast_in_dim: broadcast dimensions %v are not increasing", dims)
		}
		if in[i] != 1 && in[i] != shape[d] {
			return fmt.Errorf("broadcast_in_dim: cannot broadcast dimension %d from %d to %d", i, in[i], shape[d])
		}
	}
	return shape.Validate()
}

// BroadcastSource maps output coordinates of broadcast_in_dim to the input flat index.
func BroadcastSource(in tensor.Shape, dims, outCoords, inCoords []int) int {
	for i, d := range dims {
		if in[i] == 1 {
			inCoords[i] = 0
		} else {
			inCoords[i] = outCoords[d]
		}
	}
	return tensor.StridedOffset(inCoords, in.ComputeStrides())
}

// BroadcastInDim materializes x broadcast to shape.
func (cpu *CPUBackend) BroadcastInDim(x *tensor.RawTensor, shape tensor.Shape, dims []int) (*tensor.RawTensor, error) {
	if err := CheckBroadcastInDim(x.Shape(), shape, dims); err != nil {
		return nil, err
	}
	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("broadcast_in_dim: %w", err)
	}

	outCoords := make([]int, len(shape))
	inCoords := make([]int, len(dims))
	for i := 0; i < result.NumElements(); i++ {
		shape.Unravel(i, outCoords)
		result.SetFloat64(i, x.Float64At(BroadcastSource(x.Shape(), dims, outCoords, inCoords)))
	}
	return result, nil
}

// Reshape returns a contiguous tensor with the same elements and a new shape.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) (*tensor.RawTensor, error) {
	if shape.NumElements() != x.NumElements() {
		return nil, fmt.Errorf("reshape: cannot reshape %v (%d elements) to %v", x.Shape(), x.NumElements(), shape)
	}
	src := x.Contiguous()
	return tensor.FromBytes(slices.Clone(src.Data()[:src.ByteSize()]), shape, x.DType(), cpu.device)
}

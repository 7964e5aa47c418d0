package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/prims/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// TestCPUBackend_New tests backend creation.
func TestCPUBackend_New(t *testing.T) {
	backend := New()
	if backend == nil {
		t.Fatal("New() returned nil")
	}
	if backend.Name() != "CPU" {
		t.Errorf("Expected name 'CPU', got '%s'", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Expected device CPU, got %v", backend.Device())
	}
}

func TestCPUBackend_Binary(t *testing.T) {
	backend := New()

	t.Run("Float32Add", func(t *testing.T) {
		a, _ := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
		b, _ := tensor.FromFloat32s([]float32{10, 11, 12, 13, 14, 15}, tensor.Shape{2, 3})

		out, err := backend.Binary(OpAdd, a, b)
		require.NoError(t, err)
		assert.Equal(t, tensor.Float32, out.DType())
		assert.Equal(t, []float32{11, 13, 15, 17, 19, 21}, out.AsFloat32())
	})

	t.Run("Float64FastPath", func(t *testing.T) {
		a, _ := tensor.FromFloat64s([]float64{1, 2, 3}, tensor.Shape{3})
		b, _ := tensor.FromFloat64s([]float64{4, 5, 6}, tensor.Shape{3})

		for op, want := range map[BinaryOp][]float64{
			OpAdd: {5, 7, 9},
			OpSub: {-3, -3, -3},
			OpMul: {4, 10, 18},
			OpDiv: {0.25, 0.4, 0.5},
		} {
			out, err := backend.Binary(op, a, b)
			require.NoError(t, err, op)
			assert.True(t, floats.EqualApprox(want, out.AsFloat64(), 1e-12), "%s: %v", op, out.AsFloat64())
		}
	})

	t.Run("ScalarOperand", func(t *testing.T) {
		a, _ := tensor.FromFloat32s([]float32{1, 2, 3}, tensor.Shape{3})

		out, err := backend.Binary(OpMul, a, 2.0)
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 4, 6}, out.AsFloat32())

		out, err = backend.Binary(OpSub, 10, a)
		require.NoError(t, err)
		assert.Equal(t, []float32{9, 8, 7}, out.AsFloat32())
	})

	t.Run("IntegerDivisionTruncates", func(t *testing.T) {
		a, _ := tensor.FromInt64s([]int64{7, -7, 3}, tensor.Shape{3})
		b, _ := tensor.FromInt64s([]int64{2, 2, 0}, tensor.Shape{3})

		out, err := backend.Binary(OpDiv, a, b)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, -3, 0}, out.AsInt64())
	})

	t.Run("ComparisonReturnsBool", func(t *testing.T) {
		a, _ := tensor.FromFloat32s([]float32{1, 5, 3}, tensor.Shape{3})

		out, err := backend.Binary(OpGt, a, 2.0)
		require.NoError(t, err)
		assert.Equal(t, tensor.Bool, out.DType())
		assert.Equal(t, []bool{false, true, true}, out.AsBool())
	})

	t.Run("Mismatch", func(t *testing.T) {
		a, _ := tensor.FromFloat32s([]float32{1, 2}, tensor.Shape{2})
		b, _ := tensor.FromFloat32s([]float32{1, 2, 3}, tensor.Shape{3})
		c, _ := tensor.FromFloat64s([]float64{1, 2}, tensor.Shape{2})

		_, err := backend.Binary(OpAdd, a, b)
		assert.ErrorContains(t, err, "shape mismatch")
		_, err = backend.Binary(OpAdd, a, c)
		assert.ErrorContains(t, err, "dtype mismatch")
		_, err = backend.Binary(OpAdd, 1, 2)
		assert.ErrorContains(t, err, "at least one operand")
		_, err = backend.Binary(OpAdd, a, "x")
		assert.ErrorContains(t, err, "unsupported operand")
	})

	t.Run("StridedView", func(t *testing.T) {
		a, _ := tensor.FromFloat64s([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
		at, err := a.Permute(1, 0)
		require.NoError(t, err)
		b, _ := tensor.Full(tensor.Shape{3, 2}, 0, tensor.Float64)

		out, err := backend.Binary(OpAdd, at, b)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, out.AsFloat64())
	})
}

func TestCPUBackend_Unary(t *testing.T) {
	backend := New()
	x, _ := tensor.FromFloat64s([]float64{1, 4, 9}, tensor.Shape{3})

	out, err := backend.Unary(OpSqrt, x)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, out.AsFloat64())

	out, err = backend.Unary(OpNeg, x)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -4, -9}, out.AsFloat64())

	i, _ := tensor.FromInt64s([]int64{1, -2}, tensor.Shape{2})
	out, err = backend.Unary(OpAbs, i)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, out.AsInt64())

	_, err = backend.Unary(OpExp, i)
	assert.ErrorContains(t, err, "floating point required")
}

func TestCPUBackend_Where(t *testing.T) {
	backend := New()
	pred, _ := tensor.FromValues([]float64{1, 0, 1}, tensor.Shape{3}, tensor.Bool)
	a, _ := tensor.FromFloat32s([]float32{1, 2, 3}, tensor.Shape{3})

	out, err := backend.Where(pred, a, 0.0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 3}, out.AsFloat32())

	_, err = backend.Where(a, a, a)
	assert.ErrorContains(t, err, "predicate must be bool")
}

func TestCPUBackend_BroadcastInDim(t *testing.T) {
	backend := New()
	x, _ := tensor.FromFloat32s([]float32{1, 2, 3}, tensor.Shape{3})

	out, err := backend.BroadcastInDim(x, tensor.Shape{2, 3}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3}, out.AsFloat32())

	out, err = backend.BroadcastInDim(x, tensor.Shape{3, 2}, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 2, 2, 3, 3}, out.AsFloat32())

	one, _ := tensor.FromFloat32s([]float32{7}, tensor.Shape{1})
	out, err = backend.BroadcastInDim(one, tensor.Shape{2, 2}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 7, 7, 7}, out.AsFloat32())

	tests := []struct {
		name  string
		shape tensor.Shape
		dims  []int
		msg   string
	}{
		{"WrongRank", tensor.Shape{2, 3}, []int{0, 1}, "broadcast dimensions for a 1D input"},
		{"OutOfRange", tensor.Shape{2, 3}, []int{2}, "out of range"},
		{"Incompatible", tensor.Shape{2, 4}, []int{1}, "cannot broadcast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := backend.BroadcastInDim(x, tt.shape, tt.dims)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestCPUBackend_Reshape(t *testing.T) {
	backend := New()
	x, _ := tensor.FromFloat64s([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	xt, _ := x.Permute(1, 0)

	out, err := backend.Reshape(xt, tensor.Shape{6})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, out.AsFloat64())

	_, err = backend.Reshape(x, tensor.Shape{4})
	assert.Error(t, err)
}

func TestCPUBackend_Sum(t *testing.T) {
	backend := New()
	x, _ := tensor.FromFloat64s([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	out, err := backend.Sum(x, []int{1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2}, out.Shape())
	assert.Equal(t, []float64{6, 15}, out.AsFloat64())

	out, err = backend.Sum(x, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 9}, out.AsFloat64())

	out, err = backend.Sum(x, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0, len(out.Shape()))
	assert.Equal(t, 21.0, out.Float64At(0))

	_, err = backend.Sum(x, []int{2})
	assert.ErrorContains(t, err, "out of range")
	_, err = backend.Sum(x, []int{1, 1})
	assert.ErrorContains(t, err, "listed twice")
}

func TestCPUBackend_Convert(t *testing.T) {
	backend := New()
	x, _ := tensor.FromFloat64s([]float64{1.7, -2.5, 0}, tensor.Shape{3})

	out, err := backend.Convert(x, tensor.Int32)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -2, 0}, out.AsInt32())

	out, err = backend.Convert(x, tensor.Bool)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, out.AsBool())

	out, err = backend.Convert(x, tensor.Float16)
	require.NoError(t, err)
	assert.InDelta(t, 1.7, out.Float64At(0), 1e-3)
}

func TestCPUBackend_LargeIntegersExact(t *testing.T) {
	backend := New()
	const big = int64(1)<<53 + 1
	x, _ := tensor.FromInt64s([]int64{big, -big}, tensor.Shape{2})
	zero, _ := tensor.FromInt64s([]int64{0, 0}, tensor.Shape{2})

	out, err := backend.Binary(OpAdd, x, zero)
	require.NoError(t, err)
	assert.Equal(t, []int64{big, -big}, out.AsInt64())

	out, err = backend.Binary(OpAdd, x, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{big + 2, -big + 2}, out.AsInt64())

	out, err = backend.Binary(OpEq, x, big)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, out.AsBool())

	out, err = backend.Unary(OpNeg, x)
	require.NoError(t, err)
	assert.Equal(t, []int64{-big, big}, out.AsInt64())

	col, _ := tensor.FromInt64s([]int64{big, 2, 0, 0}, tensor.Shape{2, 2})
	out, err = backend.Sum(col, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []int64{big, 2}, out.AsInt64())

	out, err = backend.Convert(x, tensor.Int32)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -1}, out.AsInt32())
	out, err = backend.Convert(x, tensor.Int64)
	require.NoError(t, err)
	assert.Equal(t, []int64{big, -big}, out.AsInt64())
}

func TestApplyBinary_NaN(t *testing.T) {
	assert.True(t, math.IsNaN(ApplyBinary(OpMaximum, math.NaN(), 1, tensor.Float64)))
	assert.True(t, math.IsNaN(ApplyBinary(OpMinimum, 1, math.NaN(), tensor.Float64)))
	assert.Equal(t, 3.0, ApplyBinary(OpMaximum, 3, 1, tensor.Float64))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, float64(float32(0.1)), RoundTo(0.1, tensor.Float32))
	assert.Equal(t, 0.1, RoundTo(0.1, tensor.Float64))
	assert.Equal(t, 2.0, RoundTo(2.9, tensor.Int64))
	assert.Equal(t, 1.0, RoundTo(-3, tensor.Bool))
}

// Package fusion is the kernel-fusion backend surface: a scoped definition API that
// records a fused program, and engines that compile and execute it.
//
// A program is built once per call:
//
//	f := fusion.New(engine)
//	defer f.Release()
//	def, err := f.Define()
//	defer def.Release()
//	x := def.DefineTensor(shape, stride, fusion.Float)
//	def.AddInput(x)
//	y := def.Binary(cpu.OpMul, x, def.DefineConstant(2.0))
//	def.AddOutput(y)
//	if _, err := def.Finish(); err != nil { ... }
//	outs, err := f.Execute(ctx, inputs)
package fusion

import (
	"github.com/born-ml/prims/internal/tensor"
	"github.com/pkg/errors"
)

// DType is the fusion backend's element type enumeration.
type DType int

// Fusion element types.
const (
	Float DType = iota
	Double
	Half
	Int32
	Int
	Bool
)

// String returns the backend type name.
func (dt DType) String() string {
	switch dt {
	case Float:
		return "Float"
	case Double:
		return "Double"
	case Half:
		return "Half"
	case Int32:
		return "Int32"
	case Int:
		return "Int"
	case Bool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// DTypeOf translates a tensor data type to the fusion enumeration.
func DTypeOf(dt tensor.DataType) (DType, error) {
	switch dt {
	case tensor.Float32:
		return Float, nil
	case tensor.Float64:
		return Double, nil
	case tensor.Float16:
		return Half, nil
	case tensor.Int32:
		return Int32, nil
	case tensor.Int64:
		return Int, nil
	case tensor.Bool:
		return Bool, nil
	default:
		return 0, errors.Errorf("fusion: no backend type for %s", dt)
	}
}

// TensorType translates back to the tensor data type used for results.
func (dt DType) TensorType() tensor.DataType {
	switch dt {
	case Double:
		return tensor.Float64
	case Half:
		return tensor.Float16
	case Int32:
		return tensor.Int32
	case Int:
		return tensor.Int64
	case Bool:
		return tensor.Bool
	default:
		return tensor.Float32
	}
}

// IsInteger reports whether dt is a (non-boolean) integer type.
func (dt DType) IsInteger() bool {
	return dt == Int || dt == Int32
}

// IsFloat reports whether dt is a floating point type.
func (dt DType) IsFloat() bool {
	return dt == Float || dt == Double || dt == Half
}

package refs

import (
	"fmt"
	"math"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/tensor"
)

// DefaultFloat is the dtype an integer or bool tensor is promoted to when a float is required.
const DefaultFloat = tensor.Float32

// operand is an argument split into its tensor metadata or scalar value.
type operand struct {
	v        any
	isTensor bool
	meta     tensor.Meta // tensors only
	scalar   float64     // scalars only
	dtype    tensor.DataType
}

func classify(op string, v any) (operand, error) {
	if m, ok := tensor.MetaOf(v); ok {
		return operand{v: v, isTensor: true, meta: m, dtype: m.DType}, nil
	}
	if f, dt, ok := tensor.Number(v); ok {
		return operand{v: v, scalar: f, dtype: dt}, nil
	}
	return operand{}, fmt.Errorf("%s: expected a tensor or a number, got %T", op, v)
}

func category(dt tensor.DataType) int {
	switch {
	case dt == tensor.Bool:
		return 0
	case dt.IsInteger():
		return 1
	default:
		return 2
	}
}

// resultType computes the dtype of an element-wise operation over ops.
// Tensors decide the dtype among themselves; a scalar only raises the category,
// and then to the default dtype of that category.
func resultType(ops []operand) tensor.DataType {
	var tensorType tensor.DataType
	haveTensor := false
	scalarCat := -1
	for _, o := range ops {
		if o.isTensor {
			if !haveTensor {
				tensorType, haveTensor = o.dtype, true
			} else {
				tensorType = tensor.PromoteTypes(tensorType, o.dtype)
			}
			continue
		}
		scalarCat = max(scalarCat, category(o.dtype))
	}
	if !haveTensor {
		return tensor.Float64
	}
	if scalarCat > category(tensorType) {
		if scalarCat == 2 {
			return DefaultFloat
		}
		return tensor.Int64
	}
	return tensorType
}

// broadcastShape folds the shapes of all tensor operands.
func broadcastShape(op string, ops []operand) (tensor.Shape, error) {
	var shape tensor.Shape
	first := true
	for _, o := range ops {
		if !o.isTensor {
			continue
		}
		if first {
			shape, first = o.meta.Shape, false
			continue
		}
		s, _, err := tensor.BroadcastShapes(shape, o.meta.Shape)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		shape = s
	}
	return shape, nil
}

// prepare converts and broadcasts tensor operands to a common dtype and shape.
// Scalars are passed through untouched so they reach the primitive as literals.
func prepare(e Emitter, op string, dtype tensor.DataType, shape tensor.Shape, ops []operand) ([]any, error) {
	out := make([]any, len(ops))
	for i, o := range ops {
		if !o.isTensor {
			out[i] = o.v
			continue
		}
		v, err := convert(e, o.v, o.meta, dtype)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		v, err = expand(e, v, o.meta.Shape, shape)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out[i] = v
	}
	return out, nil
}

func convert(e Emitter, v any, m tensor.Meta, dtype tensor.DataType) (any, error) {
	if m.DType == dtype {
		return v, nil
	}
	return e.Emit("convert_element_type", []any{v, dtype}, nil)
}

// expand broadcasts v from shape in to shape out, aligning trailing dimensions.
func expand(e Emitter, v any, in, out tensor.Shape) (any, error) {
	if in.Equal(out) {
		return v, nil
	}
	lead := len(out) - len(in)
	dims := make([]int, len(in))
	for i := range dims {
		dims[i] = lead + i
	}
	return e.Emit("broadcast_in_dim", []any{v, []int(out.Clone()), dims}, nil)
}

// elementwise emits prim over promoted, broadcast operands. compute, when set,
// chooses the computation dtype instead of resultType (true division computes in float).
// Calls with no tensor operand are folded to a Go value.
func elementwise(e Emitter, prim string, args []any, compute func(ops []operand) tensor.DataType) (any, error) {
	ops := make([]operand, len(args))
	anyTensor := false
	for i, a := range args {
		o, err := classify(prim, a)
		if err != nil {
			return nil, err
		}
		ops[i] = o
		anyTensor = anyTensor || o.isTensor
	}
	if !anyTensor {
		return foldScalars(prim, ops)
	}
	dtype := resultType(ops)
	if compute != nil {
		dtype = compute(ops)
	}
	shape, err := broadcastShape(prim, ops)
	if err != nil {
		return nil, err
	}
	prepared, err := prepare(e, prim, dtype, shape, ops)
	if err != nil {
		return nil, err
	}
	return e.Emit(prim, prepared, nil)
}

// floatCompute promotes integer and bool computations to the default float dtype.
func floatCompute(ops []operand) tensor.DataType {
	dt := resultType(ops)
	if !dt.IsFloat() {
		return DefaultFloat
	}
	return dt
}

// foldScalars evaluates an element-wise op on Go numbers at trace time.
func foldScalars(prim string, ops []operand) (any, error) {
	natural := scalarType(ops)

	var v float64
	switch len(ops) {
	case 1:
		op, ok := unaryByName[prim]
		if !ok {
			return nil, fmt.Errorf("%s: at least one operand must be a tensor", prim)
		}
		if x, ok := tensor.Integer(ops[0].v); ok && natural != tensor.Float64 && op.IsExactInt() {
			return cpu.ApplyUnaryInt(op, x), nil
		}
		v = cpu.ApplyUnary(op, ops[0].scalar)
		if op.IsFloatOnly() {
			natural = tensor.Float64
		}
	case 2:
		op, ok := binaryByName[prim]
		if !ok {
			return nil, fmt.Errorf("%s: at least one operand must be a tensor", prim)
		}
		if op == cpu.OpDiv {
			natural = tensor.Float64
		}
		x, xok := tensor.Integer(ops[0].v)
		y, yok := tensor.Integer(ops[1].v)
		if xok && yok && natural != tensor.Float64 {
			n := cpu.ApplyBinaryInt(op, x, y)
			if op.IsComparison() {
				return n != 0, nil
			}
			return n, nil
		}
		v = cpu.ApplyBinary(op, ops[0].scalar, ops[1].scalar, natural)
		if op.IsComparison() {
			return v != 0, nil
		}
	default:
		return nil, fmt.Errorf("%s: at least one operand must be a tensor", prim)
	}
	return scalarValue(v, natural), nil
}

// scalarType is the natural type of a computation over Go numbers.
func scalarType(ops []operand) tensor.DataType {
	cat := 0
	for _, o := range ops {
		cat = max(cat, category(o.dtype))
	}
	switch cat {
	case 0:
		return tensor.Bool
	case 1:
		return tensor.Int64
	default:
		return tensor.Float64
	}
}

func scalarValue(v float64, dtype tensor.DataType) any {
	switch dtype {
	case tensor.Bool:
		// Arithmetic on bools yields integers.
		return int64(v)
	case tensor.Int64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return v
		}
		return int64(v)
	default:
		return v
	}
}

var binaryByName = map[string]cpu.BinaryOp{}

var unaryByName = map[string]cpu.UnaryOp{}

func init() {
	for op := cpu.OpAdd; op <= cpu.OpGe; op++ {
		binaryByName[op.String()] = op
	}
	for op := cpu.OpNeg; op <= cpu.OpReciprocal; op++ {
		unaryByName[op.String()] = op
	}
}

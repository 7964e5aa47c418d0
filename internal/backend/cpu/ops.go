package cpu

import (
	"fmt"

	"github.com/born-ml/prims/internal/tensor"
	"gonum.org/v1/gonum/floats"
)

// operand is one side of an element-wise op: a tensor or a broadcast scalar.
type operand struct {
	t      *tensor.RawTensor
	scalar float64
	// integer holds the scalar exactly when exact is set.
	integer int64
	exact   bool
}

func (o operand) at(i int) float64 {
	if o.t == nil {
		return o.scalar
	}
	return o.t.Float64At(i)
}

func (o operand) intAt(i int) int64 {
	if o.t == nil {
		return o.integer
	}
	return o.t.Int64At(i)
}

func toOperand(name string, v any) (operand, error) {
	if t, ok := v.(*tensor.RawTensor); ok {
		return operand{t: t, exact: t.DType().IsInteger() || t.DType() == tensor.Bool}, nil
	}
	if f, _, ok := tensor.Number(v); ok {
		n, exact := tensor.Integer(v)
		return operand{scalar: f, integer: n, exact: exact}, nil
	}
	return operand{}, fmt.Errorf("%s: unsupported operand type %T", name, v)
}

// exactInt reports whether an op over operands of dtype can run on int64 values.
func exactInt(dtype tensor.DataType, ops ...operand) bool {
	if !dtype.IsInteger() {
		return false
	}
	for _, o := range ops {
		if !o.exact {
			return false
		}
	}
	return true
}

// Binary evaluates an element-wise binary primitive.
//
// Tensor operands must share shape and dtype; broadcasting and type promotion are
// the caller's job. A Go number on either side is applied to every element.
func (cpu *CPUBackend) Binary(op BinaryOp, a, b any) (*tensor.RawTensor, error) {
	x, err := toOperand(op.String(), a)
	if err != nil {
		return nil, err
	}
	y, err := toOperand(op.String(), b)
	if err != nil {
		return nil, err
	}

	var meta tensor.Meta
	switch {
	case x.t != nil && y.t != nil:
		if !x.t.Shape().Equal(y.t.Shape()) {
			return nil, fmt.Errorf("%s: shape mismatch %v vs %v", op, x.t.Shape(), y.t.Shape())
		}
		if x.t.DType() != y.t.DType() {
			return nil, fmt.Errorf("%s: dtype mismatch %s vs %s", op, x.t.DType(), y.t.DType())
		}
		meta = x.t.Meta()
	case x.t != nil:
		meta = x.t.Meta()
	case y.t != nil:
		meta = y.t.Meta()
	default:
		return nil, fmt.Errorf("%s: at least one operand must be a tensor", op)
	}

	outDType := meta.DType
	if op.IsComparison() {
		outDType = tensor.Bool
	}
	result, err := tensor.NewRaw(meta.Shape, outDType, cpu.device)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cpu.binaryFloat64(op, result, x, y) {
		return result, nil
	}
	if exactInt(meta.DType, x, y) {
		for i := 0; i < result.NumElements(); i++ {
			result.SetInt64(i, ApplyBinaryInt(op, x.intAt(i), y.intAt(i)))
		}
		return result, nil
	}
	for i := 0; i < result.NumElements(); i++ {
		result.SetFloat64(i, ApplyBinary(op, x.at(i), y.at(i), meta.DType))
	}
	return result, nil
}

// binaryFloat64 is the fast path for contiguous float64 arithmetic.
func (cpu *CPUBackend) binaryFloat64(op BinaryOp, result *tensor.RawTensor, x, y operand) bool {
	if x.t == nil || y.t == nil || result.DType() != tensor.Float64 ||
		!x.t.IsContiguous() || !y.t.IsContiguous() {
		return false
	}
	dst := result.AsFloat64()
	n := result.NumElements()
	a, b := x.t.AsFloat64()[:n], y.t.AsFloat64()[:n]
	switch op {
	case OpAdd:
		floats.AddTo(dst, a, b)
	case OpSub:
		floats.SubTo(dst, a, b)
	case OpMul:
		floats.MulTo(dst, a, b)
	case OpDiv:
		floats.DivTo(dst, a, b)
	default:
		return false
	}
	return true
}

// Unary evaluates an element-wise unary primitive.
func (cpu *CPUBackend) Unary(op UnaryOp, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	if op.IsFloatOnly() && !x.DType().IsFloat() {
		return nil, fmt.Errorf("%s: unsupported dtype %s (floating point required)", op, x.DType())
	}
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if x.DType().IsInteger() && op.IsExactInt() {
		for i := 0; i < result.NumElements(); i++ {
			result.SetInt64(i, ApplyUnaryInt(op, x.Int64At(i)))
		}
		return result, nil
	}
	for i := 0; i < result.NumElements(); i++ {
		result.SetFloat64(i, ApplyUnary(op, x.Float64At(i)))
	}
	return result, nil
}

// Where selects elements from a where pred is true and from b otherwise.
// pred must be a Bool tensor; a and b follow the Binary operand rules.
func (cpu *CPUBackend) Where(pred *tensor.RawTensor, a, b any) (*tensor.RawTensor, error) {
	if pred.DType() != tensor.Bool {
		return nil, fmt.Errorf("where: predicate must be bool, got %s", pred.DType())
	}
	x, err := toOperand("where", a)
	if err != nil {
		return nil, err
	}
	y, err := toOperand("where", b)
	if err != nil {
		return nil, err
	}

	dtype := tensor.Float64
	for _, o := range []operand{x, y} {
		if o.t == nil {
			continue
		}
		if !o.t.Shape().Equal(pred.Shape()) {
			return nil, fmt.Errorf("where: shape mismatch %v vs %v", o.t.Shape(), pred.Shape())
		}
		dtype = o.t.DType()
	}
	if x.t != nil && y.t != nil && x.t.DType() != y.t.DType() {
		return nil, fmt.Errorf("where: dtype mismatch %s vs %s", x.t.DType(), y.t.DType())
	}

	result, err := tensor.NewRaw(pred.Shape(), dtype, cpu.device)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	if exactInt(dtype, x, y) {
		for i := 0; i < result.NumElements(); i++ {
			if pred.Int64At(i) != 0 {
				result.SetInt64(i, x.intAt(i))
			} else {
				result.SetInt64(i, y.intAt(i))
			}
		}
		return result, nil
	}
	for i := 0; i < result.NumElements(); i++ {
		if pred.Float64At(i) != 0 {
			result.SetFloat64(i, x.at(i))
		} else {
			result.SetFloat64(i, y.at(i))
		}
	}
	return result, nil
}

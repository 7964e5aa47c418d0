package prims

import (
	"fmt"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/tensor"
)

var binaryOps = []cpu.BinaryOp{
	cpu.OpAdd, cpu.OpSub, cpu.OpMul, cpu.OpDiv, cpu.OpPow, cpu.OpMaximum, cpu.OpMinimum,
	cpu.OpEq, cpu.OpNe, cpu.OpLt, cpu.OpLe, cpu.OpGt, cpu.OpGe,
}

var unaryOps = []cpu.UnaryOp{
	cpu.OpNeg, cpu.OpAbs, cpu.OpExp, cpu.OpLog, cpu.OpSqrt, cpu.OpRsqrt,
	cpu.OpSin, cpu.OpCos, cpu.OpTanh, cpu.OpReciprocal,
}

// registerElementwise adds the element-wise primitives.
func (r *Registry) registerElementwise() {
	for _, op := range binaryOps {
		r.mustRegister(binary(op))
	}
	for _, op := range unaryOps {
		r.mustRegister(unary(op))
	}
	r.mustRegister(&Symbol{
		Name:  "where",
		Impl:  whereImpl,
		Meta:  whereMeta,
		Lower: whereLower,
	})
}

func binary(op cpu.BinaryOp) *Symbol {
	name := op.String()
	return &Symbol{
		Name: name,
		Impl: func(b *cpu.CPUBackend, args []any, _ map[string]any) (any, error) {
			if err := arity(name, args, 2); err != nil {
				return nil, err
			}
			return b.Binary(op, args[0], args[1])
		},
		Meta: func(args []any, _ map[string]any) (tensor.Meta, error) {
			if err := arity(name, args, 2); err != nil {
				return tensor.Meta{}, err
			}
			return BinaryMeta(op, args[0], args[1])
		},
		Lower: func(def *fusion.Definition, args []any, _ map[string]any) (fusion.Handle, error) {
			if err := arity(name, args, 2); err != nil {
				return nil, err
			}
			a, err := handle(name, args[0])
			if err != nil {
				return nil, err
			}
			b, err := handle(name, args[1])
			if err != nil {
				return nil, err
			}
			return lowered(def, def.Binary(op, a, b))
		},
	}
}

// BinaryMeta is the output metadata of a binary primitive: tensor operands must agree
// on shape and dtype, a scalar adopts the tensor's dtype, comparisons yield Bool.
func BinaryMeta(op cpu.BinaryOp, a, b any) (tensor.Meta, error) {
	ma, ta, err := operandMeta(op.String(), a)
	if err != nil {
		return tensor.Meta{}, err
	}
	mb, tb, err := operandMeta(op.String(), b)
	if err != nil {
		return tensor.Meta{}, err
	}

	var out tensor.Meta
	switch {
	case ta && tb:
		if !ma.Shape.Equal(mb.Shape) {
			return tensor.Meta{}, fmt.Errorf("%s: shape mismatch %v vs %v", op, ma.Shape, mb.Shape)
		}
		if ma.DType != mb.DType {
			return tensor.Meta{}, fmt.Errorf("%s: dtype mismatch %s vs %s", op, ma.DType, mb.DType)
		}
		out = ma
	case ta:
		out = ma
	case tb:
		out = mb
	default:
		return tensor.Meta{}, fmt.Errorf("%s: at least one operand must be a tensor", op)
	}
	out.Shape = out.Shape.Clone()
	if op.IsComparison() {
		out.DType = tensor.Bool
	}
	return out, nil
}

func unary(op cpu.UnaryOp) *Symbol {
	name := op.String()
	return &Symbol{
		Name: name,
		Impl: func(b *cpu.CPUBackend, args []any, _ map[string]any) (any, error) {
			if err := arity(name, args, 1); err != nil {
				return nil, err
			}
			x, err := rawTensor(name, args[0])
			if err != nil {
				return nil, err
			}
			return b.Unary(op, x)
		},
		Meta: func(args []any, _ map[string]any) (tensor.Meta, error) {
			if err := arity(name, args, 1); err != nil {
				return tensor.Meta{}, err
			}
			m, err := tensorMeta(name, args[0])
			if err != nil {
				return tensor.Meta{}, err
			}
			if op.IsFloatOnly() && !m.DType.IsFloat() {
				return tensor.Meta{}, fmt.Errorf("%s: unsupported dtype %s (floating point required)", op, m.DType)
			}
			return tensor.Meta{Shape: m.Shape.Clone(), DType: m.DType}, nil
		},
		Lower: func(def *fusion.Definition, args []any, _ map[string]any) (fusion.Handle, error) {
			if err := arity(name, args, 1); err != nil {
				return nil, err
			}
			x, err := fusionTensor(name, args[0])
			if err != nil {
				return nil, err
			}
			return lowered(def, def.Unary(op, x))
		},
	}
}

func whereImpl(b *cpu.CPUBackend, args []any, _ map[string]any) (any, error) {
	if err := arity("where", args, 3); err != nil {
		return nil, err
	}
	pred, err := rawTensor("where", args[0])
	if err != nil {
		return nil, err
	}
	return b.Where(pred, args[1], args[2])
}

func whereMeta(args []any, _ map[string]any) (tensor.Meta, error) {
	if err := arity("where", args, 3); err != nil {
		return tensor.Meta{}, err
	}
	pred, err := tensorMeta("where", args[0])
	if err != nil {
		return tensor.Meta{}, err
	}
	if pred.DType != tensor.Bool {
		return tensor.Meta{}, fmt.Errorf("where: predicate must be bool, got %s", pred.DType)
	}
	out := tensor.Meta{Shape: pred.Shape.Clone(), DType: tensor.Float64}
	var branch *tensor.Meta
	for _, v := range args[1:] {
		m, isTensor, err := operandMeta("where", v)
		if err != nil {
			return tensor.Meta{}, err
		}
		if !isTensor {
			continue
		}
		if !m.Shape.Equal(pred.Shape) {
			return tensor.Meta{}, fmt.Errorf("where: shape mismatch %v vs %v", m.Shape, pred.Shape)
		}
		if branch != nil && branch.DType != m.DType {
			return tensor.Meta{}, fmt.Errorf("where: dtype mismatch %s vs %s", branch.DType, m.DType)
		}
		branch = &m
		out.DType = m.DType
	}
	return out, nil
}

func whereLower(def *fusion.Definition, args []any, _ map[string]any) (fusion.Handle, error) {
	if err := arity("where", args, 3); err != nil {
		return nil, err
	}
	pred, err := fusionTensor("where", args[0])
	if err != nil {
		return nil, err
	}
	a, err := handle("where", args[1])
	if err != nil {
		return nil, err
	}
	b, err := handle("where", args[2])
	if err != nil {
		return nil, err
	}
	return lowered(def, def.Where(pred, a, b))
}

package refs

import (
	"fmt"

	"github.com/born-ml/prims/internal/signature"
	"github.com/born-ml/prims/internal/tensor"
)

// registerElementwise adds arithmetic, comparison and math decompositions.
func (t *Table) registerElementwise() {
	addSig := sig(signature.Required("a"), signature.Required("b"), kwOnly("alpha", 1))
	t.add("add", addSig, scaledBinary("add"))
	t.add("sub", addSig, scaledBinary("sub"))

	for _, name := range []string{"mul", "pow", "maximum", "minimum", "eq", "ne", "lt", "le", "gt", "ge"} {
		t.add(name, binarySig, binaryRef(name, nil))
	}
	div := binaryRef("div", floatCompute)
	t.add("div", binarySig, div)
	t.add("true_divide", binarySig, div)

	for _, name := range []string{"neg", "abs"} {
		t.add(name, unarySig, unaryRef(name, nil))
	}
	for _, name := range []string{"exp", "log", "sqrt", "rsqrt", "sin", "cos", "tanh", "reciprocal"} {
		t.add(name, unarySig, unaryRef(name, floatCompute))
	}
	t.add("square", unarySig, func(e Emitter, args []any) (any, error) {
		return elementwise(e, "mul", []any{args[0], args[0]}, nil)
	})

	t.add("where", sig(signature.Required("condition"), signature.Required("input"), signature.Required("other")), whereRef)
	t.add("clamp", sig(signature.Required("a"), signature.Optional("min", nil), signature.Optional("max", nil)), clampRef)
}

func binaryRef(prim string, compute func([]operand) tensor.DataType) DecomposeFunc {
	return func(e Emitter, args []any) (any, error) {
		return elementwise(e, prim, args[:2], compute)
	}
}

func unaryRef(prim string, compute func([]operand) tensor.DataType) DecomposeFunc {
	return func(e Emitter, args []any) (any, error) {
		return elementwise(e, prim, args[:1], compute)
	}
}

// scaledBinary computes a op (b * alpha).
func scaledBinary(prim string) DecomposeFunc {
	return func(e Emitter, args []any) (any, error) {
		a, b, alpha := args[0], args[1], args[2]
		if v, _, ok := tensor.Number(alpha); !ok || v != 1 {
			scaled, err := elementwise(e, "mul", []any{b, alpha}, nil)
			if err != nil {
				return nil, fmt.Errorf("%s: alpha: %w", prim, err)
			}
			b = scaled
		}
		return elementwise(e, prim, []any{a, b}, nil)
	}
}

func whereRef(e Emitter, args []any) (any, error) {
	cond, err := classify("where", args[0])
	if err != nil {
		return nil, err
	}
	if !cond.isTensor {
		// A concrete condition picks a branch at trace time.
		b, ok := args[0].(bool)
		if !ok {
			return nil, fmt.Errorf("where: condition must be bool, got %T", args[0])
		}
		if b {
			return args[1], nil
		}
		return args[2], nil
	}
	if cond.dtype != tensor.Bool {
		return nil, fmt.Errorf("where: condition must be bool, got %s", cond.dtype)
	}

	branches := make([]operand, 2)
	for i, v := range args[1:] {
		if branches[i], err = classify("where", v); err != nil {
			return nil, err
		}
	}
	dtype := resultType(branches)
	shape, err := broadcastShape("where", []operand{cond, branches[0], branches[1]})
	if err != nil {
		return nil, err
	}
	pred, err := prepare(e, "where", tensor.Bool, shape, []operand{cond})
	if err != nil {
		return nil, err
	}
	vals, err := prepare(e, "where", dtype, shape, branches)
	if err != nil {
		return nil, err
	}
	return e.Emit("where", []any{pred[0], vals[0], vals[1]}, nil)
}

func clampRef(e Emitter, args []any) (any, error) {
	x, lo, hi := args[0], args[1], args[2]
	if lo == nil && hi == nil {
		return nil, fmt.Errorf("clamp: at least one of min or max must be given")
	}
	var err error
	if lo != nil {
		if x, err = elementwise(e, "maximum", []any{x, lo}, nil); err != nil {
			return nil, err
		}
	}
	if hi != nil {
		if x, err = elementwise(e, "minimum", []any{x, hi}, nil); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// registerActivations adds activation functions built from other decompositions.
func (t *Table) registerActivations() {
	t.add("relu", unarySig, func(e Emitter, args []any) (any, error) {
		return elementwise(e, "maximum", []any{args[0], 0}, nil)
	})
	t.add("sigmoid", unarySig, func(e Emitter, args []any) (any, error) {
		// 1 / (1 + exp(-a))
		x, err := elementwise(e, "neg", args[:1], floatCompute)
		if err != nil {
			return nil, err
		}
		if x, err = elementwise(e, "exp", []any{x}, nil); err != nil {
			return nil, err
		}
		if x, err = elementwise(e, "add", []any{x, 1}, nil); err != nil {
			return nil, err
		}
		return elementwise(e, "reciprocal", []any{x}, nil)
	})
}

// registerReductions adds sum and mean.
func (t *Table) registerReductions() {
	reduceSig := sig(signature.Required("a"), signature.Optional("dim", nil), signature.Optional("keepdim", false), kwOnly("dtype", nil))
	t.add("sum", reduceSig, func(e Emitter, args []any) (any, error) {
		out, _, err := sum(e, "sum", args)
		return out, err
	})
	t.add("mean", reduceSig, func(e Emitter, args []any) (any, error) {
		m, err := tensorArg("mean", "a", args[0])
		if err != nil {
			return nil, err
		}
		if !m.DType.IsFloat() && args[3] == nil {
			return nil, fmt.Errorf("mean: floating point input required, got %s", m.DType)
		}
		total, count, err := sum(e, "mean", args)
		if err != nil {
			return nil, err
		}
		return elementwise(e, "div", []any{total, float64(count)}, nil)
	})
}

// sum reduces args[0] and reports how many elements fed each output element.
// Integer and bool inputs accumulate in int64 unless a dtype is given.
func sum(e Emitter, op string, args []any) (any, int, error) {
	m, err := tensorArg(op, "a", args[0])
	if err != nil {
		return nil, 0, err
	}
	raw, err := toInts(op, "dim", args[1])
	if err != nil {
		return nil, 0, err
	}
	dims, err := normalizeDims(op, raw, len(m.Shape))
	if err != nil {
		return nil, 0, err
	}
	keepdim, err := toBool(op, "keepdim", args[2])
	if err != nil {
		return nil, 0, err
	}

	dtype := m.DType
	if args[3] != nil {
		if dtype, err = toDType(op, args[3]); err != nil {
			return nil, 0, err
		}
	} else if !dtype.IsFloat() {
		dtype = tensor.Int64
	}

	x, err := convert(e, args[0], m, dtype)
	if err != nil {
		return nil, 0, err
	}
	out, err := e.Emit("sum", []any{x, dims}, nil)
	if err != nil {
		return nil, 0, err
	}

	count := 1
	kept := m.Shape.Clone()
	for _, d := range dims {
		count *= m.Shape[d]
		kept[d] = 1
	}
	if keepdim {
		if out, err = e.Emit("reshape", []any{out, []int(kept)}, nil); err != nil {
			return nil, 0, err
		}
	}
	return out, count, nil
}

// registerShapeOps adds reshape, broadcast_to and dtype conversion.
func (t *Table) registerShapeOps() {
	t.add("reshape", sig(signature.Required("a"), signature.Required("shape")), func(e Emitter, args []any) (any, error) {
		m, err := tensorArg("reshape", "a", args[0])
		if err != nil {
			return nil, err
		}
		raw, err := toInts("reshape", "shape", args[1])
		if err != nil {
			return nil, err
		}
		shape, err := inferShape("reshape", raw, m.Shape.NumElements())
		if err != nil {
			return nil, err
		}
		if shape.Equal(m.Shape) {
			return args[0], nil
		}
		return e.Emit("reshape", []any{args[0], []int(shape)}, nil)
	})

	t.add("broadcast_to", sig(signature.Required("a"), signature.Required("size")), func(e Emitter, args []any) (any, error) {
		m, err := tensorArg("broadcast_to", "a", args[0])
		if err != nil {
			return nil, err
		}
		raw, err := toInts("broadcast_to", "size", args[1])
		if err != nil {
			return nil, err
		}
		size := tensor.Shape(raw)
		got, _, err := tensor.BroadcastShapes(m.Shape, size)
		if err != nil || !got.Equal(size) {
			return nil, fmt.Errorf("broadcast_to: cannot broadcast %v to %v", m.Shape, size)
		}
		return expand(e, args[0], m.Shape, size)
	})

	t.add("to", sig(signature.Required("a"), signature.Required("dtype")), func(e Emitter, args []any) (any, error) {
		m, err := tensorArg("to", "a", args[0])
		if err != nil {
			return nil, err
		}
		dtype, err := toDType("to", args[1])
		if err != nil {
			return nil, err
		}
		return convert(e, args[0], m, dtype)
	})
}

package fusion

import (
	"context"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/parallel"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/pkg/errors"
)

// HostEngine runs fused programs in host memory. It is always available and serves
// as the reference device for the fusion path. The zero value evaluates sequentially.
type HostEngine struct {
	Parallel parallel.Config
}

// NewHostEngine creates a host engine that splits large elementwise expressions
// across CPUs.
func NewHostEngine() *HostEngine {
	return &HostEngine{Parallel: parallel.DefaultConfig()}
}

// Name returns "host".
func (e *HostEngine) Name() string {
	return "host"
}

// Available always reports true.
func (e *HostEngine) Available() bool {
	return true
}

// Supports reports true for every dtype.
func (e *HostEngine) Supports(DType) bool {
	return true
}

// Compile checks the program can be evaluated and returns its kernel.
func (e *HostEngine) Compile(p *Program) (Kernel, error) {
	for i, x := range p.Exprs {
		for _, o := range x.Operands {
			if o < 0 || o >= i {
				return nil, errors.Errorf("host: %%%d refers to %%%d out of order", i, o)
			}
		}
	}
	for _, id := range p.Outputs {
		if p.Exprs[id].Scalar {
			return nil, errors.Errorf("host: output %%%d is a scalar", id)
		}
	}
	return &hostKernel{program: p, cfg: e.Parallel}, nil
}

type hostKernel struct {
	program *Program
	cfg     parallel.Config
}

// Release is a no-op; host kernels hold only Go memory.
func (k *hostKernel) Release() {}

// column holds the values of one expression. floats is always set. ints is set
// for integer expressions computed exactly, so values beyond 2^53 survive.
type column struct {
	floats []float64
	ints   []int64
}

// Execute evaluates every expression once, in program order, rounding each
// value to its element type.
func (k *hostKernel) Execute(ctx context.Context, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := k.program
	cols := make([]column, len(p.Exprs))
	for i := range p.Exprs {
		c, err := k.eval(i, cols, inputs)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}

	outs := make([]*tensor.RawTensor, len(p.Outputs))
	for i, id := range p.Outputs {
		e := p.Exprs[id]
		out, err := tensor.NewRaw(e.Shape, e.DType.TensorType(), tensor.Host)
		if err != nil {
			return nil, errors.Wrapf(err, "host: output #%d", i)
		}
		if ints := cols[id].ints; ints != nil {
			for j, v := range ints {
				out.SetInt64(j, v)
			}
		} else {
			for j, v := range cols[id].floats {
				out.SetFloat64(j, v)
			}
		}
		outs[i] = out
	}
	return outs, nil
}

func (k *hostKernel) eval(i int, cols []column, inputs []*tensor.RawTensor) (column, error) {
	e := k.program.Exprs[i]
	switch e.Kind {
	case ExprInput:
		in := inputs[e.Input]
		c := column{floats: in.Float64s()}
		if e.DType.IsInteger() {
			c.ints = make([]int64, len(c.floats))
			for n := range c.ints {
				c.ints[n] = in.Int64At(n)
			}
		}
		return c, nil
	case ExprConstant:
		c := column{floats: []float64{e.Value}}
		if e.DType == Int || e.DType == Bool {
			c.ints = []int64{e.IntValue}
		}
		return c, nil
	}

	if ints, ok := k.evalInts(e, cols); ok {
		floats := make([]float64, len(ints))
		for n, v := range ints {
			floats[n] = float64(v)
		}
		if !e.DType.IsInteger() {
			// Comparisons of exact integers yield Bool.
			return column{floats: floats}, nil
		}
		return column{floats: floats, ints: ints}, nil
	}

	out, err := k.evalFloats(e, cols)
	if err != nil {
		return column{}, err
	}
	dtype := e.DType.TensorType()
	for n, v := range out {
		out[n] = cpu.RoundTo(v, dtype)
	}
	return column{floats: out}, nil
}

// operandType is the type a binary expression computes in: that of its tensor operand.
func (k *hostKernel) operandType(e Expr) DType {
	a := k.program.Exprs[e.Operands[0]]
	if a.Scalar {
		return k.program.Exprs[e.Operands[1]].DType
	}
	return a.DType
}

// evalInts computes e on int64 values when its operands are exact integers.
func (k *hostKernel) evalInts(e Expr, cols []column) ([]int64, bool) {
	operand := func(j int) []int64 {
		return cols[e.Operands[j]].ints
	}
	at := func(v []int64, n int) int64 {
		if len(v) == 1 {
			return v[0]
		}
		return v[n]
	}

	out := make([]int64, e.Shape.NumElements())
	switch e.Kind {
	case ExprBinary:
		a, b := operand(0), operand(1)
		if a == nil || b == nil || !k.operandType(e).IsInteger() {
			return nil, false
		}
		parallel.For(len(out), func(n int) {
			out[n] = cpu.ApplyBinaryInt(e.Binary, at(a, n), at(b, n))
		}, k.cfg)
	case ExprUnary:
		a := operand(0)
		if a == nil || !e.DType.IsInteger() || !e.Unary.IsExactInt() {
			return nil, false
		}
		parallel.For(len(out), func(n int) {
			out[n] = cpu.ApplyUnaryInt(e.Unary, at(a, n))
		}, k.cfg)
	case ExprWhere:
		pred, a, b := cols[e.Operands[0]].floats, operand(1), operand(2)
		if a == nil || b == nil || !e.DType.IsInteger() {
			return nil, false
		}
		parallel.For(len(out), func(n int) {
			p := pred[0]
			if len(pred) > 1 {
				p = pred[n]
			}
			if p != 0 {
				out[n] = at(a, n)
			} else {
				out[n] = at(b, n)
			}
		}, k.cfg)
	case ExprBroadcast:
		a := operand(0)
		if a == nil {
			return nil, false
		}
		src := k.program.Exprs[e.Operands[0]].Shape
		parallel.Range(len(out), func(lo, hi int) {
			outCoords := make([]int, len(e.Shape))
			inCoords := make([]int, len(e.Dims))
			for n := lo; n < hi; n++ {
				e.Shape.Unravel(n, outCoords)
				out[n] = a[cpu.BroadcastSource(src, e.Dims, outCoords, inCoords)]
			}
		}, k.cfg)
	case ExprCast:
		a := operand(0)
		if a == nil || !e.DType.IsInteger() {
			return nil, false
		}
		copy(out, a)
	default:
		return nil, false
	}
	if e.DType == Int32 {
		for n, v := range out {
			out[n] = int64(int32(v)) //nolint:gosec // G115: Int32 wraps
		}
	}
	return out, true
}

// evalFloats computes e on float64 values.
func (k *hostKernel) evalFloats(e Expr, cols []column) ([]float64, error) {
	// at reads operand j at flat index n; scalar constants broadcast.
	at := func(j, n int) float64 {
		v := cols[e.Operands[j]].floats
		if len(v) == 1 {
			return v[0]
		}
		return v[n]
	}

	out := make([]float64, e.Shape.NumElements())
	switch e.Kind {
	case ExprBinary:
		// Comparisons are computed in the operand type.
		opType := k.operandType(e).TensorType()
		parallel.For(len(out), func(n int) {
			out[n] = cpu.ApplyBinary(e.Binary, at(0, n), at(1, n), opType)
		}, k.cfg)
	case ExprUnary:
		parallel.For(len(out), func(n int) {
			out[n] = cpu.ApplyUnary(e.Unary, at(0, n))
		}, k.cfg)
	case ExprWhere:
		parallel.For(len(out), func(n int) {
			if at(0, n) != 0 {
				out[n] = at(1, n)
			} else {
				out[n] = at(2, n)
			}
		}, k.cfg)
	case ExprBroadcast:
		src := k.program.Exprs[e.Operands[0]].Shape
		a := cols[e.Operands[0]].floats
		parallel.Range(len(out), func(lo, hi int) {
			outCoords := make([]int, len(e.Shape))
			inCoords := make([]int, len(e.Dims))
			for n := lo; n < hi; n++ {
				e.Shape.Unravel(n, outCoords)
				out[n] = a[cpu.BroadcastSource(src, e.Dims, outCoords, inCoords)]
			}
		}, k.cfg)
	case ExprCast:
		copy(out, cols[e.Operands[0]].floats)
	default:
		return nil, errors.Errorf("host: unsupported expression %s", e.Kind)
	}
	return out, nil
}

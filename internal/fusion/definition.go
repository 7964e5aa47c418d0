package fusion

import (
	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/pkg/errors"
)

// Handle is a value defined inside a Definition: a *Tensor or a *Scalar.
type Handle interface {
	ID() int
	DType() DType
	definition() *Definition
}

// Tensor is a tensor-valued handle.
type Tensor struct {
	def   *Definition
	id    int
	dtype DType
	shape tensor.Shape
}

// ID returns the expression index of the handle.
func (t *Tensor) ID() int { return t.id }

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Shape returns the tensor shape.
func (t *Tensor) Shape() tensor.Shape { return t.shape }

func (t *Tensor) definition() *Definition {
	if t == nil {
		return nil
	}
	return t.def
}

// Scalar is a constant handle.
type Scalar struct {
	def   *Definition
	id    int
	dtype DType
	value float64
}

// ID returns the expression index of the handle.
func (s *Scalar) ID() int { return s.id }

// DType returns the element type.
func (s *Scalar) DType() DType { return s.dtype }

// Value returns the constant value.
func (s *Scalar) Value() float64 { return s.value }

func (s *Scalar) definition() *Definition {
	if s == nil {
		return nil
	}
	return s.def
}

// Definition records one fused program. It is the scope returned by Fusion.Define:
// nothing reaches the Fusion unless Finish succeeds, and Release discards
// everything recorded so far.
//
// Errors are sticky: the first invalid call is remembered, later calls return nil
// handles, and Finish reports it.
type Definition struct {
	fusion  *Fusion
	exprs   []Expr
	inputs  []int
	outputs []int
	err     error
	closed  bool
}

// Err returns the first error encountered while defining, if any.
func (d *Definition) Err() error {
	return d.err
}

func (d *Definition) setErr(err error) {
	if d.err == nil {
		d.err = err
	}
}

// usable reports whether new expressions may be recorded.
func (d *Definition) usable() bool {
	if d.closed {
		d.setErr(errors.New("fusion: definition used after Finish or Release"))
	}
	return d.err == nil
}

func (d *Definition) push(e Expr) int {
	d.exprs = append(d.exprs, e)
	return len(d.exprs) - 1
}

func (d *Definition) newTensor(e Expr) *Tensor {
	return &Tensor{def: d, id: d.push(e), dtype: e.DType, shape: e.Shape}
}

// own checks that h was defined by d.
func (d *Definition) own(op string, hs ...Handle) bool {
	for _, h := range hs {
		if h == nil || h.definition() != d {
			d.setErr(errors.Errorf("fusion: %s: operand from another definition or missing", op))
			return false
		}
	}
	return true
}

// DefineTensor declares a tensor with a concrete descriptor.
// The tensor becomes a program input once passed to AddInput.
func (d *Definition) DefineTensor(shape tensor.Shape, stride []int, dtype DType) *Tensor {
	if !d.usable() {
		return nil
	}
	if err := shape.Validate(); err != nil {
		d.setErr(errors.Wrap(err, "fusion: define_tensor"))
		return nil
	}
	if len(stride) != len(shape) {
		d.setErr(errors.Errorf("fusion: define_tensor: %d strides for %dD shape", len(stride), len(shape)))
		return nil
	}
	return d.newTensor(Expr{
		Kind:   ExprInput,
		DType:  dtype,
		Shape:  shape.Clone(),
		Stride: append([]int(nil), stride...),
		Input:  -1,
	})
}

// DefineConstant declares a scalar constant. The backend type follows the Go value:
// bool → Bool, integers → Int, floats → Double.
func (d *Definition) DefineConstant(v any) *Scalar {
	if !d.usable() {
		return nil
	}
	value, dt, ok := tensor.Number(v)
	if !ok {
		d.setErr(errors.Errorf("fusion: define_constant: %T is not a number", v))
		return nil
	}
	dtype, err := DTypeOf(dt)
	if err != nil {
		d.setErr(err)
		return nil
	}
	e := Expr{Kind: ExprConstant, DType: dtype, Scalar: true, Value: value, Input: -1}
	if dtype == Int || dtype == Bool {
		e.IntValue, _ = tensor.Integer(v)
	}
	id := d.push(e)
	return &Scalar{def: d, id: id, dtype: dtype, value: value}
}

// AddInput marks t as the next program input.
func (d *Definition) AddInput(t *Tensor) {
	if !d.usable() || !d.own("add_input", t) {
		return
	}
	e := &d.exprs[t.id]
	if e.Kind != ExprInput {
		d.setErr(errors.Errorf("fusion: add_input: %%%d is a %s, not a defined tensor", t.id, e.Kind))
		return
	}
	if e.Input >= 0 {
		d.setErr(errors.Errorf("fusion: add_input: %%%d is already input #%d", t.id, e.Input))
		return
	}
	e.Input = len(d.inputs)
	d.inputs = append(d.inputs, t.id)
}

// AddOutput marks t as the next program output.
func (d *Definition) AddOutput(t *Tensor) {
	if !d.usable() || !d.own("add_output", t) {
		return
	}
	d.outputs = append(d.outputs, t.id)
}

// Binary records an element-wise binary op. At least one operand must be a tensor;
// tensor operands must agree on shape and type. A scalar takes the tensor's type.
func (d *Definition) Binary(op cpu.BinaryOp, a, b Handle) *Tensor {
	if !d.usable() || !d.own(op.String(), a, b) {
		return nil
	}
	ta, aok := a.(*Tensor)
	tb, bok := b.(*Tensor)
	var ref *Tensor
	switch {
	case aok && bok:
		if !ta.shape.Equal(tb.shape) {
			d.setErr(errors.Errorf("fusion: %s: shape mismatch %v vs %v", op, ta.shape, tb.shape))
			return nil
		}
		if ta.dtype != tb.dtype {
			d.setErr(errors.Errorf("fusion: %s: type mismatch %s vs %s", op, ta.dtype, tb.dtype))
			return nil
		}
		ref = ta
	case aok:
		ref = ta
	case bok:
		ref = tb
	default:
		d.setErr(errors.Errorf("fusion: %s: at least one operand must be a tensor", op))
		return nil
	}
	dtype := ref.dtype
	if op.IsComparison() {
		dtype = Bool
	}
	return d.newTensor(Expr{
		Kind:     ExprBinary,
		DType:    dtype,
		Shape:    ref.shape.Clone(),
		Binary:   op,
		Operands: []int{a.ID(), b.ID()},
		Input:    -1,
	})
}

// Unary records an element-wise unary op.
func (d *Definition) Unary(op cpu.UnaryOp, a *Tensor) *Tensor {
	if !d.usable() || !d.own(op.String(), a) {
		return nil
	}
	if op.IsFloatOnly() && !a.dtype.IsFloat() {
		d.setErr(errors.Errorf("fusion: %s: floating point operand required, got %s", op, a.dtype))
		return nil
	}
	return d.newTensor(Expr{
		Kind:     ExprUnary,
		DType:    a.dtype,
		Shape:    a.shape.Clone(),
		Unary:    op,
		Operands: []int{a.id},
		Input:    -1,
	})
}

// Where records an element-wise select on a Bool predicate.
func (d *Definition) Where(pred *Tensor, a, b Handle) *Tensor {
	if !d.usable() || !d.own("where", pred, a, b) {
		return nil
	}
	if pred.dtype != Bool {
		d.setErr(errors.Errorf("fusion: where: predicate must be Bool, got %s", pred.dtype))
		return nil
	}
	dtype := Double
	for _, h := range []Handle{a, b} {
		t, ok := h.(*Tensor)
		if !ok {
			continue
		}
		if !t.shape.Equal(pred.shape) {
			d.setErr(errors.Errorf("fusion: where: shape mismatch %v vs %v", t.shape, pred.shape))
			return nil
		}
		dtype = t.dtype
	}
	ta, aok := a.(*Tensor)
	tb, bok := b.(*Tensor)
	if aok && bok && ta.dtype != tb.dtype {
		d.setErr(errors.Errorf("fusion: where: type mismatch %s vs %s", ta.dtype, tb.dtype))
		return nil
	}
	return d.newTensor(Expr{
		Kind:     ExprWhere,
		DType:    dtype,
		Shape:    pred.shape.Clone(),
		Operands: []int{pred.id, a.ID(), b.ID()},
		Input:    -1,
	})
}

// BroadcastInDim records a broadcast of a to shape; dims maps each input dimension
// to an output dimension.
func (d *Definition) BroadcastInDim(a *Tensor, shape tensor.Shape, dims []int) *Tensor {
	if !d.usable() || !d.own("broadcast_in_dim", a) {
		return nil
	}
	if err := cpu.CheckBroadcastInDim(a.shape, shape, dims); err != nil {
		d.setErr(errors.Wrap(err, "fusion"))
		return nil
	}
	return d.newTensor(Expr{
		Kind:     ExprBroadcast,
		DType:    a.dtype,
		Shape:    shape.Clone(),
		Operands: []int{a.id},
		Dims:     append([]int(nil), dims...),
		Input:    -1,
	})
}

// Cast records an element type conversion.
func (d *Definition) Cast(a *Tensor, dtype DType) *Tensor {
	if !d.usable() || !d.own("cast", a) {
		return nil
	}
	return d.newTensor(Expr{
		Kind:     ExprCast,
		DType:    dtype,
		Shape:    a.shape.Clone(),
		Operands: []int{a.id},
		Input:    -1,
	})
}

// Finish validates the recording and commits it to the Fusion as its program.
// The definition is closed afterwards.
func (d *Definition) Finish() (*Program, error) {
	if d.closed {
		return nil, errors.New("fusion: definition already closed")
	}
	defer d.close()

	if d.err != nil {
		return nil, d.err
	}
	if len(d.outputs) == 0 {
		return nil, errors.New("fusion: program has no outputs")
	}
	for i, e := range d.exprs {
		if e.Kind == ExprInput && e.Input < 0 {
			return nil, errors.Errorf("fusion: tensor %%%d was defined but never added as an input", i)
		}
	}

	p := &Program{
		ID:      d.fusion.id,
		Exprs:   d.exprs,
		Inputs:  d.inputs,
		Outputs: d.outputs,
	}
	d.fusion.commit(p)
	return p, nil
}

// Release ends the definition scope. Uncommitted state is discarded.
// It is safe to call after Finish and more than once.
func (d *Definition) Release() {
	if d.closed {
		return
	}
	d.close()
}

func (d *Definition) close() {
	d.closed = true
	d.exprs, d.inputs, d.outputs = nil, nil, nil
	d.fusion.endDefinition()
}

package fusion

import (
	"context"
	"sync"

	"github.com/born-ml/prims/internal/tensor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrUnsupportedType is wrapped by engines that cannot compile a program because
// of an element type their device does not handle.
var ErrUnsupportedType = errors.New("unsupported element type")

// Engine compiles fused programs for one device.
type Engine interface {
	// Name identifies the engine in logs and errors.
	Name() string
	// Available reports whether the engine's device can be used.
	Available() bool
	// Supports reports whether tensors of dtype can be program inputs and outputs.
	Supports(dtype DType) bool
	// Compile turns a finished program into an executable kernel.
	Compile(p *Program) (Kernel, error)
}

// Kernel is a compiled program.
type Kernel interface {
	// Execute runs the program on inputs given in program input order and returns
	// one tensor per program output.
	Execute(ctx context.Context, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)
	// Release frees the device resources held by the kernel.
	Release()
}

// Fusion holds at most one program. It is defined through a single Definition
// scope and compiled on first Execute.
type Fusion struct {
	id     uuid.UUID
	engine Engine

	mu       sync.Mutex
	defining bool
	released bool
	program  *Program
	kernel   Kernel
}

// New creates an empty fusion bound to engine.
func New(engine Engine) *Fusion {
	return &Fusion{id: uuid.New(), engine: engine}
}

// ID returns the fusion's unique id.
func (f *Fusion) ID() uuid.UUID {
	return f.id
}

// Engine returns the engine the fusion compiles with.
func (f *Fusion) Engine() Engine {
	return f.engine
}

// Define opens the definition scope. Callers must Release it:
//
//	def, err := f.Define()
//	if err != nil { ... }
//	defer def.Release()
func (f *Fusion) Define() (*Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.defining:
		return nil, errors.Errorf("fusion %s: a definition is already open", f.id)
	case f.program != nil:
		return nil, errors.Errorf("fusion %s: already defined", f.id)
	}
	f.defining = true
	return &Definition{fusion: f}, nil
}

func (f *Fusion) endDefinition() {
	f.mu.Lock()
	f.defining = false
	f.mu.Unlock()
}

func (f *Fusion) commit(p *Program) {
	f.mu.Lock()
	f.program = p
	f.mu.Unlock()
}

// Program returns the committed program, or nil before a successful Finish.
func (f *Fusion) Program() *Program {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.program
}

// Execute compiles the program if needed and runs it on inputs.
func (f *Fusion) Execute(ctx context.Context, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	f.mu.Lock()
	p := f.program
	switch {
	case f.released:
		f.mu.Unlock()
		return nil, errors.Errorf("fusion %s: released", f.id)
	case p == nil:
		f.mu.Unlock()
		return nil, errors.Errorf("fusion %s: nothing defined", f.id)
	}
	if f.kernel == nil {
		if err := ctx.Err(); err != nil {
			f.mu.Unlock()
			return nil, err
		}
		k, err := f.engine.Compile(p)
		if err != nil {
			f.mu.Unlock()
			return nil, errors.Wrapf(err, "fusion %s: compile on %s", f.id, f.engine.Name())
		}
		f.kernel = k
	}
	k := f.kernel
	f.mu.Unlock()

	if err := CheckInputs(p, inputs); err != nil {
		return nil, err
	}
	return k.Execute(ctx, inputs)
}

// Release frees the compiled kernel. The fusion cannot be executed afterwards.
// Release is idempotent.
func (f *Fusion) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kernel != nil {
		f.kernel.Release()
		f.kernel = nil
	}
	f.released = true
}

// CheckInputs verifies inputs against the program's tensor descriptors.
func CheckInputs(p *Program, inputs []*tensor.RawTensor) error {
	if len(inputs) != len(p.Inputs) {
		return errors.Errorf("fusion: program takes %d inputs, got %d", len(p.Inputs), len(inputs))
	}
	for i, id := range p.Inputs {
		e := p.Exprs[id]
		in := inputs[i]
		if in == nil {
			return errors.Errorf("fusion: input #%d is nil", i)
		}
		dtype, err := DTypeOf(in.DType())
		if err != nil {
			return err
		}
		if dtype != e.DType {
			return errors.Errorf("fusion: input #%d has type %s, defined as %s", i, dtype, e.DType)
		}
		if !in.Shape().Equal(e.Shape) {
			return errors.Errorf("fusion: input #%d has shape %v, defined as %v", i, in.Shape(), e.Shape)
		}
		if !sameStride(in.Shape(), in.Strides(), e.Stride) {
			return errors.Errorf("fusion: input #%d has stride %v, defined as %v", i, in.Strides(), e.Stride)
		}
	}
	return nil
}

// sameStride compares strides, ignoring dimensions of size 1.
func sameStride(shape tensor.Shape, a, b []int) bool {
	for i := range shape {
		if shape[i] != 1 && a[i] != b[i] {
			return false
		}
	}
	return true
}

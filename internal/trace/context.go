package trace

import (
	"context"
	"fmt"

	"github.com/born-ml/prims/internal/prims"
	"github.com/born-ml/prims/internal/pytree"
	"github.com/born-ml/prims/internal/refs"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/google/uuid"
)

// Proxy stands for a tensor while tracing. It carries metadata only.
type Proxy struct {
	ctx  *Context
	ref  Ref
	meta tensor.Meta
}

// Meta returns the traced tensor's shape and dtype.
func (p *Proxy) Meta() tensor.Meta {
	return p.meta
}

// Ref returns what the proxy points at in the graph.
func (p *Proxy) Ref() Ref {
	return p.ref
}

// String renders the proxy, e.g. "%3:float32[2 3]".
func (p *Proxy) String() string {
	return fmt.Sprintf("%s:%s", p.ref, p.meta)
}

// Context is the interpreter context of one trace. Operations called through it
// are rewritten by the reference table and recorded as primitive nodes.
//
// A Context is only valid while Trace runs. Errors are sticky: after the first
// failure every call returns nil and Trace reports that first error.
type Context struct {
	graph    *Graph
	registry *prims.Registry
	table    *refs.Table
	err      error
	closed   bool
}

// Options selects the primitive registry and reference table used for tracing.
// Zero values use the defaults.
type Options struct {
	Registry *prims.Registry
	Table    *refs.Table
}

// Func is a function to trace. inputs has the structure of the traced arguments,
// with proxies in place of tensors.
type Func func(c *Context, inputs []any) (any, error)

// Err returns the first error recorded by the context.
func (c *Context) Err() error {
	return c.err
}

func (c *Context) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Call applies op to positional arguments. See CallKw.
func (c *Context) Call(op string, args ...any) any {
	return c.CallKw(op, args, nil)
}

// CallKw applies op to args and kwargs through its reference decomposition.
// The result is a *Proxy for tensor results, or a Go value when the call folded
// to a constant. It returns nil once the context has failed.
func (c *Context) CallKw(op string, args []any, kwargs map[string]any) any {
	if c.closed {
		c.setErr(fmt.Errorf("%s: %w", op, ErrContextClosed))
	}
	if c.err != nil {
		return nil
	}
	out, err := c.table.Call(c, op, args, kwargs)
	if err != nil {
		c.setErr(err)
		return nil
	}
	return out
}

// Emit records one primitive node. It implements refs.Emitter.
func (c *Context) Emit(prim string, args []any, kwargs map[string]any) (any, error) {
	if c.closed {
		return nil, fmt.Errorf("prims.%s: %w", prim, ErrContextClosed)
	}
	sym, ok := c.registry.Lookup(prim)
	if !ok {
		return nil, &refs.UnsupportedOperationError{Op: refs.PrimPrefix + prim}
	}
	if err := c.owns(args); err != nil {
		return nil, fmt.Errorf("%s: %w", sym, err)
	}
	if err := c.owns(kwargs); err != nil {
		return nil, fmt.Errorf("%s: %w", sym, err)
	}
	meta, err := sym.Meta(args, kwargs)
	if err != nil {
		return nil, err
	}

	recordedArgs, err := pytree.Map(args, toRef)
	if err != nil {
		return nil, err
	}
	var recordedKwargs map[string]any
	if len(kwargs) > 0 {
		m, err := pytree.Map(kwargs, toRef)
		if err != nil {
			return nil, err
		}
		recordedKwargs = m.(map[string]any)
	}

	c.graph.Nodes = append(c.graph.Nodes, Node{
		Target: sym,
		Args:   recordedArgs.([]any),
		Kwargs: recordedKwargs,
		Meta:   meta,
	})
	return &Proxy{ctx: c, ref: Ref{Kind: NodeRef, Index: len(c.graph.Nodes) - 1}, meta: meta}, nil
}

// owns rejects proxies recorded by a different trace.
func (c *Context) owns(tree any) error {
	leaves, _ := pytree.Flatten(tree)
	for _, leaf := range leaves {
		if p, ok := leaf.(*Proxy); ok && p.ctx != c {
			return fmt.Errorf("proxy %s belongs to another trace", p)
		}
	}
	return nil
}

func toRef(leaf any) (any, error) {
	if p, ok := leaf.(*Proxy); ok {
		return p.ref, nil
	}
	return leaf, nil
}

// Trace runs fn once over inputs and returns the recorded graph.
//
// inputs may nest []any and map[string]any. Every leaf must be a tensor, a Go
// number or nil; anything else fails with *ArgumentTypeError before fn runs.
// Tensor leaves reach fn as proxies. Scalars reach fn as their concrete values,
// so branching on them resolves during tracing.
func Trace(ctx context.Context, name string, fn Func, inputs []any, opts Options) (*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = prims.Default()
	}
	if opts.Table == nil {
		opts.Table = refs.Default()
	}

	leaves, spec := pytree.Flatten(inputs)
	g := &Graph{
		ID:        uuid.New(),
		Name:      name,
		Inputs:    make([]Placeholder, len(leaves)),
		InputSpec: spec,
	}
	c := &Context{graph: g, registry: opts.Registry, table: opts.Table}
	defer func() { c.closed = true }()

	traced := make([]any, len(leaves))
	for i, leaf := range leaves {
		ph, err := placeholder(i, leaf)
		if err != nil {
			return nil, err
		}
		g.Inputs[i] = ph
		traced[i] = leaf
		if ph.Kind == TensorInput {
			traced[i] = &Proxy{ctx: c, ref: Ref{Kind: InputRef, Index: i}, meta: ph.Meta}
		}
	}
	body, err := pytree.Unflatten(traced, spec)
	if err != nil {
		return nil, err
	}

	out, err := fn(c, body.([]any))
	if c.err != nil {
		return nil, c.err
	}
	if err != nil {
		return nil, err
	}

	if err := c.owns(out); err != nil {
		return nil, fmt.Errorf("trace %s: output: %w", name, err)
	}
	if g.Output, err = pytree.Map(out, outputLeaf); err != nil {
		return nil, fmt.Errorf("trace %s: %w", name, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func placeholder(i int, leaf any) (Placeholder, error) {
	if leaf == nil {
		return Placeholder{Kind: NoneInput}, nil
	}
	if _, ok := leaf.(*Proxy); ok {
		return Placeholder{}, fmt.Errorf("traced argument %d is a proxy from another trace", i)
	}
	if m, ok := tensor.MetaOf(leaf); ok {
		return Placeholder{Kind: TensorInput, Meta: tensor.Meta{Shape: m.Shape.Clone(), DType: m.DType}}, nil
	}
	if tensor.IsNumber(leaf) {
		return Placeholder{Kind: ScalarInput, Value: leaf}, nil
	}
	return Placeholder{}, &ArgumentTypeError{Index: i, Value: leaf}
}

// outputLeaf records a result leaf: proxies become refs; numbers and nil are literals.
func outputLeaf(leaf any) (any, error) {
	switch v := leaf.(type) {
	case *Proxy:
		return v.ref, nil
	case nil:
		return nil, nil
	}
	if tensor.IsNumber(leaf) {
		return leaf, nil
	}
	return nil, fmt.Errorf("output leaf of type %T was not produced by a traced operation", leaf)
}

package executor

import (
	"context"
	"log/slog"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/ctxlog"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/prims"
	"github.com/born-ml/prims/internal/refs"
	"github.com/born-ml/prims/internal/signature"
	"github.com/born-ml/prims/internal/trace"
)

// Body is the user function. Tensor arguments arrive as *trace.Proxy; operations
// are applied through c.
type Body func(c *trace.Context, args []any, kwargs map[string]any) (any, error)

// Function is a function that can be traced.
type Function struct {
	Name      string
	Signature signature.Signature
	Body      Body
}

// Traced is a function that traces itself on every call and runs the trace on an executor.
type Traced struct {
	fn Function
}

// MakeTraced wraps fn.
//
// Example:
//
//	add := executor.MakeTraced(executor.Function{
//		Name:      "add",
//		Signature: signature.MustNew(signature.Required("a"), signature.Required("b")),
//		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
//			return c.Call("add", args[0], args[1]), nil
//		},
//	})
//	sum, err := add.Call(ctx, []any{a, b}, nil, executor.WithExecutor("fusion"))
func MakeTraced(fn Function) *Traced {
	return &Traced{fn: fn}
}

// Name returns the function name.
func (t *Traced) Name() string {
	return t.fn.Name
}

// Signature returns the declared signature.
func (t *Traced) Signature() signature.Signature {
	return t.fn.Signature
}

type callOptions struct {
	executor string
	engine   fusion.Engine
	backend  *cpu.CPUBackend
	logger   *slog.Logger
	registry *prims.Registry
	table    *refs.Table
}

// Option configures a call.
type Option func(*callOptions)

// WithExecutor selects the executor by name. The default is "direct".
func WithExecutor(name string) Option {
	return func(o *callOptions) { o.executor = name }
}

// WithEngine selects the fusion engine.
func WithEngine(engine fusion.Engine) Option {
	return func(o *callOptions) { o.engine = engine }
}

// WithBackend selects the CPU backend of the direct executor.
func WithBackend(backend *cpu.CPUBackend) Option {
	return func(o *callOptions) { o.backend = backend }
}

// WithLogger attaches a logger to the call context.
func WithLogger(logger *slog.Logger) Option {
	return func(o *callOptions) { o.logger = logger }
}

// WithRegistry traces against a custom primitive registry.
func WithRegistry(registry *prims.Registry) Option {
	return func(o *callOptions) { o.registry = registry }
}

// WithTable traces against a custom reference table.
func WithTable(table *refs.Table) Option {
	return func(o *callOptions) { o.table = table }
}

func newCallOptions(opts []Option) *callOptions {
	o := &callOptions{executor: Direct}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Trace canonicalizes the call and records it without executing. The graph is
// traced over the bound argument list.
func (t *Traced) Trace(ctx context.Context, args []any, kwargs map[string]any, opts ...Option) (*trace.Graph, *signature.Bound, error) {
	o := newCallOptions(opts)
	if o.logger != nil {
		ctx = ctxlog.WithLogger(ctx, o.logger)
	}
	return t.trace(ctx, args, kwargs, o)
}

func (t *Traced) trace(ctx context.Context, args []any, kwargs map[string]any, o *callOptions) (*trace.Graph, *signature.Bound, error) {
	bound, err := t.fn.Signature.Canonicalize(args, kwargs)
	if err != nil {
		return nil, nil, err
	}
	body := func(c *trace.Context, inputs []any) (any, error) {
		return bound.Adapt(func(args []any, kwargs map[string]any) (any, error) {
			return t.fn.Body(c, args, kwargs)
		})(inputs)
	}
	g, err := trace.Trace(ctx, t.fn.Name, body, bound.Args, trace.Options{Registry: o.registry, Table: o.table})
	if err != nil {
		return nil, nil, err
	}
	ctxlog.FromContext(ctx).Debug("traced", "function", t.fn.Name, "graph", g.ID,
		"positional", bound.NumPositional, "keywords", bound.Keywords, "nodes", len(g.Nodes))
	return g, bound, nil
}

// Call canonicalizes args and kwargs against the signature, traces the body and
// runs the trace on the selected executor. An unknown executor fails before tracing.
func (t *Traced) Call(ctx context.Context, args []any, kwargs map[string]any, opts ...Option) (any, error) {
	o := newCallOptions(opts)
	if o.logger != nil {
		ctx = ctxlog.WithLogger(ctx, o.logger)
	}
	if _, err := Resolve(o.executor); err != nil {
		return nil, err
	}
	g, bound, err := t.trace(ctx, args, kwargs, o)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, g, bound.Args, nil, o.executor, Options{Engine: o.engine, Backend: o.backend})
}

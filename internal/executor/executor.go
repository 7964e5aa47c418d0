// Package executor runs traced graphs.
//
// Two executors are available. "direct" replays every primitive eagerly on the CPU
// backend. "fusion" lowers the whole graph into one fusion definition and runs it
// as a single kernel on a fusion engine. The names "aten" and "nvfuser" are
// accepted as aliases.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/backend/webgpu"
	"github.com/born-ml/prims/internal/ctxlog"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/pytree"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/born-ml/prims/internal/trace"
)

// Executor names.
const (
	Direct = "direct"
	Fusion = "fusion"
)

var aliases = map[string]string{
	Direct:    Direct,
	Fusion:    Fusion,
	"aten":    Direct,
	"nvfuser": Fusion,
}

// Names returns the accepted executor names, canonical names first.
func Names() []string {
	return []string{Direct, Fusion, "aten", "nvfuser"}
}

// Resolve maps an executor name or alias to its canonical name.
func Resolve(name string) (string, error) {
	if canonical, ok := aliases[name]; ok {
		return canonical, nil
	}
	return "", &InvalidExecutorError{Name: name, Valid: Names()}
}

// Options configures execution. Zero values use the defaults.
type Options struct {
	// Engine runs fused programs. Defaults to the shared WebGPU engine.
	Engine fusion.Engine
	// Backend runs primitives on the direct path. Defaults to a new CPU backend.
	Backend *cpu.CPUBackend
}

var defaultEngine = sync.OnceValue(func() fusion.Engine {
	return webgpu.NewEngine()
})

// DefaultEngine returns the process-wide WebGPU engine.
func DefaultEngine() fusion.Engine {
	return defaultEngine()
}

func (o Options) withDefaults() Options {
	if o.Engine == nil {
		o.Engine = defaultEngine()
	}
	if o.Backend == nil {
		o.Backend = cpu.New()
	}
	return o
}

// Inputs builds the input tree a graph is traced over and executed with:
// the positional arguments, followed by the keyword map when it is not empty.
func Inputs(args []any, kwargs map[string]any) []any {
	inputs := append([]any(nil), args...)
	if len(kwargs) > 0 {
		inputs = append(inputs, kwargs)
	}
	return inputs
}

// Execute runs g on args and kwargs with the named executor.
//
// The arguments must have the structure g was traced from. Tensor leaves must match
// the traced shapes and dtypes, and scalar leaves must equal the traced values since
// they were specialized into the graph. The result has the structure of the traced
// function's output.
func Execute(ctx context.Context, g *trace.Graph, args []any, kwargs map[string]any, name string, opts Options) (any, error) {
	canonical, err := Resolve(name)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	leaves, err := bindInputs(g, Inputs(args, kwargs))
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("executing graph", "graph", g.Name, "executor", canonical, "nodes", len(g.Nodes),
		"inputs", len(g.Inputs))

	switch canonical {
	case Fusion:
		return runFusion(ctx, g, leaves, opts.Engine)
	default:
		return runDirect(ctx, g, leaves, opts.Backend)
	}
}

// bindInputs flattens the call inputs and checks them against the graph placeholders.
func bindInputs(g *trace.Graph, inputs []any) ([]any, error) {
	leaves, spec := pytree.Flatten(inputs)
	if g.InputSpec != nil && spec.String() != g.InputSpec.String() {
		return nil, fmt.Errorf("graph %s: inputs %s do not match traced structure %s", g.Name, spec, g.InputSpec)
	}
	if len(leaves) != len(g.Inputs) {
		return nil, fmt.Errorf("graph %s: expected %d inputs, got %d", g.Name, len(g.Inputs), len(leaves))
	}
	for i, ph := range g.Inputs {
		leaf := leaves[i]
		switch ph.Kind {
		case trace.TensorInput:
			t, ok := leaf.(*tensor.RawTensor)
			if !ok {
				return nil, &trace.ArgumentTypeError{Index: i, Value: leaf}
			}
			if m := t.Meta(); m.DType != ph.Meta.DType || !m.Shape.Equal(ph.Meta.Shape) {
				return nil, fmt.Errorf("graph %s: input %d is %s, traced as %s", g.Name, i, m, ph.Meta)
			}
		case trace.ScalarInput:
			got, _, ok := tensor.Number(leaf)
			want, _, _ := tensor.Number(ph.Value)
			if !ok || got != want {
				return nil, fmt.Errorf("graph %s: input %d is %v, traced with %v", g.Name, i, leaf, ph.Value)
			}
		case trace.NoneInput:
			if leaf != nil {
				return nil, fmt.Errorf("graph %s: input %d is %v, traced as nil", g.Name, i, leaf)
			}
		}
	}
	return leaves, nil
}

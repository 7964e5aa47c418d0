package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/prims/internal/ctxlog"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/pytree"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/born-ml/prims/internal/trace"
)

// runFusion lowers the whole of g into one fusion definition and executes it once.
//
// Tensor inputs become fusion inputs in placeholder order. Scalar literals become
// constants the first time a node uses them. Nothing is compiled unless every node
// lowers and every output is a tensor.
func runFusion(ctx context.Context, g *trace.Graph, inputs []any, engine fusion.Engine) (any, error) {
	logger := ctxlog.FromContext(ctx)
	if !engine.Available() {
		return nil, &BackendUnavailableError{Engine: engine.Name()}
	}

	f := fusion.New(engine)
	defer f.Release()
	def, err := f.Define()
	if err != nil {
		return nil, err
	}
	defer def.Release()

	// Inputs.
	env := make([]any, len(inputs))
	var tensorArgs []*tensor.RawTensor
	for i, ph := range g.Inputs {
		if ph.Kind != trace.TensorInput {
			env[i] = inputs[i]
			continue
		}
		raw := inputs[i].(*tensor.RawTensor)
		dtype, err := fusion.DTypeOf(raw.DType())
		if err != nil {
			return nil, &LoweringError{Op: fmt.Sprintf("input %d", i), Reason: err.Error()}
		}
		if !engine.Supports(dtype) {
			return nil, &LoweringError{Op: fmt.Sprintf("input %d", i),
				Reason: fmt.Sprintf("engine %s does not support %s tensors", engine.Name(), dtype)}
		}
		t := def.DefineTensor(raw.Shape(), raw.Strides(), dtype)
		def.AddInput(t)
		env[i] = t
		tensorArgs = append(tensorArgs, raw)
	}
	if err := def.Err(); err != nil {
		return nil, err
	}

	// Constants are defined lazily, once per distinct value.
	constants := make(map[any]*fusion.Scalar)
	literal := func(v any) (any, error) {
		if !tensor.IsNumber(v) {
			return v, nil
		}
		if s, ok := constants[v]; ok {
			return s, nil
		}
		s := def.DefineConstant(v)
		if err := def.Err(); err != nil {
			return nil, err
		}
		constants[v] = s
		return s, nil
	}

	// Nodes.
	interp := &trace.Interpreter{
		Graph:   g,
		Literal: literal,
		CallNode: func(i int, n *trace.Node, args []any, kwargs map[string]any) (any, error) {
			if n.Target.Lower == nil {
				return nil, &LoweringError{Op: n.Target.String(), Reason: "no lowering rule"}
			}
			h, err := n.Target.Lower(def, args, kwargs)
			if err != nil {
				return nil, fmt.Errorf("node %d (%s): %w", i, n.Target, err)
			}
			return h, nil
		},
	}
	out, err := interp.Run(ctx, env)
	if err != nil {
		return nil, err
	}

	// Outputs.
	flat, spec := pytree.Flatten(out)
	for i, leaf := range flat {
		t, ok := leaf.(*fusion.Tensor)
		if !ok || t == nil {
			return nil, &LoweringError{Op: "output", Reason: fmt.Sprintf("leaf %d is %T, not a tensor", i, leaf)}
		}
		if !engine.Supports(t.DType()) {
			return nil, &LoweringError{Op: "output",
				Reason: fmt.Sprintf("leaf %d: engine %s does not support %s tensors", i, engine.Name(), t.DType())}
		}
		def.AddOutput(t)
	}
	if _, err := def.Finish(); err != nil {
		return nil, err
	}
	logger.Debug("fusion defined", "graph", g.Name, "fusion", f.ID(), "inputs", len(tensorArgs),
		"constants", len(constants), "outputs", len(flat))

	results, err := f.Execute(ctx, tensorArgs)
	if errors.Is(err, fusion.ErrUnsupportedType) {
		return nil, &LoweringError{Op: "compile", Reason: err.Error()}
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("fusion executed", "graph", g.Name, "engine", engine.Name())

	leaves := make([]any, len(results))
	for i, r := range results {
		leaves[i] = r
	}
	return pytree.Unflatten(leaves, spec)
}

package trace

import (
	"context"
	"fmt"

	"github.com/born-ml/prims/internal/pytree"
)

// Interpreter replays a graph. Executors supply what a node means.
type Interpreter struct {
	Graph *Graph

	// CallNode evaluates node i on its resolved arguments.
	CallNode func(i int, n *Node, args []any, kwargs map[string]any) (any, error)

	// Literal, when set, maps each non-Ref leaf of node arguments before the call.
	Literal func(v any) (any, error)
}

// Run replays every node in recorded order. inputs holds one value per graph
// placeholder. The graph output tree is returned with Refs resolved and literals
// left as recorded.
func (in *Interpreter) Run(ctx context.Context, inputs []any) (any, error) {
	g := in.Graph
	if len(inputs) != len(g.Inputs) {
		return nil, fmt.Errorf("graph %s: expected %d inputs, got %d", g.Name, len(g.Inputs), len(inputs))
	}
	env := make([]any, len(g.Nodes))

	lookup := func(r Ref) (any, error) {
		if r.Kind == InputRef {
			return inputs[r.Index], nil
		}
		if r.Index >= len(env) || env[r.Index] == nil {
			return nil, fmt.Errorf("graph %s: ref %s used before it was computed", g.Name, r)
		}
		return env[r.Index], nil
	}
	resolve := func(leaf any) (any, error) {
		if r, ok := leaf.(Ref); ok {
			return lookup(r)
		}
		if in.Literal != nil {
			return in.Literal(leaf)
		}
		return leaf, nil
	}

	for i := range g.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := &g.Nodes[i]
		args, err := pytree.Map(n.Args, resolve)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, n.Target, err)
		}
		var kwargs map[string]any
		if len(n.Kwargs) > 0 {
			m, err := pytree.Map(n.Kwargs, resolve)
			if err != nil {
				return nil, fmt.Errorf("node %d (%s): %w", i, n.Target, err)
			}
			kwargs = m.(map[string]any)
		}
		out, err := in.CallNode(i, n, args.([]any), kwargs)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, fmt.Errorf("node %d (%s) produced no value", i, n.Target)
		}
		env[i] = out
	}

	return pytree.Map(g.Output, func(leaf any) (any, error) {
		if r, ok := leaf.(Ref); ok {
			return lookup(r)
		}
		return leaf, nil
	})
}

package executor

import (
	"context"
	"fmt"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/trace"
)

// runDirect replays g node by node with each primitive's CPU implementation.
func runDirect(ctx context.Context, g *trace.Graph, inputs []any, backend *cpu.CPUBackend) (any, error) {
	in := &trace.Interpreter{
		Graph: g,
		CallNode: func(i int, n *trace.Node, args []any, kwargs map[string]any) (any, error) {
			out, err := n.Target.Impl(backend, args, kwargs)
			if err != nil {
				return nil, fmt.Errorf("node %d (%s): %w", i, n.Target, err)
			}
			return out, nil
		},
	}
	return in.Run(ctx, inputs)
}

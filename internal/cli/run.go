package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/born-ml/prims/internal/ctxlog"
	"github.com/born-ml/prims/internal/executor"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/program"
	"github.com/born-ml/prims/internal/tensor"
)

// Run loads the program named by cfg, calls its run block and writes the result to out.
func Run(ctx context.Context, cfg *Config, out io.Writer) error {
	logger := ctxlog.FromContext(ctx)

	p, err := program.Load(ctx, cfg.ProgramPath)
	if err != nil {
		return err
	}
	if p.Run == nil {
		return errors.New("program has no run block")
	}
	fn := p.Functions[p.Run.Function]

	name := cfg.Executor
	if name == "" {
		name = p.Run.Executor
	}
	if name == "" {
		name = executor.Direct
	}
	opts := []executor.Option{executor.WithExecutor(name), executor.WithLogger(logger)}
	if cfg.Engine == "host" {
		opts = append(opts, executor.WithEngine(fusion.NewHostEngine()))
	}

	if cfg.PrintGraph {
		g, _, err := fn.Trace(ctx, p.Run.Args, p.Run.Kwargs, opts...)
		if err != nil {
			return err
		}
		fmt.Fprint(out, g)
	}

	logger.Info("Running function.", "function", fn.Name(), "executor", name)
	result, err := fn.Call(ctx, p.Run.Args, p.Run.Kwargs, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, Format(result))
	return nil
}

// Format renders a result tree: tensors as dtype, shape and values; lists and maps recursively.
func Format(v any) string {
	var sb strings.Builder
	format(&sb, v)
	return sb.String()
}

func format(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case *tensor.RawTensor:
		fmt.Fprintf(sb, "%s%v %v", x.DType(), []int(x.Shape()), x.Float64s())
	case []any:
		sb.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "%s: ", k)
			format(sb, x[k])
		}
		sb.WriteByte('}')
	case nil:
		sb.WriteString("nil")
	default:
		fmt.Fprint(sb, x)
	}
}

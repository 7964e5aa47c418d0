package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/born-ml/prims/internal/ctxlog"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/refs"
	"github.com/born-ml/prims/internal/signature"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/born-ml/prims/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// recordingEngine runs on the host and remembers every program it compiles.
type recordingEngine struct {
	fusion.HostEngine
	unavailable bool
	programs    []*fusion.Program
}

func (e *recordingEngine) Name() string {
	return "recording"
}

func (e *recordingEngine) Available() bool {
	return !e.unavailable
}

func (e *recordingEngine) Compile(p *fusion.Program) (fusion.Kernel, error) {
	e.programs = append(e.programs, p)
	return e.HostEngine.Compile(p)
}

// floatOnlyEngine accepts Float program inputs and outputs only.
type floatOnlyEngine struct {
	recordingEngine
}

func (e *floatOnlyEngine) Supports(dtype fusion.DType) bool {
	return dtype == fusion.Float
}

// rejectingEngine fails every compile with an unsupported element type.
type rejectingEngine struct {
	recordingEngine
}

func (e *rejectingEngine) Compile(p *fusion.Program) (fusion.Kernel, error) {
	e.programs = append(e.programs, p)
	return nil, fmt.Errorf("rejecting: %%0: %w", fusion.ErrUnsupportedType)
}

func mustTensor(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32s(data, shape)
	require.NoError(t, err)
	return r
}

func values(t *testing.T, v any) []float64 {
	t.Helper()
	r, ok := v.(*tensor.RawTensor)
	require.True(t, ok, "expected a tensor, got %T", v)
	return r.Float64s()
}

func binaryFn(op string) Function {
	return Function{
		Name:      op,
		Signature: signature.MustNew(signature.Required("a"), signature.Required("b")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			return c.Call(op, args[0], args[1]), nil
		},
	}
}

func TestAdd_AllExecutors(t *testing.T) {
	ctx := context.Background()
	add := MakeTraced(binaryFn("add"))
	a := mustTensor(t, []float32{1, 2, 3, 4}, 2, 2)
	b := mustTensor(t, []float32{10, 20, 30, 40}, 2, 2)
	want := []float64{11, 22, 33, 44}

	t.Run("direct", func(t *testing.T) {
		out, err := add.Call(ctx, []any{a, b}, nil)
		require.NoError(t, err)
		assert.Equal(t, want, values(t, out))
		assert.Equal(t, tensor.CPU, out.(*tensor.RawTensor).Device())
	})

	t.Run("fusion", func(t *testing.T) {
		engine := &recordingEngine{}
		out, err := add.Call(ctx, []any{a, b}, nil, WithExecutor(Fusion), WithEngine(engine))
		require.NoError(t, err)
		assert.Equal(t, want, values(t, out))
		require.Len(t, engine.programs, 1)
		assert.Len(t, engine.programs[0].Inputs, 2)
	})

	t.Run("fusion without accelerator", func(t *testing.T) {
		engine := &recordingEngine{unavailable: true}
		_, err := add.Call(ctx, []any{a, b}, nil, WithExecutor(Fusion), WithEngine(engine))
		var unavailable *BackendUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, "recording", unavailable.Engine)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.Empty(t, engine.programs)
	})
}

func TestDefaultsBecomeConstants(t *testing.T) {
	ctx := context.Background()
	scale := MakeTraced(Function{
		Name:      "scale",
		Signature: signature.MustNew(signature.Required("a"), signature.Optional("c", 2.0)),
		Body: func(c *trace.Context, args []any, kwargs map[string]any) (any, error) {
			return c.Call("mul", args[0], kwargs["c"]), nil
		},
	})
	a := mustTensor(t, []float32{1, 2, 3}, 3)

	g, bound, err := scale.Trace(ctx, []any{a}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{a, 2.0}, bound.Args)
	require.Len(t, g.Inputs, 2)
	assert.Equal(t, trace.ScalarInput, g.Inputs[1].Kind)

	engine := &recordingEngine{}
	out, err := scale.Call(ctx, []any{a}, nil, WithExecutor(Fusion), WithEngine(engine))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, values(t, out))

	require.Len(t, engine.programs, 1)
	p := engine.programs[0]
	assert.Len(t, p.Inputs, 1, "the scalar must not become a fusion input")
	assert.Contains(t, p.String(), "constant 2")

	out, err = scale.Call(ctx, []any{a}, map[string]any{"c": 0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1, 1.5}, values(t, out))
}

func TestInvalidExecutor(t *testing.T) {
	calls := 0
	fn := MakeTraced(Function{
		Name:      "count",
		Signature: signature.MustNew(signature.Required("a")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			calls++
			return c.Call("neg", args[0]), nil
		},
	})
	a := mustTensor(t, []float32{1}, 1)

	for _, name := range []string{"", "eager", "Direct", "cuda"} {
		t.Run(name, func(t *testing.T) {
			_, err := fn.Call(context.Background(), []any{a}, nil, WithExecutor(name))
			var invalid *InvalidExecutorError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, name, invalid.Name)
			assert.Equal(t, Names(), invalid.Valid)
			assert.ErrorIs(t, err, ErrInvalidExecutor)
		})
	}
	assert.Zero(t, calls)

	g, _, err := fn.Trace(context.Background(), []any{a}, nil)
	require.NoError(t, err)
	engine := &recordingEngine{}
	_, err = Execute(context.Background(), g, []any{a}, nil, "bogus", Options{Engine: engine})
	assert.ErrorIs(t, err, ErrInvalidExecutor)
	assert.Empty(t, engine.programs)
}

func TestAliases(t *testing.T) {
	for name, want := range map[string]string{
		"direct": Direct, "aten": Direct, "fusion": Fusion, "nvfuser": Fusion,
	} {
		got, err := Resolve(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	sub := MakeTraced(binaryFn("sub"))
	a := mustTensor(t, []float32{5, 6}, 2)
	b := mustTensor(t, []float32{1, 2}, 2)
	for _, name := range []string{"aten", "nvfuser"} {
		out, err := sub.Call(context.Background(), []any{a, b}, nil,
			WithExecutor(name), WithEngine(&recordingEngine{}))
		require.NoError(t, err, name)
		assert.Equal(t, []float64{4, 4}, values(t, out), name)
	}
}

func TestFusion_UnsupportedDTypes(t *testing.T) {
	add := MakeTraced(binaryFn("add"))
	toDouble := MakeTraced(Function{
		Name:      "to_double",
		Signature: signature.MustNew(signature.Required("a")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			return c.Call("to", args[0], "float64"), nil
		},
	})
	x32 := mustTensor(t, []float32{1, 2}, 2)
	x64, err := tensor.FromFloat64s([]float64{1, 2}, tensor.Shape{2})
	require.NoError(t, err)

	tests := []struct {
		name string
		fn   *Traced
		args []any
		op   string
	}{
		{"DoubleInput", add, []any{x64, x64}, "input 0"},
		{"DoubleOutput", toDouble, []any{x32}, "output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &floatOnlyEngine{}
			_, err := tt.fn.Call(context.Background(), tt.args, nil, WithExecutor(Fusion), WithEngine(engine))
			var lowering *LoweringError
			require.ErrorAs(t, err, &lowering)
			assert.Equal(t, tt.op, lowering.Op)
			assert.ErrorIs(t, err, ErrLowering)
			assert.Empty(t, engine.programs, "nothing is compiled")

			// The direct path is not limited by the engine.
			_, err = tt.fn.Call(context.Background(), tt.args, nil)
			require.NoError(t, err)
		})
	}

	// Float tensors still fuse on the same engine.
	engine := &floatOnlyEngine{}
	out, err := add.Call(context.Background(), []any{x32, x32}, nil, WithExecutor(Fusion), WithEngine(engine))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, values(t, out))
	assert.Len(t, engine.programs, 1)
}

func TestFusion_CompileRejectsType(t *testing.T) {
	add := MakeTraced(binaryFn("add"))
	x := mustTensor(t, []float32{1, 2}, 2)

	engine := &rejectingEngine{}
	_, err := add.Call(context.Background(), []any{x, x}, nil, WithExecutor(Fusion), WithEngine(engine))
	var lowering *LoweringError
	require.ErrorAs(t, err, &lowering)
	assert.Equal(t, "compile", lowering.Op)
	assert.ErrorIs(t, err, ErrLowering)
	assert.Len(t, engine.programs, 1)
}

func TestFusion_NonTensorOutput(t *testing.T) {
	fn := MakeTraced(Function{
		Name:      "pair",
		Signature: signature.MustNew(signature.Required("a")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			return []any{c.Call("abs", args[0]), 3}, nil
		},
	})
	a := mustTensor(t, []float32{-1, 2}, 2)

	out, err := fn.Call(context.Background(), []any{a}, nil)
	require.NoError(t, err)
	pair := out.([]any)
	assert.Equal(t, []float64{1, 2}, values(t, pair[0]))
	assert.Equal(t, 3, pair[1])

	engine := &recordingEngine{}
	_, err = fn.Call(context.Background(), []any{a}, nil, WithExecutor(Fusion), WithEngine(engine))
	var lowering *LoweringError
	require.ErrorAs(t, err, &lowering)
	assert.Equal(t, "output", lowering.Op)
	assert.Empty(t, engine.programs, "nothing may be compiled")
}

func TestFusion_MissingLowering(t *testing.T) {
	// add lowers, sum does not, so lowering stops halfway through the graph.
	total := MakeTraced(Function{
		Name:      "total",
		Signature: signature.MustNew(signature.Required("a")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			doubled := c.Call("add", args[0], args[0])
			return c.Call("mul", c.Call("sum", doubled), 2.0), nil
		},
	})
	a := mustTensor(t, []float32{1, 2, 3, 4}, 2, 2)

	out, err := total.Call(context.Background(), []any{a}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{40}, values(t, out))

	engine := &recordingEngine{}
	_, err = total.Call(context.Background(), []any{a}, nil, WithExecutor(Fusion), WithEngine(engine))
	var lowering *LoweringError
	require.ErrorAs(t, err, &lowering)
	assert.Equal(t, "prims.sum", lowering.Op)
	assert.ErrorIs(t, err, ErrLowering)
	assert.Empty(t, engine.programs, "nothing is compiled when lowering fails")

	// The failed definition leaves nothing behind for the next call on the same engine.
	add := MakeTraced(binaryFn("add"))
	b := mustTensor(t, []float32{1, 1, 1, 1}, 2, 2)
	out, err = add.Call(context.Background(), []any{a, b}, nil, WithExecutor(Fusion), WithEngine(engine))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4, 5}, values(t, out))
	require.Len(t, engine.programs, 1)
	assert.Len(t, engine.programs[0].Inputs, 2)
	assert.Len(t, engine.programs[0].Outputs, 1)
}

func TestDirectAndFusionAgree(t *testing.T) {
	// sigmoid(2*a + b) - clamp(a, max=0.5), with a transposed input and b broadcast over rows.
	fn := MakeTraced(Function{
		Name: "mix",
		Signature: signature.MustNew(
			signature.Required("a"),
			signature.Required("b"),
			signature.Param{Name: "scale", Kind: signature.KeywordOnly, HasDefault: true, Default: 2.0},
		),
		Body: func(c *trace.Context, args []any, kwargs map[string]any) (any, error) {
			a, b := args[0], args[1]
			x := c.Call("sigmoid", c.Call("add", c.Call("mul", a, kwargs["scale"]), b))
			y := c.CallKw("clamp", []any{a}, map[string]any{"max": 0.5})
			return map[string]any{
				"mix":   c.Call("sub", x, y),
				"inner": []any{c.Call("tanh", a), c.Call("where", c.Call("gt", a, 0), a, 0.0)},
			}, nil
		},
	})

	base := mustTensor(t, []float32{-1, 0.25, 2, -0.5, 1.5, 3}, 3, 2)
	a, err := base.Permute(1, 0)
	require.NoError(t, err)
	b := mustTensor(t, []float32{0.1, -0.2, 0.3}, 3)

	for _, kwargs := range []map[string]any{nil, {"scale": -0.75}} {
		direct, err := fn.Call(context.Background(), []any{a, b}, kwargs)
		require.NoError(t, err)
		fused, err := fn.Call(context.Background(), []any{a, b}, kwargs,
			WithExecutor(Fusion), WithEngine(&recordingEngine{}))
		require.NoError(t, err)

		d, f := direct.(map[string]any), fused.(map[string]any)
		assert.True(t, floats.EqualApprox(values(t, d["mix"]), values(t, f["mix"]), 1e-6))
		dInner, fInner := d["inner"].([]any), f["inner"].([]any)
		require.Len(t, fInner, 2)
		for i := range dInner {
			assert.True(t, floats.EqualApprox(values(t, dInner[i]), values(t, fInner[i]), 1e-6))
		}
	}
}

func TestLargeIntegersExact(t *testing.T) {
	const big = int64(1)<<53 + 1
	ctx := context.Background()
	x, err := tensor.FromInt64s([]int64{big, 1}, tensor.Shape{2})
	require.NoError(t, err)
	zero, err := tensor.FromInt64s([]int64{0, 0}, tensor.Shape{2})
	require.NoError(t, err)

	add := MakeTraced(binaryFn("add"))
	t.Run("direct", func(t *testing.T) {
		out, err := add.Call(ctx, []any{x, zero}, nil)
		require.NoError(t, err)
		assert.Equal(t, []int64{big, 1}, out.(*tensor.RawTensor).AsInt64())
	})
	t.Run("fusion", func(t *testing.T) {
		engine := &recordingEngine{}
		out, err := add.Call(ctx, []any{x, zero}, nil, WithExecutor(Fusion), WithEngine(engine))
		require.NoError(t, err)
		assert.Equal(t, []int64{big, 1}, out.(*tensor.RawTensor).AsInt64())
		require.Len(t, engine.programs, 1)
	})
	t.Run("fusion with scalar", func(t *testing.T) {
		out, err := add.Call(ctx, []any{x, 2}, nil, WithExecutor(Fusion), WithEngine(&recordingEngine{}))
		require.NoError(t, err)
		assert.Equal(t, []int64{big + 2, 3}, out.(*tensor.RawTensor).AsInt64())
	})

	sum := MakeTraced(Function{
		Name:      "sum",
		Signature: signature.MustNew(signature.Required("x")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			return c.Call("sum", args[0]), nil
		},
	})
	out, err := sum.Call(ctx, []any{x}, nil)
	require.NoError(t, err)
	assert.Equal(t, big+1, out.(*tensor.RawTensor).Int64At(0))
}

func TestNestedTensorArguments(t *testing.T) {
	fn := MakeTraced(Function{
		Name:      "pairsum",
		Signature: signature.MustNew(signature.Required("pair")),
		Body: func(c *trace.Context, args []any, kwargs map[string]any) (any, error) {
			var pair []any
			if len(args) > 0 {
				pair = args[0].([]any)
			} else {
				pair = kwargs["pair"].([]any)
			}
			return c.Call("add", pair[0], pair[1]), nil
		},
	})
	a := mustTensor(t, []float32{1, 2}, 2)
	b := mustTensor(t, []float32{3, 4}, 2)

	tests := []struct {
		name   string
		args   []any
		kwargs map[string]any
	}{
		{"positional", []any{[]any{a, b}}, nil},
		{"keyword", nil, map[string]any{"pair": []any{a, b}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &recordingEngine{}
			out, err := fn.Call(context.Background(), tt.args, tt.kwargs,
				WithExecutor(Fusion), WithEngine(engine))
			require.NoError(t, err)
			assert.Equal(t, []float64{4, 6}, values(t, out))
			require.Len(t, engine.programs, 1)
			assert.Len(t, engine.programs[0].Inputs, 2)

			direct, err := fn.Call(context.Background(), tt.args, tt.kwargs)
			require.NoError(t, err)
			assert.Equal(t, []float64{4, 6}, values(t, direct))
		})
	}
}

func TestNestedTensorKeywordOnly(t *testing.T) {
	sig := signature.MustNew(
		signature.Required("x"),
		signature.Param{Name: "extra", Kind: signature.KeywordOnly, Default: map[string]any{}, HasDefault: true},
	)
	fn := MakeTraced(Function{
		Name:      "shift",
		Signature: sig,
		Body: func(c *trace.Context, args []any, kwargs map[string]any) (any, error) {
			extra := kwargs["extra"].(map[string]any)
			return c.Call("add", args[0], extra["bias"]), nil
		},
	})
	x := mustTensor(t, []float32{1, 2}, 2)
	bias := mustTensor(t, []float32{10, 20}, 2)

	engine := &recordingEngine{}
	out, err := fn.Call(context.Background(), []any{x}, map[string]any{"extra": map[string]any{"bias": bias}},
		WithExecutor(Fusion), WithEngine(engine))
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22}, values(t, out))
	require.Len(t, engine.programs, 1)
	assert.Len(t, engine.programs[0].Inputs, 2)
}

func TestTraceErrorsPropagate(t *testing.T) {
	fn := MakeTraced(binaryFn("add"))
	a := mustTensor(t, []float32{1}, 1)

	_, err := fn.Call(context.Background(), []any{a}, nil)
	assert.ErrorIs(t, err, signature.ErrMissingParameter)

	_, err = fn.Call(context.Background(), []any{a, "two"}, nil)
	assert.ErrorIs(t, err, trace.ErrInvalidArgumentType)

	unknown := MakeTraced(Function{
		Name:      "erf",
		Signature: signature.MustNew(signature.Required("a")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			return c.Call("erf", args[0]), nil
		},
	})
	_, err = unknown.Call(context.Background(), []any{a}, nil)
	assert.ErrorIs(t, err, refs.ErrUnsupportedOperation)
}

func TestExecute_InputMismatch(t *testing.T) {
	fn := MakeTraced(Function{
		Name:      "scaled",
		Signature: signature.MustNew(signature.Required("a"), signature.Required("k")),
		Body: func(c *trace.Context, args []any, _ map[string]any) (any, error) {
			return c.Call("mul", args[0], args[1]), nil
		},
	})
	a := mustTensor(t, []float32{1, 2}, 2)
	g, _, err := fn.Trace(context.Background(), []any{a, 3}, nil)
	require.NoError(t, err)

	out, err := Execute(context.Background(), g, []any{a, 3}, nil, Direct, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6}, values(t, out))

	tests := []struct {
		name string
		args []any
	}{
		{"arity", []any{a}},
		{"shape", []any{mustTensor(t, []float32{1, 2, 3}, 3), 3}},
		{"respecialized scalar", []any{a, 4}},
		{"scalar for tensor", []any{1.0, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Execute(context.Background(), g, tt.args, nil, Direct, Options{})
			assert.Error(t, err)
		})
	}
}

func TestExecute_Canceled(t *testing.T) {
	fn := MakeTraced(binaryFn("mul"))
	a := mustTensor(t, []float32{1, 2}, 2)
	g, _, err := fn.Trace(context.Background(), []any{a, a}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, name := range []string{Direct, Fusion} {
		engine := &recordingEngine{}
		_, err := Execute(ctx, g, []any{a, a}, nil, name, Options{Engine: engine})
		assert.True(t, errors.Is(err, context.Canceled), name)
		assert.Empty(t, engine.programs)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := ctxlog.New("debug", "text", &buf)
	fn := MakeTraced(binaryFn("add"))
	a := mustTensor(t, []float32{1}, 1)

	_, err := fn.Call(context.Background(), []any{a, 1.5}, nil,
		WithExecutor(Fusion), WithEngine(&recordingEngine{}), WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "executor=fusion")
	assert.Contains(t, buf.String(), "constants=1")
	assert.Contains(t, buf.String(), "engine=recording")
}

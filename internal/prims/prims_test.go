package prims

import (
	"context"
	"testing"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	essential := []string{
		"add", "sub", "mul", "div", "pow", "maximum", "minimum",
		"eq", "lt", "neg", "exp", "tanh", "where",
		"broadcast_in_dim", "convert_element_type", "sum", "reshape",
	}
	for _, name := range essential {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("Expected primitive %s to be registered", name)
		}
	}

	if _, ok := r.Lookup("matmul"); ok {
		t.Error("Expected unknown primitive to not be found")
	}
	assert.IsIncreasing(t, r.Names())
	assert.Same(t, Default(), Default())
}

func TestRegistry_LoweringCoverage(t *testing.T) {
	r := Default()
	for _, name := range r.Names() {
		s, _ := r.Lookup(name)
		switch name {
		case "sum", "reshape":
			assert.Nil(t, s.Lower, name)
		default:
			assert.NotNil(t, s.Lower, name)
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	custom := &Symbol{
		Name: "identity",
		Impl: func(_ *cpu.CPUBackend, args []any, _ map[string]any) (any, error) { return args[0], nil },
		Meta: func(args []any, _ map[string]any) (tensor.Meta, error) { return tensorMeta("identity", args[0]) },
	}
	require.NoError(t, r.Register(custom))
	got, ok := r.Lookup("identity")
	require.True(t, ok)
	assert.Equal(t, "prims.identity", got.String())

	assert.ErrorContains(t, r.Register(custom), "already registered")
	assert.Error(t, r.Register(&Symbol{Name: "incomplete"}))
}

func TestBinaryMeta(t *testing.T) {
	f32 := tensor.Meta{Shape: tensor.Shape{2, 3}, DType: tensor.Float32}
	other, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)

	m, err := BinaryMeta(cpu.OpAdd, other, 2.5)
	require.NoError(t, err)
	assert.Equal(t, f32, m)

	m, err = BinaryMeta(cpu.OpLt, 1, other)
	require.NoError(t, err)
	assert.Equal(t, tensor.Bool, m.DType)

	wide, _ := tensor.NewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	_, err = BinaryMeta(cpu.OpMul, other, wide)
	assert.ErrorContains(t, err, "shape mismatch")

	_, err = BinaryMeta(cpu.OpMul, 1, 2)
	assert.ErrorContains(t, err, "at least one operand")
}

func TestShapeMeta(t *testing.T) {
	r := Default()
	x, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Int64, tensor.CPU)

	tests := []struct {
		name string
		args []any
		want tensor.Meta
		msg  string
	}{
		{"broadcast_in_dim", []any{x, []int{4, 2, 3}, []int{1, 2}}, tensor.Meta{Shape: tensor.Shape{4, 2, 3}, DType: tensor.Int64}, ""},
		{"broadcast_in_dim", []any{x, []int{2, 4}, []int{0, 1}}, tensor.Meta{}, "cannot broadcast"},
		{"convert_element_type", []any{x, tensor.Float16}, tensor.Meta{Shape: tensor.Shape{2, 3}, DType: tensor.Float16}, ""},
		{"convert_element_type", []any{x, "float16"}, tensor.Meta{}, "must be a tensor.DataType"},
		{"sum", []any{x, []int{0}}, tensor.Meta{Shape: tensor.Shape{3}, DType: tensor.Int64}, ""},
		{"reshape", []any{x, []int{3, 2}}, tensor.Meta{Shape: tensor.Shape{3, 2}, DType: tensor.Int64}, ""},
		{"reshape", []any{x, []int{5}}, tensor.Meta{}, "cannot reshape"},
		{"exp", []any{x}, tensor.Meta{}, "floating point required"},
		{"where", []any{x, 1, 2}, tensor.Meta{}, "predicate must be bool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := r.Lookup(tt.name)
			require.True(t, ok)
			got, err := s.Meta(tt.args, nil)
			if tt.msg != "" {
				assert.ErrorContains(t, err, tt.msg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestDirectAndLoweringAgree runs each lowerable primitive both ways on the same input.
func TestDirectAndLoweringAgree(t *testing.T) {
	r := Default()
	backend := cpu.New()
	x, _ := tensor.FromFloat32s([]float32{0.5, 1, 2, 4}, tensor.Shape{4})

	for _, name := range []string{"neg", "abs", "exp", "log", "sqrt", "rsqrt", "sin", "cos", "tanh", "reciprocal"} {
		t.Run(name, func(t *testing.T) {
			s, _ := r.Lookup(name)
			direct, err := s.Impl(backend, []any{x}, nil)
			require.NoError(t, err)

			f := fusion.New(fusion.NewHostEngine())
			def, err := f.Define()
			require.NoError(t, err)
			defer def.Release()
			in := def.DefineTensor(x.Shape(), x.Strides(), fusion.Float)
			def.AddInput(in)
			h, err := s.Lower(def, []any{in}, nil)
			require.NoError(t, err)
			def.AddOutput(h.(*fusion.Tensor))
			_, err = def.Finish()
			require.NoError(t, err)

			outs, err := f.Execute(context.Background(), []*tensor.RawTensor{x})
			require.NoError(t, err)
			assert.InDeltaSlice(t, direct.(*tensor.RawTensor).AsFloat32(), outs[0].AsFloat32(), 1e-6)
		})
	}
}

func TestLowering_RejectsRawArguments(t *testing.T) {
	s, _ := Default().Lookup("add")
	f := fusion.New(fusion.NewHostEngine())
	def, err := f.Define()
	require.NoError(t, err)
	defer def.Release()

	_, err = s.Lower(def, []any{1.0, 2.0}, nil)
	assert.ErrorContains(t, err, "expected a fusion value")
}

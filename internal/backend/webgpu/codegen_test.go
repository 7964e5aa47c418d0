package webgpu

import (
	"context"
	"errors"
	"math"
	"runtime"
	"strings"
	"testing"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// record builds a program on the host engine so codegen can be tested without a device.
func record(t *testing.T, body func(def *fusion.Definition)) *fusion.Program {
	t.Helper()
	def, err := fusion.New(fusion.NewHostEngine()).Define()
	require.NoError(t, err)
	defer def.Release()
	body(def)
	p, err := def.Finish()
	require.NoError(t, err)
	return p
}

func TestGenerate_ScaleAdd(t *testing.T) {
	p := record(t, func(def *fusion.Definition) {
		a := def.DefineTensor(tensor.Shape{2, 3}, []int{3, 1}, fusion.Float)
		def.AddInput(a)
		b := def.DefineTensor(tensor.Shape{3}, []int{1}, fusion.Float)
		def.AddInput(b)
		bb := def.BroadcastInDim(b, tensor.Shape{2, 3}, []int{1})
		def.AddOutput(def.Binary(cpu.OpAdd, def.Binary(cpu.OpMul, a, def.DefineConstant(2)), bb))
	})

	s, err := Generate(p)
	require.NoError(t, err)
	assert.Equal(t, 6, s.Elements)
	assert.Equal(t, uint32(1), s.Workgroups())

	code := s.Code
	assert.Contains(t, code, "@group(0) @binding(0) var<storage, read> in0: array<f32>;")
	assert.Contains(t, code, "@group(0) @binding(1) var<storage, read> in1: array<f32>;")
	assert.Contains(t, code, "@group(0) @binding(2) var<storage, read_write> out0: array<f32>;")
	assert.Contains(t, code, "return 2.0;")
	assert.Contains(t, code, "return a * b;")
	assert.Contains(t, code, "return a + b;")
	assert.Contains(t, code, "@compute @workgroup_size(256)")
	assert.Contains(t, code, "_ = in1[0];")
	assert.Contains(t, code, "if (i < 6u) {")
	// The broadcast reads the source at the coordinate of output dimension 1.
	assert.Contains(t, code, "c1 * 1u")
	assert.Equal(t, len(p.Exprs), strings.Count(code, "-> f32 {"))
}

func TestGenerate_StridedInput(t *testing.T) {
	p := record(t, func(def *fusion.Definition) {
		a := def.DefineTensor(tensor.Shape{3, 2}, []int{1, 3}, fusion.Float)
		def.AddInput(a)
		def.AddOutput(def.Unary(cpu.OpRsqrt, a))
	})
	s, err := Generate(p)
	require.NoError(t, err)
	assert.Contains(t, s.Code, "off += (r % 2u) * 3u;")
	assert.Contains(t, s.Code, "off += (r % 3u) * 1u;")
	assert.Contains(t, s.Code, "inverseSqrt(a)")
}

func TestGenerate_WhereAndComparison(t *testing.T) {
	p := record(t, func(def *fusion.Definition) {
		a := def.DefineTensor(tensor.Shape{4}, []int{1}, fusion.Float)
		def.AddInput(a)
		pos := def.Binary(cpu.OpGt, a, def.DefineConstant(0.5))
		def.AddOutput(def.Where(pos, a, def.DefineConstant(-1.25)))
	})
	s, err := Generate(p)
	require.NoError(t, err)
	assert.Contains(t, s.Code, "select(0.0, 1.0, a > b)")
	assert.Contains(t, s.Code, "return -1.25;")
	assert.Contains(t, s.Code, "!= 0.0);")
}

func TestGenerate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body func(def *fusion.Definition)
		want string
		// unsupported marks rejections caused by an element type.
		unsupported bool
	}{
		{
			name: "double input",
			body: func(def *fusion.Definition) {
				a := def.DefineTensor(tensor.Shape{2}, []int{1}, fusion.Double)
				def.AddInput(a)
				def.AddOutput(def.Unary(cpu.OpNeg, a))
			},
			want:        "input of type Double",
			unsupported: true,
		},
		{
			name: "bool output",
			body: func(def *fusion.Definition) {
				a := def.DefineTensor(tensor.Shape{2}, []int{1}, fusion.Float)
				def.AddInput(a)
				def.AddOutput(def.Binary(cpu.OpLt, a, a))
			},
			want:        "output of type Bool",
			unsupported: true,
		},
		{
			name: "infinite constant",
			body: func(def *fusion.Definition) {
				a := def.DefineTensor(tensor.Shape{2}, []int{1}, fusion.Float)
				def.AddInput(a)
				def.AddOutput(def.Binary(cpu.OpMinimum, a, def.DefineConstant(math.Inf(1))))
			},
			want: "not finite",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(record(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, tt.unsupported, errors.Is(err, fusion.ErrUnsupportedType))
		})
	}
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "2.0", literal(2))
	assert.Equal(t, "0.1", literal(0.1))
	assert.Equal(t, "-3.5", literal(-3.5))
	assert.Equal(t, "1e+20", literal(1e20))
}

func TestEngine_Name(t *testing.T) {
	assert.Equal(t, "webgpu", NewEngine().Name())
}

func TestEngine_Supports(t *testing.T) {
	e := NewEngine()
	assert.True(t, e.Supports(fusion.Float))
	for _, dt := range []fusion.DType{fusion.Double, fusion.Half, fusion.Int32, fusion.Int, fusion.Bool} {
		assert.False(t, e.Supports(dt), dt.String())
	}
}

func TestEngine_ReleaseBeforeUse(t *testing.T) {
	e := NewEngine()
	e.Release()
	assert.False(t, e.opened, "releasing an unused engine does not open a device")
	assert.False(t, e.Available())
	e.Release()
}

func TestEngine_Execute(t *testing.T) {
	if runtime.GOOS != "windows" {
		e := NewEngine()
		assert.False(t, e.Available())
		_, err := e.Compile(&fusion.Program{})
		assert.ErrorIs(t, err, ErrUnavailable)
		return
	}
	e := NewEngine()
	if !e.Available() {
		t.Skip("WebGPU not available")
	}
	defer e.Release()

	f := fusion.New(e)
	def, err := f.Define()
	require.NoError(t, err)
	a := def.DefineTensor(tensor.Shape{2, 2}, []int{2, 1}, fusion.Float)
	def.AddInput(a)
	def.AddOutput(def.Binary(cpu.OpAdd, a, def.DefineConstant(1)))
	_, err = def.Finish()
	require.NoError(t, err)

	in, err := tensor.FromFloat32s([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)
	outs, err := f.Execute(context.Background(), []*tensor.RawTensor{in})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.True(t, floats.EqualApprox([]float64{2, 3, 4, 5}, outs[0].Float64s(), 1e-6))
}

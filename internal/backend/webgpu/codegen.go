package webgpu

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/fusion"
)

// workgroupSize is the number of invocations per workgroup of a fused kernel.
const workgroupSize = 256

// maxWorkgroups is the per-dimension dispatch limit guaranteed by WebGPU.
const maxWorkgroups = 65535

// Shader is the WGSL source generated for one fused program.
type Shader struct {
	Code string
	// Elements is the invocation count: the largest output element count.
	Elements int
}

// Workgroups returns the number of workgroups to dispatch.
func (s *Shader) Workgroups() uint32 {
	//nolint:gosec // G115: element counts are validated to fit the dispatch limit
	return uint32((s.Elements + workgroupSize - 1) / workgroupSize)
}

// Generate emits one WGSL compute shader evaluating every output of p.
//
// Each expression becomes a function of the flat element index, so the fused
// kernel computes every output element in one invocation without intermediate
// buffers. Inputs are bound first (read-only) followed by outputs. Only Float
// tensors are supported; Bool intermediates are carried as 0.0 and 1.0.
func Generate(p *fusion.Program) (*Shader, error) {
	if err := checkTypes(p); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for i := range p.Inputs {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read> in%d: array<f32>;\n", i, i)
	}
	for j := range p.Outputs {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read_write> out%d: array<f32>;\n", len(p.Inputs)+j, j)
	}
	sb.WriteByte('\n')

	for k := range p.Exprs {
		body, err := exprBody(p, k)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, "fn v%d(i: u32) -> f32 {\n%s}\n\n", k, body)
	}

	elements := 0
	for _, id := range p.Outputs {
		elements = max(elements, p.NumElements(id))
	}
	if (elements+workgroupSize-1)/workgroupSize > maxWorkgroups {
		return nil, fmt.Errorf("webgpu: %d elements exceed the dispatch limit", elements)
	}

	fmt.Fprintf(&sb, "@compute @workgroup_size(%d)\n", workgroupSize)
	sb.WriteString("fn main(@builtin(global_invocation_id) gid: vec3<u32>) {\n")
	sb.WriteString("    let i = gid.x;\n")
	for i := range p.Inputs {
		// Keeps every input binding in the auto-generated layout.
		fmt.Fprintf(&sb, "    _ = in%d[0];\n", i)
	}
	for j, id := range p.Outputs {
		fmt.Fprintf(&sb, "    if (i < %du) {\n        out%d[i] = v%d(i);\n    }\n", p.NumElements(id), j, id)
	}
	sb.WriteString("}\n")

	return &Shader{Code: sb.String(), Elements: elements}, nil
}

func checkTypes(p *fusion.Program) error {
	for _, id := range p.Inputs {
		if dt := p.Exprs[id].DType; dt != fusion.Float {
			return fmt.Errorf("webgpu: input of type %s: %w", dt, fusion.ErrUnsupportedType)
		}
	}
	for _, id := range p.Outputs {
		if dt := p.Exprs[id].DType; dt != fusion.Float {
			return fmt.Errorf("webgpu: output of type %s: %w", dt, fusion.ErrUnsupportedType)
		}
	}
	for k, e := range p.Exprs {
		if e.Kind == fusion.ExprConstant {
			if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
				return fmt.Errorf("webgpu: constant %%%d is not finite", k)
			}
			continue
		}
		if e.DType != fusion.Float && e.DType != fusion.Bool {
			return fmt.Errorf("webgpu: %%%d of type %s: %w", k, e.DType, fusion.ErrUnsupportedType)
		}
	}
	return nil
}

func literal(v float64) string {
	s := strconv.FormatFloat(float64(float32(v)), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

var binaryExprs = map[cpu.BinaryOp]string{
	cpu.OpAdd:     "a + b",
	cpu.OpSub:     "a - b",
	cpu.OpMul:     "a * b",
	cpu.OpDiv:     "a / b",
	cpu.OpPow:     "pow(a, b)",
	cpu.OpMaximum: "max(a, b)",
	cpu.OpMinimum: "min(a, b)",
	cpu.OpEq:      "select(0.0, 1.0, a == b)",
	cpu.OpNe:      "select(0.0, 1.0, a != b)",
	cpu.OpLt:      "select(0.0, 1.0, a < b)",
	cpu.OpLe:      "select(0.0, 1.0, a <= b)",
	cpu.OpGt:      "select(0.0, 1.0, a > b)",
	cpu.OpGe:      "select(0.0, 1.0, a >= b)",
}

var unaryExprs = map[cpu.UnaryOp]string{
	cpu.OpNeg:        "-a",
	cpu.OpAbs:        "abs(a)",
	cpu.OpExp:        "exp(a)",
	cpu.OpLog:        "log(a)",
	cpu.OpSqrt:       "sqrt(a)",
	cpu.OpRsqrt:      "inverseSqrt(a)",
	cpu.OpSin:        "sin(a)",
	cpu.OpCos:        "cos(a)",
	cpu.OpTanh:       "tanh(a)",
	cpu.OpReciprocal: "1.0 / a",
}

func exprBody(p *fusion.Program, k int) (string, error) {
	e := p.Exprs[k]
	var sb strings.Builder
	operand := func(j int) string { return fmt.Sprintf("v%d(i)", e.Operands[j]) }

	switch e.Kind {
	case fusion.ExprInput:
		sb.WriteString("    var r = i;\n    var off = 0u;\n")
		for d := len(e.Shape) - 1; d >= 0; d-- {
			fmt.Fprintf(&sb, "    off += (r %% %du) * %du;\n    r = r / %du;\n", e.Shape[d], e.Stride[d], e.Shape[d])
		}
		fmt.Fprintf(&sb, "    return in%d[off];\n", e.Input)
	case fusion.ExprConstant:
		fmt.Fprintf(&sb, "    return %s;\n", literal(e.Value))
	case fusion.ExprBinary:
		expr, ok := binaryExprs[e.Binary]
		if !ok {
			return "", fmt.Errorf("webgpu: no WGSL for %s", e.Binary)
		}
		fmt.Fprintf(&sb, "    let a = %s;\n    let b = %s;\n    return %s;\n", operand(0), operand(1), expr)
	case fusion.ExprUnary:
		expr, ok := unaryExprs[e.Unary]
		if !ok {
			return "", fmt.Errorf("webgpu: no WGSL for %s", e.Unary)
		}
		fmt.Fprintf(&sb, "    let a = %s;\n    return %s;\n", operand(0), expr)
	case fusion.ExprWhere:
		fmt.Fprintf(&sb, "    return select(%s, %s, %s != 0.0);\n", operand(2), operand(1), operand(0))
	case fusion.ExprBroadcast:
		src := p.Exprs[e.Operands[0]].Shape
		srcStrides := src.ComputeStrides()
		coord := make([]string, len(e.Shape))
		sb.WriteString("    var r = i;\n")
		for d := len(e.Shape) - 1; d >= 0; d-- {
			coord[d] = fmt.Sprintf("c%d", d)
			fmt.Fprintf(&sb, "    let c%d = r %% %du;\n    r = r / %du;\n", d, e.Shape[d], e.Shape[d])
		}
		terms := []string{"0u"}
		for in, d := range e.Dims {
			if src[in] != 1 {
				terms = append(terms, fmt.Sprintf("%s * %du", coord[d], srcStrides[in]))
			}
		}
		fmt.Fprintf(&sb, "    return v%d(%s);\n", e.Operands[0], strings.Join(terms, " + "))
	case fusion.ExprCast:
		if e.DType == fusion.Bool && p.Exprs[e.Operands[0]].DType != fusion.Bool {
			fmt.Fprintf(&sb, "    return select(0.0, 1.0, %s != 0.0);\n", operand(0))
		} else {
			fmt.Fprintf(&sb, "    return %s;\n", operand(0))
		}
	default:
		return "", fmt.Errorf("webgpu: unsupported expression %s", e.Kind)
	}
	return sb.String(), nil
}

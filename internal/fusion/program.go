package fusion

import (
	"fmt"
	"strings"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/google/uuid"
)

// ExprKind identifies what an expression computes.
type ExprKind int

// Expression kinds.
const (
	ExprInput ExprKind = iota
	ExprConstant
	ExprBinary
	ExprUnary
	ExprWhere
	ExprBroadcast
	ExprCast
)

var exprNames = [...]string{"input", "constant", "binary", "unary", "where", "broadcast_in_dim", "cast"}

// String returns the expression kind name.
func (k ExprKind) String() string {
	if int(k) < len(exprNames) {
		return exprNames[k]
	}
	return fmt.Sprintf("ExprKind(%d)", int(k))
}

// Expr is one value of a fused program. Operands refer to earlier expressions by index.
type Expr struct {
	Kind  ExprKind
	DType DType

	// Scalar marks a constant with no shape. Tensors carry Shape.
	Scalar bool
	Shape  tensor.Shape

	// Stride is the descriptor stride of an input tensor.
	Stride []int
	// Input is the position of an input tensor among the program inputs, -1 until AddInput.
	Input int
	// Value is the payload of a constant.
	Value float64
	// IntValue is the exact payload of an Int or Bool constant.
	IntValue int64

	Binary   cpu.BinaryOp
	Unary    cpu.UnaryOp
	Operands []int
	// Dims holds the broadcast dimensions of a broadcast_in_dim.
	Dims []int
}

// Program is a finished fusion definition, ready for an engine to compile.
type Program struct {
	ID      uuid.UUID
	Exprs   []Expr
	Inputs  []int
	Outputs []int
}

// NumElements returns the element count of a tensor expression.
func (p *Program) NumElements(id int) int {
	return p.Exprs[id].Shape.NumElements()
}

// String renders the program one expression per line, e.g. "%2 = Float[2 3] binary mul(%0, %1)".
func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fusion %s\n", p.ID)
	for i, e := range p.Exprs {
		fmt.Fprintf(&sb, "  %%%d = %s", i, e.DType)
		if !e.Scalar {
			fmt.Fprintf(&sb, "%v", []int(e.Shape))
		}
		sb.WriteByte(' ')
		switch e.Kind {
		case ExprInput:
			fmt.Fprintf(&sb, "input #%d stride=%v", e.Input, e.Stride)
		case ExprConstant:
			fmt.Fprintf(&sb, "constant %v", e.Value)
		case ExprBinary:
			fmt.Fprintf(&sb, "%s", e.Binary)
		case ExprUnary:
			fmt.Fprintf(&sb, "%s", e.Unary)
		case ExprBroadcast:
			fmt.Fprintf(&sb, "broadcast_in_dim dims=%v", e.Dims)
		default:
			sb.WriteString(e.Kind.String())
		}
		if len(e.Operands) > 0 {
			ops := make([]string, len(e.Operands))
			for j, o := range e.Operands {
				ops[j] = fmt.Sprintf("%%%d", o)
			}
			fmt.Fprintf(&sb, "(%s)", strings.Join(ops, ", "))
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  outputs %v\n", p.Outputs)
	return sb.String()
}

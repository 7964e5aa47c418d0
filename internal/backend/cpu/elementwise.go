package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/prims/internal/tensor"
	"github.com/x448/float16"
)

// BinaryOp identifies an element-wise binary primitive.
type BinaryOp int

// Binary primitives.
const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpMaximum
	OpMinimum
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binaryNames = [...]string{"add", "sub", "mul", "div", "pow", "maximum", "minimum", "eq", "ne", "lt", "le", "gt", "ge"}

// String returns the primitive name.
func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// IsComparison reports whether op produces a boolean result.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq
}

// UnaryOp identifies an element-wise unary primitive.
type UnaryOp int

// Unary primitives.
const (
	OpNeg UnaryOp = iota
	OpAbs
	OpExp
	OpLog
	OpSqrt
	OpRsqrt
	OpSin
	OpCos
	OpTanh
	OpReciprocal
)

var unaryNames = [...]string{"neg", "abs", "exp", "log", "sqrt", "rsqrt", "sin", "cos", "tanh", "reciprocal"}

// String returns the primitive name.
func (op UnaryOp) String() string {
	if int(op) < len(unaryNames) {
		return unaryNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// IsFloatOnly reports whether op is only defined for floating point inputs.
func (op UnaryOp) IsFloatOnly() bool {
	return op >= OpExp
}

// ApplyBinary evaluates op on two scalars already converted to float64.
// dtype is the operand type: integer division truncates toward zero.
func ApplyBinary(op BinaryOp, x, y float64, dtype tensor.DataType) float64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSub:
		return x - y
	case OpMul:
		return x * y
	case OpDiv:
		if dtype.IsInteger() {
			if y == 0 {
				return 0
			}
			return math.Trunc(x / y)
		}
		return x / y
	case OpPow:
		return math.Pow(x, y)
	case OpMaximum:
		if math.IsNaN(x) || math.IsNaN(y) {
			return math.NaN()
		}
		return math.Max(x, y)
	case OpMinimum:
		if math.IsNaN(x) || math.IsNaN(y) {
			return math.NaN()
		}
		return math.Min(x, y)
	case OpEq:
		return boolf(x == y)
	case OpNe:
		return boolf(x != y)
	case OpLt:
		return boolf(x < y)
	case OpLe:
		return boolf(x <= y)
	case OpGt:
		return boolf(x > y)
	case OpGe:
		return boolf(x >= y)
	default:
		panic(fmt.Sprintf("unknown binary op %d", op))
	}
}

// ApplyBinaryInt evaluates op on two integers exactly. Arithmetic wraps on
// overflow, division truncates toward zero and dividing by zero gives 0.
// Comparisons return 0 or 1.
func ApplyBinaryInt(op BinaryOp, x, y int64) int64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSub:
		return x - y
	case OpMul:
		return x * y
	case OpDiv:
		if y == 0 {
			return 0
		}
		return x / y
	case OpPow:
		return powInt(x, y)
	case OpMaximum:
		return max(x, y)
	case OpMinimum:
		return min(x, y)
	case OpEq:
		return boolInt(x == y)
	case OpNe:
		return boolInt(x != y)
	case OpLt:
		return boolInt(x < y)
	case OpLe:
		return boolInt(x <= y)
	case OpGt:
		return boolInt(x > y)
	case OpGe:
		return boolInt(x >= y)
	default:
		panic(fmt.Sprintf("unknown binary op %d", op))
	}
}

// powInt raises x to y by squaring. A negative exponent gives the truncated
// result: 1 or -1 for bases of magnitude one, 0 otherwise.
func powInt(x, y int64) int64 {
	if y < 0 {
		switch x {
		case 1:
			return 1
		case -1:
			if y%2 == 0 {
				return 1
			}
			return -1
		default:
			return 0
		}
	}
	result := int64(1)
	for y > 0 {
		if y&1 == 1 {
			result *= x
		}
		x *= x
		y >>= 1
	}
	return result
}

// IsExactInt reports whether op has an exact integer form for ApplyUnaryInt.
func (op UnaryOp) IsExactInt() bool {
	return op == OpNeg || op == OpAbs
}

// ApplyUnaryInt evaluates neg or abs on an integer exactly.
func ApplyUnaryInt(op UnaryOp, x int64) int64 {
	switch op {
	case OpNeg:
		return -x
	case OpAbs:
		if x < 0 {
			return -x
		}
		return x
	default:
		panic(fmt.Sprintf("unary op %s has no integer form", op))
	}
}

// ApplyUnary evaluates op on a scalar already converted to float64.
func ApplyUnary(op UnaryOp, x float64) float64 {
	switch op {
	case OpNeg:
		return -x
	case OpAbs:
		return math.Abs(x)
	case OpExp:
		return math.Exp(x)
	case OpLog:
		return math.Log(x)
	case OpSqrt:
		return math.Sqrt(x)
	case OpRsqrt:
		return 1 / math.Sqrt(x)
	case OpSin:
		return math.Sin(x)
	case OpCos:
		return math.Cos(x)
	case OpTanh:
		return math.Tanh(x)
	case OpReciprocal:
		return 1 / x
	default:
		panic(fmt.Sprintf("unknown unary op %d", op))
	}
}

// RoundTo rounds v to the precision of dtype, as storing it in a tensor of that type would.
func RoundTo(v float64, dtype tensor.DataType) float64 {
	switch dtype {
	case tensor.Float32:
		return float64(float32(v))
	case tensor.Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case tensor.Int32:
		return float64(int32(v))
	case tensor.Int64:
		return float64(int64(v))
	case tensor.Bool:
		return boolf(v != 0)
	default:
		return v
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

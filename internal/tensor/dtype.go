// Package tensor provides the concrete tensor representation shared by the tracer and executors.
package tensor

import (
	"fmt"
	"strings"
)

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Bool
	Float16
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16:
		return 2
	case Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the data type is a floating point type.
func (dt DataType) IsFloat() bool {
	return dt == Float16 || dt == Float32 || dt == Float64
}

// IsInteger reports whether the data type is a (non-boolean) integer type.
func (dt DataType) IsInteger() bool {
	return dt == Int32 || dt == Int64
}

// ParseDataType converts a name such as "float32" or "f32" to a DataType.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "float32", "f32", "float":
		return Float32, nil
	case "float64", "f64", "double":
		return Float64, nil
	case "float16", "f16", "half":
		return Float16, nil
	case "int32", "i32", "int":
		return Int32, nil
	case "int64", "i64", "long":
		return Int64, nil
	case "bool":
		return Bool, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", name)
	}
}

// category orders data types by kind for type promotion: bool < integer < float.
func (dt DataType) category() int {
	switch {
	case dt == Bool:
		return 0
	case dt.IsInteger():
		return 1
	default:
		return 2
	}
}

// PromoteTypes returns the smallest data type both a and b can be converted to
// without losing their kind.
//
// Examples:
//
//	PromoteTypes(Int32, Float16)   → Float16
//	PromoteTypes(Float16, Float32) → Float32
//	PromoteTypes(Bool, Int64)      → Int64
func PromoteTypes(a, b DataType) DataType {
	if a == b {
		return a
	}
	ca, cb := a.category(), b.category()
	switch {
	case ca > cb:
		return a
	case cb > ca:
		return b
	}
	if a.Size() >= b.Size() {
		return a
	}
	return b
}

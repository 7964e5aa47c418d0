package tensor

import (
	"fmt"
	"math"
)

// Meta describes a tensor without its data: shape and element type.
// It is what tracing propagates in place of real values.
type Meta struct {
	Shape Shape
	DType DataType
}

// String returns a compact description such as "float32[2 3]".
func (m Meta) String() string {
	return fmt.Sprintf("%s%v", m.DType, []int(m.Shape))
}

// Described is implemented by anything that carries tensor metadata:
// concrete tensors and traced proxies alike.
type Described interface {
	Meta() Meta
}

// MetaOf returns the metadata of v if v describes a tensor.
func MetaOf(v any) (Meta, bool) {
	if d, ok := v.(Described); ok && d != nil {
		return d.Meta(), true
	}
	return Meta{}, false
}

// Number normalizes a Go scalar to float64 and reports the dtype it naturally maps to:
// bool → Bool, integers → Int64, floats → Float64. ok is false for non-numbers.
func Number(v any) (value float64, dtype DataType, ok bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, Bool, true
		}
		return 0, Bool, true
	case int:
		return float64(n), Int64, true
	case int32:
		return float64(n), Int64, true
	case int64:
		return float64(n), Int64, true
	case float32:
		return float64(n), Float64, true
	case float64:
		return n, Float64, true
	default:
		return 0, 0, false
	}
}

// IsNumber reports whether v is a Go scalar accepted by Number.
func IsNumber(v any) bool {
	_, _, ok := Number(v)
	return ok
}

// Integer returns v as an exact int64 when v is a bool, a Go integer, or a float
// holding a whole number in int64 range.
func Integer(v any) (int64, bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return wholeFloat(float64(n))
	case float64:
		return wholeFloat(n)
	default:
		return 0, false
	}
}

func wholeFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

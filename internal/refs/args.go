package refs

import (
	"fmt"
	"math"

	"github.com/born-ml/prims/internal/signature"
	"github.com/born-ml/prims/internal/tensor"
)

func kwOnly(name string, def any) signature.Param {
	return signature.Param{Name: name, Kind: signature.KeywordOnly, Default: def, HasDefault: true}
}

func sig(params ...signature.Param) signature.Signature {
	return signature.MustNew(params...)
}

var (
	unarySig  = sig(signature.Required("a"))
	binarySig = sig(signature.Required("a"), signature.Required("b"))
)

// toInts accepts an int, a list of ints, or whole floats (as produced by config files).
// nil yields nil.
func toInts(op, what string, v any) ([]int, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []int:
		return x, nil
	case tensor.Shape:
		return x, nil
	case []any:
		out := make([]int, len(x))
		for i, e := range x {
			n, err := toInt(op, what, e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		n, err := toInt(op, what, v)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
}

func toInt(op, what string, v any) (int, error) {
	f, dt, ok := tensor.Number(v)
	if !ok || dt == tensor.Bool || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: %s must be integers, got %v (%T)", op, what, v, v)
	}
	return int(f), nil
}

func toBool(op, what string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: %s must be a bool, got %T", op, what, v)
	}
	return b, nil
}

// toDType accepts a tensor.DataType or its name.
func toDType(op string, v any) (tensor.DataType, error) {
	switch x := v.(type) {
	case tensor.DataType:
		return x, nil
	case string:
		dt, err := tensor.ParseDataType(x)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		return dt, nil
	default:
		return 0, fmt.Errorf("%s: dtype must be a data type or its name, got %T", op, v)
	}
}

func tensorArg(op, what string, v any) (tensor.Meta, error) {
	m, ok := tensor.MetaOf(v)
	if !ok {
		return tensor.Meta{}, fmt.Errorf("%s: %s must be a tensor, got %T", op, what, v)
	}
	return m, nil
}

// normalizeDims resolves negative dimensions; nil or empty means every dimension.
func normalizeDims(op string, dims []int, rank int) ([]int, error) {
	if len(dims) == 0 {
		all := make([]int, rank)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	out := make([]int, len(dims))
	for i, d := range dims {
		if d < 0 {
			d += rank
		}
		if d < 0 || d >= rank {
			return nil, fmt.Errorf("%s: dimension %d out of range for %dD tensor", op, dims[i], rank)
		}
		out[i] = d
	}
	return out, nil
}

// inferShape resolves a single -1 entry against numElements.
func inferShape(op string, shape []int, numElements int) (tensor.Shape, error) {
	out := make(tensor.Shape, len(shape))
	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d <= 0:
			return nil, fmt.Errorf("%s: invalid dimension %d in %v", op, d, shape)
		default:
			known *= d
		}
		out[i] = d
	}
	if infer >= 0 {
		if numElements%known != 0 {
			return nil, fmt.Errorf("%s: cannot infer dimension of %v for %d elements", op, shape, numElements)
		}
		out[infer] = numElements / known
	}
	return out, nil
}

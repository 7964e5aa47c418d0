package prims

import (
	"fmt"

	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/tensor"
)

func arity(name string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d arguments, got %d", name, n, len(args))
	}
	return nil
}

// operandMeta describes a tensor or scalar operand. isTensor is false for Go numbers.
func operandMeta(name string, v any) (meta tensor.Meta, isTensor bool, err error) {
	if m, ok := tensor.MetaOf(v); ok {
		return m, true, nil
	}
	if _, dt, ok := tensor.Number(v); ok {
		return tensor.Meta{DType: dt}, false, nil
	}
	return tensor.Meta{}, false, fmt.Errorf("%s: expected a tensor or a number, got %T", name, v)
}

func rawTensor(name string, v any) (*tensor.RawTensor, error) {
	t, ok := v.(*tensor.RawTensor)
	if !ok {
		return nil, fmt.Errorf("%s: expected a tensor, got %T", name, v)
	}
	return t, nil
}

func tensorMeta(name string, v any) (tensor.Meta, error) {
	m, ok := tensor.MetaOf(v)
	if !ok {
		return tensor.Meta{}, fmt.Errorf("%s: expected a tensor, got %T", name, v)
	}
	return m, nil
}

func intList(name, what string, v any) ([]int, error) {
	switch x := v.(type) {
	case []int:
		return x, nil
	case tensor.Shape:
		return x, nil
	default:
		return nil, fmt.Errorf("%s: %s must be []int, got %T", name, what, v)
	}
}

func dataType(name string, v any) (tensor.DataType, error) {
	dt, ok := v.(tensor.DataType)
	if !ok {
		return 0, fmt.Errorf("%s: dtype must be a tensor.DataType, got %T", name, v)
	}
	return dt, nil
}

func handle(name string, v any) (fusion.Handle, error) {
	h, ok := v.(fusion.Handle)
	if !ok || h == nil {
		return nil, fmt.Errorf("%s: expected a fusion value, got %T", name, v)
	}
	return h, nil
}

func fusionTensor(name string, v any) (*fusion.Tensor, error) {
	t, ok := v.(*fusion.Tensor)
	if !ok || t == nil {
		return nil, fmt.Errorf("%s: expected a fusion tensor, got %T", name, v)
	}
	return t, nil
}

// lowered returns the handle recorded by a lowering, or the definition's error.
func lowered(def *fusion.Definition, t *fusion.Tensor) (fusion.Handle, error) {
	if err := def.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

package prims

import (
	"fmt"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/tensor"
)

// registerShapeOps adds broadcasting, conversion, reduction and reshaping.
// sum and reshape have no fusion lowering.
func (r *Registry) registerShapeOps() {
	r.mustRegister(&Symbol{
		Name:  "broadcast_in_dim",
		Impl:  broadcastInDimImpl,
		Meta:  broadcastInDimMeta,
		Lower: broadcastInDimLower,
	})
	r.mustRegister(&Symbol{
		Name:  "convert_element_type",
		Impl:  convertImpl,
		Meta:  convertMeta,
		Lower: convertLower,
	})
	r.mustRegister(&Symbol{
		Name: "sum",
		Impl: sumImpl,
		Meta: sumMeta,
	})
	r.mustRegister(&Symbol{
		Name: "reshape",
		Impl: reshapeImpl,
		Meta: reshapeMeta,
	})
}

// broadcastArgs unpacks broadcast_in_dim(a, shape, broadcast_dimensions).
func broadcastArgs(args []any) (shape tensor.Shape, dims []int, err error) {
	if err := arity("broadcast_in_dim", args, 3); err != nil {
		return nil, nil, err
	}
	s, err := intList("broadcast_in_dim", "shape", args[1])
	if err != nil {
		return nil, nil, err
	}
	dims, err = intList("broadcast_in_dim", "broadcast_dimensions", args[2])
	if err != nil {
		return nil, nil, err
	}
	return tensor.Shape(s), dims, nil
}

func broadcastInDimImpl(b *cpu.CPUBackend, args []any, _ map[string]any) (any, error) {
	shape, dims, err := broadcastArgs(args)
	if err != nil {
		return nil, err
	}
	x, err := rawTensor("broadcast_in_dim", args[0])
	if err != nil {
		return nil, err
	}
	return b.BroadcastInDim(x, shape, dims)
}

func broadcastInDimMeta(args []any, _ map[string]any) (tensor.Meta, error) {
	shape, dims, err := broadcastArgs(args)
	if err != nil {
		return tensor.Meta{}, err
	}
	m, err := tensorMeta("broadcast_in_dim", args[0])
	if err != nil {
		return tensor.Meta{}, err
	}
	if err := cpu.CheckBroadcastInDim(m.Shape, shape, dims); err != nil {
		return tensor.Meta{}, err
	}
	return tensor.Meta{Shape: shape.Clone(), DType: m.DType}, nil
}

func broadcastInDimLower(def *fusion.Definition, args []any, _ map[string]any) (fusion.Handle, error) {
	shape, dims, err := broadcastArgs(args)
	if err != nil {
		return nil, err
	}
	x, err := fusionTensor("broadcast_in_dim", args[0])
	if err != nil {
		return nil, err
	}
	return lowered(def, def.BroadcastInDim(x, shape, dims))
}

func convertArgs(args []any) (tensor.DataType, error) {
	if err := arity("convert_element_type", args, 2); err != nil {
		return 0, err
	}
	return dataType("convert_element_type", args[1])
}

func convertImpl(b *cpu.CPUBackend, args []any, _ map[string]any) (any, error) {
	dtype, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	x, err := rawTensor("convert_element_type", args[0])
	if err != nil {
		return nil, err
	}
	return b.Convert(x, dtype)
}

func convertMeta(args []any, _ map[string]any) (tensor.Meta, error) {
	dtype, err := convertArgs(args)
	if err != nil {
		return tensor.Meta{}, err
	}
	m, err := tensorMeta("convert_element_type", args[0])
	if err != nil {
		return tensor.Meta{}, err
	}
	return tensor.Meta{Shape: m.Shape.Clone(), DType: dtype}, nil
}

func convertLower(def *fusion.Definition, args []any, _ map[string]any) (fusion.Handle, error) {
	dtype, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	x, err := fusionTensor("convert_element_type", args[0])
	if err != nil {
		return nil, err
	}
	fdt, err := fusion.DTypeOf(dtype)
	if err != nil {
		return nil, err
	}
	return lowered(def, def.Cast(x, fdt))
}

func sumImpl(b *cpu.CPUBackend, args []any, _ map[string]any) (any, error) {
	if err := arity("sum", args, 2); err != nil {
		return nil, err
	}
	x, err := rawTensor("sum", args[0])
	if err != nil {
		return nil, err
	}
	dims, err := intList("sum", "dims", args[1])
	if err != nil {
		return nil, err
	}
	return b.Sum(x, dims)
}

func sumMeta(args []any, _ map[string]any) (tensor.Meta, error) {
	if err := arity("sum", args, 2); err != nil {
		return tensor.Meta{}, err
	}
	m, err := tensorMeta("sum", args[0])
	if err != nil {
		return tensor.Meta{}, err
	}
	if m.DType == tensor.Bool {
		return tensor.Meta{}, fmt.Errorf("sum: unsupported dtype %s", m.DType)
	}
	dims, err := intList("sum", "dims", args[1])
	if err != nil {
		return tensor.Meta{}, err
	}
	shape, err := cpu.ReducedShape(m.Shape, dims)
	if err != nil {
		return tensor.Meta{}, err
	}
	return tensor.Meta{Shape: shape, DType: m.DType}, nil
}

func reshapeImpl(b *cpu.CPUBackend, args []any, _ map[string]any) (any, error) {
	if err := arity("reshape", args, 2); err != nil {
		return nil, err
	}
	x, err := rawTensor("reshape", args[0])
	if err != nil {
		return nil, err
	}
	shape, err := intList("reshape", "shape", args[1])
	if err != nil {
		return nil, err
	}
	return b.Reshape(x, shape)
}

func reshapeMeta(args []any, _ map[string]any) (tensor.Meta, error) {
	if err := arity("reshape", args, 2); err != nil {
		return tensor.Meta{}, err
	}
	m, err := tensorMeta("reshape", args[0])
	if err != nil {
		return tensor.Meta{}, err
	}
	shape, err := intList("reshape", "shape", args[1])
	if err != nil {
		return tensor.Meta{}, err
	}
	if err := tensor.Shape(shape).Validate(); err != nil {
		return tensor.Meta{}, fmt.Errorf("reshape: %w", err)
	}
	if tensor.Shape(shape).NumElements() != m.Shape.NumElements() {
		return tensor.Meta{}, fmt.Errorf("reshape: cannot reshape %v to %v", m.Shape, shape)
	}
	return tensor.Meta{Shape: tensor.Shape(shape).Clone(), DType: m.DType}, nil
}

package cpu

import (
	"fmt"

	"github.com/born-ml/prims/internal/tensor"
)

// Convert casts x to dtype. Float to integer conversion truncates toward zero;
// conversions between integer and bool types are exact.
func (cpu *CPUBackend) Convert(x *tensor.RawTensor, dtype tensor.DataType) (*tensor.RawTensor, error) {
	result, err := tensor.NewRaw(x.Shape(), dtype, cpu.device)
	if err != nil {
		return nil, fmt.Errorf("convert_element_type: %w", err)
	}
	if isIntegral(x.DType()) && isIntegral(dtype) {
		for i := 0; i < result.NumElements(); i++ {
			result.SetInt64(i, x.Int64At(i))
		}
		return result, nil
	}
	for i := 0; i < result.NumElements(); i++ {
		result.SetFloat64(i, x.Float64At(i))
	}
	return result, nil
}

func isIntegral(dt tensor.DataType) bool {
	return dt.IsInteger() || dt == tensor.Bool
}

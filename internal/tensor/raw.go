package tensor

import (
	"fmt"
	"unsafe"

	"github.com/x448/float16"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
	Host
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	case Host:
		return "Host"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level tensor representation.
// Views created by Permute share the underlying buffer and carry their own strides.
type RawTensor struct {
	data   []byte   // Backing buffer (shared between views)
	shape  Shape    // Tensor dimensions
	stride []int    // Memory strides in elements
	dtype  DataType // Runtime type information
	device Device   // Compute device
	offset int      // Element offset for views

	contiguous bool
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated but not initialized (contains zeros).
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,

		contiguous: true,
	}, nil
}

// FromBytes wraps a contiguous little-endian byte buffer without copying.
func FromBytes(data []byte, shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("shape %v of %s requires %d bytes, got %d", shape, dtype, want, len(data))
	}
	return &RawTensor{
		data:   data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,

		contiguous: true,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// Meta returns the shape and dtype of the tensor.
func (r *RawTensor) Meta() Meta {
	return Meta{Shape: r.shape, DType: r.dtype}
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// IsContiguous reports whether the tensor is laid out in row-major order without gaps.
func (r *RawTensor) IsContiguous() bool {
	return r.contiguous
}

func isRowMajor(shape Shape, stride []int) bool {
	want := shape.ComputeStrides()
	for i, s := range stride {
		if shape[i] != 1 && s != want[i] {
			return false
		}
	}
	return true
}

// Data returns the raw byte slice starting at the view offset.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data[r.offset*r.dtype.Size():]
}

// storageLen is the number of elements reachable from the view offset.
func (r *RawTensor) storageLen() int {
	return len(r.data)/r.dtype.Size() - r.offset
}

// AsFloat32 interprets the storage as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by storageLen()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.storageLen())
}

// AsFloat64 interprets the storage as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by storageLen()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.storageLen())
}

// AsFloat16 interprets the storage as []float16.Float16.
// Panics if the tensor's dtype is not Float16.
func (r *RawTensor) AsFloat16() []float16.Float16 {
	if r.dtype != Float16 {
		panic(fmt.Sprintf("tensor dtype is %s, not float16", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by storageLen()
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(&data[0])), r.storageLen())
}

// AsInt32 interprets the storage as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by storageLen()
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), r.storageLen())
}

// AsInt64 interprets the storage as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by storageLen()
	return unsafe.Slice((*int64)(unsafe.Pointer(&data[0])), r.storageLen())
}

// AsBool interprets the storage as []bool.
// Panics if the tensor's dtype is not Bool.
func (r *RawTensor) AsBool() []bool {
	if r.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by storageLen()
	return unsafe.Slice((*bool)(unsafe.Pointer(&data[0])), r.storageLen())
}

// offsetOf maps a flat row-major logical index to a storage index.
func (r *RawTensor) offsetOf(flat int) int {
	if r.IsContiguous() {
		return flat
	}
	coords := r.shape.Unravel(flat, make([]int, len(r.shape)))
	return StridedOffset(coords, r.stride)
}

// Float64At returns the element at a flat row-major logical index as float64.
// Booleans read as 0 or 1. Strides are honored, so views read correctly.
func (r *RawTensor) Float64At(flat int) float64 {
	i := r.offsetOf(flat)
	switch r.dtype {
	case Float32:
		return float64(r.AsFloat32()[i])
	case Float64:
		return r.AsFloat64()[i]
	case Float16:
		return float64(r.AsFloat16()[i].Float32())
	case Int32:
		return float64(r.AsInt32()[i])
	case Int64:
		return float64(r.AsInt64()[i])
	case Bool:
		if r.AsBool()[i] {
			return 1
		}
		return 0
	default:
		panic("unsupported dtype")
	}
}

// SetFloat64 stores v at a flat row-major logical index, converting to the tensor dtype.
// Integer dtypes truncate toward zero; Bool stores v != 0.
func (r *RawTensor) SetFloat64(flat int, v float64) {
	i := r.offsetOf(flat)
	switch r.dtype {
	case Float32:
		r.AsFloat32()[i] = float32(v)
	case Float64:
		r.AsFloat64()[i] = v
	case Float16:
		r.AsFloat16()[i] = float16.Fromfloat32(float32(v))
	case Int32:
		r.AsInt32()[i] = int32(v)
	case Int64:
		r.AsInt64()[i] = int64(v)
	case Bool:
		r.AsBool()[i] = v != 0
	default:
		panic("unsupported dtype")
	}
}

// Int64At returns the element at a flat row-major logical index as int64.
// Integer and Bool elements are exact; floating point elements truncate toward zero.
func (r *RawTensor) Int64At(flat int) int64 {
	i := r.offsetOf(flat)
	switch r.dtype {
	case Int64:
		return r.AsInt64()[i]
	case Int32:
		return int64(r.AsInt32()[i])
	case Bool:
		if r.AsBool()[i] {
			return 1
		}
		return 0
	default:
		return int64(r.Float64At(flat))
	}
}

// SetInt64 stores v at a flat row-major logical index without a float64 round trip.
// Int32 wraps; Bool stores v != 0.
func (r *RawTensor) SetInt64(flat int, v int64) {
	i := r.offsetOf(flat)
	switch r.dtype {
	case Int64:
		r.AsInt64()[i] = v
	case Int32:
		r.AsInt32()[i] = int32(v) //nolint:gosec // G115: wrapping matches integer tensor semantics
	case Bool:
		r.AsBool()[i] = v != 0
	default:
		r.SetFloat64(flat, float64(v))
	}
}

// Float64s copies the logical elements into a new []float64 in row-major order.
func (r *RawTensor) Float64s() []float64 {
	out := make([]float64, r.NumElements())
	for i := range out {
		out[i] = r.Float64At(i)
	}
	return out
}

// Permute returns a view with dimensions reordered by axes.
// The view shares storage with r; only shape and strides change.
func (r *RawTensor) Permute(axes ...int) (*RawTensor, error) {
	if len(axes) != len(r.shape) {
		return nil, fmt.Errorf("permute: expected %d axes, got %d", len(r.shape), len(axes))
	}
	seen := make([]bool, len(axes))
	shape := make(Shape, len(axes))
	stride := make([]int, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			return nil, fmt.Errorf("permute: invalid axes %v", axes)
		}
		seen[a] = true
		shape[i] = r.shape[a]
		stride[i] = r.stride[a]
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape,
		stride: stride,
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset,

		contiguous: isRowMajor(shape, stride),
	}, nil
}

// Contiguous returns r if it is already row-major, otherwise a row-major copy.
func (r *RawTensor) Contiguous() *RawTensor {
	if r.IsContiguous() {
		return r
	}
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		panic(err) // shape was validated when r was created
	}
	size := r.dtype.Size()
	coords := make([]int, len(r.shape))
	for i := 0; i < r.NumElements(); i++ {
		src := (r.offset + StridedOffset(r.shape.Unravel(i, coords), r.stride)) * size
		copy(out.data[i*size:(i+1)*size], r.data[src:src+size])
	}
	return out
}

// Clone creates a deep, contiguous copy of the RawTensor.
func (r *RawTensor) Clone() *RawTensor {
	if !r.IsContiguous() {
		return r.Contiguous()
	}
	data := make([]byte, r.ByteSize())
	copy(data, r.Data())
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,

		contiguous: true,
	}
}

// String returns a short description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", r.dtype, r.shape, r.device)
}

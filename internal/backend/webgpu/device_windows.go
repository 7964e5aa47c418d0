//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

type device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// outputs recycles kernel output buffers across launches.
	outputs *bufferPool[*wgpu.Buffer]

	// mu serializes submissions; kernels share one queue.
	mu sync.Mutex
}

func openDevice() (d *device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("%w: native library not available: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	d = &device{instance: instance, adapter: adapter, device: dev, queue: queue}
	d.outputs = newBufferPool(func(size uint64) *wgpu.Buffer {
		return dev.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
			Size:  size,
		})
	})
	return d, nil
}

func (d *device) release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.outputs != nil {
		d.outputs.clear()
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func (d *device) compile(p *fusion.Program, s *Shader) (fusion.Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil, fmt.Errorf("webgpu: device released")
	}

	module := d.device.CreateShaderModuleWGSL(s.Code)
	// Auto layout (nil) derives the bind group layout from the shader.
	pipeline := d.device.CreateComputePipelineSimple(nil, module, "main")
	return &kernel{dev: d, program: p, shader: s, module: module, pipeline: pipeline}, nil
}

// createBuffer creates a storage buffer holding data.
func (d *device) createBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a storage buffer back to host memory through a staging buffer.
func (d *device) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	result := make([]byte, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(result, unsafe.Slice((*byte)(mappedPtr), size))
	staging.Unmap()
	return result, nil
}

type kernel struct {
	dev      *device
	program  *fusion.Program
	shader   *Shader
	module   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

// Release frees the pipeline and shader module.
func (k *kernel) Release() {
	k.dev.mu.Lock()
	defer k.dev.mu.Unlock()

	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
	if k.module != nil {
		k.module.Release()
		k.module = nil
	}
}

// Execute uploads the inputs, dispatches the fused kernel once, and reads back every output.
func (k *kernel) Execute(ctx context.Context, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := k.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil || k.pipeline == nil {
		return nil, fmt.Errorf("webgpu: device or kernel released")
	}

	p := k.program
	entries := make([]wgpu.BindGroupEntry, 0, len(p.Inputs)+len(p.Outputs))
	for i, in := range inputs {
		buf := d.createBuffer(in.Data())
		defer buf.Release()
		//nolint:gosec // G115: buffer sizes are non-negative
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(len(in.Data()))))
	}

	outBufs := make([]*wgpu.Buffer, len(p.Outputs))
	outSizes := make([]uint64, len(p.Outputs))
	for j, id := range p.Outputs {
		//nolint:gosec // G115: element counts are non-negative
		outSizes[j] = uint64(p.NumElements(id) * tensor.Float32.Size())
		buf, capacity := d.outputs.acquire(outSizes[j])
		outBufs[j] = buf
		defer d.outputs.release(buf, capacity)
		//nolint:gosec // G115: binding indices are small
		entries = append(entries, wgpu.BufferBindingEntry(uint32(len(inputs)+j), outBufs[j], 0, outSizes[j]))
	}

	bindGroup := d.device.CreateBindGroupSimple(k.pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(k.shader.Workgroups(), 1, 1)
	pass.End()
	d.queue.Submit(encoder.Finish(nil))

	outs := make([]*tensor.RawTensor, len(p.Outputs))
	for j, id := range p.Outputs {
		data, err := d.readBuffer(outBufs[j], outSizes[j])
		if err != nil {
			return nil, err
		}
		out, err := tensor.FromBytes(data, p.Exprs[id].Shape, tensor.Float32, tensor.WebGPU)
		if err != nil {
			return nil, err
		}
		outs[j] = out
	}
	return outs, nil
}

//go:build wgpu

package wgpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/samcharles93/matfwd/internal/device"
)

// Kernel is the compiled forward pipeline. Shape scalars are staged on the
// host by SetArg and uploaded to the params buffer at launch.
type Kernel struct {
	workgroupSize int
	params        [4]uint32
	set           [4]bool
	paramsBuf     *Buffer

	pipeline  *wgpu.ComputePipeline
	layout    *wgpu.BindGroupLayout
	bindGroup *wgpu.BindGroup
}

func (k *Kernel) Name() string { return device.KernelMatmulForward }

func (k *Kernel) SetArg(index int, value int32) error {
	if index < device.ArgB || index >= device.NumArgs {
		return fmt.Errorf("wgpu: invalid scalar argument index %d", index)
	}
	if value < 0 {
		return fmt.Errorf("wgpu: argument %d: negative value %d", index, value)
	}
	k.params[index-device.ArgB] = uint32(value)
	k.set[index-device.ArgB] = true
	return nil
}

func (k *Kernel) release() {
	if k.bindGroup != nil {
		k.bindGroup.Release()
	}
	if k.pipeline != nil {
		k.pipeline.Release()
	}
	if k.layout != nil {
		k.layout.Release()
	}
}

func shaderSource(workgroupSize int) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read_write> out : array<f32>;
		@group(0) @binding(1) var<storage, read> inp : array<f32>;
		@group(0) @binding(2) var<storage, read> weight : array<f32>;
		@group(0) @binding(3) var<storage, read> params : array<u32>;

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let B = params[0];
			let T = params[1];
			let C = params[2];
			let OC = params[3];
			let idx = gid.x;
			if (idx >= B * T * OC) {
				return;
			}
			let bt = idx / OC;
			let o = idx %% OC;
			var val: f32 = 0.0;
			for (var i: u32 = 0u; i < C; i++) {
				val += inp[bt * C + i] * weight[o * C + i];
			}
			out[idx] = val;
		}
	`, workgroupSize)
}

func (c *Context) compile(workgroupSize int, out, inp, weight, params *Buffer) (*Kernel, error) {
	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "matmul_forward_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaderSource(workgroupSize)},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: shader compile: %w", err)
	}
	defer module.Release()

	layout, err := c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "matmul_forward_bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group layout: %w", err)
	}

	pipelineLayout, err := c.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "matmul_forward_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "matmul_forward_pipeline",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline: %w", err)
	}

	bindGroup, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "matmul_forward_bind",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: out.buf, Size: out.buf.GetSize()},
			{Binding: 1, Buffer: inp.buf, Size: inp.buf.GetSize()},
			{Binding: 2, Buffer: weight.buf, Size: weight.buf.GetSize()},
			{Binding: 3, Buffer: params.buf, Size: params.buf.GetSize()},
		},
	})
	if err != nil {
		pipeline.Release()
		return nil, fmt.Errorf("wgpu: create bind group: %w", err)
	}

	return &Kernel{
		workgroupSize: workgroupSize,
		paramsBuf:     params,
		pipeline:      pipeline,
		layout:        layout,
		bindGroup:     bindGroup,
	}, nil
}

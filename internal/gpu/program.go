package gpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucount/internal/kernel"
)

// Program is the compiled and linked threshold kernel.
type Program struct {
	ctx    *Context
	module *kernel.Module

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// NewProgram generates the kernel source for cfg, compiles it and builds a
// compute pipeline on ctx.
//
// A *kernel.CompileError is returned when the source does not compile and a
// *Error with StageShader when the device rejects the module. Failures while
// building layouts or the pipeline return a *Error with StageLink.
func NewProgram(ctx *Context, cfg kernel.Config) (*Program, error) {
	if ctx.closed {
		return nil, stageError(StageShader, "new program", ErrClosed)
	}
	module, err := kernel.Build(cfg)
	if err != nil {
		return nil, err
	}
	slogger().Debug("gpu: kernel compiled",
		"threshold", cfg.Threshold,
		"workgroup_x", cfg.WorkgroupX,
		"workgroup_y", cfg.WorkgroupY,
		"spirv_words", len(module.SPIRV))

	p := &Program{ctx: ctx, module: module}
	if err := p.create(); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Program) create() error {
	device := p.ctx.device

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "threshold_count",
		Source: hal.ShaderSource{SPIRV: p.module.SPIRV},
	})
	if err != nil {
		return stageError(StageShader, "create shader module", err)
	}
	p.shader = shader

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "threshold_count_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    kernel.BindingParams,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    kernel.BindingPixels,
				Visibility: gputypes.ShaderStageCompute,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    kernel.BindingCounter,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
			},
		},
	})
	if err != nil {
		return stageError(StageLink, "create bind group layout", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "threshold_count_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return stageError(StageLink, "create pipeline layout", err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "threshold_count_pipeline",
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: kernel.EntryPoint},
	})
	if err != nil {
		return stageError(StageLink, "create compute pipeline", err)
	}
	p.pipeline = pipeline
	return nil
}

// Config returns the kernel configuration.
func (p *Program) Config() kernel.Config { return p.module.Config }

// Source returns the generated WGSL.
func (p *Program) Source() string { return p.module.WGSL }

// Destroy releases the pipeline objects. Safe to call on a partially
// created Program and after the Context was closed.
func (p *Program) Destroy() {
	device := p.ctx.device
	if device == nil {
		return
	}
	if p.pipeline != nil {
		device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

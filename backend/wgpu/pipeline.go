package wgpu

import (
	"fmt"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Pipeline wraps a hal.RenderPipeline or hal.ComputePipeline.
type Pipeline struct {
	device  *Device
	render  hal.RenderPipeline
	compute hal.ComputePipeline
}

func shaderModule(lib cgpu.NativeShaderLibrary) (hal.ShaderModule, error) {
	s, ok := lib.(*ShaderLibrary)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign shader library %T", lib)
	}
	return s.hal, nil
}

func pipelineLayout(l cgpu.NativePipelineLayout) (hal.PipelineLayout, error) {
	pl, ok := l.(*PipelineLayout)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign pipeline layout %T", l)
	}
	return pl.hal, nil
}

// CreateRenderPipeline implements cgpu.NativeDevice. WebGPU pipelines take
// a vertex and an optional fragment stage; other stages fail.
func (d *Device) CreateRenderPipeline(desc *cgpu.NativeRenderPipelineDescriptor) (cgpu.NativePipeline, error) {
	layout, err := pipelineLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	hd := &hal.RenderPipelineDescriptor{
		Label:        desc.Name,
		Layout:       layout,
		Primitive:    primitive(desc),
		DepthStencil: depthStencil(desc),
		Multisample: gputypes.MultisampleState{
			Count:                  max(desc.SampleCount, 1),
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: desc.AlphaToCoverage,
		},
	}
	for _, st := range desc.Stages {
		m, err := shaderModule(st.Library)
		if err != nil {
			return nil, err
		}
		switch st.Stage {
		case cgpu.ShaderStageVertex:
			hd.Vertex = hal.VertexState{Module: m, EntryPoint: st.Entry, Buffers: vertexBuffers(desc)}
		case cgpu.ShaderStageFragment:
			hd.Fragment = &hal.FragmentState{Module: m, EntryPoint: st.Entry, Targets: colorTargets(desc)}
		default:
			return nil, fmt.Errorf("wgpu: %s stage: %w", st.Stage, cgpu.ErrUnsupported)
		}
	}
	if hd.Vertex.Module == nil {
		return nil, fmt.Errorf("wgpu: render pipeline %q has no vertex stage", desc.Name)
	}
	hp, err := d.hal.CreateRenderPipeline(hd)
	if err != nil {
		return nil, mapError("create render pipeline", err)
	}
	return &Pipeline{device: d, render: hp}, nil
}

// CreateComputePipeline implements cgpu.NativeDevice.
func (d *Device) CreateComputePipeline(desc *cgpu.NativeComputePipelineDescriptor) (cgpu.NativePipeline, error) {
	layout, err := pipelineLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	m, err := shaderModule(desc.Stage.Library)
	if err != nil {
		return nil, err
	}
	hp, err := d.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Name,
		Layout:  layout,
		Compute: hal.ComputeState{Module: m, EntryPoint: desc.Stage.Entry},
	})
	if err != nil {
		return nil, mapError("create compute pipeline", err)
	}
	return &Pipeline{device: d, compute: hp}, nil
}

// Destroy implements cgpu.NativeObject.
func (p *Pipeline) Destroy() {
	if p.render != nil {
		p.device.hal.DestroyRenderPipeline(p.render)
	}
	if p.compute != nil {
		p.device.hal.DestroyComputePipeline(p.compute)
	}
}

// RenderPass holds load and store actions. WebGPU has no render pass
// object; the actions are applied when a pass begins.
type RenderPass struct {
	desc cgpu.NativeRenderPassDescriptor
}

// CreateRenderPass implements cgpu.NativeDevice.
func (d *Device) CreateRenderPass(desc *cgpu.NativeRenderPassDescriptor) (cgpu.NativeRenderPass, error) {
	return &RenderPass{desc: *desc}, nil
}

// Destroy implements cgpu.NativeObject.
func (p *RenderPass) Destroy() {}

// Framebuffer holds the views of a pass: colors first, then depth.
type Framebuffer struct {
	pass   *RenderPass
	colors []*TextureView
	depth  *TextureView
}

// CreateFramebuffer implements cgpu.NativeDevice.
func (d *Device) CreateFramebuffer(desc *cgpu.NativeFramebufferDescriptor) (cgpu.NativeFramebuffer, error) {
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign render pass %T", desc.RenderPass)
	}
	fb := &Framebuffer{pass: rp}
	for i, v := range desc.Views {
		tv, ok := v.(*TextureView)
		if !ok {
			return nil, fmt.Errorf("wgpu: foreign texture view %T", v)
		}
		if i < len(rp.desc.Colors) {
			fb.colors = append(fb.colors, tv)
		} else {
			fb.depth = tv
		}
	}
	return fb, nil
}

// Destroy implements cgpu.NativeObject.
func (f *Framebuffer) Destroy() {}

// passDescriptor resolves the views of fb for one pass.
func passDescriptor(rp *RenderPass, fb *Framebuffer, clears []cgpu.ClearValue) (*hal.RenderPassDescriptor, error) {
	hd := &hal.RenderPassDescriptor{Label: rp.desc.Name}
	for i, a := range rp.desc.Colors {
		hv, err := fb.colors[i].resolve()
		if err != nil {
			return nil, err
		}
		ca := hal.RenderPassColorAttachment{View: hv, LoadOp: a.LoadOp, StoreOp: a.StoreOp}
		if i < len(clears) {
			ca.ClearValue = clears[i].Color
		}
		hd.ColorAttachments = append(hd.ColorAttachments, ca)
	}
	if ds := rp.desc.Depth; ds != nil && fb.depth != nil {
		hv, err := fb.depth.resolve()
		if err != nil {
			return nil, err
		}
		da := &hal.RenderPassDepthStencilAttachment{
			View:         hv,
			DepthLoadOp:  ds.DepthLoadOp,
			DepthStoreOp: ds.DepthStoreOp,
		}
		if ds.Format.HasStencil() {
			da.StencilLoadOp = ds.StencilLoadOp
			da.StencilStoreOp = ds.StencilStoreOp
		}
		if n := len(rp.desc.Colors); n < len(clears) {
			da.DepthClearValue = clears[n].Depth
			da.StencilClearValue = clears[n].Stencil
		}
		hd.DepthStencilAttachment = da
	}
	return hd, nil
}

// QueryPool wraps a hal.QuerySet.
type QueryPool struct {
	device *Device
	hal    hal.QuerySet
	typ    cgpu.QueryType
}

// CreateQueryPool implements cgpu.NativeDevice. Pipeline statistics have no
// WebGPU query type.
func (d *Device) CreateQueryPool(t cgpu.QueryType, count uint32) (cgpu.NativeQueryPool, error) {
	var ht hal.QueryType
	switch t {
	case cgpu.QueryTypeTimestamp:
		ht = hal.QueryTypeTimestamp
	case cgpu.QueryTypeOcclusion:
		ht = hal.QueryTypeOcclusion
	default:
		return nil, fmt.Errorf("wgpu: query type %d: %w", t, cgpu.ErrUnsupported)
	}
	qs, err := d.hal.CreateQuerySet(&hal.QuerySetDescriptor{Type: ht, Count: count})
	if err != nil {
		return nil, mapError("create query set", err)
	}
	return &QueryPool{device: d, hal: qs, typ: t}, nil
}

// Destroy implements cgpu.NativeObject.
func (p *QueryPool) Destroy() { p.device.hal.DestroyQuerySet(p.hal) }

package vulkan

import (
	"fmt"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
)

// RenderPass is a single-subpass VkRenderPass.
type RenderPass struct {
	device *Device
	handle vk.RenderPass
	colors int
	depth  bool
}

// renderPassInfo builds the attachments and subpass of desc. Attachments
// stay in their attachment layout at the end of the pass; the core moves
// them on with barriers.
func renderPassInfo(desc *cgpu.NativeRenderPassDescriptor) ([]vk.AttachmentDescription, vk.SubpassDescription) {
	atts := make([]vk.AttachmentDescription, 0, len(desc.Colors)+1)
	refs := make([]vk.AttachmentReference, 0, len(desc.Colors))
	for i, c := range desc.Colors {
		atts = append(atts, vk.AttachmentDescription{
			Format:         textureFormat(c.Format),
			Samples:        vk.SampleCountFlagBits(max(c.SampleCount, 1)),
			LoadOp:         loadOp(c.LoadOp),
			StoreOp:        storeOp(c.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout(c.LoadOp, vk.ImageLayoutColorAttachmentOptimal),
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		refs = append(refs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	sub := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(refs)),
		PColorAttachments:    refs,
	}
	if d := desc.Depth; d != nil {
		// The stencil contents are only needed when either plane loads.
		initial := vk.ImageLayoutUndefined
		if d.DepthLoadOp == gputypes.LoadOpLoad || d.StencilLoadOp == gputypes.LoadOpLoad {
			initial = vk.ImageLayoutDepthStencilAttachmentOptimal
		}
		atts = append(atts, vk.AttachmentDescription{
			Format:         textureFormat(d.Format),
			Samples:        vk.SampleCountFlagBits(max(d.SampleCount, 1)),
			LoadOp:         loadOp(d.DepthLoadOp),
			StoreOp:        storeOp(d.DepthStoreOp),
			StencilLoadOp:  loadOp(d.StencilLoadOp),
			StencilStoreOp: storeOp(d.StencilStoreOp),
			InitialLayout:  initial,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		sub.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(desc.Colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}
	return atts, sub
}

// CreateRenderPass implements cgpu.NativeDevice.
func (d *Device) CreateRenderPass(desc *cgpu.NativeRenderPassDescriptor) (cgpu.NativeRenderPass, error) {
	atts, sub := renderPassInfo(desc)
	var rp vk.RenderPass
	ret := vk.CreateRenderPass(d.handle, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{sub},
	}, nil, &rp)
	if err := check("create render pass", ret); err != nil {
		return nil, err
	}
	d.log.Debug("vulkan: render pass created", "name", desc.Name, "colors", len(desc.Colors), "depth", desc.Depth != nil)
	return &RenderPass{device: d, handle: rp, colors: len(desc.Colors), depth: desc.Depth != nil}, nil
}

// Destroy implements cgpu.NativeObject.
func (p *RenderPass) Destroy() {
	vk.DestroyRenderPass(p.device.handle, p.handle, nil)
}

// Framebuffer is a VkFramebuffer. It keeps its extent for the render area.
type Framebuffer struct {
	device *Device
	handle vk.Framebuffer
	width  uint32
	height uint32
	views  []*TextureView
}

// CreateFramebuffer implements cgpu.NativeDevice.
func (d *Device) CreateFramebuffer(desc *cgpu.NativeFramebufferDescriptor) (cgpu.NativeFramebuffer, error) {
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign render pass %T", desc.RenderPass)
	}
	views := make([]*TextureView, len(desc.Views))
	handles := make([]vk.ImageView, len(desc.Views))
	for i, nv := range desc.Views {
		v, ok := nv.(*TextureView)
		if !ok {
			return nil, fmt.Errorf("vulkan: foreign texture view %T", nv)
		}
		views[i], handles[i] = v, v.view
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.handle,
		AttachmentCount: uint32(len(handles)),
		PAttachments:    handles,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          max(desc.Layers, 1),
	}, nil, &fb)
	if err := check("create framebuffer", ret); err != nil {
		return nil, err
	}
	return &Framebuffer{device: d, handle: fb, width: desc.Width, height: desc.Height, views: views}, nil
}

// Destroy implements cgpu.NativeObject.
func (f *Framebuffer) Destroy() {
	vk.DestroyFramebuffer(f.device.handle, f.handle, nil)
}

// Pipeline is a graphics or compute VkPipeline.
type Pipeline struct {
	device  *Device
	handle  vk.Pipeline
	compute bool
}

// Destroy implements cgpu.NativeObject.
func (p *Pipeline) Destroy() {
	vk.DestroyPipeline(p.device.handle, p.handle, nil)
}

func shaderStage(e cgpu.ShaderStageEntry) (vk.PipelineShaderStageCreateInfo, error) {
	lib, ok := e.Library.(*ShaderLibrary)
	if !ok {
		return vk.PipelineShaderStageCreateInfo{}, fmt.Errorf("vulkan: foreign shader library %T", e.Library)
	}
	entry := e.Entry
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageBit(e.Stage),
		Module: lib.module,
		PName:  safeString(entry),
	}, nil
}

// graphicsPipelineInfo translates desc. It fails for dynamic rendering,
// which the loader binding does not expose.
func graphicsPipelineInfo(desc *cgpu.NativeRenderPipelineDescriptor) (vk.GraphicsPipelineCreateInfo, error) {
	var info vk.GraphicsPipelineCreateInfo
	if desc.RenderPass == nil {
		return info, fmt.Errorf("vulkan: pipeline %q without a render pass: %w", desc.Name, cgpu.ErrUnsupported)
	}
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return info, fmt.Errorf("vulkan: foreign render pass %T", desc.RenderPass)
	}
	layout, ok := desc.Layout.(*PipelineLayout)
	if !ok {
		return info, fmt.Errorf("vulkan: foreign pipeline layout %T", desc.Layout)
	}
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(desc.Stages))
	for _, s := range desc.Stages {
		st, err := shaderStage(s)
		if err != nil {
			return info, err
		}
		stages = append(stages, st)
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, b := range desc.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: inputRate(b.StepMode),
		}
	}
	attrs := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		f, err := vertexFormat(a.Format)
		if err != nil {
			return info, fmt.Errorf("vulkan: pipeline %q attribute %d: %w", desc.Name, a.Location, err)
		}
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   f,
			Offset:   a.Offset,
		}
	}

	r := desc.Rasterizer
	ds := desc.Depth
	blends := make([]vk.PipelineColorBlendAttachmentState, rp.colors)
	for i := range blends {
		b := cgpu.ColorBlend{WriteMask: 0xF}
		if i < len(desc.Blends) {
			b = desc.Blends[i]
		} else if len(desc.Blends) > 0 {
			b = desc.Blends[0]
		}
		blends[i] = blendAttachment(b)
	}
	dyn := dynamicStates(desc.DynamicStates)
	samples := max(desc.SampleCount, 1)

	info = vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attrs)),
			PVertexAttributeDescriptions:    attrs,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: topology(desc.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
			DepthClampEnable:        vkBool(r.DepthClamp),
			PolygonMode:             polygonMode(r.FillMode),
			CullMode:                cullMode(r.CullMode),
			FrontFace:               frontFace(r.FrontFace),
			DepthBiasEnable:         vkBool(r.DepthBias != 0 || r.SlopeScaledDepthBias != 0),
			DepthBiasConstantFactor: float32(r.DepthBias),
			DepthBiasSlopeFactor:    r.SlopeScaledDepthBias,
			LineWidth:               1,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples:  vk.SampleCountFlagBits(samples),
			AlphaToCoverageEnable: vkBool(desc.AlphaToCoverage),
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:   vkBool(ds.DepthTest),
			DepthWriteEnable:  vkBool(ds.DepthWrite),
			DepthCompareOp:    compareOp(ds.DepthFunc),
			StencilTestEnable: vkBool(ds.StencilTest),
			Front:             stencilFace(ds.StencilFront, ds.StencilReadMask, ds.StencilWriteMask),
			Back:              stencilFace(ds.StencilBack, ds.StencilReadMask, ds.StencilWriteMask),
			MaxDepthBounds:    1,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: uint32(len(blends)),
			PAttachments:    blends,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dyn)),
			PDynamicStates:    dyn,
		},
		Layout:     layout.handle,
		RenderPass: rp.handle,
		Subpass:    desc.Subpass,
	}
	return info, nil
}

// CreateRenderPipeline implements cgpu.NativeDevice.
func (d *Device) CreateRenderPipeline(desc *cgpu.NativeRenderPipelineDescriptor) (cgpu.NativePipeline, error) {
	info, err := graphicsPipelineInfo(desc)
	if err != nil {
		return nil, err
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(d.handle, d.cache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := check("create graphics pipeline", ret); err != nil {
		return nil, err
	}
	d.log.Debug("vulkan: render pipeline created", "name", desc.Name, "stages", len(desc.Stages))
	return &Pipeline{device: d, handle: pipelines[0]}, nil
}

// CreateComputePipeline implements cgpu.NativeDevice.
func (d *Device) CreateComputePipeline(desc *cgpu.NativeComputePipelineDescriptor) (cgpu.NativePipeline, error) {
	layout, ok := desc.Layout.(*PipelineLayout)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign pipeline layout %T", desc.Layout)
	}
	stage, err := shaderStage(desc.Stage)
	if err != nil {
		return nil, err
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(d.handle, d.cache, 1, []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stage,
		Layout: layout.handle,
	}}, nil, pipelines)
	if err := check("create compute pipeline", ret); err != nil {
		return nil, err
	}
	d.log.Debug("vulkan: compute pipeline created", "name", desc.Name)
	return &Pipeline{device: d, handle: pipelines[0], compute: true}, nil
}

// QueryPool is a VkQueryPool.
type QueryPool struct {
	device *Device
	handle vk.QueryPool
	typ    cgpu.QueryType
	count  uint32
}

// CreateQueryPool implements cgpu.NativeDevice.
func (d *Device) CreateQueryPool(t cgpu.QueryType, count uint32) (cgpu.NativeQueryPool, error) {
	if t == cgpu.QueryTypePipelineStatistics {
		return nil, fmt.Errorf("vulkan: pipeline statistics queries: %w", cgpu.ErrUnsupported)
	}
	var pool vk.QueryPool
	ret := vk.CreateQueryPool(d.handle, &vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  queryType(t),
		QueryCount: count,
	}, nil, &pool)
	if err := check("create query pool", ret); err != nil {
		return nil, err
	}
	return &QueryPool{device: d, handle: pool, typ: t, count: count}, nil
}

// Destroy implements cgpu.NativeObject.
func (p *QueryPool) Destroy() {
	vk.DestroyQueryPool(p.device.handle, p.handle, nil)
}

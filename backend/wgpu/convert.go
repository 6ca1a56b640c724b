package wgpu

import (
	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// bufferUsage derives the WebGPU usage of a buffer. Every buffer can be
// copied in both directions so staging and readback need no extra flags.
func bufferUsage(desc *cgpu.BufferDescriptor) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	t := desc.Descriptors
	if t&cgpu.ResourceTypeUniformBuffer != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if t&(cgpu.ResourceTypeBuffer|cgpu.ResourceTypeRWBuffer|cgpu.ResourceTypeTexelBuffer|cgpu.ResourceTypeRWTexelBuffer) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if t&cgpu.ResourceTypeVertexBuffer != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if t&cgpu.ResourceTypeIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if t&cgpu.ResourceTypeIndirectBuffer != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	switch desc.MemoryUsage {
	case cgpu.MemoryUsageCPUOnly, cgpu.MemoryUsageCPUToGPU:
		u |= gputypes.BufferUsageMapWrite
	case cgpu.MemoryUsageGPUToCPU:
		u |= gputypes.BufferUsageMapRead | gputypes.BufferUsageQueryResolve
	}
	if desc.Flags&(cgpu.BufferFlagHostVisible|cgpu.BufferFlagPersistentMap) != 0 {
		u |= gputypes.BufferUsageMapWrite
	}
	return u
}

func textureUsage(t cgpu.ResourceType) gputypes.TextureUsage {
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if t&cgpu.ResourceTypeTexture != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if t&cgpu.ResourceTypeRWTexture != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if t&(cgpu.ResourceTypeRenderTarget|cgpu.ResourceTypeDepthStencil) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	return u
}

func textureDimension(desc *cgpu.TextureDescriptor) gputypes.TextureDimension {
	switch {
	case desc.Depth > 1:
		return gputypes.TextureDimension3D
	case desc.Height <= 1 && desc.Width > 1 && desc.ArraySize <= 1:
		return gputypes.TextureDimension1D
	default:
		return gputypes.TextureDimension2D
	}
}

// aspect maps a cgpu aspect mask. WebGPU selects a single plane or all of
// them.
func aspect(a cgpu.ImageAspect) gputypes.TextureAspect {
	switch a {
	case cgpu.ImageAspectDepth:
		return gputypes.TextureAspectDepthOnly
	case cgpu.ImageAspectStencil:
		return gputypes.TextureAspectStencilOnly
	default:
		return gputypes.TextureAspectAll
	}
}

// bufferStateUsage maps a resource state to the buffer usage a barrier
// transitions to. States without a WebGPU equivalent map to 0.
func bufferStateUsage(s cgpu.ResourceState) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if s&cgpu.ResourceStateVertexAndConstantBuffer != 0 {
		u |= gputypes.BufferUsageVertex | gputypes.BufferUsageUniform
	}
	if s&cgpu.ResourceStateIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if s&(cgpu.ResourceStateUnorderedAccess|cgpu.ResourceStateShaderResource) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if s&cgpu.ResourceStateIndirectArgument != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if s&cgpu.ResourceStateCopyDest != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if s&cgpu.ResourceStateCopySource != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	return u
}

func textureStateUsage(s cgpu.ResourceState) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if s&(cgpu.ResourceStateRenderTarget|cgpu.ResourceStateDepthWrite|cgpu.ResourceStateDepthRead) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&cgpu.ResourceStateUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if s&cgpu.ResourceStateShaderResource != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&cgpu.ResourceStateCopyDest != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if s&cgpu.ResourceStateCopySource != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	return u
}

// layoutEntry translates one set layout binding. Bindings WebGPU cannot
// express return ok == false.
func layoutEntry(b cgpu.SetLayoutBinding) (gputypes.BindGroupLayoutEntry, bool) {
	e := gputypes.BindGroupLayoutEntry{Binding: b.Binding, Visibility: b.Stages.GPUTypes()}
	switch b.Type {
	case cgpu.ResourceTypeUniformBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case cgpu.ResourceTypeBuffer, cgpu.ResourceTypeBufferRaw, cgpu.ResourceTypeTexelBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	case cgpu.ResourceTypeRWBuffer, cgpu.ResourceTypeRWBufferRaw, cgpu.ResourceTypeRWTexelBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case cgpu.ResourceTypeSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case cgpu.ResourceTypeTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case cgpu.ResourceTypeTextureCube:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimensionCube,
		}
	case cgpu.ResourceTypeRWTexture:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return e, false
	}
	return e, true
}

// stencilOp maps the WebGPU enum, which starts at Undefined, onto the HAL
// enum, which starts at Keep.
func stencilOp(op gputypes.StencilOperation) hal.StencilOperation {
	if op == gputypes.StencilOperationUndefined {
		return hal.StencilOperationKeep
	}
	return hal.StencilOperation(op - gputypes.StencilOperationKeep)
}

func stencilFace(s gputypes.StencilFaceState) hal.StencilFaceState {
	cmp := s.Compare
	if cmp == gputypes.CompareFunctionUndefined {
		cmp = gputypes.CompareFunctionAlways
	}
	return hal.StencilFaceState{
		Compare:     cmp,
		FailOp:      stencilOp(s.FailOp),
		DepthFailOp: stencilOp(s.DepthFailOp),
		PassOp:      stencilOp(s.PassOp),
	}
}

func depthStencil(desc *cgpu.NativeRenderPipelineDescriptor) *hal.DepthStencilState {
	if desc.DepthFormat == gputypes.TextureFormatUndefined {
		return nil
	}
	d := desc.Depth
	ds := &hal.DepthStencilState{
		Format:            desc.DepthFormat,
		DepthWriteEnabled: d.DepthTest && d.DepthWrite,
		DepthCompare:      gputypes.CompareFunctionAlways,
		StencilFront:      stencilFace(gputypes.StencilFaceState{}),
		StencilBack:       stencilFace(gputypes.StencilFaceState{}),
	}
	if d.DepthTest {
		ds.DepthCompare = d.DepthFunc
	}
	if d.StencilTest {
		ds.StencilFront = stencilFace(d.StencilFront)
		ds.StencilBack = stencilFace(d.StencilBack)
		ds.StencilReadMask = uint32(d.StencilReadMask)
		ds.StencilWriteMask = uint32(d.StencilWriteMask)
	}
	ds.DepthBias = desc.Rasterizer.DepthBias
	ds.DepthBiasSlopeScale = desc.Rasterizer.SlopeScaledDepthBias
	return ds
}

func colorTargets(desc *cgpu.NativeRenderPipelineDescriptor) []gputypes.ColorTargetState {
	out := make([]gputypes.ColorTargetState, len(desc.ColorFormats))
	for i, f := range desc.ColorFormats {
		out[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
		if i >= len(desc.Blends) {
			continue
		}
		b := desc.Blends[i]
		out[i].WriteMask = b.WriteMask
		if b.Enable {
			out[i].Blend = &gputypes.BlendState{
				Color: gputypes.BlendComponent{SrcFactor: b.SrcColor, DstFactor: b.DstColor, Operation: b.ColorOp},
				Alpha: gputypes.BlendComponent{SrcFactor: b.SrcAlpha, DstFactor: b.DstAlpha, Operation: b.AlphaOp},
			}
		}
	}
	return out
}

// vertexBuffers groups attributes under their bindings. WebGPU addresses
// buffers by slot, so bindings become dense slots in binding order.
func vertexBuffers(desc *cgpu.NativeRenderPipelineDescriptor) []gputypes.VertexBufferLayout {
	out := make([]gputypes.VertexBufferLayout, len(desc.VertexBindings))
	for i, vb := range desc.VertexBindings {
		out[i] = gputypes.VertexBufferLayout{ArrayStride: uint64(vb.Stride), StepMode: vb.StepMode}
		for _, a := range desc.Attributes {
			if a.Binding != vb.Binding {
				continue
			}
			out[i].Attributes = append(out[i].Attributes, gputypes.VertexAttribute{
				Format:         a.Format,
				Offset:         uint64(a.Offset),
				ShaderLocation: a.Location,
			})
		}
	}
	return out
}

func primitive(desc *cgpu.NativeRenderPipelineDescriptor) gputypes.PrimitiveState {
	return gputypes.PrimitiveState{
		Topology:       desc.Topology,
		FrontFace:      desc.Rasterizer.FrontFace,
		CullMode:       desc.Rasterizer.CullMode,
		UnclippedDepth: desc.Rasterizer.DepthClamp,
	}
}

func pushRanges(push []cgpu.PushConstantRange) []hal.PushConstantRange {
	out := make([]hal.PushConstantRange, len(push))
	for i, p := range push {
		out[i] = hal.PushConstantRange{
			Stages: p.Stages.GPUTypes(),
			Range:  hal.Range{Start: p.Offset, End: p.Offset + p.Size},
		}
	}
	return out
}

func mipmapFilter(m gputypes.MipmapFilterMode) gputypes.FilterMode {
	if m == gputypes.MipmapFilterModeLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func filterOr(f gputypes.FilterMode) gputypes.FilterMode {
	if f == gputypes.FilterModeUndefined {
		return gputypes.FilterModeNearest
	}
	return f
}

func addressOr(m gputypes.AddressMode) gputypes.AddressMode {
	if m == gputypes.AddressModeUndefined {
		return gputypes.AddressModeClampToEdge
	}
	return m
}

func anisotropy(n float32) uint16 {
	switch {
	case n <= 1:
		return 1
	case n >= 16:
		return 16
	default:
		return uint16(n)
	}
}

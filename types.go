package cgpu

import (
	"strings"

	"github.com/gogpu/gputypes"
)

// Registered backend names.
const (
	BackendVulkan = "vulkan"
	BackendWGPU   = "wgpu"
	BackendNull   = "null"
)

// QueueType selects a hardware queue class.
type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
	QueueTileMapping
	queueTypeCount
)

func (t QueueType) String() string {
	switch t {
	case QueueGraphics:
		return "Graphics"
	case QueueCompute:
		return "Compute"
	case QueueTransfer:
		return "Transfer"
	case QueueTileMapping:
		return "TileMapping"
	default:
		return "Unknown"
	}
}

// QueueFlags describe what a queue family can do. Values match Vulkan.
type QueueFlags uint32

const (
	QueueFlagGraphics      QueueFlags = 0x1
	QueueFlagCompute       QueueFlags = 0x2
	QueueFlagTransfer      QueueFlags = 0x4
	QueueFlagSparseBinding QueueFlags = 0x8
)

// QueueFamilyIgnored marks a barrier without queue ownership transfer.
const QueueFamilyIgnored = ^uint32(0)

// ResourceType classifies how a resource is bound to shaders or the
// pipeline. Values are bit flags so a buffer can declare several uses.
type ResourceType uint32

const (
	ResourceTypeUndefined      ResourceType = 0
	ResourceTypeSampler        ResourceType = 1 << 0
	ResourceTypeTexture        ResourceType = 1 << 1
	ResourceTypeRWTexture      ResourceType = 1 << 2
	ResourceTypeBuffer         ResourceType = 1 << 3
	ResourceTypeBufferRaw      ResourceType = ResourceTypeBuffer | 1<<4
	ResourceTypeRWBuffer       ResourceType = 1 << 5
	ResourceTypeRWBufferRaw    ResourceType = ResourceTypeRWBuffer | 1<<6
	ResourceTypeUniformBuffer  ResourceType = 1 << 7
	ResourceTypePushConstant   ResourceType = 1 << 8
	ResourceTypeVertexBuffer   ResourceType = 1 << 9
	ResourceTypeIndexBuffer    ResourceType = 1 << 10
	ResourceTypeIndirectBuffer ResourceType = 1 << 11
	ResourceTypeTextureCube    ResourceType = ResourceTypeTexture | 1<<12
	ResourceTypeRenderTarget   ResourceType = 1 << 13
	ResourceTypeDepthStencil   ResourceType = 1 << 14
	ResourceTypeInputAttach    ResourceType = 1 << 15
	ResourceTypeTexelBuffer    ResourceType = 1 << 16
	ResourceTypeRWTexelBuffer  ResourceType = 1 << 17
	ResourceTypeRayTracing     ResourceType = 1 << 18
)

var resourceTypeNames = []struct {
	t    ResourceType
	name string
}{
	{ResourceTypeSampler, "Sampler"},
	{ResourceTypeTextureCube, "TextureCube"},
	{ResourceTypeTexture, "Texture"},
	{ResourceTypeRWTexture, "RWTexture"},
	{ResourceTypeBufferRaw, "BufferRaw"},
	{ResourceTypeBuffer, "Buffer"},
	{ResourceTypeRWBufferRaw, "RWBufferRaw"},
	{ResourceTypeRWBuffer, "RWBuffer"},
	{ResourceTypeUniformBuffer, "UniformBuffer"},
	{ResourceTypePushConstant, "PushConstant"},
	{ResourceTypeVertexBuffer, "VertexBuffer"},
	{ResourceTypeIndexBuffer, "IndexBuffer"},
	{ResourceTypeIndirectBuffer, "IndirectBuffer"},
	{ResourceTypeRenderTarget, "RenderTarget"},
	{ResourceTypeDepthStencil, "DepthStencil"},
	{ResourceTypeInputAttach, "InputAttachment"},
	{ResourceTypeTexelBuffer, "TexelBuffer"},
	{ResourceTypeRWTexelBuffer, "RWTexelBuffer"},
	{ResourceTypeRayTracing, "RayTracing"},
}

func (t ResourceType) String() string {
	if t == ResourceTypeUndefined {
		return "Undefined"
	}
	var parts []string
	rest := t
	for _, n := range resourceTypeNames {
		if rest&n.t == n.t {
			parts = append(parts, n.name)
			rest &^= n.t
		}
	}
	if rest != 0 || len(parts) == 0 {
		parts = append(parts, "Unknown")
	}
	return strings.Join(parts, "|")
}

// isImage reports whether the type is bound through an image descriptor.
func (t ResourceType) isImage() bool {
	return t == ResourceTypeTexture || t == ResourceTypeRWTexture ||
		t == ResourceTypeTextureCube || t == ResourceTypeInputAttach
}

// isBuffer reports whether the type is bound through a buffer descriptor.
func (t ResourceType) isBuffer() bool {
	switch t {
	case ResourceTypeBuffer, ResourceTypeBufferRaw, ResourceTypeRWBuffer,
		ResourceTypeRWBufferRaw, ResourceTypeUniformBuffer,
		ResourceTypeTexelBuffer, ResourceTypeRWTexelBuffer:
		return true
	}
	return false
}

// ResourceState is the GPU-visible usage mode of a buffer or texture.
type ResourceState uint32

const (
	ResourceStateUndefined               ResourceState = 0
	ResourceStateVertexAndConstantBuffer ResourceState = 0x1
	ResourceStateIndexBuffer             ResourceState = 0x2
	ResourceStateRenderTarget            ResourceState = 0x4
	ResourceStateUnorderedAccess         ResourceState = 0x8
	ResourceStateDepthWrite              ResourceState = 0x10
	ResourceStateDepthRead               ResourceState = 0x20
	ResourceStateNonPixelShaderResource  ResourceState = 0x40
	ResourceStatePixelShaderResource     ResourceState = 0x80
	ResourceStateShaderResource          ResourceState = 0x40 | 0x80
	ResourceStateStreamOut               ResourceState = 0x100
	ResourceStateIndirectArgument        ResourceState = 0x200
	ResourceStateCopyDest                ResourceState = 0x400
	ResourceStateCopySource              ResourceState = 0x800
	ResourceStateGenericRead             ResourceState = 0x1 | 0x2 | 0x40 | 0x80 | 0x200 | 0x800
	ResourceStatePresent                 ResourceState = 0x1000
	ResourceStateCommon                  ResourceState = 0x2000
)

// ShaderStage is a bit set of pipeline shader stages. Values match Vulkan.
type ShaderStage uint32

const (
	ShaderStageNone        ShaderStage = 0
	ShaderStageVertex      ShaderStage = 0x1
	ShaderStageTessControl ShaderStage = 0x2
	ShaderStageTessEval    ShaderStage = 0x4
	ShaderStageGeometry    ShaderStage = 0x8
	ShaderStageFragment    ShaderStage = 0x10
	ShaderStageCompute     ShaderStage = 0x20
	ShaderStageAllGraphics ShaderStage = 0x1F
)

func (s ShaderStage) String() string {
	if s == 0 {
		return "None"
	}
	names := []string{"Vertex", "TessControl", "TessEval", "Geometry", "Fragment", "Compute"}
	var parts []string
	for i, n := range names {
		if s&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// GPUTypes converts to the WebGPU stage set, dropping stages WebGPU lacks.
func (s ShaderStage) GPUTypes() gputypes.ShaderStages {
	var out gputypes.ShaderStages
	if s&ShaderStageVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&ShaderStageFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	if s&ShaderStageCompute != 0 {
		out |= gputypes.ShaderStageCompute
	}
	return out
}

// FillMode selects polygon rasterization.
type FillMode uint8

const (
	FillSolid FillMode = iota
	FillWireframe
)

// MemoryUsage is the residency class of a buffer.
type MemoryUsage uint8

const (
	MemoryUsageUnknown MemoryUsage = iota
	MemoryUsageGPUOnly
	MemoryUsageCPUOnly
	MemoryUsageCPUToGPU
	MemoryUsageGPUToCPU
)

// BufferFlags tune buffer creation.
type BufferFlags uint32

const (
	BufferFlagNone          BufferFlags = 0
	BufferFlagHostVisible   BufferFlags = 1 << 0
	BufferFlagPersistentMap BufferFlags = 1 << 1
	BufferFlagDedicated     BufferFlags = 1 << 2
)

// DynamicState is a bit set of pipeline state set at record time.
type DynamicState uint32

const (
	DynamicStateViewport DynamicState = 1 << iota
	DynamicStateScissor
	DynamicStateLineWidth
	DynamicStateDepthBias
	DynamicStateBlendConstants
	DynamicStateDepthBounds
	DynamicStateStencilCompareMask
	DynamicStateStencilWriteMask
	DynamicStateStencilReference
	DynamicStateCullMode
	DynamicStateFrontFace
	DynamicStatePrimitiveTopology
	dynamicStateCount = iota
)

// DynamicStateCore is the state every Vulkan 1.0 implementation supports.
const DynamicStateCore = DynamicStateViewport | DynamicStateScissor |
	DynamicStateLineWidth | DynamicStateDepthBias | DynamicStateBlendConstants |
	DynamicStateDepthBounds | DynamicStateStencilCompareMask |
	DynamicStateStencilWriteMask | DynamicStateStencilReference

func (d DynamicState) String() string {
	if d == 0 {
		return "None"
	}
	names := [...]string{
		"Viewport", "Scissor", "LineWidth", "DepthBias", "BlendConstants",
		"DepthBounds", "StencilCompareMask", "StencilWriteMask",
		"StencilReference", "CullMode", "FrontFace", "PrimitiveTopology",
	}
	var parts []string
	for i := range dynamicStateCount {
		if d&(1<<i) != 0 {
			parts = append(parts, names[i])
		}
	}
	return strings.Join(parts, "|")
}

// QueryType selects what a query pool counts.
type QueryType uint8

const (
	QueryTypeTimestamp QueryType = iota
	QueryTypeOcclusion
	QueryTypePipelineStatistics
)

// FenceStatus is the host view of a fence.
type FenceStatus uint8

const (
	FenceComplete FenceStatus = iota
	FenceIncomplete
	FenceNotSubmitted
)

func (s FenceStatus) String() string {
	switch s {
	case FenceComplete:
		return "Complete"
	case FenceIncomplete:
		return "Incomplete"
	case FenceNotSubmitted:
		return "NotSubmitted"
	default:
		return "Unknown"
	}
}

// AccessFlags are memory access types used in barriers. Values match Vulkan.
type AccessFlags uint32

const (
	AccessIndirectCommandRead         AccessFlags = 0x1
	AccessIndexRead                   AccessFlags = 0x2
	AccessVertexAttributeRead         AccessFlags = 0x4
	AccessUniformRead                 AccessFlags = 0x8
	AccessInputAttachmentRead         AccessFlags = 0x10
	AccessShaderRead                  AccessFlags = 0x20
	AccessShaderWrite                 AccessFlags = 0x40
	AccessColorAttachmentRead         AccessFlags = 0x80
	AccessColorAttachmentWrite        AccessFlags = 0x100
	AccessDepthStencilAttachmentRead  AccessFlags = 0x200
	AccessDepthStencilAttachmentWrite AccessFlags = 0x400
	AccessTransferRead                AccessFlags = 0x800
	AccessTransferWrite               AccessFlags = 0x1000
	AccessHostRead                    AccessFlags = 0x2000
	AccessHostWrite                   AccessFlags = 0x4000
	AccessMemoryRead                  AccessFlags = 0x8000
	AccessMemoryWrite                 AccessFlags = 0x10000
)

// ImageLayout is the memory layout of a texture. Values match Vulkan.
type ImageLayout uint32

const (
	ImageLayoutUndefined              ImageLayout = 0
	ImageLayoutGeneral                ImageLayout = 1
	ImageLayoutColorAttachment        ImageLayout = 2
	ImageLayoutDepthStencilAttachment ImageLayout = 3
	ImageLayoutDepthStencilReadOnly   ImageLayout = 4
	ImageLayoutShaderReadOnly         ImageLayout = 5
	ImageLayoutTransferSrc            ImageLayout = 6
	ImageLayoutTransferDst            ImageLayout = 7
	ImageLayoutPresentSrc             ImageLayout = 1000001002
)

// PipelineStage is a bit set of pipeline stages. Values match Vulkan.
type PipelineStage uint32

const (
	PipelineStageTopOfPipe             PipelineStage = 0x1
	PipelineStageDrawIndirect          PipelineStage = 0x2
	PipelineStageVertexInput           PipelineStage = 0x4
	PipelineStageVertexShader          PipelineStage = 0x8
	PipelineStageTessControlShader     PipelineStage = 0x10
	PipelineStageTessEvalShader        PipelineStage = 0x20
	PipelineStageGeometryShader        PipelineStage = 0x40
	PipelineStageFragmentShader        PipelineStage = 0x80
	PipelineStageEarlyFragmentTests    PipelineStage = 0x100
	PipelineStageLateFragmentTests     PipelineStage = 0x200
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
	PipelineStageComputeShader         PipelineStage = 0x800
	PipelineStageTransfer              PipelineStage = 0x1000
	PipelineStageBottomOfPipe          PipelineStage = 0x2000
	PipelineStageHost                  PipelineStage = 0x4000
	PipelineStageAllGraphics           PipelineStage = 0x8000
	PipelineStageAllCommands           PipelineStage = 0x10000
)

// ImageAspect selects planes of a texture. Values match Vulkan.
type ImageAspect uint32

const (
	ImageAspectColor   ImageAspect = 0x1
	ImageAspectDepth   ImageAspect = 0x2
	ImageAspectStencil ImageAspect = 0x4
)

// aspectOf derives the aspect mask of a format.
func aspectOf(f gputypes.TextureFormat) ImageAspect {
	if !f.IsDepthStencil() {
		return ImageAspectColor
	}
	var a ImageAspect
	if f.HasDepth() {
		a |= ImageAspectDepth
	}
	if f.HasStencil() {
		a |= ImageAspectStencil
	}
	return a
}

// Extent2D is a width/height pair in pixels.
type Extent2D struct {
	Width, Height uint32
}

// ClearValue is the clear color, or depth and stencil, of one attachment.
type ClearValue struct {
	Color   gputypes.Color
	Depth   float32
	Stencil uint32
}

// WholeSize selects the rest of a buffer from the given offset.
const WholeSize = ^uint64(0)

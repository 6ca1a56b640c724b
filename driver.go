package cgpu

import (
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"
)

// This file is the contract every backend satisfies. The core translates
// backend-agnostic descriptions (resource states, parameter tables, pipeline
// state) into the native-ready structs below, so a backend only performs
// one-to-one translation onto its API. Backends report failures with the
// sentinels from errors.go (ErrDeviceLost, ErrOutOfDate, ErrTimeout), wrapped
// with native context; the core classifies and logs them.

// Driver creates backend instances. Backends register a Driver under a name
// from an init function (see Register).
type Driver interface {
	CreateInstance(desc *InstanceDescriptor) (NativeInstance, error)
}

// InstanceDescriptor is the configuration handed to a Driver. It is filled
// by the InstanceOptions passed to CreateInstance.
type InstanceDescriptor struct {
	Logger                   *slog.Logger
	Allocator                Allocator
	EnableDebugLayer         bool
	EnableGPUBasedValidation bool
	EnableSetName            bool
	Extensions               []string
	Layers                   []string
	DeviceExtensions         []string
}

// NativeObject is implemented by everything a backend creates.
type NativeObject interface {
	Destroy()
}

// NativeHandle exposes the raw API handle of a bindable resource. It is the
// value written into descriptor update records.
type NativeHandle interface {
	NativeObject
	NativeHandle() uint64
}

// NativeInstance is a backend connection.
type NativeInstance interface {
	NativeObject
	Adapters() ([]NativeAdapter, error)
	Extensions() []string
	Layers() []string
	CreateSurface(w WindowHandle) (NativeSurface, error)
}

// QueueFamily describes one native queue family.
type QueueFamily struct {
	Flags              QueueFlags
	Count              uint32
	TimestampValidBits uint32
}

// AdapterDetail is the capability summary of one adapter.
type AdapterDetail struct {
	Info                      gputypes.AdapterInfo
	Limits                    gputypes.Limits
	SupportsGeometryShader    bool
	SupportsTessellation      bool
	SupportsUpdateTemplates   bool
	SupportsDynamicRendering  bool
	SupportsTimestamps        bool
	DynamicStates             DynamicState
	MaxVertexInputBindings    uint32
	MaxVertexAttributes       uint32
	UniformBufferAlignment    uint32
	UploadBufferAlignment     uint32
	UploadBufferRowAlignment  uint32
	TimestampPeriod           float32
	SupportsIndependentBlends bool
}

// SurfaceCapabilities is what a surface supports for one adapter.
type SurfaceCapabilities struct {
	MinImageCount       uint32
	MaxImageCount       uint32 // 0 means unbounded
	CurrentExtent       Extent2D
	MinExtent           Extent2D
	MaxExtent           Extent2D
	Formats             []gputypes.TextureFormat
	PresentModes        []gputypes.PresentMode
	CompositeAlpha      []gputypes.CompositeAlphaMode
	SupportedTransforms SurfaceTransform
	CurrentTransform    SurfaceTransform
}

// SurfaceTransform is a presentation transform bit set. Values match Vulkan.
type SurfaceTransform uint32

// SurfaceTransformIdentity presents without rotation.
const SurfaceTransformIdentity SurfaceTransform = 0x1

// NativeAdapter is one physical GPU.
type NativeAdapter interface {
	Detail() AdapterDetail
	QueueFamilies() []QueueFamily
	Extensions() []string
	SurfaceCapabilities(s NativeSurface) (*SurfaceCapabilities, error)
	SupportsPresent(family uint32, s NativeSurface) bool
	CreateDevice(desc *NativeDeviceDescriptor) (NativeDevice, error)
}

// QueueRequest asks for Count queues from one family.
type QueueRequest struct {
	Family uint32
	Count  uint32
}

// NativeDeviceDescriptor is the translated device request.
type NativeDeviceDescriptor struct {
	Queues     []QueueRequest
	Extensions []string
}

// NativeSurface is a presentable window surface.
type NativeSurface interface {
	NativeObject
}

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Name        string
	Size        uint64
	Descriptors ResourceType
	MemoryUsage MemoryUsage
	Flags       BufferFlags
	StartState  ResourceState
	OwnerQueue  *Queue
}

// TextureDescriptor describes a texture.
type TextureDescriptor struct {
	Name        string
	Width       uint32
	Height      uint32
	Depth       uint32
	ArraySize   uint32
	MipLevels   uint32
	SampleCount uint32
	Format      gputypes.TextureFormat
	Descriptors ResourceType
	StartState  ResourceState
	OwnerQueue  *Queue
}

// TextureViewDescriptor describes a view into a texture.
type TextureViewDescriptor struct {
	Name           string
	Texture        *Texture
	Format         gputypes.TextureFormat // Undefined inherits the texture format
	Dimension      gputypes.TextureViewDimension
	Aspect         ImageAspect // 0 derives from the format
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	ArrayLayers    uint32
	Usage          ResourceType
}

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Name          string
	MinFilter     gputypes.FilterMode
	MagFilter     gputypes.FilterMode
	MipmapMode    gputypes.MipmapFilterMode
	AddressU      gputypes.AddressMode
	AddressV      gputypes.AddressMode
	AddressW      gputypes.AddressMode
	MipLodBias    float32
	MaxAnisotropy float32
	Compare       gputypes.CompareFunction
}

// NativeBuffer is a GPU buffer.
type NativeBuffer interface {
	NativeHandle
	Map() ([]byte, error)
	Unmap()
}

// NativeTexture is a GPU image.
type NativeTexture interface {
	NativeHandle
}

// NativeTextureView is a view of a NativeTexture.
type NativeTextureView interface {
	NativeHandle
}

// NativeSampler is a sampler object.
type NativeSampler interface {
	NativeHandle
}

// NativeShaderLibrary is a compiled shader module.
type NativeShaderLibrary interface {
	NativeObject
}

// NativeTextureViewDescriptor is the resolved form of TextureViewDescriptor.
type NativeTextureViewDescriptor struct {
	Name           string
	Format         gputypes.TextureFormat
	Dimension      gputypes.TextureViewDimension
	Aspect         ImageAspect
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	ArrayLayers    uint32
}

// ShaderLibraryDescriptor carries shader code. Backends accept what their
// API consumes: SPIR-V words for Vulkan, WGSL or SPIR-V for the WebGPU HAL.
type ShaderLibraryDescriptor struct {
	Name       string
	SPIRV      []uint32
	WGSL       string
	Reflection *ShaderReflection
}

// SetLayoutBinding is one binding of a native descriptor set layout.
type SetLayoutBinding struct {
	Binding          uint32
	Type             ResourceType
	Count            uint32
	Stages           ShaderStage
	ImmutableSampler NativeSampler
}

// PushConstantRange is one native push constant range.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// TemplateEntry is one entry of a descriptor update template: Count records
// of the given type start at Offset in the record buffer, Stride apart.
type TemplateEntry struct {
	Binding uint32
	Type    ResourceType
	Count   uint32
	Offset  uint32
	Stride  uint32
}

// ImageInfo is one image or sampler element of a descriptor write.
type ImageInfo struct {
	Sampler uint64
	View    uint64
	Layout  ImageLayout
}

// BufferInfo is one buffer element of a descriptor write.
type BufferInfo struct {
	Buffer uint64
	Offset uint64
	Range  uint64
}

// DescriptorWrite updates consecutive array elements of one binding.
type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Type         ResourceType
	Images       []ImageInfo
	Buffers      []BufferInfo
}

// NativeSetLayout is a descriptor set layout.
type NativeSetLayout interface {
	NativeObject
}

// NativePipelineLayout is a pipeline layout.
type NativePipelineLayout interface {
	NativeObject
}

// NativeUpdateTemplate is a descriptor update template.
type NativeUpdateTemplate interface {
	NativeObject
}

// NativeDescriptorSet is an allocated descriptor set.
type NativeDescriptorSet interface {
	NativeObject
}

// ShaderStageEntry is one stage of a native pipeline.
type ShaderStageEntry struct {
	Stage   ShaderStage
	Library NativeShaderLibrary
	Entry   string
}

// VertexBinding is one resolved vertex buffer binding.
type VertexBinding struct {
	Binding  uint32
	Stride   uint32
	StepMode gputypes.VertexStepMode
}

// VertexAttribute is one resolved vertex attribute.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   gputypes.VertexFormat
	Offset   uint32
}

// ColorBlend is the resolved blend state of one render target.
type ColorBlend struct {
	Enable    bool
	SrcColor  gputypes.BlendFactor
	DstColor  gputypes.BlendFactor
	ColorOp   gputypes.BlendOperation
	SrcAlpha  gputypes.BlendFactor
	DstAlpha  gputypes.BlendFactor
	AlphaOp   gputypes.BlendOperation
	WriteMask gputypes.ColorWriteMask
}

// NativeRenderPipelineDescriptor is a render pipeline with every default
// resolved.
type NativeRenderPipelineDescriptor struct {
	Name            string
	Layout          NativePipelineLayout
	Stages          []ShaderStageEntry
	VertexBindings  []VertexBinding
	Attributes      []VertexAttribute
	Topology        gputypes.PrimitiveTopology
	Rasterizer      RasterizerState
	Depth           DepthState
	Blends          []ColorBlend
	AlphaToCoverage bool
	SampleCount     uint32
	ColorFormats    []gputypes.TextureFormat
	DepthFormat     gputypes.TextureFormat
	RenderPass      NativeRenderPass // nil for dynamic rendering
	Subpass         uint32
	DynamicStates   DynamicState
}

// NativeComputePipelineDescriptor is a compute pipeline.
type NativeComputePipelineDescriptor struct {
	Name   string
	Layout NativePipelineLayout
	Stage  ShaderStageEntry
}

// NativePipeline is a render or compute pipeline.
type NativePipeline interface {
	NativeObject
}

// AttachmentDescriptor is one color attachment of a render pass.
type AttachmentDescriptor struct {
	Format      gputypes.TextureFormat
	SampleCount uint32
	LoadOp      gputypes.LoadOp
	StoreOp     gputypes.StoreOp
}

// DepthAttachmentDescriptor is the depth/stencil attachment of a render pass.
type DepthAttachmentDescriptor struct {
	Format         gputypes.TextureFormat
	SampleCount    uint32
	DepthLoadOp    gputypes.LoadOp
	DepthStoreOp   gputypes.StoreOp
	StencilLoadOp  gputypes.LoadOp
	StencilStoreOp gputypes.StoreOp
}

// NativeRenderPassDescriptor is a single-subpass render pass.
type NativeRenderPassDescriptor struct {
	Name   string
	Colors []AttachmentDescriptor
	Depth  *DepthAttachmentDescriptor
}

// NativeRenderPass is a render pass object.
type NativeRenderPass interface {
	NativeObject
}

// NativeFramebufferDescriptor binds views to a render pass.
type NativeFramebufferDescriptor struct {
	RenderPass NativeRenderPass
	Views      []NativeTextureView
	Width      uint32
	Height     uint32
	Layers     uint32
}

// NativeFramebuffer is a framebuffer object.
type NativeFramebuffer interface {
	NativeObject
}

// NativeQueryPool is a query pool.
type NativeQueryPool interface {
	NativeObject
}

// NativeFence is a host-waitable fence.
type NativeFence interface {
	NativeObject
}

// NativeSemaphore is a GPU-side semaphore.
type NativeSemaphore interface {
	NativeObject
}

// BufferBarrier is one translated buffer barrier.
type BufferBarrier struct {
	Buffer                         NativeBuffer
	SrcState, DstState             ResourceState
	SrcAccess, DstAccess           AccessFlags
	SrcQueueFamily, DstQueueFamily uint32
	Offset, Size                   uint64
}

// TextureBarrier is one translated texture barrier.
type TextureBarrier struct {
	Texture                        NativeTexture
	SrcState, DstState             ResourceState
	SrcAccess, DstAccess           AccessFlags
	OldLayout, NewLayout           ImageLayout
	SrcQueueFamily, DstQueueFamily uint32
	Aspect                         ImageAspect
	BaseMipLevel, MipLevelCount    uint32
	BaseArrayLayer, ArrayLayers    uint32
}

// BarrierBatch is everything one native pipeline barrier call needs.
type BarrierBatch struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Buffers  []BufferBarrier
	Textures []TextureBarrier
}

// BufferCopy is one region of a buffer-to-buffer copy.
type BufferCopy struct {
	SrcOffset, DstOffset, Size uint64
}

// BufferTextureCopy is one region of a buffer-to-texture copy.
type BufferTextureCopy struct {
	BufferOffset   uint64
	BytesPerRow    uint32
	RowsPerImage   uint32
	Aspect         ImageAspect
	MipLevel       uint32
	BaseArrayLayer uint32
	LayerCount     uint32
	Width, Height  uint32
	DepthOrLayers  uint32
}

// NativeCommandPool allocates command buffers for one queue family.
type NativeCommandPool interface {
	NativeObject
	Allocate() (NativeCommandBuffer, error)
	Reset() error
}

// NativeCommandBuffer records commands. The core validates every call
// against the command buffer state machine before forwarding it.
type NativeCommandBuffer interface {
	Begin() error
	End() error
	Free()

	PipelineBarrier(b *BarrierBatch)

	BeginRenderPass(pass NativeRenderPass, fb NativeFramebuffer, clears []ClearValue)
	EndRenderPass()
	BeginComputePass()
	EndComputePass()

	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissor(x, y, width, height uint32)
	BindPipeline(p NativePipeline, compute bool)
	BindDescriptorSet(layout NativePipelineLayout, index uint32, set NativeDescriptorSet, compute bool)
	PushConstants(layout NativePipelineLayout, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []NativeBuffer, offsets []uint64)
	BindIndexBuffer(buffer NativeBuffer, offset uint64, format gputypes.IndexFormat)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	CopyBufferToBuffer(src, dst NativeBuffer, regions []BufferCopy)
	CopyBufferToTexture(src NativeBuffer, dst NativeTexture, regions []BufferTextureCopy)

	ResetQueryPool(pool NativeQueryPool, first, count uint32)
	WriteTimestamp(pool NativeQueryPool, index uint32)
	BeginQuery(pool NativeQueryPool, index uint32)
	EndQuery(pool NativeQueryPool, index uint32)
	ResolveQuery(pool NativeQueryPool, dst NativeBuffer, first, count uint32)

	BeginEvent(name string, color gputypes.Color)
	EndEvent()
	SetMarker(name string, color gputypes.Color)
}

// NativeSwapchainDescriptor is the resolved swapchain request.
type NativeSwapchainDescriptor struct {
	Surface        NativeSurface
	ImageCount     uint32
	Format         gputypes.TextureFormat
	Extent         Extent2D
	PresentMode    gputypes.PresentMode
	CompositeAlpha gputypes.CompositeAlphaMode
	Transform      SurfaceTransform
	Usage          gputypes.TextureUsage
	QueueFamilies  []uint32
	Old            NativeSwapchain
}

// NativeSwapchain is a presentable image chain.
type NativeSwapchain interface {
	NativeObject
	Images() []NativeTexture
	// Acquire returns ErrOutOfDate when the surface changed.
	Acquire(fence NativeFence, sem NativeSemaphore, timeout time.Duration) (uint32, error)
}

// NativeSubmit is one translated queue submission.
type NativeSubmit struct {
	CommandBuffers []NativeCommandBuffer
	Wait           []NativeSemaphore
	WaitStage      PipelineStage
	Signal         []NativeSemaphore
	Fence          NativeFence
}

// NativePresent is one translated present request.
type NativePresent struct {
	Swapchain NativeSwapchain
	Index     uint32
	Wait      []NativeSemaphore
}

// NativeQueue is a hardware queue.
type NativeQueue interface {
	Submit(s *NativeSubmit) error
	// Present returns ErrOutOfDate for stale swapchains.
	Present(p *NativePresent) error
	WaitIdle() error
}

// NativeDevice is a logical device.
type NativeDevice interface {
	NativeObject
	Queue(family, index uint32) (NativeQueue, error)

	CreateBuffer(desc *BufferDescriptor) (NativeBuffer, error)
	CreateTexture(desc *TextureDescriptor) (NativeTexture, error)
	CreateTextureView(t NativeTexture, desc *NativeTextureViewDescriptor) (NativeTextureView, error)
	CreateSampler(desc *SamplerDescriptor) (NativeSampler, error)
	CreateShaderLibrary(desc *ShaderLibraryDescriptor) (NativeShaderLibrary, error)

	CreateSetLayout(bindings []SetLayoutBinding) (NativeSetLayout, error)
	CreatePipelineLayout(sets []NativeSetLayout, push []PushConstantRange) (NativePipelineLayout, error)
	CreateUpdateTemplate(layout NativeSetLayout, pipeline NativePipelineLayout, set uint32, entries []TemplateEntry) (NativeUpdateTemplate, error)
	AllocateDescriptorSet(layout NativeSetLayout) (NativeDescriptorSet, error)
	UpdateDescriptorSetWithTemplate(set NativeDescriptorSet, tmpl NativeUpdateTemplate, records []byte) error
	WriteDescriptorSet(set NativeDescriptorSet, writes []DescriptorWrite) error

	CreateRenderPipeline(desc *NativeRenderPipelineDescriptor) (NativePipeline, error)
	CreateComputePipeline(desc *NativeComputePipelineDescriptor) (NativePipeline, error)
	CreateRenderPass(desc *NativeRenderPassDescriptor) (NativeRenderPass, error)
	CreateFramebuffer(desc *NativeFramebufferDescriptor) (NativeFramebuffer, error)
	CreateQueryPool(t QueryType, count uint32) (NativeQueryPool, error)

	CreateCommandPool(family uint32) (NativeCommandPool, error)
	CreateFence() (NativeFence, error)
	CreateSemaphore() (NativeSemaphore, error)
	// WaitFences blocks until every fence signals; timeout 0 waits forever.
	WaitFences(fences []NativeFence, timeout time.Duration) error
	ResetFences(fences []NativeFence) error
	FenceSignaled(f NativeFence) (bool, error)

	CreateSwapchain(desc *NativeSwapchainDescriptor) (NativeSwapchain, error)
	SetObjectName(obj NativeObject, name string)
	WaitIdle() error
}

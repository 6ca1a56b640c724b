package vulkan

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/cgpu"
	vk "github.com/goki/vulkan"
)

// check translates a VkResult into the cgpu sentinels the core classifies.
func check(op string, r vk.Result) error {
	switch r {
	case vk.Success, vk.Incomplete:
		return nil
	case vk.ErrorDeviceLost:
		return fmt.Errorf("vulkan: %s: %w: %w", op, cgpu.ErrDeviceLost, vk.Error(r))
	case vk.ErrorOutOfDate, vk.ErrorSurfaceLost:
		return fmt.Errorf("vulkan: %s: %w: %w", op, cgpu.ErrOutOfDate, vk.Error(r))
	case vk.Timeout, vk.NotReady:
		return fmt.Errorf("vulkan: %s: %w", op, cgpu.ErrTimeout)
	default:
		return fmt.Errorf("vulkan: %s: %w", op, vk.Error(r))
	}
}

// Device is a cgpu.NativeDevice over a VkDevice.
//
// Resources are named in descriptor writes by ids from a handle table, so
// no Vulkan handle is ever cast through an integer.
type Device struct {
	adapter  *Adapter
	handle   vk.Device
	log      *slog.Logger
	features vk.PhysicalDeviceFeatures
	cache    vk.PipelineCache
	queues   map[[2]uint32]*Queue

	nextHandle atomic.Uint64
	mu         sync.Mutex
	handles    map[uint64]any
}

func newDevice(a *Adapter, handle vk.Device, reqs []cgpu.QueueRequest, enabled vk.PhysicalDeviceFeatures) (*Device, error) {
	d := &Device{
		adapter:  a,
		handle:   handle,
		log:      a.instance.log,
		features: enabled,
		queues:   make(map[[2]uint32]*Queue),
		handles:  make(map[uint64]any),
	}
	for _, r := range reqs {
		for i := range r.Count {
			var q vk.Queue
			vk.GetDeviceQueue(handle, r.Family, i, &q)
			d.queues[[2]uint32{r.Family, i}] = &Queue{device: d, handle: q, family: r.Family}
		}
	}
	ret := vk.CreatePipelineCache(handle, &vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}, nil, &d.cache)
	if err := check("create pipeline cache", ret); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) register(obj any) uint64 {
	h := d.nextHandle.Add(1)
	d.mu.Lock()
	d.handles[h] = obj
	d.mu.Unlock()
	return h
}

func (d *Device) unregister(h uint64) {
	d.mu.Lock()
	delete(d.handles, h)
	d.mu.Unlock()
}

func (d *Device) lookup(h uint64) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handles[h]
}

// Queue implements cgpu.NativeDevice.
func (d *Device) Queue(family, index uint32) (cgpu.NativeQueue, error) {
	q, ok := d.queues[[2]uint32{family, index}]
	if !ok {
		return nil, fmt.Errorf("vulkan: queue %d of family %d was not requested: %w", index, family, cgpu.ErrNoQueue)
	}
	return q, nil
}

// handle is embedded by every resource descriptor writes can name.
type handle struct {
	device *Device
	id     uint64
}

func (h *handle) NativeHandle() uint64 { return h.id }

func (h *handle) release() { h.device.unregister(h.id) }

// allocate backs an object with memory that satisfies reqs.
func (d *Device) allocate(reqs vk.MemoryRequirements, required, preferred vk.MemoryPropertyFlagBits) (vk.DeviceMemory, vk.MemoryPropertyFlagBits, error) {
	reqs.Deref()
	idx, ok := memoryTypeIndex(d.adapter.memory, reqs.MemoryTypeBits, required, preferred)
	if !ok {
		return vk.NullDeviceMemory, 0, fmt.Errorf("vulkan: no memory type for bits %#x with %#x: %w",
			reqs.MemoryTypeBits, required, cgpu.ErrCreationFailed)
	}
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: idx,
	}, nil, &mem)
	if err := check("allocate memory", ret); err != nil {
		return vk.NullDeviceMemory, 0, err
	}
	return mem, d.adapter.memory[idx], nil
}

// Buffer is a VkBuffer with its own memory allocation.
type Buffer struct {
	handle
	buffer     vk.Buffer
	memory     vk.DeviceMemory
	size       uint64
	hostVis    bool
	persistent bool

	mu     sync.Mutex
	mapped []byte
}

// CreateBuffer implements cgpu.NativeDevice.
func (d *Device) CreateBuffer(desc *cgpu.BufferDescriptor) (cgpu.NativeBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("vulkan: buffer %q has zero size: %w", desc.Name, cgpu.ErrCreationFailed)
	}
	var buf vk.Buffer
	ret := vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Descriptors),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if err := check("create buffer", ret); err != nil {
		return nil, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, buf, &reqs)
	required, preferred := memoryProperties(desc.MemoryUsage, desc.Flags)
	mem, props, err := d.allocate(reqs, required, preferred)
	if err != nil {
		vk.DestroyBuffer(d.handle, buf, nil)
		return nil, err
	}
	if err := check("bind buffer memory", vk.BindBufferMemory(d.handle, buf, mem, 0)); err != nil {
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyBuffer(d.handle, buf, nil)
		return nil, err
	}
	b := &Buffer{
		buffer:     buf,
		memory:     mem,
		size:       desc.Size,
		hostVis:    props&vk.MemoryPropertyHostVisibleBit != 0,
		persistent: desc.Flags&cgpu.BufferFlagPersistentMap != 0,
	}
	b.handle = handle{device: d, id: d.register(b)}
	if b.persistent {
		if _, err := b.Map(); err != nil {
			b.Destroy()
			return nil, err
		}
	}
	return b, nil
}

// Map implements cgpu.NativeBuffer. Persistently mapped buffers return the
// same slice every time.
func (b *Buffer) Map() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapped != nil {
		return b.mapped, nil
	}
	if !b.hostVis {
		return nil, fmt.Errorf("vulkan: map of a device-local buffer: %w", cgpu.ErrInvalidState)
	}
	var ptr unsafe.Pointer
	if err := check("map memory", vk.MapMemory(b.device.handle, b.memory, 0, vk.DeviceSize(b.size), 0, &ptr)); err != nil {
		return nil, err
	}
	b.mapped = unsafe.Slice((*byte)(ptr), b.size)
	return b.mapped, nil
}

// Unmap implements cgpu.NativeBuffer.
func (b *Buffer) Unmap() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapped == nil || b.persistent {
		return
	}
	vk.UnmapMemory(b.device.handle, b.memory)
	b.mapped = nil
}

// Destroy implements cgpu.NativeObject.
func (b *Buffer) Destroy() {
	b.release()
	b.mu.Lock()
	if b.mapped != nil {
		vk.UnmapMemory(b.device.handle, b.memory)
		b.mapped = nil
	}
	b.mu.Unlock()
	vk.DestroyBuffer(b.device.handle, b.buffer, nil)
	vk.FreeMemory(b.device.handle, b.memory, nil)
}

// Texture is a VkImage. Swapchain images are owned by their swapchain and
// have no memory of their own.
type Texture struct {
	handle
	image   vk.Image
	memory  vk.DeviceMemory
	typ     vk.ImageType
	format  vk.Format
	cube    bool
	layers  uint32
	mips    uint32
	owned   bool
	extent  vk.Extent3D

	// fresh is set until the first barrier, which must discard contents
	// since the image starts in the undefined layout.
	fresh atomic.Bool
}

// CreateTexture implements cgpu.NativeDevice.
func (d *Device) CreateTexture(desc *cgpu.TextureDescriptor) (cgpu.NativeTexture, error) {
	format := textureFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("vulkan: texture %q format %v: %w", desc.Name, desc.Format, cgpu.ErrUnsupported)
	}
	typ := imageType(desc)
	extent := vk.Extent3D{Width: max(desc.Width, 1), Height: max(desc.Height, 1), Depth: 1}
	layers := max(desc.ArraySize, 1)
	if typ == vk.ImageType3d {
		extent.Depth = desc.Depth
		layers = 1
	}
	usage := imageUsage(desc.Descriptors)
	if desc.Format.IsDepthStencil() && desc.Descriptors&cgpu.ResourceTypeRenderTarget != 0 {
		usage = usage&^vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) |
			vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	cube := desc.Descriptors&cgpu.ResourceTypeTextureCube == cgpu.ResourceTypeTextureCube
	var flags vk.ImageCreateFlags
	if cube {
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	mips := max(desc.MipLevels, 1)

	var img vk.Image
	ret := vk.CreateImage(d.handle, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		Flags:         flags,
		ImageType:     typ,
		Format:        format,
		Extent:        extent,
		MipLevels:     mips,
		ArrayLayers:   layers,
		Samples:       vk.SampleCountFlagBits(max(desc.SampleCount, 1)),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img)
	if err := check("create image", ret); err != nil {
		return nil, err
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, img, &reqs)
	mem, _, err := d.allocate(reqs, 0, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.handle, img, nil)
		return nil, err
	}
	if err := check("bind image memory", vk.BindImageMemory(d.handle, img, mem, 0)); err != nil {
		vk.FreeMemory(d.handle, mem, nil)
		vk.DestroyImage(d.handle, img, nil)
		return nil, err
	}
	t := &Texture{
		image:  img,
		memory: mem,
		typ:    typ,
		format: format,
		cube:   cube,
		layers: layers,
		mips:   mips,
		owned:  true,
		extent: extent,
	}
	t.fresh.Store(true)
	t.handle = handle{device: d, id: d.register(t)}
	return t, nil
}

// Destroy implements cgpu.NativeObject.
func (t *Texture) Destroy() {
	t.release()
	if !t.owned {
		return
	}
	vk.DestroyImage(t.device.handle, t.image, nil)
	vk.FreeMemory(t.device.handle, t.memory, nil)
}

// TextureView is a VkImageView.
type TextureView struct {
	handle
	view    vk.ImageView
	texture *Texture
}

// CreateTextureView implements cgpu.NativeDevice.
func (d *Device) CreateTextureView(nt cgpu.NativeTexture, desc *cgpu.NativeTextureViewDescriptor) (cgpu.NativeTextureView, error) {
	t, ok := nt.(*Texture)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign texture %T", nt)
	}
	format := t.format
	if desc.Format != 0 {
		format = textureFormat(desc.Format)
	}
	levels := desc.MipLevelCount
	if levels == 0 {
		levels = t.mips - desc.BaseMipLevel
	}
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = t.layers - desc.BaseArrayLayer
	}
	aspect := desc.Aspect
	if aspect == 0 {
		aspect = cgpu.ImageAspectColor
	}
	var view vk.ImageView
	ret := vk.CreateImageView(d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.image,
		ViewType: viewType(desc.Dimension, t.typ, t.cube, layers),
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   desc.BaseMipLevel,
			LevelCount:     levels,
			BaseArrayLayer: desc.BaseArrayLayer,
			LayerCount:     layers,
		},
	}, nil, &view)
	if err := check("create image view", ret); err != nil {
		return nil, err
	}
	v := &TextureView{view: view, texture: t}
	v.handle = handle{device: d, id: d.register(v)}
	return v, nil
}

// Destroy implements cgpu.NativeObject.
func (v *TextureView) Destroy() {
	v.release()
	vk.DestroyImageView(v.device.handle, v.view, nil)
}

// Sampler is a VkSampler.
type Sampler struct {
	handle
	sampler vk.Sampler
}

// CreateSampler implements cgpu.NativeDevice. Anisotropy is only enabled
// when the device feature is on.
func (d *Device) CreateSampler(desc *cgpu.SamplerDescriptor) (cgpu.NativeSampler, error) {
	aniso := d.features.SamplerAnisotropy == vk.True && desc.MaxAnisotropy > 1
	var s vk.Sampler
	ret := vk.CreateSampler(d.handle, &vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filter(desc.MagFilter),
		MinFilter:        filter(desc.MinFilter),
		MipmapMode:       mipmapMode(desc.MipmapMode),
		AddressModeU:     addressMode(desc.AddressU),
		AddressModeV:     addressMode(desc.AddressV),
		AddressModeW:     addressMode(desc.AddressW),
		MipLodBias:       desc.MipLodBias,
		AnisotropyEnable: vkBool(aniso),
		MaxAnisotropy:    max(desc.MaxAnisotropy, 1),
		CompareEnable:    vkBool(desc.Compare != 0),
		CompareOp:        compareOp(desc.Compare),
		MaxLod:           1000,
		BorderColor:      vk.BorderColorFloatTransparentBlack,
	}, nil, &s)
	if err := check("create sampler", ret); err != nil {
		return nil, err
	}
	out := &Sampler{sampler: s}
	out.handle = handle{device: d, id: d.register(out)}
	return out, nil
}

// Destroy implements cgpu.NativeObject.
func (s *Sampler) Destroy() {
	s.release()
	vk.DestroySampler(s.device.handle, s.sampler, nil)
}

// ShaderLibrary is a VkShaderModule.
type ShaderLibrary struct {
	device *Device
	module vk.ShaderModule
}

// CreateShaderLibrary implements cgpu.NativeDevice. Only SPIR-V is
// accepted; WGSL has to be compiled first.
func (d *Device) CreateShaderLibrary(desc *cgpu.ShaderLibraryDescriptor) (cgpu.NativeShaderLibrary, error) {
	if len(desc.SPIRV) == 0 {
		return nil, fmt.Errorf("vulkan: shader %q has no SPIR-V: %w", desc.Name, cgpu.ErrUnsupported)
	}
	var mod vk.ShaderModule
	ret := vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(desc.SPIRV) * 4),
		PCode:    desc.SPIRV,
	}, nil, &mod)
	if err := check("create shader module", ret); err != nil {
		return nil, err
	}
	return &ShaderLibrary{device: d, module: mod}, nil
}

// Destroy implements cgpu.NativeObject.
func (s *ShaderLibrary) Destroy() {
	vk.DestroyShaderModule(s.device.handle, s.module, nil)
}

// SetObjectName implements cgpu.NativeDevice. Names reach the log only.
func (d *Device) SetObjectName(obj cgpu.NativeObject, name string) {
	d.log.Debug("vulkan: object named", "name", name, "type", fmt.Sprintf("%T", obj))
}

// WaitIdle implements cgpu.NativeDevice.
func (d *Device) WaitIdle() error {
	return check("device wait idle", vk.DeviceWaitIdle(d.handle))
}

// Destroy implements cgpu.NativeObject.
func (d *Device) Destroy() {
	if err := d.WaitIdle(); err != nil {
		d.log.Warn("vulkan: wait idle before destroy", "error", err)
	}
	vk.DestroyPipelineCache(d.handle, d.cache, nil)
	vk.DestroyDevice(d.handle, nil)
}

var _ cgpu.NativeDevice = (*Device)(nil)

package null

import (
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/cgpu"
)

// Device is a null cgpu.NativeDevice.
type Device struct {
	object
	adapter *Adapter
	queues  []cgpu.QueueRequest
}

// Recorder returns the call log.
func (d *Device) Recorder() *Recorder { return d.rec }

// Queue implements cgpu.NativeDevice.
func (d *Device) Queue(family, index uint32) (cgpu.NativeQueue, error) {
	if err := d.rec.record("GetQueue", family, index); err != nil {
		return nil, err
	}
	for _, q := range d.queues {
		if q.Family == family && index < q.Count {
			return &Queue{rec: d.rec, family: family, index: index}, nil
		}
	}
	return nil, fmt.Errorf("null: queue %d of family %d was not requested", index, family)
}

// Buffer is a null buffer backed by host memory.
type Buffer struct {
	object
	Desc cgpu.BufferDescriptor
	data []byte
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Map returns the buffer contents.
func (b *Buffer) Map() ([]byte, error) {
	if err := b.rec.record("MapBuffer", b.handle); err != nil {
		return nil, err
	}
	return b.data, nil
}

func (b *Buffer) Unmap() { _ = b.rec.record("UnmapBuffer", b.handle) }

// CreateBuffer implements cgpu.NativeDevice.
func (d *Device) CreateBuffer(desc *cgpu.BufferDescriptor) (cgpu.NativeBuffer, error) {
	if err := d.rec.record("CreateBuffer", *desc); err != nil {
		return nil, err
	}
	return &Buffer{object: newObject(d.rec, "Buffer"), Desc: *desc, data: make([]byte, desc.Size)}, nil
}

// Texture is a null image.
type Texture struct {
	object
	Desc cgpu.TextureDescriptor
}

// CreateTexture implements cgpu.NativeDevice.
func (d *Device) CreateTexture(desc *cgpu.TextureDescriptor) (cgpu.NativeTexture, error) {
	if err := d.rec.record("CreateTexture", *desc); err != nil {
		return nil, err
	}
	return &Texture{object: newObject(d.rec, "Texture"), Desc: *desc}, nil
}

// TextureView is a null image view.
type TextureView struct {
	object
	Texture cgpu.NativeTexture
	Desc    cgpu.NativeTextureViewDescriptor
}

// CreateTextureView implements cgpu.NativeDevice.
func (d *Device) CreateTextureView(t cgpu.NativeTexture, desc *cgpu.NativeTextureViewDescriptor) (cgpu.NativeTextureView, error) {
	if err := d.rec.record("CreateTextureView", *desc); err != nil {
		return nil, err
	}
	return &TextureView{object: newObject(d.rec, "TextureView"), Texture: t, Desc: *desc}, nil
}

// Sampler is a null sampler.
type Sampler struct {
	object
	Desc cgpu.SamplerDescriptor
}

// CreateSampler implements cgpu.NativeDevice.
func (d *Device) CreateSampler(desc *cgpu.SamplerDescriptor) (cgpu.NativeSampler, error) {
	if err := d.rec.record("CreateSampler", *desc); err != nil {
		return nil, err
	}
	return &Sampler{object: newObject(d.rec, "Sampler"), Desc: *desc}, nil
}

// ShaderLibrary is a null shader module.
type ShaderLibrary struct {
	object
	Name string
}

// CreateShaderLibrary implements cgpu.NativeDevice.
func (d *Device) CreateShaderLibrary(desc *cgpu.ShaderLibraryDescriptor) (cgpu.NativeShaderLibrary, error) {
	if err := d.rec.record("CreateShaderLibrary", desc.Name); err != nil {
		return nil, err
	}
	if len(desc.SPIRV) == 0 && desc.WGSL == "" {
		return nil, fmt.Errorf("null: shader library %q has no code", desc.Name)
	}
	return &ShaderLibrary{object: newObject(d.rec, "ShaderLibrary"), Name: desc.Name}, nil
}

// SetLayout is a null descriptor set layout.
type SetLayout struct {
	object
	Bindings []cgpu.SetLayoutBinding
}

// CreateSetLayout implements cgpu.NativeDevice.
func (d *Device) CreateSetLayout(bindings []cgpu.SetLayoutBinding) (cgpu.NativeSetLayout, error) {
	b := slices.Clone(bindings)
	if err := d.rec.record("CreateSetLayout", b); err != nil {
		return nil, err
	}
	return &SetLayout{object: newObject(d.rec, "SetLayout"), Bindings: b}, nil
}

// PipelineLayout is a null pipeline layout.
type PipelineLayout struct {
	object
	Sets []cgpu.NativeSetLayout
	Push []cgpu.PushConstantRange
}

// CreatePipelineLayout implements cgpu.NativeDevice.
func (d *Device) CreatePipelineLayout(sets []cgpu.NativeSetLayout, push []cgpu.PushConstantRange) (cgpu.NativePipelineLayout, error) {
	if err := d.rec.record("CreatePipelineLayout", len(sets), slices.Clone(push)); err != nil {
		return nil, err
	}
	return &PipelineLayout{object: newObject(d.rec, "PipelineLayout"), Sets: slices.Clone(sets), Push: slices.Clone(push)}, nil
}

// UpdateTemplate is a null descriptor update template.
type UpdateTemplate struct {
	object
	Set     uint32
	Entries []cgpu.TemplateEntry
}

// CreateUpdateTemplate implements cgpu.NativeDevice.
func (d *Device) CreateUpdateTemplate(layout cgpu.NativeSetLayout, pipeline cgpu.NativePipelineLayout, set uint32, entries []cgpu.TemplateEntry) (cgpu.NativeUpdateTemplate, error) {
	e := slices.Clone(entries)
	if err := d.rec.record("CreateUpdateTemplate", set, e); err != nil {
		return nil, err
	}
	return &UpdateTemplate{object: newObject(d.rec, "UpdateTemplate"), Set: set, Entries: e}, nil
}

// DescriptorSet is a null descriptor set. It keeps the last template
// records and every write applied to it.
type DescriptorSet struct {
	object
	Layout  *SetLayout
	Records []byte
	Writes  []cgpu.DescriptorWrite
}

// AllocateDescriptorSet implements cgpu.NativeDevice.
func (d *Device) AllocateDescriptorSet(layout cgpu.NativeSetLayout) (cgpu.NativeDescriptorSet, error) {
	if err := d.rec.record("AllocateDescriptorSet"); err != nil {
		return nil, err
	}
	l, _ := layout.(*SetLayout)
	return &DescriptorSet{object: newObject(d.rec, "DescriptorSet"), Layout: l}, nil
}

// UpdateDescriptorSetWithTemplate implements cgpu.NativeDevice.
func (d *Device) UpdateDescriptorSetWithTemplate(set cgpu.NativeDescriptorSet, tmpl cgpu.NativeUpdateTemplate, records []byte) error {
	r := slices.Clone(records)
	if err := d.rec.record("UpdateDescriptorSetWithTemplate", r); err != nil {
		return err
	}
	set.(*DescriptorSet).Records = r
	return nil
}

// WriteDescriptorSet implements cgpu.NativeDevice.
func (d *Device) WriteDescriptorSet(set cgpu.NativeDescriptorSet, writes []cgpu.DescriptorWrite) error {
	w := make([]cgpu.DescriptorWrite, len(writes))
	for i, dw := range writes {
		dw.Images = slices.Clone(dw.Images)
		dw.Buffers = slices.Clone(dw.Buffers)
		w[i] = dw
	}
	if err := d.rec.record("WriteDescriptorSet", w); err != nil {
		return err
	}
	ds := set.(*DescriptorSet)
	ds.Writes = append(ds.Writes, w...)
	return nil
}

// Pipeline is a null pipeline. Exactly one of Render and Compute is set.
type Pipeline struct {
	object
	Render  *cgpu.NativeRenderPipelineDescriptor
	Compute *cgpu.NativeComputePipelineDescriptor
}

// CreateRenderPipeline implements cgpu.NativeDevice.
func (d *Device) CreateRenderPipeline(desc *cgpu.NativeRenderPipelineDescriptor) (cgpu.NativePipeline, error) {
	if err := d.rec.record("CreateRenderPipeline", desc.Name); err != nil {
		return nil, err
	}
	cp := *desc
	return &Pipeline{object: newObject(d.rec, "Pipeline"), Render: &cp}, nil
}

// CreateComputePipeline implements cgpu.NativeDevice.
func (d *Device) CreateComputePipeline(desc *cgpu.NativeComputePipelineDescriptor) (cgpu.NativePipeline, error) {
	if err := d.rec.record("CreateComputePipeline", desc.Name); err != nil {
		return nil, err
	}
	cp := *desc
	return &Pipeline{object: newObject(d.rec, "Pipeline"), Compute: &cp}, nil
}

// RenderPass is a null render pass.
type RenderPass struct {
	object
	Desc cgpu.NativeRenderPassDescriptor
}

// CreateRenderPass implements cgpu.NativeDevice.
func (d *Device) CreateRenderPass(desc *cgpu.NativeRenderPassDescriptor) (cgpu.NativeRenderPass, error) {
	if err := d.rec.record("CreateRenderPass", desc.Name); err != nil {
		return nil, err
	}
	return &RenderPass{object: newObject(d.rec, "RenderPass"), Desc: *desc}, nil
}

// Framebuffer is a null framebuffer.
type Framebuffer struct {
	object
	Desc cgpu.NativeFramebufferDescriptor
}

// CreateFramebuffer implements cgpu.NativeDevice.
func (d *Device) CreateFramebuffer(desc *cgpu.NativeFramebufferDescriptor) (cgpu.NativeFramebuffer, error) {
	if err := d.rec.record("CreateFramebuffer", desc.Width, desc.Height); err != nil {
		return nil, err
	}
	return &Framebuffer{object: newObject(d.rec, "Framebuffer"), Desc: *desc}, nil
}

// QueryPool is a null query pool. Timestamps written by submitted command
// buffers read back as the order they were written in.
type QueryPool struct {
	object
	Type   cgpu.QueryType
	Values []uint64
}

// CreateQueryPool implements cgpu.NativeDevice.
func (d *Device) CreateQueryPool(t cgpu.QueryType, count uint32) (cgpu.NativeQueryPool, error) {
	if err := d.rec.record("CreateQueryPool", t, count); err != nil {
		return nil, err
	}
	return &QueryPool{object: newObject(d.rec, "QueryPool"), Type: t, Values: make([]uint64, count)}, nil
}

// CreateCommandPool implements cgpu.NativeDevice.
func (d *Device) CreateCommandPool(family uint32) (cgpu.NativeCommandPool, error) {
	if err := d.rec.record("CreateCommandPool", family); err != nil {
		return nil, err
	}
	return &CommandPool{object: newObject(d.rec, "CommandPool"), family: family}, nil
}

// Fence is a null fence.
type Fence struct {
	object
	signaled bool
}

// Signaled reports whether the fence is signaled.
func (f *Fence) Signaled() bool { return f.signaled }

// CreateFence implements cgpu.NativeDevice.
func (d *Device) CreateFence() (cgpu.NativeFence, error) {
	if err := d.rec.record("CreateFence"); err != nil {
		return nil, err
	}
	return &Fence{object: newObject(d.rec, "Fence")}, nil
}

// Semaphore is a null binary semaphore.
type Semaphore struct {
	object
	signaled bool
}

// Signaled reports whether the semaphore is signaled.
func (s *Semaphore) Signaled() bool { return s.signaled }

// CreateSemaphore implements cgpu.NativeDevice.
func (d *Device) CreateSemaphore() (cgpu.NativeSemaphore, error) {
	if err := d.rec.record("CreateSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{object: newObject(d.rec, "Semaphore")}, nil
}

// WaitFences implements cgpu.NativeDevice. Work completes at submit, so an
// unsignaled fence will never signal: it fails with cgpu.ErrTimeout instead
// of blocking, whatever the timeout.
func (d *Device) WaitFences(fences []cgpu.NativeFence, timeout time.Duration) error {
	if err := d.rec.record("WaitFences", len(fences), timeout); err != nil {
		return err
	}
	for _, f := range fences {
		if !f.(*Fence).signaled {
			return fmt.Errorf("null: fence %d never signaled: %w", f.(*Fence).handle, cgpu.ErrTimeout)
		}
	}
	return nil
}

// ResetFences implements cgpu.NativeDevice.
func (d *Device) ResetFences(fences []cgpu.NativeFence) error {
	if err := d.rec.record("ResetFences", len(fences)); err != nil {
		return err
	}
	for _, f := range fences {
		f.(*Fence).signaled = false
	}
	return nil
}

// FenceSignaled implements cgpu.NativeDevice.
func (d *Device) FenceSignaled(f cgpu.NativeFence) (bool, error) {
	if err := d.rec.record("FenceSignaled"); err != nil {
		return false, err
	}
	return f.(*Fence).signaled, nil
}

// CreateSwapchain implements cgpu.NativeDevice.
func (d *Device) CreateSwapchain(desc *cgpu.NativeSwapchainDescriptor) (cgpu.NativeSwapchain, error) {
	if err := d.rec.record("CreateSwapchain", *desc); err != nil {
		return nil, err
	}
	s := &Swapchain{object: newObject(d.rec, "Swapchain"), Desc: *desc}
	for range desc.ImageCount {
		s.images = append(s.images, &Texture{
			object: newObject(d.rec, "SwapchainImage"),
			Desc: cgpu.TextureDescriptor{
				Width: desc.Extent.Width, Height: desc.Extent.Height,
				Depth: 1, ArraySize: 1, MipLevels: 1, SampleCount: 1,
				Format: desc.Format,
			},
		})
	}
	return s, nil
}

// SetObjectName implements cgpu.NativeDevice.
func (d *Device) SetObjectName(obj cgpu.NativeObject, name string) {
	_ = d.rec.record("SetObjectName", obj, name)
}

// WaitIdle implements cgpu.NativeDevice.
func (d *Device) WaitIdle() error { return d.rec.record("WaitIdle") }

// Swapchain is a null swapchain handing out images round robin.
type Swapchain struct {
	object
	Desc   cgpu.NativeSwapchainDescriptor
	images []cgpu.NativeTexture
	next   uint32
}

// Images implements cgpu.NativeSwapchain.
func (s *Swapchain) Images() []cgpu.NativeTexture { return s.images }

// Acquire implements cgpu.NativeSwapchain.
func (s *Swapchain) Acquire(fence cgpu.NativeFence, sem cgpu.NativeSemaphore, timeout time.Duration) (uint32, error) {
	if err := s.rec.record("Acquire", s.next); err != nil {
		return 0, err
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	if f, ok := fence.(*Fence); ok {
		f.signaled = true
	}
	if sm, ok := sem.(*Semaphore); ok {
		sm.signaled = true
	}
	return idx, nil
}

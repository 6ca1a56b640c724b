package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/wgpu/hal"
)

// mapError translates HAL sentinels into the cgpu sentinels the core
// classifies.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceLost):
		return fmt.Errorf("wgpu: %s: %w: %w", op, cgpu.ErrDeviceLost, err)
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost):
		return fmt.Errorf("wgpu: %s: %w: %w", op, cgpu.ErrOutOfDate, err)
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
		return fmt.Errorf("wgpu: %s: %w: %w", op, cgpu.ErrTimeout, err)
	case errors.Is(err, hal.ErrTimestampsNotSupported):
		return fmt.Errorf("wgpu: %s: %w: %w", op, cgpu.ErrUnsupported, err)
	default:
		return fmt.Errorf("wgpu: %s: %w", op, err)
	}
}

// Device is a cgpu.NativeDevice over a hal.Device and its single queue.
//
// Descriptor writes name resources by the handles this package hands out,
// not by HAL handles, which may all be zero on backends without native
// objects. The handle table resolves them back.
type Device struct {
	adapter *Adapter
	hal     hal.Device
	queue   *Queue
	log     *slog.Logger

	nextHandle atomic.Uint64
	mu         sync.Mutex
	handles    map[uint64]any
}

func newDevice(a *Adapter, od hal.OpenDevice) *Device {
	d := &Device{
		adapter: a,
		hal:     od.Device,
		log:     a.instance.log,
		handles: make(map[uint64]any),
	}
	d.queue = &Queue{device: d, hal: od.Queue}
	return d
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
	if family != 0 || index != 0 {
		return nil, fmt.Errorf("wgpu: no queue %d in family %d", index, family)
	}
	return d.queue, nil
}

// handle is embedded by every resource descriptor writes can name.
type handle struct {
	device *Device
	id     uint64
}

func (h *handle) NativeHandle() uint64 { return h.id }

func (h *handle) release() { h.device.unregister(h.id) }

// Buffer wraps a hal.Buffer.
type Buffer struct {
	handle
	hal  hal.Buffer
	size uint64
}

// CreateBuffer implements cgpu.NativeDevice.
func (d *Device) CreateBuffer(desc *cgpu.BufferDescriptor) (cgpu.NativeBuffer, error) {
	hb, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Name,
		Size:  desc.Size,
		Usage: bufferUsage(desc),
	})
	if err != nil {
		return nil, mapError("create buffer", err)
	}
	b := &Buffer{hal: hb, size: desc.Size}
	b.handle = handle{device: d, id: d.register(b)}
	return b, nil
}

// Map implements cgpu.NativeBuffer.
func (b *Buffer) Map() ([]byte, error) {
	m, err := b.device.hal.MapBuffer(b.hal, 0, b.size)
	if err != nil {
		return nil, mapError("map buffer", err)
	}
	return unsafe.Slice((*byte)(m.Ptr), b.size), nil
}

// Unmap implements cgpu.NativeBuffer.
func (b *Buffer) Unmap() {
	if err := b.device.hal.UnmapBuffer(b.hal); err != nil {
		b.device.log.Warn("wgpu: unmap buffer", "error", err)
	}
}

// Destroy implements cgpu.NativeObject.
func (b *Buffer) Destroy() {
	b.release()
	b.device.hal.DestroyBuffer(b.hal)
}

// Texture wraps a hal.Texture. Swapchain images have no texture of their
// own; they resolve to the surface texture of the current acquisition.
type Texture struct {
	handle
	hal   hal.Texture
	image *swapchainImage
}

func (t *Texture) current() hal.Texture {
	if t.image != nil {
		return t.image.texture()
	}
	return t.hal
}

// CreateTexture implements cgpu.NativeDevice.
func (d *Device) CreateTexture(desc *cgpu.TextureDescriptor) (cgpu.NativeTexture, error) {
	layers := desc.Depth
	if layers <= 1 {
		layers = max(desc.ArraySize, 1)
	}
	ht, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Name,
		Size:          hal.Extent3D{Width: desc.Width, Height: max(desc.Height, 1), DepthOrArrayLayers: layers},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     textureDimension(desc),
		Format:        desc.Format,
		Usage:         textureUsage(desc.Descriptors),
	})
	if err != nil {
		return nil, mapError("create texture", err)
	}
	t := &Texture{hal: ht}
	t.handle = handle{device: d, id: d.register(t)}
	return t, nil
}

// Destroy implements cgpu.NativeObject.
func (t *Texture) Destroy() {
	t.release()
	if t.hal != nil {
		t.device.hal.DestroyTexture(t.hal)
	}
}

// TextureView wraps a hal.TextureView. Views of swapchain images are
// created per acquisition.
type TextureView struct {
	handle
	texture *Texture
	desc    hal.TextureViewDescriptor

	mu     sync.Mutex
	hal    hal.TextureView
	source hal.Texture
}

// CreateTextureView implements cgpu.NativeDevice.
func (d *Device) CreateTextureView(t cgpu.NativeTexture, desc *cgpu.NativeTextureViewDescriptor) (cgpu.NativeTextureView, error) {
	tex, ok := t.(*Texture)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign texture %T", t)
	}
	v := &TextureView{
		texture: tex,
		desc: hal.TextureViewDescriptor{
			Label:           desc.Name,
			Format:          desc.Format,
			Dimension:       desc.Dimension,
			Aspect:          aspect(desc.Aspect),
			BaseMipLevel:    desc.BaseMipLevel,
			MipLevelCount:   desc.MipLevelCount,
			BaseArrayLayer:  desc.BaseArrayLayer,
			ArrayLayerCount: desc.ArrayLayers,
		},
	}
	v.handle = handle{device: d, id: d.register(v)}
	if tex.image == nil {
		if _, err := v.resolve(); err != nil {
			v.release()
			return nil, err
		}
	}
	return v, nil
}

// resolve returns the HAL view of the texture's current contents.
func (v *TextureView) resolve() (hal.TextureView, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	src := v.texture.current()
	if src == nil {
		return nil, errors.New("wgpu: view of a swapchain image that is not acquired")
	}
	if v.hal != nil && v.source == src {
		return v.hal, nil
	}
	if v.hal != nil {
		v.device.hal.DestroyTextureView(v.hal)
		v.hal = nil
	}
	hv, err := v.device.hal.CreateTextureView(src, &v.desc)
	if err != nil {
		return nil, mapError("create texture view", err)
	}
	v.hal, v.source = hv, src
	return hv, nil
}

// Destroy implements cgpu.NativeObject.
func (v *TextureView) Destroy() {
	v.release()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.hal != nil {
		v.device.hal.DestroyTextureView(v.hal)
		v.hal = nil
	}
}

// Sampler wraps a hal.Sampler.
type Sampler struct {
	handle
	hal hal.Sampler
}

// CreateSampler implements cgpu.NativeDevice.
func (d *Device) CreateSampler(desc *cgpu.SamplerDescriptor) (cgpu.NativeSampler, error) {
	hs, err := d.hal.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Name,
		AddressModeU: addressOr(desc.AddressU),
		AddressModeV: addressOr(desc.AddressV),
		AddressModeW: addressOr(desc.AddressW),
		MagFilter:    filterOr(desc.MagFilter),
		MinFilter:    filterOr(desc.MinFilter),
		MipmapFilter: mipmapFilter(desc.MipmapMode),
		LodMaxClamp:  32,
		Compare:      desc.Compare,
		Anisotropy:   anisotropy(desc.MaxAnisotropy),
	})
	if err != nil {
		return nil, mapError("create sampler", err)
	}
	s := &Sampler{hal: hs}
	s.handle = handle{device: d, id: d.register(s)}
	return s, nil
}

// Destroy implements cgpu.NativeObject.
func (s *Sampler) Destroy() {
	s.release()
	s.device.hal.DestroySampler(s.hal)
}

// ShaderLibrary wraps a hal.ShaderModule.
type ShaderLibrary struct {
	device *Device
	hal    hal.ShaderModule
}

// CreateShaderLibrary implements cgpu.NativeDevice. WGSL is preferred when
// both sources are present.
func (d *Device) CreateShaderLibrary(desc *cgpu.ShaderLibraryDescriptor) (cgpu.NativeShaderLibrary, error) {
	src := hal.ShaderSource{WGSL: desc.WGSL}
	if desc.WGSL == "" {
		src.SPIRV = desc.SPIRV
	}
	if src.WGSL == "" && len(src.SPIRV) == 0 {
		return nil, fmt.Errorf("wgpu: shader %q has no code", desc.Name)
	}
	hm, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Name, Source: src})
	if err != nil {
		return nil, mapError("create shader module", err)
	}
	return &ShaderLibrary{device: d, hal: hm}, nil
}

// Destroy implements cgpu.NativeObject.
func (s *ShaderLibrary) Destroy() { s.device.hal.DestroyShaderModule(s.hal) }

// SetObjectName implements cgpu.NativeDevice. HAL objects take their labels
// at creation, so later names only reach the log.
func (d *Device) SetObjectName(obj cgpu.NativeObject, name string) {
	d.log.Debug("wgpu: object named", "name", name, "type", fmt.Sprintf("%T", obj))
}

// WaitIdle implements cgpu.NativeDevice.
func (d *Device) WaitIdle() error {
	return mapError("wait idle", d.hal.WaitIdle())
}

// Destroy implements cgpu.NativeObject.
func (d *Device) Destroy() {
	if err := d.hal.WaitIdle(); err != nil {
		d.log.Warn("wgpu: wait idle before destroy", "error", err)
	}
	d.hal.Destroy()
}

// pollInterval is how often fence waits poll the queue.
const pollInterval = 50 * time.Microsecond

// waitSubmission blocks until submission idx completed or timeout passed.
// A zero timeout waits for the device to go idle.
func (d *Device) waitSubmission(idx uint64, timeout time.Duration) error {
	if d.queue.hal.PollCompleted() >= idx {
		return nil
	}
	if timeout == 0 {
		return d.WaitIdle()
	}
	deadline := time.Now().Add(timeout)
	for d.queue.hal.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return fmt.Errorf("wgpu: submission %d: %w", idx, cgpu.ErrTimeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

var _ cgpu.NativeDevice = (*Device)(nil)

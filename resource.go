package cgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Buffer is a GPU buffer. Every barrier on it logically starts from
// StartState.
type Buffer struct {
	device *Device
	native NativeBuffer
	desc   BufferDescriptor
	mapped []byte
}

// CreateBuffer creates a buffer. Buffers created with BufferFlagPersistentMap
// are mapped for their whole lifetime.
func (d *Device) CreateBuffer(desc *BufferDescriptor) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, creationFailed("CreateBuffer", fmt.Errorf("buffer %q has zero size", desc.Name))
	}
	nb, err := d.native.CreateBuffer(desc)
	if err != nil {
		return nil, creationFailed("CreateBuffer", logNative(d.log, "CreateBuffer", err))
	}
	b := &Buffer{device: d, native: nb, desc: *desc}
	if desc.Flags&BufferFlagPersistentMap != 0 {
		if b.mapped, err = nb.Map(); err != nil {
			nb.Destroy()
			return nil, creationFailed("CreateBuffer", logNative(d.log, "MapBuffer", err))
		}
	}
	d.SetName(nb, desc.Name)
	d.log.Debug("cgpu: buffer created", "name", desc.Name, "size", desc.Size)
	return b, nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Descriptor returns the creation parameters.
func (b *Buffer) Descriptor() BufferDescriptor { return b.desc }

// Native returns the backend buffer.
func (b *Buffer) Native() NativeBuffer { return b.native }

// Mapped returns the persistent mapping, or nil.
func (b *Buffer) Mapped() []byte { return b.mapped }

// Map maps a host-visible buffer. Persistently mapped buffers return their
// mapping.
func (b *Buffer) Map() ([]byte, error) {
	if b.mapped != nil {
		return b.mapped, nil
	}
	m, err := b.native.Map()
	if err != nil {
		return nil, b.device.classify("MapBuffer", err)
	}
	return m, nil
}

// Unmap releases a mapping obtained with Map. Persistent mappings stay.
func (b *Buffer) Unmap() {
	if b.mapped == nil {
		b.native.Unmap()
	}
}

// Free destroys the buffer.
func (b *Buffer) Free() {
	if b.native == nil {
		return
	}
	if b.mapped != nil {
		b.native.Unmap()
		b.mapped = nil
	}
	b.native.Destroy()
	b.native = nil
}

// Texture is a GPU image. Swapchain back buffers are Textures that the
// swapchain owns.
type Texture struct {
	device *Device
	native NativeTexture
	desc   TextureDescriptor
	aspect ImageAspect
	owned  bool
}

// CreateTexture creates a texture. Zero depth, array size, mip levels and
// sample count default to 1.
func (d *Device) CreateTexture(desc *TextureDescriptor) (*Texture, error) {
	td := *desc
	td.Depth = max(td.Depth, 1)
	td.ArraySize = max(td.ArraySize, 1)
	td.MipLevels = max(td.MipLevels, 1)
	td.SampleCount = max(td.SampleCount, 1)
	if td.Width == 0 || td.Height == 0 || td.Format == gputypes.TextureFormatUndefined {
		return nil, creationFailed("CreateTexture", fmt.Errorf("texture %q: invalid size or format", td.Name))
	}
	nt, err := d.native.CreateTexture(&td)
	if err != nil {
		return nil, creationFailed("CreateTexture", logNative(d.log, "CreateTexture", err))
	}
	d.SetName(nt, td.Name)
	return &Texture{device: d, native: nt, desc: td, aspect: aspectOf(td.Format), owned: true}, nil
}

// Descriptor returns the creation parameters.
func (t *Texture) Descriptor() TextureDescriptor { return t.desc }

// Format returns the pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }

// Width returns the width in pixels.
func (t *Texture) Width() uint32 { return t.desc.Width }

// Height returns the height in pixels.
func (t *Texture) Height() uint32 { return t.desc.Height }

// Native returns the backend texture.
func (t *Texture) Native() NativeTexture { return t.native }

// Free destroys the texture. Swapchain images are freed with the swapchain.
func (t *Texture) Free() {
	if t.native != nil && t.owned {
		t.native.Destroy()
	}
	t.native = nil
}

// TextureView is a view of a mip/array/aspect range of a texture.
type TextureView struct {
	device  *Device
	native  NativeTextureView
	texture *Texture
	desc    NativeTextureViewDescriptor
}

// CreateTextureView creates a view. Zero counts select the rest of the
// texture.
func (d *Device) CreateTextureView(desc *TextureViewDescriptor) (*TextureView, error) {
	t := desc.Texture
	if t == nil {
		return nil, creationFailed("CreateTextureView", fmt.Errorf("view %q has no texture", desc.Name))
	}
	nd := NativeTextureViewDescriptor{
		Name:           desc.Name,
		Format:         desc.Format,
		Dimension:      desc.Dimension,
		Aspect:         desc.Aspect,
		BaseMipLevel:   desc.BaseMipLevel,
		MipLevelCount:  desc.MipLevelCount,
		BaseArrayLayer: desc.BaseArrayLayer,
		ArrayLayers:    desc.ArrayLayers,
	}
	if nd.Format == gputypes.TextureFormatUndefined {
		nd.Format = t.desc.Format
	}
	if nd.Aspect == 0 {
		nd.Aspect = aspectOf(nd.Format)
	}
	if nd.MipLevelCount == 0 {
		nd.MipLevelCount = t.desc.MipLevels - nd.BaseMipLevel
	}
	if nd.ArrayLayers == 0 {
		nd.ArrayLayers = t.desc.ArraySize - nd.BaseArrayLayer
	}
	if nd.Dimension == gputypes.TextureViewDimensionUndefined {
		nd.Dimension = defaultViewDimension(t.desc, desc.Usage)
	}
	nv, err := d.native.CreateTextureView(t.native, &nd)
	if err != nil {
		return nil, creationFailed("CreateTextureView", logNative(d.log, "CreateTextureView", err))
	}
	d.SetName(nv, desc.Name)
	return &TextureView{device: d, native: nv, texture: t, desc: nd}, nil
}

func defaultViewDimension(td TextureDescriptor, usage ResourceType) gputypes.TextureViewDimension {
	switch {
	case td.Depth > 1:
		return gputypes.TextureViewDimension3D
	case usage&ResourceTypeTextureCube == ResourceTypeTextureCube && td.ArraySize > 6:
		return gputypes.TextureViewDimensionCubeArray
	case usage&ResourceTypeTextureCube == ResourceTypeTextureCube:
		return gputypes.TextureViewDimensionCube
	case td.ArraySize > 1:
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

// Texture returns the viewed texture.
func (v *TextureView) Texture() *Texture { return v.texture }

// Native returns the backend view.
func (v *TextureView) Native() NativeTextureView { return v.native }

// Free destroys the view.
func (v *TextureView) Free() {
	if v.native != nil {
		v.native.Destroy()
		v.native = nil
	}
}

// Sampler is a texture sampler.
type Sampler struct {
	device *Device
	native NativeSampler
	desc   SamplerDescriptor
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *SamplerDescriptor) (*Sampler, error) {
	ns, err := d.native.CreateSampler(desc)
	if err != nil {
		return nil, creationFailed("CreateSampler", logNative(d.log, "CreateSampler", err))
	}
	d.SetName(ns, desc.Name)
	return &Sampler{device: d, native: ns, desc: *desc}, nil
}

// Native returns the backend sampler.
func (s *Sampler) Native() NativeSampler { return s.native }

// Free destroys the sampler.
func (s *Sampler) Free() {
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
}

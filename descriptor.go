package cgpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Fallback write batching limits. A batch is flushed as soon as one of them
// is reached.
const (
	maxBatchBufferInfos = 6
	maxBatchImageInfos  = 16
	maxBatchWrites      = 38
)

// DescriptorData binds resources to one slot of a descriptor set. The slot
// is found by Name, or by Binding (narrowed by Type when set) when Name is
// empty. Elements are written from array index Index on. Offsets and Sizes
// override the buffer range per element; a missing size selects the whole
// buffer.
type DescriptorData struct {
	Name     string
	Binding  uint32
	Type     ResourceType
	Index    uint32
	Textures []*TextureView
	Samplers []*Sampler
	Buffers  []*Buffer
	Offsets  []uint64
	Sizes    []uint64
}

func (d *DescriptorData) count() int {
	return len(d.Textures) + len(d.Samplers) + len(d.Buffers)
}

// DescriptorSet is an allocated descriptor set for one set index of a root
// signature. With update templates, records holds one 24-byte record per
// array element of every resource in table order.
type DescriptorSet struct {
	device  *Device
	rs      *RootSignature
	set     uint32
	native  NativeDescriptorSet
	records []byte
}

// CreateDescriptorSet allocates a set for the given set index.
func (d *Device) CreateDescriptorSet(rs *RootSignature, set uint32) (*DescriptorSet, error) {
	layout := rs.SetLayout(set)
	if layout == nil {
		return nil, creationFailed("CreateDescriptorSet", fmt.Errorf("root signature %q has no set %d", rs.name, set))
	}
	ns, err := d.native.AllocateDescriptorSet(layout)
	if err != nil {
		return nil, creationFailed("CreateDescriptorSet", logNative(d.log, "AllocateDescriptorSet", err))
	}
	ds := &DescriptorSet{device: d, rs: rs, set: set, native: ns}
	if t := rs.Table(set); t != nil && rs.template(set) != nil {
		ds.records = d.adapter.instance.alloc.Alloc(int(t.slotCount)*recordSize, 8)
		clear(ds.records)
	}
	return ds, nil
}

// Set returns the set index.
func (s *DescriptorSet) Set() uint32 { return s.set }

// RootSignature returns the owning root signature.
func (s *DescriptorSet) RootSignature() *RootSignature { return s.rs }

// Native returns the backend set.
func (s *DescriptorSet) Native() NativeDescriptorSet { return s.native }

// Records returns the update record scratch, nil without update templates.
func (s *DescriptorSet) Records() []byte { return s.records }

// Update writes resources into the set. Nothing outside the set is touched.
// The set must not be in use by the GPU.
func (s *DescriptorSet) Update(data []DescriptorData) error {
	t := s.rs.Table(s.set)
	if t == nil {
		if len(data) == 0 {
			return nil
		}
		return fmt.Errorf("%w: set %d is empty", ErrNotFound, s.set)
	}
	if tmpl := s.rs.template(s.set); tmpl != nil && s.records != nil {
		return s.updateTemplate(t, tmpl, data)
	}
	return s.updateWrites(t, data)
}

func (s *DescriptorSet) resolve(t *ParameterTable, dd *DescriptorData) (int, error) {
	i := t.lookup(dd.Name, dd.Binding, dd.Type)
	if i < 0 {
		return -1, fmt.Errorf("%w: %q (set %d binding %d)", ErrNotFound, dd.Name, s.set, dd.Binding)
	}
	r := t.Resources[i]
	if !dd.matches(r.Type) {
		return -1, &DescriptorMismatchError{Name: r.Name, Binding: r.Binding, Type: r.Type}
	}
	if n := uint64(dd.count()); n > 0 && uint64(dd.Index)+n > uint64(r.ArraySize) {
		last := min(uint64(dd.Index)+n-1, math.MaxUint32)
		return -1, &DescriptorRangeError{Name: r.Name, Binding: r.Binding, Index: uint32(last), ArraySize: r.ArraySize}
	}
	return i, nil
}

// matches reports whether only the resource slice of the slot's kind is set.
func (d *DescriptorData) matches(t ResourceType) bool {
	switch {
	case t == ResourceTypeSampler:
		return len(d.Textures) == 0 && len(d.Buffers) == 0
	case t.isImage():
		return len(d.Samplers) == 0 && len(d.Buffers) == 0
	case t.isBuffer():
		return len(d.Textures) == 0 && len(d.Samplers) == 0
	}
	return true
}

func imageLayoutFor(t ResourceType) ImageLayout {
	if t == ResourceTypeRWTexture {
		return ImageLayoutGeneral
	}
	return ImageLayoutShaderReadOnly
}

// bufferRange returns the offset and range of element j.
func bufferRange(dd *DescriptorData, j int) (offset, size uint64) {
	size = WholeSize
	if j < len(dd.Offsets) {
		offset = dd.Offsets[j]
	}
	if j < len(dd.Sizes) && dd.Sizes[j] != 0 {
		size = dd.Sizes[j]
	}
	return offset, size
}

func putRecord(rec []byte, a, b, c uint64) {
	binary.NativeEndian.PutUint64(rec[0:], a)
	binary.NativeEndian.PutUint64(rec[8:], b)
	binary.NativeEndian.PutUint64(rec[16:], c)
}

func (s *DescriptorSet) updateTemplate(t *ParameterTable, tmpl NativeUpdateTemplate, data []DescriptorData) error {
	for k := range data {
		dd := &data[k]
		i, err := s.resolve(t, dd)
		if err != nil {
			return err
		}
		r := t.Resources[i]
		base := int(t.slots[i]+dd.Index) * recordSize
		rec := func(j int) []byte { return s.records[base+j*recordSize : base+(j+1)*recordSize] }
		switch {
		case r.Type == ResourceTypeSampler:
			for j, smp := range dd.Samplers {
				putRecord(rec(j), smp.native.NativeHandle(), 0, 0)
			}
		case r.Type.isImage():
			layout := uint64(imageLayoutFor(r.Type))
			for j, v := range dd.Textures {
				putRecord(rec(j), 0, v.native.NativeHandle(), layout)
			}
		case r.Type.isBuffer():
			for j, b := range dd.Buffers {
				off, size := bufferRange(dd, j)
				putRecord(rec(j), b.native.NativeHandle(), off, size)
			}
		default:
			return &UnsupportedDescriptorTypeError{Name: r.Name, Binding: r.Binding, Type: r.Type}
		}
	}
	if err := s.device.native.UpdateDescriptorSetWithTemplate(s.native, tmpl, s.records); err != nil {
		return s.device.classify("UpdateDescriptorSetWithTemplate", err)
	}
	return nil
}

// writeBatch accumulates fallback writes.
type writeBatch struct {
	writes  []DescriptorWrite
	images  int
	buffers int
}

func (b *writeBatch) full() bool {
	return b.buffers >= maxBatchBufferInfos || b.images >= maxBatchImageInfos || len(b.writes) >= maxBatchWrites
}

func (s *DescriptorSet) flush(b *writeBatch) error {
	if len(b.writes) == 0 {
		return nil
	}
	err := s.device.native.WriteDescriptorSet(s.native, b.writes)
	*b = writeBatch{}
	if err != nil {
		return s.device.classify("WriteDescriptorSet", err)
	}
	return nil
}

func (s *DescriptorSet) updateWrites(t *ParameterTable, data []DescriptorData) error {
	var batch writeBatch
	for k := range data {
		dd := &data[k]
		i, err := s.resolve(t, dd)
		if err != nil {
			return err
		}
		r := t.Resources[i]
		w := DescriptorWrite{Binding: r.Binding, ArrayElement: dd.Index, Type: r.Type}
		switch {
		case r.Type == ResourceTypeSampler:
			for _, smp := range dd.Samplers {
				w.Images = append(w.Images, ImageInfo{Sampler: smp.native.NativeHandle()})
			}
			batch.images += len(w.Images)
		case r.Type.isImage():
			layout := imageLayoutFor(r.Type)
			for _, v := range dd.Textures {
				w.Images = append(w.Images, ImageInfo{View: v.native.NativeHandle(), Layout: layout})
			}
			batch.images += len(w.Images)
		case r.Type.isBuffer():
			for j, b := range dd.Buffers {
				off, size := bufferRange(dd, j)
				w.Buffers = append(w.Buffers, BufferInfo{Buffer: b.native.NativeHandle(), Offset: off, Range: size})
			}
			batch.buffers += len(w.Buffers)
		default:
			return &UnsupportedDescriptorTypeError{Name: r.Name, Binding: r.Binding, Type: r.Type}
		}
		batch.writes = append(batch.writes, w)
		if batch.full() {
			if err := s.flush(&batch); err != nil {
				return err
			}
		}
	}
	return s.flush(&batch)
}

// Free releases the set and its record scratch.
func (s *DescriptorSet) Free() {
	if s.records != nil {
		s.device.adapter.instance.alloc.Free(s.records)
		s.records = nil
	}
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
}

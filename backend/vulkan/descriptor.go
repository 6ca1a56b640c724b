package vulkan

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/cgpu"
	vk "github.com/goki/vulkan"
)

// setsPerPool is how many sets one descriptor pool of a layout holds.
const setsPerPool = 64

// recordSize is the size of one template record: three native-endian
// uint64 words.
const recordSize = 24

type descriptorPool struct {
	handle vk.DescriptorPool
	used   int
}

// SetLayout is a VkDescriptorSetLayout. It owns the pools its sets are
// allocated from; a new pool is added whenever the existing ones are full.
type SetLayout struct {
	device   *Device
	handle   vk.DescriptorSetLayout
	bindings []cgpu.SetLayoutBinding
	sizes    []vk.DescriptorPoolSize

	mu    sync.Mutex
	pools []*descriptorPool
}

// CreateSetLayout implements cgpu.NativeDevice. Push constants are not
// descriptors and are skipped.
func (d *Device) CreateSetLayout(bindings []cgpu.SetLayoutBinding) (cgpu.NativeSetLayout, error) {
	var kept []cgpu.SetLayoutBinding
	vb := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		if b.Type == cgpu.ResourceTypePushConstant {
			continue
		}
		dt, ok := descriptorType(b.Type)
		if !ok {
			return nil, &cgpu.UnsupportedDescriptorTypeError{Binding: b.Binding, Type: b.Type}
		}
		lb := vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  dt,
			DescriptorCount: max(b.Count, 1),
			StageFlags:      shaderStages(b.Stages),
		}
		if b.ImmutableSampler != nil {
			s, ok := b.ImmutableSampler.(*Sampler)
			if !ok {
				return nil, fmt.Errorf("vulkan: foreign sampler %T", b.ImmutableSampler)
			}
			lb.PImmutableSamplers = []vk.Sampler{s.sampler}
		}
		vb = append(vb, lb)
		kept = append(kept, b)
	}
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(d.handle, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vb)),
		PBindings:    vb,
	}, nil, &layout)
	if err := check("create descriptor set layout", ret); err != nil {
		return nil, err
	}
	sizes := poolSizes(kept, setsPerPool)
	if len(sizes) == 0 {
		// Pools need at least one size even for layouts without bindings.
		sizes = []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeSampler, DescriptorCount: 1}}
	}
	return &SetLayout{device: d, handle: layout, bindings: kept, sizes: sizes}, nil
}

func (l *SetLayout) newPool() (*descriptorPool, error) {
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(l.device.handle, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       setsPerPool,
		PoolSizeCount: uint32(len(l.sizes)),
		PPoolSizes:    l.sizes,
	}, nil, &pool)
	if err := check("create descriptor pool", ret); err != nil {
		return nil, err
	}
	p := &descriptorPool{handle: pool}
	l.pools = append(l.pools, p)
	return p, nil
}

// Destroy implements cgpu.NativeObject. Sets allocated from the layout's
// pools are released with them.
func (l *SetLayout) Destroy() {
	l.mu.Lock()
	for _, p := range l.pools {
		vk.DestroyDescriptorPool(l.device.handle, p.handle, nil)
	}
	l.pools = nil
	l.mu.Unlock()
	vk.DestroyDescriptorSetLayout(l.device.handle, l.handle, nil)
}

// PipelineLayout is a VkPipelineLayout.
type PipelineLayout struct {
	device *Device
	handle vk.PipelineLayout
}

// CreatePipelineLayout implements cgpu.NativeDevice.
func (d *Device) CreatePipelineLayout(sets []cgpu.NativeSetLayout, push []cgpu.PushConstantRange) (cgpu.NativePipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		l, ok := s.(*SetLayout)
		if !ok {
			return nil, fmt.Errorf("vulkan: foreign set layout %T", s)
		}
		layouts[i] = l.handle
	}
	ranges := make([]vk.PushConstantRange, len(push))
	for i, p := range push {
		ranges[i] = vk.PushConstantRange{
			StageFlags: shaderStages(p.Stages),
			Offset:     p.Offset,
			Size:       p.Size,
		}
	}
	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(d.handle, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &layout)
	if err := check("create pipeline layout", ret); err != nil {
		return nil, err
	}
	return &PipelineLayout{device: d, handle: layout}, nil
}

// Destroy implements cgpu.NativeObject.
func (l *PipelineLayout) Destroy() {
	vk.DestroyPipelineLayout(l.device.handle, l.handle, nil)
}

// UpdateTemplate records where each binding's records sit in the record
// buffer. Updates decode the records into descriptor writes.
type UpdateTemplate struct {
	entries []cgpu.TemplateEntry
}

// CreateUpdateTemplate implements cgpu.NativeDevice.
func (d *Device) CreateUpdateTemplate(layout cgpu.NativeSetLayout, _ cgpu.NativePipelineLayout, _ uint32, entries []cgpu.TemplateEntry) (cgpu.NativeUpdateTemplate, error) {
	if _, ok := layout.(*SetLayout); !ok {
		return nil, fmt.Errorf("vulkan: foreign set layout %T", layout)
	}
	for _, e := range entries {
		if _, ok := descriptorType(e.Type); !ok {
			return nil, &cgpu.UnsupportedDescriptorTypeError{Binding: e.Binding, Type: e.Type}
		}
		if e.Stride != 0 && e.Stride < recordSize {
			return nil, fmt.Errorf("vulkan: template stride %d below record size", e.Stride)
		}
	}
	return &UpdateTemplate{entries: append([]cgpu.TemplateEntry(nil), entries...)}, nil
}

// Destroy implements cgpu.NativeObject.
func (t *UpdateTemplate) Destroy() {}

// decodeTemplate turns a record buffer into descriptor writes. Records
// with a zero handle were never filled and split the write.
func decodeTemplate(entries []cgpu.TemplateEntry, records []byte) ([]cgpu.DescriptorWrite, error) {
	var out []cgpu.DescriptorWrite
	for _, e := range entries {
		stride := e.Stride
		if stride == 0 {
			stride = recordSize
		}
		var cur *cgpu.DescriptorWrite
		for j := range e.Count {
			off := int(e.Offset + j*stride)
			if off+recordSize > len(records) {
				return nil, fmt.Errorf("vulkan: record %d of binding %d past end of %d bytes", j, e.Binding, len(records))
			}
			a := binary.NativeEndian.Uint64(records[off:])
			b := binary.NativeEndian.Uint64(records[off+8:])
			c := binary.NativeEndian.Uint64(records[off+16:])
			var filled bool
			switch {
			case e.Type == cgpu.ResourceTypeSampler:
				filled = a != 0
			case e.Type == cgpu.ResourceTypeUniformBuffer || e.Type&(cgpu.ResourceTypeBuffer|cgpu.ResourceTypeRWBuffer) != 0:
				filled = a != 0
			default:
				filled = b != 0
			}
			if !filled {
				cur = nil
				continue
			}
			if cur == nil {
				out = append(out, cgpu.DescriptorWrite{Binding: e.Binding, ArrayElement: j, Type: e.Type})
				cur = &out[len(out)-1]
			}
			switch {
			case e.Type == cgpu.ResourceTypeSampler:
				cur.Images = append(cur.Images, cgpu.ImageInfo{Sampler: a})
			case e.Type == cgpu.ResourceTypeUniformBuffer || e.Type&(cgpu.ResourceTypeBuffer|cgpu.ResourceTypeRWBuffer) != 0:
				cur.Buffers = append(cur.Buffers, cgpu.BufferInfo{Buffer: a, Offset: b, Range: c})
			default:
				cur.Images = append(cur.Images, cgpu.ImageInfo{View: b, Layout: cgpu.ImageLayout(c)})
			}
		}
	}
	return out, nil
}

// DescriptorSet is a VkDescriptorSet together with the pool it came from.
type DescriptorSet struct {
	layout *SetLayout
	pool   *descriptorPool
	handle vk.DescriptorSet
}

// AllocateDescriptorSet implements cgpu.NativeDevice.
func (d *Device) AllocateDescriptorSet(nl cgpu.NativeSetLayout) (cgpu.NativeDescriptorSet, error) {
	l, ok := nl.(*SetLayout)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign set layout %T", nl)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var pool *descriptorPool
	for _, p := range l.pools {
		if p.used < setsPerPool {
			pool = p
			break
		}
	}
	if pool == nil {
		p, err := l.newPool()
		if err != nil {
			return nil, err
		}
		pool = p
	}
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(d.handle, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.handle},
	}, &set)
	if err := check("allocate descriptor set", ret); err != nil {
		return nil, err
	}
	pool.used++
	return &DescriptorSet{layout: l, pool: pool, handle: set}, nil
}

// Destroy implements cgpu.NativeObject.
func (s *DescriptorSet) Destroy() {
	l := s.layout
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pools) == 0 {
		return
	}
	vk.FreeDescriptorSets(l.device.handle, s.pool.handle, 1, &s.handle)
	s.pool.used--
}

// UpdateDescriptorSetWithTemplate implements cgpu.NativeDevice.
func (d *Device) UpdateDescriptorSetWithTemplate(set cgpu.NativeDescriptorSet, nt cgpu.NativeUpdateTemplate, records []byte) error {
	t, ok := nt.(*UpdateTemplate)
	if !ok {
		return fmt.Errorf("vulkan: foreign update template %T", nt)
	}
	writes, err := decodeTemplate(t.entries, records)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	return d.WriteDescriptorSet(set, writes)
}

// WriteDescriptorSet implements cgpu.NativeDevice.
func (d *Device) WriteDescriptorSet(ns cgpu.NativeDescriptorSet, writes []cgpu.DescriptorWrite) error {
	s, ok := ns.(*DescriptorSet)
	if !ok {
		return fmt.Errorf("vulkan: foreign descriptor set %T", ns)
	}
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		dt, ok := descriptorType(w.Type)
		if !ok {
			return &cgpu.UnsupportedDescriptorTypeError{Binding: w.Binding, Type: w.Type}
		}
		vw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  dt,
		}
		if len(w.Buffers) > 0 {
			infos := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for i, bi := range w.Buffers {
				b, ok := d.lookup(bi.Buffer).(*Buffer)
				if !ok {
					return fmt.Errorf("vulkan: binding %d: buffer handle %d: %w", w.Binding, bi.Buffer, cgpu.ErrNotFound)
				}
				infos[i] = vk.DescriptorBufferInfo{
					Buffer: b.buffer,
					Offset: vk.DeviceSize(bi.Offset),
					Range:  vk.DeviceSize(bi.Range),
				}
			}
			vw.DescriptorCount = uint32(len(infos))
			vw.PBufferInfo = infos
		} else {
			infos := make([]vk.DescriptorImageInfo, len(w.Images))
			for i, ii := range w.Images {
				if ii.Sampler != 0 {
					smp, ok := d.lookup(ii.Sampler).(*Sampler)
					if !ok {
						return fmt.Errorf("vulkan: binding %d: sampler handle %d: %w", w.Binding, ii.Sampler, cgpu.ErrNotFound)
					}
					infos[i].Sampler = smp.sampler
				}
				if ii.View != 0 {
					v, ok := d.lookup(ii.View).(*TextureView)
					if !ok {
						return fmt.Errorf("vulkan: binding %d: view handle %d: %w", w.Binding, ii.View, cgpu.ErrNotFound)
					}
					infos[i].ImageView = v.view
					infos[i].ImageLayout = vk.ImageLayout(ii.Layout)
				}
			}
			vw.DescriptorCount = uint32(len(infos))
			vw.PImageInfo = infos
		}
		if vw.DescriptorCount == 0 {
			continue
		}
		out = append(out, vw)
	}
	if len(out) > 0 {
		vk.UpdateDescriptorSets(d.handle, uint32(len(out)), out, 0, nil)
	}
	return nil
}

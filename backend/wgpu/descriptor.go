package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SetLayout wraps a hal.BindGroupLayout. WebGPU has no immutable samplers,
// so they are kept here and written into every bind group of the layout.
type SetLayout struct {
	device    *Device
	hal       hal.BindGroupLayout
	bindings  []cgpu.SetLayoutBinding
	immutable map[uint32]*Sampler
}

// CreateSetLayout implements cgpu.NativeDevice. Arrays of more than one
// element have no WebGPU binding and fail.
func (d *Device) CreateSetLayout(bindings []cgpu.SetLayoutBinding) (cgpu.NativeSetLayout, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(bindings))
	l := &SetLayout{device: d, bindings: append([]cgpu.SetLayoutBinding(nil), bindings...)}
	for _, b := range bindings {
		if b.Count > 1 {
			return nil, fmt.Errorf("wgpu: binding %d: arrays of %d: %w", b.Binding, b.Count, cgpu.ErrUnsupported)
		}
		e, ok := layoutEntry(b)
		if !ok {
			return nil, fmt.Errorf("wgpu: binding %d: %w", b.Binding,
				&cgpu.UnsupportedDescriptorTypeError{Type: b.Type})
		}
		entries = append(entries, e)
		if b.ImmutableSampler != nil {
			s, ok := b.ImmutableSampler.(*Sampler)
			if !ok {
				return nil, fmt.Errorf("wgpu: foreign sampler %T", b.ImmutableSampler)
			}
			if l.immutable == nil {
				l.immutable = make(map[uint32]*Sampler)
			}
			l.immutable[b.Binding] = s
		}
	}
	hl, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		return nil, mapError("create bind group layout", err)
	}
	l.hal = hl
	return l, nil
}

// Destroy implements cgpu.NativeObject.
func (l *SetLayout) Destroy() { l.device.hal.DestroyBindGroupLayout(l.hal) }

// PipelineLayout wraps a hal.PipelineLayout.
type PipelineLayout struct {
	device *Device
	hal    hal.PipelineLayout
}

// CreatePipelineLayout implements cgpu.NativeDevice.
func (d *Device) CreatePipelineLayout(sets []cgpu.NativeSetLayout, push []cgpu.PushConstantRange) (cgpu.NativePipelineLayout, error) {
	layouts := make([]hal.BindGroupLayout, len(sets))
	for i, s := range sets {
		sl, ok := s.(*SetLayout)
		if !ok {
			return nil, fmt.Errorf("wgpu: foreign set layout %T", s)
		}
		layouts[i] = sl.hal
	}
	hl, err := d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts:   layouts,
		PushConstantRanges: pushRanges(push),
	})
	if err != nil {
		return nil, mapError("create pipeline layout", err)
	}
	return &PipelineLayout{device: d, hal: hl}, nil
}

// Destroy implements cgpu.NativeObject.
func (l *PipelineLayout) Destroy() { l.device.hal.DestroyPipelineLayout(l.hal) }

// CreateUpdateTemplate implements cgpu.NativeDevice. The adapter does not
// report update templates, so the core never calls it.
func (d *Device) CreateUpdateTemplate(cgpu.NativeSetLayout, cgpu.NativePipelineLayout, uint32, []cgpu.TemplateEntry) (cgpu.NativeUpdateTemplate, error) {
	return nil, fmt.Errorf("wgpu: update templates: %w", cgpu.ErrUnsupported)
}

// UpdateDescriptorSetWithTemplate implements cgpu.NativeDevice.
func (d *Device) UpdateDescriptorSetWithTemplate(cgpu.NativeDescriptorSet, cgpu.NativeUpdateTemplate, []byte) error {
	return fmt.Errorf("wgpu: update templates: %w", cgpu.ErrUnsupported)
}

// DescriptorSet collects the resources of one bind group. Bind groups are
// immutable in WebGPU, so writes only mark the set dirty and the group is
// rebuilt the next time the set is bound.
type DescriptorSet struct {
	device *Device
	layout *SetLayout

	mu      sync.Mutex
	entries map[uint32]gputypes.BindGroupEntry
	group   hal.BindGroup
	retired []hal.BindGroup
	dirty   bool
}

// AllocateDescriptorSet implements cgpu.NativeDevice.
func (d *Device) AllocateDescriptorSet(layout cgpu.NativeSetLayout) (cgpu.NativeDescriptorSet, error) {
	sl, ok := layout.(*SetLayout)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign set layout %T", layout)
	}
	s := &DescriptorSet{device: d, layout: sl, entries: make(map[uint32]gputypes.BindGroupEntry), dirty: true}
	for b, smp := range sl.immutable {
		s.entries[b] = gputypes.BindGroupEntry{Binding: b, Resource: gputypes.SamplerBinding{Sampler: smp.hal.NativeHandle()}}
	}
	return s, nil
}

// WriteDescriptorSet implements cgpu.NativeDevice.
func (d *Device) WriteDescriptorSet(set cgpu.NativeDescriptorSet, writes []cgpu.DescriptorWrite) error {
	s, ok := set.(*DescriptorSet)
	if !ok {
		return fmt.Errorf("wgpu: foreign descriptor set %T", set)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.ArrayElement != 0 || len(w.Images)+len(w.Buffers) > 1 {
			return fmt.Errorf("wgpu: binding %d: array writes: %w", w.Binding, cgpu.ErrUnsupported)
		}
		res, err := d.bindingResource(w)
		if err != nil {
			return err
		}
		s.entries[w.Binding] = gputypes.BindGroupEntry{Binding: w.Binding, Resource: res}
		s.dirty = true
	}
	return nil
}

func (d *Device) bindingResource(w cgpu.DescriptorWrite) (gputypes.BindingResource, error) {
	if len(w.Buffers) == 1 {
		bi := w.Buffers[0]
		b, ok := d.lookup(bi.Buffer).(*Buffer)
		if !ok {
			return nil, fmt.Errorf("wgpu: binding %d: unknown buffer handle %d", w.Binding, bi.Buffer)
		}
		size := bi.Range
		if size == cgpu.WholeSize {
			size = b.size - bi.Offset
		}
		return gputypes.BufferBinding{Buffer: b.hal.NativeHandle(), Offset: bi.Offset, Size: size}, nil
	}
	if len(w.Images) == 1 {
		ii := w.Images[0]
		if w.Type == cgpu.ResourceTypeSampler {
			s, ok := d.lookup(ii.Sampler).(*Sampler)
			if !ok {
				return nil, fmt.Errorf("wgpu: binding %d: unknown sampler handle %d", w.Binding, ii.Sampler)
			}
			return gputypes.SamplerBinding{Sampler: s.hal.NativeHandle()}, nil
		}
		v, ok := d.lookup(ii.View).(*TextureView)
		if !ok {
			return nil, fmt.Errorf("wgpu: binding %d: unknown view handle %d", w.Binding, ii.View)
		}
		hv, err := v.resolve()
		if err != nil {
			return nil, err
		}
		return gputypes.TextureViewBinding{TextureView: hv.NativeHandle()}, nil
	}
	return nil, fmt.Errorf("wgpu: binding %d: empty write", w.Binding)
}

// bindGroup returns the bind group for the set's current contents.
func (s *DescriptorSet) bindGroup() (hal.BindGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty && s.group != nil {
		return s.group, nil
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(s.layout.bindings))
	for _, b := range s.layout.bindings {
		e, ok := s.entries[b.Binding]
		if !ok {
			return nil, fmt.Errorf("wgpu: binding %d of descriptor set is not written", b.Binding)
		}
		entries = append(entries, e)
	}
	hg, err := s.device.hal.CreateBindGroup(&hal.BindGroupDescriptor{Layout: s.layout.hal, Entries: entries})
	if err != nil {
		return nil, mapError("create bind group", err)
	}
	// Recorded commands may still reference the previous group.
	if s.group != nil {
		s.retired = append(s.retired, s.group)
	}
	s.group, s.dirty = hg, false
	return hg, nil
}

// Destroy implements cgpu.NativeObject.
func (s *DescriptorSet) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.retired {
		s.device.hal.DestroyBindGroup(g)
	}
	s.retired = nil
	if s.group != nil {
		s.device.hal.DestroyBindGroup(s.group)
		s.group = nil
	}
}

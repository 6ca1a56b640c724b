package cgpu

import (
	"cmp"
	"fmt"
	"hash/fnv"
	"math/bits"
	"slices"
)

// recordSize is the size of one descriptor update record: an image record
// is sampler, view and layout; a buffer record is buffer, offset and range.
const recordSize = 24

// StaticSampler bakes an immutable sampler into a set layout. A named
// sampler replaces the reflected resource of that name and takes its set and
// binding; an unnamed one replaces whatever sits at Set and Binding.
type StaticSampler struct {
	Name    string
	Set     uint32
	Binding uint32
	Sampler *Sampler
}

// RootSignatureDescriptor describes the binding interface of a set of
// pipeline stages.
type RootSignatureDescriptor struct {
	Name           string
	Shaders        []PipelineShader
	StaticSamplers []StaticSampler
	Pool           *RootSignaturePool
}

// ParameterTable is the resources of one descriptor set, sorted by binding.
type ParameterTable struct {
	Set       uint32
	Resources []ShaderResource

	hashes    []uint64
	slots     []uint32 // first record slot of each resource
	slotCount uint32
}

// SlotCount returns the number of update records the table needs.
func (t *ParameterTable) SlotCount() uint32 { return t.slotCount }

func (t *ParameterTable) index() {
	t.hashes = make([]uint64, len(t.Resources))
	t.slots = make([]uint32, len(t.Resources))
	t.slotCount = 0
	for i, r := range t.Resources {
		t.hashes[i] = nameHash(r.Name)
		t.slots[i] = t.slotCount
		t.slotCount += max(r.ArraySize, 1)
	}
}

// lookup finds a resource by name hash, else by binding narrowed by typ.
func (t *ParameterTable) lookup(name string, binding uint32, typ ResourceType) int {
	if name != "" {
		h := nameHash(name)
		for i, rh := range t.hashes {
			if rh == h && t.Resources[i].Name == name {
				return i
			}
		}
	}
	for i, r := range t.Resources {
		if r.Binding == binding && (typ == ResourceTypeUndefined || r.Type == typ) {
			return i
		}
	}
	return -1
}

func nameHash(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// rootSigCore is the native part of a root signature. Pooled signatures
// with the same shape share one core.
type rootSigCore struct {
	setLayouts []NativeSetLayout // indexed by set, contiguous from 0
	emptySets  []NativeDescriptorSet
	layout     NativePipelineLayout
	templates  []NativeUpdateTemplate // indexed by set, nil without a template
}

func (c *rootSigCore) destroy() {
	for _, t := range c.templates {
		if t != nil {
			t.Destroy()
		}
	}
	for _, s := range c.emptySets {
		if s != nil {
			s.Destroy()
		}
	}
	if c.layout != nil {
		c.layout.Destroy()
	}
	for _, l := range c.setLayouts {
		if l != nil {
			l.Destroy()
		}
	}
	*c = rootSigCore{}
}

// RootSignature is the binding layout shared by pipelines and descriptor
// sets.
type RootSignature struct {
	device         *Device
	name           string
	tables         []ParameterTable
	pushConstants  []ShaderResource
	staticSamplers []StaticSampler
	stages         ShaderStage
	setMask        uint32
	core           *rootSigCore
	pool           *RootSignaturePool
	shapeKey       uint64
}

// CreateRootSignature merges the reflection of every shader into parameter
// tables and builds the native set layouts, pipeline layout and update
// templates. With a Pool, a structurally identical signature already in the
// pool lends its native objects and nothing native is created.
func (d *Device) CreateRootSignature(desc *RootSignatureDescriptor) (*RootSignature, error) {
	rs := &RootSignature{device: d, name: desc.Name, staticSamplers: slices.Clone(desc.StaticSamplers)}
	if err := rs.merge(desc.Shaders); err != nil {
		return nil, creationFailed("CreateRootSignature", err)
	}
	rs.applyStaticSamplers()
	for i := range rs.tables {
		rs.tables[i].index()
		rs.setMask |= 1 << rs.tables[i].Set
	}
	for _, ss := range rs.staticSamplers {
		rs.setMask |= 1 << ss.Set
	}

	if p := desc.Pool; p != nil {
		shape := rs.shape()
		core, key, err := p.acquire(shape, rs.setMask, rs.slotShapes(), func() (*rootSigCore, error) {
			return rs.build()
		})
		if err != nil {
			return nil, err
		}
		rs.core, rs.pool, rs.shapeKey = core, p, key
		d.log.Debug("cgpu: root signature pooled", "name", desc.Name, "sets", rs.SetCount())
		return rs, nil
	}

	core, err := rs.build()
	if err != nil {
		return nil, err
	}
	rs.core = core
	d.log.Debug("cgpu: root signature created", "name", desc.Name, "sets", rs.SetCount())
	return rs, nil
}

// merge collects resources by set and binding across shaders. The same slot
// seen from several stages ORs the stage masks.
func (rs *RootSignature) merge(shaders []PipelineShader) error {
	bySet := map[uint32]*ParameterTable{}
	for _, sh := range shaders {
		if sh.Library == nil {
			return fmt.Errorf("shader entry %q has no library", sh.Entry)
		}
		rs.stages |= sh.Stage
		for _, r := range sh.Library.reflection.Resources {
			r.Stages &= sh.Stage
			if r.Stages == 0 {
				r.Stages = sh.Stage
			}
			r.ArraySize = max(r.ArraySize, 1)

			if r.Type == ResourceTypePushConstant {
				rs.mergePushConstant(r)
				continue
			}
			t, ok := bySet[r.Set]
			if !ok {
				t = &ParameterTable{Set: r.Set}
				bySet[r.Set] = t
			}
			j := slices.IndexFunc(t.Resources, func(e ShaderResource) bool { return e.Binding == r.Binding })
			if j < 0 {
				t.Resources = append(t.Resources, r)
				continue
			}
			e := &t.Resources[j]
			if e.Type != r.Type {
				return fmt.Errorf("set %d binding %d declared as %s and %s", r.Set, r.Binding, e.Type, r.Type)
			}
			e.Stages |= r.Stages
			e.ArraySize = max(e.ArraySize, r.ArraySize)
		}
	}
	for _, t := range bySet {
		slices.SortFunc(t.Resources, func(a, b ShaderResource) int { return cmp.Compare(a.Binding, b.Binding) })
		rs.tables = append(rs.tables, *t)
	}
	slices.SortFunc(rs.tables, func(a, b ParameterTable) int { return cmp.Compare(a.Set, b.Set) })
	return nil
}

func (rs *RootSignature) mergePushConstant(r ShaderResource) {
	for i := range rs.pushConstants {
		if rs.pushConstants[i].Name == r.Name {
			rs.pushConstants[i].Stages |= r.Stages
			rs.pushConstants[i].Size = max(rs.pushConstants[i].Size, r.Size)
			return
		}
	}
	rs.pushConstants = append(rs.pushConstants, r)
}

// applyStaticSamplers drops reflected resources that a static sampler
// replaces and removes tables left empty.
func (rs *RootSignature) applyStaticSamplers() {
	if len(rs.staticSamplers) == 0 {
		return
	}
	for i := range rs.tables {
		t := &rs.tables[i]
		t.Resources = slices.DeleteFunc(t.Resources, func(r ShaderResource) bool {
			for j := range rs.staticSamplers {
				ss := &rs.staticSamplers[j]
				if ss.Name != "" {
					if ss.Name != r.Name {
						continue
					}
					// a named sampler takes the reflected slot
					ss.Set, ss.Binding = t.Set, r.Binding
					return true
				}
				if ss.Set == t.Set && ss.Binding == r.Binding {
					return true
				}
			}
			return false
		})
	}
	rs.tables = slices.DeleteFunc(rs.tables, func(t ParameterTable) bool { return len(t.Resources) == 0 })
}

func (rs *RootSignature) highestSet() int {
	if rs.setMask == 0 {
		return -1
	}
	return 31 - bits.LeadingZeros32(rs.setMask)
}

// build creates the native objects. On failure everything created so far is
// destroyed.
func (rs *RootSignature) build() (*rootSigCore, error) {
	core := &rootSigCore{}
	if err := rs.buildInto(core); err != nil {
		core.destroy()
		return nil, err
	}
	return core, nil
}

func (rs *RootSignature) buildInto(core *rootSigCore) error {
	d := rs.device
	n := rs.highestSet() + 1
	core.setLayouts = make([]NativeSetLayout, n)
	core.emptySets = make([]NativeDescriptorSet, n)
	for set := range n {
		l, err := d.native.CreateSetLayout(rs.layoutBindings(uint32(set)))
		if err != nil {
			return creationFailed("CreateSetLayout", logNative(d.log, "CreateSetLayout", err))
		}
		core.setLayouts[set] = l
		es, err := d.native.AllocateDescriptorSet(l)
		if err != nil {
			return creationFailed("AllocateDescriptorSet", logNative(d.log, "AllocateDescriptorSet", err))
		}
		core.emptySets[set] = es
	}

	push := make([]PushConstantRange, 0, len(rs.pushConstants))
	for _, pc := range rs.pushConstants {
		push = append(push, PushConstantRange{Stages: pc.Stages, Offset: pc.Offset, Size: pc.Size})
	}
	layout, err := d.native.CreatePipelineLayout(core.setLayouts, push)
	if err != nil {
		return creationFailed("CreatePipelineLayout", logNative(d.log, "CreatePipelineLayout", err))
	}
	core.layout = layout
	d.SetName(layout, rs.name)

	if !d.adapter.detail.SupportsUpdateTemplates {
		return nil
	}
	core.templates = make([]NativeUpdateTemplate, n)
	for i := range rs.tables {
		t := &rs.tables[i]
		entries := make([]TemplateEntry, len(t.Resources))
		for j, r := range t.Resources {
			entries[j] = TemplateEntry{
				Binding: r.Binding,
				Type:    r.Type,
				Count:   r.ArraySize,
				Offset:  t.slots[j] * recordSize,
				Stride:  recordSize,
			}
		}
		tmpl, err := d.native.CreateUpdateTemplate(core.setLayouts[t.Set], core.layout, t.Set, entries)
		if err != nil {
			return creationFailed("CreateUpdateTemplate", logNative(d.log, "CreateUpdateTemplate", err))
		}
		core.templates[t.Set] = tmpl
	}
	return nil
}

// layoutBindings is the table's resources followed by the static samplers
// targeting set. Sets outside the mask get an empty layout.
func (rs *RootSignature) layoutBindings(set uint32) []SetLayoutBinding {
	var out []SetLayoutBinding
	if t := rs.Table(set); t != nil {
		for _, r := range t.Resources {
			out = append(out, SetLayoutBinding{Binding: r.Binding, Type: r.Type, Count: r.ArraySize, Stages: r.Stages})
		}
	}
	for _, ss := range rs.staticSamplers {
		if ss.Set != set {
			continue
		}
		b := SetLayoutBinding{Binding: ss.Binding, Type: ResourceTypeSampler, Count: 1, Stages: rs.stages}
		if ss.Sampler != nil {
			b.ImmutableSampler = ss.Sampler.native
		}
		out = append(out, b)
	}
	return out
}

// Name returns the debug name.
func (rs *RootSignature) Name() string { return rs.name }

// Tables returns the parameter tables sorted by set.
func (rs *RootSignature) Tables() []ParameterTable { return rs.tables }

// Table returns the table of set, or nil.
func (rs *RootSignature) Table(set uint32) *ParameterTable {
	for i := range rs.tables {
		if rs.tables[i].Set == set {
			return &rs.tables[i]
		}
	}
	return nil
}

// PushConstants returns the merged push constant ranges.
func (rs *RootSignature) PushConstants() []ShaderResource { return rs.pushConstants }

// SetMask has bit i set when set i holds resources or static samplers.
func (rs *RootSignature) SetMask() uint32 { return rs.setMask }

// SetCount returns the number of active sets.
func (rs *RootSignature) SetCount() int { return bits.OnesCount32(rs.setMask) }

// Pool returns the pool that owns the native objects, or nil.
func (rs *RootSignature) Pool() *RootSignaturePool { return rs.pool }

// PipelineLayout returns the native pipeline layout.
func (rs *RootSignature) PipelineLayout() NativePipelineLayout {
	if rs.core == nil {
		return nil
	}
	return rs.core.layout
}

// SetLayout returns the native layout of set, or nil.
func (rs *RootSignature) SetLayout(set uint32) NativeSetLayout {
	if rs.core == nil || int(set) >= len(rs.core.setLayouts) {
		return nil
	}
	return rs.core.setLayouts[set]
}

func (rs *RootSignature) template(set uint32) NativeUpdateTemplate {
	if rs.core == nil || int(set) >= len(rs.core.templates) {
		return nil
	}
	return rs.core.templates[set]
}

func (rs *RootSignature) pushConstant(name string) (ShaderResource, bool) {
	for _, pc := range rs.pushConstants {
		if pc.Name == name {
			return pc, true
		}
	}
	return ShaderResource{}, false
}

// Free destroys the native objects. A pooled signature releases its
// reference instead; the pool owns the shared objects.
func (rs *RootSignature) Free() {
	if rs.core == nil {
		return
	}
	if rs.pool != nil {
		rs.pool.release(rs.shapeKey)
	} else {
		rs.core.destroy()
	}
	rs.core = nil
}

package cgpu

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
	"sync"
)

// RootSignaturePoolDescriptor describes a pool.
type RootSignaturePoolDescriptor struct {
	Name string
}

// RootSignaturePool deduplicates root signatures by binding shape: the set
// mask plus, per set, the binding, type, array size and stage mask of every
// slot. Signatures of the same shape share one set of native objects; the
// pool owns them until it is freed.
type RootSignaturePool struct {
	device  *Device
	name    string
	mu      sync.Mutex
	entries map[uint64]*poolEntry
}

type slotKey struct {
	set, binding uint32
}

type slotShape struct {
	typ   ResourceType
	count uint32
}

type poolEntry struct {
	shape   []byte
	setMask uint32
	slots   map[slotKey]slotShape
	core    *rootSigCore
	refs    int
}

// CreateRootSignaturePool creates an empty pool.
func (d *Device) CreateRootSignaturePool(desc *RootSignaturePoolDescriptor) (*RootSignaturePool, error) {
	p := &RootSignaturePool{device: d, entries: make(map[uint64]*poolEntry)}
	if desc != nil {
		p.name = desc.Name
	}
	return p, nil
}

// Name returns the debug name.
func (p *RootSignaturePool) Name() string { return p.name }

// Len returns the number of distinct shapes in the pool.
func (p *RootSignaturePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Refs returns the number of live signatures sharing the shape of rs.
func (p *RootSignaturePool) Refs(rs *RootSignature) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[rs.shapeKey]; ok {
		return e.refs
	}
	return 0
}

// acquire returns the core for shape, building and inserting it with build
// on a miss. A miss whose slots contradict an existing entry with the same
// set mask is rejected before anything native is created.
func (p *RootSignaturePool) acquire(shape []byte, setMask uint32, slots map[slotKey]slotShape,
	build func() (*rootSigCore, error)) (*rootSigCore, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := shapeHash(shape)
	if e, ok := p.entries[key]; ok {
		if !bytes.Equal(e.shape, shape) {
			set, binding := firstSlot(slots)
			return nil, 0, &PoolConflictError{Set: set, Binding: binding}
		}
		e.refs++
		return e.core, key, nil
	}
	for _, e := range p.entries {
		if e.setMask != setMask {
			continue
		}
		for k, s := range slots {
			if other, ok := e.slots[k]; ok && other != s {
				return nil, 0, &PoolConflictError{Set: k.set, Binding: k.binding}
			}
		}
	}

	core, err := build()
	if err != nil {
		return nil, 0, err
	}
	p.entries[key] = &poolEntry{shape: shape, setMask: setMask, slots: slots, core: core, refs: 1}
	p.device.log.Debug("cgpu: root signature pool insert", "pool", p.name, "shapes", len(p.entries))
	return core, key, nil
}

func (p *RootSignaturePool) release(key uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok && e.refs > 0 {
		e.refs--
	}
}

// Free destroys every shared native object. Signatures served by the pool
// must not be used afterwards.
func (p *RootSignaturePool) Free() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.entries {
		e.core.destroy()
		delete(p.entries, k)
	}
}

func shapeHash(shape []byte) uint64 {
	h := fnv.New64a()
	h.Write(shape)
	return h.Sum64()
}

func firstSlot(slots map[slotKey]slotShape) (set, binding uint32) {
	first := true
	for k := range slots {
		if first || k.set < set || (k.set == set && k.binding < binding) {
			set, binding, first = k.set, k.binding, false
		}
	}
	return set, binding
}

// shape is the canonical encoding of everything that affects the native
// objects: set mask, every slot, static sampler slots and push constants.
// Resource names are not part of the shape.
func (rs *RootSignature) shape() []byte {
	var b []byte
	put := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	put(rs.setMask)
	for _, t := range rs.tables {
		put(t.Set)
		put(uint32(len(t.Resources)))
		for _, r := range t.Resources {
			put(r.Binding)
			put(uint32(r.Type))
			put(r.ArraySize)
			put(uint32(r.Stages))
		}
	}
	put(uint32(len(rs.staticSamplers)))
	for _, ss := range rs.staticSamplers {
		put(ss.Set)
		put(ss.Binding)
	}
	put(uint32(len(rs.pushConstants)))
	for _, pc := range rs.pushConstants {
		put(uint32(pc.Stages))
		put(pc.Offset)
		put(pc.Size)
	}
	return b
}

func (rs *RootSignature) slotShapes() map[slotKey]slotShape {
	out := make(map[slotKey]slotShape)
	for _, t := range rs.tables {
		for _, r := range t.Resources {
			out[slotKey{t.Set, r.Binding}] = slotShape{typ: r.Type, count: r.ArraySize}
		}
	}
	for _, ss := range rs.staticSamplers {
		out[slotKey{ss.Set, ss.Binding}] = slotShape{typ: ResourceTypeSampler, count: 1}
	}
	return out
}

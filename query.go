package cgpu

import "fmt"

// QueryPoolDescriptor describes a query pool.
type QueryPoolDescriptor struct {
	Name  string
	Type  QueryType
	Count uint32
}

// QueryPool holds GPU counters.
type QueryPool struct {
	device *Device
	native NativeQueryPool
	typ    QueryType
	count  uint32
}

// CreateQueryPool creates a query pool.
func (d *Device) CreateQueryPool(desc *QueryPoolDescriptor) (*QueryPool, error) {
	if desc.Count == 0 {
		return nil, creationFailed("CreateQueryPool", fmt.Errorf("query pool %q has no queries", desc.Name))
	}
	if desc.Type == QueryTypeTimestamp && !d.adapter.detail.SupportsTimestamps {
		return nil, creationFailed("CreateQueryPool", ErrUnsupported)
	}
	np, err := d.native.CreateQueryPool(desc.Type, desc.Count)
	if err != nil {
		return nil, creationFailed("CreateQueryPool", logNative(d.log, "CreateQueryPool", err))
	}
	d.SetName(np, desc.Name)
	return &QueryPool{device: d, native: np, typ: desc.Type, count: desc.Count}, nil
}

// Type returns what the pool counts.
func (p *QueryPool) Type() QueryType { return p.typ }

// Count returns the number of queries.
func (p *QueryPool) Count() uint32 { return p.count }

// Native returns the backend pool.
func (p *QueryPool) Native() NativeQueryPool { return p.native }

// Free destroys the pool.
func (p *QueryPool) Free() {
	if p.native != nil {
		p.native.Destroy()
		p.native = nil
	}
}

func (p *QueryPool) check(first, count uint32) error {
	if first+count > p.count {
		return fmt.Errorf("cgpu: queries [%d,%d) out of pool range %d", first, first+count, p.count)
	}
	return nil
}

// ResetQueryPool resets count queries from first. It must be recorded
// outside a pass.
func (c *CommandBuffer) ResetQueryPool(p *QueryPool, first, count uint32) error {
	if err := c.expect("ResetQueryPool", CommandBufferRecording); err != nil {
		return err
	}
	if err := p.check(first, count); err != nil {
		return err
	}
	c.native.ResetQueryPool(p.native, first, count)
	return nil
}

// BeginQuery starts query index. For timestamp pools it writes a timestamp.
func (c *CommandBuffer) BeginQuery(p *QueryPool, index uint32) error {
	if err := c.expectRecording("BeginQuery"); err != nil {
		return err
	}
	if err := p.check(index, 1); err != nil {
		return err
	}
	if p.typ == QueryTypeTimestamp {
		c.native.WriteTimestamp(p.native, index)
		return nil
	}
	c.native.BeginQuery(p.native, index)
	return nil
}

// EndQuery ends query index. Timestamps are instants, so for timestamp pools
// this is the same timestamp write as BeginQuery; callers pair a begin at
// index i with an end at another index.
func (c *CommandBuffer) EndQuery(p *QueryPool, index uint32) error {
	if err := c.expectRecording("EndQuery"); err != nil {
		return err
	}
	if err := p.check(index, 1); err != nil {
		return err
	}
	if p.typ == QueryTypeTimestamp {
		c.native.WriteTimestamp(p.native, index)
		return nil
	}
	c.native.EndQuery(p.native, index)
	return nil
}

// ResolveQuery copies count 64-bit results from first into dst.
func (c *CommandBuffer) ResolveQuery(p *QueryPool, dst *Buffer, first, count uint32) error {
	if err := c.expect("ResolveQuery", CommandBufferRecording); err != nil {
		return err
	}
	if err := p.check(first, count); err != nil {
		return err
	}
	if uint64(count)*8 > dst.desc.Size {
		return fmt.Errorf("cgpu: %d query results do not fit buffer %q", count, dst.desc.Name)
	}
	c.native.ResolveQuery(p.native, dst.native, first, count)
	return nil
}

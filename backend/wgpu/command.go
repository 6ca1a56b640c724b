package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CommandPool hands out command buffers, each with its own HAL encoder.
type CommandPool struct {
	device  *Device
	buffers []*CommandBuffer
}

// CreateCommandPool implements cgpu.NativeDevice.
func (d *Device) CreateCommandPool(family uint32) (cgpu.NativeCommandPool, error) {
	if family != 0 {
		return nil, fmt.Errorf("wgpu: no queue family %d", family)
	}
	return &CommandPool{device: d}, nil
}

// Allocate implements cgpu.NativeCommandPool.
func (p *CommandPool) Allocate() (cgpu.NativeCommandBuffer, error) {
	enc, err := p.device.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{})
	if err != nil {
		return nil, mapError("create command encoder", err)
	}
	c := &CommandBuffer{device: p.device, pool: p, encoder: enc}
	p.buffers = append(p.buffers, c)
	return c, nil
}

// Reset implements cgpu.NativeCommandPool.
func (p *CommandPool) Reset() error {
	for _, c := range p.buffers {
		c.reset()
	}
	return nil
}

// Destroy implements cgpu.NativeObject.
func (p *CommandPool) Destroy() {
	for _, c := range p.buffers {
		c.destroy()
	}
	p.buffers = nil
}

// CommandBuffer records through a hal.CommandEncoder. Pass commands go to
// the open pass encoder. Calls that cannot be expressed are recorded as a
// sticky error returned by End.
type CommandBuffer struct {
	device  *Device
	pool    *CommandPool
	encoder hal.CommandEncoder
	done    hal.CommandBuffer
	err     error

	render    hal.RenderPassEncoder
	compute   hal.ComputePassEncoder
	recording bool
}

func (c *CommandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *CommandBuffer) reset() {
	if c.done != nil {
		c.encoder.ResetAll([]hal.CommandBuffer{c.done})
		c.done = nil
	}
	if c.recording {
		c.encoder.DiscardEncoding()
		c.recording = false
	}
	c.render, c.compute, c.err = nil, nil, nil
}

func (c *CommandBuffer) destroy() {
	c.reset()
	if c.encoder != nil {
		c.encoder.Destroy()
		c.encoder = nil
	}
}

// Begin implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Begin() error {
	c.reset()
	if err := c.encoder.BeginEncoding(""); err != nil {
		return mapError("begin encoding", err)
	}
	c.recording = true
	return nil
}

// End implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) End() error {
	if c.err != nil {
		c.encoder.DiscardEncoding()
		c.recording = false
		return c.err
	}
	cb, err := c.encoder.EndEncoding()
	c.recording = false
	if err != nil {
		return mapError("end encoding", err)
	}
	c.done = cb
	return nil
}

// Free implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Free() {
	c.destroy()
	for i, b := range c.pool.buffers {
		if b == c {
			c.pool.buffers = append(c.pool.buffers[:i], c.pool.buffers[i+1:]...)
			break
		}
	}
}

// PipelineBarrier implements cgpu.NativeCommandBuffer. Barriers touching the
// present state are dropped: the HAL transitions surface textures itself.
func (c *CommandBuffer) PipelineBarrier(b *cgpu.BarrierBatch) {
	var bufs []hal.BufferBarrier
	for _, bb := range b.Buffers {
		buf, ok := bb.Buffer.(*Buffer)
		if !ok {
			c.fail(fmt.Errorf("wgpu: foreign buffer %T", bb.Buffer))
			return
		}
		bufs = append(bufs, hal.BufferBarrier{
			Buffer: buf.hal,
			Usage: hal.BufferUsageTransition{
				OldUsage: bufferStateUsage(bb.SrcState),
				NewUsage: bufferStateUsage(bb.DstState),
			},
		})
	}
	var texs []hal.TextureBarrier
	for _, tb := range b.Textures {
		if tb.SrcState == cgpu.ResourceStatePresent || tb.DstState == cgpu.ResourceStatePresent {
			continue
		}
		t, ok := tb.Texture.(*Texture)
		if !ok {
			c.fail(fmt.Errorf("wgpu: foreign texture %T", tb.Texture))
			return
		}
		ht := t.current()
		if ht == nil {
			continue
		}
		texs = append(texs, hal.TextureBarrier{
			Texture: ht,
			Range: hal.TextureRange{
				Aspect:          aspect(tb.Aspect),
				BaseMipLevel:    tb.BaseMipLevel,
				MipLevelCount:   tb.MipLevelCount,
				BaseArrayLayer:  tb.BaseArrayLayer,
				ArrayLayerCount: tb.ArrayLayers,
			},
			Usage: hal.TextureUsageTransition{
				OldUsage: textureStateUsage(tb.SrcState),
				NewUsage: textureStateUsage(tb.DstState),
			},
		})
	}
	if len(bufs) > 0 {
		c.encoder.TransitionBuffers(bufs)
	}
	if len(texs) > 0 {
		c.encoder.TransitionTextures(texs)
	}
}

// BeginRenderPass implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BeginRenderPass(pass cgpu.NativeRenderPass, fb cgpu.NativeFramebuffer, clears []cgpu.ClearValue) {
	rp, ok1 := pass.(*RenderPass)
	f, ok2 := fb.(*Framebuffer)
	if !ok1 || !ok2 {
		c.fail(fmt.Errorf("wgpu: foreign render pass %T or framebuffer %T", pass, fb))
		return
	}
	hd, err := passDescriptor(rp, f, clears)
	if err != nil {
		c.fail(err)
		return
	}
	c.render = c.encoder.BeginRenderPass(hd)
}

// EndRenderPass implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndRenderPass() {
	if c.render != nil {
		c.render.End()
		c.render = nil
	}
}

// BeginComputePass implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BeginComputePass() {
	c.compute = c.encoder.BeginComputePass(&hal.ComputePassDescriptor{})
}

// EndComputePass implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndComputePass() {
	if c.compute != nil {
		c.compute.End()
		c.compute = nil
	}
}

var errNoRenderPass = errors.New("wgpu: draw state outside a render pass")

func (c *CommandBuffer) renderPass() hal.RenderPassEncoder {
	if c.render == nil {
		c.fail(errNoRenderPass)
	}
	return c.render
}

// SetViewport implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	if rp := c.renderPass(); rp != nil {
		rp.SetViewport(x, y, width, height, minDepth, maxDepth)
	}
}

// SetScissor implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) SetScissor(x, y, width, height uint32) {
	if rp := c.renderPass(); rp != nil {
		rp.SetScissorRect(x, y, width, height)
	}
}

// BindPipeline implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindPipeline(p cgpu.NativePipeline, compute bool) {
	pl, ok := p.(*Pipeline)
	if !ok {
		c.fail(fmt.Errorf("wgpu: foreign pipeline %T", p))
		return
	}
	switch {
	case compute && c.compute != nil && pl.compute != nil:
		c.compute.SetPipeline(pl.compute)
	case !compute && c.render != nil && pl.render != nil:
		c.render.SetPipeline(pl.render)
	default:
		c.fail(errors.New("wgpu: pipeline does not match the open pass"))
	}
}

// BindDescriptorSet implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindDescriptorSet(_ cgpu.NativePipelineLayout, index uint32, set cgpu.NativeDescriptorSet, compute bool) {
	ds, ok := set.(*DescriptorSet)
	if !ok {
		c.fail(fmt.Errorf("wgpu: foreign descriptor set %T", set))
		return
	}
	g, err := ds.bindGroup()
	if err != nil {
		c.fail(err)
		return
	}
	switch {
	case compute && c.compute != nil:
		c.compute.SetBindGroup(index, g, nil)
	case !compute && c.render != nil:
		c.render.SetBindGroup(index, g, nil)
	default:
		c.fail(errors.New("wgpu: descriptor set bound outside a pass"))
	}
}

// PushConstants implements cgpu.NativeCommandBuffer. The HAL encoders have
// no push constant command.
func (c *CommandBuffer) PushConstants(cgpu.NativePipelineLayout, cgpu.ShaderStage, uint32, []byte) {
	c.fail(fmt.Errorf("wgpu: push constants: %w", cgpu.ErrUnsupported))
}

// BindVertexBuffers implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []cgpu.NativeBuffer, offsets []uint64) {
	rp := c.renderPass()
	if rp == nil {
		return
	}
	for i, nb := range buffers {
		b, ok := nb.(*Buffer)
		if !ok {
			c.fail(fmt.Errorf("wgpu: foreign buffer %T", nb))
			return
		}
		rp.SetVertexBuffer(first+uint32(i), b.hal, offsets[i])
	}
}

// BindIndexBuffer implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindIndexBuffer(buffer cgpu.NativeBuffer, offset uint64, format gputypes.IndexFormat) {
	rp := c.renderPass()
	if rp == nil {
		return
	}
	b, ok := buffer.(*Buffer)
	if !ok {
		c.fail(fmt.Errorf("wgpu: foreign buffer %T", buffer))
		return
	}
	rp.SetIndexBuffer(b.hal, format, offset)
}

// Draw implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if rp := c.renderPass(); rp != nil {
		rp.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

// DrawIndexed implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if rp := c.renderPass(); rp != nil {
		rp.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
	}
}

// Dispatch implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	if c.compute == nil {
		c.fail(errors.New("wgpu: dispatch outside a compute pass"))
		return
	}
	c.compute.Dispatch(x, y, z)
}

// CopyBufferToBuffer implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) CopyBufferToBuffer(src, dst cgpu.NativeBuffer, regions []cgpu.BufferCopy) {
	s, ok1 := src.(*Buffer)
	d, ok2 := dst.(*Buffer)
	if !ok1 || !ok2 {
		c.fail(fmt.Errorf("wgpu: foreign buffers %T, %T", src, dst))
		return
	}
	hr := make([]hal.BufferCopy, len(regions))
	for i, r := range regions {
		hr[i] = hal.BufferCopy{SrcOffset: r.SrcOffset, DstOffset: r.DstOffset, Size: r.Size}
	}
	c.encoder.CopyBufferToBuffer(s.hal, d.hal, hr)
}

// CopyBufferToTexture implements cgpu.NativeCommandBuffer. Every array
// layer of a region is copied separately.
func (c *CommandBuffer) CopyBufferToTexture(src cgpu.NativeBuffer, dst cgpu.NativeTexture, regions []cgpu.BufferTextureCopy) {
	s, ok1 := src.(*Buffer)
	t, ok2 := dst.(*Texture)
	if !ok1 || !ok2 || t.current() == nil {
		c.fail(fmt.Errorf("wgpu: cannot copy %T to %T", src, dst))
		return
	}
	hr := make([]hal.BufferTextureCopy, 0, len(regions))
	for _, r := range regions {
		hr = append(hr, hal.BufferTextureCopy{
			BufferLayout: hal.ImageDataLayout{
				Offset:       r.BufferOffset,
				BytesPerRow:  r.BytesPerRow,
				RowsPerImage: r.RowsPerImage,
			},
			TextureBase: hal.ImageCopyTexture{
				Texture:  t.current(),
				MipLevel: r.MipLevel,
				Origin:   hal.Origin3D{Z: r.BaseArrayLayer},
				Aspect:   aspect(r.Aspect),
			},
			Size: hal.Extent3D{
				Width:              r.Width,
				Height:             r.Height,
				DepthOrArrayLayers: max(r.DepthOrLayers, r.LayerCount, 1),
			},
		})
	}
	c.encoder.CopyBufferToTexture(s.hal, t.current(), hr)
}

func queryPool(p cgpu.NativeQueryPool) (*QueryPool, error) {
	qp, ok := p.(*QueryPool)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign query pool %T", p)
	}
	return qp, nil
}

// ResetQueryPool implements cgpu.NativeCommandBuffer. WebGPU query sets need
// no reset.
func (c *CommandBuffer) ResetQueryPool(cgpu.NativeQueryPool, uint32, uint32) {}

// WriteTimestamp implements cgpu.NativeCommandBuffer. WebGPU writes
// timestamps only at pass boundaries, so outside a pass an empty compute
// pass carries the write.
func (c *CommandBuffer) WriteTimestamp(pool cgpu.NativeQueryPool, index uint32) {
	qp, err := queryPool(pool)
	if err != nil {
		c.fail(err)
		return
	}
	if c.render != nil || c.compute != nil {
		c.fail(fmt.Errorf("wgpu: timestamps inside a pass: %w", cgpu.ErrUnsupported))
		return
	}
	at := index
	pass := c.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label:           "timestamp",
		TimestampWrites: &hal.ComputePassTimestampWrites{QuerySet: qp.hal, BeginningOfPassWriteIndex: &at},
	})
	pass.End()
}

// BeginQuery implements cgpu.NativeCommandBuffer. Occlusion queries are not
// exposed by the HAL pass encoders.
func (c *CommandBuffer) BeginQuery(cgpu.NativeQueryPool, uint32) {
	c.fail(fmt.Errorf("wgpu: occlusion queries: %w", cgpu.ErrUnsupported))
}

// EndQuery implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndQuery(cgpu.NativeQueryPool, uint32) {
	c.fail(fmt.Errorf("wgpu: occlusion queries: %w", cgpu.ErrUnsupported))
}

// ResolveQuery implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) ResolveQuery(pool cgpu.NativeQueryPool, dst cgpu.NativeBuffer, first, count uint32) {
	qp, err := queryPool(pool)
	if err != nil {
		c.fail(err)
		return
	}
	b, ok := dst.(*Buffer)
	if !ok {
		c.fail(fmt.Errorf("wgpu: foreign buffer %T", dst))
		return
	}
	c.encoder.ResolveQuerySet(qp.hal, first, count, b.hal, 0)
}

// BeginEvent implements cgpu.NativeCommandBuffer. The HAL has no debug
// groups.
func (c *CommandBuffer) BeginEvent(string, gputypes.Color) {}

// EndEvent implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndEvent() {}

// SetMarker implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) SetMarker(string, gputypes.Color) {}
